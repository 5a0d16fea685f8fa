package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// versionString is the line --version prints.
const versionString = "unionfs-fuse version: 1.0.0"

var rootCmd = &cobra.Command{
	Use:     "unionfs [flags] branch_spec mountpoint",
	Short:   "A userspace union/overlay filesystem",
	Long:    `unionfs presents a single merged directory view composed of an ordered list of branches, each read-only or read-write, with copy-on-write promotion from RO branches and whiteout-based deletion.`,
	Version: versionString,
	Args:    cobra.RangeArgs(0, 2),
	// The bare invocation form `unionfs [options] branch_spec
	// mountpoint` mounts directly, same as the mount subcommand.
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Help()
		}
		return runMount(args[0], args[1], mountOpts)
	},
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the CLI, exiting 1 on argument or parsing failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
