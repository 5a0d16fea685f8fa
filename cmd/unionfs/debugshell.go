package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unionfs/internal/debugshell"
)

var debugShellCommand string

var debugShellCmd = &cobra.Command{
	Use:   "debug-shell mountpoint",
	Short: "Open an interactive shell rooted at a live mount",
	Long: `debug-shell launches an interactive shell with its working directory
set to mountpoint, for manually inspecting a live union mount. It is a
support tool and does not itself speak the control channel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]
		fmt.Printf("entering debug shell at %s (exit to leave)\n", mountPoint)
		return debugshell.Run(mountPoint, debugshell.Shell{Command: debugShellCommand})
	},
}

func init() {
	debugShellCmd.Flags().StringVar(&debugShellCommand, "shell", "", "shell to launch (defaults to $SHELL, then /bin/sh)")
	rootCmd.AddCommand(debugShellCmd)
}
