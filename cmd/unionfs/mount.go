package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"unionfs/internal/fusefs"
	"unionfs/internal/unionfs"
)

var mountOpts []string

var mountCmd = &cobra.Command{
	Use:   "mount branch_spec mountpoint",
	Short: "Mount a union filesystem",
	Long: `Mount presents mountpoint as a merged view of the branches named in
branch_spec ("dir1=MODE:dir2=MODE:...", topmost-first, MODE in {RO, RW}).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(args[0], args[1], mountOpts)
	},
}

const optionUsage = "mount option (cow, stats, relaxed_permissions, preserve_branch, debug_file=PATH, auto_unmount, stats_db=PATH, cache_size=N); repeatable, comma-separated"

func init() {
	mountCmd.Flags().StringArrayVarP(&mountOpts, "option", "o", nil, optionUsage)
	rootCmd.Flags().StringArrayVarP(&mountOpts, "option", "o", nil, optionUsage)
	rootCmd.AddCommand(mountCmd)
}

func runMount(branchSpec, mountPoint string, rawOpts []string) error {
	branches, err := parseBranchSpec(branchSpec)
	if err != nil {
		return err
	}
	opts, err := parseMountOptions(rawOpts)
	if err != nil {
		return err
	}

	ufs, err := unionfs.New(branches, opts)
	if err != nil {
		return fmt.Errorf("unionfs: %w", err)
	}
	defer ufs.Close()

	ufs.Logger().SetEnabled(opts.DebugFile != "")

	mounter, err := fusefs.Mount(mountPoint, ufs, opts.AutoUnmount, false)
	if err != nil {
		return fmt.Errorf("unionfs: mount: %w", err)
	}

	fmt.Printf("unionfs mounted at %s\n", mountPoint)
	for _, b := range ufs.BranchStats() {
		fmt.Printf("  branch %d: %-4s %s (total visible: %s)\n", b.Index, b.Mode, b.Root, humanize.Bytes(b.Bytes))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		_ = mounter.Unmount()
	}()

	mounter.Wait()
	return nil
}
