// Command unionfsctl drives the control channel of a running unionfs
// mount: it toggles debug logging on or off and redirects the debug log
// file, by issuing ioctls against the mountpoint.
//
//	unionfsctl -d on|off [-p PATH] mountpoint
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unionfs/internal/ctl"
)

var (
	debugMode string
	debugPath string
)

var rootCmd = &cobra.Command{
	Use:   "unionfsctl mountpoint",
	Short: "Control a running unionfs mount",
	Long: `unionfsctl sends control commands to a live unionfs mount via the
kernel ioctl interface: -d toggles debug logging, -p points the debug
log at a new file. The new path is applied before the toggle, so
"-d on -p PATH" starts logging into PATH directly.`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if debugMode == "" && debugPath == "" {
			return fmt.Errorf("unionfsctl: nothing to do (need -d and/or -p)")
		}
		if debugMode != "" && debugMode != "on" && debugMode != "off" {
			return fmt.Errorf("unionfsctl: -d takes on or off, got %q", debugMode)
		}

		mountpoint := args[0]
		if debugPath != "" {
			if err := ctl.SetDebugPath(mountpoint, debugPath); err != nil {
				return err
			}
		}
		if debugMode != "" {
			if err := ctl.SetDebug(mountpoint, debugMode == "on"); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&debugMode, "debug", "d", "", "enable or disable debug logging (on|off)")
	rootCmd.Flags().StringVarP(&debugPath, "path", "p", "", "redirect the debug log to this file")
	// Argument failures must leave stdout empty; route everything cobra
	// prints to stderr.
	rootCmd.SetOut(os.Stderr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
