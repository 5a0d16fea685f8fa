// Package debugshell launches an interactive shell with its working
// directory inside a live union mount, for manually poking at a mount
// from the command line: PTY allocation, raw-mode stdin, and window
// resize forwarding included.
package debugshell

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Shell wires an exec.Cmd through a PTY whose window size tracks the
// controlling terminal.
type Shell struct {
	Command string   // defaults to $SHELL, falling back to /bin/sh
	Args    []string // extra args appended after Command
}

// Run starts the shell with its working directory set to mountPath and
// blocks until it exits. Stdin is put into raw mode for the duration.
func Run(mountPath string, sh Shell) error {
	command := sh.Command
	if command == "" {
		command = os.Getenv("SHELL")
	}
	if command == "" {
		command = "/bin/sh"
	}

	cmd := exec.Command(command, sh.Args...)
	cmd.Dir = mountPath
	cmd.Env = append(os.Environ(), "UNIONFS_MOUNT="+mountPath)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("debugshell: start pty: %w", err)
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("debugshell: set raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()

	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return fmt.Errorf("debugshell: %w", err)
	}
	return nil
}
