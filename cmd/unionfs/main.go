// Command unionfs mounts a userspace union/overlay filesystem: an
// ordered list of branch directories, each read-only or read-write,
// presented as one merged directory tree with copy-on-write promotion
// and whiteout-based deletion.
//
// The binary has two subcommands: "mount" (the core operation) and
// "debug-shell" (an interactive PTY dropped into a live mount). The
// separate unionfsctl command speaks the runtime control channel.
package main

func main() {
	Execute()
}
