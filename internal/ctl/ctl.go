// Package ctl is the control channel between a running mount and the
// unionfsctl helper: a small set of ioctl commands issued against the
// mountpoint to flip debug logging on or off and to redirect the debug
// log file, without restarting the mount. Both sides of the channel
// live here: the command numbers and path payload encoding used by the
// FUSE node's Ioctl handler, and the client calls unionfsctl makes.
package ctl

import (
	"bytes"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PathBufSize is the fixed payload size of the debug-path command. The
// kernel copies exactly this many bytes in, so the path travels as a
// NUL-terminated string inside a PathBufSize buffer.
const PathBufSize = 4096

// Linux ioctl command layout: dir(2) | size(14) | type(8) | nr(8).
const (
	iocNone  = 0
	iocWrite = 1

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// ctlType is the 8-bit command namespace claimed by this filesystem.
const ctlType = 'U'

func ioc(dir, nr, size uint32) uint32 {
	return dir<<iocDirShift | size<<iocSizeShift | ctlType<<iocTypeShift | nr<<iocNrShift
}

// The three control commands. Size is encoded in the command number, as
// required for FUSE to forward a restricted ioctl.
var (
	CmdDebugOn   = ioc(iocNone, 1, 0)
	CmdDebugOff  = ioc(iocNone, 2, 0)
	CmdDebugPath = ioc(iocWrite, 3, PathBufSize)
)

// EncodePath packs path into the fixed debug-path payload.
func EncodePath(path string) ([]byte, error) {
	if len(path) >= PathBufSize {
		return nil, fmt.Errorf("ctl: path too long (%d bytes, max %d)", len(path), PathBufSize-1)
	}
	buf := make([]byte, PathBufSize)
	copy(buf, path)
	return buf, nil
}

// DecodePath extracts the path from a debug-path payload.
func DecodePath(input []byte) string {
	if i := bytes.IndexByte(input, 0); i >= 0 {
		input = input[:i]
	}
	return string(input)
}

// SetDebug toggles debug logging on the mount at mountpoint.
func SetDebug(mountpoint string, on bool) error {
	cmd := CmdDebugOff
	if on {
		cmd = CmdDebugOn
	}
	return send(mountpoint, cmd, 0)
}

// SetDebugPath redirects the mount's debug log to path.
func SetDebugPath(mountpoint, path string) error {
	buf, err := EncodePath(path)
	if err != nil {
		return err
	}
	err = send(mountpoint, CmdDebugPath, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	return err
}

func send(mountpoint string, cmd uint32, arg uintptr) error {
	fd, err := unix.Open(mountpoint, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("ctl: open %s: %w", mountpoint, err)
	}
	defer unix.Close(fd)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(cmd), arg)
	if errno != 0 {
		return fmt.Errorf("ctl: ioctl on %s: %w", mountpoint, errno)
	}
	return nil
}
