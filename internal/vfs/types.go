// Package vfs holds the small, dependency-free types shared by every
// branch-facing package: file mode bits, directory entries, and the
// conversion between os.FileInfo and the union's own Stats struct.
package vfs

import (
	"os"
	"syscall"
)

// File type bits, matching S_IFMT and friends on Unix.
const (
	ModeTypeMask = 0o170000
	ModeDir      = 0o040000
	ModeRegular  = 0o100000
	ModeSymlink  = 0o120000
	ModeBlock    = 0o060000
	ModeChar     = 0o020000
	ModeFIFO     = 0o010000
	ModeSocket   = 0o140000
)

// Open flags, re-exported from syscall so callers never need to import
// it just to pass flags through.
const (
	ORDONLY = syscall.O_RDONLY
	OWRONLY = syscall.O_WRONLY
	ORDWR   = syscall.O_RDWR
	OAPPEND = syscall.O_APPEND
	OCREAT  = syscall.O_CREAT
	OEXCL   = syscall.O_EXCL
	OTRUNC  = syscall.O_TRUNC
)

// Stats is the union's branch-agnostic metadata record for a resolved
// entity, independent of whichever branch it lives on.
type Stats struct {
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime int64
	Mtime int64
	Ctime int64
}

func (s *Stats) IsDir() bool      { return s.Mode&ModeTypeMask == ModeDir }
func (s *Stats) IsRegular() bool  { return s.Mode&ModeTypeMask == ModeRegular }
func (s *Stats) IsSymlink() bool  { return s.Mode&ModeTypeMask == ModeSymlink }
func (s *Stats) IsFIFO() bool     { return s.Mode&ModeTypeMask == ModeFIFO }
func (s *Stats) FileType() uint32 { return s.Mode & ModeTypeMask }
func (s *Stats) Perm() uint32     { return s.Mode & 0o777 }

// DirEntry is one merged listing entry.
type DirEntry struct {
	Name string
	Mode uint32
	Ino  uint64
}

func (d DirEntry) IsDir() bool { return d.Mode&ModeTypeMask == ModeDir }

// FilesystemStats mirrors struct statvfs fields the dispatcher aggregates
// for statfs(2).
type FilesystemStats struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
}

// FileInfoToStats converts an os.FileInfo (as returned by Lstat on a
// branch root) into a Stats record, filling in the Unix-specific fields
// (inode, uid/gid, nlink, timestamps) when the platform exposes them.
func FileInfoToStats(info os.FileInfo) *Stats {
	mode := uint32(info.Mode().Perm())
	switch {
	case info.IsDir():
		mode |= ModeDir
	case info.Mode()&os.ModeSymlink != 0:
		mode |= ModeSymlink
	case info.Mode()&os.ModeDevice != 0:
		if info.Mode()&os.ModeCharDevice != 0 {
			mode |= ModeChar
		} else {
			mode |= ModeBlock
		}
	case info.Mode()&os.ModeNamedPipe != 0:
		mode |= ModeFIFO
	case info.Mode()&os.ModeSocket != 0:
		mode |= ModeSocket
	default:
		mode |= ModeRegular
	}

	st := &Stats{
		Mode:  mode,
		Size:  info.Size(),
		Mtime: info.ModTime().Unix(),
		Atime: info.ModTime().Unix(),
		Ctime: info.ModTime().Unix(),
		Nlink: 1,
	}

	if sys := info.Sys(); sys != nil {
		fillUnixStats(st, sys)
	}

	return st
}

func fillUnixStats(st *Stats, sys interface{}) {
	stat, ok := sys.(*syscall.Stat_t)
	if !ok {
		return
	}
	st.Ino = stat.Ino
	st.Nlink = uint32(stat.Nlink)
	st.Uid = stat.Uid
	st.Gid = stat.Gid
	st.Atime = stat.Atim.Sec
	st.Mtime = stat.Mtim.Sec
	st.Ctime = stat.Ctim.Sec
}
