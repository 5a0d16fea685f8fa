// Package cow implements copy-on-write promotion: duplicating an
// entity from an RO branch to the nearest eligible RW branch on first
// mutating access, with parent-directory materialization and
// best-effort metadata/xattr preservation.
package cow

import (
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"unionfs/internal/branch"
	"unionfs/internal/vfs"
)

// Engine promotes entities between branches of a shared Table.
type Engine struct {
	table *branch.Table
}

// New returns a COW Engine bound to table.
func New(table *branch.Table) *Engine {
	return &Engine{table: table}
}

// Promote copies the entity at (src, relpath) to the topmost RW branch
// with index <= src.Index, materializing ancestor directories first,
// and returns the destination branch. Promote is idempotent: if the
// destination already exists with a matching type the copy is skipped.
// Callers hold the per-path lock from internal/lock around this call so
// that observation is race-free.
func (e *Engine) Promote(src *branch.Branch, relpath string) (*branch.Branch, error) {
	target := e.table.RWAtOrAbove(src.Index)
	if target == nil {
		return nil, vfs.ErrReadOnly
	}

	srcStat, err := e.table.Lstat(src, relpath)
	if err != nil {
		return nil, err
	}

	if dstStat, err := e.table.Lstat(target, relpath); err == nil {
		if dstStat.FileType() == srcStat.FileType() {
			return target, nil
		}
	}

	if err := e.materializeParents(src, target, relpath); err != nil {
		return nil, err
	}

	if err := e.copyEntry(src, target, relpath, srcStat); err != nil {
		return nil, err
	}

	return target, nil
}

// materializeParents creates every ancestor directory of relpath that is
// missing on target, copying mode/owner from the matching directory on
// src when present. Materialization is a structural mkdir only; it is
// never routed through the whiteout manager.
func (e *Engine) materializeParents(src, target *branch.Branch, relpath string) error {
	parts := vfs.SplitPath(relpath)
	if len(parts) <= 1 {
		return nil
	}

	for i := 1; i < len(parts); i++ {
		ancestor := vfs.JoinPath(parts[:i])
		if e.table.Exists(target, ancestor) {
			continue
		}

		mode := os.FileMode(0o755)
		var uid, gid uint32
		if st, err := e.table.Lstat(src, ancestor); err == nil && st.IsDir() {
			mode = os.FileMode(st.Perm())
			uid, gid = st.Uid, st.Gid
		}

		dstPath := e.table.HostPath(target, ancestor)
		if err := os.Mkdir(dstPath, mode); err != nil && !os.IsExist(err) {
			return err
		}
		_ = os.Chown(dstPath, int(uid), int(gid))
	}
	return nil
}

// copyEntry duplicates one entity (regular file, symlink, FIFO, device,
// or directory placeholder) from src to target.
func (e *Engine) copyEntry(src, target *branch.Branch, relpath string, st *vfs.Stats) error {
	srcPath := e.table.HostPath(src, relpath)
	dstPath := e.table.HostPath(target, relpath)

	switch {
	case st.IsDir():
		if err := os.Mkdir(dstPath, os.FileMode(st.Perm())); err != nil && !os.IsExist(err) {
			return err
		}
	case st.IsSymlink():
		linkTarget, err := os.Readlink(srcPath)
		if err != nil {
			return err
		}
		_ = os.Remove(dstPath)
		if err := os.Symlink(linkTarget, dstPath); err != nil {
			return err
		}
		_ = os.Lchown(dstPath, int(st.Uid), int(st.Gid))
		return nil
	case st.IsFIFO():
		if err := syscall.Mkfifo(dstPath, st.Perm()); err != nil && err != syscall.EEXIST {
			return err
		}
	case st.FileType() == vfs.ModeBlock, st.FileType() == vfs.ModeSocket, st.FileType() == vfs.ModeChar:
		if err := unix.Mknod(dstPath, st.Mode, 0); err != nil && err != unix.EEXIST {
			return err
		}
	default:
		if err := copyRegularFile(srcPath, dstPath, st); err != nil {
			return err
		}
	}

	if err := os.Chmod(dstPath, os.FileMode(st.Perm())); err != nil {
		return err
	}
	_ = os.Chown(dstPath, int(st.Uid), int(st.Gid))
	_ = copyXattrs(srcPath, dstPath)

	_ = os.Chtimes(dstPath, time.Unix(st.Atime, 0), time.Unix(st.Mtime, 0))

	return nil
}

func copyRegularFile(srcPath, dstPath string, st *vfs.Stats) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(st.Perm()))
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// copyXattrs best-effort copies extended attributes from src to dst,
// skipping any attribute the destination filesystem rejects.
func copyXattrs(src, dst string) error {
	size, err := unix.Llistxattr(src, nil)
	if err != nil || size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(src, buf)
	if err != nil {
		return nil
	}
	for _, name := range splitXattrNames(buf[:n]) {
		vsize, err := unix.Lgetxattr(src, name, nil)
		if err != nil || vsize <= 0 {
			continue
		}
		val := make([]byte, vsize)
		vn, err := unix.Lgetxattr(src, name, val)
		if err != nil {
			continue
		}
		_ = unix.Lsetxattr(dst, name, val[:vn], 0)
	}
	return nil
}

func splitXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
