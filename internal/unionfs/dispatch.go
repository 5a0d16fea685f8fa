package unionfs

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"unionfs/internal/branch"
	"unionfs/internal/resolve"
	"unionfs/internal/vfs"
	"unionfs/internal/whiteout"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

// Getattr resolves path with read intent and returns attributes from
// the owning branch; ENOENT when nothing resolves.
func (fs *FS) Getattr(path string) (*vfs.Stats, error) {
	fs.log("unionfs_getattr", path)

	res, err := fs.resolver.Resolve(path, resolve.Read)
	if err != nil {
		return nil, err
	}
	if !res.Found() {
		return nil, vfs.ErrNotFound
	}
	if res.Branch == nil {
		// The union root: synthesize a directory entry, there being no
		// single branch that owns it.
		return &vfs.Stats{Mode: vfs.ModeDir | 0o755, Nlink: 2}, nil
	}
	return fs.table.Lstat(res.Branch, res.Relpath)
}

// Access checks mask against the resolved entity's permission bits.
// With relaxed_permissions only the owner triad is consulted, as if the
// caller were the owner; otherwise uid/gid pick the triad, mirroring
// access(2), since the host cannot be asked directly about a uid the
// daemon does not run as.
func (fs *FS) Access(path string, mask uint32, uid, gid uint32) error {
	fs.log("unionfs_access", path)

	st, err := fs.Getattr(path)
	if err != nil {
		return err
	}

	var perm uint32
	switch {
	case fs.opts.RelaxedPermissions, uid == st.Uid:
		perm = (st.Mode >> 6) & 0o7
	case gid == st.Gid:
		perm = (st.Mode >> 3) & 0o7
	default:
		perm = st.Mode & 0o7
	}

	if mask&perm != mask {
		return vfs.ErrNoAccess
	}
	return nil
}

// Readlink is a pure metadata read and never triggers promotion,
// whichever branch the link lives on.
func (fs *FS) Readlink(path string) (string, error) {
	fs.log("unionfs_readlink", path)

	res, err := fs.resolver.Resolve(path, resolve.Read)
	if err != nil {
		return "", err
	}
	if !res.Found() || res.Branch == nil {
		return "", vfs.ErrNotFound
	}
	return os.Readlink(fs.table.HostPath(res.Branch, res.Relpath))
}

// Open resolves path and opens it on the owning branch. Opening with a
// write access mode (or O_TRUNC) on an RO-resident file promotes before
// the host open, so O_TRUNC can never truncate the RO original; without
// COW the open fails with EROFS, and with COW but no RW branch at or
// above the source it fails with EACCES.
func (fs *FS) Open(path string, flags int) (*Handle, error) {
	fs.log("unionfs_open", path)

	res, err := fs.resolver.Resolve(path, resolve.Read)
	if err != nil {
		return nil, err
	}
	if !res.Found() || res.Branch == nil {
		return nil, vfs.ErrNotFound
	}

	b := res.Branch
	writeNeeded := flags&(vfs.OWRONLY|vfs.ORDWR|vfs.OTRUNC) != 0
	if writeNeeded && b.ReadOnly() {
		if !fs.opts.COW {
			return nil, vfs.ErrReadOnly
		}
		if fs.table.RWAtOrAbove(b.Index) == nil {
			return nil, vfs.ErrNoAccess
		}
		err := fs.locks.WithLock(path, func(token string) error {
			promoted, perr := fs.cow.Promote(b, res.Relpath)
			if perr != nil {
				return perr
			}
			fs.logger.OpToken("unionfs_promote", path, token)
			b = promoted
			return nil
		})
		if err != nil {
			return nil, err
		}
		fs.resolver.Invalidate(path)
	}

	hostPath := fs.table.HostPath(b, res.Relpath)
	f, err := os.OpenFile(hostPath, flags&^vfs.OCREAT&^vfs.OEXCL, 0)
	if err != nil {
		return nil, err
	}
	return fs.openHandle(path, b, f, flags), nil
}

// Create makes a new file on the topmost RW branch, materializing the
// parent path there first; EACCES when no RW branch exists.
func (fs *FS) Create(path string, mode uint32) (*Handle, *vfs.Stats, error) {
	fs.log("unionfs_create", path)

	parentPath, name := vfs.Parent(path)
	target, err := fs.resolveCreateTarget(parentPath)
	if err != nil {
		return nil, nil, err
	}

	relpath := unionChild(parentPath, name)
	hostPath := fs.table.HostPath(target, relpath)
	f, err := os.OpenFile(hostPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, os.FileMode(mode&0o777))
	if err != nil {
		return nil, nil, err
	}

	fs.clearWhiteout(parentPath, name)
	fs.resolver.Invalidate(path)

	st, err := fs.table.Lstat(target, relpath)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fs.openHandle(path, target, f, os.O_RDWR), st, nil
}

// resolveCreateTarget picks the topmost RW branch and materializes
// parentPath's ancestors on it, the shared first step of
// create/mkdir/symlink/mkfifo/mknod/link.
func (fs *FS) resolveCreateTarget(parentPath string) (*branch.Branch, error) {
	if parentPath != "/" {
		res, err := fs.resolver.Resolve(parentPath, resolve.Create)
		if err != nil {
			return nil, err
		}
		if !res.Found() {
			return nil, vfs.ErrNotFound
		}
	}

	target := fs.table.TopmostRW()
	if target == nil {
		return nil, vfs.ErrNoAccess
	}
	if err := fs.materializeCreateParents(target, parentPath); err != nil {
		return nil, err
	}
	return target, nil
}

// materializeCreateParents mkdirs every ancestor of parentPath missing
// on target, defaulting to mode 0755 or copying the mode of a matching
// directory found on an upper (lower-index) branch; the create-time
// analogue of the COW Engine's materializeParents, which instead copies
// from one specific source branch during promotion.
func (fs *FS) materializeCreateParents(target *branch.Branch, parentPath string) error {
	parts := vfs.SplitPath(parentPath)
	for i := 0; i <= len(parts); i++ {
		ancestor := vfs.JoinPath(parts[:i])
		if fs.table.Exists(target, ancestor) {
			continue
		}

		mode := os.FileMode(0o755)
		for _, b := range fs.table.All() {
			if st, err := fs.table.Lstat(b, ancestor); err == nil && st.IsDir() {
				mode = os.FileMode(st.Perm())
				break
			}
		}

		if err := os.Mkdir(fs.table.HostPath(target, ancestor), mode); err != nil && !os.IsExist(err) {
			return err
		}
	}
	return nil
}

// Unlink removes an RW-resident copy; if a copy of the same name exists
// on a lower branch, a whiteout keeps it hidden. With COW disabled, any
// unlink that would need a whiteout (anything RO-resident) fails with
// EACCES outright; with COW enabled but no RW branch at or above the
// source, the failure is EROFS.
func (fs *FS) Unlink(path string) error {
	fs.log("unionfs_unlink", path)

	res, err := fs.resolver.Resolve(path, resolve.Delete)
	if err != nil {
		return err
	}
	if !res.Found() || res.Branch == nil {
		return vfs.ErrNotFound
	}

	parentPath, name := vfs.Parent(path)

	return fs.locks.WithLock(path, func(token string) error {
		if !res.Branch.ReadOnly() {
			if err := os.Remove(fs.table.HostPath(res.Branch, res.Relpath)); err != nil {
				return err
			}
			fs.resolver.Invalidate(path)

			// If the same name still exists on a lower branch, it would
			// resurface now unless masked.
			if fs.nameExistsBelow(res.Branch.Index, parentPath, name) {
				return fs.placeWhiteout(parentPath, name, res.Branch.Index)
			}
			return nil
		}

		if !fs.opts.COW {
			return vfs.ErrNoAccess
		}
		if fs.table.RWAtOrAbove(res.Branch.Index) == nil {
			return vfs.ErrReadOnly
		}
		return fs.placeWhiteout(parentPath, name, res.Branch.Index)
	})
}

// nameExistsBelow reports whether name still exists in parentPath on any
// branch with index > aboveIndex.
func (fs *FS) nameExistsBelow(aboveIndex int, parentPath, name string) bool {
	childPath := unionChild(parentPath, name)
	for _, b := range fs.table.All() {
		if b.Index <= aboveIndex {
			continue
		}
		if fs.table.Exists(b, childPath) {
			return true
		}
	}
	return false
}

// Mkdir creates the directory on the topmost RW branch, materializing
// the parent path there first.
func (fs *FS) Mkdir(path string, mode uint32) error {
	fs.log("unionfs_mkdir", path)

	parentPath, name := vfs.Parent(path)
	target, err := fs.resolveCreateTarget(parentPath)
	if err != nil {
		return err
	}

	relpath := unionChild(parentPath, name)
	if err := os.Mkdir(fs.table.HostPath(target, relpath), os.FileMode(mode&0o777)); err != nil {
		return err
	}

	fs.clearWhiteout(parentPath, name)
	fs.resolver.Invalidate(path)
	return nil
}

// Rmdir requires the union view of the directory to be empty. The
// directory is removed on every RW branch where it exists and a
// whiteout is placed for every RO branch that still holds it.
func (fs *FS) Rmdir(path string) error {
	fs.log("unionfs_rmdir", path)

	entries, err := fs.Readdir(path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return vfs.ErrNotEmpty
	}

	parentPath, name := vfs.Parent(path)
	childPath := unionChild(parentPath, name)

	found := false
	for _, b := range fs.table.All() {
		if !fs.table.Exists(b, childPath) {
			continue
		}
		found = true

		if b.ReadOnly() {
			if !fs.opts.COW {
				return vfs.ErrNoAccess
			}
			if fs.table.RWAtOrAbove(b.Index) == nil {
				return vfs.ErrReadOnly
			}
			if err := fs.placeWhiteout(parentPath, name, b.Index); err != nil {
				return err
			}
			continue
		}

		if err := fs.removeBranchDir(b, childPath); err != nil {
			return err
		}
	}

	if !found {
		return vfs.ErrNotFound
	}
	fs.resolver.Invalidate(path)
	return nil
}

// removeBranchDir removes a directory physically present on branch b.
// A directory whose union view is empty may still hold leftover
// whiteout marker files for children deleted earlier on this same
// branch; those are cleared first so the plain os.Remove below does
// not fail with ENOTEMPTY.
func (fs *FS) removeBranchDir(b *branch.Branch, childPath string) error {
	hostPath := fs.table.HostPath(b, childPath)
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return err
	}

	cache := fs.whiteoutCache(b)
	for _, e := range entries {
		if !whiteout.IsMarker(e.Name()) {
			continue // unexpected given an empty union view; os.Remove below will report it
		}
		if err := os.Remove(filepath.Join(hostPath, e.Name())); err != nil {
			return err
		}
		cache.Remove(unionChild(childPath, whiteout.MaskedName(e.Name())))
	}
	return os.Remove(hostPath)
}

// requireRWResolved resolves path for a metadata-mutating op and fails
// with EROFS when it is RO-resident instead of auto-promoting. Used by
// Chmod/Chown/Utimens: a pure metadata mutation never copies a file up,
// the caller decides whether to promote first. Truncate is deliberately
// not routed through this helper; it is a data mutation and promotes
// through FS.Open's write-mode path.
func (fs *FS) requireRWResolved(path string) (*branch.Branch, string, error) {
	res, err := fs.resolver.Resolve(path, resolve.Write)
	if err != nil {
		return nil, "", err
	}
	if !res.Found() || res.Branch == nil {
		return nil, "", vfs.ErrNotFound
	}
	if res.Branch.ReadOnly() {
		return nil, "", vfs.ErrReadOnly
	}
	return res.Branch, res.Relpath, nil
}

// Chmod changes mode bits on an RW-resident entity; EROFS otherwise.
func (fs *FS) Chmod(path string, mode uint32) error {
	fs.log("unionfs_chmod", path)
	b, relpath, err := fs.requireRWResolved(path)
	if err != nil {
		return err
	}
	return os.Chmod(fs.table.HostPath(b, relpath), os.FileMode(mode&0o7777))
}

// Chown changes ownership on an RW-resident entity; EROFS otherwise.
func (fs *FS) Chown(path string, uid, gid uint32) error {
	fs.log("unionfs_chown", path)
	b, relpath, err := fs.requireRWResolved(path)
	if err != nil {
		return err
	}
	return os.Lchown(fs.table.HostPath(b, relpath), int(uid), int(gid))
}

// Utimens sets timestamps on an RW-resident entity; EROFS otherwise.
func (fs *FS) Utimens(path string, atime, mtime int64) error {
	fs.log("unionfs_utimens", path)
	b, relpath, err := fs.requireRWResolved(path)
	if err != nil {
		return err
	}
	hostPath := fs.table.HostPath(b, relpath)
	return os.Chtimes(hostPath, unixTime(atime), unixTime(mtime))
}

// Truncate operates on the RW copy, promoting if needed, via a
// short-lived handle so the promotion logic lives in one place.
func (fs *FS) Truncate(path string, size int64) error {
	fs.log("unionfs_truncate", path)

	h, err := fs.Open(path, vfs.ORDWR)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.Truncate(size)
}

// Symlink creates the link on the topmost RW branch; EACCES when there
// is none.
func (fs *FS) Symlink(target, path string) error {
	fs.log("unionfs_symlink", path)

	parentPath, name := vfs.Parent(path)
	dst, err := fs.resolveCreateTarget(parentPath)
	if err != nil {
		return err
	}

	relpath := unionChild(parentPath, name)
	if err := os.Symlink(target, fs.table.HostPath(dst, relpath)); err != nil {
		return err
	}
	fs.clearWhiteout(parentPath, name)
	fs.resolver.Invalidate(path)
	return nil
}

// Mkfifo creates a named pipe on the topmost RW branch.
func (fs *FS) Mkfifo(path string, mode uint32) error {
	fs.log("unionfs_mkfifo", path)
	return fs.mknodCommon(path, vfs.ModeFIFO|(mode&0o777), 0)
}

// Mknod creates a device or socket node on the topmost RW branch.
func (fs *FS) Mknod(path string, mode uint32, dev uint64) error {
	fs.log("unionfs_mknod", path)
	return fs.mknodCommon(path, mode, dev)
}

func (fs *FS) mknodCommon(path string, mode uint32, dev uint64) error {
	parentPath, name := vfs.Parent(path)
	dst, err := fs.resolveCreateTarget(parentPath)
	if err != nil {
		return err
	}

	relpath := unionChild(parentPath, name)
	hostPath := fs.table.HostPath(dst, relpath)

	var mknodErr error
	switch mode & vfs.ModeTypeMask {
	case vfs.ModeFIFO:
		mknodErr = syscall.Mkfifo(hostPath, mode&0o777)
	default:
		mknodErr = unix.Mknod(hostPath, mode, int(dev))
	}
	if mknodErr != nil {
		return mknodErr
	}

	fs.clearWhiteout(parentPath, name)
	fs.resolver.Invalidate(path)
	return nil
}

// Link creates a hard link within the union. The source is promoted
// first if RO-resident; both endpoints must land on the same branch,
// since a host hard link cannot span two backing directories.
func (fs *FS) Link(oldpath, newpath string) error {
	fs.log("unionfs_link", oldpath)

	srcBranch, srcRel, err := fs.requireRWResolved(oldpath)
	if err != nil {
		if err == vfs.ErrReadOnly {
			res, rerr := fs.resolver.Resolve(oldpath, resolve.Write)
			if rerr != nil {
				return rerr
			}
			if !res.Found() || res.Branch == nil {
				return vfs.ErrNotFound
			}
			if !fs.opts.COW {
				return vfs.ErrReadOnly
			}
			var promoted *branch.Branch
			if perr := fs.locks.WithLock(oldpath, func(string) error {
				var err error
				promoted, err = fs.cow.Promote(res.Branch, res.Relpath)
				return err
			}); perr != nil {
				return perr
			}
			fs.resolver.Invalidate(oldpath)
			srcBranch, srcRel = promoted, res.Relpath
		} else {
			return err
		}
	}

	parentPath, name := vfs.Parent(newpath)
	dst, err := fs.resolveCreateTarget(parentPath)
	if err != nil {
		return err
	}
	if dst != srcBranch {
		return vfs.ErrCrossBranch
	}

	relpath := unionChild(parentPath, name)
	if err := os.Link(fs.table.HostPath(srcBranch, srcRel), fs.table.HostPath(dst, relpath)); err != nil {
		return err
	}
	fs.clearWhiteout(parentPath, name)
	fs.resolver.Invalidate(newpath)
	return nil
}
