package unionfs

import (
	"os"

	"unionfs/internal/branch"
	"unionfs/internal/resolve"
	"unionfs/internal/vfs"
)

// pathMax mirrors Linux's PATH_MAX (limits.h); a rename whose resulting
// absolute host path exceeds it fails with ENAMETOOLONG.
const pathMax = 4096

// Rename moves oldpath to newpath. Both paths are locked in a fixed
// (lexical) order before any mutation, so that two concurrent renames
// that would otherwise lock oldpath/newpath in opposite orders cannot
// deadlock.
func (fs *FS) Rename(oldpath, newpath string) error {
	fs.log("unionfs_rename", oldpath)

	first, second := oldpath, newpath
	if newpath < oldpath {
		first, second = newpath, oldpath
	}

	return fs.locks.WithLock(first, func(string) error {
		return fs.locks.WithLock(second, func(string) error {
			return fs.renameLocked(oldpath, newpath)
		})
	})
}

func (fs *FS) renameLocked(oldpath, newpath string) error {
	srcParent, srcName := vfs.Parent(oldpath)
	dstParent, dstName := vfs.Parent(newpath)

	res, err := fs.resolver.Resolve(oldpath, resolve.Delete)
	if err != nil {
		return err
	}
	if !res.Found() || res.Branch == nil {
		return vfs.ErrNotFound
	}

	srcBranch := res.Branch
	srcSt, err := fs.table.Lstat(srcBranch, res.Relpath)
	if err != nil {
		return err
	}

	// src is RO-resident: promote it (recursively for directories) to
	// the topmost eligible RW branch, then perform the rename there.
	if srcBranch.ReadOnly() {
		if !fs.opts.COW {
			return vfs.ErrReadOnly
		}
		target := fs.table.RWAtOrAbove(srcBranch.Index)
		if target == nil {
			return vfs.ErrReadOnly
		}
		if err := fs.promoteRecursive(srcBranch, oldpath, srcSt); err != nil {
			return err
		}
		srcBranch = target
	}

	// Determine where the destination parent currently resolves, to
	// decide whether this rename is same-branch, needs EXDEV, or is
	// rescued by preserve_branch.
	var dstParentBranch *branch.Branch
	if dstParent != "/" {
		dstRes, err := fs.resolver.Resolve(dstParent, resolve.Create)
		if err != nil {
			return err
		}
		if dstRes.Found() {
			dstParentBranch = dstRes.Branch
		}
	}

	if dstParentBranch != nil && dstParentBranch != srcBranch && !fs.opts.PreserveBranch {
		return vfs.ErrCrossBranch
	}

	dstHostPath := fs.table.HostPath(srcBranch, newpath)
	if len(dstHostPath) > pathMax {
		return vfs.ErrNameTooLong
	}

	if err := fs.materializeCreateParents(srcBranch, dstParent); err != nil {
		return err
	}

	srcHostPath := fs.table.HostPath(srcBranch, oldpath)
	if err := os.Rename(srcHostPath, dstHostPath); err != nil {
		return err
	}

	fs.clearWhiteout(dstParent, dstName)
	fs.resolver.Invalidate(oldpath)
	fs.resolver.Invalidate(newpath)
	fs.resolver.PurgeAll() // a directory rename may move an entire resolved subtree

	// The vacated name may unmask a same-named entry on a lower branch;
	// the whiteout applies uniformly to the same-branch and the
	// promoted-then-moved cases.
	if fs.nameExistsBelow(srcBranch.Index, srcParent, srcName) {
		return fs.placeWhiteout(srcParent, srcName, srcBranch.Index)
	}
	return nil
}

// promoteRecursive promotes path (and, if it is a directory, every
// RO-resident descendant) to an RW branch. Uses an explicit work queue
// rather than recursion, so deep trees cannot exhaust the stack.
func (fs *FS) promoteRecursive(src *branch.Branch, path string, st *vfs.Stats) error {
	if !st.IsDir() {
		_, err := fs.cow.Promote(src, path)
		return err
	}

	type work struct {
		path   string
		branch *branch.Branch
	}
	queue := []work{{path: path, branch: src}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if _, err := fs.cow.Promote(item.branch, item.path); err != nil {
			return err
		}

		entries, err := fs.Readdir(item.path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name == StatsFileName && item.path == "/" {
				continue
			}
			childPath := unionChild(item.path, e.Name)
			res, err := fs.resolver.Resolve(childPath, resolve.Write)
			if err != nil {
				return err
			}
			if !res.Found() || res.Branch == nil {
				continue
			}
			if !res.Branch.ReadOnly() {
				continue
			}
			if e.IsDir() {
				queue = append(queue, work{path: childPath, branch: res.Branch})
				continue
			}
			if _, err := fs.cow.Promote(res.Branch, childPath); err != nil {
				return err
			}
		}
	}
	return nil
}
