// Package unionfs is the core of the union filesystem: the operation
// dispatcher, rename semantics, readdir merging and the stats endpoint,
// built on the branch table, path resolver, whiteout manager and COW
// engine. FS is the facade a FUSE adapter (internal/fusefs) or any
// other frontend drives.
package unionfs

import (
	"syscall"

	"unionfs/internal/branch"
	"unionfs/internal/cow"
	"unionfs/internal/debuglog"
	"unionfs/internal/lock"
	"unionfs/internal/resolve"
	"unionfs/internal/statsdb"
	"unionfs/internal/vfs"
	"unionfs/internal/whiteout"
)

// FS is the union filesystem: every dispatcher operation is a method on
// this type.
type FS struct {
	table     *branch.Table
	resolver  *resolve.Resolver
	whiteouts map[int]*whiteout.Cache
	cow       *cow.Engine
	locks     *lock.Registry
	logger    *debuglog.Logger
	opts      Options
	counters  *counters
	statsDB   *statsdb.Store
}

// New mounts the given branches under the given options: it scans each
// branch for pre-existing whiteout markers (whiteouts created afterward
// are tracked incrementally) and wires up the resolver, COW engine and
// per-path lock registry. The branch table is immutable from here on.
func New(branches []*branch.Branch, opts Options) (*FS, error) {
	table := branch.NewTable(branches)

	whiteouts := make(map[int]*whiteout.Cache, len(branches))
	for _, b := range branches {
		c, err := whiteout.ScanBranch(b.Root)
		if err != nil {
			return nil, err
		}
		whiteouts[b.Index] = c
	}

	resolver, err := resolve.New(table, whiteouts, opts.ResolutionCacheSize)
	if err != nil {
		return nil, err
	}

	var statsDB *statsdb.Store
	if opts.StatsDBPath != "" {
		statsDB, err = statsdb.Open(opts.StatsDBPath)
		if err != nil {
			return nil, err
		}
	}

	logger := debuglog.New()
	if opts.DebugFile != "" {
		if err := logger.SetFile(opts.DebugFile); err != nil {
			return nil, err
		}
	}

	return &FS{
		table:     table,
		resolver:  resolver,
		whiteouts: whiteouts,
		cow:       cow.New(table),
		locks:     lock.NewRegistry(),
		logger:    logger,
		opts:      opts,
		counters:  newCounters(statsDB),
		statsDB:   statsDB,
	}, nil
}

// Logger exposes the debug logger so the control channel / CLI can
// toggle it.
func (fs *FS) Logger() *debuglog.Logger { return fs.logger }

// Close releases the optional durable stats store and debug log file.
func (fs *FS) Close() error {
	if fs.statsDB != nil {
		_ = fs.statsDB.Close()
	}
	return fs.logger.Close()
}

func (fs *FS) log(op, path string) {
	fs.counters.incr(op)
	fs.logger.Op(op, path)
}

// whiteoutCache returns b's whiteout cache, creating an empty one if
// somehow missing (never happens after New, since every branch is
// scanned at mount).
func (fs *FS) whiteoutCache(b *branch.Branch) *whiteout.Cache {
	if c, ok := fs.whiteouts[b.Index]; ok {
		return c
	}
	c := whiteout.NewCache()
	fs.whiteouts[b.Index] = c
	return c
}

// placeWhiteout creates a whiteout for name in parentPath, choosing the
// RW branch that is topmost among branches with index <= maxIndex (the
// branch the masked target resolved to), so the marker shadows the
// target.
func (fs *FS) placeWhiteout(parentPath, name string, maxIndex int) error {
	target := fs.table.RWAtOrAbove(maxIndex)
	if target == nil {
		return vfs.ErrReadOnly
	}
	if err := whiteout.Create(target.Root, parentPath, name); err != nil {
		return err
	}
	childPath := unionChild(parentPath, name)
	fs.whiteoutCache(target).Insert(childPath)
	fs.resolver.Invalidate(childPath)
	return nil
}

// clearWhiteout removes a whiteout for name in parentPath from whichever
// branch currently holds it (recreating a deleted name un-hides it).
func (fs *FS) clearWhiteout(parentPath, name string) {
	childPath := unionChild(parentPath, name)
	for _, b := range fs.table.All() {
		c := fs.whiteoutCache(b)
		if c.HasExact(childPath) {
			_ = whiteout.Clear(b.Root, parentPath, name)
			c.Remove(childPath)
		}
	}
	fs.resolver.Invalidate(childPath)
}

func unionChild(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// Statfs aggregates free/total across RW branches; RO branches
// contribute to the total but not the free count.
func (fs *FS) Statfs() (*vfs.FilesystemStats, error) {
	fs.log("unionfs_statfs", "/")

	var total vfs.FilesystemStats
	for _, b := range fs.table.All() {
		st, err := fs.statfsBranch(b)
		if err != nil {
			continue
		}
		if total.Bsize == 0 {
			total.Bsize = st.Bsize
			total.Namelen = st.Namelen
		}
		total.Blocks += st.Blocks
		total.Files += st.Files
		if b.Mode == branch.RW {
			total.Bfree += st.Bfree
			total.Bavail += st.Bavail
			total.Ffree += st.Ffree
		}
	}
	return &total, nil
}

func (fs *FS) statfsBranch(b *branch.Branch) (*vfs.FilesystemStats, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(b.Root, &st); err != nil {
		return nil, err
	}
	return &vfs.FilesystemStats{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Namelen: 255,
	}, nil
}

// statsEnabled reports whether the synthetic stats file should be
// visible: present in the root listing iff the stats option was
// supplied at mount.
func (fs *FS) statsEnabled() bool { return fs.opts.Stats }
