package unionfs

import (
	"os"
	"sync"

	"unionfs/internal/branch"
	"unionfs/internal/vfs"
)

// Handle is an open file within the union, pinned to the branch it was
// opened on. Write-mode opens of RO-resident files are promoted before
// the host open (see FS.Open), so a Handle normally starts out on a
// writable branch when writes are coming; ensureWritableLocked remains
// as the guard for any caller that writes through a handle it opened
// read-only.
type Handle struct {
	fs   *FS
	path string // union path, for promotion/lock/debug-log purposes

	mu     sync.Mutex
	branch *branch.Branch
	file   *branch.File
	flags  int
}

// openHandle wraps an already-open host file for path on b.
func (fs *FS) openHandle(path string, b *branch.Branch, f *os.File, flags int) *Handle {
	return &Handle{fs: fs, path: path, branch: b, file: branch.NewFile(f), flags: flags}
}

// Read serves a read at offset, always legal regardless of branch.
func (h *Handle) Read(dest []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.ReadAt(dest, offset)
}

// Write promotes to a RW branch first if the handle is still resident
// on an RO branch, then writes through to the copy.
func (h *Handle) Write(data []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureWritableLocked(); err != nil {
		return 0, err
	}
	return h.file.WriteAt(data, offset)
}

// Truncate promotes like Write does; unlike chmod/chown/utimens, a
// truncate is a data mutation and is allowed to trigger the copy.
func (h *Handle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureWritableLocked(); err != nil {
		return err
	}
	return h.file.Truncate(size)
}

func (h *Handle) ensureWritableLocked() error {
	if !h.branch.ReadOnly() {
		return nil
	}

	var promoted *branch.Branch
	err := h.fs.locks.WithLock(h.path, func(token string) error {
		var err error
		promoted, err = h.fs.cow.Promote(h.branch, pathRel(h.path))
		if err == nil {
			h.fs.logger.OpToken("unionfs_promote", h.path, token)
		}
		return err
	})
	if err != nil {
		return err
	}

	flags := h.flags &^ (vfs.OCREAT | vfs.OEXCL)
	hostPath := h.fs.table.HostPath(promoted, pathRel(h.path))
	newFile, err := os.OpenFile(hostPath, flags, 0)
	if err != nil {
		return err
	}

	_ = h.file.Close()
	h.file = branch.NewFile(newFile)
	h.branch = promoted
	h.fs.resolver.Invalidate(h.path)
	return nil
}

func (h *Handle) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Sync()
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

func (h *Handle) Stat() (*vfs.Stats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Stat()
}

// pathRel exists purely for readability at call sites below: a union
// path and its branch-relative path are the same string, since branch
// roots are joined rather than rebased (see internal/branch.hostPath).
func pathRel(path string) string { return path }
