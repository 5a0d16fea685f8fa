package branch

import (
	"os"
	"sync"

	"unionfs/internal/vfs"
)

// File wraps an *os.File opened against a branch's host path, adapting
// it to pread/pwrite semantics (reads and writes at an explicit offset
// without touching the descriptor's position) the way FUSE file handles
// are used.
type File struct {
	f  *os.File
	mu sync.Mutex
}

// NewFile wraps an already-open host file.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (f *File) ReadAt(dest []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.ReadAt(dest, offset)
}

func (f *File) WriteAt(data []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.WriteAt(data, offset)
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Sync()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

func (f *File) Stat() (*vfs.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, err := f.f.Stat()
	if err != nil {
		return nil, err
	}
	return vfs.FileInfoToStats(info), nil
}

func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Truncate(size)
}

func (f *File) Fd() uintptr {
	return f.f.Fd()
}
