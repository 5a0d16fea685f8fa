package fusefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"unionfs/internal/unionfs"
	"unionfs/internal/vfs"
)

// FileHandle adapts unionfs.Handle to go-fuse's fs.FileHandle.
type FileHandle struct {
	h *unionfs.Handle
}

var (
	_ fs.FileReader    = (*FileHandle)(nil)
	_ fs.FileWriter    = (*FileHandle)(nil)
	_ fs.FileFlusher   = (*FileHandle)(nil)
	_ fs.FileFsyncer   = (*FileHandle)(nil)
	_ fs.FileGetattrer = (*FileHandle)(nil)
	_ fs.FileReleaser  = (*FileHandle)(nil)
)

func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := fh.h.Read(dest, off)
	if err != nil && n == 0 {
		return nil, vfs.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := fh.h.Write(data, off)
	if err != nil {
		return 0, vfs.ToErrno(err)
	}
	return uint32(n), 0
}

func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	return vfs.ToErrno(fh.h.Sync())
}

func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return vfs.ToErrno(fh.h.Sync())
}

func (fh *FileHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	st, err := fh.h.Stat()
	if err != nil {
		return vfs.ToErrno(err)
	}
	fillAttr(st, &out.Attr)
	return 0
}

func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	return vfs.ToErrno(fh.h.Close())
}

// StatsHandle serves the synthetic stats file's content, never
// writable, from an in-memory snapshot taken at Open time.
type StatsHandle struct {
	content []byte
}

var (
	_ fs.FileReader    = (*StatsHandle)(nil)
	_ fs.FileGetattrer = (*StatsHandle)(nil)
)

func (sh *StatsHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(sh.content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(sh.content)) {
		end = int64(len(sh.content))
	}
	return fuse.ReadResultData(sh.content[off:end]), 0
}

func (sh *StatsHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	out.Attr.Mode = vfs.ModeRegular | 0o444
	out.Attr.Size = uint64(len(sh.content))
	return 0
}
