// Package fusefs adapts internal/unionfs.FS onto the go-fuse v2 Inode
// API. The node layer stays thin: every operation translates its FUSE
// arguments, calls the matching FS method, and maps the error to an
// errno. There is no per-request cancellation; operations run to
// completion on their thread.
package fusefs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"unionfs/internal/ctl"
	"unionfs/internal/unionfs"
	"unionfs/internal/vfs"
)

var (
	attrTimeout  = time.Second
	entryTimeout = time.Second
)

// Node is one FUSE inode, identified by its union path.
type Node struct {
	fs.Inode
	path string
	ufs  *unionfs.FS
}

var (
	_ fs.InodeEmbedder  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeMknoder    = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeIoctler    = (*Node)(nil)
)

func (n *Node) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func newChild(ufs *unionfs.FS, path string, st *vfs.Stats, out *fuse.EntryOut) *Node {
	fillAttr(st, &out.Attr)
	out.SetAttrTimeout(attrTimeout)
	out.SetEntryTimeout(entryTimeout)
	return &Node{path: path, ufs: ufs}
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)

	if n.isStatsPath(childPath) {
		st := n.statsAttr()
		child := newChild(n.ufs, childPath, st, out)
		return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
	}

	st, err := n.ufs.Getattr(childPath)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, childPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
}

// isStatsPath reports whether path is the synthetic stats file and the
// stats option is enabled; the file exists in no backing branch.
func (n *Node) isStatsPath(path string) bool {
	return n.ufs.StatsEnabled() && path == unionfs.StatsPath()
}

func (n *Node) statsAttr() *vfs.Stats {
	return &vfs.Stats{Mode: vfs.ModeRegular | 0o444, Size: int64(len(n.ufs.ReadStats())), Nlink: 1}
}

func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if n.isStatsPath(n.path) {
		fillAttr(n.statsAttr(), &out.Attr)
		out.SetTimeout(attrTimeout)
		return 0
	}
	st, err := n.ufs.Getattr(n.path)
	if err != nil {
		return vfs.ToErrno(err)
	}
	fillAttr(st, &out.Attr)
	out.SetTimeout(attrTimeout)
	return 0
}

func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if err := n.ufs.Truncate(n.path, int64(sz)); err != nil {
			return vfs.ToErrno(err)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.ufs.Chmod(n.path, mode); err != nil {
			return vfs.ToErrno(err)
		}
	}
	if uid, ok := in.GetUID(); ok {
		gid := uint32(0)
		if g, ok := in.GetGID(); ok {
			gid = g
		}
		if err := n.ufs.Chown(n.path, uid, gid); err != nil {
			return vfs.ToErrno(err)
		}
	}
	if atime, ok := in.GetATime(); ok {
		mt := atime
		if m, ok := in.GetMTime(); ok {
			mt = m
		}
		if err := n.ufs.Utimens(n.path, atime.Unix(), mt.Unix()); err != nil {
			return vfs.ToErrno(err)
		}
	} else if mtime, ok := in.GetMTime(); ok {
		if err := n.ufs.Utimens(n.path, mtime.Unix(), mtime.Unix()); err != nil {
			return vfs.ToErrno(err)
		}
	}
	return n.Getattr(ctx, fh, out)
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.ufs.Readdir(n.path)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	result := make([]fuse.DirEntry, len(entries))
	for i, e := range entries {
		result[i] = fuse.DirEntry{Name: e.Name, Mode: e.Mode, Ino: e.Ino}
	}
	return fs.NewListDirStream(result), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.ufs.Mkdir(childPath, mode); err != nil {
		return nil, vfs.ToErrno(err)
	}
	st, err := n.ufs.Getattr(childPath)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, childPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return vfs.ToErrno(n.ufs.Rmdir(n.childPath(name)))
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	h, st, err := n.ufs.Create(childPath, mode)
	if err != nil {
		return nil, nil, 0, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, childPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), &FileHandle{h: h}, 0, 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return vfs.ToErrno(n.ufs.Unlink(n.childPath(name)))
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newParentNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	return vfs.ToErrno(n.ufs.Rename(n.childPath(name), newParentNode.childPath(newName)))
}

func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	targetNode, ok := target.(*Node)
	if !ok {
		return nil, syscall.EINVAL
	}
	newPath := n.childPath(name)
	if err := n.ufs.Link(targetNode.path, newPath); err != nil {
		return nil, vfs.ToErrno(err)
	}
	st, err := n.ufs.Getattr(newPath)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, newPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	linkPath := n.childPath(name)
	if err := n.ufs.Symlink(target, linkPath); err != nil {
		return nil, vfs.ToErrno(err)
	}
	st, err := n.ufs.Getattr(linkPath)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, linkPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
}

func (n *Node) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.ufs.Mknod(childPath, mode, uint64(dev)); err != nil {
		return nil, vfs.ToErrno(err)
	}
	st, err := n.ufs.Getattr(childPath)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	child := newChild(n.ufs, childPath, st, out)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), 0
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.ufs.Readlink(n.path)
	if err != nil {
		return nil, vfs.ToErrno(err)
	}
	return []byte(target), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.isStatsPath(n.path) {
		return &StatsHandle{content: n.ufs.ReadStats()}, 0, 0
	}
	h, err := n.ufs.Open(n.path, int(flags))
	if err != nil {
		return nil, 0, vfs.ToErrno(err)
	}
	return &FileHandle{h: h}, 0, 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st, err := n.ufs.Statfs()
	if err != nil {
		return vfs.ToErrno(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = st.Bsize
	out.NameLen = st.Namelen
	out.Frsize = st.Bsize
	return 0
}

// Access checks mode bits against the mount's fixed uid/gid (0, 0, the
// values Mount sets in fs.Options). The Inode API's NodeAccesser does
// not surface the caller's credentials, so per-caller uid/gid
// enforcement only means anything for a single-uid daemon;
// relaxed_permissions ignores the caller's identity entirely.
func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	return vfs.ToErrno(n.ufs.Access(n.path, mask, 0, 0))
}

// Ioctl serves the control channel the unionfsctl helper speaks:
// toggling debug logging and redirecting the debug log file on a live
// mount. Any other command number is ENOTTY.
func (n *Node) Ioctl(ctx context.Context, f fs.FileHandle, cmd uint32, arg uint64, input []byte, output []byte) (int32, syscall.Errno) {
	switch cmd {
	case ctl.CmdDebugOn:
		n.ufs.Logger().SetEnabled(true)
		return 0, 0
	case ctl.CmdDebugOff:
		n.ufs.Logger().SetEnabled(false)
		return 0, 0
	case ctl.CmdDebugPath:
		path := ctl.DecodePath(input)
		if path == "" {
			return 0, syscall.EINVAL
		}
		if err := n.ufs.Logger().SetFile(path); err != nil {
			return 0, vfs.ToErrno(err)
		}
		return 0, 0
	}
	return 0, syscall.ENOTTY
}

func fillAttr(st *vfs.Stats, attr *fuse.Attr) {
	attr.Ino = st.Ino
	attr.Mode = st.Mode
	attr.Nlink = st.Nlink
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Size = uint64(st.Size)
	attr.Atime = uint64(st.Atime)
	attr.Mtime = uint64(st.Mtime)
	attr.Ctime = uint64(st.Ctime)
	attr.Blksize = 4096
	attr.Blocks = (uint64(st.Size) + 511) / 512
}
