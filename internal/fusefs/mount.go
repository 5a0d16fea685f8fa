package fusefs

import (
	"fmt"
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"unionfs/internal/unionfs"
)

// Mounter owns the FUSE server lifecycle for one mounted union.
type Mounter struct {
	server *fuse.Server
	path   string
}

// Mount mounts ufs at mountPath.
func Mount(mountPath string, ufs *unionfs.FS, autoUnmount, debug bool) (*Mounter, error) {
	root := &Node{path: "/", ufs: ufs}

	timeout := time.Second
	opts := &gofs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: false,
			Debug:      debug,
			FsName:     "unionfs",
			Name:       "unionfs",
		},
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
		UID:          0,
		GID:          0,
	}
	if autoUnmount {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "auto_unmount")
	}

	server, err := gofs.Mount(mountPath, root, opts)
	if err != nil {
		return nil, fmt.Errorf("unionfs: mount: %w", err)
	}

	return &Mounter{server: server, path: mountPath}, nil
}

// Unmount cleanly unmounts the filesystem.
func (m *Mounter) Unmount() error {
	return m.server.Unmount()
}

// Wait blocks until the filesystem is unmounted.
func (m *Mounter) Wait() {
	m.server.Wait()
}

// Path returns the mount path.
func (m *Mounter) Path() string {
	return m.path
}
