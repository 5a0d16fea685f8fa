package unionfs

import (
	"os"

	"unionfs/internal/resolve"
	"unionfs/internal/vfs"
	"unionfs/internal/whiteout"
)

// Readdir merges the directory listing across every branch that
// contains it, scanning in ascending index order and maintaining
// `emitted` and `masked` sets so each name surfaces at most once and
// whited-out names never surface at all.
func (fs *FS) Readdir(path string) ([]vfs.DirEntry, error) {
	fs.log("unionfs_readdir", path)

	var dirRelpath string
	if path != "/" {
		res, err := fs.resolver.Resolve(path, resolve.Read)
		if err != nil {
			return nil, err
		}
		if !res.Found() {
			return nil, vfs.ErrNotFound
		}
		dirRelpath = res.Relpath
	} else {
		dirRelpath = "/"
	}

	emitted := make(map[string]vfs.DirEntry)
	masked := make(map[string]bool)

	for _, b := range fs.table.All() {
		hostDir := fs.table.HostPath(b, dirRelpath)
		entries, err := os.ReadDir(hostDir)
		if err != nil {
			continue // not present on this branch, or not a directory here
		}

		for _, e := range entries {
			name := e.Name()

			if whiteout.IsMarker(name) {
				masked[whiteout.MaskedName(name)] = true
				continue
			}
			if _, ok := emitted[name]; ok || masked[name] {
				continue
			}

			info, err := e.Info()
			if err != nil {
				continue
			}
			st := vfs.FileInfoToStats(info)
			emitted[name] = vfs.DirEntry{Name: name, Mode: st.Mode, Ino: st.Ino}
		}
	}

	if path == "/" && fs.statsEnabled() {
		if _, ok := emitted[StatsFileName]; !ok {
			emitted[StatsFileName] = vfs.DirEntry{Name: StatsFileName, Mode: vfs.ModeRegular | 0o444}
		}
	}

	out := make([]vfs.DirEntry, 0, len(emitted))
	for _, e := range emitted {
		out = append(out, e)
	}
	return out, nil
}
