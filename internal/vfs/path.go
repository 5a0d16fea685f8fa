package vfs

import (
	"path/filepath"
	"strings"
)

// SplitPath decomposes a union path into its non-empty components,
// cleaning "." and ".." segments and a leading slash. "/" splits to nil.
func SplitPath(path string) []string {
	path = filepath.Clean("/" + path)
	if path == "/" {
		return nil
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")

	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" && p != "." {
			result = append(result, p)
		}
	}
	return result
}

// JoinPath re-assembles components produced by SplitPath into a
// "/"-rooted union path.
func JoinPath(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

// Parent returns the parent union path and the final component name.
// Parent("/") is undefined; callers must not call it on the root.
func Parent(path string) (parentPath, name string) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return "/", ""
	}
	name = parts[len(parts)-1]
	parentPath = JoinPath(parts[:len(parts)-1])
	return parentPath, name
}
