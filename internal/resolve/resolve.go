// Package resolve implements path resolution: given a union-relative
// path and an operation intent, it finds the branch that owns the
// entity, honoring whiteouts and overlay (ascending-index) order.
// Resolutions are memoized in an LRU cache keyed by canonical path and
// invalidated by the dispatcher on mutation.
package resolve

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"unionfs/internal/branch"
	"unionfs/internal/vfs"
	"unionfs/internal/whiteout"
)

// Intent documents why a path is being resolved. The walk itself does
// not branch on Intent; it is threaded through so callers and debug logging can
// record what the dispatcher was trying to do, and so that a future
// intent-sensitive rule (e.g. relaxed_permissions) has a place to hook
// in without changing the Resolve signature.
type Intent int

const (
	Read Intent = iota
	Write
	Create
	Delete
)

func (i Intent) String() string {
	switch i {
	case Read:
		return "read"
	case Write:
		return "write"
	case Create:
		return "create"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Kind discriminates the three resolution outcomes.
type Kind int

const (
	KindFound Kind = iota
	KindWhitedOut
	KindNotFound
)

// Resolution is the result of resolving one union path.
type Resolution struct {
	Kind    Kind
	Branch  *branch.Branch
	Relpath string // union path, also the branch-relative path (branch roots are joined, not rebased)
}

func (r Resolution) Found() bool { return r.Kind == KindFound }

// Resolver walks a branch.Table honoring per-branch whiteout caches.
type Resolver struct {
	table     *branch.Table
	whiteouts map[int]*whiteout.Cache
	cache     *lru.Cache[string, Resolution]
}

// New builds a Resolver. whiteouts maps branch index to that branch's
// whiteout cache (see whiteout.ScanBranch); cacheSize bounds the LRU
// resolution cache (0 disables caching).
func New(table *branch.Table, whiteouts map[int]*whiteout.Cache, cacheSize int) (*Resolver, error) {
	r := &Resolver{table: table, whiteouts: whiteouts}
	if cacheSize > 0 {
		c, err := lru.New[string, Resolution](cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

func (r *Resolver) whiteoutFor(idx int) *whiteout.Cache {
	if c, ok := r.whiteouts[idx]; ok {
		return c
	}
	return whiteout.NewCache()
}

// Invalidate drops path's cached resolution. Dispatcher mutations call
// this for every path they change.
func (r *Resolver) Invalidate(path string) {
	if r.cache != nil {
		r.cache.Remove(path)
	}
}

// PurgeAll drops every cached resolution. Used conservatively after
// directory-tree mutations (rename, recursive promotion) where
// enumerating every affected descendant is not worth the precision.
func (r *Resolver) PurgeAll() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// Resolve maps a union path to the branch that owns it, or reports it
// whited-out or absent.
func (r *Resolver) Resolve(path string, intent Intent) (Resolution, error) {
	parts := vfs.SplitPath(path)
	if len(parts) == 0 {
		// The root is always a merged directory across every branch; it
		// has no single owning branch.
		return Resolution{Kind: KindFound, Branch: nil, Relpath: "/"}, nil
	}

	norm := vfs.JoinPath(parts)
	if r.cache != nil {
		if cached, ok := r.cache.Get(norm); ok {
			return cached, nil
		}
	}

	res, err := r.resolveWalk(parts)
	if err == nil && r.cache != nil {
		r.cache.Add(norm, res)
	}
	return res, err
}

func (r *Resolver) resolveWalk(parts []string) (Resolution, error) {
	// Walk intermediate directory components. Each must resolve as a
	// directory on at least one non-shadowed branch before we continue;
	// a branch may mask everything below it with a whiteout, and a
	// non-directory entry masks directories of the same name on lower
	// branches (first match wins).
	for i := 1; i < len(parts); i++ {
		prefix := vfs.JoinPath(parts[:i])
		foundDir := false
		shadowed := false

		for _, b := range r.table.All() {
			if r.whiteoutFor(b.Index).HasExact(prefix) {
				shadowed = true
				break
			}
			st, err := r.table.Lstat(b, prefix)
			if err != nil {
				if errors.Is(err, vfs.ErrNotFound) {
					continue
				}
				return Resolution{}, err
			}
			if st.IsDir() {
				foundDir = true
				continue
			}
			// Non-directory entry: masks this name on lower branches.
			break
		}

		if shadowed || !foundDir {
			return Resolution{Kind: KindNotFound}, nil
		}
	}

	full := vfs.JoinPath(parts)
	shadowedBelow := false
	for _, b := range r.table.All() {
		if r.whiteoutFor(b.Index).HasExact(full) {
			shadowedBelow = true
			break
		}
		if r.table.Exists(b, full) {
			return Resolution{Kind: KindFound, Branch: b, Relpath: full}, nil
		}
	}

	if shadowedBelow {
		return Resolution{Kind: KindWhitedOut}, nil
	}
	return Resolution{Kind: KindNotFound}, nil
}
