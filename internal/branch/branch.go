// Package branch implements the union's Branch Table: an ordered,
// immutable-after-mount list of backing host directories, each read-only
// or read-write, plus the host-filesystem primitives (stat, open, mkdir,
// ...) scoped to one branch's root.
package branch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"unionfs/internal/vfs"
)

// Mode is a branch's read/write policy.
type Mode int

const (
	RO Mode = iota
	RW
)

func (m Mode) String() string {
	if m == RW {
		return "RW"
	}
	return "RO"
}

// ParseMode parses the case-insensitive "RO"/"RW" tokens of the
// branch_spec grammar.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "RO":
		return RO, nil
	case "RW":
		return RW, nil
	default:
		return 0, fmt.Errorf("unionfs: unknown branch mode %q (want RO or RW)", s)
	}
}

// Branch is one entry in the Branch Table.
type Branch struct {
	Index int    // 0 = topmost
	Root  string // absolute path to the backing directory
	Mode  Mode
}

func (b *Branch) ReadOnly() bool { return b.Mode == RO }

// hostPath joins a union-relative path (always "/"-rooted) with this
// branch's root, cleaning but never allowing escape above Root.
func (b *Branch) hostPath(relpath string) string {
	clean := filepath.Clean("/" + relpath)
	if clean == "/" {
		return b.Root
	}
	return filepath.Join(b.Root, clean)
}

// Table is the process-wide, read-only-after-mount list of branches,
// scanned in ascending index order by every resolving operation.
type Table struct {
	branches []*Branch
}

// NewTable builds a Table from an ordered branch list. The list is kept
// as given; TopmostRW and RWAtOrAbove scan it on every call.
func NewTable(branches []*Branch) *Table {
	return &Table{branches: branches}
}

func (t *Table) Len() int { return len(t.branches) }

func (t *Table) At(i int) *Branch {
	if i < 0 || i >= len(t.branches) {
		return nil
	}
	return t.branches[i]
}

// All returns the branches in ascending (topmost-first) order. The
// returned slice must not be mutated.
func (t *Table) All() []*Branch {
	return t.branches
}

// TopmostRW returns the lowest-indexed RW branch, or nil if there is
// none.
func (t *Table) TopmostRW() *Branch {
	for _, b := range t.branches {
		if b.Mode == RW {
			return b
		}
	}
	return nil
}

// RWAtOrAbove returns the RW branch with the smallest index that is at
// most maxIndex, the promotion-target rule: only an RW branch at or
// above the source may receive a copy or a whiteout. Nil when none
// qualifies.
func (t *Table) RWAtOrAbove(maxIndex int) *Branch {
	for _, b := range t.branches {
		if b.Index > maxIndex {
			return nil
		}
		if b.Mode == RW {
			return b
		}
	}
	return nil
}

// HostPath returns the absolute host path for relpath on branch b.
func (t *Table) HostPath(b *Branch, relpath string) string {
	return b.hostPath(relpath)
}

// Lstat stats relpath directly on branch b without resolution.
func (t *Table) Lstat(b *Branch, relpath string) (*vfs.Stats, error) {
	info, err := os.Lstat(b.hostPath(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.ErrNotFound
		}
		return nil, err
	}
	return vfs.FileInfoToStats(info), nil
}

// Exists reports whether relpath exists on branch b (any type),
// without following symlinks.
func (t *Table) Exists(b *Branch, relpath string) bool {
	_, err := os.Lstat(b.hostPath(relpath))
	return err == nil
}
