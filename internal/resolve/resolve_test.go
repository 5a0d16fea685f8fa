package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"unionfs/internal/branch"
	"unionfs/internal/whiteout"
)

func mustWrite(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestResolver(t *testing.T, branches []*branch.Branch) *Resolver {
	t.Helper()
	table := branch.NewTable(branches)
	whiteouts := make(map[int]*whiteout.Cache, len(branches))
	for _, b := range branches {
		c, err := whiteout.ScanBranch(b.Root)
		if err != nil {
			t.Fatal(err)
		}
		whiteouts[b.Index] = c
	}
	r, err := New(table, whiteouts, 64)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestResolveAscendingOrderWins(t *testing.T) {
	upper, lower := t.TempDir(), t.TempDir()
	mustWrite(t, upper, "shared.txt")
	mustWrite(t, lower, "shared.txt")
	mustWrite(t, lower, "lower_only.txt")

	branches := []*branch.Branch{
		{Index: 0, Root: upper, Mode: branch.RW},
		{Index: 1, Root: lower, Mode: branch.RO},
	}
	r := newTestResolver(t, branches)

	res, err := r.Resolve("/shared.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found() || res.Branch.Index != 0 {
		t.Errorf("shared.txt resolved to branch %v, want branch 0 (topmost)", res.Branch)
	}

	res, err = r.Resolve("/lower_only.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found() || res.Branch.Index != 1 {
		t.Errorf("lower_only.txt resolved to %v, want branch 1", res.Branch)
	}
}

func TestResolveWhiteoutHides(t *testing.T) {
	upper, lower := t.TempDir(), t.TempDir()
	mustWrite(t, lower, "hidden.txt")
	if err := whiteout.Create(upper, "/", "hidden.txt"); err != nil {
		t.Fatal(err)
	}

	branches := []*branch.Branch{
		{Index: 0, Root: upper, Mode: branch.RW},
		{Index: 1, Root: lower, Mode: branch.RO},
	}
	r := newTestResolver(t, branches)

	res, err := r.Resolve("/hidden.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindWhitedOut {
		t.Errorf("Resolve(hidden.txt).Kind = %v, want KindWhitedOut", res.Kind)
	}
}

func TestResolveNotFound(t *testing.T) {
	root := t.TempDir()
	branches := []*branch.Branch{{Index: 0, Root: root, Mode: branch.RW}}
	r := newTestResolver(t, branches)

	res, err := r.Resolve("/nope.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound", res.Kind)
	}
}

func TestResolveRoot(t *testing.T) {
	root := t.TempDir()
	branches := []*branch.Branch{{Index: 0, Root: root, Mode: branch.RW}}
	r := newTestResolver(t, branches)

	res, err := r.Resolve("/", Read)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found() || res.Branch != nil {
		t.Errorf("Resolve(/) = %+v, want Found with nil Branch", res)
	}
}

func TestResolveMissingAncestorDir(t *testing.T) {
	root := t.TempDir()
	branches := []*branch.Branch{{Index: 0, Root: root, Mode: branch.RW}}
	r := newTestResolver(t, branches)

	res, err := r.Resolve("/nodir/file.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound (ancestor dir missing)", res.Kind)
	}
}

func TestResolveCacheInvalidate(t *testing.T) {
	root := t.TempDir()
	branches := []*branch.Branch{{Index: 0, Root: root, Mode: branch.RW}}
	r := newTestResolver(t, branches)

	if res, _ := r.Resolve("/f.txt", Read); res.Found() {
		t.Fatal("expected not found before creation")
	}
	mustWrite(t, root, "f.txt")
	// Cached negative result would otherwise persist.
	r.Invalidate("/f.txt")

	res, err := r.Resolve("/f.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found() {
		t.Error("Resolve after Invalidate still not found")
	}
}
