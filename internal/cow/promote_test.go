package cow

import (
	"os"
	"path/filepath"
	"testing"

	"unionfs/internal/branch"
)

func TestPromoteRegularFile(t *testing.T) {
	ro, rw := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(ro, "f.txt"), []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}

	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	rwB := &branch.Branch{Index: 1, Root: rw, Mode: branch.RW}
	table := branch.NewTable([]*branch.Branch{roB, rwB})
	engine := New(table)

	target, err := engine.Promote(roB, "/f.txt")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if target != rwB {
		t.Fatalf("Promote target = %v, want rw branch", target)
	}

	data, err := os.ReadFile(filepath.Join(rw, "f.txt"))
	if err != nil {
		t.Fatalf("promoted file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("promoted content = %q, want hello", data)
	}

	info, err := os.Stat(filepath.Join(rw, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("promoted mode = %o, want 640", info.Mode().Perm())
	}
}

func TestPromoteMaterializesParents(t *testing.T) {
	ro, rw := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(ro, "a/b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ro, "a/b/f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	rwB := &branch.Branch{Index: 1, Root: rw, Mode: branch.RW}
	table := branch.NewTable([]*branch.Branch{roB, rwB})
	engine := New(table)

	if _, err := engine.Promote(roB, "/a/b/f.txt"); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rw, "a", "b", "f.txt")); err != nil {
		t.Errorf("ancestor directories not materialized: %v", err)
	}
}

func TestPromoteIdempotent(t *testing.T) {
	ro, rw := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(ro, "f.txt"), []byte("orig"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rw, "f.txt"), []byte("already-here"), 0o644); err != nil {
		t.Fatal(err)
	}

	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	rwB := &branch.Branch{Index: 1, Root: rw, Mode: branch.RW}
	table := branch.NewTable([]*branch.Branch{roB, rwB})
	engine := New(table)

	if _, err := engine.Promote(roB, "/f.txt"); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(rw, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "already-here" {
		t.Errorf("idempotent Promote overwrote existing destination: got %q", data)
	}
}

func TestPromoteDirectoryPlaceholder(t *testing.T) {
	ro, rw := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(ro, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	rwB := &branch.Branch{Index: 1, Root: rw, Mode: branch.RW}
	table := branch.NewTable([]*branch.Branch{roB, rwB})
	engine := New(table)

	if _, err := engine.Promote(roB, "/dir"); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	info, err := os.Stat(filepath.Join(rw, "dir"))
	if err != nil {
		t.Fatalf("directory placeholder not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("promoted dir entry is not a directory")
	}
}

func TestPromoteSymlink(t *testing.T) {
	ro, rw := t.TempDir(), t.TempDir()
	if err := os.Symlink("target", filepath.Join(ro, "link")); err != nil {
		t.Fatal(err)
	}

	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	rwB := &branch.Branch{Index: 1, Root: rw, Mode: branch.RW}
	table := branch.NewTable([]*branch.Branch{roB, rwB})
	engine := New(table)

	if _, err := engine.Promote(roB, "/link"); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	got, err := os.Readlink(filepath.Join(rw, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "target" {
		t.Errorf("promoted symlink target = %q, want target", got)
	}
}

func TestPromoteNoRWBranch(t *testing.T) {
	ro := t.TempDir()
	if err := os.WriteFile(filepath.Join(ro, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	roB := &branch.Branch{Index: 0, Root: ro, Mode: branch.RO}
	table := branch.NewTable([]*branch.Branch{roB})
	engine := New(table)

	if _, err := engine.Promote(roB, "/f.txt"); err == nil {
		t.Error("Promote with no RW branch = nil error, want error")
	}
}
