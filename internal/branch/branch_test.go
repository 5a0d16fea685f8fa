package branch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"ro", "RO", "Ro"} {
		if m, err := ParseMode(s); err != nil || m != RO {
			t.Errorf("ParseMode(%q) = %v, %v, want RO, nil", s, m, err)
		}
	}
	for _, s := range []string{"rw", "RW"} {
		if m, err := ParseMode(s); err != nil || m != RW {
			t.Errorf("ParseMode(%q) = %v, %v, want RW, nil", s, m, err)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Error("ParseMode(bogus) = nil error, want error")
	}
}

func TestTableOrderingHelpers(t *testing.T) {
	dirs := make([]string, 3)
	branches := make([]*Branch, 3)
	for i := range dirs {
		dirs[i] = t.TempDir()
	}
	branches[0] = &Branch{Index: 0, Root: dirs[0], Mode: RO}
	branches[1] = &Branch{Index: 1, Root: dirs[1], Mode: RO}
	branches[2] = &Branch{Index: 2, Root: dirs[2], Mode: RW}

	table := NewTable(branches)
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	if table.TopmostRW() != branches[2] {
		t.Errorf("TopmostRW() = %v, want branch 2", table.TopmostRW())
	}
	if got := table.RWAtOrAbove(0); got != nil {
		t.Errorf("RWAtOrAbove(0) = %v, want nil (no RW branch at or above index 0)", got)
	}
	if got := table.RWAtOrAbove(2); got != branches[2] {
		t.Errorf("RWAtOrAbove(2) = %v, want branch 2", got)
	}

	if err := os.WriteFile(filepath.Join(dirs[0], "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !table.Exists(branches[0], "/f") {
		t.Error("Exists(branch0, /f) = false, want true")
	}
	if table.Exists(branches[1], "/f") {
		t.Error("Exists(branch1, /f) = true, want false")
	}

	st, err := table.Lstat(branches[0], "/f")
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if !st.IsRegular() {
		t.Errorf("Lstat(/f).IsRegular() = false, want true (mode %o)", st.Mode)
	}
}

func TestHostPathNeverEscapesRoot(t *testing.T) {
	root := t.TempDir()
	b := &Branch{Index: 0, Root: root, Mode: RW}
	table := NewTable([]*Branch{b})
	if got := table.HostPath(b, "/../../etc/passwd"); got != filepath.Join(root, "etc/passwd") {
		t.Errorf("HostPath escaped root: %q", got)
	}
	if got := table.HostPath(b, "/"); got != root {
		t.Errorf("HostPath(/) = %q, want %q", got, root)
	}
}
