package vfs

import (
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"/", nil},
		{"", nil},
		{"/a", []string{"a"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"a/b/../c", []string{"a", "c"}},
		{"/a//b", []string{"a", "b"}},
	}
	for _, tc := range cases {
		got := SplitPath(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitPath(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestJoinPath(t *testing.T) {
	if got := JoinPath(nil); got != "/" {
		t.Errorf("JoinPath(nil) = %q, want /", got)
	}
	if got := JoinPath([]string{"a", "b"}); got != "/a/b" {
		t.Errorf("JoinPath = %q, want /a/b", got)
	}
}

func TestParent(t *testing.T) {
	cases := []struct {
		in         string
		wantParent string
		wantName   string
	}{
		{"/a", "/", "a"},
		{"/a/b/c", "/a/b", "c"},
	}
	for _, tc := range cases {
		parent, name := Parent(tc.in)
		if parent != tc.wantParent || name != tc.wantName {
			t.Errorf("Parent(%q) = (%q, %q), want (%q, %q)", tc.in, parent, name, tc.wantParent, tc.wantName)
		}
	}
}
