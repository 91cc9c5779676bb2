package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestConfine(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{"relative name", "run1", filepath.Join(rootResolved, "run1"), ""},
		{"nested relative", "a/b/c", filepath.Join(rootResolved, "a", "b", "c"), ""},
		{"root itself", ".", rootResolved, ""},
		{"absolute inside", filepath.Join(root, "x"), filepath.Join(rootResolved, "x"), ""},
		{"dot-dot escape", "../escape", "", "outside"},
		{"absolute outside", filepath.Join(other, "x"), "", "outside"},
		{"sibling prefix", root + "-evil", "", "outside"},
		{"null byte", "a\x00b", "", "null byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Confine(root, tt.path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Confine(%q) = %q, %v; want error containing %q", tt.path, got, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Confine(%q): %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Confine(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestConfine_EmptyRoot(t *testing.T) {
	if _, err := Confine("", "x"); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestConfine_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := Confine(root, "link/traces"); err == nil {
		t.Error("Confine should reject a symlink leading outside the root")
	}
}

func TestConfine_SymlinkInside(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	if err := os.MkdirAll(realDir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(realDir, filepath.Join(root, "alias")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := Confine(root, "alias/out"); err != nil {
		t.Errorf("symlink inside root rejected: %v", err)
	}
}

func TestRedactPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"home itself", home, "~"},
		{"under home", filepath.Join(home, ".neurosim", "runs.db"), "~/.neurosim/runs.db"},
		{"deep outside home", "/a/b/c/d/e.txt", ".../d/e.txt"},
		{"root file", "/file.txt", "file.txt"},
		{"just filename", "file.txt", "file.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactPath(tt.input); got != tt.want {
				t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/out", filepath.Join(home, "out")},
		{"/abs/out", "/abs/out"},
		{"rel/out", "rel/out"},
		{"~user/out", "~user/out"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportRoot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	got, err := ExportRoot()
	if err != nil {
		t.Fatalf("ExportRoot: %v", err)
	}
	if want := filepath.Join(home, ".neurosim", "exports"); got != want {
		t.Errorf("ExportRoot = %q, want %q", got, want)
	}
}
