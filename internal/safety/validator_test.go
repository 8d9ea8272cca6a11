package safety

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestProtectedPaths(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/", true},
		{"/etc", true},
		{"/etc/ssh/sshd_config", true},
		{"/usr/local/bin", true},
		{"/proc/1", true},
		{"/var/lib/dircrawl/runs.db", true},
		{"/etc/dircrawl/config.yaml", true},
		{"/srv/data", false},
		{"/tmp/cache", false},
		{"/var/lib/other", false},
		{"/etcetera", false},
	}

	protected := defaultProtected([]string{"/srv/data/keep"})
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsProtectedPath(tt.path, protected); got != tt.expected {
				t.Errorf("IsProtectedPath(%s) = %v, expected %v", tt.path, got, tt.expected)
			}
		})
	}

	if !IsProtectedPath("/srv/data/keep/file", protected) {
		t.Error("extra protected path not honored")
	}
}

func TestTraversalDetection(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/tmp/file.txt", false},
		{"/tmp/../etc/passwd", true},
		{"../etc", true},
		{"/tmp/..", true},
		{"/tmp/./file", false},
		{"/tmp/..hidden", false},
	}

	for _, tt := range tests {
		if got := DetectTraversal(tt.path); got != tt.expected {
			t.Errorf("DetectTraversal(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestNewValidatorRejectsProtectedRoot(t *testing.T) {
	for _, root := range []string{"/", "/etc", "/usr/share", "  "} {
		if _, err := NewValidator(root, nil); err == nil {
			t.Errorf("NewValidator(%q) expected error", root)
		} else if !IsViolation(err) {
			t.Errorf("NewValidator(%q) error %v is not a safety violation", root, err)
		}
	}
}

func TestValidateDeleteTarget(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{root, outside} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	inside := filepath.Join(root, "old.log")
	if err := os.WriteFile(inside, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	outsideFile := filepath.Join(outside, "keep.txt")
	if err := os.WriteFile(outsideFile, []byte("keep"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A link to a file outside may be removed; a linked directory may not be
	// descended into.
	fileLink := filepath.Join(root, "file_link")
	if err := os.Symlink(outsideFile, fileLink); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	dirLink := filepath.Join(root, "dir_link")
	if err := os.Symlink(outside, dirLink); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	v, err := NewValidator(root, nil)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		expect error
	}{
		{"file inside root", inside, nil},
		{"missing file inside root", filepath.Join(root, "gone", "x"), nil},
		{"link inside root", fileLink, nil},
		{"through linked directory", filepath.Join(dirLink, "keep.txt"), ErrSymlinkEscape},
		{"outside root", outsideFile, ErrOutsideRoot},
		{"root itself", root, ErrRootTarget},
		{"protected", "/etc/passwd", ErrProtectedPath},
		{"cleaned traversal", filepath.Join(root, "..", "outside", "keep.txt"), ErrOutsideRoot},
		{"raw traversal", root + "/../outside/keep.txt", ErrTraversal},
		{"empty", "", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDeleteTarget(tt.path)
			if tt.expect == nil {
				if err != nil {
					t.Errorf("ValidateDeleteTarget(%s) unexpected error: %v", tt.path, err)
				}
				return
			}
			if !errors.Is(err, tt.expect) {
				t.Errorf("ValidateDeleteTarget(%s) = %v, expected %v", tt.path, err, tt.expect)
			}
			if !IsViolation(err) {
				t.Errorf("%v not reported as violation", err)
			}
		})
	}
}

func TestAllowRoot(t *testing.T) {
	root := t.TempDir()
	v, err := NewValidator(root, nil)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	v.AllowRoot = true
	if err := v.ValidateDeleteTarget(root); err != nil {
		t.Errorf("root delete with AllowRoot: %v", err)
	}
}

func TestHasPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		expected     bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a/b", "/tmp/a", true},
		{"/tmp/ab", "/tmp/a", false},
		{"/tmp", "/", false},
		{"/", "/", true},
	}
	for _, tt := range tests {
		if got := hasPathPrefix(tt.path, tt.prefix); got != tt.expected {
			t.Errorf("hasPathPrefix(%s, %s) = %v, expected %v", tt.path, tt.prefix, got, tt.expected)
		}
	}
}
