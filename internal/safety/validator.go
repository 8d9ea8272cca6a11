// Package safety authorizes every destructive filesystem call a job makes.
package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrProtectedPath = errors.New("protected path")
	ErrOutsideRoot   = errors.New("outside job root")
	ErrRootTarget    = errors.New("job root itself")
	ErrTraversal     = errors.New("path traversal detected")
	ErrSymlinkEscape = errors.New("symlink escape detected")
)

// IsViolation reports whether err was produced by a failed safety check.
func IsViolation(err error) bool {
	for _, target := range []error{ErrInvalidPath, ErrProtectedPath, ErrOutsideRoot, ErrRootTarget, ErrTraversal, ErrSymlinkEscape} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Validator guards deletions below a single job root.
type Validator struct {
	Root      string
	Protected []string
	// AllowRoot permits deleting Root itself.
	AllowRoot bool

	resolvedRoot string
}

// NewValidator returns a validator for root. The root must not be a protected
// path.
func NewValidator(root string, extraProtected []string) (*Validator, error) {
	r, err := NormalizePath(root)
	if err != nil {
		return nil, err
	}
	v := &Validator{
		Root:         r,
		Protected:    defaultProtected(extraProtected),
		resolvedRoot: r,
	}
	if IsProtectedPath(r, v.Protected) {
		return nil, fmt.Errorf("%w: %s", ErrProtectedPath, r)
	}
	if resolved, err := filepath.EvalSymlinks(r); err == nil {
		v.resolvedRoot = filepath.Clean(resolved)
	}
	return v, nil
}

// ValidateDeleteTarget returns a wrapped sentinel when path must not be
// deleted.
func (v *Validator) ValidateDeleteTarget(path string) error {
	if DetectTraversal(path) {
		return fmt.Errorf("%w: %s", ErrTraversal, path)
	}
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if IsProtectedPath(p, v.Protected) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, p)
	}
	if !hasPathPrefix(p, v.Root) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	if p == v.Root {
		if !v.AllowRoot {
			return fmt.Errorf("%w: %s", ErrRootTarget, p)
		}
		return nil
	}

	// Removing a symlink only touches the link, so only the parent chain has
	// to stay inside the root.
	escaped, err := v.parentEscapes(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("resolve %s: %w", p, err)
	}
	if escaped {
		return fmt.Errorf("%w: %s", ErrSymlinkEscape, p)
	}
	return nil
}

func (v *Validator) parentEscapes(p string) (bool, error) {
	parent, err := filepath.EvalSymlinks(filepath.Dir(p))
	if err != nil {
		return false, err
	}
	parent = filepath.Clean(parent)
	return !hasPathPrefix(parent, v.resolvedRoot) && !hasPathPrefix(parent, v.Root), nil
}

// NormalizePath converts path to absolute, cleaned form.
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal reports a ".." segment in the raw input.
func DetectTraversal(raw string) bool {
	for _, part := range strings.Split(filepath.ToSlash(raw), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// IsProtectedPath reports whether path is, or lies below, a protected path.
// "/" protects only itself.
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)
	if p == string(os.PathSeparator) {
		return true
	}
	for _, prot := range protected {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == prefix
	}
	return path == prefix || strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/bin",
		"/boot",
		"/dev",
		"/etc",
		"/lib",
		"/lib64",
		"/proc",
		"/sbin",
		"/sys",
		"/usr",
		"/var/lib/dircrawl",
		"/etc/dircrawl",
	}
	return append(base, extra...)
}
