package fsops

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func newTree(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	mem := afero.NewMemMapFs()
	for p, content := range files {
		if err := mem.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := afero.WriteFile(mem, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return mem
}

func TestDirectoryEnumerationSorted(t *testing.T) {
	mem := newTree(t, map[string]string{
		"/root/b.txt":    "bb",
		"/root/a.txt":    "a",
		"/root/c.log":    "ccc",
		"/root/zz/x.txt": "x",
		"/root/aa/y.txt": "y",
		"/root/mm/z.txt": "z",
	})
	fsys := NewFS(mem, nil)
	root := fsys.Dir("/root/")

	if root.FullName() != "/root" {
		t.Errorf("FullName() = %s, expected /root", root.FullName())
	}

	files, err := root.Files(nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	if got := len(names); got != 3 || names[0] != "a.txt" || names[1] != "b.txt" || names[2] != "c.log" {
		t.Errorf("Files(nil) = %v", names)
	}

	txt, err := root.Files(CompilePattern("*.txt"))
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(txt) != 2 {
		t.Errorf("expected 2 txt files, got %d", len(txt))
	}

	dirs, err := root.Directories(nil)
	if err != nil {
		t.Fatalf("Directories: %v", err)
	}
	if len(dirs) != 3 || dirs[0].Name() != "aa" || dirs[2].Name() != "zz" {
		t.Errorf("Directories(nil) returned %d entries", len(dirs))
	}
}

func TestFileSizeAndDelete(t *testing.T) {
	mem := newTree(t, map[string]string{"/root/data.bin": "12345"})
	fsys := NewFS(mem, nil)
	f := fsys.File("/root/data.bin")

	size, err := f.Size()
	if err != nil || size != 5 {
		t.Fatalf("Size() = %d, %v", size, err)
	}
	if err := f.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err := f.Exists()
	if err != nil || exists {
		t.Errorf("file should be gone, exists=%v err=%v", exists, err)
	}
}

type rejectAll struct{}

func (rejectAll) ValidateDeleteTarget(string) error { return errors.New("nope") }

func TestGuardedDeleterBlocks(t *testing.T) {
	mem := newTree(t, map[string]string{"/root/keep.txt": "k"})
	fake := &FakeDeleter{}
	fsys := NewFS(mem, Guard(rejectAll{}, fake))

	if err := fsys.File("/root/keep.txt").Delete(); err == nil {
		t.Fatal("expected guarded delete to fail")
	}
	if len(fake.Calls) != 0 {
		t.Errorf("guard leaked calls: %v", fake.Calls)
	}
}
