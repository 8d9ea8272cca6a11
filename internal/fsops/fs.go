package fsops

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// FS binds a filesystem to the deleter used for destructive calls.
type FS struct {
	fs      afero.Fs
	deleter Deleter
}

// NewFS returns an FS over fs. A nil deleter removes straight from fs.
func NewFS(fs afero.Fs, deleter Deleter) *FS {
	if deleter == nil {
		deleter = AferoDeleter{Fs: fs}
	}
	return &FS{fs: fs, deleter: deleter}
}

// NewOSFS returns an FS over the host filesystem.
func NewOSFS() *FS {
	return NewFS(afero.NewOsFs(), nil)
}

// Afero exposes the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

func (f *FS) Dir(path string) Directory {
	return Directory{fsys: f, path: filepath.Clean(path)}
}

func (f *FS) File(path string) File {
	return File{fsys: f, path: filepath.Clean(path)}
}

// Directory is a handle to a directory path. It holds no open descriptor.
type Directory struct {
	fsys *FS
	path string
}

func (d Directory) Name() string     { return filepath.Base(d.path) }
func (d Directory) FullName() string { return d.path }

func (d Directory) Exists() (bool, error) {
	return afero.DirExists(d.fsys.fs, d.path)
}

// Files lists the non-directory entries whose names match p, sorted by name.
// Symlinks are listed as files and never followed.
func (d Directory) Files(p *Pattern) ([]File, error) {
	infos, err := d.readDir()
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !p.Match(info.Name()) {
			continue
		}
		files = append(files, File{fsys: d.fsys, path: filepath.Join(d.path, info.Name())})
	}
	return files, nil
}

// Directories lists the subdirectories whose names match p, sorted by name.
func (d Directory) Directories(p *Pattern) ([]Directory, error) {
	infos, err := d.readDir()
	if err != nil {
		return nil, err
	}
	dirs := make([]Directory, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() || !p.Match(info.Name()) {
			continue
		}
		dirs = append(dirs, Directory{fsys: d.fsys, path: filepath.Join(d.path, info.Name())})
	}
	return dirs, nil
}

// Delete removes the directory. It must be empty.
func (d Directory) Delete() error {
	return d.fsys.deleter.Remove(d.path)
}

func (d Directory) readDir() ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(d.fsys.fs, d.path)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})
	return infos, nil
}

// File is a handle to a file path.
type File struct {
	fsys *FS
	path string
}

func (f File) Name() string     { return filepath.Base(f.path) }
func (f File) FullName() string { return f.path }

func (f File) Exists() (bool, error) {
	return afero.Exists(f.fsys.fs, f.path)
}

func (f File) Size() (int64, error) {
	info, err := f.lstat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f File) ModTime() (time.Time, error) {
	info, err := f.lstat()
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (f File) Delete() error {
	return f.fsys.deleter.Remove(f.path)
}

// lstat reports on the entry itself so a symlink is never followed.
func (f File) lstat() (os.FileInfo, error) {
	if l, ok := f.fsys.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(f.path)
		return info, err
	}
	return f.fsys.fs.Stat(f.path)
}
