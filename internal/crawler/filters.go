package crawler

import "dircrawl/internal/fsops"

// Filters narrows which directories are filter matches and which files are
// offered to OnFileHello. The zero value filters nothing.
type Filters struct {
	// DirectoriesOnly suppresses file iteration outside recursive deletes.
	DirectoriesOnly bool

	DirectoryFilter func(fsops.Directory) bool
	FileFilter      func(fsops.File) bool

	// Search patterns: '*' matches any run of characters, the rest is literal.
	DirectorySearchPattern string
	FileSearchPattern      string
}

func (f Filters) HasDirectoryFilter() bool {
	return f.DirectoryFilter != nil || f.DirectorySearchPattern != ""
}

func (f Filters) HasFileFilter() bool {
	return f.FileFilter != nil || f.FileSearchPattern != ""
}
