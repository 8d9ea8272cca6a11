package crawler

import "dircrawl/internal/fsops"

// NewDirectoryHunter returns a crawler that deletes, with their contents, all
// directories whose name is one of names. Only directories are enumerated
// until a match is found. A root that matches is emptied but kept. Hooks passed through opts run after the hunter's own;
// a WithFilters option replaces the hunter's filters.
func NewDirectoryHunter(fsys *fsops.FS, root string, names []string, opts ...Option) (*Crawler, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	hunter := []Option{
		WithFilters(Filters{
			DirectoriesOnly: true,
			DirectoryFilter: func(d fsops.Directory) bool { return wanted[d.Name()] },
		}),
		WithHooks(Hooks{
			OnDirectoryFilterMatch: func(c *Crawler, dir fsops.Directory, sig *DirectorySignal) {
				sig.RequestDelete(dir.FullName() == c.Root(), false)
			},
		}),
	}
	return New(fsys, root, append(hunter, opts...)...)
}
