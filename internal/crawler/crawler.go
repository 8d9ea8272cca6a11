// Package crawler walks a directory tree depth-first and lets hooks decide,
// node by node, what happens to it.
//
// For every directory the crawler runs a Hello phase, decides a disposition
// (recursive delete, filter-match decision, skip), visits the directory's
// files, recurses into its subdirectories and finishes with a Goodbye phase.
// Files at a level are always visited before subdirectories.
//
// Hooks communicate through signals. Misusing a signal (skipping inside a
// recursive delete, asking to preserve contents at goodbye) is reported through
// OnWarning and the walk continues. Errors from the filesystem and broken
// statistics bookkeeping abort the walk and are returned to the caller.
//
// Dry runs go through every phase, hook and statistics update exactly as a live
// run does; only the calls that delete are left out.
//
// A Crawler runs one traversal at a time.
package crawler

import (
	"errors"
	"fmt"
	"path/filepath"

	"dircrawl/internal/fsops"
	"dircrawl/internal/stats"
)

var ErrRootNotFound = errors.New("root directory does not exist")

// Crawler is the traversal engine for one root.
type Crawler struct {
	fsys    *fsops.FS
	root    string
	stats   *stats.Statistics
	filters Filters
	hooks   Hooks
	dryRun  bool

	dirPattern  *fsops.Pattern
	filePattern *fsops.Pattern

	recursiveDelete bool
}

type Option func(*Crawler)

// WithStatistics records into s instead of a fresh log.
func WithStatistics(s *stats.Statistics) Option {
	return func(c *Crawler) {
		if s != nil {
			c.stats = s
		}
	}
}

func WithFilters(f Filters) Option {
	return func(c *Crawler) { c.filters = f }
}

// WithHooks adds h after any hooks already configured.
func WithHooks(h Hooks) Option {
	return func(c *Crawler) { c.hooks = c.hooks.Combine(h) }
}

// WithDryRun suppresses every destructive call for the whole run.
func WithDryRun(dryRun bool) Option {
	return func(c *Crawler) { c.dryRun = dryRun }
}

// New returns a crawler bounded by root. Relative roots are resolved against
// the working directory and trailing separators are dropped.
func New(fsys *fsops.FS, root string, opts ...Option) (*Crawler, error) {
	if fsys == nil {
		return nil, errors.New("crawler: nil filesystem")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	c := &Crawler{
		fsys:  fsys,
		root:  filepath.Clean(abs),
		stats: stats.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hooks = c.hooks.withDefaults()
	c.dirPattern = fsops.CompilePattern(c.filters.DirectorySearchPattern)
	c.filePattern = fsops.CompilePattern(c.filters.FileSearchPattern)
	return c, nil
}

func (c *Crawler) Root() string                  { return c.root }
func (c *Crawler) DryRun() bool                  { return c.dryRun }
func (c *Crawler) Statistics() *stats.Statistics { return c.stats }
func (c *Crawler) Filters() Filters              { return c.filters }

// RecursiveDeleteMode reports whether the node currently being visited is
// inside a recursive delete.
func (c *Crawler) RecursiveDeleteMode() bool { return c.recursiveDelete }

// VirtualPath renders path relative to the root with forward slashes.
// The root itself is ".".
func (c *Crawler) VirtualPath(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Start walks the tree. The root is a filter match under the same rule as
// every subdirectory.
func (c *Crawler) Start() error {
	root, err := c.rootDir()
	if err != nil {
		return err
	}
	return c.walk(root, c.matchesDirectoryFilter(root), walkMode{dryRun: c.dryRun})
}

// StartRecursiveDelete walks the tree with recursive delete already active,
// deleting the root and everything below it.
func (c *Crawler) StartRecursiveDelete() error {
	root, err := c.rootDir()
	if err != nil {
		return err
	}
	return c.walk(root, false, walkMode{recursiveDelete: true, dryRun: c.dryRun})
}

func (c *Crawler) rootDir() (fsops.Directory, error) {
	root := c.fsys.Dir(c.root)
	exists, err := root.Exists()
	if err != nil {
		return root, fmt.Errorf("stat root %s: %w", c.root, err)
	}
	if !exists {
		return root, fmt.Errorf("%w: %s", ErrRootNotFound, c.root)
	}
	return root, nil
}

// matchesDirectoryFilter is true when no directory filter is configured, or
// when every configured filter (pattern and predicate) accepts dir.
func (c *Crawler) matchesDirectoryFilter(dir fsops.Directory) bool {
	if !c.filters.HasDirectoryFilter() {
		return true
	}
	if !c.dirPattern.Match(dir.Name()) {
		return false
	}
	return c.filters.DirectoryFilter == nil || c.filters.DirectoryFilter(dir)
}

// walkMode is inherited by every descendant of the directory that set it.
type walkMode struct {
	recursiveDelete bool
	dryRun          bool
}

func (m walkMode) enterRecursiveDelete(requestDryRun bool) walkMode {
	return walkMode{recursiveDelete: true, dryRun: m.dryRun || requestDryRun}
}

type disposition int

const (
	dispNone       disposition = iota
	dispSkipped                // a hook asked to skip
	dispFiltered               // excluded by the directory filter
	dispDeleting               // inside a recursive delete
	dispPreserving             // recursive delete of contents, directory kept
)

func (d disposition) skipped() bool {
	return d == dispSkipped || d == dispFiltered
}

func (c *Crawler) walk(dir fsops.Directory, filterMatch bool, mode walkMode) error {
	vpath := c.VirtualPath(dir.FullName())
	c.recursiveDelete = mode.recursiveDelete

	c.stats.LogDirectory(vpath)
	hello := &DirectorySignal{}
	c.hooks.OnDirectoryHello(c, dir, hello)

	disp, mode, err := c.decide(dir, vpath, hello, filterMatch, mode)
	if err != nil {
		return err
	}

	if !disp.skipped() && (mode.recursiveDelete || !c.filters.DirectoriesOnly) {
		if err := c.visitFiles(dir, mode); err != nil {
			return err
		}
	}

	if err := c.visitDirectories(dir, mode); err != nil {
		return err
	}

	c.recursiveDelete = mode.recursiveDelete
	bye := &DirectorySignal{}
	c.hooks.OnDirectoryGoodbye(c, dir, bye)

	if disp.skipped() {
		return nil
	}
	if mode.recursiveDelete {
		return c.finishRecursive(dir, vpath, bye, disp == dispPreserving, mode)
	}
	return c.finishGoodbye(dir, vpath, bye, mode)
}

// decide settles the directory's disposition after its Hello phase.
func (c *Crawler) decide(dir fsops.Directory, vpath string, hello *DirectorySignal, filterMatch bool, mode walkMode) (disposition, walkMode, error) {
	switch {
	case mode.recursiveDelete:
		c.warnInsideRecursiveDelete(vpath, hello.Skipped(), hello.DeleteRequested())
		return dispDeleting, mode, c.markDeleting(dir, vpath)
	case hello.DeleteRequested() || hello.Skipped():
		return c.apply(dir, vpath, hello, mode)
	case filterMatch:
		match := &DirectorySignal{}
		c.hooks.OnDirectoryFilterMatch(c, dir, match)
		return c.apply(dir, vpath, match, mode)
	case c.filters.HasDirectoryFilter():
		c.hooks.OnDirectorySkipped(c, dir)
		return dispFiltered, mode, nil
	}
	return dispNone, mode, nil
}

// apply turns a hook's delete or skip request into a disposition.
func (c *Crawler) apply(dir fsops.Directory, vpath string, sig *DirectorySignal, mode walkMode) (disposition, walkMode, error) {
	switch {
	case sig.DeleteRequested():
		mode = mode.enterRecursiveDelete(sig.DryRun())
		c.recursiveDelete = true
		disp := dispDeleting
		if sig.DeleteContents() {
			disp = dispPreserving
		}
		return disp, mode, c.markDeleting(dir, vpath)
	case sig.Skipped():
		if err := c.stats.UpdateAction(vpath, stats.Directory, stats.ActionSkipped); err != nil {
			return dispNone, mode, err
		}
		c.hooks.OnDirectorySkipped(c, dir)
		return dispSkipped, mode, nil
	}
	return dispNone, mode, nil
}

func (c *Crawler) markDeleting(dir fsops.Directory, vpath string) error {
	if err := c.stats.UpdateAction(vpath, stats.Directory, stats.ActionDeleting); err != nil {
		return err
	}
	c.hooks.OnDirectoryDeleting(c, dir)
	return nil
}

func (c *Crawler) visitFiles(dir fsops.Directory, mode walkMode) error {
	filtering := !mode.recursiveDelete && c.filters.HasFileFilter()

	var pattern *fsops.Pattern
	if filtering {
		pattern = c.filePattern
	}
	files, err := dir.Files(pattern)
	if err != nil {
		return fmt.Errorf("list files in %s: %w", dir.FullName(), err)
	}

	for _, f := range files {
		if filtering && c.filters.FileFilter != nil && !c.filters.FileFilter(f) {
			continue
		}
		if err := c.visitFile(f, mode); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) visitFile(f fsops.File, mode walkMode) error {
	size, err := f.Size()
	if err != nil {
		return fmt.Errorf("size of %s: %w", f.FullName(), err)
	}
	vpath := c.VirtualPath(f.FullName())
	c.stats.LogFile(vpath, size)

	sig := &FileSignal{}
	c.hooks.OnFileHello(c, f, sig)

	switch {
	case mode.recursiveDelete:
		c.warnInsideRecursiveDelete(vpath, sig.Skipped(), sig.DeleteRequested())
		return c.deleteFile(f, vpath, size, mode.dryRun)
	case sig.Skipped():
		if err := c.stats.UpdateAction(vpath, stats.File, stats.ActionSkipped); err != nil {
			return err
		}
		c.hooks.OnFileSkip(c, f)
	case sig.DeleteRequested():
		return c.deleteFile(f, vpath, size, mode.dryRun || sig.DryRun())
	case sig.Action() != "":
		return c.stats.UpdateAction(vpath, stats.File, sig.Action())
	}
	return nil
}

func (c *Crawler) deleteFile(f fsops.File, vpath string, size int64, dryRun bool) error {
	if !dryRun {
		if err := f.Delete(); err != nil {
			return fmt.Errorf("delete file %s: %w", f.FullName(), err)
		}
	}
	if err := c.stats.UpdateAction(vpath, stats.File, stats.ActionDeleted); err != nil {
		return err
	}
	c.hooks.OnFileDelete(c, f, size)
	return nil
}

func (c *Crawler) visitDirectories(dir fsops.Directory, mode walkMode) error {
	subdirs, err := dir.Directories(nil)
	if err != nil {
		return fmt.Errorf("list directories in %s: %w", dir.FullName(), err)
	}

	filtering := !mode.recursiveDelete && c.filters.HasDirectoryFilter()
	var matched map[string]bool
	if filtering {
		matched = make(map[string]bool, len(subdirs))
		for _, sub := range subdirs {
			if c.matchesDirectoryFilter(sub) {
				matched[sub.Name()] = true
			}
		}
	}

	for _, sub := range subdirs {
		childMatch := !filtering || matched[sub.Name()]
		if err := c.walk(sub, childMatch, mode); err != nil {
			return err
		}
		c.recursiveDelete = mode.recursiveDelete
	}
	return nil
}

// finishRecursive ends a directory inside a recursive delete: its contents
// are gone, so it is removed unless it is the one whose contents were targeted.
func (c *Crawler) finishRecursive(dir fsops.Directory, vpath string, bye *DirectorySignal, preserve bool, mode walkMode) error {
	c.warnInsideRecursiveDelete(vpath, bye.Skipped(), bye.DeleteRequested())
	if preserve {
		return c.stats.UpdateAction(vpath, stats.Directory, stats.ActionContentsDeleted)
	}
	return c.deleteDirectory(dir, vpath, mode.dryRun)
}

// finishGoodbye honors a late delete request outside a recursive delete.
func (c *Crawler) finishGoodbye(dir fsops.Directory, vpath string, bye *DirectorySignal, mode walkMode) error {
	if bye.Skipped() {
		c.warn("skip of %s denied: directory is already being exited", vpath)
	}
	if !bye.DeleteRequested() {
		return nil
	}
	if bye.DeleteContents() {
		c.warn("delete contents of %s ignored at goodbye: deleting the directory itself", vpath)
	}

	exists, err := dir.Exists()
	if err != nil {
		return fmt.Errorf("stat directory %s: %w", dir.FullName(), err)
	}
	if !exists {
		c.warn("directory %s was already deleted", vpath)
		return nil
	}

	prev := c.recursiveDelete
	c.recursiveDelete = true
	defer func() { c.recursiveDelete = prev }()
	return c.sweep(dir, mode.dryRun || bye.DryRun(), false)
}

// sweep deletes dir with everything still below it, children first. Nodes
// the statistics already show as deleted are not reported again; a live
// sweep still removes them when an earlier dry-run request left them on disk.
// With quiet set nothing is reported at all.
func (c *Crawler) sweep(dir fsops.Directory, dryRun, quiet bool) error {
	files, err := dir.Files(nil)
	if err != nil {
		return fmt.Errorf("list files in %s: %w", dir.FullName(), err)
	}
	for _, f := range files {
		vpath := c.VirtualPath(f.FullName())
		e, seen := c.stats.Find(vpath, stats.File)
		if quiet || (seen && e.Action == stats.ActionDeleted) {
			if dryRun {
				continue
			}
			if err := f.Delete(); err != nil {
				return fmt.Errorf("delete file %s: %w", f.FullName(), err)
			}
			continue
		}

		size, err := f.Size()
		if err != nil {
			return fmt.Errorf("size of %s: %w", f.FullName(), err)
		}
		if !seen {
			c.stats.LogFile(vpath, size)
		}
		if err := c.deleteFile(f, vpath, size, dryRun); err != nil {
			return err
		}
	}

	subdirs, err := dir.Directories(nil)
	if err != nil {
		return fmt.Errorf("list directories in %s: %w", dir.FullName(), err)
	}
	for _, sub := range subdirs {
		e, seen := c.stats.Find(c.VirtualPath(sub.FullName()), stats.Directory)
		done := quiet || (seen && e.Action == stats.ActionDeleted)
		if done && dryRun {
			continue
		}
		if err := c.sweep(sub, dryRun, done); err != nil {
			return err
		}
	}

	if quiet {
		if err := dir.Delete(); err != nil {
			return fmt.Errorf("delete directory %s: %w", dir.FullName(), err)
		}
		return nil
	}
	vpath := c.VirtualPath(dir.FullName())
	if _, seen := c.stats.Find(vpath, stats.Directory); !seen {
		c.stats.LogDirectory(vpath)
	}
	return c.deleteDirectory(dir, vpath, dryRun)
}

func (c *Crawler) deleteDirectory(dir fsops.Directory, vpath string, dryRun bool) error {
	if !dryRun {
		if err := dir.Delete(); err != nil {
			return fmt.Errorf("delete directory %s: %w", dir.FullName(), err)
		}
	}
	if err := c.stats.UpdateAction(vpath, stats.Directory, stats.ActionDeleted); err != nil {
		return err
	}
	c.hooks.OnDirectoryDeleted(c, dir)
	return nil
}

func (c *Crawler) warnInsideRecursiveDelete(vpath string, skipped, deleteRequested bool) {
	if skipped {
		c.warn("skip of %s denied: recursive delete in progress", vpath)
	}
	if deleteRequested {
		c.warn("delete of %s is redundant: recursive delete in progress", vpath)
	}
}

func (c *Crawler) warn(format string, args ...any) {
	c.hooks.OnWarning(c, fmt.Sprintf(format, args...))
}
