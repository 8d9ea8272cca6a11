package crawler

// DirectorySignal carries a callback's intent for the directory being visited.
// A fresh signal is handed to every phase; the crawler reads it as soon as the
// callback returns.
type DirectorySignal struct {
	skipped         bool
	deleteRequested bool
	deleteContents  bool
	dryRun          bool
}

// Skip leaves this directory's own files alone. Subdirectories are still visited.
func (s *DirectorySignal) Skip() {
	s.skipped = true
}

// RequestDelete asks for the directory and everything below it to be deleted.
// With deleteContents the directory itself survives. dryRun suppresses the
// destructive calls for this request only.
func (s *DirectorySignal) RequestDelete(deleteContents, dryRun bool) {
	s.deleteRequested = true
	s.deleteContents = deleteContents
	s.dryRun = dryRun
}

func (s *DirectorySignal) Skipped() bool         { return s.skipped }
func (s *DirectorySignal) DeleteRequested() bool { return s.deleteRequested }
func (s *DirectorySignal) DeleteContents() bool  { return s.deleteContents }
func (s *DirectorySignal) DryRun() bool          { return s.dryRun }

// FileSignal carries a callback's intent for the file being visited.
type FileSignal struct {
	action          string
	skipped         bool
	deleteRequested bool
	dryRun          bool
}

func (s *FileSignal) Skip() {
	s.skipped = true
}

func (s *FileSignal) RequestDelete(dryRun bool) {
	s.deleteRequested = true
	s.dryRun = dryRun
}

// SetAction records a custom outcome for the file in the run statistics.
func (s *FileSignal) SetAction(name string) {
	s.action = name
}

func (s *FileSignal) Action() string        { return s.action }
func (s *FileSignal) Skipped() bool         { return s.skipped }
func (s *FileSignal) DeleteRequested() bool { return s.deleteRequested }
func (s *FileSignal) DryRun() bool          { return s.dryRun }
