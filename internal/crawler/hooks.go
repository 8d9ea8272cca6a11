package crawler

import "dircrawl/internal/fsops"

// Hooks are the crawler's callbacks. Any hook left nil does nothing.
type Hooks struct {
	OnDirectoryHello       func(c *Crawler, dir fsops.Directory, sig *DirectorySignal)
	OnDirectoryFilterMatch func(c *Crawler, dir fsops.Directory, sig *DirectorySignal)
	OnDirectoryGoodbye     func(c *Crawler, dir fsops.Directory, sig *DirectorySignal)
	OnDirectorySkipped     func(c *Crawler, dir fsops.Directory)
	OnDirectoryDeleting    func(c *Crawler, dir fsops.Directory)
	OnDirectoryDeleted     func(c *Crawler, dir fsops.Directory)
	OnFileHello            func(c *Crawler, file fsops.File, sig *FileSignal)
	OnFileSkip             func(c *Crawler, file fsops.File)
	OnFileDelete           func(c *Crawler, file fsops.File, size int64)
	OnWarning              func(c *Crawler, msg string)
}

// Combine returns hooks that call h first and then next for every event
// both define.
func (h Hooks) Combine(next Hooks) Hooks {
	return Hooks{
		OnDirectoryHello:       chain3(h.OnDirectoryHello, next.OnDirectoryHello),
		OnDirectoryFilterMatch: chain3(h.OnDirectoryFilterMatch, next.OnDirectoryFilterMatch),
		OnDirectoryGoodbye:     chain3(h.OnDirectoryGoodbye, next.OnDirectoryGoodbye),
		OnDirectorySkipped:     chain2(h.OnDirectorySkipped, next.OnDirectorySkipped),
		OnDirectoryDeleting:    chain2(h.OnDirectoryDeleting, next.OnDirectoryDeleting),
		OnDirectoryDeleted:     chain2(h.OnDirectoryDeleted, next.OnDirectoryDeleted),
		OnFileHello:            chain3(h.OnFileHello, next.OnFileHello),
		OnFileSkip:             chain2(h.OnFileSkip, next.OnFileSkip),
		OnFileDelete:           chain3(h.OnFileDelete, next.OnFileDelete),
		OnWarning:              chain2(h.OnWarning, next.OnWarning),
	}
}

// withDefaults fills every nil hook with a no-op.
func (h Hooks) withDefaults() Hooks {
	if h.OnDirectoryHello == nil {
		h.OnDirectoryHello = func(*Crawler, fsops.Directory, *DirectorySignal) {}
	}
	if h.OnDirectoryFilterMatch == nil {
		h.OnDirectoryFilterMatch = func(*Crawler, fsops.Directory, *DirectorySignal) {}
	}
	if h.OnDirectoryGoodbye == nil {
		h.OnDirectoryGoodbye = func(*Crawler, fsops.Directory, *DirectorySignal) {}
	}
	if h.OnDirectorySkipped == nil {
		h.OnDirectorySkipped = func(*Crawler, fsops.Directory) {}
	}
	if h.OnDirectoryDeleting == nil {
		h.OnDirectoryDeleting = func(*Crawler, fsops.Directory) {}
	}
	if h.OnDirectoryDeleted == nil {
		h.OnDirectoryDeleted = func(*Crawler, fsops.Directory) {}
	}
	if h.OnFileHello == nil {
		h.OnFileHello = func(*Crawler, fsops.File, *FileSignal) {}
	}
	if h.OnFileSkip == nil {
		h.OnFileSkip = func(*Crawler, fsops.File) {}
	}
	if h.OnFileDelete == nil {
		h.OnFileDelete = func(*Crawler, fsops.File, int64) {}
	}
	if h.OnWarning == nil {
		h.OnWarning = func(*Crawler, string) {}
	}
	return h
}

func chain2[A, B any](first, second func(A, B)) func(A, B) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(a A, b B) {
		first(a, b)
		second(a, b)
	}
}

func chain3[A, B, C any](first, second func(A, B, C)) func(A, B, C) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(a A, b B, c C) {
		first(a, b, c)
		second(a, b, c)
	}
}
