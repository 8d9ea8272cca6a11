// Package stats records what a traversal did to each node.
//
// The log is ordered by discovery. Every node gets exactly one entry, created
// with action Hello when the node is first seen and overwritten in place as
// its disposition is decided.
package stats

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ObjectType distinguishes directory entries from file entries.
type ObjectType int

const (
	Directory ObjectType = iota
	File
)

func (t ObjectType) String() string {
	switch t {
	case Directory:
		return "Directory"
	case File:
		return "File"
	default:
		return fmt.Sprintf("ObjectType(%d)", int(t))
	}
}

// Actions written by the crawler. File entries may also carry a custom action.
const (
	ActionHello           = "Hello"
	ActionSkipped         = "Skipped"
	ActionDeleting        = "Deleting"
	ActionDeleted         = "Deleted"
	ActionContentsDeleted = "ContentsDeleted"
)

var (
	ErrEntryNotFound  = errors.New("no statistics entry")
	ErrDuplicateEntry = errors.New("duplicate statistics entries")
)

// Entry is one node's record.
type Entry struct {
	VirtualPath string
	ObjectType  ObjectType
	FileSize    *int64 // nil for directories
	Action      string
}

type entryKey struct {
	path string
	typ  ObjectType
}

// Statistics is the ordered per-node log of a run. Not safe for concurrent use.
type Statistics struct {
	entries []*Entry
	index   map[entryKey][]*Entry
}

func New() *Statistics {
	return &Statistics{index: make(map[entryKey][]*Entry)}
}

// LogDirectory appends a Hello entry for a directory.
func (s *Statistics) LogDirectory(virtualPath string) {
	s.add(&Entry{VirtualPath: virtualPath, ObjectType: Directory, Action: ActionHello})
}

// LogFile appends a Hello entry for a file together with its size snapshot.
func (s *Statistics) LogFile(virtualPath string, size int64) {
	s.add(&Entry{VirtualPath: virtualPath, ObjectType: File, FileSize: &size, Action: ActionHello})
}

func (s *Statistics) add(e *Entry) {
	k := entryKey{e.VirtualPath, e.ObjectType}
	s.entries = append(s.entries, e)
	s.index[k] = append(s.index[k], e)
}

// UpdateAction overwrites the action of the single entry for the node.
// Finding zero or several entries means Hello/Action sequencing broke.
func (s *Statistics) UpdateAction(virtualPath string, typ ObjectType, action string) error {
	matches := s.index[entryKey{virtualPath, typ}]
	switch len(matches) {
	case 1:
		matches[0].Action = action
		return nil
	case 0:
		return fmt.Errorf("%w for %s %s", ErrEntryNotFound, typ, virtualPath)
	default:
		return fmt.Errorf("%w for %s %s: %d found", ErrDuplicateEntry, typ, virtualPath, len(matches))
	}
}

// Find returns a copy of the entry for the node, if exactly one exists.
func (s *Statistics) Find(virtualPath string, typ ObjectType) (Entry, bool) {
	matches := s.index[entryKey{virtualPath, typ}]
	if len(matches) != 1 {
		return Entry{}, false
	}
	return *matches[0], true
}

// Entries returns a snapshot of the log in discovery order.
func (s *Statistics) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

func (s *Statistics) Len() int { return len(s.entries) }

func (s *Statistics) DirectoryCount() int {
	n := 0
	for _, e := range s.entries {
		if e.ObjectType == Directory {
			n++
		}
	}
	return n
}

func (s *Statistics) TotalFileCount() int {
	n := 0
	for _, e := range s.entries {
		if e.ObjectType == File {
			n++
		}
	}
	return n
}

func (s *Statistics) TotalFileSize() int64 {
	var total int64
	for _, e := range s.entries {
		if e.FileSize != nil {
			total += *e.FileSize
		}
	}
	return total
}

// ActionGroup aggregates entries sharing an object type and action.
type ActionGroup struct {
	ObjectType ObjectType
	Action     string
	Count      int
	TotalSize  int64
}

// Groups aggregates the log by object type, then action, both sorted.
func (s *Statistics) Groups() []ActionGroup {
	type groupKey struct {
		typ    ObjectType
		action string
	}
	byKey := make(map[groupKey]*ActionGroup)
	for _, e := range s.entries {
		k := groupKey{e.ObjectType, e.Action}
		g, ok := byKey[k]
		if !ok {
			g = &ActionGroup{ObjectType: e.ObjectType, Action: e.Action}
			byKey[k] = g
		}
		g.Count++
		if e.FileSize != nil {
			g.TotalSize += *e.FileSize
		}
	}

	groups := make([]ActionGroup, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		ti, tj := groups[i].ObjectType.String(), groups[j].ObjectType.String()
		if ti != tj {
			return ti < tj
		}
		return groups[i].Action < groups[j].Action
	})
	return groups
}

// ActionCounts counts entries per action for one object type.
func (s *Statistics) ActionCounts(typ ObjectType) map[string]int {
	counts := make(map[string]int)
	for _, e := range s.entries {
		if e.ObjectType == typ {
			counts[e.Action]++
		}
	}
	return counts
}

// Dump writes the grouped report. Output depends only on the log contents.
func (s *Statistics) Dump(w io.Writer) error {
	var current string
	for _, g := range s.Groups() {
		if name := g.ObjectType.String(); name != current {
			current = name
			if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
				return err
			}
		}
		var err error
		if g.ObjectType == File {
			_, err = fmt.Fprintf(w, "  %s: %d (%d bytes)\n", g.Action, g.Count, g.TotalSize)
		} else {
			_, err = fmt.Fprintf(w, "  %s: %d\n", g.Action, g.Count)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total: %d directories, %d files, %d bytes\n",
		s.DirectoryCount(), s.TotalFileCount(), s.TotalFileSize())
	return err
}
