package stats

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateActionOverwritesInPlace(t *testing.T) {
	s := New()
	s.LogDirectory(".")
	s.LogFile("a.txt", 10)

	require.NoError(t, s.UpdateAction("a.txt", File, ActionDeleted))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ActionHello, entries[0].Action)
	assert.Equal(t, ActionDeleted, entries[1].Action)
	require.NotNil(t, entries[1].FileSize)
	assert.Equal(t, int64(10), *entries[1].FileSize)
}

func TestUpdateActionContractViolations(t *testing.T) {
	s := New()
	s.LogDirectory("dup")
	s.LogDirectory("dup")

	err := s.UpdateAction("missing", Directory, ActionDeleted)
	assert.True(t, errors.Is(err, ErrEntryNotFound), "got %v", err)

	err = s.UpdateAction("dup", Directory, ActionDeleted)
	assert.True(t, errors.Is(err, ErrDuplicateEntry), "got %v", err)
}

func TestSamePathDifferentTypeIsDistinct(t *testing.T) {
	s := New()
	s.LogDirectory("x")
	s.LogFile("x", 1)

	require.NoError(t, s.UpdateAction("x", File, ActionSkipped))
	dir, ok := s.Find("x", Directory)
	require.True(t, ok)
	assert.Equal(t, ActionHello, dir.Action)
}

func TestAggregates(t *testing.T) {
	s := New()
	s.LogDirectory(".")
	s.LogDirectory("sub")
	s.LogFile("a", 100)
	s.LogFile("sub/b", 50)
	s.LogFile("sub/c", 0)

	assert.Equal(t, 2, s.DirectoryCount())
	assert.Equal(t, 3, s.TotalFileCount())
	assert.Equal(t, int64(150), s.TotalFileSize())
	assert.Equal(t, map[string]int{ActionHello: 3}, s.ActionCounts(File))
}

func TestDumpIsGroupedAndSorted(t *testing.T) {
	s := New()
	s.LogFile("z.log", 7)
	s.LogDirectory(".")
	s.LogFile("a.log", 3)
	s.LogDirectory("old")
	s.LogFile("old/b.log", 5)
	require.NoError(t, s.UpdateAction("old", Directory, ActionDeleted))
	require.NoError(t, s.UpdateAction("old/b.log", File, ActionDeleted))
	require.NoError(t, s.UpdateAction("a.log", File, "Archived"))

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf))

	expected := "Directory:\n" +
		"  Deleted: 1\n" +
		"  Hello: 1\n" +
		"File:\n" +
		"  Archived: 1 (3 bytes)\n" +
		"  Deleted: 1 (5 bytes)\n" +
		"  Hello: 1 (7 bytes)\n" +
		"Total: 2 directories, 3 files, 15 bytes\n"
	assert.Equal(t, expected, buf.String())
}
