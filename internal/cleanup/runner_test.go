package cleanup

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"

	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/fsops"
	"dircrawl/internal/metrics"
	"dircrawl/internal/runlock"
	"dircrawl/internal/safety"
	"dircrawl/internal/stats"
)

const testRoot = "/dircrawl-test/srv"

type harness struct {
	runner *Runner
	mem    afero.Fs
	fake   *fsops.FakeDeleter
	db     *database.RunDB
	cfg    *config.Config
	logs   *bytes.Buffer
}

func newHarness(t *testing.T, dryRun bool, files map[string]string) *harness {
	t.Helper()

	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll(testRoot, 0755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		p := filepath.Join(testRoot, rel)
		if err := mem.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(mem, p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	db, err := database.NewRunDB(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewRunDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.LockDir = filepath.Join(t.TempDir(), "locks")

	var logs bytes.Buffer
	fake := &fsops.FakeDeleter{Fs: fsops.AferoDeleter{Fs: mem}}
	r := NewRunner(log.New(&logs, "", 0), cfg, dryRun, db)
	r.SetFs(mem)
	r.SetDeleter(fake)

	return &harness{runner: r, mem: mem, fake: fake, db: db, cfg: cfg, logs: &logs}
}

func (h *harness) exists(t *testing.T, rel string) bool {
	t.Helper()
	ok, err := afero.Exists(h.mem, filepath.Join(testRoot, rel))
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

var huntTree = map[string]string{
	"app/node_modules/a.js":     "0123456789",
	"app/node_modules/lib/b.js": "01234567890123456789",
	"app/src/main.go":           "package main",
	"node_modules/c.js":         "01234",
}

func huntJob(name string) config.Job {
	return config.Job{Name: name, Root: testRoot, Mode: config.ModeHunt, DirectoryNames: []string{"node_modules"}}
}

// TestDryRunNeverDeletes proves that a dry run makes zero delete calls while
// reporting exactly what a live run would do.
func TestDryRunNeverDeletes(t *testing.T) {
	h := newHarness(t, true, huntTree)

	res, err := h.runner.RunJob(context.Background(), huntJob("hunt-dry"))
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(h.fake.Calls) != 0 {
		t.Errorf("DRY-RUN VIOLATION: Expected 0 delete calls, got %d: %v", len(h.fake.Calls), h.fake.Calls)
	}
	for rel := range huntTree {
		if !h.exists(t, rel) {
			t.Errorf("%s removed during dry run", rel)
		}
	}
	if res.DeletedFiles != 3 || res.DeletedDirectories != 3 || res.DeletedBytes != 35 {
		t.Errorf("dry run should report would-be deletions, got files=%d dirs=%d bytes=%d",
			res.DeletedFiles, res.DeletedDirectories, res.DeletedBytes)
	}
	if !strings.Contains(h.logs.String(), "[DRY RUN] Would delete file") {
		t.Errorf("missing dry-run log line:\n%s", h.logs.String())
	}

	run, err := h.db.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.DryRun || run.Status != database.StatusSucceeded {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestRealModeCallsDeleter(t *testing.T) {
	h := newHarness(t, false, huntTree)

	res, err := h.runner.RunJob(context.Background(), huntJob("hunt-live"))
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(h.fake.Calls) != 6 {
		t.Errorf("Expected 6 delete calls, got %d: %v", len(h.fake.Calls), h.fake.Calls)
	}
	for _, rel := range []string{"app/node_modules", "node_modules"} {
		if h.exists(t, rel) {
			t.Errorf("%s should have been deleted", rel)
		}
	}
	if !h.exists(t, "app/src/main.go") {
		t.Error("unmatched file was deleted")
	}

	deleted, err := h.db.GetEntries(res.RunID, stats.ActionDeleted)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(deleted) != 6 {
		t.Errorf("recorded %d deleted entries, expected 6", len(deleted))
	}
	if got := testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("hunt-live", database.StatusSucceeded)); got != 1 {
		t.Errorf("runs metric = %v", got)
	}
	if got := testutil.ToFloat64(metrics.BytesDeletedTotal.WithLabelValues("hunt-live", "false")); got != 35 {
		t.Errorf("bytes metric = %v", got)
	}
}

func TestPurgeKeepsRoot(t *testing.T) {
	h := newHarness(t, false, map[string]string{
		"a/x":   "x",
		"b/c/y": "yy",
		"z":     "zzz",
	})

	res, err := h.runner.RunJob(context.Background(), config.Job{Name: "purge", Root: testRoot, Mode: config.ModePurge})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if !h.exists(t, ".") {
		t.Fatal("purge removed the root")
	}
	left, err := afero.ReadDir(h.mem, testRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("root not emptied: %d entries left", len(left))
	}

	root, ok := res.Statistics.Find(".", stats.Directory)
	if !ok || root.Action != stats.ActionContentsDeleted {
		t.Errorf("root entry = %+v", root)
	}
	if res.DeletedFiles != 3 || res.DeletedDirectories != 3 {
		t.Errorf("deleted files=%d dirs=%d", res.DeletedFiles, res.DeletedDirectories)
	}
}

func TestHuntEmptiesMatchingRoot(t *testing.T) {
	h := newHarness(t, false, huntTree)

	job := config.Job{Name: "hunt-root", Root: testRoot, Mode: config.ModeHunt, DirectoryNames: []string{filepath.Base(testRoot)}}
	res, err := h.runner.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if !h.exists(t, ".") {
		t.Fatal("hunt removed its own root")
	}
	left, err := afero.ReadDir(h.mem, testRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("root not emptied: %d entries left", len(left))
	}
	root, ok := res.Statistics.Find(".", stats.Directory)
	if !ok || root.Action != stats.ActionContentsDeleted {
		t.Errorf("root entry = %+v", root)
	}
}

func TestCrawlDeletesOldMatchingFiles(t *testing.T) {
	h := newHarness(t, false, map[string]string{
		"logs/old.log": "old",
		"logs/new.log": "new",
		"logs/old.txt": "txt",
	})
	old := time.Now().AddDate(0, 0, -10)
	for _, rel := range []string{"logs/old.log", "logs/old.txt"} {
		if err := h.mem.Chtimes(filepath.Join(testRoot, rel), old, old); err != nil {
			t.Fatal(err)
		}
	}

	job := config.Job{
		Name:               "old-logs",
		Root:               testRoot,
		Mode:               config.ModeCrawl,
		FilePattern:        "*.log",
		DeleteMatchedFiles: true,
		MinFileAgeDays:     7,
	}
	res, err := h.runner.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if h.exists(t, "logs/old.log") {
		t.Error("old.log should be deleted")
	}
	if !h.exists(t, "logs/new.log") || !h.exists(t, "logs/old.txt") {
		t.Error("files outside the rule were deleted")
	}
	if res.Statistics.TotalFileCount() != 1 {
		t.Errorf("only matching files are logged, got %d", res.Statistics.TotalFileCount())
	}
}

func TestCrawlPreservesMatchedDirectories(t *testing.T) {
	h := newHarness(t, false, map[string]string{
		"cache-a/blob":      "1",
		"cache-a/deep/blob": "2",
		"data/keep":         "3",
	})

	job := config.Job{
		Name:                     "caches",
		Root:                     testRoot,
		DirectoryPattern:         "cache*",
		DeleteMatchedDirectories: true,
		PreserveMatchedContents:  true,
	}
	res, err := h.runner.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if !h.exists(t, "cache-a") || h.exists(t, "cache-a/blob") || h.exists(t, "cache-a/deep") {
		t.Error("cache-a should be emptied and kept")
	}
	if !h.exists(t, "data/keep") {
		t.Error("data/keep should survive")
	}
	dir, _ := res.Statistics.Find("cache-a", stats.Directory)
	if dir.Action != stats.ActionContentsDeleted {
		t.Errorf("cache-a action = %s", dir.Action)
	}
}

func TestFileActionAnnotatesEntries(t *testing.T) {
	h := newHarness(t, false, map[string]string{"a.txt": "a", "b.bin": "b"})

	job := config.Job{Name: "annotate", Root: testRoot, FileAction: "Reviewed", FilePattern: "*.txt"}
	res, err := h.runner.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	e, ok := res.Statistics.Find("a.txt", stats.File)
	if !ok || e.Action != "Reviewed" {
		t.Errorf("a.txt = %+v", e)
	}
	if len(h.fake.Calls) != 0 {
		t.Errorf("annotation must not delete: %v", h.fake.Calls)
	}
}

func TestProtectedRootIsRecordedAsFailure(t *testing.T) {
	h := newHarness(t, false, nil)

	_, err := h.runner.RunJob(context.Background(), config.Job{Name: "bad", Root: "/etc/dircrawl-test", Mode: config.ModePurge})
	if !safety.IsViolation(err) {
		t.Fatalf("expected safety violation, got %v", err)
	}

	runs, err := h.db.GetRecentRuns("bad", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != database.StatusFailed || runs[0].Error == "" {
		t.Errorf("failed run not recorded: %+v", runs)
	}
}

func TestLockedJobIsRefused(t *testing.T) {
	h := newHarness(t, false, huntTree)

	lock, err := runlock.Acquire(h.cfg.LockDir, "hunt-locked")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, err = h.runner.RunJob(context.Background(), huntJob("hunt-locked"))
	if !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(h.fake.Calls) != 0 {
		t.Error("locked job must not touch the tree")
	}
}

func TestCanceledContext(t *testing.T) {
	h := newHarness(t, false, huntTree)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.runner.RunJob(ctx, huntJob("hunt-canceled")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNotifyAfterEveryRun(t *testing.T) {
	h := newHarness(t, true, huntTree)

	var got []*Result
	var errs []error
	h.runner.SetNotify(func(res *Result, err error) {
		got = append(got, res)
		errs = append(errs, err)
	})

	if _, err := h.runner.RunJob(context.Background(), huntJob("hunt-notify")); err != nil {
		t.Fatal(err)
	}
	_, runErr := h.runner.RunJob(context.Background(), config.Job{Name: "bad", Root: "/etc/dircrawl-test", Mode: config.ModePurge})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.runner.RunJob(ctx, huntJob("hunt-notify"))

	if len(got) != 2 {
		t.Fatalf("notified %d times, want 2 (canceled runs never start)", len(got))
	}
	if got[0].RunID == "" || errs[0] != nil {
		t.Errorf("first notification = %+v, %v", got[0], errs[0])
	}
	if !errors.Is(errs[1], runErr) || got[1].Job != "bad" {
		t.Errorf("second notification = %+v, %v", got[1], errs[1])
	}
}

func TestLoggerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := &stdLogger{Logger: log.New(&buf, "", 0)}

	l.Warn("skip denied", "job", "tmp", "path", "a/b", "dangling")
	if got := strings.TrimSpace(buf.String()); got != "[WARN] skip denied job=tmp path=a/b dangling" {
		t.Errorf("log line = %q", got)
	}
}
