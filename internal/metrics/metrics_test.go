package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dircrawl/internal/disk"
)

func TestMetricsInit(t *testing.T) {
	Init()
	Init()

	RecordNode("init", "File")
	RecordRun("init", "succeeded", time.Second, time.Now())

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := make(map[string]bool)
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"dircrawl_nodes_visited_total",
		"dircrawl_runs_total",
		"dircrawl_run_duration_seconds",
		"dircrawl_last_run_timestamp_seconds",
		"dircrawl_daemon_errors_total",
	} {
		if !found[name] {
			t.Errorf("Expected metric %s not found in registry", name)
		}
	}
}

func TestCrawlHelpers(t *testing.T) {
	Init()

	RecordNode("helpers", "Directory")
	RecordNode("helpers", "Directory")
	if got := testutil.ToFloat64(NodesVisitedTotal.WithLabelValues("helpers", "Directory")); got != 2 {
		t.Errorf("nodes visited = %v, expected 2", got)
	}

	RecordDeletion("helpers", "File", 100, false)
	RecordDeletion("helpers", "File", 50, true)
	RecordDeletion("helpers", "Directory", 0, false)
	if got := testutil.ToFloat64(BytesDeletedTotal.WithLabelValues("helpers", "false")); got != 100 {
		t.Errorf("bytes deleted = %v, expected 100", got)
	}
	if got := testutil.ToFloat64(BytesDeletedTotal.WithLabelValues("helpers", "true")); got != 50 {
		t.Errorf("dry-run bytes = %v, expected 50", got)
	}
	if got := testutil.ToFloat64(DeletionsTotal.WithLabelValues("helpers", "Directory", "false")); got != 1 {
		t.Errorf("directory deletions = %v, expected 1", got)
	}

	RecordWarning("helpers")
	if got := testutil.ToFloat64(WarningsTotal.WithLabelValues("helpers")); got != 1 {
		t.Errorf("warnings = %v, expected 1", got)
	}

	finished := time.Unix(1700000000, 0)
	RecordRun("helpers", "failed", 3*time.Second, finished)
	if got := testutil.ToFloat64(LastRunTimestamp.WithLabelValues("helpers")); got != 1700000000 {
		t.Errorf("last run = %v", got)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("helpers", "failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
}

func TestUpdateDiskMetrics(t *testing.T) {
	Init()
	UpdateDiskMetrics("/srv", &disk.Usage{TotalBytes: 200, FreeBytes: 50})
	if got := testutil.ToFloat64(FreeSpacePercent.WithLabelValues("/srv")); got != 25 {
		t.Errorf("free percent = %v, expected 25", got)
	}
	if got := testutil.ToFloat64(RootFreeBytes.WithLabelValues("/srv")); got != 50 {
		t.Errorf("free bytes = %v, expected 50", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	Init()
	hc := NewHealthChecker(time.Hour)
	failing := errors.New("database is locked")
	var fail bool
	hc.RegisterComponent("database", func() error {
		if fail {
			return failing
		}
		return nil
	}, time.Second)
	SetHealthChecker(hc)
	defer SetHealthChecker(nil)

	hc.RunChecks()
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	fail = true
	hc.RunChecks()
	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Healthy || body.Components["database"].Error != failing.Error() {
		t.Errorf("unexpected body: %+v", body)
	}
	if hc.GetHealth()["database"].FailureCount != 1 {
		t.Errorf("failure count = %d", hc.GetHealth()["database"].FailureCount)
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	err := runWithTimeout(func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}, 10*time.Millisecond)
	if !errors.Is(err, errHealthCheckTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestTriggerEndpoint(t *testing.T) {
	ch := make(chan os.Signal, 1)
	SetTriggerChannel(ch)
	defer SetTriggerChannel(nil)

	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trigger", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /trigger = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "triggered") {
		t.Errorf("POST /trigger = %d %q", rec.Code, rec.Body.String())
	}
	select {
	case <-ch:
	default:
		t.Error("trigger did not signal")
	}

	// The buffer is now empty again; fill it and the next trigger is refused.
	ch <- os.Interrupt
	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("full channel = %d", rec.Code)
	}
}
