package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/web/api"
	"dircrawl/internal/web/auth"
	"dircrawl/internal/web/websocket"
)

type fixture struct {
	url     string
	runID   string
	jwt     *auth.JWTManager
	hub     *websocket.Hub
	trigger chan os.Signal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewRunDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	size := int64(7)
	started := time.Now().Add(-time.Minute)
	run := &database.Run{
		Job: "nightly", Root: "/srv/cache", Mode: "crawl",
		StartedAt: started, FinishedAt: started.Add(time.Second),
		DeletedFiles: 1, DeletedBytes: 7,
	}
	require.NoError(t, db.RecordRun(run, []database.Entry{
		{VirtualPath: ".", ObjectType: "Directory", Action: "Hello"},
		{VirtualPath: "old.tmp", ObjectType: "File", Size: &size, Action: "Deleted"},
	}))

	cfg := config.Default()
	cfg.Jobs = []config.Job{{Name: "nightly", Root: "/srv/cache", Mode: config.ModeCrawl}}

	logger := log.New(io.Discard, "", 0)
	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	f := &fixture{
		runID:   run.ID,
		jwt:     auth.NewJWTManager("test-secret", time.Hour),
		hub:     hub,
		trigger: make(chan os.Signal, 1),
	}
	srv := NewServer(Options{
		Handlers:  &api.Handlers{Config: cfg, DB: db, Trigger: f.trigger},
		Hub:       hub,
		JWT:       f.jwt,
		Logger:    logger,
		RateLimit: rate.Limit(1000),
		RateBurst: 1000,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	f.url = ts.URL
	return f
}

func (f *fixture) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := f.jwt.GenerateToken("test", []string{role})
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.url+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"healthy":true`)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/v1/jobs", "/api/v1/runs", "/api/v1/stats"} {
		resp, _ := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t)
	viewer := f.token(t, auth.RoleViewer)

	resp, body := f.do(t, http.MethodGet, "/api/v1/runs", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []database.Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, f.runID, runs[0].ID)

	resp, body = f.do(t, http.MethodGet, "/api/v1/runs/"+f.runID, viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one struct {
		Run          database.Run   `json:"run"`
		ActionCounts map[string]int `json:"action_counts"`
	}
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, "nightly", one.Run.Job)
	assert.Equal(t, map[string]int{"Hello": 1, "Deleted": 1}, one.ActionCounts)

	resp, body = f.do(t, http.MethodGet, "/api/v1/runs/"+f.runID+"/entries?action=Deleted", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []database.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "old.tmp", entries[0].VirtualPath)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/runs/missing", viewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/runs/missing/entries", viewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/runs?limit=abc", viewer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/v1/stats?days=7", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats database.RunStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, int64(7), stats.DeletedBytes)
}

func TestJobEndpoints(t *testing.T) {
	f := newFixture(t)
	viewer := f.token(t, auth.RoleViewer)

	resp, body := f.do(t, http.MethodGet, "/api/v1/jobs", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"nightly"`)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/jobs/nightly", viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/jobs/other", viewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerRequiresOperator(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/trigger", f.token(t, auth.RoleViewer))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, f.trigger)

	operator := f.token(t, auth.RoleOperator)
	resp, body := f.do(t, http.MethodPost, "/api/v1/trigger", operator)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"queued"`)
	assert.Len(t, f.trigger, 1)

	_, body = f.do(t, http.MethodPost, "/api/v1/trigger", operator)
	assert.Contains(t, string(body), `"status":"already queued"`)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/trigger", operator)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRunEventsWebSocket(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.url, "http") + "/api/v1/ws/runs?token=" + f.token(t, auth.RoleViewer)

	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.hub.Publish(websocket.RunEvent{RunID: "r2", Job: "nightly", Status: "succeeded"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got websocket.RunEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "r2", got.RunID)

	_, resp, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.url, "http")+"/api/v1/ws/runs", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerStartAndShutdown(t *testing.T) {
	srv := NewServer(Options{
		Addr:      "127.0.0.1:0",
		Handlers:  &api.Handlers{Config: config.Default()},
		JWT:       auth.NewJWTManager("x", time.Hour),
		Logger:    log.New(io.Discard, "", 0),
		RateLimit: rate.Limit(10),
		RateBurst: 10,
	})
	addr, err := srv.Start()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	assert.Error(t, err)
}
