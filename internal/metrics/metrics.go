package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce       sync.Once
	serverMutex    sync.Mutex
	currentSrv     *http.Server
	triggerChannel chan os.Signal

	globalHealthChecker *HealthChecker
	healthMutex         sync.RWMutex
)

// Init creates and registers every collector with the default registry.
// It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		initCrawlMetrics()
		initDaemonMetrics()
		initHealthMetrics()
		initHTTPMetrics()

		registerCrawlMetrics()
		registerDaemonMetrics()
		registerHTTPMetrics()
		registerHealthMetrics()
	})
}

// SetTriggerChannel sets the channel POST /trigger sends SIGUSR1 on.
func SetTriggerChannel(ch chan os.Signal) {
	serverMutex.Lock()
	defer serverMutex.Unlock()
	triggerChannel = ch
}

func SetHealthChecker(hc *HealthChecker) {
	healthMutex.Lock()
	defer healthMutex.Unlock()
	globalHealthChecker = hc
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Healthy    bool                       `json:"healthy"`
	UptimeSecs float64                    `json:"uptime_seconds,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type componentStatus struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	healthMutex.RLock()
	hc := globalHealthChecker
	healthMutex.RUnlock()

	resp := healthResponse{Status: "ok", Healthy: true}
	if hc != nil {
		resp.UptimeSecs = hc.Uptime().Seconds()
		resp.Components = make(map[string]componentStatus)
		for name, c := range hc.GetHealth() {
			resp.Components[name] = componentStatus{Healthy: c.Healthy, LastCheck: c.LastCheck, Error: c.LastError}
		}
		if !hc.IsHealthy() {
			resp.Status, resp.Healthy = "degraded", false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serverMutex.Lock()
	ch := triggerChannel
	serverMutex.Unlock()
	if ch == nil {
		http.Error(w, "Trigger channel not initialized", http.StatusServiceUnavailable)
		return
	}

	select {
	case ch <- syscall.SIGUSR1:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Run triggered"))
	default:
		http.Error(w, "Trigger channel full", http.StatusServiceUnavailable)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/trigger", triggerHandler)
	return mux
}

// StartServer serves /metrics, /health and /trigger on addr in the
// background.
func StartServer(addr string, logger *log.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Printf("metrics server already running on %s", currentSrv.Addr)
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	currentSrv = srv

	go func() {
		logger.Printf("metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
			ErrorsTotal.Inc()
		}
	}()

	// Give server 100ms to start
	time.Sleep(100 * time.Millisecond)
}

// Shutdown stops the health checker and the metrics server.
func Shutdown(ctx context.Context, logger *log.Logger) {
	healthMutex.Lock()
	if globalHealthChecker != nil {
		globalHealthChecker.Stop()
		globalHealthChecker = nil
	}
	healthMutex.Unlock()

	serverMutex.Lock()
	defer serverMutex.Unlock()
	if currentSrv == nil {
		return
	}
	if err := currentSrv.Shutdown(ctx); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
		ErrorsTotal.Inc()
	}
	currentSrv = nil
}
