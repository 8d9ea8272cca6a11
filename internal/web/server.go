// Package web serves the authenticated HTTP API over jobs and run history.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"dircrawl/internal/metrics"
	"dircrawl/internal/web/api"
	"dircrawl/internal/web/auth"
	"dircrawl/internal/web/middleware"
	"dircrawl/internal/web/websocket"
)

const (
	ReadTimeout  = 15 * time.Second
	WriteTimeout = 15 * time.Second
	IdleTimeout  = 60 * time.Second

	maxBodyBytes        = 1 << 20
	rateCleanupInterval = 10 * time.Minute
)

// Options configures the API server. Hub may be nil to disable the run
// event websocket.
type Options struct {
	Addr      string
	TLSCert   string
	TLSKey    string
	Handlers  *api.Handlers
	Hub       *websocket.Hub
	JWT       *auth.JWTManager
	Logger    *log.Logger
	RateLimit rate.Limit
	RateBurst int
}

// NewRouter builds the route table. Everything below /api/v1 except the
// health probe requires a bearer token.
func NewRouter(o Options, limiter *middleware.RateLimiter) *mux.Router {
	h := o.Handlers
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(o.Logger))
	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.RequestBodySizeLimitMiddleware(maxBodyBytes))
	router.Use(limiter.Middleware())

	router.HandleFunc("/api/v1/health", h.HealthHandler).Methods(http.MethodGet, http.MethodHead)

	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.AuthMiddleware(o.JWT))

	allow := func(perm string, fn http.HandlerFunc) http.Handler {
		return middleware.RequirePermission(perm)(fn)
	}

	protected.Handle("/health/components", allow(auth.PermissionViewHealth, h.ComponentsHandler)).Methods(http.MethodGet)
	protected.Handle("/jobs", allow(auth.PermissionViewJobs, h.ListJobsHandler)).Methods(http.MethodGet)
	protected.Handle("/jobs/{name}", allow(auth.PermissionViewJobs, h.GetJobHandler)).Methods(http.MethodGet)
	protected.Handle("/runs", allow(auth.PermissionViewHistory, h.ListRunsHandler)).Methods(http.MethodGet)
	protected.Handle("/runs/{id}", allow(auth.PermissionViewHistory, h.GetRunHandler)).Methods(http.MethodGet)
	protected.Handle("/runs/{id}/entries", allow(auth.PermissionViewHistory, h.GetRunEntriesHandler)).Methods(http.MethodGet)
	protected.Handle("/stats", allow(auth.PermissionViewHistory, h.GetStatsHandler)).Methods(http.MethodGet)
	protected.Handle("/trigger", allow(auth.PermissionTriggerRun, h.TriggerHandler)).Methods(http.MethodPost)

	if o.Hub != nil {
		protected.Handle("/ws/runs", allow(auth.PermissionViewHistory, websocket.HandleRunsWebSocket(o.Hub))).Methods(http.MethodGet)
	}

	return router
}

// Server is the API's HTTP server.
type Server struct {
	srv      *http.Server
	limiter  *middleware.RateLimiter
	logger   *log.Logger
	certFile string
	keyFile  string

	stopOnce sync.Once
	stop     chan struct{}
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	metrics.Init()

	limiter := middleware.NewRateLimiter(o.RateLimit, o.RateBurst)
	srv := &http.Server{
		Addr:              o.Addr,
		Handler:           NewRouter(o, limiter),
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}
	if o.TLSCert != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion:       tls.VersionTLS13,
			CurvePreferences: []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
		}
	}

	return &Server{
		srv:      srv,
		limiter:  limiter,
		logger:   o.Logger,
		certFile: o.TLSCert,
		keyFile:  o.TLSKey,
		stop:     make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the listener and serves in the background. It returns the bound
// address, which differs from the configured one for port 0.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}

	go s.limiter.CleanupLoop(rateCleanupInterval, s.stop)
	go func() {
		var err error
		if s.certFile != "" {
			s.logger.Printf("API server listening on %s (TLS)", ln.Addr())
			err = s.srv.ServeTLS(ln, s.certFile, s.keyFile)
		} else {
			s.logger.Printf("API server listening on %s", ln.Addr())
			err = s.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("API server error: %v", err)
			metrics.ErrorsTotal.Inc()
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops accepting requests and waits for active ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.srv.Shutdown(ctx)
}
