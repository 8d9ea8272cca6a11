package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ComponentHealthy tracks individual component health
	ComponentHealthy *prometheus.GaugeVec

	// HealthCheckDuration tracks health check execution time
	HealthCheckDuration *prometheus.HistogramVec

	// HealthCheckFailures counts consecutive failures per component
	HealthCheckFailures *prometheus.GaugeVec

	// StartTime records daemon start timestamp
	StartTime prometheus.Gauge
)

var errHealthCheckTimeout = errors.New("health check timeout")

// HealthChecker periodically runs component checks (history database, job
// roots) and backs the /health endpoint.
type HealthChecker struct {
	mu         sync.RWMutex
	startTime  time.Time
	components map[string]*ComponentHealth
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
}

type ComponentHealth struct {
	Name         string        `json:"name"`
	LastCheck    time.Time     `json:"last_check"`
	LastError    string        `json:"last_error,omitempty"`
	Healthy      bool          `json:"healthy"`
	FailureCount int           `json:"failure_count"`
	Timeout      time.Duration `json:"timeout"`
	check        func() error
}

func initHealthMetrics() {
	ComponentHealthy = NewGaugeVec(
		"dircrawl_component_healthy",
		"Component health status (1=healthy, 0=unhealthy).",
		[]string{"component"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dircrawl_health_check_duration_seconds",
			Help:    "Time taken to execute health checks.",
			Buckets: CheckBuckets,
		},
		[]string{"component"},
	)

	HealthCheckFailures = NewGaugeVec(
		"dircrawl_health_check_failures_consecutive",
		"Consecutive health check failures per component.",
		[]string{"component"},
	)

	StartTime = NewGauge(
		"dircrawl_daemon_start_timestamp_seconds",
		"Unix timestamp when the daemon started.",
	)
}

func registerHealthMetrics() {
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
	prometheus.MustRegister(StartTime)
}

// NewHealthChecker creates a checker running every interval. Metrics must be
// initialized first.
func NewHealthChecker(interval time.Duration) *HealthChecker {
	Init()
	hc := &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]*ComponentHealth),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
	StartTime.Set(float64(hc.startTime.Unix()))
	return hc
}

// RegisterComponent adds a check; a zero timeout waits for check to return.
func (hc *HealthChecker) RegisterComponent(name string, check func() error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &ComponentHealth{
		Name:    name,
		Healthy: true,
		Timeout: timeout,
		check:   check,
	}
	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
}

// Start runs the checks once and then on every tick until Stop.
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	hc.mu.Unlock()

	hc.wg.Add(1)
	go hc.loop()
}

func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = false
	hc.mu.Unlock()

	close(hc.stopCh)
	hc.wg.Wait()
}

func (hc *HealthChecker) loop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks()
	for {
		select {
		case <-ticker.C:
			hc.RunChecks()
		case <-hc.stopCh:
			return
		}
	}
}

// RunChecks executes every registered check once.
func (hc *HealthChecker) RunChecks() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	for name, comp := range hc.components {
		start := time.Now()
		err := runWithTimeout(comp.check, comp.Timeout)
		HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		comp.LastCheck = time.Now()

		if err != nil {
			comp.Healthy = false
			comp.LastError = err.Error()
			comp.FailureCount++
			ComponentHealthy.WithLabelValues(name).Set(0)
			HealthCheckFailures.WithLabelValues(name).Set(float64(comp.FailureCount))
			ErrorsTotal.Inc()
			continue
		}
		comp.Healthy = true
		comp.LastError = ""
		comp.FailureCount = 0
		ComponentHealthy.WithLabelValues(name).Set(1)
		HealthCheckFailures.WithLabelValues(name).Set(0)
	}
}

func runWithTimeout(fn func() error, timeout time.Duration) error {
	if timeout <= 0 {
		return fn()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return errHealthCheckTimeout
	}
}

// GetHealth returns a snapshot of every component.
func (hc *HealthChecker) GetHealth() map[string]ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := make(map[string]ComponentHealth, len(hc.components))
	for name, comp := range hc.components {
		health[name] = *comp
	}
	return health
}

// IsHealthy returns true if all components are healthy
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, comp := range hc.components {
		if !comp.Healthy {
			return false
		}
	}
	return true
}

// Uptime returns how long the checker has existed.
func (hc *HealthChecker) Uptime() time.Duration {
	return time.Since(hc.startTime)
}
