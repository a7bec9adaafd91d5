package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/session"
	"github.com/digital-land/submit/internal/uploads"
)

// Health states.
const (
	statusUp        = "up"
	statusDown      = "down"
	statusDegraded  = "degraded"
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	notConfigured = "not configured"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string                    `json:"status"` // healthy, degraded or unhealthy
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker probes the session store and the upload bucket. Redis is
// critical since no journey page works without it; uploads only degrade the
// service.
type HealthChecker struct {
	sessions  pinger
	uploads   uploads.Store
	startTime time.Time
}

func newHealthChecker(sessions *session.Store, store uploads.Store) *HealthChecker {
	hc := &HealthChecker{uploads: store, startTime: time.Now()}
	if sessions != nil {
		hc.sessions = sessions
	}
	return hc
}

// HandleHealth always answers 200; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.JSON(w, http.StatusOK, HealthStatus{
		Status: determineOverallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

// HandleLiveness answers 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(hc.startTime).Round(time.Second).String(),
	})
}

// HandleReadiness answers 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != statusUnhealthy
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 2)
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"uploads", hc.checkUploads(ctx)} }()

	checks := make(map[string]ComponentCheck, 2)
	for i := 0; i < 2; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.sessions == nil {
		return ComponentCheck{Status: statusDown, Message: notConfigured}
	}
	return timedCheck(ctx, 2*time.Second, 500*time.Millisecond, "connected", hc.sessions.Ping)
}

func (hc *HealthChecker) checkUploads(ctx context.Context) ComponentCheck {
	if hc.uploads == nil {
		return ComponentCheck{Status: statusDown, Message: notConfigured}
	}
	return timedCheck(ctx, 3*time.Second, time.Second, "bucket accessible", hc.uploads.Ready)
}

func timedCheck(ctx context.Context, timeout, slow time.Duration, okMsg string, probe func(context.Context) error) ComponentCheck {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: statusDown, Latency: latency.String(), Message: fmt.Sprintf("check failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: statusDegraded, Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: statusUp, Latency: latency.String(), Message: okMsg}
}

// determineOverallStatus is unhealthy when redis is down, degraded when any
// configured check is down or slow, and healthy otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if c, ok := checks["redis"]; ok && c.Status == statusDown {
		return statusUnhealthy
	}
	for _, c := range checks {
		if c.Status == statusDegraded {
			return statusDegraded
		}
		if c.Status == statusDown && c.Message != notConfigured {
			return statusDegraded
		}
	}
	return statusHealthy
}
