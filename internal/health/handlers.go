package health

import (
	"context"
	"net/http"
	"time"

	"github.com/harborpay/checkout/internal/common"
)

// Checker exposes liveness and readiness probes. Probe funcs may be nil
// when a dependency is not wired.
type Checker struct {
	PingRedis    func(context.Context) error
	PingProvider func(context.Context) error
	Timeout      time.Duration
}

// Live reports process liveness.
func (c Checker) Live(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready verifies dependencies within the probe timeout.
func (c Checker) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if c.PingRedis != nil {
		if err := c.PingRedis(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}
	if c.PingProvider != nil {
		if err := c.PingProvider(ctx); err != nil {
			checks["provider"] = err.Error()
			healthy = false
		} else {
			checks["provider"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	common.JSON(w, status, map[string]any{"status": state, "checks": checks})
}
