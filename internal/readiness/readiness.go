// Package readiness exposes a liveness beacon for the pull-consumer loops.
// A worker calls UpdateLastSeen once per fetch cycle; the probe reports
// healthy only while the last heartbeat is younger than the configured
// timeout, so a wedged consumer flips the probe without the process dying.
package readiness

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Beacon tracks the last heartbeat of a worker loop.
type Beacon struct {
	mu       sync.Mutex
	lastSeen time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewBeacon returns a beacon that considers the worker healthy for the
// given duration after each heartbeat. The beacon starts healthy so probes
// do not flap during startup.
func NewBeacon(timeout time.Duration) *Beacon {
	b := &Beacon{timeout: timeout, now: time.Now}
	b.lastSeen = b.now()
	return b
}

// UpdateLastSeen records a heartbeat.
func (b *Beacon) UpdateLastSeen() {
	b.mu.Lock()
	b.lastSeen = b.now()
	b.mu.Unlock()
}

// Healthy reports whether the last heartbeat is within the timeout.
func (b *Beacon) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.lastSeen) < b.timeout
}

// Handler serves the readiness probe: 200 while healthy, 503 once the
// heartbeat goes stale.
func (b *Beacon) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		if b.Healthy() {
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "stale"})
	}
}

// Mount registers the probe endpoints on an echo instance.
func (b *Beacon) Mount(e *echo.Echo) {
	e.GET("/healthz", b.Handler())
	e.GET("/readyz", b.Handler())
}
