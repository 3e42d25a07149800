package readiness

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeaconHealthyWithinTimeout(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &Beacon{timeout: 500 * time.Millisecond, now: func() time.Time { return clock }}
	b.UpdateLastSeen()

	clock = clock.Add(400 * time.Millisecond)
	assert.True(t, b.Healthy())

	clock = clock.Add(200 * time.Millisecond)
	assert.False(t, b.Healthy())

	b.UpdateLastSeen()
	assert.True(t, b.Healthy())
}

func TestBeaconStartsHealthy(t *testing.T) {
	b := NewBeacon(time.Second)
	assert.True(t, b.Healthy())
}

func TestHandlerStatusCodes(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &Beacon{timeout: time.Second, now: func() time.Time { return clock }}
	b.UpdateLastSeen()

	e := echo.New()
	b.Mount(e)

	probe := func() int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, probe())

	clock = clock.Add(2 * time.Second)
	require.Equal(t, http.StatusServiceUnavailable, probe())
}
