package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vicinity/cmd/internal/presence"
)

func TestNonZeroDefaults(t *testing.T) {
	t.Parallel()

	if got := nonZeroDuration(0, 5*time.Second); got != 5*time.Second {
		t.Fatalf("nonZeroDuration(0)=%v", got)
	}
	if got := nonZeroDuration(2*time.Second, 5*time.Second); got != 2*time.Second {
		t.Fatalf("nonZeroDuration(2s)=%v", got)
	}
	if got := nonZeroInt(0, 1<<20); got != 1<<20 {
		t.Fatalf("nonZeroInt(0)=%d", got)
	}
	if got := nonZeroInt(42, 1<<20); got != 42 {
		t.Fatalf("nonZeroInt(42)=%d", got)
	}
}

func newTestMux(t *testing.T, cfg Config) *http.ServeMux {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := presence.NewEngine(log, presence.NewInMemoryLastLocationStore(), nil)
	ws := presence.NewWSGateway(log, engine)

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, nil, false, ws)
	return mux
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, Config{})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestReadyz_InMemoryMode(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, Config{})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}

func TestReadyz_RequiresDBWhenConfigured(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, Config{ReadinessRequireDB: true})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d want=503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, Config{})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}
