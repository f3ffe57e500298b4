package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/metrics"
	"github.com/lazypower/mnemo/internal/snapshot"
	"github.com/lazypower/mnemo/internal/store"
)

func testServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	snaps := snapshot.NewManager(snapshot.NewDirMedium(t.TempDir()))
	eng := engine.New(memory.New(), snaps, engine.WithJournal(db))
	t.Cleanup(eng.Stop)
	return New(eng, "test-version", opts...)
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["records"] != float64(0) {
		t.Errorf("records = %v, want 0", body["records"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("/metrics without collector: status = %d, want 404", w.Code)
	}

	srv = testServer(t, WithMetrics(metrics.New(metrics.Config{})))
	w := do(t, srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mnemo_snapshots_total") && !strings.Contains(w.Body.String(), "mnemo_records") {
		t.Errorf("metrics body missing mnemo series: %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	srv := testServer(t, WithCORS([]string{"http://localhost:3000"}))

	req := httptest.NewRequest("OPTIONS", "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{memory.ErrInvalidInput, http.StatusBadRequest},
		{memory.ErrNotFound, http.StatusNotFound},
		{snapshot.ErrNoSnapshots, http.StatusNotFound},
		{&snapshot.CorruptionError{Name: "x", Reason: "bad"}, http.StatusUnprocessableEntity},
		{snapshot.ErrCancelled, http.StatusServiceUnavailable},
		{engine.ErrNoJournal, http.StatusNotImplemented},
		{&snapshot.IOError{Op: "find", Name: "x", Err: io.EOF}, http.StatusNotFound},
		{&snapshot.IOError{Op: "write", Name: "x", Err: io.EOF}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
