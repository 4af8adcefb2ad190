package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
	"github.com/nerrad567/inkframe/internal/infrastructure/logging"
	"github.com/nerrad567/inkframe/internal/ledger"
	"github.com/nerrad567/inkframe/internal/mode"
)

type fakeLedger struct {
	render *ledger.Render
	err    error
}

func (f *fakeLedger) Current(context.Context, string) (*ledger.Render, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.render == nil {
		return nil, ledger.ErrNotFound
	}
	return f.render, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

type fakeChannel bool

func (f fakeChannel) ChannelConnected() bool { return bool(f) }

func testDeps() Deps {
	return Deps{
		Config:   config.APIConfig{Enabled: true, Host: "127.0.0.1", Port: 0},
		Logger:   logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test"),
		Version:  "test",
		DeviceID: "frame",
		Display:  DisplayInfo{Model: "7in3e", Width: 800, Height: 480},
		State:    mode.New(mode.Continuous),
		Channel:  fakeChannel(true),
		Ledger:   &fakeLedger{},
		Database: fakeHealth{},
	}
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	deps := testDeps()
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger should fail")
	}

	deps = testDeps()
	deps.State = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without mode state should fail")
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := get(t, testServer(t, testDeps()), "/api/v1/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "ok" || body.Version != "test" || body.Checks["database"] != "ok" {
			t.Errorf("body = %+v", body)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
	})

	t.Run("database down", func(t *testing.T) {
		deps := testDeps()
		deps.Database = fakeHealth{err: errors.New("disk I/O error")}
		rec := get(t, testServer(t, deps), "/api/v1/health")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "degraded") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}

func TestHandleStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deps := testDeps()
	deps.Ledger = &fakeLedger{render: &ledger.Render{
		DisplayID: "frame", ContentDigest: "abc", SourceURL: "http://x/1.png", RenderedAt: at,
	}}

	rec := get(t, testServer(t, deps), "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mode != "continuous" || !body.ChannelConnected || body.DeviceID != "frame" {
		t.Errorf("body = %+v", body)
	}
	if body.Display.Width != 800 {
		t.Errorf("display = %+v", body.Display)
	}
	if body.LastRender == nil || body.LastRender.ContentDigest != "abc" ||
		body.LastRender.RenderedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("last_render = %+v", body.LastRender)
	}
}

func TestHandleStatus_NothingRendered(t *testing.T) {
	rec := get(t, testServer(t, testDeps()), "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"last_render":null`) {
		t.Errorf("body = %s, want null last_render", rec.Body.String())
	}
}

func TestHandleStatus_LedgerError(t *testing.T) {
	deps := testDeps()
	deps.Ledger = &fakeLedger{err: errors.New("locked")}

	rec := get(t, testServer(t, deps), "/api/v1/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	deps := testDeps()
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("inkframe_cycles_total 1\n"))
	})

	rec := get(t, testServer(t, deps), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "inkframe_cycles_total") {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}

	rec = get(t, testServer(t, testDeps()), "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, testServer(t, testDeps()), "/api/v1/devices")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	testServer(t, testDeps()).Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rr.Code)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestErrorEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("X-Request-ID", "cycle-42")
	rec := httptest.NewRecorder()
	testServer(t, testDeps()).Handler().ServeHTTP(rec, req)

	body := decodeError(t, rec)
	if body.Error.Code != codeNotFound {
		t.Errorf("code = %q, want %q", body.Error.Code, codeNotFound)
	}
	if body.DeviceID != "frame" {
		t.Errorf("device_id = %q, want frame", body.DeviceID)
	}
	if body.RequestID != "cycle-42" || rec.Header().Get("X-Request-ID") != "cycle-42" {
		t.Errorf("request id = %q / %q, want client value echoed", body.RequestID, rec.Header().Get("X-Request-ID"))
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("responses must not be cacheable")
	}

	deps := testDeps()
	deps.Ledger = &fakeLedger{err: errors.New("locked")}
	rec = get(t, testServer(t, deps), "/api/v1/status")
	if got := decodeError(t, rec).Error.Code; got != codeLedgerUnavailable {
		t.Errorf("ledger failure code = %q, want %q", got, codeLedgerUnavailable)
	}
}

func TestRequestID_RejectsUnusableClientValue(t *testing.T) {
	for _, id := range []string{"", "has space", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", id)
		rec := httptest.NewRecorder()
		testServer(t, testDeps()).Handler().ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == id || len(got) != 36 {
			t.Errorf("X-Request-ID for %q = %q, want a fresh UUID", id, got)
		}
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	deps := testDeps()
	deps.Logger = logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, "test")
	srv := testServer(t, deps)

	get(t, srv, "/api/v1/health")
	if buf.Len() != 0 {
		t.Errorf("health polls should log at debug, got %s", buf.String())
	}

	get(t, srv, "/api/v1/status")
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]any{
		"msg":       "http request",
		"component": "api",
		"device_id": "frame",
		"mode":      "continuous",
		"path":      "/api/v1/status",
	} {
		if entry[key] != want {
			t.Errorf("log %s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	srv := testServer(t, testDeps())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Addr() == "" {
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(gracefulShutdownTimeout):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestCloseBeforeStart(t *testing.T) {
	if err := testServer(t, testDeps()).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
