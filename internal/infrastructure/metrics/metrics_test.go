package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCycle(t *testing.T) {
	m := New(Options{})

	m.ObserveCycle("shutdown-pending", 3*time.Second)
	m.ObserveCycle("shutdown-pending", 4*time.Second)
	m.ObserveCycle("aborted-no-alarm", time.Second)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("shutdown-pending")); got != 2 {
		t.Errorf("shutdown-pending cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("aborted-no-alarm")); got != 1 {
		t.Errorf("aborted-no-alarm cycles = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.CycleDuration); got != 1 {
		t.Errorf("CycleDuration series = %d, want 1", got)
	}
	if testutil.ToFloat64(m.LastCycleEnded) == 0 {
		t.Error("LastCycleEnded not set")
	}
}

func TestRecordMessageAndRender(t *testing.T) {
	m := New(Options{})

	m.RecordMessage(MessageHandled)
	m.RecordMessage(MessageInvalid)
	m.RecordMessage(MessageHandled)
	m.RecordRender(RenderSkipped)

	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues(MessageHandled)); got != 2 {
		t.Errorf("handled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues(MessageInvalid)); got != 1 {
		t.Errorf("invalid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RendersTotal.WithLabelValues(RenderSkipped)); got != 1 {
		t.Errorf("skipped renders = %v, want 1", got)
	}
}

func TestSetBatteryLevel(t *testing.T) {
	m := New(Options{})
	m.SetBatteryLevel(87.5)

	if got := testutil.ToFloat64(m.BatteryLevel); got != 87.5 {
		t.Errorf("BatteryLevel = %v, want 87.5", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(Options{})
	m.SetBatteryLevel(50)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "inkframe_battery_level_percent 50") {
		t.Errorf("exposition missing battery gauge:\n%s", body)
	}
}

func TestFlush_NoPushgateway(t *testing.T) {
	m := New(Options{})
	if err := m.Flush(context.Background()); err != nil {
		t.Errorf("Flush() without pushgateway error = %v", err)
	}
}

func TestFlush_Pushgateway(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := New(Options{PushgatewayURL: gw.URL, Job: "frames", DeviceID: "frame-1"})
	m.ObserveCycle("shutdown-pending", time.Second)

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 {
		t.Fatalf("pushgateway requests = %d, want 1", len(paths))
	}
	if want := "/metrics/job/frames/device/frame-1"; paths[0] != want {
		t.Errorf("push path = %q, want %q", paths[0], want)
	}
	if body == "" {
		t.Error("push body empty")
	}
}

func TestFlush_PushgatewayError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gw.Close()

	m := New(Options{PushgatewayURL: gw.URL})
	if err := m.Flush(context.Background()); err == nil {
		t.Error("Flush() expected error on 500 from pushgateway")
	}
}
