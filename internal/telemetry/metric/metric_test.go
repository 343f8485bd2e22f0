package metric

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.ObserveSave(ResultOK, time.Millisecond, 10)
	r.ObserveRemove(ResultOK)
	r.ObserveRestore("structured", ResultOK)
	r.SetSessions("crashed", 1)
	r.AddPruned(1)
	r.IncProbeFailure()
	r.SetPending(3)
}

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveSave(ResultOK, 5*time.Millisecond, 100)
	r.ObserveSave(ResultOK, 5*time.Millisecond, 50)
	r.ObserveSave(ResultError, time.Millisecond, 999)
	r.ObserveSave(ResultSkipped, 0, 0)
	r.AddPruned(2)
	r.AddPruned(0)
	r.SetSessions("crashed", 3)

	if got := testutil.ToFloat64(r.saves.WithLabelValues(ResultOK)); got != 2 {
		t.Fatalf("ok saves = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.bytesWritten); got != 150 {
		t.Fatalf("bytes written = %v, want 150", got)
	}
	if got := testutil.ToFloat64(r.pruned); got != 2 {
		t.Fatalf("pruned = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.sessions.WithLabelValues("crashed")); got != 3 {
		t.Fatalf("crashed sessions = %v, want 3", got)
	}
}

func TestRecorder_UnregisteredDoesNotPanic(t *testing.T) {
	a := NewRecorder(nil)
	b := NewRecorder(nil)
	a.ObserveSave(ResultOK, time.Millisecond, 1)
	b.ObserveSave(ResultOK, time.Millisecond, 1)
}

func TestRootCollector(t *testing.T) {
	c := NewRootCollector("/tmp/sessions", func() (RootStats, error) {
		return RootStats{Sessions: map[string]int{"crashed": 2, "running": 1}, Bytes: 4096}, nil
	})
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Fatalf("CollectAndCount = %d, want 3", n)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "sprite_recovery_root_bytes") {
		t.Fatalf("metrics output missing root bytes:\n%s", body)
	}
}

func TestRootCollector_Error(t *testing.T) {
	c := NewRootCollector("/x", func() (RootStats, error) {
		return RootStats{}, errors.New("unreadable")
	})
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	if _, err := reg.Gather(); err == nil {
		t.Fatal("Gather should report the collector error")
	}
}
