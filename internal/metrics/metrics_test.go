package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncPublish("delivered")
	IncPublish("delivered_with_drop")
	IncWrite("orders")
	IncWriteError("orders")
	IncObservation("users")
	IncSkipped("empty")
	IncFault("writer")
	SetModuleStatus(1)
	IncTransition("init")
	IncHistoryDropped()
	SetBus(3, 7)
	SetProcessUsage(Usage{CPUPercent: 1.5, MemoryMB: 12})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"tablesync_bus_publish_total":            false,
		"tablesync_bus_pending":                  false,
		"tablesync_bus_dropped":                  false,
		"tablesync_writer_writes_total":          false,
		"tablesync_writer_write_errors_total":    false,
		"tablesync_reader_observations_total":    false,
		"tablesync_reader_skipped_total":         false,
		"tablesync_worker_faults_total":          false,
		"tablesync_module_status":                false,
		"tablesync_controller_transitions_total": false,
		"tablesync_history_dropped_total":        false,
		"tablesync_process_resident_memory_mb":   false,
		"tablesync_process_cpu_percent":          false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestModuleStatusGaugeValue(t *testing.T) {
	reg := freshRegistry(t)
	SetModuleStatus(-1)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "tablesync_module_status" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != -1 {
				t.Fatalf("status gauge = %v, want -1", v)
			}
			return
		}
	}
	t.Fatalf("status gauge not found")
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncWrite("orders")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "tablesync_writer_writes_total") {
		t.Fatalf("metrics output missing writes_total")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncPublish("delivered")
			IncObservation("orders")
			IncWrite("orders")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops, must not panic
	IncPublish("failed")
	IncWrite("orders")
	IncFault("reader")
	SetModuleStatus(0)
	SetBus(0, 0)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatal("gate must stay closed after a failed registration")
	}
}

func TestUsageSampler(t *testing.T) {
	s, err := NewUsageSampler()
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	u, err := s.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if u.MemoryMB <= 0 {
		t.Fatalf("expected positive RSS, got %v", u.MemoryMB)
	}
	if u.Goroutines <= 0 {
		t.Fatalf("expected goroutine count")
	}
}

func TestUsageSamplerReusesHandle(t *testing.T) {
	s, err := NewUsageSampler()
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	proc := s.proc
	time.Sleep(20 * time.Millisecond)
	u, err := s.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if s.proc != proc {
		t.Fatalf("sampler replaced its process handle")
	}
	if u.CPUPercent < 0 {
		t.Fatalf("negative cpu percent: %v", u.CPUPercent)
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
