package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/host"
	"github.com/loykin/tablesync/internal/logger"
	"github.com/loykin/tablesync/internal/module"
	"github.com/loykin/tablesync/internal/table"
)

func setupHost(t *testing.T) *host.Host {
	t.Helper()
	h := host.New(host.Config{Logger: logger.Discard(), Peer: host.PeerConfig{Disabled: true}})
	if err := h.Start(); err != nil {
		t.Fatalf("host start: %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}

func setupRouter(t *testing.T, base string) (http.Handler, *host.Host, *module.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := setupHost(t)
	ctrl, err := module.NewController(module.Deps{
		Store:   h.Tables(),
		Bus:     h.Bus(),
		Running: h,
		Logger:  logger.Discard(),
		Writer:  module.WriterConfig{Interval: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	t.Cleanup(ctrl.Shutdown)
	return NewRouter(ctrl, h, base).Handler(), h, ctrl
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusStopped(t *testing.T) {
	h, _, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	st := decode[StatusResp](t, rec)
	if st.Status != "stopped" || st.Code != 0 || len(st.Workers) != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestInitShutdownFlow(t *testing.T) {
	h, _, ctrl := setupRouter(t, "")

	rec := doReq(t, h, http.MethodPost, "/init")
	if rec.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if st := decode[StatusResp](t, rec); st.Code != 1 || len(st.Workers) != 2 {
		t.Fatalf("unexpected status after init: %+v", st)
	}

	rec = doReq(t, h, http.MethodPost, "/init")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second init: expected 409, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodPost, "/shutdown")
	if rec.Code != http.StatusOK {
		t.Fatalf("shutdown: expected 200, got %d", rec.Code)
	}
	if st := decode[StatusResp](t, rec); st.Status != "stopped" {
		t.Fatalf("unexpected status after shutdown: %+v", st)
	}
	if ctrl.Status() != module.StatusStopped {
		t.Fatalf("controller still %s", ctrl.Status())
	}
}

func TestEmergencyShutdown(t *testing.T) {
	h, _, ctrl := setupRouter(t, "")
	if err := ctrl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec := doReq(t, h, http.MethodPost, "/emergency-shutdown")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ctrl.Status() != module.StatusStopped {
		t.Fatalf("controller still %s", ctrl.Status())
	}
}

func TestRecordEndpoints(t *testing.T) {
	h, hst, _ := setupRouter(t, "/sync")
	if err := hst.Tables().WriteOrder(3, table.Order{ID: 8003, Version: 2, Qty: 7, Price: 150.5}); err != nil {
		t.Fatal(err)
	}
	if err := hst.Tables().WriteUser(2, table.User{ID: 2002, Version: 1, Name: table.EncodeName("Charlie_2")}); err != nil {
		t.Fatal(err)
	}

	rec := doReq(t, h, http.MethodGet, "/sync/orders/3")
	if rec.Code != http.StatusOK {
		t.Fatalf("order: expected 200, got %d", rec.Code)
	}
	if o := decode[table.Order](t, rec); o.ID != 8003 || o.Version != 2 || o.Qty != 7 {
		t.Fatalf("unexpected order: %+v", o)
	}

	rec = doReq(t, h, http.MethodGet, "/sync/users/2")
	if rec.Code != http.StatusOK {
		t.Fatalf("user: expected 200, got %d", rec.Code)
	}
	if u := decode[UserResp](t, rec); u.Name != "Charlie_2" || u.ID != 2002 {
		t.Fatalf("unexpected user: %+v", u)
	}

	cases := []struct {
		path string
		code int
	}{
		{"/sync/orders/4", http.StatusNotFound},
		{"/sync/orders/128", http.StatusBadRequest},
		{"/sync/users/64", http.StatusBadRequest},
		{"/sync/users/x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := doReq(t, h, http.MethodGet, tc.path); rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.code, rec.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, hst, _ := setupRouter(t, "")
	hst.Bus().Publish(bus.Event{Table: table.Orders, Index: 1, Op: bus.OpUpsert, Version: 1})
	rec := doReq(t, h, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	st := decode[host.Stats](t, rec)
	if !st.Running || st.Bus.Published != 1 || st.Bus.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

type failingModule struct{ err error }

func (f failingModule) Init() error                 { return f.err }
func (failingModule) Shutdown()                     {}
func (failingModule) EmergencyShutdown()            {}
func (failingModule) Status() module.Status         { return module.StatusStopped }
func (failingModule) Workers() []module.WorkerState { return nil }

func TestInitSpawnFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mod := failingModule{err: fmt.Errorf("reader: %w: %w", module.ErrSpawnFailed, errors.New("no threads"))}
	h := NewRouter(mod, setupHost(t), "").Handler()
	rec := doReq(t, h, http.MethodPost, "/init")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRouter(failingModule{}, setupHost(t), "/api").WithMetrics().Handler()
	rec := doReq(t, h, http.MethodGet, "/api/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doReq(t, NewRouter(failingModule{}, setupHost(t), "/api").Handler(), http.MethodGet, "/api/metrics")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should not be mounted by default, got %d", rec.Code)
	}
}
