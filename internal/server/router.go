package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/tablesync/internal/host"
	"github.com/loykin/tablesync/internal/metrics"
	"github.com/loykin/tablesync/internal/module"
	"github.com/loykin/tablesync/internal/table"
)

// Module is the lifecycle surface exposed over HTTP.
type Module interface {
	Init() error
	Shutdown()
	EmergencyShutdown()
	Status() module.Status
	Workers() []module.WorkerState
}

// Host is the inspection surface of the embedding host.
type Host interface {
	Stats() host.Stats
	Tables() *table.Tables
}

// Router provides embeddable HTTP handlers for controlling the sync module.
// Endpoints:
//
//	GET  {basePath}/status
//	GET  {basePath}/stats
//	GET  {basePath}/orders/:idx
//	GET  {basePath}/users/:idx
//	POST {basePath}/init
//	POST {basePath}/shutdown
//	POST {basePath}/emergency-shutdown
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mod      Module
	host     Host
	basePath string
	metrics  bool
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(mod Module, h Host, basePath string) *Router {
	return &Router{mod: mod, host: h, basePath: sanitizeBase(basePath)}
}

// WithMetrics also serves Prometheus metrics at {basePath}/metrics.
func (r *Router) WithMetrics() *Router {
	r.metrics = true
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/stats", r.handleStats)
	group.GET("/orders/:idx", r.handleOrder)
	group.GET("/users/:idx", r.handleUser)
	group.POST("/init", r.handleInit)
	group.POST("/shutdown", r.handleShutdown)
	group.POST("/emergency-shutdown", r.handleEmergencyShutdown)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// StatusResp is the body of GET /status and of every lifecycle POST.
type StatusResp struct {
	Status  string               `json:"status"`
	Code    int                  `json:"code"`
	Workers []module.WorkerState `json:"workers,omitempty"`
}

// UserResp is the JSON view of a users slot.
type UserResp struct {
	ID      uint64 `json:"id"`
	Version uint32 `json:"version"`
	Name    string `json:"name"`
}

func (r *Router) status() StatusResp {
	s := r.mod.Status()
	return StatusResp{Status: s.String(), Code: int(s), Workers: r.mod.Workers()}
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.status())
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.host.Stats())
}

func (r *Router) handleOrder(c *gin.Context) {
	idx, ok := parseIndex(c, table.OrdersCap)
	if !ok {
		return
	}
	o, found := r.host.Tables().ReadOrder(idx)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "empty slot"})
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (r *Router) handleUser(c *gin.Context) {
	idx, ok := parseIndex(c, table.UsersCap)
	if !ok {
		return
	}
	u, found := r.host.Tables().ReadUser(idx)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "empty slot"})
		return
	}
	writeJSON(c, http.StatusOK, UserResp{ID: u.ID, Version: u.Version, Name: u.NameString()})
}

func (r *Router) handleInit(c *gin.Context) {
	err := r.mod.Init()
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, r.status())
	case errors.Is(err, module.ErrAlreadyRunning), errors.Is(err, module.ErrInconsistent):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleShutdown(c *gin.Context) {
	r.mod.Shutdown()
	writeJSON(c, http.StatusOK, r.status())
}

func (r *Router) handleEmergencyShutdown(c *gin.Context) {
	r.mod.EmergencyShutdown()
	writeJSON(c, http.StatusOK, r.status())
}
