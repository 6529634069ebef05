package tablesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/loykin/tablesync/internal/config"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/history/factory"
	"github.com/loykin/tablesync/internal/host"
	"github.com/loykin/tablesync/internal/metrics"
	"github.com/loykin/tablesync/internal/module"
	iapi "github.com/loykin/tablesync/internal/server"
	"github.com/loykin/tablesync/internal/table"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Status = module.Status

type Stats = host.Stats

type Order = table.Order

type User = table.User

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StatusInconsistent = module.StatusInconsistent
	StatusStopped      = module.StatusStopped
	StatusRunning      = module.StatusRunning
)

var (
	ErrAlreadyRunning = module.ErrAlreadyRunning
	ErrInconsistent   = module.ErrInconsistent
	ErrSpawnFailed    = module.ErrSpawnFailed
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewLogger builds the slog logger described by the log section of c.
func NewLogger(c *Config) *slog.Logger { return c.LoggerConfig().NewSlogger() }

// Runtime wires the host, the sync module and the optional history, API and
// metrics listeners from one Config.
type Runtime struct {
	cfg        *Config
	logger     *slog.Logger
	host       *host.Host
	ctrl       *module.Controller
	dispatcher *history.Dispatcher

	api        *http.Server
	metricsSrv *http.Server
}

type Option func(*options)

type options struct {
	logger *slog.Logger
	sinks  []HistorySink
}

// WithLogger sets the base logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithSinks adds history sinks next to those opened from cfg.History.Sinks.
func WithSinks(s ...HistorySink) Option { return func(o *options) { o.sinks = append(o.sinks, s...) } }

// New builds a runtime. History sinks named in the config are opened here and
// closed again by Stop.
func New(c *Config, opts ...Option) (*Runtime, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	rt := &Runtime{cfg: c, logger: o.logger}

	var rec module.ChangeRecorder
	var hrec host.Recorder
	if c.History.Enabled {
		sinks, err := factory.NewSinks(c.History.Sinks)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, o.sinks...)
		if len(sinks) > 0 {
			rt.dispatcher = history.NewDispatcher(c.History.QueueSize, o.logger, sinks...)
			rec, hrec = rt.dispatcher, rt.dispatcher
		}
	}

	rt.host = host.New(host.Config{
		BusCapacity: c.Bus.Capacity,
		Monitor: host.MonitorConfig{
			Interval:          c.Monitor.Interval,
			DropWarnThreshold: c.Monitor.DropWarnThreshold,
			ProcessUsage:      c.Monitor.ProcessUsage,
		},
		Peer: host.PeerConfig{
			Disabled:              c.Peer.Disabled,
			HighFrequency:         c.Peer.HighFrequency,
			Interval:              c.Peer.Interval,
			HighFrequencyInterval: c.Peer.HighFrequencyInterval,
		},
		Logger:  o.logger,
		History: hrec,
	})

	ctrl, err := module.NewController(module.Deps{
		Store:   rt.host.Tables(),
		Bus:     rt.host.Bus(),
		Running: rt.host,
		Writer: module.WriterConfig{
			Disabled:              c.Writer.Disabled,
			HighFrequency:         c.Writer.HighFrequency,
			Interval:              c.Writer.Interval,
			HighFrequencyInterval: c.Writer.HighFrequencyInterval,
			ProgressEvery:         c.Writer.ProgressEvery,
			Seed:                  c.Writer.Seed,
		},
		Reader: module.ReaderConfig{
			PollInterval: c.Reader.PollInterval,
			YieldEvery:   c.Reader.YieldEvery,
		},
		Logger:         o.logger,
		History:        rec,
		ObserveHistory: c.History.Observations,
	}, module.WithSpawnTimeout(c.Module.SpawnTimeout), module.WithIDStart(c.Module.IDStart))
	if err != nil {
		if rt.dispatcher != nil {
			_ = rt.dispatcher.Close()
		}
		return nil, err
	}
	rt.ctrl = ctrl
	return rt, nil
}

// Start raises the host running flag, starts the configured listeners and
// initializes the sync module. If Init fails the host is stopped again.
func (r *Runtime) Start() error {
	if r.cfg.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	if err := r.host.Start(); err != nil {
		return err
	}
	if r.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		r.metricsSrv = &http.Server{
			Addr:              r.cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("metrics listener failed", "addr", srv.Addr, "error", err)
			}
		}(r.metricsSrv)
		r.logger.Info("metrics listening", "addr", r.cfg.Metrics.Listen)
	}
	if r.cfg.API.Listen != "" {
		router := iapi.NewRouter(r.ctrl, r.host, r.cfg.API.BasePath)
		r.api = iapi.NewServer(r.cfg.API.Listen, router)
		r.logger.Info("api listening", "addr", r.cfg.API.Listen, "base", r.cfg.API.BasePath)
	}
	if err := r.ctrl.Init(); err != nil {
		r.host.Stop()
		return err
	}
	return nil
}

// Stop shuts the module down (joining both workers), stops the host, the
// listeners and finally the history dispatcher.
func (r *Runtime) Stop(ctx context.Context) error {
	r.ctrl.Shutdown()
	r.host.Stop()

	var errs []error
	for _, srv := range []*http.Server{r.api, r.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	if r.dispatcher != nil {
		if err := r.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) Init() error                     { return r.ctrl.Init() }
func (r *Runtime) Shutdown()                       { r.ctrl.Shutdown() }
func (r *Runtime) EmergencyShutdown()              { r.ctrl.EmergencyShutdown() }
func (r *Runtime) Status() Status                  { return r.ctrl.Status() }
func (r *Runtime) Stats() Stats                    { return r.host.Stats() }
func (r *Runtime) ReadOrder(idx int) (Order, bool) { return r.host.Tables().ReadOrder(idx) }
func (r *Runtime) ReadUser(idx int) (User, bool)   { return r.host.Tables().ReadUser(idx) }

// HistoryDropped counts history events dropped because the export queue was full.
func (r *Runtime) HistoryDropped() uint64 {
	if r.dispatcher == nil {
		return 0
	}
	return r.dispatcher.Dropped()
}

// Handler returns the control API without starting a listener, for mounting
// into an existing mux.
func (r *Runtime) Handler() http.Handler {
	return iapi.NewRouter(r.ctrl, r.host, r.cfg.API.BasePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
