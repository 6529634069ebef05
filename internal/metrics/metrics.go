package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	busPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "bus",
			Name:      "publish_total",
			Help:      "Publish attempts by outcome (delivered, delivered_with_drop, failed).",
		}, []string{"outcome"},
	)
	busPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablesync",
			Subsystem: "bus",
			Name:      "pending",
			Help:      "Events waiting in the bus at the last monitor tick.",
		},
	)
	busDropped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablesync",
			Subsystem: "bus",
			Name:      "dropped",
			Help:      "Cumulative events evicted by drop-oldest overflow.",
		},
	)
	writerWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "writer",
			Name:      "writes_total",
			Help:      "Records committed to a shared table.",
		}, []string{"table"},
	)
	writerWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "writer",
			Name:      "write_errors_total",
			Help:      "Writer iterations abandoned because the store rejected the write.",
		}, []string{"table"},
	)
	readerObservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "reader",
			Name:      "observations_total",
			Help:      "Change events mirrored by reading the referenced record.",
		}, []string{"table"},
	)
	readerSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "reader",
			Name:      "skipped_total",
			Help:      "Consumed events that produced no observation.",
		}, []string{"reason"},
	)
	workerFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "worker",
			Name:      "faults_total",
			Help:      "Worker panics caught by containment.",
		}, []string{"worker"},
	)
	moduleStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablesync",
			Subsystem: "module",
			Name:      "status",
			Help:      "Controller status code (1 running, 0 stopped, -1 inconsistent).",
		},
	)
	controllerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "controller",
			Name:      "transitions_total",
			Help:      "Lifecycle operations performed by the controller.",
		}, []string{"op"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events discarded because the export queue was full.",
		},
	)
	processRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablesync",
			Subsystem: "process",
			Name:      "resident_memory_mb",
			Help:      "Resident memory of the host process at the last monitor tick.",
		},
	)
	processCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablesync",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the host process at the last monitor tick.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		busPublish, busPending, busDropped,
		writerWrites, writerWriteErrors,
		readerObservations, readerSkipped,
		workerFaults, moduleStatus, controllerTransitions,
		historyDropped, processRSS, processCPU,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncPublish(outcome string) {
	if regOK.Load() {
		busPublish.WithLabelValues(outcome).Inc()
	}
}

func SetBus(pending int, dropped uint64) {
	if regOK.Load() {
		busPending.Set(float64(pending))
		busDropped.Set(float64(dropped))
	}
}

func IncWrite(table string) {
	if regOK.Load() {
		writerWrites.WithLabelValues(table).Inc()
	}
}

func IncWriteError(table string) {
	if regOK.Load() {
		writerWriteErrors.WithLabelValues(table).Inc()
	}
}

func IncObservation(table string) {
	if regOK.Load() {
		readerObservations.WithLabelValues(table).Inc()
	}
}

func IncSkipped(reason string) {
	if regOK.Load() {
		readerSkipped.WithLabelValues(reason).Inc()
	}
}

func IncFault(worker string) {
	if regOK.Load() {
		workerFaults.WithLabelValues(worker).Inc()
	}
}

func SetModuleStatus(code int) {
	if regOK.Load() {
		moduleStatus.Set(float64(code))
	}
}

func IncTransition(op string) {
	if regOK.Load() {
		controllerTransitions.WithLabelValues(op).Inc()
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}

func SetProcessUsage(u Usage) {
	if regOK.Load() {
		processRSS.Set(u.MemoryMB)
		processCPU.Set(u.CPUPercent)
	}
}
