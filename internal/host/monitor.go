package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/tablesync/internal/metrics"
)

// monitor periodically logs bus throughput and warns on heavy dropping.
type monitor struct {
	h      *Host
	logger *slog.Logger
	start  time.Time
	usage  *metrics.UsageSampler

	lastPublished uint64
	lastConsumed  uint64
}

func newMonitor(h *Host) *monitor {
	m := &monitor{h: h, logger: h.cfg.Logger.With("component", "monitor"), start: time.Now()}
	if h.cfg.Monitor.ProcessUsage {
		s, err := metrics.NewUsageSampler()
		if err != nil {
			m.logger.Warn("process usage sampling disabled", "error", err)
		} else {
			m.usage = s
		}
	}
	return m
}

func (m *monitor) run(ctx context.Context) {
	t := time.NewTicker(m.h.cfg.Monitor.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !m.h.IsRunning() {
				return
			}
			m.tick()
		}
	}
}

func (m *monitor) tick() {
	st := m.h.bus.Stats()
	secs := m.h.cfg.Monitor.Interval.Seconds()
	ratePub := float64(st.Published-m.lastPublished) / secs
	rateCon := float64(st.Consumed-m.lastConsumed) / secs
	m.lastPublished, m.lastConsumed = st.Published, st.Consumed

	m.logger.Info(fmt.Sprintf("STATS runtime=%.1fs published=%d consumed=%d drops=%d rate_pub=%.1f/s rate_con=%.1f/s",
		time.Since(m.start).Seconds(), st.Published, st.Consumed, st.Dropped, ratePub, rateCon))
	metrics.SetBus(st.Pending, st.Dropped)

	if st.Dropped > m.h.cfg.Monitor.DropWarnThreshold {
		m.logger.Warn("high drop count detected", "drops", st.Dropped, "threshold", m.h.cfg.Monitor.DropWarnThreshold)
	}

	if m.usage != nil {
		u, err := m.usage.Sample()
		if err != nil {
			m.logger.Debug("process usage unavailable", "error", err)
			return
		}
		metrics.SetProcessUsage(u)
		m.logger.Debug("process usage", "cpu_percent", u.CPUPercent, "memory_mb", u.MemoryMB,
			"threads", u.NumThreads, "goroutines", u.Goroutines)
	}
}
