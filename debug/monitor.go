// Package debug provides runtime monitoring and diagnostics for the
// stream adapter (SPEC_FULL §1 "Logging"), the same env-gated periodic
// log.Logger ticker shape as the teacher's debug.Monitor, generalized
// from session counters to the stream/transformer counters this module
// actually owns.
package debug

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/drake/mudtransform/stream"
)

// Enabled returns true if debug mode is active (MUDTRANSFORM_DEBUG=1).
func Enabled() bool {
	return os.Getenv("MUDTRANSFORM_DEBUG") == "1"
}

// Monitor periodically logs adapter statistics when debug mode is enabled.
type Monitor struct {
	adapter  stream.StatsProvider
	interval time.Duration
	ctx      context.Context
	logger   *log.Logger
}

// NewMonitor creates a new monitor for the given adapter. If debug mode is
// not enabled, returns nil so Start is a safe no-op on a nil receiver.
func NewMonitor(ctx context.Context, a stream.StatsProvider) *Monitor {
	if !Enabled() {
		return nil
	}

	return &Monitor{
		adapter:  a,
		interval: 5 * time.Second,
		ctx:      ctx,
		logger:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Start begins the monitoring loop in a goroutine.
func (m *Monitor) Start() {
	if m == nil {
		return
	}
	go m.run()
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Println("[DEBUG] Monitor started")

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Println("[DEBUG] Monitor stopped")
			return
		case <-ticker.C:
			m.logStats()
		}
	}
}

func (m *Monitor) logStats() {
	s := m.adapter.Stats()

	lastRead := "never"
	if !s.LastReadTime.IsZero() {
		lastRead = fmt.Sprintf("%v ago", time.Since(s.LastReadTime).Round(time.Second))
	}

	m.logger.Printf("[DEBUG] conn=%v read=%d written=%d fragments=%d lastRead=%s fragQ=%d/%d inQ=%d/%d compressed=%v mxp=%v",
		s.Connected,
		s.BytesRead,
		s.BytesWritten,
		s.FragmentsEmitted,
		lastRead,
		s.FragmentQueueLen, s.FragmentQueueCap,
		s.InputQueueLen, s.InputQueueCap,
		s.Compressed,
		s.MxpActive,
	)
}
