// Package supervisor watches per-source pipeline liveness and restarts
// stalled sources with capped exponential backoff. Liveness is judged by
// frame arrival time only; status text from a source is never trusted.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"cctv/internal/clock"
	"cctv/internal/config"
)

// Target is one supervised pipeline.
// Params: running state, last frame arrival, stop, and start.
// Returns: restart surface for the monitor; Start may fail and be retried.
type Target interface {
	Running() bool
	LastFrameAt() time.Time
	Stop()
	Start() error
}

// Delay maps a retry count to the backoff before the next restart.
// Params: retry count and cap in seconds.
// Returns: min(maxDelaySec, 2^retry) seconds.
func Delay(retry, maxDelaySec int) time.Duration {
	seconds := 1
	for i := 0; i < retry; i++ {
		seconds *= 2
		if seconds >= maxDelaySec {
			return time.Duration(maxDelaySec) * time.Second
		}
	}
	return time.Duration(seconds) * time.Second
}

// Monitor supervises one target on a fixed check cadence.
// Params: source id for logging, target, tuning, clock, and logger.
// Returns: monitor driven by Run, or by Tick in tests.
type Monitor struct {
	sourceID int
	target   Target
	check    time.Duration
	stale    time.Duration
	maxRetry int
	maxDelay int
	clk      clock.Clock
	log      *slog.Logger

	retry int
	due   time.Time
}

// NewMonitor builds the supervisor for one source.
// Params: source id, target, supervisor tuning, clock, and logger.
// Returns: monitor with zero retries recorded.
func NewMonitor(sourceID int, target Target, cfg config.SupervisorConfig, clk clock.Clock, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sourceID: sourceID,
		target:   target,
		check:    time.Duration(cfg.CheckSec) * time.Second,
		stale:    time.Duration(cfg.StaleSec) * time.Second,
		maxRetry: cfg.MaxRetry,
		maxDelay: cfg.MaxDelaySec,
		clk:      clk,
		log:      logger.With("component", "supervisor", "source_id", sourceID),
	}
}

// Run ticks the monitor until the context ends.
// Params: context.
// Returns: when canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.check)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(m.clk.Now())
		}
	}
}

// Tick evaluates the target once.
// Params: current time.
// Returns: may stop a stale target, attempt a due restart, confirm a
// recovery, or decay the retry count.
func (m *Monitor) Tick(now time.Time) {
	if m.target.Running() {
		last := m.target.LastFrameAt()
		if !last.IsZero() && now.Sub(last) > m.stale {
			m.log.Warn("source stale, stopping", "last_frame_age", now.Sub(last).String())
			m.target.Stop()
			m.scheduleRetry(now)
			return
		}
		if m.retry != 0 && !last.IsZero() {
			m.log.Info("source recovered", "retries_used", m.retry)
			m.retry = 0
			m.due = time.Time{}
		}
		return
	}

	if m.due.IsZero() {
		// Stopped with no restart scheduled (manual stop or startup):
		// old failures age out one tick at a time.
		if m.retry > 0 {
			m.retry--
		}
		return
	}
	if now.Before(m.due) {
		return
	}

	m.log.Info("restarting source", "retry", m.retry)
	if err := m.target.Start(); err != nil {
		m.log.Warn("restart failed", "error", err)
		m.scheduleRetry(now)
		return
	}
	m.due = time.Time{}
}

// NoteFailure records an externally observed start failure so the next
// attempt is booked with backoff. Used for sources that fail to open at
// boot, before any Tick has run.
// Params: current time.
// Returns: a retry scheduled as if Tick had seen the failure.
func (m *Monitor) NoteFailure(now time.Time) {
	m.scheduleRetry(now)
}

// scheduleRetry advances the retry count and books the next attempt.
func (m *Monitor) scheduleRetry(now time.Time) {
	if m.retry < m.maxRetry {
		m.retry++
	}
	m.due = now.Add(Delay(m.retry, m.maxDelay))
	m.log.Info("restart scheduled", "retry", m.retry, "delay", Delay(m.retry, m.maxDelay).String())
}
