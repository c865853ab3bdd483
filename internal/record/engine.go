package record

import (
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/clock"
	"cctv/internal/domain"
)

// Engine is the per-source recording state machine. It moves between Idle
// and Recording according to the effective policy and the detection
// evidence observed per frame.
// Params: source id, effective policy, grace window for motion policy,
// clock, and writer factory.
// Returns: engine owning at most one writer session at a time.
type Engine struct {
	sourceID int
	policy   domain.RecordPolicy
	grace    time.Duration
	clk      clock.Clock
	factory  WriterFactory

	writer     Writer
	path       string
	width      int
	height     int
	lastMotion time.Time
	manualOn   bool
}

// NewEngine builds the recording engine for one source.
// Params: source id, effective policy, motion grace window, clock, and
// writer factory.
// Returns: engine starting in Idle.
func NewEngine(sourceID int, policy domain.RecordPolicy, grace time.Duration, clk clock.Clock, factory WriterFactory) *Engine {
	return &Engine{
		sourceID: sourceID,
		policy:   policy,
		grace:    grace,
		clk:      clk,
		factory:  factory,
	}
}

// Observe feeds one frame and its detection evidence through the policy.
// Params: frame matrix, frame dimensions, person count, and motion flag.
// Returns: writer open or write error; the engine stays consistent and a
// later frame may recover.
func (e *Engine) Observe(img gocv.Mat, width, height int, persons int, motion bool) error {
	now := e.clk.Now()
	if motion {
		e.lastMotion = now
	}

	if !e.wantRecording(now, persons, motion) {
		return e.closeWriter()
	}

	if e.writer != nil && (width != e.width || height != e.height) {
		if err := e.closeWriter(); err != nil {
			return err
		}
	}
	if e.writer == nil {
		writer, path, err := e.factory(e.sourceID, width, height)
		if err != nil {
			return err
		}
		e.writer, e.path = writer, path
		e.width, e.height = width, height
	}
	return e.writer.Write(img)
}

// wantRecording evaluates the policy against current evidence.
func (e *Engine) wantRecording(now time.Time, persons int, motion bool) bool {
	switch e.policy {
	case domain.PolicyAlways:
		return true
	case domain.PolicyMotion:
		if motion {
			return true
		}
		return !e.lastMotion.IsZero() && now.Sub(e.lastMotion) <= e.grace
	case domain.PolicyPerson:
		return persons > 0
	default: // manual
		return e.manualOn
	}
}

// SetPolicy switches the effective policy, ending any open session.
// Params: new effective policy.
// Returns: close error from the previous session.
func (e *Engine) SetPolicy(policy domain.RecordPolicy) error {
	if policy == e.policy {
		return nil
	}
	e.policy = policy
	e.manualOn = false
	e.lastMotion = time.Time{}
	return e.closeWriter()
}

// StartManual arms manual recording; effective under the manual policy.
// Params: none.
// Returns: recording begins on the next observed frame.
func (e *Engine) StartManual() {
	e.manualOn = true
}

// StopManual disarms manual recording and ends any open session.
// Params: none.
// Returns: close error from the session.
func (e *Engine) StopManual() error {
	e.manualOn = false
	return e.closeWriter()
}

// Recording reports whether a writer session is open.
func (e *Engine) Recording() bool {
	return e.writer != nil
}

// CurrentPath returns the open session's output path, empty when Idle.
func (e *Engine) CurrentPath() string {
	return e.path
}

// Close ends any open session. Safe to call repeatedly.
// Params: none.
// Returns: close error from the writer.
func (e *Engine) Close() error {
	return e.closeWriter()
}

// closeWriter releases the session writer exactly once.
func (e *Engine) closeWriter() error {
	if e.writer == nil {
		return nil
	}
	writer := e.writer
	e.writer = nil
	e.path = ""
	return writer.Close()
}
