// Package source provides frame producers for the supported transports:
// local capture devices, network streams, HTTP multipart push streams, and
// HTTP snapshot polling. Every producer yields a lazy, restartable sequence
// of decoded frames plus advisory status events; liveness is judged by frame
// arrival time, never by status text.
package source

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

// ErrStopped marks the terminal end of a frame sequence after Stop.
var ErrStopped = errors.New("source stopped")

// ErrOpenFailed marks a source that could not be opened on any strategy.
var ErrOpenFailed = errors.New("open failed")

// stopPollGranularity bounds how long a producer may block before it
// re-checks the stop flag.
const stopPollGranularity = 200 * time.Millisecond

// Frame is one decoded image handed off by value to its consumer.
// Params: owning source id, pixel matrix, and capture timestamp.
// Returns: transient frame; the consumer must close the matrix.
type Frame struct {
	SourceID   int
	Mat        gocv.Mat
	CapturedAt time.Time
}

// Close releases the frame's pixel buffer.
// Params: none.
// Returns: close error from the matrix.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Status is one advisory state-transition message from a producer.
// Params: source id and human-readable text.
// Returns: observability event for logging; never authoritative.
type Status struct {
	SourceID int
	Text     string
}

// FrameSource is the capability interface shared by all transports.
// Params: open establishes the transport; next blocks for one frame; stop
// ends the sequence within one poll granularity.
// Returns: infinite frame sequence terminated by ErrStopped or a fatal
// ErrOpenFailed.
type FrameSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Frame, error)
	Stop()
}

// New builds the producer for one configured source.
// Params: source descriptor, capture tuning, and status sink.
// Returns: transport-specific frame source.
func New(src domain.Source, cfg Config, status chan<- Status) FrameSource {
	switch src.Kind {
	case domain.SourceKindDevice:
		return NewDevice(src, cfg, status)
	case domain.SourceKindHTTPPush:
		return NewHTTPPush(src, status)
	case domain.SourceKindHTTPPoll:
		return NewHTTPPoll(src, cfg.SnapshotFPS, status)
	default:
		return NewNetStream(src, status)
	}
}

// Config carries capture tuning shared by producers.
// Params: preferred device profile and snapshot poll rate.
// Returns: per-kind capture parameters.
type Config struct {
	DeviceWidth  int
	DeviceHeight int
	DeviceFPS    float64
	SnapshotFPS  float64
}

// base carries identity, stop flag, and status emission for producers.
type base struct {
	id      int
	status  chan<- Status
	stopped atomic.Bool
}

// Stop requests the frame sequence to end.
// Params: none.
// Returns: observed by the producer loop within one poll granularity.
func (b *base) Stop() {
	b.stopped.Store(true)
}

// emit publishes one advisory status message without blocking.
// Params: status text.
// Returns: message dropped when the sink is full or absent.
func (b *base) emit(text string) {
	if b.status == nil {
		return
	}
	select {
	case b.status <- Status{SourceID: b.id, Text: text}:
	default:
	}
}

// sleepInterruptible sleeps up to d, waking early on stop or ctx cancel.
// Params: context and duration.
// Returns: early when the sequence must end.
func (b *base) sleepInterruptible(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		if b.stopped.Load() || ctx.Err() != nil {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > stopPollGranularity {
			remaining = stopPollGranularity
		}
		time.Sleep(remaining)
	}
}
