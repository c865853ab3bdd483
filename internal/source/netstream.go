package source

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

// NetStream produces frames from an RTSP or other demuxable network stream.
// Params: stream URL target.
// Returns: frame source using ordered backend strategies.
type NetStream struct {
	base
	target string
	cap    *gocv.VideoCapture
}

// NewNetStream builds a network-stream frame source.
// Params: source descriptor and status sink.
// Returns: network source opened lazily by Open.
func NewNetStream(src domain.Source, status chan<- Status) *NetStream {
	return &NetStream{
		base:   base{id: src.ID, status: status},
		target: src.Target,
	}
}

// Open attempts the ordered backend strategies for the stream.
// Params: context (unused by the blocking open calls).
// Returns: nil when any strategy succeeds; a later strategy failing never
// raises, and only all strategies failing reports ErrOpenFailed.
func (n *NetStream) Open(_ context.Context) error {
	strategies := []struct {
		name string
		api  gocv.VideoCaptureAPI
	}{
		{"ffmpeg", gocv.VideoCaptureFFmpeg},
		{"default", gocv.VideoCaptureAny},
	}

	for _, strategy := range strategies {
		n.emit(fmt.Sprintf("opening network stream (%s)", strategy.name))
		cap, err := gocv.OpenVideoCaptureWithAPI(n.target, strategy.api)
		if err == nil && cap.IsOpened() {
			n.cap = cap
			n.emit("stream started")
			return nil
		}
		if cap != nil {
			_ = cap.Close()
		}
	}

	n.emit("open failed")
	return fmt.Errorf("stream %q: %w", n.target, ErrOpenFailed)
}

// Next blocks for one decoded frame from the stream.
// Params: context for cancellation.
// Returns: next frame undecorated, or ErrStopped when the sequence ends.
func (n *NetStream) Next(ctx context.Context) (Frame, error) {
	img := gocv.NewMat()
	for {
		if n.stopped.Load() || ctx.Err() != nil {
			_ = img.Close()
			n.releaseCapture()
			n.emit("stream stopped")
			return Frame{}, ErrStopped
		}
		if !n.cap.Read(&img) || img.Empty() {
			n.emit("frame read failed, retrying")
			n.sleepInterruptible(ctx, 100*time.Millisecond)
			continue
		}
		return Frame{SourceID: n.id, Mat: img, CapturedAt: time.Now()}, nil
	}
}

// releaseCapture closes the capture handle once.
func (n *NetStream) releaseCapture() {
	if n.cap != nil {
		_ = n.cap.Close()
		n.cap = nil
	}
}
