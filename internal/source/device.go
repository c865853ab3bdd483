package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

// Device produces frames from a local capture device.
// Params: device index target and preferred low-cost profile.
// Returns: frame source with a wall-clock overlay on every frame.
type Device struct {
	base
	target string
	width  int
	height int
	fps    float64
	cap    *gocv.VideoCapture
}

// NewDevice builds a local-device frame source.
// Params: source descriptor, capture tuning, and status sink.
// Returns: device source; target parsed as a device index at open time.
func NewDevice(src domain.Source, cfg Config, status chan<- Status) *Device {
	return &Device{
		base:   base{id: src.ID, status: status},
		target: src.Target,
		width:  cfg.DeviceWidth,
		height: cfg.DeviceHeight,
		fps:    cfg.DeviceFPS,
	}
}

// Open opens the device at the preferred low-resolution profile.
// Params: context (unused by the blocking open call).
// Returns: nil on success; retries once with the default backend and
// profile before reporting ErrOpenFailed.
func (d *Device) Open(_ context.Context) error {
	index, err := strconv.Atoi(d.target)
	if err != nil {
		index = 0
	}

	d.emit(fmt.Sprintf("opening device index %d (v4l2)", index))
	cap, err := gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureV4L2)
	if err == nil && cap.IsOpened() {
		// Modest profile keeps CPU cost down; the device may ignore it.
		cap.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
		cap.Set(gocv.VideoCaptureFPS, d.fps)
		d.cap = cap
		d.emit("device started")
		return nil
	}
	if cap != nil {
		_ = cap.Close()
	}

	d.emit("v4l2 open failed, trying default backend")
	cap, err = gocv.OpenVideoCapture(index)
	if err != nil || !cap.IsOpened() {
		if cap != nil {
			_ = cap.Close()
		}
		d.emit("device open failed")
		return fmt.Errorf("device %d: %w", index, ErrOpenFailed)
	}
	d.cap = cap
	d.emit("device started")
	return nil
}

// Next blocks for one decoded frame with a timestamp overlay.
// Params: context for cancellation.
// Returns: next frame, or ErrStopped when the sequence ends.
func (d *Device) Next(ctx context.Context) (Frame, error) {
	img := gocv.NewMat()
	for {
		if d.stopped.Load() || ctx.Err() != nil {
			_ = img.Close()
			d.releaseCapture()
			d.emit("device stopped")
			return Frame{}, ErrStopped
		}
		if !d.cap.Read(&img) || img.Empty() {
			d.emit("frame read failed, retrying")
			d.sleepInterruptible(ctx, 100*time.Millisecond)
			continue
		}
		overlayTimestamp(&img)
		return Frame{SourceID: d.id, Mat: img, CapturedAt: time.Now()}, nil
	}
}

// releaseCapture closes the capture handle once.
func (d *Device) releaseCapture() {
	if d.cap != nil {
		_ = d.cap.Close()
		d.cap = nil
	}
}

// overlayTimestamp draws the current wall-clock text onto one frame.
// Params: mutable frame matrix.
// Returns: frame updated in place.
func overlayTimestamp(img *gocv.Mat) {
	text := time.Now().Format("2006-01-02 15:04:05")
	origin := image.Pt(10, img.Rows()-10)
	gocv.PutText(img, text, origin, gocv.FontHersheySimplex, 0.6,
		color.RGBA{R: 255, G: 200, B: 0, A: 0}, 2)
}
