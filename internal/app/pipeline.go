package app

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"cctv/internal/alert"
	"cctv/internal/clock"
	"cctv/internal/config"
	"cctv/internal/detect"
	"cctv/internal/domain"
	"cctv/internal/record"
	"cctv/internal/source"
)

// snapshotCacheInterval bounds how often the recent-frame cache pays for
// a JPEG encode.
const snapshotCacheInterval = time.Second

// stopJoinTimeout bounds how long Stop waits for the processing loop. A
// capture read stuck inside the video backend cannot be interrupted, so
// past this point the loop is abandoned and a restart may proceed.
const stopJoinTimeout = 5 * time.Second

// Pipeline runs one camera end to end: frames in, detection, recording
// policy, and alert events out. It is the unit the supervisor restarts.
// Params: source descriptor, effective recording policy, capture and
// detect tuning, record engine, alert worker, status sink, clock, logger.
// Returns: restartable per-source worker.
type Pipeline struct {
	src        domain.Source
	policy     domain.RecordPolicy
	captureCfg source.Config
	detectCfg  config.DetectConfig
	recorder   *record.Engine
	escalator  detect.Escalator
	worker     *alert.Worker
	status     chan<- source.Status
	clk        clock.Clock
	log        *slog.Logger

	joinTimeout time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	frameSrc source.FrameSource
	done     chan struct{}

	lastFrameNano atomic.Int64
	recentJPEG    atomic.Pointer[[]byte]
	lastSnapNano  atomic.Int64
}

// NewPipeline builds the pipeline for one configured camera.
// Params: see Pipeline.
// Returns: pipeline in the stopped state; Start brings it up.
func NewPipeline(
	src domain.Source,
	policy domain.RecordPolicy,
	captureCfg source.Config,
	detectCfg config.DetectConfig,
	recorder *record.Engine,
	worker *alert.Worker,
	status chan<- source.Status,
	clk clock.Clock,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		src:        src,
		policy:     policy,
		captureCfg: captureCfg,
		detectCfg:  detectCfg,
		recorder:   recorder,
		escalator: detect.Escalator{
			AreaRatio:   detectCfg.EmergencyAreaRatio,
			HeightRatio: detectCfg.EmergencyHeightRatio,
		},
		worker:      worker,
		status:      status,
		clk:         clk,
		joinTimeout: stopJoinTimeout,
		log: logger.With("component", "pipeline",
			"source_id", src.ID, "source_name", src.Name),
	}
}

// Start opens the frame source and launches the processing loop.
// Params: none; the pipeline owns its run context.
// Returns: open error; already-running pipelines return nil.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	frameSrc := source.New(p.src, p.captureCfg, p.status)
	if err := frameSrc.Open(ctx); err != nil {
		cancel()
		return err
	}

	p.cancel = cancel
	p.frameSrc = frameSrc
	p.done = make(chan struct{})
	p.running = true
	p.log.Info("pipeline started", "kind", string(p.src.Kind))

	go p.run(ctx, frameSrc, p.done)
	return nil
}

// Stop ends the processing loop and waits for it to exit.
// Params: none.
// Returns: after the loop released its detectors and recording session,
// or after the join timeout when a capture read is stuck in the backend;
// an abandoned loop is logged and the supervisor restart proceeds.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.frameSrc.Stop()
	p.cancel()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
		p.log.Info("pipeline stopped")
	case <-time.After(p.joinTimeout):
		p.log.Warn("pipeline loop did not exit, abandoning",
			"join_timeout", p.joinTimeout.String())
	}
}

// Running reports whether the processing loop is live.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastFrameAt returns the arrival time of the newest processed frame.
// Params: none.
// Returns: zero time before the first frame.
func (p *Pipeline) LastFrameAt() time.Time {
	nano := p.lastFrameNano.Load()
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Snapshot returns the most recent cached JPEG of this source.
// Params: none.
// Returns: shared read-only bytes, nil before the first cached frame.
func (p *Pipeline) Snapshot() []byte {
	if cached := p.recentJPEG.Load(); cached != nil {
		return *cached
	}
	return nil
}

// run is the per-frame processing loop.
// Params: run context, opened frame source, and completion channel.
// Returns: when the source ends; detector and recorder resources are
// released on the way out.
func (p *Pipeline) run(ctx context.Context, frameSrc source.FrameSource, done chan struct{}) {
	defer close(done)
	defer p.markStopped()

	motion := detect.NewMotionDetector(p.detectCfg.MinMotionArea)
	defer func() { _ = motion.Close() }()

	tiered, err := detect.NewTwoTier(p.detectCfg.ModelsDir, func(err error) {
		p.log.Warn("person detector downgraded to HOG", "error", err)
	})
	if err != nil {
		p.log.Error("person detector unavailable", "error", err)
		return
	}
	persons := detect.NewThrottled(tiered, p.clk,
		time.Duration(p.detectCfg.PersonIntervalMS)*time.Millisecond)
	defer func() { _ = persons.Close() }()
	defer func() { _ = p.recorder.Close() }()

	for {
		frame, err := frameSrc.Next(ctx)
		if err != nil {
			if !errors.Is(err, source.ErrStopped) {
				p.log.Error("frame source failed", "error", err)
			}
			return
		}
		p.processFrame(frame, motion, persons)
	}
}

// processFrame runs detection, recording, and alert raising for one frame.
// Params: owned frame and the per-pipeline detectors.
// Returns: frame closed before returning.
func (p *Pipeline) processFrame(frame source.Frame, motion *detect.MotionDetector, persons detect.PersonFinder) {
	defer func() { _ = frame.Close() }()
	p.lastFrameNano.Store(frame.CapturedAt.UnixNano())

	motionSeen := motion.Detect(frame.Mat)

	var personBoxes []image.Rectangle
	if motionSeen || p.policy == domain.PolicyPerson {
		boxes, err := persons.Find(frame.Mat)
		if err != nil {
			p.log.Warn("person detection failed", "error", err)
		}
		personBoxes = boxes
	}

	width, height := frame.Mat.Cols(), frame.Mat.Rows()
	if err := p.recorder.Observe(frame.Mat, width, height, len(personBoxes), motionSeen); err != nil {
		p.log.Error("recording failed", "error", err)
	}

	severity, raise := p.escalator.Escalate(personBoxes, width, height, motionSeen)
	if raise {
		encoded := encodeJPEG(frame.Mat)
		p.cacheSnapshot(encoded, frame.CapturedAt)
		p.worker.Enqueue(domain.AlertEvent{
			ID:       uuid.NewString(),
			SourceID: p.src.ID,
			Snapshot: encoded,
			Severity: severity,
			At:       frame.CapturedAt,
		})
		return
	}

	// Quiet frames still refresh the snapshot cache on a slow cadence.
	if frame.CapturedAt.UnixNano()-p.lastSnapNano.Load() >= int64(snapshotCacheInterval) {
		p.cacheSnapshot(encodeJPEG(frame.Mat), frame.CapturedAt)
	}
}

// cacheSnapshot publishes one encoded frame to the recent-frame cache.
// Params: JPEG bytes (nil ignored) and capture time.
// Returns: cache readable via Snapshot.
func (p *Pipeline) cacheSnapshot(encoded []byte, at time.Time) {
	if encoded == nil {
		return
	}
	p.recentJPEG.Store(&encoded)
	p.lastSnapNano.Store(at.UnixNano())
}

// markStopped flips the running flag when the loop exits on its own,
// typically after a fatal source error; the supervisor picks it up.
func (p *Pipeline) markStopped() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// encodeJPEG encodes one frame, returning nil when encoding fails so the
// alert still goes out without its snapshot.
func encodeJPEG(img gocv.Mat) []byte {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}
