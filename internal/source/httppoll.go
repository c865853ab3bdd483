package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

const snapshotRequestTimeout = 5 * time.Second

// HTTPPoll produces frames by fetching a still-image endpoint on a timer.
// Params: snapshot URL target and target frame rate.
// Returns: frame source paced to the configured rate.
type HTTPPoll struct {
	base
	target   string
	interval time.Duration
	client   *http.Client
}

// NewHTTPPoll builds a snapshot-polling frame source.
// Params: source descriptor, poll rate in frames per second, status sink.
// Returns: poll source; a non-positive rate falls back to 6 fps.
func NewHTTPPoll(src domain.Source, fps float64, status chan<- Status) *HTTPPoll {
	if fps <= 0 {
		fps = 6
	}
	return &HTTPPoll{
		base:     base{id: src.ID, status: status},
		target:   src.Target,
		interval: time.Duration(float64(time.Second) / fps),
		client:   &http.Client{Timeout: snapshotRequestTimeout},
	}
}

// Open validates nothing up front; snapshot endpoints are probed per tick.
// Params: context (unused).
// Returns: always nil so a camera that boots late still comes up.
func (p *HTTPPoll) Open(_ context.Context) error {
	p.emit("snapshot polling started")
	return nil
}

// Next fetches and decodes one snapshot, pacing to the poll interval.
// Params: context for the request and cancellation.
// Returns: next frame, or ErrStopped when the sequence ends. Fetch and
// decode failures pace and retry rather than ending the sequence.
func (p *HTTPPoll) Next(ctx context.Context) (Frame, error) {
	for {
		if p.stopped.Load() || ctx.Err() != nil {
			p.emit("snapshot polling stopped")
			return Frame{}, ErrStopped
		}

		started := time.Now()
		payload, err := p.fetch(ctx)
		if err != nil {
			p.emit(fmt.Sprintf("snapshot fetch failed: %v", err))
			p.pace(ctx, started)
			continue
		}

		img, err := gocv.IMDecode(payload, gocv.IMReadColor)
		if err != nil || img.Empty() {
			p.emit("snapshot decode failed")
			p.pace(ctx, started)
			continue
		}

		frame := Frame{SourceID: p.id, Mat: img, CapturedAt: time.Now()}
		p.pace(ctx, started)
		return frame, nil
	}
}

// fetch performs one snapshot request.
// Params: context for the request.
// Returns: raw response body, or the transport or status error.
func (p *HTTPPoll) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// pace sleeps out the remainder of the poll interval.
// Params: context and the tick start time.
// Returns: immediately when the fetch already overran the interval.
func (p *HTTPPoll) pace(ctx context.Context, started time.Time) {
	remaining := p.interval - time.Since(started)
	if remaining > 0 {
		p.sleepInterruptible(ctx, remaining)
	}
}
