package detect

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/clock"
)

// YOLO model parameters. The network consumes a square input and emits
// rows of [cx, cy, w, h, objectness, class scores...]; the person class
// is index zero.
const (
	yoloModelFile  = "yolov5s.onnx"
	yoloInputSize  = 640
	yoloRowStride  = 85
	yoloConfidence = 0.35
	yoloNMSOverlap = 0.45
	personClassCol = 5
)

// PersonFinder locates people in one frame.
// Params: decoded frame matrix.
// Returns: bounding boxes in frame coordinates.
type PersonFinder interface {
	Find(img gocv.Mat) ([]image.Rectangle, error)
	Close() error
}

// DNNFinder runs a YOLO ONNX network for person detection.
type DNNFinder struct {
	net gocv.Net
}

// NewDNNFinder loads the YOLO model from the models directory.
// Params: models directory holding the ONNX file.
// Returns: finder, or an error when the model is missing or unreadable.
func NewDNNFinder(modelsDir string) (*DNNFinder, error) {
	path := filepath.Join(modelsDir, yoloModelFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("person model %q: %w", path, err)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("person model %q: load failed", path)
	}
	return &DNNFinder{net: net}, nil
}

// Find runs one inference pass and post-processes person rows.
// Params: decoded frame matrix.
// Returns: person boxes after confidence filtering and box suppression.
func (d *DNNFinder) Find(img gocv.Mat) ([]image.Rectangle, error) {
	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(yoloInputSize, yoloInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}

	xScale := float32(img.Cols()) / float32(yoloInputSize)
	yScale := float32(img.Rows()) / float32(yoloInputSize)

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i+yoloRowStride <= len(rows); i += yoloRowStride {
		objectness := rows[i+4]
		if objectness < yoloConfidence {
			continue
		}
		score := objectness * rows[i+personClassCol]
		if score < yoloConfidence {
			continue
		}
		cx, cy := rows[i]*xScale, rows[i+1]*yScale
		w, h := rows[i+2]*xScale, rows[i+3]*yScale
		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2),
		))
		scores = append(scores, score)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, yoloConfidence, yoloNMSOverlap)
	result := make([]image.Rectangle, 0, len(keep))
	for _, idx := range keep {
		result = append(result, boxes[idx])
	}
	return result, nil
}

// Close releases the network.
func (d *DNNFinder) Close() error {
	return d.net.Close()
}

// HOGFinder detects people with the classic HOG pedestrian descriptor.
// Slower and coarser than the network, but has no model file dependency.
type HOGFinder struct {
	hog gocv.HOGDescriptor
}

// NewHOGFinder builds a HOG finder with the default people detector.
// Params: none.
// Returns: finder, or the descriptor setup error.
func NewHOGFinder() (*HOGFinder, error) {
	hog := gocv.NewHOGDescriptor()
	if err := hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector()); err != nil {
		_ = hog.Close()
		return nil, fmt.Errorf("hog detector: %w", err)
	}
	return &HOGFinder{hog: hog}, nil
}

// Find runs a multi-scale HOG sweep.
// Params: decoded frame matrix.
// Returns: person boxes at descriptor granularity.
func (h *HOGFinder) Find(img gocv.Mat) ([]image.Rectangle, error) {
	return h.hog.DetectMultiScale(img), nil
}

// Close releases the descriptor.
func (h *HOGFinder) Close() error {
	return h.hog.Close()
}

// TwoTier prefers the network finder and downgrades to the fallback for
// good when the network fails. A failed primary never comes back; the
// downgrade avoids paying a doomed inference on every frame.
type TwoTier struct {
	primary  PersonFinder
	fallback PersonFinder
	onDemote func(err error)
}

// NewTwoTier builds the tiered finder for one source.
// Params: models directory and a demotion callback for logging; a missing
// or unloadable model starts the finder demoted.
// Returns: finder, or an error when not even the fallback can be built.
func NewTwoTier(modelsDir string, onDemote func(err error)) (*TwoTier, error) {
	fallback, err := NewHOGFinder()
	if err != nil {
		return nil, err
	}
	t := &TwoTier{fallback: fallback, onDemote: onDemote}

	primary, err := NewDNNFinder(modelsDir)
	if err != nil {
		t.demote(err)
		return t, nil
	}
	t.primary = primary
	return t, nil
}

// Find locates people with the best available tier.
// Params: decoded frame matrix.
// Returns: person boxes; a primary failure demotes and retries once on
// the fallback within the same call.
func (t *TwoTier) Find(img gocv.Mat) ([]image.Rectangle, error) {
	if t.primary != nil {
		boxes, err := t.primary.Find(img)
		if err == nil {
			return boxes, nil
		}
		_ = t.primary.Close()
		t.primary = nil
		t.demote(err)
	}
	return t.fallback.Find(img)
}

// demote records the permanent downgrade.
func (t *TwoTier) demote(err error) {
	if t.onDemote != nil {
		t.onDemote(err)
	}
}

// Close releases both tiers.
func (t *TwoTier) Close() error {
	if t.primary != nil {
		_ = t.primary.Close()
		t.primary = nil
	}
	return t.fallback.Close()
}

// Throttled rate-limits an expensive finder, replaying the last result
// between inference passes so per-frame callers see stable boxes.
type Throttled struct {
	inner    PersonFinder
	clk      clock.Clock
	interval time.Duration
	lastRun  time.Time
	lastSeen []image.Rectangle
}

// NewThrottled wraps a finder with a minimum inference interval.
// Params: finder, clock, and minimum interval between inference passes.
// Returns: throttled finder; the first call always runs inference.
func NewThrottled(inner PersonFinder, clk clock.Clock, interval time.Duration) *Throttled {
	return &Throttled{inner: inner, clk: clk, interval: interval}
}

// Find returns fresh boxes when the interval elapsed, cached ones otherwise.
// Params: decoded frame matrix.
// Returns: person boxes; cached results carry no error.
func (t *Throttled) Find(img gocv.Mat) ([]image.Rectangle, error) {
	now := t.clk.Now()
	if !t.lastRun.IsZero() && now.Sub(t.lastRun) < t.interval {
		return t.lastSeen, nil
	}
	boxes, err := t.inner.Find(img)
	if err != nil {
		return nil, err
	}
	t.lastRun = now
	t.lastSeen = boxes
	return boxes, nil
}

// Close releases the wrapped finder.
func (t *Throttled) Close() error {
	return t.inner.Close()
}
