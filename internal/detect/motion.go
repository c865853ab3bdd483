package detect

import (
	"gocv.io/x/gocv"
)

// Background subtractor tuning. History and threshold follow the usual
// MOG2 surveillance profile; shadows are detected and then discarded by
// the binary threshold below.
const (
	mog2History     = 300
	mog2VarThresh   = 25
	shadowCutoff    = 200
	foregroundValue = 255
)

// MotionDetector segments foreground motion with a MOG2 background model.
// Params: minimum contour area in pixels below which motion is noise.
// Returns: stateful detector; the background model adapts per frame.
type MotionDetector struct {
	minArea    float64
	subtractor gocv.BackgroundSubtractorMOG2
	mask       gocv.Mat
}

// NewMotionDetector builds a motion detector with a fresh background model.
// Params: minimum contour area in pixels.
// Returns: detector owning native resources; callers must Close it.
func NewMotionDetector(minArea float64) *MotionDetector {
	return &MotionDetector{
		minArea:    minArea,
		subtractor: gocv.NewBackgroundSubtractorMOG2WithParams(mog2History, mog2VarThresh, true),
		mask:       gocv.NewMat(),
	}
}

// Detect updates the background model with one frame and reports motion.
// Params: decoded frame matrix.
// Returns: true when any foreground contour exceeds the minimum area.
func (m *MotionDetector) Detect(img gocv.Mat) bool {
	m.subtractor.Apply(img, &m.mask)

	// Shadow pixels come back at 127; keep only confident foreground.
	gocv.Threshold(m.mask, &m.mask, shadowCutoff, foregroundValue, gocv.ThresholdBinary)

	contours := gocv.FindContours(m.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) > m.minArea {
			return true
		}
	}
	return false
}

// Close releases the background model and scratch mask.
// Params: none.
// Returns: first close error.
func (m *MotionDetector) Close() error {
	if err := m.subtractor.Close(); err != nil {
		return err
	}
	return m.mask.Close()
}
