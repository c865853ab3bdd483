// Package record implements the per-source recording policy engine and
// its video writer backend.
package record

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"cctv/internal/clock"
)

// Writer receives the frames of one recording session.
// Params: decoded frame matrix per call.
// Returns: sink closed exactly once per session.
type Writer interface {
	Write(img gocv.Mat) error
	Close() error
}

// WriterFactory opens a session writer sized to the first frame.
// Params: source id and frame dimensions.
// Returns: writer, its output path, or an open error.
type WriterFactory func(sourceID, width, height int) (Writer, string, error)

// codecProfile maps a preference codec name to container settings.
// Params: codec preference string.
// Returns: fourcc and file extension; unknown codecs fall back to MJPG/avi.
func codecProfile(codec string) (fourcc, ext string) {
	if codec == "mp4" {
		return "mp4v", ".mp4"
	}
	return "MJPG", ".avi"
}

// NewVideoWriterFactory builds the production writer factory.
// Params: output directory, codec preference, frame rate, and clock for
// session timestamps.
// Returns: factory producing gocv-backed writers at deterministic paths
// shaped cam<id>_<YYYYMMDD_HHMMSS>.<ext>.
func NewVideoWriterFactory(dir, codec string, fps float64, clk clock.Clock) WriterFactory {
	fourcc, ext := codecProfile(codec)
	return func(sourceID, width, height int) (Writer, string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("recordings dir: %w", err)
		}
		name := fmt.Sprintf("cam%d_%s%s", sourceID, clk.Now().Format("20060102_150405"), ext)
		path := filepath.Join(dir, name)

		vw, err := gocv.VideoWriterFile(path, fourcc, fps, width, height, true)
		if err != nil {
			return nil, "", fmt.Errorf("open writer %q: %w", path, err)
		}
		if !vw.IsOpened() {
			_ = vw.Close()
			return nil, "", fmt.Errorf("open writer %q: codec %s rejected", path, fourcc)
		}
		return vw, path, nil
	}
}
