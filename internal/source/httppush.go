package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

const (
	pushInitialBackoff = 1 * time.Second
	pushMaxBackoff     = 8 * time.Second
	pushScanChunk      = 4096
)

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// HTTPPush produces frames from a boundary-delimited multipart MJPEG stream.
// Params: stream URL target.
// Returns: frame source that reconnects internally with capped backoff.
type HTTPPush struct {
	base
	target   string
	client   *http.Client
	resp     *http.Response
	reader   *bufio.Reader
	boundary []byte
	backoff  time.Duration
}

// NewHTTPPush builds a multipart push-stream frame source.
// Params: source descriptor and status sink.
// Returns: push source connected lazily by Open.
func NewHTTPPush(src domain.Source, status chan<- Status) *HTTPPush {
	return &HTTPPush{
		base:    base{id: src.ID, status: status},
		target:  src.Target,
		client:  &http.Client{Timeout: 0},
		backoff: pushInitialBackoff,
	}
}

// Open performs the initial stream connection.
// Params: context for the request.
// Returns: nil on success or ErrOpenFailed wrapping the transport error.
func (h *HTTPPush) Open(ctx context.Context) error {
	if err := h.connect(ctx); err != nil {
		h.emit(fmt.Sprintf("http open failed: %v", err))
		return fmt.Errorf("push stream %q: %w", h.target, ErrOpenFailed)
	}
	return nil
}

// connect establishes the multipart response and derives the boundary.
func (h *HTTPPush) connect(ctx context.Context) error {
	h.emit("opening http mjpeg stream")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	h.resp = resp
	h.reader = bufio.NewReaderSize(resp.Body, 64*1024)
	h.boundary = parseBoundary(resp.Header.Get("Content-Type"))
	h.emit("http mjpeg streaming")
	return nil
}

// Next blocks for one decoded frame, reconnecting on stream termination.
// Params: context for cancellation and reconnect requests.
// Returns: next frame, or ErrStopped when the sequence ends.
func (h *HTTPPush) Next(ctx context.Context) (Frame, error) {
	for {
		if h.stopped.Load() || ctx.Err() != nil {
			h.closeStream()
			h.emit("http stream closed")
			return Frame{}, ErrStopped
		}
		if h.reader == nil {
			if err := h.connect(ctx); err != nil {
				h.emit(fmt.Sprintf("http open failed: %v, reconnecting", err))
				h.sleepInterruptible(ctx, h.backoff)
				h.growBackoff()
				continue
			}
			h.backoff = pushInitialBackoff
		}

		payload, err := readMJPEGPart(h.reader, h.boundary)
		if err != nil {
			h.emit(fmt.Sprintf("http stream error: %v, reconnecting", err))
			h.closeStream()
			h.sleepInterruptible(ctx, h.backoff)
			h.growBackoff()
			continue
		}

		img, err := gocv.IMDecode(payload, gocv.IMReadColor)
		if err != nil || img.Empty() {
			h.emit("decode failed, skipping frame")
			continue
		}
		return Frame{SourceID: h.id, Mat: img, CapturedAt: time.Now()}, nil
	}
}

// growBackoff doubles the reconnect delay up to the cap.
func (h *HTTPPush) growBackoff() {
	h.backoff *= 2
	if h.backoff > pushMaxBackoff {
		h.backoff = pushMaxBackoff
	}
}

// closeStream releases the response body and reader.
func (h *HTTPPush) closeStream() {
	if h.resp != nil {
		_ = h.resp.Body.Close()
		h.resp = nil
	}
	h.reader = nil
}

// parseBoundary extracts the multipart boundary token from a content type.
// Params: Content-Type header value.
// Returns: boundary line prefixed with "--", or nil when the server sends
// no multipart boundary.
func parseBoundary(contentType string) []byte {
	if !strings.Contains(contentType, "multipart") {
		return nil
	}
	idx := strings.Index(contentType, "boundary=")
	if idx < 0 {
		return nil
	}
	boundary := contentType[idx+len("boundary="):]
	if cut := strings.IndexByte(boundary, ';'); cut >= 0 {
		boundary = boundary[:cut]
	}
	boundary = strings.TrimSpace(boundary)
	boundary = strings.Trim(boundary, `"`)
	if boundary == "" {
		return nil
	}
	if !strings.HasPrefix(boundary, "--") {
		boundary = "--" + boundary
	}
	return []byte(boundary)
}

// readMJPEGPart reads one JPEG payload from the multipart stream.
// Params: buffered stream reader and optional boundary line.
// Returns: raw JPEG bytes; honors Content-Length parts and falls back to
// scanning for JPEG start/end markers when no length is given.
func readMJPEGPart(reader *bufio.Reader, boundary []byte) ([]byte, error) {
	if boundary != nil {
		if err := skipToBoundary(reader, boundary); err != nil {
			return nil, err
		}
	}

	headers, err := readPartHeaders(reader)
	if err != nil {
		return nil, err
	}

	if lengthText, ok := headers["content-length"]; ok {
		length, convErr := strconv.Atoi(lengthText)
		if convErr == nil && length > 0 {
			payload := make([]byte, length)
			if _, readErr := io.ReadFull(reader, payload); readErr != nil {
				return nil, fmt.Errorf("stream ended during payload: %w", readErr)
			}
			return payload, nil
		}
	}

	return scanForJPEG(reader)
}

// skipToBoundary consumes lines until the boundary line is seen.
func skipToBoundary(reader *bufio.Reader, boundary []byte) error {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("stream ended seeking boundary: %w", err)
		}
		if bytes.Contains(line, boundary) {
			return nil
		}
	}
}

// readPartHeaders reads part headers up to the blank separator line.
// Params: buffered stream reader positioned after the boundary.
// Returns: lower-cased header map.
func readPartHeaders(reader *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("stream ended reading headers: %w", err)
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			return headers, nil
		}
		if idx := bytes.IndexByte(trimmed, ':'); idx > 0 {
			key := strings.ToLower(string(bytes.TrimSpace(trimmed[:idx])))
			headers[key] = string(bytes.TrimSpace(trimmed[idx+1:]))
		}
	}
}

// scanForJPEG accumulates stream bytes until a full SOI..EOI image is seen.
// Params: buffered stream reader.
// Returns: bytes from the JPEG start marker through the end marker.
func scanForJPEG(reader *bufio.Reader) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, pushScanChunk)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			start := bytes.Index(buf, jpegSOI)
			if start >= 0 {
				if end := bytes.Index(buf[start:], jpegEOI); end >= 0 {
					return buf[start : start+end+len(jpegEOI)], nil
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("stream ended during scan: %w", err)
		}
	}
}
