package source

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"
)

func multipartStream(boundary string, payloads ...[]byte) *bufio.Reader {
	var buf bytes.Buffer
	for _, payload := range payloads {
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString("Content-Type: image/jpeg\r\n")
		buf.WriteString("Content-Length: " + strconv.Itoa(len(payload)))
		buf.WriteString("\r\n\r\n")
		buf.Write(payload)
		buf.WriteString("\r\n")
	}
	return bufio.NewReader(&buf)
}

func fakeJPEG(filler int) []byte {
	payload := append([]byte{}, jpegSOI...)
	for i := 0; i < filler; i++ {
		payload = append(payload, byte(i))
	}
	return append(payload, jpegEOI...)
}

func TestParseBoundary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		contentType string
		want        string
	}{
		{"multipart/x-mixed-replace; boundary=frame", "--frame"},
		{"multipart/x-mixed-replace; boundary=--myboundary", "--myboundary"},
		{`multipart/x-mixed-replace; boundary="frame"`, "--frame"},
		{"multipart/x-mixed-replace; boundary=frame; charset=utf-8", "--frame"},
		{"image/jpeg", ""},
		{"multipart/x-mixed-replace", ""},
	}
	for _, tc := range cases {
		got := parseBoundary(tc.contentType)
		if tc.want == "" {
			if got != nil {
				t.Fatalf("parseBoundary(%q) = %q, want nil", tc.contentType, got)
			}
			continue
		}
		if string(got) != tc.want {
			t.Fatalf("parseBoundary(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}

func TestReadMJPEGPartContentLength(t *testing.T) {
	t.Parallel()
	first := fakeJPEG(10)
	second := fakeJPEG(25)
	reader := multipartStream("frame", first, second)

	got, err := readMJPEGPart(reader, []byte("--frame"))
	if err != nil {
		t.Fatalf("first part: %+v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("first payload mismatch: got %d bytes, want %d", len(got), len(first))
	}

	got, err = readMJPEGPart(reader, []byte("--frame"))
	if err != nil {
		t.Fatalf("second part: %+v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("second payload mismatch: got %d bytes, want %d", len(got), len(second))
	}
}

func TestReadMJPEGPartMarkerScanFallback(t *testing.T) {
	t.Parallel()
	payload := fakeJPEG(50)

	// No Content-Length header; the payload must be recovered by scanning
	// for the JPEG start and end markers.
	var buf bytes.Buffer
	buf.WriteString("--frame\r\n")
	buf.WriteString("Content-Type: image/jpeg\r\n\r\n")
	buf.Write(payload)
	buf.WriteString("\r\n")

	got, err := readMJPEGPart(bufio.NewReader(&buf), []byte("--frame"))
	if err != nil {
		t.Fatalf("marker scan: %+v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestReadMJPEGPartTruncatedStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	buf.WriteString("--frame\r\n")
	buf.WriteString("Content-Length: 500\r\n\r\n")
	buf.Write(fakeJPEG(5)) // far short of the declared length

	if _, err := readMJPEGPart(bufio.NewReader(&buf), []byte("--frame")); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestStopInterruptsBackoffSleep(t *testing.T) {
	t.Parallel()
	b := &base{id: 1}
	done := make(chan struct{})
	go func() {
		b.sleepInterruptible(context.Background(), 30*time.Second)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	b.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not wake on stop")
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	t.Parallel()
	status := make(chan Status, 1)
	b := &base{id: 7, status: status}

	b.emit("first")
	b.emit("second") // sink full, must be dropped

	got := <-status
	if got.SourceID != 7 || got.Text != "first" {
		t.Fatalf("unexpected status: %+v", got)
	}
	select {
	case extra := <-status:
		t.Fatalf("expected dropped message, got %+v", extra)
	default:
	}
}
