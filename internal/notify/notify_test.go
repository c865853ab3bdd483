package notify

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildMIMEWithAttachment(t *testing.T) {
	t.Parallel()
	raw, err := buildMIME("cctv@example.com", Email{
		To:         "admin@example.com",
		Subject:    "EMERGENCY: Person Extremely Close (Cam 3)",
		Body:       "Timestamp: 2025-03-14 01:00:00",
		Attachment: []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9},
		Filename:   "alert_20250314_010000.jpg",
	})
	if err != nil {
		t.Fatalf("build mime: %+v", err)
	}

	text := string(raw)
	for _, want := range []string{
		"From: cctv@example.com",
		"To: admin@example.com",
		"Subject: EMERGENCY: Person Extremely Close (Cam 3)",
		"multipart/mixed",
		"Content-Type: image/jpeg",
		`attachment; filename="alert_20250314_010000.jpg"`,
		"Timestamp: 2025-03-14 01:00:00",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("mime missing %q:\n%s", want, text)
		}
	}
}

func TestBuildMIMEWithoutAttachment(t *testing.T) {
	t.Parallel()
	raw, err := buildMIME("cctv@example.com", Email{
		To:      "admin@example.com",
		Subject: "Motion Detected Near Restricted Main Door",
		Body:    "Note: snapshot unavailable",
	})
	if err != nil {
		t.Fatalf("build mime: %+v", err)
	}
	if strings.Contains(string(raw), "image/jpeg") {
		t.Fatal("attachment part present without attachment bytes")
	}
}

func TestEncodeBase64Wrapped(t *testing.T) {
	t.Parallel()
	encoded := encodeBase64Wrapped(bytes.Repeat([]byte{0xab}, 200))
	for _, line := range strings.Split(string(encoded), "\r\n") {
		if len(line) > 76 {
			t.Fatalf("line exceeds 76 chars: %d", len(line))
		}
	}
}

func TestAnnouncementTwiMLEscapes(t *testing.T) {
	t.Parallel()
	got := announcementTwiML("Intrusion detected <now> & confirmed")
	want := "<Response><Say>Intrusion detected &lt;now&gt; &amp; confirmed</Say></Response>"
	if got != want {
		t.Fatalf("twiml = %q, want %q", got, want)
	}
}
