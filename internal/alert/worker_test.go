package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cctv/internal/config"
	"cctv/internal/domain"
	"cctv/internal/notify"
	"cctv/internal/store"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeEmail struct {
	fail bool
	sent []notify.Email
}

func (f *fakeEmail) Send(_ context.Context, msg notify.Email) error {
	if f.fail {
		return errors.New("send rejected")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeCaller struct {
	fail  bool
	calls []string
}

func (f *fakeCaller) Call(_ context.Context, to, _ string) error {
	if f.fail {
		return errors.New("call rejected")
	}
	f.calls = append(f.calls, to)
	return nil
}

type fakeLedger struct{ rows []store.AlertRecord }

func (f *fakeLedger) AppendAlertRecord(record store.AlertRecord) error {
	f.rows = append(f.rows, record)
	return nil
}

func (f *fakeLedger) kinds() []string {
	var kinds []string
	for _, row := range f.rows {
		kinds = append(kinds, row.Kind)
	}
	return kinds
}

const testSettings = `{
  "alert_active_hours": {"start": "00:00", "end": "05:00"},
  "restricted_zones": [{"camera_id": 1, "name": "Main Door"}],
  "admin_email": "admin@example.com",
  "admin_phone": "+15550001111"
}`

type harness struct {
	worker   *Worker
	clk      *fakeClock
	primary  *fakeEmail
	fallback *fakeEmail
	caller   *fakeCaller
	ledger   *fakeLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(settingsPath, []byte(testSettings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	h := &harness{
		clk:      &fakeClock{now: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)},
		primary:  &fakeEmail{},
		fallback: &fakeEmail{},
		caller:   &fakeCaller{},
		ledger:   &fakeLedger{},
	}
	h.worker = NewWorker(Options{
		Config: config.AlertConfig{
			SettingsPath:      settingsPath,
			AlertsDir:         filepath.Join(dir, "alerts"),
			CooldownSec:       30,
			SettingsReloadSec: 5,
			QueueSize:         8,
			PollTimeoutMS:     20,
			CallAnnouncement:  "Intrusion detected at the main door",
		},
		Clock:    h.clk,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Primary:  h.primary,
		Fallback: h.fallback,
		Caller:   h.caller,
		Ledger:   h.ledger,
	})
	h.worker.maybeReloadSettings()
	return h
}

func event(sourceID int, severity domain.Severity, at time.Time) domain.AlertEvent {
	return domain.AlertEvent{SourceID: sourceID, Severity: severity, At: at}
}

func TestOutsideActiveHoursSkipsEverySeverity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.clk.now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	for _, severity := range []domain.Severity{
		domain.SeverityNormal, domain.SeverityHigh, domain.SeverityEmergency,
	} {
		h.worker.dispatch(context.Background(), event(1, severity, h.clk.now))
	}

	if len(h.ledger.rows) != 0 || len(h.primary.sent) != 0 || len(h.caller.calls) != 0 {
		t.Fatalf("outside-hours events must be dropped: rows=%d emails=%d calls=%d",
			len(h.ledger.rows), len(h.primary.sent), len(h.caller.calls))
	}
}

func TestCooldownSkipsNonEmergencyRepeats(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if len(h.primary.sent) != 1 {
		t.Fatalf("first event must email, got %d", len(h.primary.sent))
	}

	h.clk.now = h.clk.now.Add(10 * time.Second)
	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if len(h.primary.sent) != 1 {
		t.Fatalf("event inside cooldown must be dropped, got %d emails", len(h.primary.sent))
	}

	h.clk.now = h.clk.now.Add(25 * time.Second)
	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if len(h.primary.sent) != 2 {
		t.Fatalf("event past cooldown must email, got %d", len(h.primary.sent))
	}
}

func TestEmergencyBypassesCooldown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.worker.dispatch(ctx, event(1, domain.SeverityHigh, h.clk.now))
	h.clk.now = h.clk.now.Add(time.Second)
	h.worker.dispatch(ctx, event(1, domain.SeverityEmergency, h.clk.now))

	if len(h.primary.sent) != 2 {
		t.Fatalf("emergency inside cooldown must still email, got %d", len(h.primary.sent))
	}
	if len(h.caller.calls) != 2 {
		t.Fatalf("both events must ring, got %d", len(h.caller.calls))
	}
}

func TestPrimaryFailureFallsBackToRelay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.primary.fail = true

	h.worker.dispatch(context.Background(), event(1, domain.SeverityNormal, h.clk.now))

	if len(h.fallback.sent) != 1 {
		t.Fatalf("fallback must carry the email, got %d", len(h.fallback.sent))
	}
	if len(h.ledger.rows) != 1 || h.ledger.rows[0].Status != "ok" {
		t.Fatalf("expected one ok email row, got %+v", h.ledger.rows)
	}
}

func TestEmailFailureRecordedAndCooldownNotSet(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.primary.fail = true
	h.fallback.fail = true
	ctx := context.Background()

	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if len(h.ledger.rows) != 1 || h.ledger.rows[0].Status == "ok" {
		t.Fatalf("failed delivery must record the error text, got %+v", h.ledger.rows)
	}

	// Failed email never starts the cooldown; the next event retries.
	h.fallback.fail = false
	h.clk.now = h.clk.now.Add(time.Second)
	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if len(h.fallback.sent) != 1 {
		t.Fatalf("retry after failed email must deliver, got %d", len(h.fallback.sent))
	}
}

func TestCallPlacedOnlyForHighAndEmergency(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.worker.dispatch(ctx, event(1, domain.SeverityNormal, h.clk.now))
	if got := h.ledger.kinds(); len(got) != 1 || got[0] != "email" {
		t.Fatalf("normal severity rows = %v, want [email]", got)
	}

	h.clk.now = h.clk.now.Add(time.Minute)
	h.worker.dispatch(ctx, event(1, domain.SeverityHigh, h.clk.now))
	if got := h.ledger.kinds(); len(got) != 3 || got[1] != "email" || got[2] != "call" {
		t.Fatalf("high severity rows = %v, want [email email call]", got)
	}
	if h.caller.calls[0] != "+15550001111" {
		t.Fatalf("call went to %s", h.caller.calls[0])
	}
}

func TestSnapshotPersistedUnderDatePartition(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ev := event(1, domain.SeverityHigh, h.clk.now)
	ev.Snapshot = []byte{0xff, 0xd8, 0x00, 0xff, 0xd9}
	h.worker.dispatch(context.Background(), ev)

	imagePath := h.ledger.rows[0].ImagePath
	if imagePath == "" {
		t.Fatal("ledger row missing image path")
	}
	if filepath.Base(filepath.Dir(imagePath)) != "2025-03-14" {
		t.Fatalf("snapshot not date-partitioned: %s", imagePath)
	}
	body, err := os.ReadFile(imagePath)
	if err != nil || len(body) != len(ev.Snapshot) {
		t.Fatalf("snapshot file wrong: err=%v len=%d", err, len(body))
	}
	if len(h.primary.sent) != 1 || len(h.primary.sent[0].Attachment) == 0 {
		t.Fatal("email must carry the snapshot attachment")
	}
	if len(h.ledger.rows) != 2 || h.ledger.rows[1].Kind != "call" {
		t.Fatalf("high severity must add a call row, got %+v", h.ledger.rows)
	}
	if h.ledger.rows[1].ImagePath != imagePath {
		t.Fatalf("call row image path = %q, want %q", h.ledger.rows[1].ImagePath, imagePath)
	}
}

func TestSameSecondSnapshotsGetDistinctPaths(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	ev := event(1, domain.SeverityEmergency, h.clk.now)
	ev.Snapshot = []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}
	h.worker.dispatch(ctx, ev)

	// Second emergency 250µs later, inside the same wall-clock second.
	h.clk.now = h.clk.now.Add(250 * time.Microsecond)
	ev.At = h.clk.now
	h.worker.dispatch(ctx, ev)

	first := h.ledger.rows[0].ImagePath
	second := h.ledger.rows[2].ImagePath
	if first == "" || second == "" {
		t.Fatalf("expected two persisted snapshots, got %q and %q", first, second)
	}
	if first == second {
		t.Fatalf("same-second snapshots share a path: %s", first)
	}
	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("snapshot missing: %+v", err)
		}
	}
}

func TestUnknownCameraGetsFullViewZone(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.worker.dispatch(context.Background(), event(42, domain.SeverityNormal, h.clk.now))

	if len(h.ledger.rows) != 1 || h.ledger.rows[0].ZoneName != "Full View" {
		t.Fatalf("expected Full View fallback zone, got %+v", h.ledger.rows)
	}
}

func TestStopDrainsPendingEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.worker.Enqueue(event(1, domain.SeverityNormal, h.clk.now))
	h.worker.Enqueue(event(2, domain.SeverityNormal, h.clk.now))
	h.worker.Stop()

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	if len(h.primary.sent) != 2 {
		t.Fatalf("events before the sentinel must dispatch, got %d", len(h.primary.sent))
	}
}
