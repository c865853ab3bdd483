// Package alert implements the single-consumer dispatch worker that turns
// detection events into emails, voice calls, and ledger rows.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cctv/internal/clock"
	"cctv/internal/config"
	"cctv/internal/domain"
	"cctv/internal/notify"
	"cctv/internal/store"
)

// Ledger receives one append-only row per delivery attempt.
// Params: alert record.
// Returns: persistence error; satisfied by *store.Store.
type Ledger interface {
	AppendAlertRecord(record store.AlertRecord) error
}

// queueItem is one unit of worker input: an event or the stop sentinel.
type queueItem struct {
	stop  bool
	event domain.AlertEvent
}

// Options wires the worker's collaborators.
// Params: dispatch tuning, clock, logger, channels, and ledger. Fallback
// and caller may be nil when their credentials are absent.
// Returns: dependency set for NewWorker.
type Options struct {
	Config   config.AlertConfig
	Clock    clock.Clock
	Logger   *slog.Logger
	Primary  notify.EmailSender
	Fallback notify.EmailSender
	Caller   notify.Caller
	Ledger   Ledger
}

// Worker consumes detection events one at a time and performs the full
// dispatch sequence: gate, persist, compose, deliver, record.
// Params: see Options.
// Returns: worker driven by Run until Stop.
type Worker struct {
	cfg      config.AlertConfig
	clk      clock.Clock
	log      *slog.Logger
	primary  notify.EmailSender
	fallback notify.EmailSender
	caller   notify.Caller
	ledger   Ledger

	queue chan queueItem
	done  chan struct{}

	settings        config.AlertSettings
	settingsLoaded  time.Time
	settingsFailing bool
	lastEmail       map[int]time.Time
}

// NewWorker builds the dispatch worker with defaults loaded once.
// Params: options; Clock and Logger default when nil.
// Returns: worker ready for Run.
func NewWorker(opts Options) *Worker {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		cfg:       opts.Config,
		clk:       opts.Clock,
		log:       opts.Logger.With("component", "alert_worker"),
		primary:   opts.Primary,
		fallback:  opts.Fallback,
		caller:    opts.Caller,
		ledger:    opts.Ledger,
		queue:     make(chan queueItem, opts.Config.QueueSize),
		done:      make(chan struct{}),
		settings:  config.DefaultAlertSettings(),
		lastEmail: make(map[int]time.Time),
	}
}

// Enqueue offers one event to the worker without blocking the producer.
// Params: detection event.
// Returns: false when the queue is full and the event was dropped.
func (w *Worker) Enqueue(event domain.AlertEvent) bool {
	select {
	case w.queue <- queueItem{event: event}:
		return true
	default:
		w.log.Warn("alert queue full, dropping event",
			"source_id", event.SourceID, "severity", string(event.Severity))
		return false
	}
}

// Run consumes the queue until the stop sentinel or context cancel.
// Params: context passed through to delivery channels.
// Returns: after the sentinel; events enqueued before Stop are drained
// first because the queue is strictly ordered.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	poll := time.Duration(w.cfg.PollTimeoutMS) * time.Millisecond

	for {
		w.maybeReloadSettings()
		select {
		case item := <-w.queue:
			if item.stop {
				w.log.Info("alert worker stopping")
				return
			}
			w.dispatch(ctx, item.event)
		case <-time.After(poll):
		case <-ctx.Done():
			w.log.Info("alert worker context canceled")
			return
		}
	}
}

// Stop enqueues the sentinel; pending events are dispatched first.
// Params: none.
// Returns: immediately; use Wait to observe worker exit.
func (w *Worker) Stop() {
	w.queue <- queueItem{stop: true}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	<-w.done
}

// maybeReloadSettings refreshes the settings document on its cadence.
// Load failures fall back to defaults and are logged once per change of
// failure state rather than every cycle.
func (w *Worker) maybeReloadSettings() {
	now := w.clk.Now()
	reload := time.Duration(w.cfg.SettingsReloadSec) * time.Second
	if !w.settingsLoaded.IsZero() && now.Sub(w.settingsLoaded) < reload {
		return
	}
	w.settingsLoaded = now

	settings, err := config.LoadAlertSettings(w.cfg.SettingsPath)
	if err != nil {
		if !w.settingsFailing {
			w.log.Warn("alert settings unavailable, using defaults",
				"path", w.cfg.SettingsPath, "error", err)
			w.settingsFailing = true
		}
	} else if w.settingsFailing {
		w.log.Info("alert settings restored", "path", w.cfg.SettingsPath)
		w.settingsFailing = false
	}
	w.settings = settings
}

// dispatch runs the full delivery sequence for one event.
// Params: context and detection event.
// Returns: every failure is caught, logged, and recorded as outcome text;
// nothing here stops the worker.
func (w *Worker) dispatch(ctx context.Context, event domain.AlertEvent) {
	now := w.clk.Now()

	if !w.settings.ActiveHours.InWindow(now) {
		w.log.Info("alert outside active hours, skipped",
			"event_id", event.ID, "source_id", event.SourceID,
			"severity", string(event.Severity))
		return
	}

	zone := w.settings.ZoneFor(event.SourceID)

	if event.Severity != domain.SeverityEmergency {
		if last, ok := w.lastEmail[event.SourceID]; ok {
			cooldown := time.Duration(w.cfg.CooldownSec) * time.Second
			if now.Sub(last) < cooldown {
				w.log.Info("alert inside cooldown, skipped",
					"event_id", event.ID, "source_id", event.SourceID,
					"severity", string(event.Severity))
				return
			}
		}
	}

	imagePath := w.persistSnapshot(event, now)
	subject, body := composeMessage(event.Severity, event.SourceID, zone, event.At, imagePath != "")
	if w.cfg.EmailSubjectPrefix != "" {
		subject = w.cfg.EmailSubjectPrefix + subject
	}

	emailOutcome := w.sendEmail(ctx, subject, body, event.Snapshot, imagePath)
	w.appendLedger(store.AlertRecord{
		Timestamp: now.Format("2006-01-02 15:04:05"),
		CameraID:  event.SourceID,
		ZoneName:  zone.Name,
		Kind:      string(domain.AlertKindEmail),
		ImagePath: imagePath,
		Status:    emailOutcome,
	})
	if emailOutcome == "ok" {
		w.lastEmail[event.SourceID] = now
	}

	if event.Severity == domain.SeverityHigh || event.Severity == domain.SeverityEmergency {
		callOutcome := w.placeCall(ctx)
		w.appendLedger(store.AlertRecord{
			Timestamp: now.Format("2006-01-02 15:04:05"),
			CameraID:  event.SourceID,
			ZoneName:  zone.Name,
			Kind:      string(domain.AlertKindCall),
			ImagePath: imagePath,
			Status:    callOutcome,
		})
	}
}

// persistSnapshot writes the event snapshot under a date partition.
// Params: event and dispatch time.
// Returns: written path, or empty when there is no snapshot or the write
// failed; a failed write only costs the email its attachment.
func (w *Worker) persistSnapshot(event domain.AlertEvent, now time.Time) string {
	if len(event.Snapshot) == 0 {
		return ""
	}
	dir := filepath.Join(w.cfg.AlertsDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Warn("alert snapshot dir failed", "dir", dir, "error", err)
		return ""
	}
	// Microsecond suffix keeps same-second alerts from overwriting each other.
	path := filepath.Join(dir, fmt.Sprintf("alert_%s_%06d.jpg",
		now.Format("20060102_150405"), now.Nanosecond()/1000))
	if err := os.WriteFile(path, event.Snapshot, 0o644); err != nil {
		w.log.Warn("alert snapshot write failed", "path", path, "error", err)
		return ""
	}
	return path
}

// sendEmail tries the primary channel and falls back to the relay.
// Params: context, composed message, snapshot bytes, and persisted path.
// Returns: "ok" or the final error text; exactly one outcome per event.
func (w *Worker) sendEmail(ctx context.Context, subject, body string, snapshot []byte, imagePath string) string {
	if w.settings.AdminEmail == "" {
		return "no admin email configured"
	}
	msg := notify.Email{
		To:         w.settings.AdminEmail,
		Subject:    subject,
		Body:       body,
		Attachment: snapshot,
		Filename:   filepath.Base(imagePath),
	}
	if imagePath == "" {
		msg.Attachment = nil
		msg.Filename = ""
	}

	if w.primary != nil {
		err := w.primary.Send(ctx, msg)
		if err == nil {
			return "ok"
		}
		w.log.Warn("primary email failed, trying fallback", "error", err)
	}
	if w.fallback == nil {
		return "no email channel available"
	}
	if err := w.fallback.Send(ctx, msg); err != nil {
		w.log.Error("fallback email failed", "error", err)
		return err.Error()
	}
	return "ok"
}

// placeCall rings the admin with the fixed announcement.
// Params: context.
// Returns: outcome text for the ledger.
func (w *Worker) placeCall(ctx context.Context) string {
	if w.caller == nil {
		return "no call channel available"
	}
	if w.settings.AdminPhone == "" {
		return "no admin phone configured"
	}
	if err := w.caller.Call(ctx, w.settings.AdminPhone, w.cfg.CallAnnouncement); err != nil {
		w.log.Error("alert call failed", "error", err)
		return err.Error()
	}
	return "call placed"
}

// appendLedger records one delivery attempt, logging persistence failures.
func (w *Worker) appendLedger(record store.AlertRecord) {
	if w.ledger == nil {
		return
	}
	if err := w.ledger.AppendAlertRecord(record); err != nil {
		w.log.Error("alert ledger append failed", "error", err)
	}
}
