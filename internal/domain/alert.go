package domain

import (
	"strings"
	"time"
)

// Severity is the ordered escalation level of one detection event.
// Params: normal/high/emergency constants, normal < high < emergency.
// Returns: severity used for gating, templates, and call escalation.
type Severity string

const (
	// SeverityNormal marks motion without a detected person.
	SeverityNormal Severity = "normal"
	// SeverityHigh marks a detected person.
	SeverityHigh Severity = "high"
	// SeverityEmergency marks a close-range person detection.
	SeverityEmergency Severity = "emergency"
)

// ParseSeverity normalizes one severity value.
// Params: raw severity text.
// Returns: parsed severity, defaulting unknown values to normal.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityEmergency:
		return SeverityEmergency
	default:
		return SeverityNormal
	}
}

// AlertEvent is one detection event queued for dispatch.
// Params: correlation id, source identity, optional JPEG snapshot,
// severity, and capture time.
// Returns: immutable event consumed exactly once by the dispatch worker.
type AlertEvent struct {
	ID       string
	SourceID int
	Snapshot []byte
	Severity Severity
	At       time.Time
}

// Zone is read-only reference data decorating alert messages.
// Params: zone name and associated source id from alert settings.
// Returns: zone descriptor for message composition.
type Zone struct {
	CameraID int    `json:"camera_id"`
	Name     string `json:"name"`
}

// AlertKind identifies the notification channel of one ledger row.
type AlertKind string

const (
	// AlertKindEmail marks an email delivery attempt.
	AlertKindEmail AlertKind = "email"
	// AlertKindCall marks a voice-call delivery attempt.
	AlertKindCall AlertKind = "call"
)
