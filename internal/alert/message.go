package alert

import (
	"fmt"
	"time"

	"cctv/internal/domain"
)

// Subject templates per severity. Texts are stable because downstream
// mail filtering keys on them.
const (
	subjectEmergency = "EMERGENCY: Person Extremely Close (Cam %d)"
	subjectHigh      = "Person Detected Near Restricted %s"
	subjectNormal    = "Motion Detected Near Restricted %s"
)

// composeMessage renders the subject and body for one alert email.
// Params: event severity, source id, zone, event time, and whether a
// snapshot will be attached.
// Returns: subject line and plain-text body.
func composeMessage(severity domain.Severity, sourceID int, zone domain.Zone, at time.Time, attached bool) (string, string) {
	var subject string
	switch severity {
	case domain.SeverityEmergency:
		subject = fmt.Sprintf(subjectEmergency, sourceID)
	case domain.SeverityHigh:
		subject = fmt.Sprintf(subjectHigh, zone.Name)
	default:
		subject = fmt.Sprintf(subjectNormal, zone.Name)
	}

	note := "snapshot attached"
	if !attached {
		note = "snapshot unavailable"
	}
	body := fmt.Sprintf(
		"Timestamp: %s\nCamera ID: %d\nMessage: %s\nNote: %s\n",
		at.Format("2006-01-02 15:04:05"), sourceID, subject, note,
	)
	return subject, body
}
