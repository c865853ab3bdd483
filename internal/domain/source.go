package domain

import (
	"fmt"
	"strings"
)

// SourceKind identifies transport used by one configured video origin.
// Params: constants for device/network/http-push/http-poll transports.
// Returns: normalized kind usage across source builders.
type SourceKind string

const (
	// SourceKindDevice marks a local capture device addressed by index.
	SourceKindDevice SourceKind = "usb"
	// SourceKindNetwork marks an RTSP or other demuxable network stream.
	SourceKindNetwork SourceKind = "rtsp"
	// SourceKindHTTPPush marks a multipart MJPEG push stream.
	SourceKindHTTPPush SourceKind = "http_mjpeg"
	// SourceKindHTTPPoll marks a snapshot endpoint polled at a fixed rate.
	SourceKindHTTPPoll SourceKind = "http_snapshot"
)

// ParseSourceKind normalizes one stored transport kind value.
// Params: raw kind text from camera store.
// Returns: parsed kind or error for unknown transports.
func ParseSourceKind(raw string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceKindDevice:
		return SourceKindDevice, nil
	case SourceKindNetwork, "":
		return SourceKindNetwork, nil
	case SourceKindHTTPPush:
		return SourceKindHTTPPush, nil
	case SourceKindHTTPPoll:
		return SourceKindHTTPPoll, nil
	default:
		return "", fmt.Errorf("unsupported source kind %q", raw)
	}
}

// Source is one configured video origin read from the camera store.
// Params: identity, transport kind, connection target, and recording policy.
// Returns: immutable source descriptor for pipeline startup.
type Source struct {
	ID        int
	Name      string
	Kind      SourceKind
	Target    string
	Policy    RecordPolicy
	SortOrder int
}

// RecordPolicy governs when video for one source is persisted to storage.
// Params: manual/always/motion/person policy constants.
// Returns: normalized policy usage by the recording engine.
type RecordPolicy string

const (
	// PolicyManual records only via explicit user toggles.
	PolicyManual RecordPolicy = "manual"
	// PolicyAlways records from the first frame until the source stops.
	PolicyAlways RecordPolicy = "always"
	// PolicyMotion records while motion is detected, plus a grace period.
	PolicyMotion RecordPolicy = "motion"
	// PolicyPerson records while at least one person is detected.
	PolicyPerson RecordPolicy = "person"
)

// ParseRecordPolicy normalizes one stored policy value.
// Params: raw policy text from camera store or preferences.
// Returns: parsed policy, defaulting unknown values to manual.
func ParseRecordPolicy(raw string) RecordPolicy {
	switch RecordPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyAlways:
		return PolicyAlways
	case PolicyMotion:
		return PolicyMotion
	case PolicyPerson:
		return PolicyPerson
	default:
		return PolicyManual
	}
}

// EffectivePolicy resolves the policy applied to one source.
// Params: camera-specific policy and the global default policy.
// Returns: camera policy unless manual, then the global default.
func EffectivePolicy(cameraPolicy, globalDefault RecordPolicy) RecordPolicy {
	if cameraPolicy == PolicyManual {
		return globalDefault
	}
	return cameraPolicy
}
