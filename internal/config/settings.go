package config

import (
	"encoding/json"
	"os"

	"cctv/internal/domain"
)

// AlertSettings is the runtime alert configuration document.
// Params: active-hours window, restricted zones, and admin contacts.
// Returns: settings snapshot reloaded by the dispatch worker on its cadence.
type AlertSettings struct {
	ActiveHours domain.ActiveHours
	Zones       []domain.Zone
	AdminEmail  string
	AdminPhone  string
}

// rawAlertSettings mirrors the JSON document written by the settings surface.
type rawAlertSettings struct {
	ActiveHours struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"alert_active_hours"`
	Zones      []domain.Zone `json:"restricted_zones"`
	AdminEmail string        `json:"admin_email"`
	AdminPhone string        `json:"admin_phone"`
}

// DefaultAlertSettings returns the safe fallback settings.
// Params: none.
// Returns: active hours 00:00-05:00, no zones, no contacts.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		ActiveHours: domain.ActiveHours{
			Start: domain.ClockTime{Hour: 0, Minute: 0},
			End:   domain.ClockTime{Hour: 5, Minute: 0},
		},
	}
}

// LoadAlertSettings reads the alert settings document, never failing.
// Params: settings file path.
// Returns: parsed settings, or defaults when the file is missing or
// malformed, plus the read/parse error for one-shot logging.
func LoadAlertSettings(path string) (AlertSettings, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return DefaultAlertSettings(), err
	}
	var raw rawAlertSettings
	if err := json.Unmarshal(body, &raw); err != nil {
		return DefaultAlertSettings(), err
	}

	settings := DefaultAlertSettings()
	if raw.ActiveHours.Start != "" || raw.ActiveHours.End != "" {
		window, err := domain.ParseActiveHours(raw.ActiveHours.Start, raw.ActiveHours.End)
		if err == nil {
			settings.ActiveHours = window
		}
	}
	settings.Zones = raw.Zones
	settings.AdminEmail = raw.AdminEmail
	settings.AdminPhone = raw.AdminPhone
	return settings, nil
}

// ZoneFor resolves the zone configured for one source.
// Params: source id.
// Returns: matching zone, or a synthesized "Full View" zone so delivery is
// never blocked by missing zone configuration.
func (s AlertSettings) ZoneFor(sourceID int) domain.Zone {
	for _, zone := range s.Zones {
		if zone.CameraID == sourceID {
			return zone
		}
	}
	return domain.Zone{CameraID: sourceID, Name: "Full View"}
}
