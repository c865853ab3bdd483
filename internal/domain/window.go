package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is one wall-clock time of day without a date.
// Params: hour 0..23 and minute 0..59.
// Returns: comparable time-of-day value for window checks.
type ClockTime struct {
	Hour   int
	Minute int
}

// minutes converts the clock time to minutes since midnight.
func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseClockTime parses one "HH:MM" time-of-day value.
// Params: raw text such as "22:00".
// Returns: parsed clock time or format/range error.
func ParseClockTime(raw string) (ClockTime, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("clock time %q must be HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q hour: %w", raw, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q minute: %w", raw, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", raw)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// ActiveHours is the time-of-day range during which alerting is permitted.
// Params: start and end clock times; start > end spans midnight.
// Returns: window supporting same-day and wraparound checks.
type ActiveHours struct {
	Start ClockTime
	End   ClockTime
}

// ParseActiveHours parses one start/end pair of "HH:MM" values.
// Params: raw start and end texts from alert settings.
// Returns: parsed window or first parse error.
func ParseActiveHours(start, end string) (ActiveHours, error) {
	startTime, err := ParseClockTime(start)
	if err != nil {
		return ActiveHours{}, err
	}
	endTime, err := ParseClockTime(end)
	if err != nil {
		return ActiveHours{}, err
	}
	return ActiveHours{Start: startTime, End: endTime}, nil
}

// InWindow reports whether one instant falls inside the window.
// Params: wall-clock time evaluated by its local time of day.
// Returns: start<=t<=end for same-day windows; t>=start or t<=end across midnight.
func (w ActiveHours) InWindow(t time.Time) bool {
	now := ClockTime{Hour: t.Hour(), Minute: t.Minute()}.minutes()
	start := w.Start.minutes()
	end := w.End.minutes()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}
