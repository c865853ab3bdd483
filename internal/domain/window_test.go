package domain

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.March, 14, hour, minute, 0, 0, time.Local)
}

func TestActiveHoursSameDayWindow(t *testing.T) {
	t.Parallel()

	window, err := ParseActiveHours("09:00", "17:30")
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{8, 59, false},
		{9, 0, true},
		{12, 0, true},
		{17, 30, true},
		{17, 31, false},
	}
	for _, tc := range cases {
		if got := window.InWindow(at(tc.hour, tc.minute)); got != tc.want {
			t.Fatalf("in window at %02d:%02d = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestActiveHoursWrapsMidnight(t *testing.T) {
	t.Parallel()

	window, err := ParseActiveHours("22:00", "05:00")
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{23, 30, true},
		{0, 0, true},
		{5, 0, true},
		{5, 1, false},
		{12, 0, false},
		{21, 59, false},
		{22, 0, true},
	}
	for _, tc := range cases {
		if got := window.InWindow(at(tc.hour, tc.minute)); got != tc.want {
			t.Fatalf("in window at %02d:%02d = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestParseClockTimeRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "12", "24:00", "10:60", "aa:bb", "-1:10"} {
		if _, err := ParseClockTime(raw); err == nil {
			t.Fatalf("expected parse error for %q", raw)
		}
	}
}

func TestEffectivePolicyFallsBackForManual(t *testing.T) {
	t.Parallel()

	if got := EffectivePolicy(PolicyManual, PolicyMotion); got != PolicyMotion {
		t.Fatalf("manual camera policy should fall back to global, got %+v", got)
	}
	if got := EffectivePolicy(PolicyPerson, PolicyMotion); got != PolicyPerson {
		t.Fatalf("camera policy should win over global, got %+v", got)
	}
}
