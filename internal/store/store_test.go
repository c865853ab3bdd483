package store

import (
	"path/filepath"
	"testing"

	"cctv/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cctv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListSourcesOrdersBySortOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.AddCamera("front", "rtsp://cam1", domain.SourceKindNetwork); err != nil {
		t.Fatalf("add camera: %v", err)
	}
	if _, err := s.AddCamera("yard", "http://cam2/stream", domain.SourceKindHTTPPush); err != nil {
		t.Fatalf("add camera: %v", err)
	}

	sources, err := s.ListSources()
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name != "front" || sources[1].Name != "yard" {
		t.Fatalf("unexpected order: %+v", sources)
	}
	if sources[1].Kind != domain.SourceKindHTTPPush {
		t.Fatalf("kind = %+v, want http_mjpeg", sources[1].Kind)
	}
	if sources[0].Policy != domain.PolicyManual {
		t.Fatalf("new cameras must default to manual policy, got %+v", sources[0].Policy)
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id, err := s.AddCamera("door", "rtsp://cam", domain.SourceKindNetwork)
	if err != nil {
		t.Fatalf("add camera: %v", err)
	}
	if err := s.UpdateCameraPolicy(id, domain.PolicyPerson); err != nil {
		t.Fatalf("update policy: %v", err)
	}
	policy, err := s.GetPolicy(id)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if policy != domain.PolicyPerson {
		t.Fatalf("policy = %+v, want person", policy)
	}

	if err := s.UpdateCameraPolicy(9999, domain.PolicyAlways); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown camera, got %v", err)
	}
}

func TestPreferencesCreatedOnFirstAccess(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	prefs, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if prefs.Codec != "mp4" || prefs.Theme != "dark" {
		t.Fatalf("unexpected defaults: %+v", prefs)
	}
	if prefs.RecordPolicyDefault != domain.PolicyManual {
		t.Fatalf("global policy default = %+v, want manual", prefs.RecordPolicyDefault)
	}
}

func TestAlertLedgerAppendOnly(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	rows := []AlertRecord{
		{Timestamp: "2025-03-14 01:00:00", CameraID: 1, ZoneName: "Main Door", Kind: "email", Status: "ok"},
		{Timestamp: "2025-03-14 01:00:01", CameraID: 1, ZoneName: "Main Door", Kind: "call", Status: "call placed"},
	}
	for _, row := range rows {
		if err := s.AppendAlertRecord(row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.ListAlertRecords(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(got))
	}
	if got[0].Kind != "call" {
		t.Fatalf("expected newest first, got %+v", got[0])
	}
}

func TestValidateUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.CreateUser("admin", "hunter2"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ok, err := s.ValidateUser("admin", "hunter2")
	if err != nil || !ok {
		t.Fatalf("valid credentials rejected: ok=%v err=%v", ok, err)
	}
	ok, err = s.ValidateUser("admin", "wrong")
	if err != nil || ok {
		t.Fatalf("invalid password accepted: ok=%v err=%v", ok, err)
	}
	ok, err = s.ValidateUser("nobody", "x")
	if err != nil || ok {
		t.Fatalf("unknown user accepted: ok=%v err=%v", ok, err)
	}
}
