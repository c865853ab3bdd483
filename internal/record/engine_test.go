package record

import (
	"testing"
	"time"

	"gocv.io/x/gocv"

	"cctv/internal/domain"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeWriter struct {
	frames int
	closes int
}

func (f *fakeWriter) Write(_ gocv.Mat) error { f.frames++; return nil }
func (f *fakeWriter) Close() error           { f.closes++; return nil }

type fakeFactory struct {
	opened  []*fakeWriter
	dims    [][2]int
	session int
}

func (f *fakeFactory) open(sourceID, width, height int) (Writer, string, error) {
	w := &fakeWriter{}
	f.opened = append(f.opened, w)
	f.dims = append(f.dims, [2]int{width, height})
	f.session++
	return w, "cam1_test.avi", nil
}

func newTestEngine(policy domain.RecordPolicy) (*Engine, *fakeFactory, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)}
	factory := &fakeFactory{}
	engine := NewEngine(1, policy, 10*time.Second, clk, factory.open)
	return engine, factory, clk
}

func TestAlwaysPolicyRecordsEveryFrame(t *testing.T) {
	t.Parallel()
	engine, factory, clk := newTestEngine(domain.PolicyAlways)

	for i := 0; i < 3; i++ {
		if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
			t.Fatalf("observe: %+v", err)
		}
		clk.now = clk.now.Add(time.Second)
	}
	if factory.session != 1 {
		t.Fatalf("sessions = %d, want 1", factory.session)
	}
	if factory.opened[0].frames != 3 {
		t.Fatalf("frames = %d, want 3", factory.opened[0].frames)
	}
	if !engine.Recording() {
		t.Fatal("always policy must stay recording")
	}
}

func TestMotionPolicyClosesAfterGrace(t *testing.T) {
	t.Parallel()
	engine, factory, clk := newTestEngine(domain.PolicyMotion)

	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, true); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if !engine.Recording() {
		t.Fatal("motion must start a session")
	}

	// Quiet frames inside the 10s grace keep the session open.
	clk.now = clk.now.Add(9 * time.Second)
	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if !engine.Recording() {
		t.Fatal("session closed inside the grace window")
	}

	// One more quiet frame past the grace closes exactly once.
	clk.now = clk.now.Add(2 * time.Second)
	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if engine.Recording() {
		t.Fatal("session still open past the grace window")
	}
	if factory.opened[0].closes != 1 {
		t.Fatalf("closes = %d, want 1", factory.opened[0].closes)
	}

	// New motion starts a fresh session.
	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, true); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if factory.session != 2 {
		t.Fatalf("sessions = %d, want 2", factory.session)
	}
}

func TestPersonPolicyFollowsPresence(t *testing.T) {
	t.Parallel()
	engine, factory, _ := newTestEngine(domain.PolicyPerson)

	if err := engine.Observe(gocv.Mat{}, 640, 480, 2, true); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if !engine.Recording() {
		t.Fatal("person presence must start a session")
	}
	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, true); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if engine.Recording() {
		t.Fatal("session must close when nobody is visible")
	}
	if factory.opened[0].closes != 1 {
		t.Fatalf("closes = %d, want 1", factory.opened[0].closes)
	}
}

func TestManualPolicyTogglesSessions(t *testing.T) {
	t.Parallel()
	engine, factory, _ := newTestEngine(domain.PolicyManual)

	if err := engine.Observe(gocv.Mat{}, 640, 480, 1, true); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if engine.Recording() {
		t.Fatal("manual policy must ignore detections")
	}

	engine.StartManual()
	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if !engine.Recording() {
		t.Fatal("manual start must open a session")
	}

	if err := engine.StopManual(); err != nil {
		t.Fatalf("stop manual: %+v", err)
	}
	if err := engine.StopManual(); err != nil {
		t.Fatalf("second stop must be idempotent: %+v", err)
	}
	if factory.opened[0].closes != 1 {
		t.Fatalf("closes = %d, want 1", factory.opened[0].closes)
	}
}

func TestDimensionChangeReopensWriter(t *testing.T) {
	t.Parallel()
	engine, factory, _ := newTestEngine(domain.PolicyAlways)

	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	if err := engine.Observe(gocv.Mat{}, 1280, 720, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}

	if factory.session != 2 {
		t.Fatalf("sessions = %d, want 2 after dimension change", factory.session)
	}
	if factory.opened[0].closes != 1 {
		t.Fatalf("first writer closes = %d, want 1", factory.opened[0].closes)
	}
	if factory.dims[1] != [2]int{1280, 720} {
		t.Fatalf("second session dims = %v", factory.dims[1])
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	engine, factory, _ := newTestEngine(domain.PolicyAlways)

	if err := engine.Observe(gocv.Mat{}, 640, 480, 0, false); err != nil {
		t.Fatalf("observe: %+v", err)
	}
	for i := 0; i < 3; i++ {
		if err := engine.Close(); err != nil {
			t.Fatalf("close %d: %+v", i, err)
		}
	}
	if factory.opened[0].closes != 1 {
		t.Fatalf("closes = %d, want 1", factory.opened[0].closes)
	}
}

func TestCodecProfileMapping(t *testing.T) {
	t.Parallel()
	if fourcc, ext := codecProfile("mp4"); fourcc != "mp4v" || ext != ".mp4" {
		t.Fatalf("mp4 profile = %s %s", fourcc, ext)
	}
	if fourcc, ext := codecProfile("avi"); fourcc != "MJPG" || ext != ".avi" {
		t.Fatalf("avi profile = %s %s", fourcc, ext)
	}
	if fourcc, ext := codecProfile("weird"); fourcc != "MJPG" || ext != ".avi" {
		t.Fatalf("fallback profile = %s %s", fourcc, ext)
	}
}
