package playback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"

	"github.com/user/strata/internal/bus"
	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/scene"
	"github.com/user/strata/internal/timeline"
	"github.com/user/strata/internal/tree"
)

func smallTree() *tree.Node {
	return &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{
		{Name: "a", Kind: tree.File, Size: 1},
	}}
}

// fiveEvents alternates file scans (even indices) and milestones.
func fiveEvents(t *testing.T) *timeline.Log {
	t.Helper()
	var events []timeline.Event
	for i := range 5 {
		e := timeline.Event{ID: fmt.Sprintf("e%d", i), Timestamp: int64(i * 100)}
		if i%2 == 0 {
			e.Kind = timeline.FileScan
			e.FileScan = &timeline.FileScanPayload{Tree: smallTree()}
		} else {
			e.Kind = timeline.Milestone
			e.Milestone = &timeline.MilestonePayload{Category: timeline.Deadline, Duration: lo.ToPtr(int64(50))}
		}
		events = append(events, e)
	}
	log, err := timeline.NewLog(events, nil)
	if err != nil {
		t.Fatal(err)
	}
	return log
}

type harness struct {
	ctrl  *Controller
	comp  *scene.Compositor
	dev   *scene.MemoryDevice
	clock *clock.Fake
	bus   *bus.Bus
}

func newHarness(t *testing.T, log *timeline.Log) *harness {
	t.Helper()
	cfg := config.Default()
	h := &harness{
		dev:   scene.NewMemoryDevice(),
		clock: clock.NewFake(time.Unix(1000, 0)),
		bus:   bus.New(),
	}
	h.comp = scene.New(h.dev, scene.OptionsFromConfig(cfg))
	ctrl, err := New(context.Background(), log, h.comp, h.bus, h.clock, OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl
	return h
}

func TestEmptyLog(t *testing.T) {
	for _, log := range []*timeline.Log{nil, lo.Must(timeline.NewLog(nil, nil))} {
		h := newHarness(t, log)
		st := h.ctrl.Status()
		if st.Message != "no events" {
			t.Errorf("expected \"no events\", got %q", st.Message)
		}
		if st.Index != -1 {
			t.Errorf("expected index -1, got %d", st.Index)
		}

		h.ctrl.Play()
		h.ctrl.Advance()
		h.ctrl.Seek(0)
		h.ctrl.Reset()
		h.clock.Advance(10 * time.Second)

		if h.ctrl.Index() != -1 {
			t.Errorf("expected index to stay -1, got %d", h.ctrl.Index())
		}
		if h.ctrl.State() != Idle {
			t.Errorf("expected idle, got %s", h.ctrl.State())
		}
		if h.dev.Live() != 0 {
			t.Errorf("expected empty scene, got %d live resources", h.dev.Live())
		}
	}
}

func TestInitialState(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	if h.ctrl.State() != Idle {
		t.Errorf("expected idle, got %s", h.ctrl.State())
	}
	if h.ctrl.Index() != 4 {
		t.Errorf("expected last index 4, got %d", h.ctrl.Index())
	}
	if h.comp.Index() != 4 {
		t.Errorf("expected scene built for index 4, got %d", h.comp.Index())
	}
	if st := h.ctrl.Status(); st.EventID != "e4" || st.Message != "event 5 of 5" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSeekOutOfRangeIgnored(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Seek(2)
	if h.ctrl.Index() != 2 {
		t.Fatalf("expected index 2, got %d", h.ctrl.Index())
	}
	h.ctrl.Seek(-1)
	if h.ctrl.Index() != 2 {
		t.Errorf("seek(-1): expected index 2, got %d", h.ctrl.Index())
	}
	h.ctrl.Seek(5)
	if h.ctrl.Index() != 2 {
		t.Errorf("seek(5): expected index 2, got %d", h.ctrl.Index())
	}
	if h.comp.Index() != 2 {
		t.Errorf("expected scene at 2, got %d", h.comp.Index())
	}
}

func TestSeekStateIsTransient(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	var during State
	h.bus.Subscribe(bus.TopicPrefix, func(bus.Message) error {
		during = h.ctrl.State()
		return nil
	})
	h.ctrl.Seek(1)
	if during != Seeking {
		t.Errorf("expected seeking during rebuild, got %s", during)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("expected idle after seek, got %s", h.ctrl.State())
	}
}

func TestPlayRunsToEnd(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Reset()
	if h.ctrl.Index() != 0 || h.ctrl.State() != Paused {
		t.Fatalf("expected paused at 0, got %s at %d", h.ctrl.State(), h.ctrl.Index())
	}

	h.ctrl.Play()
	if h.ctrl.State() != Playing {
		t.Fatalf("expected playing, got %s", h.ctrl.State())
	}
	h.clock.Advance(999 * time.Millisecond)
	if h.ctrl.Index() != 0 {
		t.Errorf("expected no tick yet, got index %d", h.ctrl.Index())
	}
	h.clock.Advance(time.Millisecond)
	if h.ctrl.Index() != 1 {
		t.Errorf("expected index 1 after one tick, got %d", h.ctrl.Index())
	}

	h.clock.Advance(10 * time.Second)
	if h.ctrl.Index() != 4 {
		t.Errorf("expected index 4, got %d", h.ctrl.Index())
	}
	if h.ctrl.State() != Paused {
		t.Errorf("expected paused at the end, got %s", h.ctrl.State())
	}
	if h.clock.Pending() != 0 {
		t.Errorf("expected ticker cancelled, %d timers pending", h.clock.Pending())
	}
	if h.comp.Index() != 4 {
		t.Errorf("expected scene at 4, got %d", h.comp.Index())
	}
}

func TestPlayAtLastIsNoop(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Play()
	if h.ctrl.State() != Idle {
		t.Errorf("expected idle, got %s", h.ctrl.State())
	}
	if h.clock.Pending() != 0 {
		t.Errorf("expected no ticker, got %d pending", h.clock.Pending())
	}
}

func TestPause(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Reset()
	h.ctrl.Play()
	h.clock.Advance(time.Second)
	h.ctrl.Pause()
	h.clock.Advance(10 * time.Second)
	if h.ctrl.Index() != 1 {
		t.Errorf("expected index 1 after pause, got %d", h.ctrl.Index())
	}
	if h.ctrl.State() != Paused {
		t.Errorf("expected paused, got %s", h.ctrl.State())
	}
}

func TestAdvanceNeverPastEnd(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Reset()
	for range 10 {
		h.ctrl.Advance()
	}
	if h.ctrl.Index() != 4 {
		t.Errorf("expected index 4, got %d", h.ctrl.Index())
	}
}

func TestSetSpeed(t *testing.T) {
	h := newHarness(t, fiveEvents(t))

	tests := []struct {
		in, want int
	}{
		{50, 100},
		{20000, 10000},
		{750, 750},
	}
	for _, tt := range tests {
		h.ctrl.SetSpeed(tt.in)
		if got := h.ctrl.Status().SpeedMs; got != tt.want {
			t.Errorf("SetSpeed(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}

	h.ctrl.SetSpeed(1000)
	h.ctrl.Reset()
	h.ctrl.Play()
	h.clock.Advance(500 * time.Millisecond)
	h.ctrl.SetSpeed(200)
	h.clock.Advance(200 * time.Millisecond)
	if h.ctrl.Index() != 1 {
		t.Errorf("expected restarted ticker to fire at the new speed, got index %d", h.ctrl.Index())
	}
	if h.clock.Pending() != 1 {
		t.Errorf("expected exactly one pending tick, got %d", h.clock.Pending())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Seek(3)
	h.ctrl.SetSpeed(250)
	h.ctrl.SetCameraFollow(false)

	data, err := h.ctrl.Export()
	if err != nil {
		t.Fatal(err)
	}

	other := newHarness(t, fiveEvents(t))
	if err := other.ctrl.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got, want := other.ctrl.Checkpoint(), h.ctrl.Checkpoint(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	again, _ := other.ctrl.Export()
	if string(again) != string(data) {
		t.Errorf("expected identical export, got %s vs %s", again, data)
	}
	if other.comp.Index() != 3 {
		t.Errorf("expected imported scene at 3, got %d", other.comp.Index())
	}
}

func TestImportRejectsOutOfRange(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	err := h.ctrl.Import([]byte(`{"current_index": 9, "speed_ms": 300, "camera_follow": false}`))
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if cp := h.ctrl.Checkpoint(); cp.CurrentIndex != 4 || cp.SpeedMs != 1000 {
		t.Errorf("expected state unchanged, got %+v", cp)
	}
	if err := h.ctrl.Import([]byte(`{`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestPrefixChangedAfterRebuild(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	var seen []int
	h.bus.Subscribe(bus.TopicPrefix, func(m bus.Message) error {
		pc := m.(bus.PrefixChanged)
		if h.comp.Index() != pc.Index {
			t.Errorf("scene at %d when prefix %d announced", h.comp.Index(), pc.Index)
		}
		seen = append(seen, pc.Index)
		return nil
	})
	h.ctrl.Seek(1)
	h.ctrl.Advance()
	h.ctrl.Reset()
	want := []int{1, 2, 0}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("expected prefixes %v, got %v", want, seen)
	}
}

func TestSetLayout(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	var got bus.SettingsChanged
	h.bus.Subscribe(bus.TopicSettings, func(m bus.Message) error {
		got = m.(bus.SettingsChanged)
		return nil
	})

	before, _ := h.comp.Segment("e0#/root")
	if err := h.ctrl.SetLayout(90, 1); err != nil {
		t.Fatal(err)
	}
	if got.MinAngleDeg != 50 || got.RingThickness != 2 {
		t.Errorf("expected clamped 50/2, got %+v", got)
	}
	after, _ := h.comp.Segment("e0#/root")
	if after.OuterRadius-after.InnerRadius != 2 {
		t.Errorf("expected rebuilt ring thickness 2, got %v", after.OuterRadius-after.InnerRadius)
	}
	if before.OuterRadius == after.OuterRadius {
		t.Error("expected layout to change")
	}
}

func TestSetVisible(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	var got bus.VisibilityChanged
	h.bus.Subscribe(bus.TopicVisibility, func(m bus.Message) error {
		got = m.(bus.VisibilityChanged)
		return nil
	})
	h.ctrl.SetVisible(scene.GroupMilestones, false)
	if h.comp.Visible(scene.GroupMilestones) {
		t.Error("expected milestones hidden")
	}
	if got.Group != "milestones" || got.Visible {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestCameraFollow(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	spacing := config.Default().Timeline.CameraSpacing

	// e4 is the third file scan.
	if z, active := h.ctrl.CameraTarget(); !active || z != 3*spacing {
		t.Errorf("expected active target %v, got %v %v", 3*spacing, z, active)
	}
	// e3 is the second milestone.
	h.ctrl.Seek(3)
	if z, _ := h.ctrl.CameraTarget(); z != 2*spacing {
		t.Errorf("expected %v, got %v", 2*spacing, z)
	}

	h.ctrl.NoteManualCamera()
	h.ctrl.Seek(0)
	if z, active := h.ctrl.CameraTarget(); active || z != 2*spacing {
		t.Errorf("expected follow suppressed at %v, got %v %v", 2*spacing, z, active)
	}

	h.clock.Advance(5 * time.Second)
	h.ctrl.Seek(0)
	if z, active := h.ctrl.CameraTarget(); !active || z != spacing {
		t.Errorf("expected follow resumed at %v, got %v %v", spacing, z, active)
	}

	h.ctrl.SetCameraFollow(false)
	h.ctrl.Seek(4)
	if z, active := h.ctrl.CameraTarget(); active || z != spacing {
		t.Errorf("expected follow off, got %v %v", z, active)
	}
}

func TestCameraCatchesUpAfterHold(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	spacing := config.Default().Timeline.CameraSpacing

	h.ctrl.Seek(0)
	h.ctrl.NoteManualCamera()
	h.ctrl.Seek(4)
	if z, active := h.ctrl.CameraTarget(); active || z != spacing {
		t.Errorf("expected camera held at %v, got %v %v", spacing, z, active)
	}

	h.clock.Advance(6 * time.Second)
	if z, active := h.ctrl.CameraTarget(); !active || z != 3*spacing {
		t.Errorf("expected follow at %v after hold, got %v %v", 3*spacing, z, active)
	}
	if got := h.ctrl.Status().CameraZ; got != 3*spacing {
		t.Errorf("expected status camera z %v, got %v", 3*spacing, got)
	}
	if got := h.ctrl.KindTarget(timeline.Milestone); got != 2*spacing {
		t.Errorf("expected milestone target %v, got %v", 2*spacing, got)
	}
}

func TestSetLogResets(t *testing.T) {
	h := newHarness(t, fiveEvents(t))
	h.ctrl.Reset()
	h.ctrl.Play()
	if err := h.ctrl.SetLog(nil); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.State() != Idle || h.ctrl.Index() != -1 {
		t.Errorf("expected idle at -1, got %s at %d", h.ctrl.State(), h.ctrl.Index())
	}
	if h.clock.Pending() != 0 {
		t.Errorf("expected ticker stopped, got %d pending", h.clock.Pending())
	}
	if h.dev.Live() != 0 {
		t.Errorf("expected scene emptied, got %d live", h.dev.Live())
	}
}
