package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"

	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/timeline"
	"github.com/user/strata/internal/tree"
)

func sampleTree() *tree.Node {
	return &tree.Node{Name: "root", Kind: tree.Folder, Size: 100, Children: []*tree.Node{
		{Name: "a.py", Kind: tree.File, Size: 30, MimeType: "text/x-python"},
		{Name: "src", Kind: tree.Folder, Size: 70, Children: []*tree.Node{
			{Name: "b.go", Kind: tree.File, Size: 70},
		}},
	}}
}

// sampleLog has two trees (7 sunburst renderables each), one file scan with
// no tree, one zero-length milestone and one milestone with no end.
func sampleLog(t *testing.T) *timeline.Log {
	t.Helper()
	events := []timeline.Event{
		{ID: "e0", Kind: timeline.FileScan, Timestamp: 0, FileScan: &timeline.FileScanPayload{Tree: sampleTree()}},
		{ID: "e1", Kind: timeline.Milestone, Timestamp: 10, Milestone: &timeline.MilestonePayload{
			Title: "kickoff", Category: timeline.Meeting, StartTime: lo.ToPtr(int64(10)), EndTime: lo.ToPtr(int64(10)),
		}},
		{ID: "e2", Kind: timeline.FileScan, Timestamp: 20, FileScan: &timeline.FileScanPayload{}},
		{ID: "e3", Kind: timeline.Milestone, Timestamp: 30, Milestone: &timeline.MilestonePayload{
			Title: "open", Category: timeline.Issue, StartTime: lo.ToPtr(int64(30)),
		}},
		{ID: "e4", Kind: timeline.FileScan, Timestamp: 40, FileScan: &timeline.FileScanPayload{Tree: sampleTree()}},
	}
	corrs := []timeline.Correlation{
		{FileEventID: "e0", MilestoneEventID: "e1", Strength: 1},
		{FileEventID: "e4", MilestoneEventID: "e1", Strength: 0.5},
	}
	log, err := timeline.NewLog(events, corrs)
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func newTestCompositor(t *testing.T, incremental bool) (*Compositor, *MemoryDevice, *timeline.Log, layout.Params) {
	t.Helper()
	cfg := config.Default()
	cfg.Playback.Incremental = incremental
	dev := NewMemoryDevice()
	c := New(dev, OptionsFromConfig(cfg))
	log := sampleLog(t)
	c.SetLog(log)
	return c, dev, log, LayoutParams(cfg)
}

func rebuild(t *testing.T, c *Compositor, log *timeline.Log, index int, p layout.Params) {
	t.Helper()
	if err := c.Rebuild(context.Background(), log.View(index), p); err != nil {
		t.Fatalf("rebuild %d: %v", index, err)
	}
}

func totalRenderables(c *Compositor) int {
	return c.Count(GroupSunburst) + c.Count(GroupMilestones) + c.Count(GroupCorrelations)
}

func TestRebuildIsCumulative(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)

	tests := []struct {
		index                  int
		sunburst, bars, curves int
	}{
		{0, 7, 0, 0},
		{1, 7, 1, 1},
		{2, 7, 1, 1},
		{3, 7, 1, 1},
		{4, 14, 1, 2},
		{1, 7, 1, 1},
	}
	for _, tt := range tests {
		rebuild(t, c, log, tt.index, p)
		if got := c.Count(GroupSunburst); got != tt.sunburst {
			t.Errorf("index %d: expected %d sunburst renderables, got %d", tt.index, tt.sunburst, got)
		}
		if got := c.Count(GroupMilestones); got != tt.bars {
			t.Errorf("index %d: expected %d bars, got %d", tt.index, tt.bars, got)
		}
		if got := c.Count(GroupCorrelations); got != tt.curves {
			t.Errorf("index %d: expected %d curves, got %d", tt.index, tt.curves, got)
		}
		for _, g := range Groups {
			for _, r := range c.Renderables(g) {
				if r.EventIndex > tt.index {
					t.Errorf("index %d: renderable %s from event %d outside prefix", tt.index, r.Key, r.EventIndex)
				}
			}
		}
	}
}

func TestRebuildReleasesResources(t *testing.T) {
	for _, incremental := range []bool{false, true} {
		c, dev, log, p := newTestCompositor(t, incremental)
		for _, i := range []int{4, 0, 3, 4, 2, 4} {
			rebuild(t, c, log, i, p)
			if want := 2 * totalRenderables(c); dev.Live() != want {
				t.Errorf("incremental=%v index %d: expected %d live resources, got %d", incremental, i, want, dev.Live())
			}
		}
		c.Close()
		if dev.Live() != 0 {
			t.Errorf("incremental=%v: expected no live resources after Close, got %d", incremental, dev.Live())
		}
	}
}

func TestSetLogReleasesPrevious(t *testing.T) {
	c, dev, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 4, p)
	c.SetLog(sampleLog(t))
	if dev.Live() != 0 {
		t.Errorf("expected no live resources after SetLog, got %d", dev.Live())
	}
	if c.Index() != -1 {
		t.Errorf("expected index -1, got %d", c.Index())
	}
}

func TestIncrementalKeepsExistingRenderables(t *testing.T) {
	c, dev, log, p := newTestCompositor(t, true)
	rebuild(t, c, log, 0, p)
	before, ok := c.Segment("e0#/root")
	if !ok {
		t.Fatal("expected root segment of e0")
	}
	allocBefore, _ := dev.Stats()

	rebuild(t, c, log, 4, p)
	after, _ := c.Segment("e0#/root")
	if after.geometry != before.geometry {
		t.Error("expected e0 root segment to survive an incremental rebuild")
	}
	allocAfter, _ := dev.Stats()
	// e1 bar, e4 tree, two curves.
	if want := 2 * (1 + 7 + 2); allocAfter-allocBefore != want {
		t.Errorf("expected %d new resources, got %d", want, allocAfter-allocBefore)
	}

	p.RingThickness++
	rebuild(t, c, log, 4, p)
	moved, _ := c.Segment("e0#/root")
	if moved.geometry == before.geometry {
		t.Error("expected a full rebuild after layout params changed")
	}
	if moved.OuterRadius != before.OuterRadius+1 {
		t.Errorf("expected outer radius %v, got %v", before.OuterRadius+1, moved.OuterRadius)
	}
}

func TestIncrementalSeekBackwards(t *testing.T) {
	c, _, log, p := newTestCompositor(t, true)
	rebuild(t, c, log, 4, p)
	rebuild(t, c, log, 1, p)
	if _, ok := c.Snapshot("e4"); ok {
		t.Error("expected e4 snapshot to be released")
	}
	if _, ok := c.Snapshot("e2"); ok {
		t.Error("expected e2 snapshot to be released")
	}
	if _, ok := c.Segment("e4#/root"); ok {
		t.Error("expected e4 segments to be released")
	}
	if c.Count(GroupSunburst) != 7 {
		t.Errorf("expected 7 sunburst renderables, got %d", c.Count(GroupSunburst))
	}
}

func TestZeroLengthMilestoneGetsMinimumHeight(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 4, p)
	bar, ok := c.Bar("e1")
	if !ok {
		t.Fatal("expected bar for e1")
	}
	if bar.Height() != config.Default().Timeline.MinBarHeight {
		t.Errorf("expected height %v, got %v", config.Default().Timeline.MinBarHeight, bar.Height())
	}
	if _, ok := c.Bar("e3"); ok {
		t.Error("expected milestone without end time to be skipped")
	}
}

func TestBarPlacement(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 1, p)
	cfg := config.Default()
	bar, _ := c.Bar("e1")
	if bar.Center.X != cfg.Timeline.GanttOffsetX {
		t.Errorf("expected X %v, got %v", cfg.Timeline.GanttOffsetX, bar.Center.X)
	}
	wantY := float64(timeline.Meeting.Lane()) * cfg.Timeline.LaneSpacing
	if bar.Center.Y != wantY {
		t.Errorf("expected Y %v, got %v", wantY, bar.Center.Y)
	}
	if bar.Color != cfg.Theme.Categories["meeting"] {
		t.Errorf("expected category colour, got %s", bar.Color)
	}
}

func TestBarUsesActualColor(t *testing.T) {
	log, err := timeline.NewLog([]timeline.Event{{
		ID: "m", Kind: timeline.Milestone, Timestamp: 1,
		Milestone: &timeline.MilestonePayload{Category: timeline.Deadline, StartTime: lo.ToPtr(int64(1)),
			Duration: lo.ToPtr(int64(5)), ActualColor: "#abcdef"},
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := New(NewMemoryDevice(), OptionsFromConfig(config.Default()))
	c.SetLog(log)
	rebuild(t, c, log, 0, LayoutParams(config.Default()))
	bar, ok := c.Bar("m")
	if !ok {
		t.Fatal("expected bar")
	}
	if bar.Color != "#abcdef" {
		t.Errorf("expected actual colour, got %s", bar.Color)
	}
}

func TestSegmentKeysDoNotCollide(t *testing.T) {
	scan := func(id string, root *tree.Node) timeline.Event {
		return timeline.Event{ID: id, Kind: timeline.FileScan, FileScan: &timeline.FileScanPayload{Tree: root}}
	}
	log, err := timeline.NewLog([]timeline.Event{
		scan("a", &tree.Node{Name: "b", Kind: tree.Folder, Size: 1, Children: []*tree.Node{
			{Name: "c", Kind: tree.File, Size: 1},
		}}),
		scan("a/b", &tree.Node{Name: "c", Kind: tree.Folder, Size: 1, Children: []*tree.Node{
			{Name: "x", Kind: tree.File, Size: 1},
		}}),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := New(NewMemoryDevice(), OptionsFromConfig(config.Default()))
	c.SetLog(log)
	rebuild(t, c, log, 1, LayoutParams(config.Default()))

	first, ok := c.Segment(SegmentKey("a", "/b/c"))
	if !ok || first.EventID != "a" {
		t.Errorf("expected segment of a, got %+v %v", first, ok)
	}
	second, ok := c.Segment(SegmentKey("a/b", "/c"))
	if !ok || second.EventID != "a/b" {
		t.Errorf("expected segment of a/b, got %+v %v", second, ok)
	}
	if got := c.Count(GroupSunburst); got != 6 {
		t.Errorf("expected 6 sunburst renderables, got %d", got)
	}
	if SegmentKey("a#", "/b") == SegmentKey("a", "#/b") {
		t.Error("expected escaped separator in event ID")
	}
}

func TestSnapshotStacking(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 4, p)
	first, _ := c.Snapshot("e0")
	last, _ := c.Snapshot("e4")
	mid, _ := c.Snapshot("e2")
	span := config.Default().Timeline.SnapshotSpan
	if first.Origin.Z != 0 || last.Origin.Z != span {
		t.Errorf("expected stack from 0 to %v, got %v..%v", span, first.Origin.Z, last.Origin.Z)
	}
	if mid.Origin.Z != span/2 {
		t.Errorf("expected e2 at %v, got %v", span/2, mid.Origin.Z)
	}

	// Positions do not depend on the prefix.
	rebuild(t, c, log, 0, p)
	again, _ := c.Snapshot("e0")
	if again.Origin != first.Origin {
		t.Errorf("expected stable origin, got %v vs %v", again.Origin, first.Origin)
	}
}

func TestMissingTreeContributesNoSegments(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 2, p)
	snap, ok := c.Snapshot("e2")
	if !ok {
		t.Fatal("expected snapshot for e2")
	}
	if len(snap.Arena.Segments) != 0 {
		t.Errorf("expected no segments, got %d", len(snap.Arena.Segments))
	}
	for _, r := range c.Renderables(GroupSunburst) {
		if r.EventID == "e2" {
			t.Errorf("unexpected renderable %s", r.Key)
		}
	}
}

func TestLookups(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 0, p)

	seg, ok := c.Segment("e0#/root/src/b.go")
	if !ok {
		t.Fatal("expected segment lookup")
	}
	if seg.Depth != 2 || seg.Label != "b.go" {
		t.Errorf("unexpected segment %+v", seg)
	}
	conn, ok := c.Connector("e0#/root/src/b.go")
	if !ok {
		t.Fatal("expected connector lookup")
	}
	parent, _ := c.Segment("e0#/root/src")
	if conn.Points[0] != parent.Center || conn.Points[1] != seg.Center {
		t.Errorf("expected connector from parent to child, got %v", conn.Points)
	}
	if _, ok := c.Connector("e0#/root"); ok {
		t.Error("root segment has no parent connector")
	}
}

func TestVisibilityDoesNotRelayout(t *testing.T) {
	c, dev, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 4, p)
	alloc, _ := dev.Stats()

	c.SetVisible(GroupCorrelations, false)
	f := c.Frame()
	for _, it := range f.Items {
		if it.Group == GroupCorrelations {
			t.Fatalf("hidden group in frame: %s", it.Key)
		}
	}
	if f.Visible[GroupCorrelations] {
		t.Error("expected correlations marked hidden")
	}
	if c.Count(GroupCorrelations) != 2 {
		t.Errorf("expected curves kept while hidden, got %d", c.Count(GroupCorrelations))
	}
	if now, _ := dev.Stats(); now != alloc {
		t.Errorf("expected no allocations from a visibility change, got %d new", now-alloc)
	}

	c.SetVisible(GroupCorrelations, true)
	if len(c.Frame().Items) != len(f.Items)+2 {
		t.Error("expected curves back in frame")
	}
}

func TestCurveAnchors(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 1, p)
	curves := c.Renderables(GroupCorrelations)
	if len(curves) != 1 {
		t.Fatalf("expected 1 curve, got %d", len(curves))
	}
	root, _ := c.Segment("e0#/root")
	bar, _ := c.Bar("e1")
	pts := curves[0].Points
	if pts[0] != root.Center {
		t.Errorf("expected curve to start at root center %v, got %v", root.Center, pts[0])
	}
	if pts[len(pts)-1] != bar.Top() {
		t.Errorf("expected curve to end at bar top %v, got %v", bar.Top(), pts[len(pts)-1])
	}
}

func TestHighlight(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 0, p)
	n := c.Highlight([]string{"e0#/root/src/b.go", "e0#/root/src", "e0#/root"})
	if n != 3 {
		t.Errorf("expected 3 highlighted, got %d", n)
	}
	if conn, _ := c.Connector("e0#/root/src"); !conn.Highlighted {
		t.Error("expected connector highlighted")
	}
	c.Highlight([]string{"e0#/root/a.py"})
	if got := c.Highlighted(); len(got) != 1 || got[0] != "e0#/root/a.py" {
		t.Errorf("expected previous highlight cleared, got %v", got)
	}
	c.ClearHighlight()
	if got := c.Highlighted(); len(got) != 0 {
		t.Errorf("expected nothing highlighted, got %v", got)
	}
}

func TestRebuildEmptyView(t *testing.T) {
	c, dev, log, p := newTestCompositor(t, false)
	rebuild(t, c, log, 4, p)
	if err := c.Rebuild(context.Background(), timeline.View{Index: -1}, p); err != nil {
		t.Fatal(err)
	}
	if dev.Live() != 0 {
		t.Errorf("expected empty scene, got %d live resources", dev.Live())
	}
}

func TestRebuildCanceled(t *testing.T) {
	c, _, log, p := newTestCompositor(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Rebuild(ctx, log.View(4), p)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if c.Index() != -1 {
		t.Errorf("expected scene untouched, got index %d", c.Index())
	}
}

func TestParseGroup(t *testing.T) {
	if g, err := ParseGroup("milestones"); err != nil || g != GroupMilestones {
		t.Errorf("expected milestones, got %v %v", g, err)
	}
	if _, err := ParseGroup("bogus"); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestMemoryDeviceDoubleRelease(t *testing.T) {
	d := NewMemoryDevice()
	h := d.Allocate(Geometry, "x")
	d.Release(h)
	d.Release(h)
	alloc, rel := d.Stats()
	if alloc != 1 || rel != 1 || d.Live() != 0 {
		t.Errorf("expected 1/1/0, got %d/%d/%d", alloc, rel, d.Live())
	}
}
