// Package scene materializes the renderables of an event prefix and keeps
// their device resources balanced across rebuilds.
package scene

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/overlay"
	"github.com/user/strata/internal/timeline"
	"github.com/user/strata/internal/tree"
)

var tracer = otel.Tracer("github.com/user/strata/internal/scene")

// Options are the fixed placement and styling inputs of a compositor.
type Options struct {
	SnapshotSpan float64
	GanttSpan    float64
	GanttOffsetX float64
	LaneSpacing  float64
	BarWidth     float64
	MinBarHeight float64
	Overlay      overlay.Params
	Incremental  bool
	Theme        config.Theme
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SnapshotSpan: cfg.Timeline.SnapshotSpan,
		GanttSpan:    cfg.Timeline.GanttSpan,
		GanttOffsetX: cfg.Timeline.GanttOffsetX,
		LaneSpacing:  cfg.Timeline.LaneSpacing,
		BarWidth:     cfg.Timeline.BarWidth,
		MinBarHeight: cfg.Timeline.MinBarHeight,
		Overlay: overlay.Params{
			Lift:    cfg.Overlay.CurveLift,
			Samples: cfg.Overlay.CurveSamples,
		},
		Incremental: cfg.Playback.Incremental,
		Theme:       cfg.Theme,
	}
}

// LayoutParams converts the layout section of cfg into sunburst parameters.
func LayoutParams(cfg *config.Config) layout.Params {
	return layout.Params{
		MinAngle:      layout.Degrees(cfg.Layout.MinAngleDeg),
		RingThickness: cfg.Layout.RingThickness,
		RingGap:       cfg.Layout.RingGap,
		InitialRadius: cfg.Layout.InitialRadius,
	}
}

// Compositor owns every renderable in the scene. Renderables are created
// from a prefix of the active log and released back to the Device before
// the prefix changes.
type Compositor struct {
	mu   sync.RWMutex
	dev  Device
	opts Options

	log       *timeline.Log
	stackAxis layout.Axis
	ganttAxis layout.Axis

	index   int
	params  layout.Params
	built   bool
	visible map[Group]bool

	byEvent    map[int][]*Renderable
	curves     []*Renderable
	snapshots  map[string]*Snapshot
	segments   map[string]*Renderable
	connectors map[string]*Renderable
	bars       map[string]*Renderable
}

func New(dev Device, opts Options) *Compositor {
	if opts.MinBarHeight <= 0 {
		opts.MinBarHeight = config.Default().Timeline.MinBarHeight
	}
	c := &Compositor{
		dev:     dev,
		opts:    opts,
		index:   -1,
		visible: make(map[Group]bool),
	}
	for _, g := range Groups {
		c.visible[g] = true
	}
	c.reset()
	return c
}

func (c *Compositor) reset() {
	c.byEvent = make(map[int][]*Renderable)
	c.curves = nil
	c.snapshots = make(map[string]*Snapshot)
	c.segments = make(map[string]*Renderable)
	c.connectors = make(map[string]*Renderable)
	c.bars = make(map[string]*Renderable)
	c.index = -1
	c.built = false
}

// SetLog replaces the active log, releasing everything built from the
// previous one. Axes are computed over the whole log so an event's position
// never depends on the playback prefix.
func (c *Compositor) SetLog(log *timeline.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAll()
	c.log = log
	c.stackAxis = layout.Axis{MaxSpace: c.opts.SnapshotSpan}
	c.ganttAxis = layout.Axis{MaxSpace: c.opts.GanttSpan}
	if log == nil {
		return
	}
	if r := log.FileScanRange(); r.Valid {
		c.stackAxis.MinTime, c.stackAxis.MaxTime = r.Min, r.Max
	}
	if r := log.GanttRange(); r.Valid {
		c.ganttAxis.MinTime, c.ganttAxis.MaxTime = r.Min, r.Max
	}
}

// Rebuild materializes the renderables of v using layout parameters p. The
// previous renderables are released first; in incremental mode with
// unchanged parameters only the events entering or leaving the prefix are
// touched. The correlation group is always rebuilt.
func (c *Compositor) Rebuild(ctx context.Context, v timeline.View, p layout.Params) error {
	_, span := tracer.Start(ctx, "scene.Rebuild", trace.WithAttributes(
		attribute.Int("index", v.Index),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context done")
		return err
	}

	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := "full"
	if c.opts.Incremental && c.built && c.params == p {
		mode = "incremental"
		for _, i := range lo.Keys(c.byEvent) {
			if !v.Contains(i) {
				c.disposeEvent(i)
			}
		}
		for id, s := range c.snapshots {
			if !v.Contains(s.EventIndex) {
				delete(c.snapshots, id)
			}
		}
		for i := c.index + 1; i <= v.Index; i++ {
			c.addEvent(i, &v.Events[i], p)
		}
	} else {
		c.releaseAll()
		for i := 0; i <= v.Index; i++ {
			c.addEvent(i, &v.Events[i], p)
		}
	}

	c.disposeCurves()
	if c.log != nil {
		for _, cv := range overlay.Build(c.log.Correlations, v, anchors{c}, c.opts.Overlay) {
			c.curves = append(c.curves, c.materialize(&Renderable{
				Key:      cv.FileEventID + "->" + cv.MilestoneEventID,
				Kind:     KindCurve,
				Group:    GroupCorrelations,
				EventID:  cv.MilestoneEventID,
				Label:    cv.Kind,
				Color:    c.opts.Theme.Correlation,
				Opacity:  cv.Opacity,
				Points:   cv.Points,
				Strength: cv.Strength,
			}))
		}
	}

	c.index = v.Index
	c.params = p
	c.built = true

	for _, g := range Groups {
		renderablesLive.WithLabelValues(string(g)).Set(float64(c.countLocked(g)))
	}
	rebuildTotal.WithLabelValues(mode).Inc()
	rebuildDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("mode", mode), attribute.Int("segments", len(c.segments)))
	return nil
}

func (c *Compositor) addEvent(i int, e *timeline.Event, p layout.Params) {
	switch e.Kind {
	case timeline.FileScan:
		c.addSnapshot(i, e, p)
	case timeline.Milestone:
		c.addBar(i, e)
	}
}

func (c *Compositor) addSnapshot(i int, e *timeline.Event, p layout.Params) {
	var root *tree.Node
	if e.FileScan != nil {
		root = e.FileScan.Tree
	}
	snap := &Snapshot{
		EventID:    e.ID,
		EventIndex: i,
		Origin:     layout.Vec3{Z: c.stackAxis.Map(e.Timestamp)},
		Arena:      layout.Sunburst(root, p, i),
	}
	c.snapshots[e.ID] = snap
	if root == nil {
		slog.Debug("file scan has no tree", "event_id", e.ID)
		return
	}

	for si := range snap.Arena.Segments {
		seg := &snap.Arena.Segments[si]
		key := SegmentKey(e.ID, seg.Key)
		color := c.opts.Theme.Folder
		if seg.Node.Kind == tree.File {
			color = c.opts.Theme.FileColor(seg.Node.MimeType)
		}
		r := c.materialize(&Renderable{
			Key:         key,
			Kind:        KindSegment,
			Group:       GroupSunburst,
			EventID:     e.ID,
			EventIndex:  i,
			Label:       seg.Node.Name,
			Color:       color,
			Opacity:     1,
			Path:        seg.Key,
			Depth:       seg.Depth,
			InnerRadius: seg.InnerRadius,
			OuterRadius: seg.OuterRadius,
			StartAngle:  seg.StartAngle,
			EndAngle:    seg.EndAngle,
			Origin:      snap.Origin,
			Center:      snap.WorldCenter(si),
		})
		c.segments[key] = r
		c.byEvent[i] = append(c.byEvent[i], r)

		if seg.Parent < 0 {
			continue
		}
		conn := c.materialize(&Renderable{
			Key:        key,
			Kind:       KindConnector,
			Group:      GroupSunburst,
			EventID:    e.ID,
			EventIndex: i,
			Color:      c.opts.Theme.Connector,
			Opacity:    0.6,
			Path:       seg.Key,
			Depth:      seg.Depth,
			Origin:     snap.Origin,
			Points:     []layout.Vec3{snap.WorldCenter(seg.Parent), r.Center},
		})
		c.connectors[key] = conn
		c.byEvent[i] = append(c.byEvent[i], conn)
	}
}

func (c *Compositor) addBar(i int, e *timeline.Event) {
	start, end, ok := e.Span()
	if !ok {
		slog.Debug("milestone has no end time or duration, skipping bar", "event_id", e.ID)
		barsSkipped.Inc()
		return
	}
	m := e.Milestone
	z0 := c.ganttAxis.Map(start)
	z1 := c.ganttAxis.Map(end)
	if z1-z0 < c.opts.MinBarHeight {
		z1 = z0 + c.opts.MinBarHeight
	}
	x := c.opts.GanttOffsetX
	y := float64(m.Category.Lane()) * c.opts.LaneSpacing
	half := c.opts.BarWidth / 2

	color := m.ActualColor
	if color == "" {
		color = c.opts.Theme.CategoryColor(string(m.Category))
	}
	r := c.materialize(&Renderable{
		Key:        e.ID,
		Kind:       KindBar,
		Group:      GroupMilestones,
		EventID:    e.ID,
		EventIndex: i,
		Label:      m.Title,
		Color:      color,
		Opacity:    1,
		Center:     layout.Vec3{X: x, Y: y, Z: (z0 + z1) / 2},
		Min:        layout.Vec3{X: x - half, Y: y - half, Z: z0},
		Max:        layout.Vec3{X: x + half, Y: y + half, Z: z1},
	})
	c.bars[e.ID] = r
	c.byEvent[i] = append(c.byEvent[i], r)
}

func (c *Compositor) materialize(r *Renderable) *Renderable {
	label := string(r.Kind) + ":" + r.Key
	r.geometry = c.dev.Allocate(Geometry, label)
	r.material = c.dev.Allocate(Material, label)
	return r
}

func (c *Compositor) release(r *Renderable) {
	c.dev.Release(r.geometry)
	c.dev.Release(r.material)
}

func (c *Compositor) disposeEvent(i int) {
	for _, r := range c.byEvent[i] {
		c.release(r)
		switch r.Kind {
		case KindSegment:
			delete(c.segments, r.Key)
		case KindConnector:
			delete(c.connectors, r.Key)
		case KindBar:
			delete(c.bars, r.Key)
		}
	}
	delete(c.byEvent, i)
}

func (c *Compositor) disposeCurves() {
	for _, r := range c.curves {
		c.release(r)
	}
	c.curves = nil
}

func (c *Compositor) releaseAll() {
	for _, rs := range c.byEvent {
		for _, r := range rs {
			c.release(r)
		}
	}
	c.disposeCurves()
	c.reset()
}

// Close releases every renderable.
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAll()
}

// SetVisible shows or hides a group without re-running layout.
func (c *Compositor) SetVisible(g Group, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible[g] = visible
}

func (c *Compositor) Visible(g Group) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible[g]
}

// Index returns the prefix index of the last rebuild, or -1.
func (c *Compositor) Index() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// Count returns the number of renderables materialized in g, visible or not.
func (c *Compositor) Count(g Group) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countLocked(g)
}

func (c *Compositor) countLocked(g Group) int {
	if g == GroupCorrelations {
		return len(c.curves)
	}
	n := 0
	for _, rs := range c.byEvent {
		for _, r := range rs {
			if r.Group == g {
				n++
			}
		}
	}
	return n
}

// Renderables returns copies of the renderables in g ordered by event index.
func (c *Compositor) Renderables(g Group) []Renderable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collect(g)
}

func (c *Compositor) collect(g Group) []Renderable {
	var out []Renderable
	if g == GroupCorrelations {
		for _, r := range c.curves {
			out = append(out, *r)
		}
		return out
	}
	keys := lo.Keys(c.byEvent)
	slices.Sort(keys)
	for _, i := range keys {
		for _, r := range c.byEvent[i] {
			if r.Group == g {
				out = append(out, *r)
			}
		}
	}
	return out
}

// Frame returns the renderables of every visible group.
func (c *Compositor) Frame() Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := Frame{Index: c.index, Visible: make(map[Group]bool, len(c.visible))}
	for _, g := range Groups {
		f.Visible[g] = c.visible[g]
		if c.visible[g] {
			f.Items = append(f.Items, c.collect(g)...)
		}
	}
	return f
}

// Segment looks up a segment renderable by SegmentKey.
func (c *Compositor) Segment(key string) (Renderable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.segments[key]
	if !ok {
		return Renderable{}, false
	}
	return *r, true
}

// Connector looks up the parent connector of the segment with the given key.
func (c *Compositor) Connector(key string) (Renderable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.connectors[key]
	if !ok {
		return Renderable{}, false
	}
	return *r, true
}

// Bar looks up a milestone bar by event ID.
func (c *Compositor) Bar(eventID string) (Renderable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.bars[eventID]
	if !ok {
		return Renderable{}, false
	}
	return *r, true
}

// Snapshot returns the laid-out snapshot of a file-scan event in the prefix.
func (c *Compositor) Snapshot(eventID string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[eventID]
	return s, ok
}

// Highlight clears every highlight, then highlights the segments with the
// given keys and their parent connectors. It returns the number of segments
// highlighted.
func (c *Compositor) Highlight(keys []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearHighlightLocked()
	n := 0
	for _, k := range keys {
		if r, ok := c.segments[k]; ok {
			r.Highlighted = true
			n++
		}
		if r, ok := c.connectors[k]; ok {
			r.Highlighted = true
		}
	}
	return n
}

func (c *Compositor) ClearHighlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearHighlightLocked()
}

func (c *Compositor) clearHighlightLocked() {
	for _, rs := range c.byEvent {
		for _, r := range rs {
			r.Highlighted = false
		}
	}
}

// Highlighted returns the keys of highlighted segments.
func (c *Compositor) Highlighted() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k, r := range c.segments {
		if r.Highlighted {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// anchors resolves overlay endpoints while the compositor lock is held.
type anchors struct{ c *Compositor }

func (a anchors) FileAnchor(eventID string) (layout.Vec3, bool) {
	s, ok := a.c.snapshots[eventID]
	if !ok {
		return layout.Vec3{}, false
	}
	if len(s.Arena.Segments) == 0 {
		return s.Origin, true
	}
	return s.WorldCenter(0), true
}

func (a anchors) MilestoneAnchor(eventID string) (layout.Vec3, bool) {
	r, ok := a.c.bars[eventID]
	if !ok {
		return layout.Vec3{}, false
	}
	return r.Top(), true
}
