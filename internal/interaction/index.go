package interaction

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/scene"
)

type Options struct {
	HoverDelay    time.Duration
	PickTolerance float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HoverDelay:    time.Duration(cfg.Interaction.HoverDelayMs) * time.Millisecond,
		PickTolerance: cfg.Interaction.PickTolerance,
	}
}

// Index answers picking queries against a compositor and owns the hover
// state: the pending debounce timer, the highlighted path and the detail of
// the hovered object.
type Index struct {
	comp  *scene.Compositor
	clock clock.Clock
	opts  Options

	mu      sync.Mutex
	gen     uint64
	pending clock.Timer
	detail  *Hit
	onHover func(Hit)
}

func New(comp *scene.Compositor, clk clock.Clock, opts Options) *Index {
	return &Index{comp: comp, clock: clk, opts: opts}
}

// OnHover registers a callback invoked after a debounced hover resolves.
func (x *Index) OnHover(fn func(Hit)) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.onHover = fn
}

// HitTest returns the nearest visible object along r.
func (x *Index) HitTest(r Ray) Hit {
	return HitTestFrame(x.comp.Frame(), r, x.opts.PickTolerance)
}

// HighlightPath highlights the segment with the given key and every
// ancestor up to the snapshot root, clearing any previous highlight first.
// It returns the number of segments highlighted, which is depth+1.
func (x *Index) HighlightPath(key string) (int, error) {
	seg, ok := x.comp.Segment(key)
	if !ok {
		return 0, fmt.Errorf("unknown segment: %s", key)
	}
	snap, ok := x.comp.Snapshot(seg.EventID)
	if !ok {
		return 0, fmt.Errorf("no snapshot for event %s", seg.EventID)
	}
	i, ok := snap.Arena.Lookup(seg.Path)
	if !ok {
		return 0, fmt.Errorf("segment %s not in layout", key)
	}
	chain := snap.Arena.Ancestry(i)
	keys := make([]string, len(chain))
	for j, idx := range chain {
		keys[j] = scene.SegmentKey(seg.EventID, snap.Arena.Segments[idx].Key)
	}
	return x.comp.Highlight(keys), nil
}

// Hover schedules a hit test for r after the hover delay. A newer Hover or a
// Leave cancels the pending one.
func (x *Index) Hover(r Ray) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.gen++
	gen := x.gen
	if x.pending != nil {
		x.pending.Stop()
	}
	x.pending = x.clock.AfterFunc(x.opts.HoverDelay, func() { x.resolve(gen, r) })
}

func (x *Index) resolve(gen uint64, r Ray) {
	if !x.current(gen) {
		return
	}
	hit := x.HitTest(r)
	if hit.Kind == HitSegment {
		if _, err := x.HighlightPath(hit.Item.Key); err != nil {
			slog.Debug("highlight failed", "key", hit.Item.Key, "error", err)
		}
	} else {
		x.comp.ClearHighlight()
	}

	x.mu.Lock()
	if gen != x.gen {
		x.mu.Unlock()
		return
	}
	x.pending = nil
	if hit.Kind == HitNone {
		x.detail = nil
	} else {
		x.detail = &hit
	}
	fn := x.onHover
	x.mu.Unlock()

	if fn != nil {
		fn(hit)
	}
}

func (x *Index) current(gen uint64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return gen == x.gen
}

// Leave cancels a pending hover and clears the highlight and detail.
func (x *Index) Leave() {
	x.mu.Lock()
	x.gen++
	if x.pending != nil {
		x.pending.Stop()
		x.pending = nil
	}
	x.detail = nil
	x.mu.Unlock()
	x.comp.ClearHighlight()
}

// Detail returns the object under the last resolved hover.
func (x *Index) Detail() (Hit, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.detail == nil {
		return Hit{}, false
	}
	return *x.detail, true
}
