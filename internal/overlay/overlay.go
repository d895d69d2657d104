// Package overlay draws correlation curves between file-scan snapshots and
// milestone bars.
package overlay

import (
	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/timeline"
)

// Curve is one sampled quadratic Bézier between a snapshot and a bar.
type Curve struct {
	FileEventID      string        `json:"file_event_id"`
	MilestoneEventID string        `json:"milestone_event_id"`
	Kind             string        `json:"kind"`
	Strength         float64       `json:"strength"`
	Opacity          float64       `json:"opacity"`
	Points           []layout.Vec3 `json:"points"`
}

// Anchors resolves curve endpoints in scene space.
type Anchors interface {
	// FileAnchor returns the root-segment center of the snapshot for eventID.
	FileAnchor(eventID string) (layout.Vec3, bool)
	// MilestoneAnchor returns the top of the bar for eventID.
	MilestoneAnchor(eventID string) (layout.Vec3, bool)
}

type Params struct {
	Lift    float64
	Samples int
}

// Build returns a curve for every correlation whose two events lie inside
// the view. Correlations with an endpoint outside the prefix, or with no
// resolvable anchor, produce nothing.
func Build(correlations []timeline.Correlation, v timeline.View, anchors Anchors, p Params) []Curve {
	if v.Empty() || len(correlations) == 0 {
		return nil
	}
	inPrefix := make(map[string]timeline.Kind, len(v.Events))
	for i := range v.Events {
		inPrefix[v.Events[i].ID] = v.Events[i].Kind
	}

	var curves []Curve
	for _, c := range correlations {
		if k, ok := inPrefix[c.FileEventID]; !ok || k != timeline.FileScan {
			continue
		}
		if k, ok := inPrefix[c.MilestoneEventID]; !ok || k != timeline.Milestone {
			continue
		}
		from, ok := anchors.FileAnchor(c.FileEventID)
		if !ok {
			continue
		}
		to, ok := anchors.MilestoneAnchor(c.MilestoneEventID)
		if !ok {
			continue
		}
		curves = append(curves, Curve{
			FileEventID:      c.FileEventID,
			MilestoneEventID: c.MilestoneEventID,
			Kind:             c.Kind,
			Strength:         c.Strength,
			Opacity:          Opacity(c.Strength),
			Points:           Arc(from, to, p.Lift, p.Samples),
		})
	}
	return curves
}

// Opacity maps a strength in [0,1] to a curve opacity in [0.2,1].
func Opacity(strength float64) float64 {
	return 0.2 + 0.8*max(0, min(1, strength))
}

// Arc samples the quadratic Bézier from a to b whose apex sits lift above
// the midpoint of the chord.
func Arc(a, b layout.Vec3, lift float64, samples int) []layout.Vec3 {
	mid := a.Add(b).Scale(0.5)
	// B(0.5) = (a + 2c + b)/4, so the control point sits at twice the lift.
	ctrl := mid.Add(layout.Vec3{Z: 2 * lift})
	return Bezier(a, ctrl, b, samples)
}

// Bezier samples a quadratic Bézier curve at samples evenly spaced
// parameter values, endpoints included.
func Bezier(p0, p1, p2 layout.Vec3, samples int) []layout.Vec3 {
	samples = max(samples, 2)
	pts := make([]layout.Vec3, samples)
	for i := range samples {
		t := float64(i) / float64(samples-1)
		u := 1 - t
		pts[i] = p0.Scale(u * u).Add(p1.Scale(2 * u * t)).Add(p2.Scale(t * t))
	}
	return pts
}
