// Package interaction resolves picking rays against the scene and drives
// hover highlighting.
package interaction

import (
	"math"

	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/scene"
)

const eps = 1e-9

type Ray struct {
	Origin layout.Vec3 `json:"origin"`
	Dir    layout.Vec3 `json:"dir"`
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) layout.Vec3 { return r.Origin.Add(r.Dir.Scale(t)) }

type HitKind string

const (
	HitNone        HitKind = "none"
	HitSegment     HitKind = "segment"
	HitMilestone   HitKind = "milestone"
	HitCorrelation HitKind = "correlation"
)

// Hit is the nearest pickable object along a ray.
type Hit struct {
	Kind     HitKind           `json:"kind"`
	Distance float64           `json:"distance"`
	Point    layout.Vec3       `json:"point"`
	Item     *scene.Renderable `json:"item,omitempty"`
}

// HitTestFrame finds the nearest segment, bar or curve in f hit by r.
// Curves count as hit when the ray passes within tolerance of their
// sampled polyline. Connectors are not pickable.
func HitTestFrame(f scene.Frame, r Ray, tolerance float64) Hit {
	r.Dir = r.Dir.Norm()
	best := Hit{Kind: HitNone, Distance: math.Inf(1)}
	if r.Dir == (layout.Vec3{}) {
		return best
	}
	for i := range f.Items {
		it := &f.Items[i]
		var (
			t    float64
			ok   bool
			kind HitKind
		)
		switch it.Kind {
		case scene.KindSegment:
			t, ok = hitSegment(r, it)
			kind = HitSegment
		case scene.KindBar:
			t, ok = hitBox(r, it.Min, it.Max)
			kind = HitMilestone
		case scene.KindCurve:
			t, ok = hitPolyline(r, it.Points, tolerance)
			kind = HitCorrelation
		}
		if ok && t < best.Distance {
			item := *it
			best = Hit{Kind: kind, Distance: t, Point: r.At(t), Item: &item}
		}
	}
	if best.Kind == HitNone {
		best.Distance = 0
	}
	return best
}

// hitSegment intersects the ray with the segment's ring plane and tests
// polar containment around the snapshot origin.
func hitSegment(r Ray, s *scene.Renderable) (float64, bool) {
	if math.Abs(r.Dir.Z) < eps {
		return 0, false
	}
	t := (s.Center.Z - r.Origin.Z) / r.Dir.Z
	if t < 0 {
		return 0, false
	}
	p := r.At(t).Sub(s.Origin)
	rad := math.Hypot(p.X, p.Y)
	if rad < s.InnerRadius || rad > s.OuterRadius {
		return 0, false
	}
	return t, AngleWithin(math.Atan2(p.Y, p.X), s.StartAngle, s.EndAngle)
}

// AngleWithin reports whether theta falls in [start, end), accounting for
// spans that run past a full turn.
func AngleWithin(theta, start, end float64) bool {
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	for theta < end {
		if theta >= start {
			return true
		}
		theta += 2 * math.Pi
	}
	return false
}

// hitBox is the slab test against an axis-aligned box.
func hitBox(r Ray, lo, hi layout.Vec3) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	origin := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float64{r.Dir.X, r.Dir.Y, r.Dir.Z}
	mins := [3]float64{lo.X, lo.Y, lo.Z}
	maxs := [3]float64{hi.X, hi.Y, hi.Z}
	for i := range 3 {
		o, d := origin[i], dir[i]
		if math.Abs(d) < eps {
			if o < mins[i] || o > maxs[i] {
				return 0, false
			}
			continue
		}
		t1 := (mins[i] - o) / d
		t2 := (maxs[i] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func hitPolyline(r Ray, pts []layout.Vec3, tolerance float64) (float64, bool) {
	best, found := math.Inf(1), false
	for i := 1; i < len(pts); i++ {
		d, t := raySegmentDistance(r, pts[i-1], pts[i])
		if d <= tolerance && t < best {
			best, found = t, true
		}
	}
	return best, found
}

// raySegmentDistance returns the closest approach between a ray with unit
// direction and segment ab, and the ray parameter at that approach.
func raySegmentDistance(r Ray, a, b layout.Vec3) (dist, s float64) {
	d1 := r.Dir
	d2 := b.Sub(a)
	w := r.Origin.Sub(a)
	e := d2.Dot(d2)
	c := d1.Dot(w)

	var u float64
	if e < eps {
		s = max(0, -c)
	} else {
		f := d2.Dot(w)
		bb := d1.Dot(d2)
		denom := e - bb*bb
		if denom > eps {
			s = max(0, (bb*f-c*e)/denom)
		}
		u = (bb*s + f) / e
		switch {
		case u < 0:
			u = 0
			s = max(0, -c)
		case u > 1:
			u = 1
			s = max(0, bb-c)
		}
	}
	p1 := r.At(s)
	p2 := a.Add(d2.Scale(u))
	return p1.Sub(p2).Len(), s
}
