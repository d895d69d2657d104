// Package render projects a scene frame onto a static SVG document.
package render

import (
	"fmt"
	"html"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/scene"
)

// Options control the projection. Yaw rotates the scene about Z and Pitch
// tilts it toward the viewer, both in radians.
type Options struct {
	Width      int
	Height     int
	Yaw        float64
	Pitch      float64
	Margin     float64
	Background string
	Highlight  string
}

func DefaultOptions() Options {
	return Options{
		Width:      1200,
		Height:     900,
		Yaw:        layout.Degrees(-35),
		Pitch:      layout.Degrees(55),
		Margin:     20,
		Background: "#11151c",
		Highlight:  "#ffd166",
	}
}

type point struct{ x, y float64 }

type bounds struct {
	minX, maxX, minY, maxY float64
	isSet                  bool
}

func (b *bounds) update(p point) {
	if !b.isSet {
		b.minX, b.maxX, b.minY, b.maxY = p.x, p.x, p.y, p.y
		b.isSet = true
		return
	}
	b.minX = math.Min(b.minX, p.x)
	b.maxX = math.Max(b.maxX, p.x)
	b.minY = math.Min(b.minY, p.y)
	b.maxY = math.Max(b.maxY, p.y)
}

// shape is one projected item ready to be written.
type shape struct {
	item   *scene.Renderable
	pts    []point
	closed bool
	depth  float64
}

func (o Options) project(v layout.Vec3) (point, float64) {
	sy, cy := math.Sincos(o.Yaw)
	sp, cp := math.Sincos(o.Pitch)
	x := v.X*cy - v.Y*sy
	y := v.X*sy + v.Y*cy
	// Screen Y grows downward; depth grows away from the viewer.
	return point{x: x, y: -(v.Z*sp + y*cp)}, y*sp - v.Z*cp
}

// Render writes f as an SVG document. Items are painted back to front.
func Render(w io.Writer, f scene.Frame, o Options) error {
	var shapes []shape
	var b bounds
	for i := range f.Items {
		s := o.shapeOf(&f.Items[i])
		if len(s.pts) == 0 {
			continue
		}
		for _, p := range s.pts {
			b.update(p)
		}
		shapes = append(shapes, s)
	}
	sort.SliceStable(shapes, func(i, j int) bool {
		ri, rj := rank(shapes[i].item.Kind), rank(shapes[j].item.Kind)
		if ri != rj {
			return ri < rj
		}
		return shapes[i].depth > shapes[j].depth
	})

	var svg strings.Builder
	fmt.Fprintf(&svg, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg"`, o.Width, o.Height)
	if b.isSet {
		m := o.Margin
		fmt.Fprintf(&svg, ` viewBox="%.2f %.2f %.2f %.2f"`, b.minX-m, b.minY-m, b.maxX-b.minX+2*m, b.maxY-b.minY+2*m)
	}
	svg.WriteString(">\n")
	fmt.Fprintf(&svg, `<rect x="-50%%" y="-50%%" width="200%%" height="200%%" fill="%s"/>`+"\n", o.Background)
	if !b.isSet {
		fmt.Fprintf(&svg, `<text x="%d" y="%d" fill="#cccccc" font-family="sans-serif" text-anchor="middle">no events</text>`+"\n", o.Width/2, o.Height/2)
	}
	fmt.Fprintf(&svg, `<g data-index="%d">`+"\n", f.Index)
	for _, s := range shapes {
		o.writeShape(&svg, s)
	}
	svg.WriteString("</g>\n</svg>\n")

	_, err := io.WriteString(w, svg.String())
	return err
}

func rank(k scene.Kind) int {
	switch k {
	case scene.KindSegment:
		return 0
	case scene.KindConnector:
		return 1
	case scene.KindBar:
		return 2
	default:
		return 3
	}
}

func (o Options) shapeOf(r *scene.Renderable) shape {
	s := shape{item: r}
	var world []layout.Vec3
	switch r.Kind {
	case scene.KindSegment:
		world = wedge(r)
		s.closed = true
	case scene.KindBar:
		world = corners(r.Min, r.Max)
		s.closed = true
	case scene.KindConnector, scene.KindCurve:
		world = r.Points
	}
	for _, v := range world {
		p, d := o.project(v)
		s.pts = append(s.pts, p)
		s.depth += d
	}
	if len(world) > 0 {
		s.depth /= float64(len(world))
	}
	if r.Kind == scene.KindBar {
		s.pts = hull(s.pts)
	}
	return s
}

// wedge samples the outline of a ring segment in its plane.
func wedge(r *scene.Renderable) []layout.Vec3 {
	span := r.EndAngle - r.StartAngle
	n := max(2, int(math.Ceil(span/(math.Pi/32)))+1)
	shift := layout.Vec3{X: r.Origin.X, Y: r.Origin.Y}
	at := func(rad float64, i int) layout.Vec3 {
		a := r.StartAngle + span*float64(i)/float64(n-1)
		return layout.Polar(rad, a, r.Center.Z).Add(shift)
	}
	pts := make([]layout.Vec3, 0, 2*n)
	for i := range n {
		pts = append(pts, at(r.OuterRadius, i))
	}
	for i := n - 1; i >= 0; i-- {
		pts = append(pts, at(r.InnerRadius, i))
	}
	return pts
}

func corners(lo, hi layout.Vec3) []layout.Vec3 {
	var pts []layout.Vec3
	for _, x := range []float64{lo.X, hi.X} {
		for _, y := range []float64{lo.Y, hi.Y} {
			for _, z := range []float64{lo.Z, hi.Z} {
				pts = append(pts, layout.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return pts
}

// hull returns the convex hull of pts in counter-clockwise order.
func hull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	ps := append([]point(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].x != ps[j].x {
			return ps[i].x < ps[j].x
		}
		return ps[i].y < ps[j].y
	})
	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	h := make([]point, 0, 2*len(ps))
	for _, p := range ps {
		for len(h) >= 2 && cross(h[len(h)-2], h[len(h)-1], p) <= 0 {
			h = h[:len(h)-1]
		}
		h = append(h, p)
	}
	lower := len(h) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(h) >= lower && cross(h[len(h)-2], h[len(h)-1], p) <= 0 {
			h = h[:len(h)-1]
		}
		h = append(h, p)
	}
	return h[:len(h)-1]
}

func (o Options) writeShape(svg *strings.Builder, s shape) {
	r := s.item
	stroke, width := "#000000", 0.3
	if r.Highlighted {
		stroke, width = o.Highlight, 1.5
	}
	title := html.EscapeString(r.Label)
	if title == "" {
		title = html.EscapeString(r.Key)
	}

	if s.closed {
		var d strings.Builder
		for i, p := range s.pts {
			cmd := 'L'
			if i == 0 {
				cmd = 'M'
			}
			fmt.Fprintf(&d, "%c%.2f,%.2f ", cmd, p.x, p.y)
		}
		d.WriteString("Z")
		fmt.Fprintf(svg, `<path class="%s" d="%s" fill="%s" fill-opacity="%.2f" stroke="%s" stroke-width="%.2f"><title>%s</title></path>`+"\n",
			r.Kind, d.String(), r.Color, r.Opacity, stroke, width, title)
		return
	}

	coords := make([]string, len(s.pts))
	for i, p := range s.pts {
		coords[i] = fmt.Sprintf("%.2f,%.2f", p.x, p.y)
	}
	if !r.Highlighted {
		stroke, width = r.Color, 0.8
	}
	fmt.Fprintf(svg, `<polyline class="%s" points="%s" fill="none" stroke="%s" stroke-opacity="%.2f" stroke-width="%.2f"><title>%s</title></polyline>`+"\n",
		r.Kind, strings.Join(coords, " "), stroke, r.Opacity, width, title)
}
