// Package layout computes scene geometry: the radial partition of a
// directory tree into ring segments and the mapping of timestamps onto
// spatial axes.
package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/user/strata/internal/tree"
)

// DepthLift is the Z offset of a ring per depth level in the snapshot's
// local frame.
const DepthLift = 2.0

// Params controls the radial partition.
type Params struct {
	MinAngle      float64 // radians
	RingThickness float64
	RingGap       float64
	InitialRadius float64
}

// Segment is one wedge of a snapshot's ring chart. Parent indexes into the
// owning Arena's Segments and is -1 for the root.
type Segment struct {
	Node        *tree.Node
	Key         string
	Parent      int
	Depth       int
	EventIndex  int
	InnerRadius float64
	OuterRadius float64
	StartAngle  float64
	EndAngle    float64
	Center      Vec3
}

// Span returns the segment's angular extent.
func (s Segment) Span() float64 { return s.EndAngle - s.StartAngle }

// Arena is the flat, depth-first output of a layout pass.
type Arena struct {
	Segments []Segment
	children [][]int
	byKey    map[string]int
}

// Children returns the indices of the direct children of segment i.
func (a *Arena) Children(i int) []int {
	if i < 0 || i >= len(a.children) {
		return nil
	}
	return a.children[i]
}

// Lookup returns the index of the segment with the given key.
func (a *Arena) Lookup(key string) (int, bool) {
	i, ok := a.byKey[key]
	return i, ok
}

// Ancestry returns i followed by each ancestor up to the root.
func (a *Arena) Ancestry(i int) []int {
	var chain []int
	for i >= 0 && i < len(a.Segments) {
		chain = append(chain, i)
		i = a.Segments[i].Parent
	}
	return chain
}

// Sunburst lays out root as nested rings. The root spans the full circle;
// each child receives MinAngle plus a size-weighted share of whatever span
// remains after every sibling's minimum is reserved. When the minimums alone
// exceed the parent's span, each child still receives MinAngle and the
// children overflow the parent.
func Sunburst(root *tree.Node, p Params, eventIndex int) *Arena {
	a := &Arena{byKey: make(map[string]int)}
	if root == nil {
		return a
	}
	a.place(root, "/"+root.Name, -1, 0, 0, 2*math.Pi, p.InitialRadius, p, eventIndex)
	return a
}

func (a *Arena) place(n *tree.Node, key string, parent, depth int, start, end, inner float64, p Params, eventIndex int) {
	outer := inner + p.RingThickness
	idx := len(a.Segments)
	a.Segments = append(a.Segments, Segment{
		Node:        n,
		Key:         key,
		Parent:      parent,
		Depth:       depth,
		EventIndex:  eventIndex,
		InnerRadius: inner,
		OuterRadius: outer,
		StartAngle:  start,
		EndAngle:    end,
		Center:      Polar((inner+outer)/2, (start+end)/2, float64(depth)*DepthLift),
	})
	a.children = append(a.children, nil)
	a.byKey[key] = idx
	if parent >= 0 {
		a.children[parent] = append(a.children[parent], idx)
	}
	if n.IsLeaf() {
		return
	}

	angles := ChildAngles(n.Children, end-start, p.MinAngle)
	keys := childKeys(key, n.Children)
	cursor := start
	for i, child := range n.Children {
		a.place(child, keys[i], idx, depth+1, cursor, cursor+angles[i], outer+p.RingGap, p, eventIndex)
		cursor += angles[i]
	}
}

// ChildAngles splits span among children: each gets minAngle plus a share of
// max(0, span - n*minAngle) proportional to its size, a size of zero
// counting as one.
func ChildAngles(children []*tree.Node, span, minAngle float64) []float64 {
	n := len(children)
	angles := make([]float64, n)
	if n == 0 {
		return angles
	}
	available := math.Max(0, span-float64(n)*minAngle)

	weights := make([]float64, n)
	total := 0.0
	for i, c := range children {
		w := c.Size
		if w == 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	for i := range children {
		share := available / float64(n)
		if total > 0 {
			share = available * weights[i] / total
		}
		angles[i] = minAngle + share
	}
	return angles
}

// childKeys derives structural keys for siblings, suffixing repeated names
// so every key within a snapshot is unique.
func childKeys(parent string, children []*tree.Node) []string {
	keys := make([]string, len(children))
	seen := make(map[string]int, len(children))
	for i, c := range children {
		name := strings.ReplaceAll(c.Name, "/", "_")
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
		keys[i] = parent + "/" + name
	}
	return keys
}

// Degrees converts degrees to radians.
func Degrees(deg float64) float64 { return deg * math.Pi / 180 }
