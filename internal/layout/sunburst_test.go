package layout

import (
	"math"
	"testing"

	"github.com/user/strata/internal/tree"
)

const eps = 1e-9

func defaultParams() Params {
	return Params{MinAngle: Degrees(2), RingThickness: 5, RingGap: 1, InitialRadius: 10}
}

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

func TestSunburstWeightedSplit(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Size: 100, Children: []*tree.Node{
		{Name: "a", Size: 30},
		{Name: "b", Size: 70},
	}}
	a := Sunburst(root, defaultParams(), 0)

	if len(a.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(a.Segments))
	}
	first, second := a.Segments[1], a.Segments[2]
	if got := toDeg(first.Span()); math.Abs(got-108.8) > 1e-6 {
		t.Errorf("expected first child 108.8 deg, got %v", got)
	}
	if got := toDeg(second.Span()); math.Abs(got-251.2) > 1e-6 {
		t.Errorf("expected second child 251.2 deg, got %v", got)
	}
	if math.Abs(first.Span()+second.Span()-2*math.Pi) > eps {
		t.Errorf("expected children to cover the circle, got %v", toDeg(first.Span()+second.Span()))
	}
	if first.StartAngle != 0 || math.Abs(second.StartAngle-first.EndAngle) > eps {
		t.Errorf("expected sequential angles, got %v..%v then %v", first.StartAngle, first.EndAngle, second.StartAngle)
	}
}

func TestSunburstEmptyFolderIsSingleSegment(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{}}
	a := Sunburst(root, defaultParams(), 4)

	if len(a.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(a.Segments))
	}
	s := a.Segments[0]
	if s.Depth != 0 || s.Parent != -1 || s.EventIndex != 4 {
		t.Errorf("unexpected root segment: %+v", s)
	}
	if s.InnerRadius != 10 || s.OuterRadius != 15 {
		t.Errorf("expected radii [10,15], got [%v,%v]", s.InnerRadius, s.OuterRadius)
	}
	if math.Abs(s.Span()-2*math.Pi) > eps {
		t.Errorf("expected full circle, got %v", s.Span())
	}
}

func TestSunburstDepthAndRadii(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{
		{Name: "src", Kind: tree.Folder, Size: 5, Children: []*tree.Node{
			{Name: "main.go", Size: 3},
			{Name: "util", Kind: tree.Folder, Size: 2, Children: []*tree.Node{{Name: "x.go", Size: 2}}},
		}},
		{Name: "README.md", Size: 1},
	}}
	p := defaultParams()
	a := Sunburst(root, p, 0)

	if len(a.Segments) != root.Count() {
		t.Fatalf("expected %d segments, got %d", root.Count(), len(a.Segments))
	}
	for i, s := range a.Segments {
		if s.Parent < 0 {
			continue
		}
		parent := a.Segments[s.Parent]
		if s.Depth != parent.Depth+1 {
			t.Errorf("segment %s: depth %d, parent depth %d", s.Key, s.Depth, parent.Depth)
		}
		if s.InnerRadius < parent.OuterRadius+p.RingGap-eps {
			t.Errorf("segment %s: inner radius %v inside parent outer %v + gap", s.Key, s.InnerRadius, parent.OuterRadius)
		}
		found := false
		for _, c := range a.Children(s.Parent) {
			if c == i {
				found = true
			}
		}
		if !found {
			t.Errorf("segment %s missing from its parent's children", s.Key)
		}
	}
}

func TestSunburstChildrenSumToParentSpan(t *testing.T) {
	children := make([]*tree.Node, 7)
	for i := range children {
		children[i] = &tree.Node{Name: string(rune('a' + i)), Size: float64(i * 3)}
	}
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: children}
	a := Sunburst(root, defaultParams(), 0)

	sum := 0.0
	for _, c := range a.Children(0) {
		sum += a.Segments[c].Span()
	}
	if math.Abs(sum-2*math.Pi) > eps {
		t.Errorf("expected children span 2pi, got %v", sum)
	}
}

func TestSunburstMinAngleOverflowIsPreserved(t *testing.T) {
	// Ten children at 50 degrees each need 500 degrees of a 360 degree span.
	children := make([]*tree.Node, 10)
	for i := range children {
		children[i] = &tree.Node{Name: string(rune('a' + i)), Size: 1}
	}
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: children}
	p := defaultParams()
	p.MinAngle = Degrees(50)
	a := Sunburst(root, p, 0)

	sum := 0.0
	for _, c := range a.Children(0) {
		s := a.Segments[c]
		if math.Abs(s.Span()-p.MinAngle) > eps {
			t.Errorf("expected each child to get exactly the minimum angle, got %v", toDeg(s.Span()))
		}
		sum += s.Span()
	}
	if math.Abs(toDeg(sum)-500) > 1e-6 {
		t.Errorf("expected overflowing total of 500 deg, got %v", toDeg(sum))
	}
}

func TestSunburstZeroSizesPartitionEqually(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{
		{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"},
	}}
	a := Sunburst(root, defaultParams(), 0)
	for _, c := range a.Children(0) {
		if math.Abs(a.Segments[c].Span()-math.Pi/2) > eps {
			t.Errorf("expected quarter circle, got %v", toDeg(a.Segments[c].Span()))
		}
	}
}

func TestSunburstCenterPoint(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{{Name: "only", Size: 1}}}
	p := Params{MinAngle: 0, RingThickness: 4, RingGap: 2, InitialRadius: 10}
	a := Sunburst(root, p, 0)

	child := a.Segments[1]
	wantR := (16.0 + 20.0) / 2
	if math.Abs(math.Hypot(child.Center.X, child.Center.Y)-wantR) > eps {
		t.Errorf("expected center radius %v, got %v", wantR, math.Hypot(child.Center.X, child.Center.Y))
	}
	if child.Center.Z != DepthLift {
		t.Errorf("expected center z %v, got %v", DepthLift, child.Center.Z)
	}
	if math.Abs(child.Center.X-(-wantR)) > 1e-9 {
		t.Errorf("expected center at angle pi, got %+v", child.Center)
	}
}

func TestSunburstKeysAndAncestry(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Children: []*tree.Node{
		{Name: "src", Kind: tree.Folder, Children: []*tree.Node{{Name: "a.go"}, {Name: "a.go"}}},
	}}
	a := Sunburst(root, defaultParams(), 0)

	i, ok := a.Lookup("/root/src/a.go#2")
	if !ok {
		t.Fatal("expected duplicate sibling to get a suffixed key")
	}
	chain := a.Ancestry(i)
	if len(chain) != a.Segments[i].Depth+1 {
		t.Errorf("expected chain of %d, got %v", a.Segments[i].Depth+1, chain)
	}
	if a.Segments[chain[len(chain)-1]].Key != "/root" {
		t.Errorf("expected chain to end at root, got %s", a.Segments[chain[len(chain)-1]].Key)
	}
}

func TestSunburstDoesNotMutateTree(t *testing.T) {
	root := &tree.Node{Name: "root", Kind: tree.Folder, Size: 0, Children: []*tree.Node{{Name: "a", Size: 0}}}
	Sunburst(root, defaultParams(), 0)
	if root.Size != 0 || root.Children[0].Size != 0 {
		t.Error("layout mutated node sizes")
	}
}

func TestSunburstNilRoot(t *testing.T) {
	if a := Sunburst(nil, defaultParams(), 0); len(a.Segments) != 0 {
		t.Errorf("expected no segments, got %d", len(a.Segments))
	}
}
