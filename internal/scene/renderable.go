package scene

import (
	"fmt"
	"strings"

	"github.com/user/strata/internal/layout"
)

// Group is an independently visible layer of the scene.
type Group string

const (
	GroupSunburst     Group = "sunburst"
	GroupMilestones   Group = "milestones"
	GroupCorrelations Group = "correlations"
)

var Groups = []Group{GroupSunburst, GroupMilestones, GroupCorrelations}

// ParseGroup validates a group name.
func ParseGroup(s string) (Group, error) {
	for _, g := range Groups {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group: %q", s)
}

type Kind string

const (
	KindSegment   Kind = "segment"
	KindConnector Kind = "connector"
	KindBar       Kind = "bar"
	KindCurve     Kind = "curve"
)

// Renderable is one materialized scene object. Which geometry fields are set
// depends on Kind: segments use the ring fields, bars use Min/Max, and
// connectors and curves use Points.
type Renderable struct {
	Key         string  `json:"key"`
	Kind        Kind    `json:"kind"`
	Group       Group   `json:"group"`
	EventID     string  `json:"event_id"`
	EventIndex  int     `json:"event_index"`
	Label       string  `json:"label,omitempty"`
	Color       string  `json:"color"`
	Opacity     float64 `json:"opacity"`
	Highlighted bool    `json:"highlighted,omitempty"`

	Path        string      `json:"path,omitempty"`
	Depth       int         `json:"depth,omitempty"`
	InnerRadius float64     `json:"inner_radius,omitempty"`
	OuterRadius float64     `json:"outer_radius,omitempty"`
	StartAngle  float64     `json:"start_angle,omitempty"`
	EndAngle    float64     `json:"end_angle,omitempty"`
	Origin      layout.Vec3 `json:"origin"`
	Center      layout.Vec3 `json:"center"`

	Min layout.Vec3 `json:"min"`
	Max layout.Vec3 `json:"max"`

	Points   []layout.Vec3 `json:"points,omitempty"`
	Strength float64       `json:"strength,omitempty"`

	geometry Handle
	material Handle
}

// Top returns the center of a bar's upper face.
func (r *Renderable) Top() layout.Vec3 {
	return layout.Vec3{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2, Z: r.Max.Z}
}

// Height returns a bar's extent along Z.
func (r *Renderable) Height() float64 { return r.Max.Z - r.Min.Z }

var keyEscaper = strings.NewReplacer("%", "%25", "#", "%23")

// SegmentKey joins an event ID and a structural tree key into the lookup key
// used across rebuilds. The ID is escaped so the first '#' always ends it.
func SegmentKey(eventID, path string) string {
	return keyEscaper.Replace(eventID) + "#" + path
}

// Snapshot is the laid-out tree of one file-scan event positioned in the
// stack.
type Snapshot struct {
	EventID    string
	EventIndex int
	Origin     layout.Vec3
	Arena      *layout.Arena
}

// WorldCenter returns the scene-space center of segment i.
func (s *Snapshot) WorldCenter(i int) layout.Vec3 {
	return s.Origin.Add(s.Arena.Segments[i].Center)
}

// Frame is a read-only copy of the visible scene.
type Frame struct {
	Index   int            `json:"index"`
	Visible map[Group]bool `json:"visible"`
	Items   []Renderable   `json:"items"`
}
