// Package timeline holds the unified event log: file-scan snapshots and
// project milestones in timestamp order, plus the correlations linking them.
package timeline

import (
	"errors"

	"github.com/user/strata/internal/tree"
)

// Load and validation errors. A failed load never replaces a log that is
// already active.
var (
	ErrMalformed      = errors.New("malformed timeline artifact")
	ErrMissingEvents  = errors.New("artifact has no events array")
	ErrEmptyLog       = errors.New("artifact contains no events")
	ErrDuplicateID    = errors.New("duplicate event id")
	ErrTooLarge       = errors.New("artifact exceeds size limit")
	ErrUnsupportedExt = errors.New("unsupported artifact extension")
)

// Kind is the event type.
type Kind int

const (
	FileScan Kind = iota
	Milestone
)

func (k Kind) String() string {
	if k == Milestone {
		return "milestone"
	}
	return "file_scan"
}

// Category classifies a milestone.
type Category string

const (
	Requirement Category = "requirement"
	Deliverable Category = "deliverable"
	Meeting     Category = "meeting"
	Deadline    Category = "deadline"
	Decision    Category = "decision"
	Issue       Category = "issue"
)

// Categories lists every category in lane order.
var Categories = []Category{Requirement, Deliverable, Meeting, Deadline, Decision, Issue}

// Lane returns the category's position in Categories.
func (c Category) Lane() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return 0
}

// Priority ranks a milestone.
type Priority string

const (
	Low      Priority = "low"
	Medium   Priority = "medium"
	High     Priority = "high"
	Urgent   Priority = "urgent"
	Critical Priority = "critical"
)

// Event is one entry of the log. Exactly one of FileScan and Milestone is
// set, matching Kind.
type Event struct {
	ID        string
	Kind      Kind
	Timestamp int64
	FileScan  *FileScanPayload
	Milestone *MilestonePayload
}

// FileScanPayload describes one directory snapshot. Tree is nil when the
// artifact carried no tree_structure.
type FileScanPayload struct {
	FileCount int64
	TotalSize int64
	RootPath  string
	Tree      *tree.Node
}

// MilestonePayload describes one extracted milestone.
type MilestonePayload struct {
	Title         string
	Description   string
	Category      Category
	Priority      Priority
	Confidence    float64
	StartTime     *int64
	EndTime       *int64
	Duration      *int64
	IntendedColor string
	ActualColor   string
	RelatedFiles  []string
}

// Span returns the milestone's [start, end] in seconds. ok is false when
// neither an end time nor a duration is known. A negative duration collapses
// to a zero-length span.
func (e *Event) Span() (start, end int64, ok bool) {
	if e.Milestone == nil {
		return 0, 0, false
	}
	m := e.Milestone
	start = e.Timestamp
	if m.StartTime != nil {
		start = *m.StartTime
	}
	switch {
	case m.EndTime != nil:
		end = *m.EndTime
	case m.Duration != nil:
		end = start + *m.Duration
	default:
		return 0, 0, false
	}
	if end < start {
		end = start
	}
	return start, end, true
}

// Correlation links a file-scan event with a milestone event.
type Correlation struct {
	FileEventID      string
	MilestoneEventID string
	Strength         float64
	Kind             string
}
