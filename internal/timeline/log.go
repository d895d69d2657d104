package timeline

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Log is an immutable, timestamp-ordered event sequence. Indices into
// Events are the single source of truth for playback positions.
type Log struct {
	Events       []Event
	Correlations []Correlation
	byID         map[string]int
}

// NewLog validates events and returns them as a log sorted stably by
// timestamp. Unlike Decode it accepts an empty event list.
func NewLog(events []Event, correlations []Correlation) (*Log, error) {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: event without id", ErrMalformed)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return newLog(sorted, correlations), nil
}

func newLog(events []Event, correlations []Correlation) *Log {
	byID := make(map[string]int, len(events))
	for i, e := range events {
		byID[e.ID] = i
	}
	return &Log{Events: events, Correlations: correlations, byID: byID}
}

// Len returns the number of events.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Events)
}

// IndexOf returns the position of the event with the given ID.
func (l *Log) IndexOf(id string) (int, bool) {
	if l == nil {
		return 0, false
	}
	i, ok := l.byID[id]
	return i, ok
}

// Range is a closed interval of timestamps.
type Range struct {
	Min, Max int64
	Valid    bool
}

func (r *Range) include(ts int64) {
	if !r.Valid {
		r.Min, r.Max, r.Valid = ts, ts, true
		return
	}
	r.Min = min(r.Min, ts)
	r.Max = max(r.Max, ts)
}

// FileScanRange returns the timestamp range of every file-scan event in the
// log, regardless of playback position.
func (l *Log) FileScanRange() Range {
	var r Range
	for _, e := range l.Events {
		if e.Kind == FileScan {
			r.include(e.Timestamp)
		}
	}
	return r
}

// GanttRange returns the range covered by every milestone span in the log.
func (l *Log) GanttRange() Range {
	var r Range
	for i := range l.Events {
		if start, end, ok := l.Events[i].Span(); ok {
			r.include(start)
			r.include(end)
		}
	}
	return r
}

// View is the derived state for a prefix events[0..Index].
type View struct {
	Index      int
	Events     []Event
	FileScans  []int
	Milestones []int
}

// Empty reports whether the view reveals no events.
func (v View) Empty() bool { return v.Index < 0 }

// Contains reports whether event index i is inside the prefix.
func (v View) Contains(i int) bool { return i >= 0 && i <= v.Index }

// View builds the prefix view ending at index. An index outside the log
// yields an empty view.
func (l *Log) View(index int) View {
	if index < 0 || index >= l.Len() {
		return View{Index: -1}
	}
	positions := lo.Range(index + 1)
	return View{
		Index:  index,
		Events: l.Events[:index+1],
		FileScans: lo.Filter(positions, func(i, _ int) bool {
			return l.Events[i].Kind == FileScan
		}),
		Milestones: lo.Filter(positions, func(i, _ int) bool {
			return l.Events[i].Kind == Milestone
		}),
	}
}

// Counts returns the number of events of each kind.
func (l *Log) Counts() map[Kind]int {
	return lo.CountValuesBy(l.Events, func(e Event) Kind { return e.Kind })
}
