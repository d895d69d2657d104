package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/user/strata/internal/tree"
)

type wireArtifact struct {
	Events       *[]wireEvent      `json:"events"`
	Correlations []wireCorrelation `json:"correlations"`
}

type wireEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp json.Number     `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata"`
}

type wireFileScan struct {
	FileCount     int64           `json:"file_count"`
	TotalSize     int64           `json:"total_size"`
	RootPath      string          `json:"root_path"`
	TreeStructure json.RawMessage `json:"tree_structure"`
}

type wireMilestone struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Category      string       `json:"category"`
	Priority      string       `json:"priority"`
	Confidence    *float64     `json:"confidence"`
	StartTime     *json.Number `json:"start_time"`
	EndTime       *json.Number `json:"end_time"`
	Duration      *json.Number `json:"duration"`
	IntendedColor string       `json:"intended_color"`
	ActualColor   string       `json:"actual_color"`
	RelatedFiles  []string     `json:"related_files"`
}

type wireCorrelation struct {
	FileEventID      string  `json:"file_event_id"`
	MilestoneEventID string  `json:"milestone_event_id"`
	Strength         float64 `json:"correlation_strength"`
	Kind             string  `json:"correlation_type"`
}

// Decode reads a unified-timeline JSON artifact. Structural problems with a
// single event's payload are tolerated; only artifact-level problems fail.
func Decode(r io.Reader) (*Log, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var art wireArtifact
	if err := dec.Decode(&art); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if art.Events == nil {
		return nil, ErrMissingEvents
	}

	raw := make([]rawEvent, 0, len(*art.Events))
	for i, we := range *art.Events {
		ts, err := seconds(we.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d timestamp: %v", ErrMalformed, i, err)
		}
		raw = append(raw, rawEvent{id: we.EventID, kind: we.EventType, ts: ts, meta: we.Metadata})
	}

	correlations := make([]Correlation, 0, len(art.Correlations))
	for _, wc := range art.Correlations {
		correlations = append(correlations, Correlation{
			FileEventID:      wc.FileEventID,
			MilestoneEventID: wc.MilestoneEventID,
			Strength:         clamp01(wc.Strength),
			Kind:             wc.Kind,
		})
	}
	return build(raw, correlations)
}

type rawEvent struct {
	id   string
	kind string
	ts   int64
	meta json.RawMessage
}

// build decodes payloads, drops unknown kinds, rejects duplicate IDs and
// sorts by timestamp. Shared by the JSON and SQLite sources.
func build(raw []rawEvent, correlations []Correlation) (*Log, error) {
	events := make([]Event, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if r.id == "" {
			return nil, fmt.Errorf("%w: event without event_id", ErrMalformed)
		}
		if _, dup := seen[r.id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.id)
		}
		seen[r.id] = struct{}{}

		e := Event{ID: r.id, Timestamp: r.ts}
		switch r.kind {
		case "file_scan":
			e.Kind = FileScan
			e.FileScan = decodeFileScan(r.id, r.meta)
		case "milestone":
			e.Kind = Milestone
			e.Milestone = decodeMilestone(r.id, r.meta)
		default:
			slog.Debug("dropping event of unknown type", "event_id", r.id, "event_type", r.kind)
			continue
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return nil, ErrEmptyLog
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return newLog(events, correlations), nil
}

func decodeFileScan(id string, meta json.RawMessage) *FileScanPayload {
	p := &FileScanPayload{}
	if len(meta) == 0 {
		slog.Warn("file scan without metadata", "event_id", id)
		return p
	}
	var w wireFileScan
	if err := json.Unmarshal(meta, &w); err != nil {
		slog.Warn("file scan metadata unreadable", "event_id", id, "error", err)
		return p
	}
	p.FileCount, p.TotalSize, p.RootPath = w.FileCount, w.TotalSize, w.RootPath
	if len(w.TreeStructure) == 0 || string(w.TreeStructure) == "null" {
		slog.Warn("file scan without tree_structure", "event_id", id)
		return p
	}
	root, err := tree.Parse(w.TreeStructure)
	if err != nil {
		slog.Warn("file scan tree_structure unreadable", "event_id", id, "error", err)
		return p
	}
	p.Tree = root
	return p
}

func decodeMilestone(id string, meta json.RawMessage) *MilestonePayload {
	p := &MilestonePayload{Category: Requirement, Priority: Medium, Confidence: 1}
	if len(meta) == 0 {
		return p
	}
	dec := json.NewDecoder(bytes.NewReader(meta))
	dec.UseNumber()
	var w wireMilestone
	if err := dec.Decode(&w); err != nil {
		slog.Warn("milestone metadata unreadable", "event_id", id, "error", err)
		return p
	}
	p.Title = w.Title
	p.Description = w.Description
	p.Category = parseCategory(id, w.Category)
	p.Priority = parsePriority(id, w.Priority)
	if w.Confidence != nil {
		p.Confidence = clamp01(*w.Confidence)
	}
	p.StartTime = optionalSeconds(id, "start_time", w.StartTime)
	p.EndTime = optionalSeconds(id, "end_time", w.EndTime)
	p.Duration = optionalSeconds(id, "duration", w.Duration)
	p.IntendedColor = w.IntendedColor
	p.ActualColor = w.ActualColor
	p.RelatedFiles = w.RelatedFiles
	return p
}

func parseCategory(id, s string) Category {
	c := Category(strings.ToLower(s))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	if s != "" {
		slog.Debug("unknown milestone category", "event_id", id, "category", s)
	}
	return Requirement
}

func parsePriority(id, s string) Priority {
	switch p := Priority(strings.ToLower(s)); p {
	case Low, Medium, High, Urgent, Critical:
		return p
	}
	if s != "" {
		slog.Debug("unknown milestone priority", "event_id", id, "priority", s)
	}
	return Medium
}

func optionalSeconds(id, field string, n *json.Number) *int64 {
	if n == nil {
		return nil
	}
	v, err := seconds(*n)
	if err != nil {
		slog.Warn("ignoring unreadable milestone time", "event_id", id, "field", field, "error", err)
		return nil
	}
	return &v
}

// seconds truncates a JSON number (integer or float seconds) to int64.
func seconds(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite timestamp %q", n)
	}
	if f < -(1<<63) || f >= 1<<63 {
		return 0, fmt.Errorf("timestamp %q out of range", n)
	}
	return int64(f), nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
