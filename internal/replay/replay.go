// Package replay prints event playback and artifact summaries to a
// terminal.
package replay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/strata/internal/bus"
	"github.com/user/strata/internal/playback"
	"github.com/user/strata/internal/scene"
	"github.com/user/strata/internal/timeline"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	milestoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

const timeLayout = "2006-01-02 15:04:05"

// Counter reports how many renderables a scene group holds.
type Counter interface {
	Count(g scene.Group) int
}

// Replayer writes one line per revealed event.
type Replayer struct {
	output io.Writer
	scene  Counter
}

func New(output io.Writer, sc Counter) *Replayer {
	return &Replayer{output: output, scene: sc}
}

// Line formats event index of log.
func (r *Replayer) Line(log *timeline.Log, index int) string {
	if index < 0 || index >= log.Len() {
		return dimStyle.Render("no events")
	}
	e := &log.Events[index]
	ts := dimStyle.Render(time.Unix(e.Timestamp, 0).UTC().Format(timeLayout))

	var body string
	switch e.Kind {
	case timeline.FileScan:
		p := e.FileScan
		detail := "no tree"
		if p != nil && p.Tree != nil {
			detail = fmt.Sprintf("%d files, %d nodes", p.FileCount, p.Tree.Count())
		}
		body = fileStyle.Render("scan") + " " + e.ID + " " + dimStyle.Render(detail)
	case timeline.Milestone:
		m := e.Milestone
		body = milestoneStyle.Render(string(m.Category)) + " " + e.ID + " " + m.Title
		if _, _, ok := e.Span(); !ok {
			body += " " + warnStyle.Render("(no span)")
		}
	}

	line := seqStyle.Render(fmt.Sprint(index+1)) + "  " + ts + "  " + body
	if r.scene != nil {
		line += dimStyle.Render(fmt.Sprintf("  [%d seg, %d bars, %d links]",
			r.scene.Count(scene.GroupSunburst), r.scene.Count(scene.GroupMilestones), r.scene.Count(scene.GroupCorrelations)))
	}
	return line
}

// Attach prints a line for every PrefixChanged published on b.
func (r *Replayer) Attach(b *bus.Bus, log func() *timeline.Log) func() {
	return b.Subscribe(bus.TopicPrefix, func(m bus.Message) error {
		pc := m.(bus.PrefixChanged)
		_, err := fmt.Fprintln(r.output, r.Line(log(), pc.Index))
		return err
	})
}

// Run plays c from index from to the last event, printing each step. It
// returns once the last event is on screen or ctx is done.
func (r *Replayer) Run(ctx context.Context, c *playback.Controller, from int) error {
	log := c.Log()
	if log.Len() == 0 {
		_, err := fmt.Fprintln(r.output, r.Line(log, -1))
		return err
	}
	fmt.Fprintln(r.output, titleStyle.Render(fmt.Sprintf("Replaying %d events", log.Len())))
	fmt.Fprintln(r.output, divider)

	unsub := r.Attach(c.Bus(), c.Log)
	defer unsub()

	from = max(0, min(from, log.Len()-1))
	c.Seek(from)
	if from == log.Len()-1 {
		return nil
	}

	last := log.Len() - 1
	done := make(chan struct{}, 1)
	cancel := c.Bus().Subscribe(bus.TopicPrefix, func(m bus.Message) error {
		if m.(bus.PrefixChanged).Index == last {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		return nil
	})
	defer cancel()

	c.Play()
	select {
	case <-done:
		fmt.Fprintln(r.output, divider)
		return nil
	case <-ctx.Done():
		c.Pause()
		return ctx.Err()
	}
}

// Summary writes an overview of log: event counts, time ranges, and the
// events that contribute no geometry.
func Summary(w io.Writer, name string, log *timeline.Log) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(name) + "\n")
	b.WriteString(divider + "\n")

	counts := log.Counts()
	fmt.Fprintf(&b, "events        %d\n", log.Len())
	fmt.Fprintf(&b, "file scans    %d\n", counts[timeline.FileScan])
	fmt.Fprintf(&b, "milestones    %d\n", counts[timeline.Milestone])
	fmt.Fprintf(&b, "correlations  %d\n", len(log.Correlations))

	if r := log.FileScanRange(); r.Valid {
		fmt.Fprintf(&b, "scan range    %s .. %s\n", formatTS(r.Min), formatTS(r.Max))
	}
	if r := log.GanttRange(); r.Valid {
		fmt.Fprintf(&b, "gantt range   %s .. %s\n", formatTS(r.Min), formatTS(r.Max))
	}

	var gaps []string
	for i := range log.Events {
		e := &log.Events[i]
		switch {
		case e.Kind == timeline.FileScan && (e.FileScan == nil || e.FileScan.Tree == nil):
			gaps = append(gaps, e.ID+" (no tree)")
		case e.Kind == timeline.Milestone:
			if _, _, ok := e.Span(); !ok {
				gaps = append(gaps, e.ID+" (no end time or duration)")
			}
		}
	}
	dangling := 0
	for _, c := range log.Correlations {
		_, okF := log.IndexOf(c.FileEventID)
		_, okM := log.IndexOf(c.MilestoneEventID)
		if !okF || !okM {
			dangling++
		}
	}
	if dangling > 0 {
		gaps = append(gaps, fmt.Sprintf("%d correlations reference unknown events", dangling))
	}
	if len(gaps) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("gaps          %d", len(gaps))) + "\n")
		for _, g := range gaps {
			b.WriteString("  - " + g + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatTS(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(timeLayout)
}
