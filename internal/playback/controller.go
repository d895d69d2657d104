// Package playback steps through an event log, keeping the scene in sync
// with the current prefix.
package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/strata/internal/bus"
	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/scene"
	"github.com/user/strata/internal/timeline"
)

// ErrOutOfRange is returned by Import for an index outside the log.
var ErrOutOfRange = errors.New("index out of range")

type State string

const (
	Idle    State = "idle"
	Playing State = "playing"
	Paused  State = "paused"
	Seeking State = "seeking"
)

// Scene is the compositor surface the controller drives.
type Scene interface {
	SetLog(log *timeline.Log)
	Rebuild(ctx context.Context, v timeline.View, p layout.Params) error
	SetVisible(g scene.Group, visible bool)
}

type Options struct {
	SpeedMs       int
	CameraFollow  bool
	CameraSpacing float64
	ManualHold    time.Duration
	MinAngleDeg   float64
	RingThickness float64
	RingGap       float64
	InitialRadius float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SpeedMs:       cfg.Playback.SpeedMs,
		CameraFollow:  cfg.Playback.CameraFollow,
		CameraSpacing: cfg.Timeline.CameraSpacing,
		ManualHold:    time.Duration(cfg.Timeline.ManualHoldMs) * time.Millisecond,
		MinAngleDeg:   cfg.Layout.MinAngleDeg,
		RingThickness: cfg.Layout.RingThickness,
		RingGap:       cfg.Layout.RingGap,
		InitialRadius: cfg.Layout.InitialRadius,
	}
}

// Status is a point-in-time summary of the controller.
type Status struct {
	State         State   `json:"state"`
	Index         int     `json:"index"`
	Count         int     `json:"count"`
	EventID       string  `json:"event_id,omitempty"`
	SpeedMs       int     `json:"speed_ms"`
	MinAngleDeg   float64 `json:"min_angle_deg"`
	RingThickness float64 `json:"ring_thickness"`
	CameraFollow  bool    `json:"camera_follow"`
	CameraZ       float64 `json:"camera_z"`
	Message       string  `json:"message"`
}

// Checkpoint is the exported playback position.
type Checkpoint struct {
	CurrentIndex int  `json:"current_index"`
	SpeedMs      int  `json:"speed_ms"`
	CameraFollow bool `json:"camera_follow"`
}

// Controller is the single writer of the playback position. Every index
// change rebuilds the scene for the new prefix before PrefixChanged is
// published.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	scene  Scene
	bus    *bus.Bus
	clock  clock.Clock
	queue  *coalescer

	mu            sync.Mutex
	log           *timeline.Log
	index         int
	started       bool
	running       bool
	seeking       bool
	speedMs       int
	minAngleDeg   float64
	ringThickness float64
	ringGap       float64
	initialRadius float64
	follow        bool
	spacing       float64
	hold          time.Duration
	lastManual    time.Time
	cameraZ       float64
	targets       map[timeline.Kind]float64
	newest        timeline.Kind
	timer         clock.Timer
	tickGen       uint64
}

// New positions the controller at the last event of log and builds the
// scene for it. An empty or nil log is valid and leaves the scene empty.
func New(ctx context.Context, log *timeline.Log, sc Scene, b *bus.Bus, clk clock.Clock, opts Options) (*Controller, error) {
	if b == nil {
		b = bus.New()
	}
	if clk == nil {
		clk = clock.Real()
	}
	c := &Controller{
		scene:         sc,
		bus:           b,
		clock:         clk,
		speedMs:       config.ClampSpeedMs(opts.SpeedMs),
		minAngleDeg:   config.ClampMinAngleDeg(opts.MinAngleDeg),
		ringThickness: config.ClampThickness(opts.RingThickness),
		ringGap:       opts.RingGap,
		initialRadius: opts.InitialRadius,
		follow:        opts.CameraFollow,
		spacing:       opts.CameraSpacing,
		hold:          opts.ManualHold,
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.queue = newCoalescer(c.rebuild)
	if err := c.SetLog(log); err != nil {
		c.cancel()
		return nil, err
	}
	return c, nil
}

// SetLog replaces the active log, stopping playback and moving to its last
// event.
func (c *Controller) SetLog(log *timeline.Log) error {
	c.mu.Lock()
	c.stopLocked()
	c.log = log
	c.index = log.Len() - 1
	c.started = false
	c.seeking = false
	c.lastManual = time.Time{}
	c.mu.Unlock()

	c.scene.SetLog(log)
	if log.Len() == 0 {
		slog.Info("playback has no events")
	}
	return c.refresh()
}

// Close stops playback and cancels in-flight rebuilds.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.cancel()
}

// Bus returns the bus notifications are published on.
func (c *Controller) Bus() *bus.Bus { return c.bus }

// Log returns the active log.
func (c *Controller) Log() *timeline.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// Play starts the ticker. It does nothing at the last event or on an empty
// log.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.log.Len() == 0 || c.index >= c.log.Len()-1 || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.started = true
	c.scheduleLocked()
	msg := c.playbackMsgLocked()
	c.mu.Unlock()
	c.publish(msg)
}

// Pause stops the ticker.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.log.Len() == 0 {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.started = true
	msg := c.playbackMsgLocked()
	c.mu.Unlock()
	c.publish(msg)
}

// Advance moves one event forward. Reaching the last event pauses playback.
func (c *Controller) Advance() {
	c.mu.Lock()
	if c.log.Len() == 0 {
		c.mu.Unlock()
		return
	}
	moved, msg := c.stepLocked()
	c.mu.Unlock()
	if msg != nil {
		c.publish(*msg)
	}
	if moved {
		c.logRefresh()
	}
}

// stepLocked increments the index and pauses at the end. It reports whether
// the index moved and the playback message to publish, if any.
func (c *Controller) stepLocked() (bool, *bus.PlaybackChanged) {
	last := c.log.Len() - 1
	moved := false
	if c.index < last {
		c.index++
		moved = true
	}
	if c.index == last && c.running {
		c.stopLocked()
		c.started = true
		msg := c.playbackMsgLocked()
		return moved, &msg
	}
	return moved, nil
}

// Seek jumps to event i regardless of the running state. Out-of-range
// indices are ignored.
func (c *Controller) Seek(i int) {
	c.mu.Lock()
	if i < 0 || i >= c.log.Len() {
		c.mu.Unlock()
		return
	}
	c.index = i
	c.seeking = true
	c.mu.Unlock()

	c.logRefresh()

	c.mu.Lock()
	c.seeking = false
	c.mu.Unlock()
}

// SetSpeed changes the tick interval, clamped to the allowed range. A running
// ticker restarts at the new speed.
func (c *Controller) SetSpeed(ms int) {
	c.mu.Lock()
	c.speedMs = config.ClampSpeedMs(ms)
	if c.running {
		c.cancelTimerLocked()
		c.scheduleLocked()
	}
	msg := c.playbackMsgLocked()
	c.mu.Unlock()
	c.publish(msg)
}

// Reset returns to the first event, paused.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.log.Len() == 0 {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.started = true
	c.index = 0
	msg := c.playbackMsgLocked()
	c.mu.Unlock()
	c.publish(msg)
	c.logRefresh()
}

// SetLayout changes the sunburst parameters, clamped to their ranges, and
// rebuilds the scene.
func (c *Controller) SetLayout(minAngleDeg, ringThickness float64) error {
	c.mu.Lock()
	c.minAngleDeg = config.ClampMinAngleDeg(minAngleDeg)
	c.ringThickness = config.ClampThickness(ringThickness)
	msg := bus.SettingsChanged{MinAngleDeg: c.minAngleDeg, RingThickness: c.ringThickness}
	c.mu.Unlock()
	c.publish(msg)
	return c.refresh()
}

// SetVisible toggles a scene group without re-running layout.
func (c *Controller) SetVisible(g scene.Group, visible bool) {
	c.scene.SetVisible(g, visible)
	c.publish(bus.VisibilityChanged{Group: string(g), Visible: visible})
}

// SetCameraFollow enables or disables automatic camera movement.
func (c *Controller) SetCameraFollow(follow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follow = follow
	c.syncCameraLocked()
}

// NoteManualCamera records a user camera interaction. Auto-follow is
// suppressed for the manual hold period afterwards.
func (c *Controller) NoteManualCamera() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastManual = c.clock.Now()
}

// CameraTarget returns the Z the camera follows and whether auto-follow is
// currently in effect.
func (c *Controller) CameraTarget() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncCameraLocked(), c.followActiveLocked()
}

func (c *Controller) followActiveLocked() bool {
	if !c.follow {
		return false
	}
	return c.lastManual.IsZero() || c.clock.Now().Sub(c.lastManual) >= c.hold
}

// updateTargetsLocked recomputes the stack height of each event kind and
// notes the kind of the newest event.
func (c *Controller) updateTargetsLocked() {
	v := c.log.View(c.index)
	c.targets = map[timeline.Kind]float64{
		timeline.FileScan:  float64(len(v.FileScans)) * c.spacing,
		timeline.Milestone: float64(len(v.Milestones)) * c.spacing,
	}
	if v.Empty() {
		c.newest = timeline.FileScan
		return
	}
	c.newest = v.Events[v.Index].Kind
}

// syncCameraLocked moves the camera to the newest kind's target while
// auto-follow is in effect and returns the camera Z.
func (c *Controller) syncCameraLocked() float64 {
	if c.followActiveLocked() {
		c.cameraZ = c.targets[c.newest]
	}
	return c.cameraZ
}

// KindTarget returns the follow height for events of kind k at the current
// index.
func (c *Controller) KindTarget(k timeline.Kind) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets[k]
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.seeking:
		return Seeking
	case c.running:
		return Playing
	case c.started:
		return Paused
	default:
		return Idle
	}
}

// Index returns the current prefix index, or -1 for an empty log.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:         c.stateLocked(),
		Index:         c.index,
		Count:         c.log.Len(),
		SpeedMs:       c.speedMs,
		MinAngleDeg:   c.minAngleDeg,
		RingThickness: c.ringThickness,
		CameraFollow:  c.follow,
		CameraZ:       c.syncCameraLocked(),
	}
	if s.Count == 0 {
		s.Message = "no events"
		return s
	}
	s.EventID = c.log.Events[c.index].ID
	s.Message = fmt.Sprintf("event %d of %d", c.index+1, s.Count)
	return s
}

// Export returns the playback position as JSON.
func (c *Controller) Export() ([]byte, error) {
	return json.Marshal(c.Checkpoint())
}

func (c *Controller) Checkpoint() Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Checkpoint{CurrentIndex: c.index, SpeedMs: c.speedMs, CameraFollow: c.follow}
}

// Import restores a position produced by Export.
func (c *Controller) Import(data []byte) error {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	return c.Restore(cp)
}

// Restore applies cp. An index outside the log is rejected without changing
// anything; an empty log accepts only index -1.
func (c *Controller) Restore(cp Checkpoint) error {
	c.mu.Lock()
	n := c.log.Len()
	if cp.CurrentIndex >= n || (cp.CurrentIndex < 0 && !(n == 0 && cp.CurrentIndex == -1)) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, cp.CurrentIndex, n)
	}
	c.stopLocked()
	c.index = cp.CurrentIndex
	c.speedMs = config.ClampSpeedMs(cp.SpeedMs)
	c.follow = cp.CameraFollow
	if n > 0 {
		c.started = true
	}
	msg := c.playbackMsgLocked()
	c.mu.Unlock()
	c.publish(msg)
	return c.refresh()
}

func (c *Controller) paramsLocked() layout.Params {
	return layout.Params{
		MinAngle:      layout.Degrees(c.minAngleDeg),
		RingThickness: c.ringThickness,
		RingGap:       c.ringGap,
		InitialRadius: c.initialRadius,
	}
}

// scheduleLocked arms a one-shot timer for the next tick. Stale timers are
// recognised by their generation.
func (c *Controller) scheduleLocked() {
	c.tickGen++
	gen := c.tickGen
	c.timer = c.clock.AfterFunc(time.Duration(c.speedMs)*time.Millisecond, func() { c.tick(gen) })
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.tickGen || !c.running {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	moved, msg := c.stepLocked()
	if c.running {
		c.scheduleLocked()
	}
	c.mu.Unlock()

	if msg != nil {
		c.publish(*msg)
	}
	if moved {
		c.logRefresh()
	}
}

func (c *Controller) cancelTimerLocked() {
	c.tickGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) stopLocked() {
	c.cancelTimerLocked()
	c.running = false
}

func (c *Controller) playbackMsgLocked() bus.PlaybackChanged {
	return bus.PlaybackChanged{State: string(c.stateLocked()), SpeedMs: c.speedMs}
}

// refresh requests a rebuild of the current prefix.
func (c *Controller) refresh() error {
	return c.queue.Request(c.ctx)
}

func (c *Controller) logRefresh() {
	if err := c.refresh(); err != nil {
		slog.Error("scene rebuild failed", "error", err)
	}
}

// rebuild reads the latest index and parameters, materializes the prefix
// and announces it.
func (c *Controller) rebuild(ctx context.Context) error {
	c.mu.Lock()
	log := c.log
	index := c.index
	params := c.paramsLocked()
	c.updateTargetsLocked()
	c.syncCameraLocked()
	c.mu.Unlock()

	v := log.View(index)
	if err := c.scene.Rebuild(ctx, v, params); err != nil {
		return fmt.Errorf("rebuild prefix %d: %w", index, err)
	}
	msg := bus.PrefixChanged{Index: v.Index}
	if !v.Empty() {
		msg.EventID = v.Events[v.Index].ID
	}
	c.publish(msg)
	return nil
}

func (c *Controller) publish(m bus.Message) {
	if err := c.bus.Publish(m); err != nil {
		slog.Warn("bus handler failed", "topic", m.Topic(), "error", err)
	}
}
