// Package bus carries typed change notifications from the playback
// controller to its observers.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message is a notification routed by its topic.
type Message interface {
	Topic() string
}

const (
	TopicPrefix     = "scene.prefix"
	TopicSettings   = "scene.settings"
	TopicVisibility = "scene.visibility"
	TopicPlayback   = "playback.state"
)

// PrefixChanged is published after the playback index moves, once the scene
// has been rebuilt for it.
type PrefixChanged struct {
	Index   int
	EventID string
}

func (PrefixChanged) Topic() string { return TopicPrefix }

// SettingsChanged is published when layout parameters change.
type SettingsChanged struct {
	MinAngleDeg   float64
	RingThickness float64
}

func (SettingsChanged) Topic() string { return TopicSettings }

type VisibilityChanged struct {
	Group   string
	Visible bool
}

func (VisibilityChanged) Topic() string { return TopicVisibility }

// PlaybackChanged is published on state transitions and speed changes.
type PlaybackChanged struct {
	State   string
	SpeedMs int
}

func (PlaybackChanged) Topic() string { return TopicPlayback }

// Handler receives a published message.
type Handler func(Message) error

type subscription struct {
	id      int
	prefix  string
	handler Handler
}

// Bus routes messages to handlers whose prefix matches the message topic
// (e.g. "scene." receives every scene notification, "" receives all).
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next int
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers handler for topics starting with prefix and returns a
// function that removes it.
func (b *Bus) Subscribe(prefix string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, prefix: prefix, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every matching handler in subscription order. Handlers run
// on the caller's goroutine without the bus lock held, so they may subscribe
// or publish themselves. Handler errors are joined.
func (b *Bus) Publish(m Message) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if !strings.HasPrefix(m.Topic(), s.prefix) {
			continue
		}
		if err := s.handler(m); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", m.Topic(), err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
