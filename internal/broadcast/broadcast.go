// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package broadcast is the change-notification channel shared by the
// HTTP/WebSocket server, the MQTT bridge and the metrics tap. It
// generalizes the DMX gateway's subscriber-channel-of-bytes pattern into
// a typed publish/subscribe bus with per-(kind,target) throttling and
// per-subscriber failure isolation.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"duskline/internal/faults"
	"duskline/internal/metrics"
)

// Kind names an event category.
type Kind string

const (
	FixtureStateChanged Kind = "fixture_state_changed"
	GroupStateChanged   Kind = "group_state_changed"
	SceneRecalled       Kind = "scene_recalled"
	CircadianChanged    Kind = "circadian_changed"
	SystemStatus        Kind = "system_status"
	SwitchDiscovered    Kind = "switch_discovered"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      Kind        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TargetID  string      `json:"target_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type subscriber struct {
	ch               chan Event
	filter           map[Kind]bool // nil = all kinds
	consecutiveDrops int
}

// maxConsecutiveDrops bounds how many back-to-back full-channel sends a
// subscriber tolerates before it is disconnected outright, per the
// "single subscriber failure must disconnect only that subscriber"
// contract: a client that never drains its channel must not keep
// costing every future Publish a wasted send attempt forever.
const maxConsecutiveDrops = 5

// Broadcaster fans events out to subscribers, dropping (not blocking on)
// any subscriber whose channel is full, and throttling repeat events for
// the same (kind, target) pair to no more than one per throttle window.
// A subscriber that fails maxConsecutiveDrops sends in a row is
// unsubscribed and its channel closed; a single chronically slow
// reader never keeps paying for space in every future fan-out.
type Broadcaster struct {
	logger    *slog.Logger
	throttle  time.Duration
	mu        sync.RWMutex
	subs      map[string]*subscriber
	nextID    int
	lastSent  map[string]time.Time
	dropCount uint64
}

// New creates a Broadcaster with the given default throttle window.
func New(throttle time.Duration, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:   logger,
		throttle: throttle,
		subs:     make(map[string]*subscriber),
		lastSent: make(map[string]time.Time),
	}
}

// Subscribe registers a new subscriber, optionally filtered to a set of
// kinds (nil/empty means "all kinds"). Returns the subscription id
// (needed for Unsubscribe) and the channel to read events from.
func (b *Broadcaster) Subscribe(kinds ...Kind) (string, chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := "sub-" + itoa(b.nextID)
	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}
	ch := make(chan Event, 64)
	b.subs[id] = &subscriber{ch: ch, filter: filter}
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Publish emits an event, subject to per-(kind,target) throttling. A
// slow subscriber never blocks delivery to the rest; its event is
// dropped and a counter incremented instead, and the subscriber is
// disconnected once it has failed maxConsecutiveDrops sends in a row.
func (b *Broadcaster) Publish(kind Kind, targetID string, payload interface{}) {
	now := time.Now()
	key := string(kind) + "|" + targetID

	b.mu.Lock()
	if last, ok := b.lastSent[key]; ok && now.Sub(last) < b.throttle {
		b.mu.Unlock()
		return
	}
	b.lastSent[key] = now
	type target struct {
		id  string
		sub *subscriber
	}
	subs := make([]target, 0, len(b.subs))
	for id, sub := range b.subs {
		if sub.filter == nil || sub.filter[kind] {
			subs = append(subs, target{id, sub})
		}
	}
	b.mu.Unlock()

	event := Event{Type: kind, Timestamp: now, TargetID: targetID, Payload: payload}
	for _, t := range subs {
		select {
		case t.sub.ch <- event:
			b.mu.Lock()
			t.sub.consecutiveDrops = 0
			b.mu.Unlock()
		default:
			b.mu.Lock()
			b.dropCount++
			disconnected := false
			if sub, ok := b.subs[t.id]; ok {
				sub.consecutiveDrops++
				if sub.consecutiveDrops >= maxConsecutiveDrops {
					delete(b.subs, t.id)
					close(sub.ch)
					disconnected = true
				}
			}
			b.mu.Unlock()
			metrics.BroadcastDroppedTotal.Inc()
			if b.logger != nil {
				err := &faults.BroadcastDropError{SubscriberID: t.id}
				if disconnected {
					b.logger.Warn("subscriber disconnected after repeated slow sends", "error", err, "kind", kind, "target", targetID)
				} else {
					b.logger.Warn("broadcast dropped, subscriber too slow", "error", err, "kind", kind, "target", targetID)
				}
			}
		}
	}
}

// DropCount returns the number of events dropped for slow subscribers.
func (b *Broadcaster) DropCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropCount
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
