// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package switches drives the physical-input state machines: debounced
// simple toggles, retractive press/hold/dim buttons, absolute rotary
// dimmers, and a reserved hook for composite paddles. Each switch reads
// hardware once per tick and emits store mutations plus throttled
// broadcasts.
package switches

import (
	"log/slog"
	"time"

	"duskline/internal/broadcast"
	"duskline/internal/config"
	"duskline/internal/faults"
	"duskline/internal/metrics"
	"duskline/internal/store"
)

// InputReader samples raw hardware values for a switch's pins.
type InputReader interface {
	ReadDigital(pin int) (bool, error)
	ReadAnalog(pin int) (float64, error)
}

// runtimeState is the per-switch memory carried between ticks.
type runtimeState struct {
	lastDigital    *bool
	lastAnalog     *float64
	lastChangeTime time.Time
	pressStart     time.Time
	isPressed      bool
	isDimming      bool
	dimDirection   int
	dimStartBright float64
	wasOnAtPress   bool
	lastTapTime    time.Time
	awaitingTap    bool
}

// Engine drives every configured switch's state machine once per tick.
type Engine struct {
	logger *slog.Logger
	pub    *broadcast.Broadcaster
	st     *store.Store
	reader InputReader

	holdThreshold time.Duration
	dimSpeed      time.Duration
	tapWindow     time.Duration
	throttle      time.Duration

	states map[string]*runtimeState

	lastBroadcast map[string]time.Time

	eventsProcessed uint64
}

// New builds an Engine from system settings and the store it mutates.
func New(sys config.SystemSettings, reader InputReader, s *store.Store, pub *broadcast.Broadcaster, logger *slog.Logger) *Engine {
	return &Engine{
		logger:        logger,
		pub:           pub,
		st:            s,
		reader:        reader,
		holdThreshold: time.Duration(sys.HoldThresholdSeconds * float64(time.Second)),
		dimSpeed:      time.Duration(sys.DimSpeedMs) * time.Millisecond,
		tapWindow:     time.Duration(sys.TapWindowMs) * time.Millisecond,
		throttle:      time.Duration(sys.BroadcastThrottleMs) * time.Millisecond,
		states:        make(map[string]*runtimeState),
		lastBroadcast: make(map[string]time.Time),
	}
}

// EventsProcessed returns the cumulative count of accepted (debounced)
// state transitions, for metrics.
func (e *Engine) EventsProcessed() uint64 { return e.eventsProcessed }

// RefreshSystemSettings installs newly reloaded tunables (dim_speed_ms,
// hold_threshold_seconds, tap_window_ms, broadcast_throttle_ms) without
// disturbing any switch's in-flight runtime state. It is called from a
// config-reload periodic job on the same goroutine as Process, so no
// additional locking is needed.
func (e *Engine) RefreshSystemSettings(sys config.SystemSettings) {
	e.holdThreshold = time.Duration(sys.HoldThresholdSeconds * float64(time.Second))
	e.dimSpeed = time.Duration(sys.DimSpeedMs) * time.Millisecond
	e.tapWindow = time.Duration(sys.TapWindowMs) * time.Millisecond
	e.throttle = time.Duration(sys.BroadcastThrottleMs) * time.Millisecond
}

// Process reads and drives every switch's state machine for one tick.
func (e *Engine) Process(now time.Time, switches []config.SwitchConfig, groups []config.GroupConfig) {
	groupByID := make(map[string]config.GroupConfig, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	for _, sw := range switches {
		st, ok := e.states[sw.ID]
		if !ok {
			st = &runtimeState{dimDirection: 1}
			e.states[sw.ID] = st
		}
		e.processOne(now, sw, st, groupByID)
	}
}

func (e *Engine) processOne(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	before := e.eventsProcessed
	defer func() {
		if e.eventsProcessed != before {
			metrics.SwitchEventsTotal.WithLabelValues(string(sw.Model)).Inc()
		}
	}()
	switch sw.Model {
	case config.SwitchSimple:
		e.processSimple(now, sw, st, groups)
	case config.SwitchRetractive:
		e.processRetractive(now, sw, st, groups)
	case config.SwitchRotaryAbsolute:
		e.processRotary(now, sw, st, groups)
	case config.SwitchPaddleComposite:
		// Reserved: multi-button composite paddles are not yet driven
		// by a dedicated state machine.
	}
}

func (e *Engine) readDigital(sw config.SwitchConfig) (bool, bool) {
	if sw.DigitalPin == nil {
		return false, false
	}
	v, err := e.reader.ReadDigital(*sw.DigitalPin)
	if err != nil {
		e.logger.Warn("switch digital read failed", "switch", sw.ID,
			"error", &faults.HardwareTransientError{Op: "read_digital", Err: err})
		return false, false
	}
	if sw.InvertReading {
		v = !v
	}
	return v, true
}

func (e *Engine) readAnalog(sw config.SwitchConfig) (float64, bool) {
	if sw.AnalogPin == nil {
		return 0, false
	}
	v, err := e.reader.ReadAnalog(*sw.AnalogPin)
	if err != nil {
		e.logger.Warn("switch analog read failed", "switch", sw.ID,
			"error", &faults.HardwareTransientError{Op: "read_analog", Err: err})
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}

func (e *Engine) debounced(sw config.SwitchConfig, st *runtimeState, now time.Time) bool {
	debounce := time.Duration(sw.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return now.Sub(st.lastChangeTime) < debounce
}

func groupDefaults(groups map[string]config.GroupConfig, groupID string) (brightness float64, cctK *int) {
	g, ok := groups[groupID]
	if !ok {
		return 1.0, nil
	}
	if g.DefaultBrightness <= 0 {
		return 1.0, g.DefaultCCTK
	}
	return g.DefaultBrightness, g.DefaultCCTK
}

// currentBrightness reads a target's live brightness, 0 if it cannot be
// determined (fixture unknown, or group with no live member).
func (e *Engine) currentBrightness(sw config.SwitchConfig) float64 {
	switch sw.TargetType {
	case config.TargetFixture:
		snap, ok := e.st.FixtureSnapshot(sw.TargetID)
		if !ok {
			return 0
		}
		return snap.CurrentBrightness
	case config.TargetGroup:
		for _, id := range e.st.FixtureIDs() {
			for _, gid := range e.st.GroupsOf(id) {
				if gid != sw.TargetID {
					continue
				}
				if snap, ok := e.st.FixtureSnapshot(id); ok && snap.CurrentBrightness > 0.01 {
					return snap.CurrentBrightness
				}
			}
		}
	}
	return 0
}

func (e *Engine) broadcastTarget(sw config.SwitchConfig) {
	switch sw.TargetType {
	case config.TargetFixture:
		e.pub.Publish(broadcast.FixtureStateChanged, sw.TargetID, nil)
	case config.TargetGroup:
		e.pub.Publish(broadcast.GroupStateChanged, sw.TargetID, nil)
	}
}

// broadcastTargetThrottled is used during continuous dim-hold updates so
// a WebSocket client isn't flooded with one event per tick.
func (e *Engine) broadcastTargetThrottled(sw config.SwitchConfig, now time.Time) {
	key := string(sw.TargetType) + ":" + sw.TargetID
	if now.Sub(e.lastBroadcast[key]) < e.throttle {
		return
	}
	e.lastBroadcast[key] = now
	e.broadcastTarget(sw)
}
