// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package switches

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"duskline/internal/broadcast"
	"duskline/internal/config"
	"duskline/internal/store"
)

type fakeReader struct {
	digital map[int]bool
	analog  map[int]float64
}

func (r *fakeReader) ReadDigital(pin int) (bool, error) { return r.digital[pin], nil }
func (r *fakeReader) ReadAnalog(pin int) (float64, error) { return r.analog[pin], nil }

func testStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store.New(cfg, broadcast.New(0, logger), logger)
}

func intp(v int) *int { return &v }

func TestProcessSimpleFixtureRisingEdge(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemSettings{},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchSimple, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(1)},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{1: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	now := time.Now()
	e.Process(now, cfg.Switches, cfg.Groups)
	snap, _ := st.FixtureSnapshot("porch")
	if snap.CurrentBrightness != 0 {
		t.Fatalf("expected no change on first read establishing baseline, got %f", snap.CurrentBrightness)
	}

	reader.digital[1] = true
	e.Process(now.Add(time.Second), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 1.0 {
		t.Errorf("expected rising edge to set brightness to 1.0, got %f", snap.GoalBrightness)
	}

	reader.digital[1] = false
	e.Process(now.Add(2*time.Second), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0 {
		t.Errorf("expected falling edge to set brightness to 0, got %f", snap.GoalBrightness)
	}
}

func TestProcessSimpleDebouncesRapidToggle(t *testing.T) {
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchSimple, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(1), DebounceMs: 500},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{1: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	now := time.Now()
	e.Process(now, cfg.Switches, cfg.Groups) // baseline read, also counts as an edge from nil

	reader.digital[1] = true
	e.Process(now.Add(600*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ := st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 1.0 {
		t.Fatalf("expected toggle past the debounce window to apply, got %f", snap.GoalBrightness)
	}

	reader.digital[1] = false
	e.Process(now.Add(650*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 1.0 {
		t.Errorf("expected rapid re-toggle inside the debounce window to be ignored, got %f", snap.GoalBrightness)
	}

	e.Process(now.Add(1200*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0 {
		t.Errorf("expected toggle past the debounce window to finally apply, got %f", snap.GoalBrightness)
	}
}

func TestProcessSimpleGroupUsesDefaults(t *testing.T) {
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "lamp", DMXUniverse: 0, DMXPrimaryChannel: 1, DMXSecondaryChannel: intp(2), Kind: config.FixtureTunableWhite, CCTMinK: 2200, CCTMaxK: 6500},
		},
		Groups: []config.GroupConfig{
			{ID: "living", Members: []string{"lamp"}, DefaultBrightness: 0.8, DefaultCCTK: intp(3000)},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchSimple, TargetType: config.TargetGroup, TargetID: "living", DigitalPin: intp(1)},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{1: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	now := time.Now()
	e.Process(now, cfg.Switches, cfg.Groups)
	reader.digital[1] = true
	e.Process(now.Add(time.Second), cfg.Switches, cfg.Groups)

	snap, _ := st.FixtureSnapshot("lamp")
	if snap.GoalBrightness != 0.8 {
		t.Errorf("expected group default brightness 0.8 applied, got %f", snap.GoalBrightness)
	}
	if snap.GoalCCTK != 3000 {
		t.Errorf("expected group default cct 3000 applied, got %f", snap.GoalCCTK)
	}
}

func TestProcessRotaryMapsAnalogToBrightness(t *testing.T) {
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "rot1", Model: config.SwitchRotaryAbsolute, TargetType: config.TargetFixture, TargetID: "porch", AnalogPin: intp(1)},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{analog: map[int]float64{1: 0.3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	e.Process(time.Now(), cfg.Switches, cfg.Groups)
	d := 200 * time.Millisecond
	st.Tick(time.Now().Add(d))

	snap, _ := st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.3 {
		t.Errorf("expected goal brightness 0.3 from analog reading, got %f", snap.GoalBrightness)
	}
}

func TestProcessRotaryIgnoresSubThresholdNoise(t *testing.T) {
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "rot1", Model: config.SwitchRotaryAbsolute, TargetType: config.TargetFixture, TargetID: "porch", AnalogPin: intp(1)},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{analog: map[int]float64{1: 0.3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	now := time.Now()
	e.Process(now, cfg.Switches, cfg.Groups)
	reader.analog[1] = 0.305
	e.Process(now.Add(time.Second), cfg.Switches, cfg.Groups)

	snap, _ := st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.3 {
		t.Errorf("expected sub-threshold analog noise to be ignored, got %f", snap.GoalBrightness)
	}
}

// TestProcessRetractiveTapTogglesFixture is scenario S1: a short press
// and release toggles the target without ever entering dim state.
func TestProcessRetractiveTapTogglesFixture(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemSettings{HoldThresholdSeconds: 1.0, DimSpeedMs: 2000},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchRetractive, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(3), DebounceMs: 50},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{3: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := broadcast.New(0, logger)
	subID, ch := pub.Subscribe(broadcast.FixtureStateChanged)
	defer pub.Unsubscribe(subID)
	e := New(cfg.System, reader, st, pub, logger)

	t0 := time.Now()
	e.Process(t0, cfg.Switches, cfg.Groups) // baseline LOW at t=0

	reader.digital[3] = true
	e.Process(t0.Add(10*time.Millisecond), cfg.Switches, cfg.Groups) // HIGH at t=10ms

	reader.digital[3] = false
	e.Process(t0.Add(80*time.Millisecond), cfg.Switches, cfg.Groups) // LOW at t=80ms

	snap, _ := st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 1.0 {
		t.Fatalf("expected tap to toggle brightness to 1.0, got %f", snap.GoalBrightness)
	}
	if snap.CurrentBrightness != 1.0 {
		t.Errorf("expected tap to apply immediately (no transition), got current %f", snap.CurrentBrightness)
	}

	select {
	case <-ch:
	default:
		t.Error("expected exactly one fixture_state_changed broadcast")
	}
	select {
	case ev := <-ch:
		t.Errorf("expected no second broadcast, got %+v", ev)
	default:
	}
}

// TestProcessRetractiveHoldDimsUp is scenario S2: holding past the hold
// threshold ramps brightness up at dim_speed_ms, and release mid-dim
// applies no further change and does not toggle.
func TestProcessRetractiveHoldDimsUp(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemSettings{HoldThresholdSeconds: 1.0, DimSpeedMs: 2000},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchRetractive, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(3), DebounceMs: 5},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{3: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	t0 := time.Now()
	e.Process(t0, cfg.Switches, cfg.Groups) // baseline LOW

	reader.digital[3] = true
	e.Process(t0.Add(time.Millisecond), cfg.Switches, cfg.Groups) // press edge, pressStart ~= t0+1ms
	pressStart := t0.Add(time.Millisecond)

	e.Process(pressStart.Add(1500*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ := st.FixtureSnapshot("porch")
	if diff := snap.CurrentBrightness - 0.25; diff < -0.01 || diff > 0.01 {
		t.Errorf("expected brightness ~0.25 at t=1.5s into hold, got %f", snap.CurrentBrightness)
	}

	e.Process(pressStart.Add(3*time.Second), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.CurrentBrightness != 1.0 {
		t.Errorf("expected brightness 1.0 at t=3s into hold, got %f", snap.CurrentBrightness)
	}

	reader.digital[3] = false
	e.Process(pressStart.Add(3*time.Second+5*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ = st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 1.0 {
		t.Errorf("expected release after dimming to leave brightness unchanged at 1.0, got %f", snap.GoalBrightness)
	}
}

// TestProcessRetractiveHoldDimsDownFromOn covers the opposite dim
// direction: a fixture already on dims toward zero while held.
func TestProcessRetractiveHoldDimsDownFromOn(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemSettings{HoldThresholdSeconds: 1.0, DimSpeedMs: 2000},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchRetractive, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(3), DebounceMs: 5},
		},
	}
	st := testStore(t, cfg)
	zero := time.Duration(0)
	if err := st.SetFixtureBrightness("porch", 1.0, &zero, store.EaseLinear, false); err != nil {
		t.Fatalf("seed brightness: %v", err)
	}
	reader := &fakeReader{digital: map[int]bool{3: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	t0 := time.Now()
	e.Process(t0, cfg.Switches, cfg.Groups)

	reader.digital[3] = true
	e.Process(t0.Add(time.Millisecond), cfg.Switches, cfg.Groups)
	pressStart := t0.Add(time.Millisecond)

	e.Process(pressStart.Add(3100*time.Millisecond), cfg.Switches, cfg.Groups)
	snap, _ := st.FixtureSnapshot("porch")
	if snap.CurrentBrightness != 0 {
		t.Errorf("expected hold-to-dim-down to clamp at 0, got %f", snap.CurrentBrightness)
	}
}

// TestProcessRetractiveDoubleTapRecallsScene covers the double-tap
// collaborator: two releases within tap_window_ms recall the configured
// scene instead of leaving the second tap's plain toggle in place.
func TestProcessRetractiveDoubleTapRecallsScene(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemSettings{HoldThresholdSeconds: 1.0, DimSpeedMs: 2000, TapWindowMs: 500},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Scenes: []config.Scene{
			{ID: "movie", Values: []config.SceneValue{{FixtureID: "porch", TargetBrightness1000: intp(700)}}},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchRetractive, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(3), DebounceMs: 5, DoubleTapSceneID: "movie"},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{3: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	t0 := time.Now()
	e.Process(t0, cfg.Switches, cfg.Groups) // baseline LOW

	reader.digital[3] = true
	e.Process(t0.Add(10*time.Millisecond), cfg.Switches, cfg.Groups) // tap 1 press
	reader.digital[3] = false
	e.Process(t0.Add(30*time.Millisecond), cfg.Switches, cfg.Groups) // tap 1 release

	reader.digital[3] = true
	e.Process(t0.Add(50*time.Millisecond), cfg.Switches, cfg.Groups) // tap 2 press
	reader.digital[3] = false
	e.Process(t0.Add(70*time.Millisecond), cfg.Switches, cfg.Groups) // tap 2 release, within tap window

	snap, _ := st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.7 {
		t.Errorf("expected double tap to recall scene brightness 0.7, got %f", snap.GoalBrightness)
	}
}

func TestEventsProcessedCounts(t *testing.T) {
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
		},
		Switches: []config.SwitchConfig{
			{ID: "sw1", Model: config.SwitchSimple, TargetType: config.TargetFixture, TargetID: "porch", DigitalPin: intp(1)},
		},
	}
	st := testStore(t, cfg)
	reader := &fakeReader{digital: map[int]bool{1: false}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg.System, reader, st, broadcast.New(0, logger), logger)

	now := time.Now()
	e.Process(now, cfg.Switches, cfg.Groups)
	reader.digital[1] = true
	e.Process(now.Add(time.Second), cfg.Switches, cfg.Groups)

	if e.EventsProcessed() != 2 {
		t.Errorf("expected 2 events processed (the baseline read plus the rising edge), got %d", e.EventsProcessed())
	}
}
