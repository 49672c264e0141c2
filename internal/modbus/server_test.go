// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package modbus

import (
	"io"
	"log/slog"
	"testing"

	"duskline/internal/broadcast"
	"duskline/internal/config"
	"duskline/internal/store"
)

func testModbusServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
			{ID: "office", DMXUniverse: 0, DMXPrimaryChannel: 2, DMXSecondaryChannel: func() *int { v := 3; return &v }(), Kind: config.FixtureTunableWhite, CCTMinK: 2200, CCTMaxK: 6500},
		},
	}
	st := store.New(cfg, broadcast.New(0, logger), logger)
	s := NewServer(&Config{Port: ":15020"}, st, logger)
	s.fixtureIDs = []string{"porch", "office"}
	return s
}

func TestFixtureAtMapsRegistersToFixturesAndChannel(t *testing.T) {
	s := testModbusServer(t)

	id, isCCT, ok := s.fixtureAt(0)
	if !ok || id != "porch" || isCCT {
		t.Errorf("expected register 0 to map to porch brightness, got id=%s isCCT=%v ok=%v", id, isCCT, ok)
	}
	id, isCCT, ok = s.fixtureAt(3)
	if !ok || id != "office" || !isCCT {
		t.Errorf("expected register 3 to map to office cct, got id=%s isCCT=%v ok=%v", id, isCCT, ok)
	}
}

func TestFixtureAtOutOfRange(t *testing.T) {
	s := testModbusServer(t)
	if _, _, ok := s.fixtureAt(99); ok {
		t.Error("expected an out-of-range register to report not-ok")
	}
}

func TestRegisterCountTracksFixtureCount(t *testing.T) {
	s := testModbusServer(t)
	if s.registerCount() != 4 {
		t.Errorf("expected 2 registers per fixture across 2 fixtures = 4, got %d", s.registerCount())
	}
}

func TestWriteRegisterBrightnessScalesFrom0To1000(t *testing.T) {
	s := testModbusServer(t)
	if err := s.writeRegister(0, 750); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := s.st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.75 {
		t.Errorf("expected register value 750 to scale to brightness 0.75, got %f", snap.GoalBrightness)
	}
}

func TestWriteRegisterCCTSetsKelvinDirectly(t *testing.T) {
	s := testModbusServer(t)
	if err := s.writeRegister(3, 4000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := s.st.FixtureSnapshot("office")
	if snap.GoalCCTK != 4000 {
		t.Errorf("expected cct register to set kelvin directly, got %f", snap.GoalCCTK)
	}
}

func TestWriteRegisterOutOfRangeFails(t *testing.T) {
	s := testModbusServer(t)
	if err := s.writeRegister(99, 500); err == nil {
		t.Error("expected an error writing to an out-of-range register")
	}
}
