// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"duskline/internal/broadcast"
	"duskline/internal/config"
	"duskline/internal/store"
)

func intp(v int) *int { return &v }

func testHandler(t *testing.T) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		System: config.SystemSettings{DefaultEasing: "linear", DTWOverrideTimeoutSecs: 60},
		Fixtures: []config.FixtureConfig{
			{ID: "porch", DMXUniverse: 0, DMXPrimaryChannel: 1, Kind: config.FixtureSimpleDimmable},
			{ID: "office", DMXUniverse: 0, DMXPrimaryChannel: 2, DMXSecondaryChannel: intp(3), Kind: config.FixtureTunableWhite, CCTMinK: 2200, CCTMaxK: 6500},
		},
		Groups: []config.GroupConfig{
			{ID: "downstairs", Members: []string{"porch", "office"}},
		},
		Scenes: []config.Scene{
			{ID: "evening", Values: []config.SceneValue{{FixtureID: "porch", TargetBrightness1000: intp(500)}}},
		},
	}
	st := store.New(cfg, broadcast.New(0, logger), logger)
	return NewHandler(st)
}

func TestHandleSetBrightnessFixture(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_brightness", Target: "porch", Brightness: 0.7})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.7 {
		t.Errorf("expected brightness 0.7 applied, got %f", snap.GoalBrightness)
	}
}

func TestHandleSetBrightnessGroup(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_brightness", Target: "downstairs", TargetType: "group", Brightness: 0.4})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.4 {
		t.Errorf("expected group fanout to set porch brightness 0.4, got %f", snap.GoalBrightness)
	}
}

func TestHandleSetBrightnessMissingTarget(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_brightness", Brightness: 0.5})
	if resp.Type != "error" {
		t.Errorf("expected error response for missing target, got %+v", resp)
	}
}

func TestHandleSetBrightnessUnknownFixture(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_brightness", Target: "nonexistent", Brightness: 0.5})
	if resp.Type != "error" {
		t.Errorf("expected error response for unknown fixture, got %+v", resp)
	}
}

func TestHandleSetCCTFixture(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_cct", Target: "office", CCTK: 3000})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.FixtureSnapshot("office")
	if snap.GoalCCTK != 3000 {
		t.Errorf("expected cct 3000 applied, got %f", snap.GoalCCTK)
	}
}

func TestHandleRecallSceneOK(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "recall_scene", SceneID: "evening"})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0.5 {
		t.Errorf("expected scene recall to set porch brightness 0.5, got %f", snap.GoalBrightness)
	}
}

func TestHandleRecallSceneMissingID(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "recall_scene"})
	if resp.Type != "error" {
		t.Errorf("expected error for missing scene_id, got %+v", resp)
	}
}

func TestHandleRecallSceneUnknown(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "recall_scene", SceneID: "nonexistent"})
	if resp.Type != "error" {
		t.Errorf("expected error for unknown scene, got %+v", resp)
	}
}

func TestHandleSetOverrideBrightness(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_override", Target: "porch", Property: "brightness", Brightness: 0.9, TTLSeconds: 30})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
}

func TestHandleSetOverrideMissingFields(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_override", Target: "porch"})
	if resp.Type != "error" {
		t.Errorf("expected error for missing property, got %+v", resp)
	}
}

func TestHandleSetOverrideDefaultsTTLFromSystemConfig(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_override", Target: "office", Property: "cct", CCTK: 4000})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	v, ok := h.st.FixtureCCTOverride("office")
	if !ok || v != 4000 {
		t.Errorf("expected a cct override of 4000 to be recorded, got %f ok=%v", v, ok)
	}
	if n := h.st.SweepExpiredOverrides(time.Now().Add(59 * time.Second)); n != 0 {
		t.Errorf("expected the 60s default ttl to keep the override at 59s, swept %d", n)
	}
	if n := h.st.SweepExpiredOverrides(time.Now().Add(61 * time.Second)); n != 1 {
		t.Errorf("expected the 60s default ttl to expire the override by 61s, swept %d", n)
	}
}

func TestHandleClearOverride(t *testing.T) {
	h := testHandler(t)
	h.Handle(&Request{Cmd: "set_override", Target: "office", Property: "cct", CCTK: 4000})
	resp := h.Handle(&Request{Cmd: "clear_override", Target: "office", Property: "cct"})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	if _, ok := h.st.FixtureCCTOverride("office"); ok {
		t.Error("expected override to be cleared")
	}
}

func TestHandleSetCircadian(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "set_circadian", Target: "downstairs", Enabled: true, Brightness: 0.8, CCTK: 3500})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.GroupSnapshot("downstairs")
	if !snap.CircadianEnabled {
		t.Error("expected circadian enabled on group")
	}
}

func TestHandleBlackoutZeroesAllFixtures(t *testing.T) {
	h := testHandler(t)
	h.Handle(&Request{Cmd: "set_brightness", Target: "porch", Brightness: 1.0})
	resp := h.Handle(&Request{Cmd: "blackout"})
	if resp.Type != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	snap, _ := h.st.FixtureSnapshot("porch")
	if snap.GoalBrightness != 0 {
		t.Errorf("expected blackout to zero porch brightness, got %f", snap.GoalBrightness)
	}
}

func TestHandleStatus(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "status"})
	if resp.Type != "status" {
		t.Fatalf("expected status response, got %+v", resp)
	}
	data, ok := resp.Data.(statusResponse)
	if !ok {
		t.Fatalf("expected statusResponse payload, got %T", resp.Data)
	}
	if data.FixtureCount != 2 || data.GroupCount != 1 {
		t.Errorf("expected counts 2/1, got %+v", data)
	}
}

func TestHandleFixtures(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "fixtures"})
	if resp.Type != "fixtures" {
		t.Fatalf("expected fixtures response, got %+v", resp)
	}
	data, ok := resp.Data.(map[string]store.Snapshot)
	if !ok || len(data) != 2 {
		t.Errorf("expected a snapshot map with 2 entries, got %+v", resp.Data)
	}
}

func TestHandleGroups(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "groups"})
	if resp.Type != "groups" {
		t.Fatalf("expected groups response, got %+v", resp)
	}
	data, ok := resp.Data.(map[string]store.GroupRuntime)
	if !ok || len(data) != 1 {
		t.Errorf("expected a group runtime map with 1 entry, got %+v", resp.Data)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h := testHandler(t)
	resp := h.Handle(&Request{Cmd: "not_a_real_command"})
	if resp.Type != "error" {
		t.Errorf("expected error for unknown command, got %+v", resp)
	}
}

func TestHandleJSONRoundTrip(t *testing.T) {
	h := testHandler(t)
	out := h.HandleJSON([]byte(`{"cmd":"set_brightness","target":"porch","brightness":0.6}`))
	if out == nil {
		t.Fatal("expected non-nil JSON output")
	}
}

func TestHandleJSONInvalidInput(t *testing.T) {
	h := testHandler(t)
	out := h.HandleJSON([]byte(`not json`))
	if out == nil {
		t.Fatal("expected non-nil JSON output for invalid input")
	}
}
