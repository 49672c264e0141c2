// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package api is the unified command handler shared by HTTP, WebSocket,
// and MQTT: every transport parses its own wire format into a Request
// and renders a Response, but the verbs and their semantics live here
// once.
package api

import (
	"encoding/json"
	"time"

	"duskline/internal/config"
	"duskline/internal/metrics"
	"duskline/internal/store"
)

// Request is the unified JSON request format for all protocols.
type Request struct {
	Cmd        string  `json:"cmd"` // set_brightness, set_cct, recall_scene, set_override, clear_override, set_circadian, blackout, status, fixtures, groups
	Target     string  `json:"target,omitempty"`      // fixture or group ID
	TargetType string  `json:"target_type,omitempty"` // "fixture" or "group"
	Brightness float64 `json:"brightness,omitempty"`  // 0..1
	CCTK       float64 `json:"cct_k,omitempty"`
	DurationMs int     `json:"duration_ms,omitempty"`
	SceneID    string  `json:"scene_id,omitempty"`
	Property   string  `json:"property,omitempty"` // "brightness" or "cct", for overrides
	TTLSeconds int     `json:"ttl_seconds,omitempty"`
	Enabled    bool    `json:"enabled,omitempty"`
}

// Response is the unified JSON response format.
type Response struct {
	Type   string      `json:"type"` // ok, error, status, fixtures, groups
	Target string      `json:"target,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handler processes unified API requests against the store.
type Handler struct {
	st *store.Store
}

// NewHandler creates a new API handler.
func NewHandler(st *store.Store) *Handler {
	return &Handler{st: st}
}

// Handle processes a request and returns a response.
func (h *Handler) Handle(req *Request) *Response {
	switch req.Cmd {
	case "set_brightness":
		return h.handleSetBrightness(req)
	case "set_cct":
		return h.handleSetCCT(req)
	case "recall_scene":
		return h.handleRecallScene(req)
	case "set_override":
		return h.handleSetOverride(req)
	case "clear_override":
		return h.handleClearOverride(req)
	case "set_circadian":
		return h.handleSetCircadian(req)
	case "blackout":
		return h.handleBlackout()
	case "status":
		return h.handleStatus()
	case "fixtures":
		return h.handleFixtures()
	case "groups":
		return h.handleGroups()
	default:
		return &Response{Type: "error", Error: "unknown command: " + req.Cmd}
	}
}

// HandleJSON parses JSON and returns JSON response.
func (h *Handler) HandleJSON(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		resp := &Response{Type: "error", Error: "invalid JSON: " + err.Error()}
		out, _ := json.Marshal(resp)
		return out
	}
	resp := h.Handle(&req)
	out, _ := json.Marshal(resp)
	return out
}

func (h *Handler) handleSetBrightness(req *Request) *Response {
	if req.Target == "" {
		return &Response{Type: "error", Error: "target required"}
	}
	var d *time.Duration
	if req.DurationMs > 0 {
		dur := time.Duration(req.DurationMs) * time.Millisecond
		d = &dur
	}

	var err error
	if req.TargetType == string(config.TargetGroup) {
		_, err = h.st.SetGroupBrightness(req.Target, req.Brightness, d, store.Easing(h.st.Config().System.DefaultEasing), d == nil)
	} else {
		err = h.st.SetFixtureBrightness(req.Target, req.Brightness, d, store.Easing(h.st.Config().System.DefaultEasing), d == nil)
	}
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("set_brightness").Inc()
		return &Response{Type: "error", Target: req.Target, Error: err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues("set_brightness").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleSetCCT(req *Request) *Response {
	if req.Target == "" {
		return &Response{Type: "error", Error: "target required"}
	}
	var d *time.Duration
	if req.DurationMs > 0 {
		dur := time.Duration(req.DurationMs) * time.Millisecond
		d = &dur
	}

	var err error
	if req.TargetType == string(config.TargetGroup) {
		_, err = h.st.SetGroupCCT(req.Target, req.CCTK, d, store.Easing(h.st.Config().System.DefaultEasing), d == nil)
	} else {
		err = h.st.SetFixtureCCT(req.Target, req.CCTK, d, store.Easing(h.st.Config().System.DefaultEasing), d == nil)
	}
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("set_cct").Inc()
		return &Response{Type: "error", Target: req.Target, Error: err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues("set_cct").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleRecallScene(req *Request) *Response {
	if req.SceneID == "" {
		return &Response{Type: "error", Error: "scene_id required"}
	}
	if err := h.st.RecallScene(req.SceneID); err != nil {
		metrics.ErrorsTotal.WithLabelValues("recall_scene").Inc()
		return &Response{Type: "error", Target: req.SceneID, Error: err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues("recall_scene").Inc()
	return &Response{Type: "ok", Target: req.SceneID}
}

func (h *Handler) handleSetOverride(req *Request) *Response {
	if req.Target == "" || req.Property == "" {
		return &Response{Type: "error", Error: "target and property required"}
	}
	targetType := config.TargetFixture
	if req.TargetType == string(config.TargetGroup) {
		targetType = config.TargetGroup
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(h.st.Config().System.DTWOverrideTimeoutSecs) * time.Second
	}
	value := req.Brightness
	if req.Property == "cct" {
		value = req.CCTK
	}
	h.st.SetOverride(targetType, req.Target, req.Property, value, ttl, "api")
	metrics.CommandsTotal.WithLabelValues("set_override").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleClearOverride(req *Request) *Response {
	if req.Target == "" || req.Property == "" {
		return &Response{Type: "error", Error: "target and property required"}
	}
	targetType := config.TargetFixture
	if req.TargetType == string(config.TargetGroup) {
		targetType = config.TargetGroup
	}
	h.st.ClearOverride(targetType, req.Target, req.Property)
	metrics.CommandsTotal.WithLabelValues("clear_override").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleSetCircadian(req *Request) *Response {
	if req.Target == "" {
		return &Response{Type: "error", Error: "target required"}
	}
	var cct *float64
	if req.CCTK > 0 {
		cct = &req.CCTK
	}
	if err := h.st.SetGroupCircadian(req.Target, req.Enabled, req.Brightness, cct); err != nil {
		metrics.ErrorsTotal.WithLabelValues("set_circadian").Inc()
		return &Response{Type: "error", Target: req.Target, Error: err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues("set_circadian").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleBlackout() *Response {
	for _, id := range h.st.FixtureIDs() {
		if err := h.st.SetFixtureBrightness(id, 0, nil, store.EaseLinear, false); err != nil {
			metrics.ErrorsTotal.WithLabelValues("blackout").Inc()
		}
	}
	metrics.CommandsTotal.WithLabelValues("blackout").Inc()
	return &Response{Type: "ok"}
}

// statusResponse is a typed status payload, avoiding a map allocation
// for the common case.
type statusResponse struct {
	FixtureCount int `json:"fixture_count"`
	GroupCount   int `json:"group_count"`
}

func (h *Handler) handleStatus() *Response {
	cfg := h.st.Config()
	return &Response{Type: "status", Data: statusResponse{
		FixtureCount: len(cfg.Fixtures),
		GroupCount:   len(cfg.Groups),
	}}
}

func (h *Handler) handleFixtures() *Response {
	ids := h.st.FixtureIDs()
	out := make(map[string]store.Snapshot, len(ids))
	for _, id := range ids {
		if snap, ok := h.st.FixtureSnapshot(id); ok {
			out[id] = snap
		}
	}
	return &Response{Type: "fixtures", Data: out}
}

func (h *Handler) handleGroups() *Response {
	cfg := h.st.Config()
	out := make(map[string]store.GroupRuntime, len(cfg.Groups))
	for _, g := range cfg.Groups {
		if snap, ok := h.st.GroupSnapshot(g.ID); ok {
			out[g.ID] = snap
		}
	}
	return &Response{Type: "groups", Data: out}
}
