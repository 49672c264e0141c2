// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"duskline/internal/faults"
)

// Load reads and parses the configuration file. Any failure is reported
// as a *faults.ConfigError: fatal at startup, logged-and-ignored by a
// caller doing a hot reload.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &faults.ConfigError{Reason: fmt.Sprintf("read config file %s: %v", path, err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &faults.ConfigError{Reason: fmt.Sprintf("parse config: %v", err)}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &faults.ConfigError{Reason: err.Error()}
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing config fields. Defaults
// mirror the original daemon's hardcoded system-setting fallbacks.
func (c *Config) applyDefaults() {
	if c.Server.HTTP == "" {
		c.Server.HTTP = ":8080"
	}
	if c.DMX.Sink == "" {
		c.DMX.Sink = "mock"
	}
	if c.DMX.BaudRate == 0 {
		c.DMX.BaudRate = 250000
	}
	if c.DMX.DedupeMs == 0 {
		c.DMX.DedupeMs = 250
	}

	s := &c.System
	if s.ControlLoopHz == 0 {
		s.ControlLoopHz = 30
	}
	if s.DimSpeedMs == 0 {
		s.DimSpeedMs = 2000
	}
	if s.HoldThresholdSeconds == 0 {
		s.HoldThresholdSeconds = 1.0
	}
	if s.TapWindowMs == 0 {
		s.TapWindowMs = 500
	}
	if s.TapWindowMs < 200 {
		s.TapWindowMs = 200
	}
	if s.TapWindowMs > 900 {
		s.TapWindowMs = 900
	}
	if s.FullBrightnessSeconds == 0 {
		s.FullBrightnessSeconds = 2.0
	}
	if s.FullCCTSeconds == 0 {
		s.FullCCTSeconds = 3.0
	}
	if s.DefaultEasing == "" {
		s.DefaultEasing = "linear"
	}
	if s.DTWCurve == "" {
		s.DTWCurve = "log"
	}
	if s.DTWMinCCT == 0 {
		s.DTWMinCCT = 1800
	}
	if s.DTWMaxCCT == 0 {
		s.DTWMaxCCT = 4000
	}
	if s.DTWMinBrightness == 0 {
		s.DTWMinBrightness = 0.001
	}
	if s.DTWOverrideTimeoutSecs == 0 {
		s.DTWOverrideTimeoutSecs = 28800
	}
	if s.DTWRefreshSeconds == 0 {
		s.DTWRefreshSeconds = 5.0
	}
	if s.BroadcastThrottleMs == 0 {
		s.BroadcastThrottleMs = 100
	}

	for i := range c.Fixtures {
		f := &c.Fixtures[i]
		if f.Gamma == 0 {
			f.Gamma = 2.2
		}
		if f.CCTMinK == 0 {
			f.CCTMinK = s.DTWMinCCT
		}
		if f.CCTMaxK == 0 {
			f.CCTMaxK = s.DTWMaxCCT
		}
		if f.Footprint == 0 {
			f.Footprint = 1
		}
	}
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.DefaultBrightness == 0 {
			g.DefaultBrightness = 1.0
		}
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if len(c.Fixtures) == 0 {
		return fmt.Errorf("no fixtures defined")
	}

	fixtureIDs := make(map[string]bool, len(c.Fixtures))
	usedChannels := make(map[int]string)

	for _, f := range c.Fixtures {
		if f.ID == "" {
			return fmt.Errorf("fixture with empty id")
		}
		if fixtureIDs[f.ID] {
			return fmt.Errorf("duplicate fixture id %q", f.ID)
		}
		fixtureIDs[f.ID] = true

		if f.DMXPrimaryChannel < 1 || f.DMXPrimaryChannel > 512 {
			return fmt.Errorf("fixture %q: primary channel %d out of range (1-512)", f.ID, f.DMXPrimaryChannel)
		}
		key := fmt.Sprintf("%d:%d", f.DMXUniverse, f.DMXPrimaryChannel)
		if existing, ok := usedChannels[hashKey(f.DMXUniverse, f.DMXPrimaryChannel)]; ok {
			return fmt.Errorf("universe %d channel %d used by both %q and %q", f.DMXUniverse, f.DMXPrimaryChannel, existing, f.ID)
		}
		usedChannels[hashKey(f.DMXUniverse, f.DMXPrimaryChannel)] = f.ID
		_ = key

		if f.DMXSecondaryChannel != nil {
			sc := *f.DMXSecondaryChannel
			if sc < 1 || sc > 512 {
				return fmt.Errorf("fixture %q: secondary channel %d out of range (1-512)", f.ID, sc)
			}
			if existing, ok := usedChannels[hashKey(f.DMXUniverse, sc)]; ok {
				return fmt.Errorf("universe %d channel %d used by both %q and %q", f.DMXUniverse, sc, existing, f.ID)
			}
			usedChannels[hashKey(f.DMXUniverse, sc)] = f.ID
		}

		if f.CCTMinK >= f.CCTMaxK {
			return fmt.Errorf("fixture %q: cct_min_k (%d) must be less than cct_max_k (%d)", f.ID, f.CCTMinK, f.CCTMaxK)
		}
	}

	groupIDs := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("group with empty id")
		}
		if groupIDs[g.ID] {
			return fmt.Errorf("duplicate group id %q", g.ID)
		}
		groupIDs[g.ID] = true

		for _, m := range g.Members {
			if !fixtureIDs[m] {
				return fmt.Errorf("group %q: unknown member fixture %q", g.ID, m)
			}
		}
		if g.CircadianProfileID != "" && !c.hasCircadianProfile(g.CircadianProfileID) {
			return fmt.Errorf("group %q: unknown circadian profile %q", g.ID, g.CircadianProfileID)
		}
	}

	for _, p := range c.CircadianProfiles {
		if len(p.Keyframes) < 2 {
			return fmt.Errorf("circadian profile %q: needs at least 2 keyframes", p.ID)
		}
		for _, kf := range p.Keyframes {
			var h, m int
			if _, err := fmt.Sscanf(kf.TimeOfDay, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
				return fmt.Errorf("circadian profile %q: invalid time_of_day %q, want HH:MM", p.ID, kf.TimeOfDay)
			}
		}
	}

	for _, sc := range c.Scenes {
		for _, v := range sc.Values {
			if !fixtureIDs[v.FixtureID] {
				return fmt.Errorf("scene %q: unknown fixture %q", sc.ID, v.FixtureID)
			}
		}
	}

	for _, sw := range c.Switches {
		switch sw.TargetType {
		case TargetFixture:
			if !fixtureIDs[sw.TargetID] {
				return fmt.Errorf("switch %q: unknown target fixture %q", sw.ID, sw.TargetID)
			}
		case TargetGroup:
			if !groupIDs[sw.TargetID] {
				return fmt.Errorf("switch %q: unknown target group %q", sw.ID, sw.TargetID)
			}
		default:
			return fmt.Errorf("switch %q: target_type must be fixture or group", sw.ID)
		}
	}

	if c.System.DTWMinCCT >= c.System.DTWMaxCCT {
		return fmt.Errorf("system dtw_min_cct (%d) must be less than dtw_max_cct (%d)", c.System.DTWMinCCT, c.System.DTWMaxCCT)
	}

	return nil
}

func hashKey(universe, channel int) int { return universe*1000 + channel }

func (c *Config) hasCircadianProfile(id string) bool {
	for _, p := range c.CircadianProfiles {
		if p.ID == id {
			return true
		}
	}
	return false
}

// FixtureByID returns a fixture's config, or false if unknown.
func (c *Config) FixtureByID(id string) (FixtureConfig, bool) {
	for _, f := range c.Fixtures {
		if f.ID == id {
			return f, true
		}
	}
	return FixtureConfig{}, false
}

// GroupByID returns a group's config, or false if unknown.
func (c *Config) GroupByID(id string) (GroupConfig, bool) {
	for _, g := range c.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return GroupConfig{}, false
}

// GroupsOf returns the IDs of every group a fixture belongs to, in
// config-declaration order (resolver priority depends on this order).
func (c *Config) GroupsOf(fixtureID string) []string {
	var groups []string
	for _, g := range c.Groups {
		for _, m := range g.Members {
			if m == fixtureID {
				groups = append(groups, g.ID)
				break
			}
		}
	}
	return groups
}

// CircadianProfileByID returns a circadian profile, or false if unknown.
func (c *Config) CircadianProfileByID(id string) (CircadianProfile, bool) {
	for _, p := range c.CircadianProfiles {
		if p.ID == id {
			return p, true
		}
	}
	return CircadianProfile{}, false
}

// SceneByID returns a scene, or false if unknown.
func (c *Config) SceneByID(id string) (Scene, bool) {
	for _, s := range c.Scenes {
		if s.ID == id {
			return s, true
		}
	}
	return Scene{}, false
}
