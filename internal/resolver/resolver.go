// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package resolver composes each fixture's effective brightness and CCT
// from its own setpoint, its groups' multipliers and circadian state,
// any active override, and the dim-to-warm engine, per the priority
// cascade in the original daemon's controller.
package resolver

import (
	"duskline/internal/config"
	"duskline/internal/dtw"
	"duskline/internal/metrics"
	"duskline/internal/store"
)

// CCTSource identifies which rule in the priority cascade produced the
// resolved CCT, for metrics and diagnostics.
type CCTSource string

const (
	SourceOverride  CCTSource = "override"
	SourceCircadian CCTSource = "circadian"
	SourceManual    CCTSource = "manual"
	SourceDTW       CCTSource = "dtw"
	SourceDefault   CCTSource = "default"
)

// Resolved is one fixture's effective setpoint for this tick.
type Resolved struct {
	FixtureID  string
	Brightness float64
	CCTK       float64
	HasCCT     bool
	CCTSource  CCTSource
}

// Store is the subset of *store.Store the resolver reads.
type Store interface {
	FixtureSnapshot(id string) (store.Snapshot, bool)
	GroupSnapshot(id string) (store.GroupRuntime, bool)
	GroupsOf(fixtureID string) []string
	FixtureCCTOverride(fixtureID string) (float64, bool)
}

// Resolve computes the effective brightness/CCT for one fixture.
func Resolve(s Store, cfg *config.Config, dtwEngine *dtw.Engine, fc config.FixtureConfig) (Resolved, bool) {
	snap, ok := s.FixtureSnapshot(fc.ID)
	if !ok {
		return Resolved{}, false
	}

	groupIDs := s.GroupsOf(fc.ID)

	brightness := snap.CurrentBrightness
	for _, gid := range groupIDs {
		g, ok := s.GroupSnapshot(gid)
		if !ok {
			continue
		}
		brightness *= g.BrightnessMultiplier
		if g.CircadianEnabled {
			brightness *= g.CircadianBrightnessMultiplier
		}
	}
	brightness = clamp01(brightness)

	res := Resolved{FixtureID: fc.ID, Brightness: brightness}
	if !fc.SupportsCCT() {
		return res, true
	}
	res.HasCCT = true

	if kelvin, ok := s.FixtureCCTOverride(fc.ID); ok {
		res.CCTK = kelvin
		res.CCTSource = SourceOverride
		metrics.CCTSourceTotal.WithLabelValues(string(res.CCTSource)).Inc()
		return res, true
	}

	if !snap.ManualCCTActive && !snap.OverrideActive {
		for _, gid := range groupIDs {
			g, ok := s.GroupSnapshot(gid)
			if !ok || !g.CircadianEnabled || !g.HasCircadianCCT() {
				continue
			}
			res.CCTK = g.CircadianCCTK
			res.CCTSource = SourceCircadian
			metrics.CCTSourceTotal.WithLabelValues(string(res.CCTSource)).Inc()
			return res, true
		}
	}

	if snap.ManualCCTActive {
		res.CCTK = snap.CurrentCCTK
		res.CCTSource = SourceManual
		metrics.CCTSourceTotal.WithLabelValues(string(res.CCTSource)).Inc()
		return res, true
	}

	if dtwEngine != nil {
		if kelvin, applied := dtwEngine.CalculateFor(fc.ID, brightness); applied {
			res.CCTK = float64(kelvin)
			res.CCTSource = SourceDTW
			metrics.CCTSourceTotal.WithLabelValues(string(res.CCTSource)).Inc()
			return res, true
		}
	}

	switch {
	case fc.DefaultCCTK != nil:
		res.CCTK = float64(*fc.DefaultCCTK)
	case cfg.System.DTWMaxCCT != 0:
		res.CCTK = float64(cfg.System.DTWMaxCCT)
	default:
		res.CCTK = float64(fc.CCTMaxK)
	}
	res.CCTSource = SourceDefault
	metrics.CCTSourceTotal.WithLabelValues(string(res.CCTSource)).Inc()
	return res, true
}

// ResolveAll resolves every fixture in the configuration snapshot.
func ResolveAll(s Store, cfg *config.Config, dtwEngine *dtw.Engine) []Resolved {
	out := make([]Resolved, 0, len(cfg.Fixtures))
	for _, fc := range cfg.Fixtures {
		if r, ok := Resolve(s, cfg, dtwEngine, fc); ok {
			out = append(out, r)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
