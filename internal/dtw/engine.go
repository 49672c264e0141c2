// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dtw

import (
	"sync"
	"time"

	"duskline/internal/config"
	"duskline/internal/metrics"
)

// FixtureDTWConfig is the resolved DTW posture for one fixture: whether
// it participates at all, and the effective CCT range to map brightness
// onto once its own and its group's overrides are applied.
type FixtureDTWConfig struct {
	Enabled bool
	MinCCT  int
	MaxCCT  int
	Curve   Curve
}

// Engine caches the resolved per-fixture DTW configuration and refreshes
// it on a fixed interval rather than on every tick, since it only
// changes when configuration is reloaded or a group's DTW posture
// changes — mirroring the refresh-interval cache in dtw_engine.py.
type Engine struct {
	mu          sync.RWMutex
	cfg         *config.Config
	refresh     time.Duration
	lastRefresh time.Time
	registry    map[string]FixtureDTWConfig
}

// New builds an Engine from system settings; refreshSeconds <= 0 falls
// back to recomputing on every call to Resolve.
func New(cfg *config.Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		refresh:  time.Duration(cfg.System.DTWRefreshSeconds * float64(time.Second)),
		registry: make(map[string]FixtureDTWConfig),
	}
	e.rebuild()
	return e
}

// SwapConfig installs a new configuration snapshot and forces an
// immediate rebuild on the next Resolve call.
func (e *Engine) SwapConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.lastRefresh = time.Time{}
}

// Resolve returns the effective DTW configuration for a fixture,
// rebuilding the cached registry first if the refresh interval has
// elapsed.
func (e *Engine) Resolve(fixtureID string) FixtureDTWConfig {
	e.mu.RLock()
	stale := e.refresh <= 0 || time.Since(e.lastRefresh) >= e.refresh
	cfg, ok := e.registry[fixtureID]
	e.mu.RUnlock()

	if stale {
		e.mu.Lock()
		e.rebuild()
		cfg, ok = e.registry[fixtureID]
		e.mu.Unlock()
	}
	if !ok {
		return FixtureDTWConfig{Enabled: false}
	}
	return cfg
}

// rebuild recomputes every fixture's DTW posture. Caller must hold e.mu
// for writing, except for the initial call from New.
func (e *Engine) rebuild() {
	sys := e.cfg.System
	reg := make(map[string]FixtureDTWConfig, len(e.cfg.Fixtures))

	for _, f := range e.cfg.Fixtures {
		fc := FixtureDTWConfig{
			Enabled: sys.DTWEnabled && !f.DTWIgnore && f.SupportsCCT(),
			MinCCT:  sys.DTWMinCCT,
			MaxCCT:  sys.DTWMaxCCT,
			Curve:   Curve(sys.DTWCurve),
		}

		for _, groupID := range e.cfg.GroupsOf(f.ID) {
			g, ok := e.cfg.GroupByID(groupID)
			if !ok {
				continue
			}
			if g.DTWIgnore {
				fc.Enabled = false
			}
			if g.DTWCCTMinOverride != nil {
				fc.MinCCT = *g.DTWCCTMinOverride
			}
			if g.DTWCCTMaxOverride != nil {
				fc.MaxCCT = *g.DTWCCTMaxOverride
			}
		}

		if f.DTWCCTMinOverride != nil {
			fc.MinCCT = *f.DTWCCTMinOverride
		}
		if f.DTWCCTMaxOverride != nil {
			fc.MaxCCT = *f.DTWCCTMaxOverride
		}
		if fc.MinCCT < f.CCTMinK {
			fc.MinCCT = f.CCTMinK
		}
		if fc.MaxCCT > f.CCTMaxK {
			fc.MaxCCT = f.CCTMaxK
		}

		reg[f.ID] = fc
	}

	e.registry = reg
	e.lastRefresh = time.Now()
}

// CalculateFor is a convenience wrapper combining Resolve and
// CalculateCCT for one fixture at the given brightness.
func (e *Engine) CalculateFor(fixtureID string, brightness float64) (kelvin int, applied bool) {
	fc := e.Resolve(fixtureID)
	if !fc.Enabled {
		return 0, false
	}
	metrics.DTWCalcTotal.WithLabelValues(string(fc.Curve)).Inc()
	return CalculateCCT(brightness, fc.MinCCT, fc.MaxCCT, e.cfg.System.DTWMinBrightness, fc.Curve), true
}
