// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package store

import (
	"time"

	"duskline/internal/broadcast"
	"duskline/internal/faults"
)

// SetFixtureBrightness sets a fixture's brightness goal, clamped to
// [0,1]. If duration is nil and proportional is true, the duration is
// derived from full_brightness_seconds * |delta|. duration == 0 applies
// the value immediately with no transition.
func (s *Store) SetFixtureBrightness(id string, value float64, duration *time.Duration, easing Easing, proportional bool) error {
	clamped := clamp(value, 0, 1)
	if clamped != value {
		s.logger.Warn("clamped out-of-range brightness",
			"error", &faults.InvariantViolationError{Field: "brightness", Value: value, Clamped: clamped})
	}
	value = clamped

	s.mu.Lock()
	f, ok := s.fixtures[id]
	if !ok {
		s.mu.Unlock()
		return errUnknownFixture(id)
	}

	from := f.CurrentBrightness
	f.GoalBrightness = value

	d := s.resolveBrightnessDuration(duration, proportional, from, value)
	if d <= 0 {
		f.CurrentBrightness = value
		f.brightnessTr = nil
	} else {
		f.brightnessTr = &transition{startValue: from, endValue: value, startTime: time.Now(), duration: d, easing: easing}
	}
	s.markDirty()
	s.mu.Unlock()

	s.pub.Publish(broadcast.FixtureStateChanged, id, map[string]interface{}{"brightness": value})
	return nil
}

// SetFixtureCCT sets a fixture's CCT goal in Kelvin, clamped to the
// fixture's configured range.
func (s *Store) SetFixtureCCT(id string, kelvin float64, duration *time.Duration, easing Easing, proportional bool) error {
	s.mu.RLock()
	fc, ok := s.cfg.FixtureByID(id)
	s.mu.RUnlock()
	if !ok {
		return errUnknownFixture(id)
	}
	clampedKelvin := clamp(kelvin, float64(fc.CCTMinK), float64(fc.CCTMaxK))
	if clampedKelvin != kelvin {
		s.logger.Warn("clamped out-of-range cct",
			"error", &faults.InvariantViolationError{Field: "cct_k", Value: kelvin, Clamped: clampedKelvin})
	}
	kelvin = clampedKelvin

	s.mu.Lock()
	f := s.fixtures[id]
	from := f.CurrentCCTK
	f.GoalCCTK = kelvin
	f.ManualCCTActive = true

	d := s.resolveCCTDuration(duration, proportional, from, kelvin, fc.CCTMinK, fc.CCTMaxK)
	if d <= 0 {
		f.CurrentCCTK = kelvin
		f.cctTr = nil
	} else {
		f.cctTr = &transition{startValue: from, endValue: kelvin, startTime: time.Now(), duration: d, easing: easing}
	}
	s.markDirty()
	s.mu.Unlock()

	s.pub.Publish(broadcast.FixtureStateChanged, id, map[string]interface{}{"color_temp": kelvin})
	return nil
}

func (s *Store) resolveBrightnessDuration(duration *time.Duration, proportional bool, from, to float64) time.Duration {
	if duration != nil {
		return *duration
	}
	if !proportional {
		return 0
	}
	return proportionalBrightnessDuration(s.cfg.System.FullBrightnessSeconds, from, to)
}

func (s *Store) resolveCCTDuration(duration *time.Duration, proportional bool, from, to float64, cctMin, cctMax int) time.Duration {
	if duration != nil {
		return *duration
	}
	if !proportional {
		return 0
	}
	return proportionalCCTDuration(s.cfg.System.FullCCTSeconds, from, to, cctMin, cctMax)
}

// SetFixtureOverrideGate sets or clears the override_active gate used by
// the resolver's CCT priority cascade; it does not itself hold the
// override value (see overrides.go for that).
func (s *Store) SetFixtureOverrideGate(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fixtures[id]; ok {
		f.OverrideActive = active
	}
}

// ClearFixtureManualCCT clears the manual CCT flag, re-enabling circadian
// or DTW control of the fixture's color temperature.
func (s *Store) ClearFixtureManualCCT(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fixtures[id]; ok {
		f.ManualCCTActive = false
	}
}
