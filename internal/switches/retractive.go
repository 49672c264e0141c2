// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package switches

import (
	"time"

	"duskline/internal/config"
	"duskline/internal/store"
)

// processRetractive drives a momentary button: a quick tap toggles the
// target, while a held press gradually dims it up (if it was off) or
// down (if it was on) until release.
func (e *Engine) processRetractive(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	digital, ok := e.readDigital(sw)
	if !ok {
		return
	}

	if st.lastDigital == nil {
		st.lastDigital = &digital
		return
	}

	if *st.lastDigital == digital {
		if st.isPressed && !st.pressStart.IsZero() {
			if now.Sub(st.pressStart) >= e.holdThreshold {
				e.handleHold(now, sw, st, groups)
			}
		}
		return
	}

	if e.debounced(sw, st, now) {
		return
	}

	st.lastDigital = &digital
	st.lastChangeTime = now
	e.eventsProcessed++

	if digital {
		st.isPressed = true
		st.pressStart = now
		st.isDimming = false
		e.handlePress(sw, st)
	} else {
		st.isPressed = false
		e.handleRelease(now, sw, st, groups)
		st.isDimming = false
		st.pressStart = time.Time{}
	}
}

func (e *Engine) handlePress(sw config.SwitchConfig, st *runtimeState) {
	brightness := e.currentBrightness(sw)
	st.wasOnAtPress = brightness > 0
	st.dimStartBright = brightness
	if st.wasOnAtPress {
		st.dimDirection = -1
	} else {
		st.dimDirection = 1
	}
}

func (e *Engine) handleRelease(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	if st.isDimming {
		e.broadcastTarget(sw)
		return
	}

	switch sw.TargetType {
	case config.TargetFixture:
		current := e.currentBrightness(sw)
		newBrightness := 1.0
		if current > 0 {
			newBrightness = 0.0
		}
		zero := time.Duration(0)
		_ = e.st.SetFixtureBrightness(sw.TargetID, newBrightness, &zero, store.EaseLinear, false)
	case config.TargetGroup:
		if e.currentBrightness(sw) > 0 {
			_, _ = e.st.SetGroupBrightness(sw.TargetID, 0.0, nil, store.EaseLinear, false)
		} else {
			brightness, cctK := groupDefaults(groups, sw.TargetID)
			_, _ = e.st.SetGroupBrightness(sw.TargetID, brightness, nil, store.EaseLinear, false)
			if cctK != nil {
				_, _ = e.st.SetGroupCCT(sw.TargetID, float64(*cctK), nil, store.EaseLinear, false)
			}
		}
	}
	e.broadcastTarget(sw)

	e.maybeDoubleTap(now, sw, st)
}

func (e *Engine) handleHold(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	if !st.isDimming {
		st.isDimming = true
		st.dimStartBright = e.currentBrightness(sw)
	}

	elapsed := now.Sub(st.pressStart) - e.holdThreshold
	if elapsed < 0 {
		elapsed = 0
	}

	var delta float64
	if e.dimSpeed <= 0 {
		delta = 1.0
	} else {
		delta = elapsed.Seconds() / e.dimSpeed.Seconds()
	}

	var newBrightness float64
	if st.dimDirection > 0 {
		start := st.dimStartBright
		if !st.wasOnAtPress {
			start = 0
		}
		newBrightness = start + delta
	} else {
		newBrightness = st.dimStartBright - delta
	}
	newBrightness = clamp01(newBrightness)

	zero := time.Duration(0)
	switch sw.TargetType {
	case config.TargetFixture:
		_ = e.st.SetFixtureBrightness(sw.TargetID, newBrightness, &zero, store.EaseLinear, false)
	case config.TargetGroup:
		_, _ = e.st.SetGroupBrightness(sw.TargetID, newBrightness, &zero, store.EaseLinear, false)
	}

	e.broadcastTargetThrottled(sw, now)
}

// maybeDoubleTap recognizes two quick taps within the configured window
// and, if the switch names a scene, recalls it.
func (e *Engine) maybeDoubleTap(now time.Time, sw config.SwitchConfig, st *runtimeState) {
	if sw.DoubleTapSceneID == "" {
		return
	}

	if st.awaitingTap && now.Sub(st.lastTapTime) <= e.tapWindow {
		st.awaitingTap = false
		_ = e.st.RecallScene(sw.DoubleTapSceneID)
		return
	}

	st.awaitingTap = true
	st.lastTapTime = now
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
