// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package switches

import (
	"math"
	"time"

	"duskline/internal/config"
	"duskline/internal/store"
)

// processRotary drives an absolute analog dimmer (potentiometer-style
// rotary encoder): the normalized reading maps directly to brightness
// through the configured dimming curve, smoothed by a short transition.
func (e *Engine) processRotary(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	analog, ok := e.readAnalog(sw)
	if !ok {
		return
	}

	if st.lastAnalog != nil && math.Abs(analog-*st.lastAnalog) < 0.01 {
		return
	}

	st.lastAnalog = &analog
	st.lastChangeTime = now
	e.eventsProcessed++

	brightness := analog
	if sw.DimmingCurve == config.DimmingLogarithmic {
		brightness = analog * analog
	}

	transition := 100 * time.Millisecond
	switch sw.TargetType {
	case config.TargetFixture:
		_ = e.st.SetFixtureBrightness(sw.TargetID, brightness, &transition, store.EaseLinear, false)
	case config.TargetGroup:
		_, _ = e.st.SetGroupBrightness(sw.TargetID, brightness, &transition, store.EaseLinear, false)
	}

	e.broadcastTarget(sw)
}
