// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package switches

import (
	"time"

	"duskline/internal/config"
	"duskline/internal/store"
)

// processSimple drives an on/off switch: rising edge turns the target
// fully on (group targets get their configured defaults), falling edge
// turns it off.
func (e *Engine) processSimple(now time.Time, sw config.SwitchConfig, st *runtimeState, groups map[string]config.GroupConfig) {
	digital, ok := e.readDigital(sw)
	if !ok {
		return
	}

	if st.lastDigital != nil && *st.lastDigital == digital {
		return
	}
	if st.lastDigital != nil && e.debounced(sw, st, now) {
		return
	}

	st.lastDigital = &digital
	st.lastChangeTime = now
	e.eventsProcessed++

	switch sw.TargetType {
	case config.TargetFixture:
		brightness := 0.0
		if digital {
			brightness = 1.0
		}
		_ = e.st.SetFixtureBrightness(sw.TargetID, brightness, nil, store.EaseLinear, false)
	case config.TargetGroup:
		if digital {
			brightness, cctK := groupDefaults(groups, sw.TargetID)
			half := 500 * time.Millisecond
			_, _ = e.st.SetGroupBrightness(sw.TargetID, brightness, &half, store.EaseLinear, false)
			if cctK != nil {
				_, _ = e.st.SetGroupCCT(sw.TargetID, float64(*cctK), &half, store.EaseLinear, false)
			}
		} else {
			half := 500 * time.Millisecond
			_, _ = e.st.SetGroupBrightness(sw.TargetID, 0.0, &half, store.EaseLinear, false)
		}
	}

	e.broadcastTarget(sw)
}
