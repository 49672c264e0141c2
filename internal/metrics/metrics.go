// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FixtureBrightness is a gauge for each fixture's current brightness (0-1).
	FixtureBrightness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duskline_fixture_brightness",
			Help: "Current fixture brightness, 0-1",
		},
		[]string{"fixture"},
	)

	// FixtureCCT is a gauge for each fixture's current color temperature.
	FixtureCCT = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duskline_fixture_cct_kelvin",
			Help: "Current fixture color temperature in Kelvin",
		},
		[]string{"fixture"},
	)

	// AchievedDuv is a gauge for the color-mixing stage's distance from
	// the Planckian locus at the last composed frame.
	AchievedDuv = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duskline_achieved_duv",
			Help: "Achieved Duv (distance from blackbody locus) of the last mix",
		},
		[]string{"fixture"},
	)

	// CCTSourceTotal counts how often each priority-cascade source wins
	// the resolver's decision for a fixture's CCT.
	CCTSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_cct_source_total",
			Help: "Resolved CCT source selections by source",
		},
		[]string{"source"},
	)

	// DTWCalcTotal counts dim-to-warm CCT calculations.
	DTWCalcTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_dtw_calc_total",
			Help: "Dim-to-warm CCT calculations by curve",
		},
		[]string{"curve"},
	)

	// SwitchEventsTotal counts processed switch-state-machine events.
	SwitchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_switch_events_total",
			Help: "Switch events processed by model",
		},
		[]string{"model"},
	)

	// TransitionsActive is a gauge of in-flight brightness/CCT transitions.
	TransitionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duskline_transitions_active",
			Help: "In-flight transitions by channel (brightness, cct)",
		},
		[]string{"channel"},
	)

	// TickOverrunsTotal counts control-loop ticks that exceeded their period.
	TickOverrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duskline_tick_overruns_total",
			Help: "Control-loop ticks that overran their period",
		},
	)

	// TicksTotal counts every control-loop tick run.
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duskline_ticks_total",
			Help: "Total control-loop ticks run",
		},
	)

	// BroadcastDroppedTotal counts events dropped for slow subscribers.
	BroadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duskline_broadcast_dropped_total",
			Help: "Broadcast events dropped due to a slow subscriber",
		},
	)

	// DMXFramesTotal counts DMX frames actually written to a sink.
	DMXFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_dmx_frames_total",
			Help: "DMX frames sent by universe",
		},
		[]string{"universe"},
	)

	// HardwareOnMock indicates whether the supervisor has fallen back to
	// mock hardware (1) or is driving the real devices (0).
	HardwareOnMock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duskline_hardware_on_mock",
			Help: "1 if the hardware supervisor has fallen back to mock devices",
		},
	)

	// CommandsTotal counts API commands by type.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_commands_total",
			Help: "Total API commands by type",
		},
		[]string{"command"},
	)

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duskline_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)
)

// SetHardwareOnMock updates the hardware-fallback gauge.
func SetHardwareOnMock(onMock bool) {
	if onMock {
		HardwareOnMock.Set(1)
	} else {
		HardwareOnMock.Set(0)
	}
}

// itoa is a simple int to string conversion, kept for label formatting
// without pulling in strconv on this hot a path.
func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}

// UniverseLabel formats a universe number as a metric label.
func UniverseLabel(universe int) string { return itoa(universe) }
