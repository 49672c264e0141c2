// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package store

import (
	"math"
	"time"
)

// Easing names one of the interpolation curves a transition can use.
type Easing string

const (
	EaseLinear      Easing = "linear"
	EaseInQuad      Easing = "ease_in_quad"
	EaseOutQuad     Easing = "ease_out_quad"
	EaseInOutQuad   Easing = "ease_in_out_quad"
	EaseInCubic     Easing = "ease_in_cubic"
	EaseOutCubic    Easing = "ease_out_cubic"
	EaseInOutCubic  Easing = "ease_in_out_cubic"
)

// Ease applies the named curve to progress t in [0,1], returning the
// eased progress in [0,1]. Unknown names fall back to linear.
func Ease(e Easing, t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	switch e {
	case EaseInQuad:
		return t * t
	case EaseOutQuad:
		return t * (2 - t)
	case EaseInOutQuad:
		if t < 0.5 {
			return 2 * t * t
		}
		return 1 - math.Pow(-2*t+2, 2)/2
	case EaseInCubic:
		return t * t * t
	case EaseOutCubic:
		return 1 - math.Pow(1-t, 3)
	case EaseInOutCubic:
		if t < 0.5 {
			return 4 * t * t * t
		}
		return 1 - math.Pow(-2*t+2, 3)/2
	default:
		return t
	}
}

// transition is an in-progress interpolation of a single scalar channel
// (brightness or CCT) on a fixture. Brightness and CCT transitions run
// independently of each other.
type transition struct {
	startValue, endValue float64
	startTime             time.Time
	duration              time.Duration
	easing                Easing
}

// active reports whether a transition is set (non-nil); Tick clears a
// transition once it completes.
func (tr *transition) active() bool { return tr != nil }

// valueAt returns the interpolated value and whether the transition has
// completed (in which case the caller should clear it and use endValue).
func (tr *transition) valueAt(now time.Time) (value float64, done bool) {
	if tr.duration <= 0 {
		return tr.endValue, true
	}
	progress := float64(now.Sub(tr.startTime)) / float64(tr.duration)
	if progress >= 1 {
		return tr.endValue, true
	}
	if progress < 0 {
		progress = 0
	}
	eased := Ease(tr.easing, progress)
	return tr.startValue + (tr.endValue-tr.startValue)*eased, false
}

// proportionalBrightnessDuration returns the duration for a brightness
// transition sized to the magnitude of the change, per
// full_brightness_seconds * |delta|.
func proportionalBrightnessDuration(fullSeconds, from, to float64) time.Duration {
	delta := math.Abs(to - from)
	return time.Duration(fullSeconds * delta * float64(time.Second))
}

// proportionalCCTDuration returns the duration for a CCT transition sized
// to the fraction of the fixture's full CCT range being crossed.
func proportionalCCTDuration(fullSeconds float64, from, to float64, cctMin, cctMax int) time.Duration {
	span := float64(cctMax - cctMin)
	if span <= 0 {
		return 0
	}
	delta := math.Abs(to - from)
	return time.Duration(fullSeconds * (delta / span) * float64(time.Second))
}
