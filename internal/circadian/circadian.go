// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package circadian interpolates a CircadianProfile's time-of-day
// keyframes into a brightness multiplier and color temperature for the
// current instant.
package circadian

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"duskline/internal/config"
	"duskline/internal/store"
)

// Value is the interpolated state at a given time.
type Value struct {
	BrightnessMultiplier float64
	CCTK                 float64
}

// Evaluate interpolates the profile's keyframes at clock time `now`,
// wrapping around midnight. Keyframes are sorted by minute-of-day before
// interpolating; a profile with zero keyframes yields a neutral value
// (full brightness, mid-range warm-white).
func Evaluate(profile config.CircadianProfile, now time.Time) Value {
	if len(profile.Keyframes) == 0 {
		return Value{BrightnessMultiplier: 1.0, CCTK: 4000}
	}

	type resolved struct {
		minute int
		kf     config.Keyframe
	}
	kfs := make([]resolved, 0, len(profile.Keyframes))
	for _, kf := range profile.Keyframes {
		kfs = append(kfs, resolved{minute: minuteOfDay(kf.TimeOfDay), kf: kf})
	}
	sort.Slice(kfs, func(i, j int) bool { return kfs[i].minute < kfs[j].minute })

	minute := float64(now.Hour()*60+now.Minute()) + float64(now.Second())/60.0

	if len(kfs) == 1 {
		return Value{BrightnessMultiplier: kfs[0].kf.Brightness, CCTK: float64(kfs[0].kf.CCTK)}
	}

	n := len(kfs)
	for i := 0; i < n; i++ {
		cur := kfs[i]
		next := kfs[(i+1)%n]

		curM := float64(cur.minute)
		nextM := float64(next.minute)
		span := nextM - curM
		if span <= 0 {
			span += 1440
		}

		pos := minute - curM
		if pos < 0 {
			pos += 1440
		}
		if pos > span {
			continue
		}

		t := pos / span
		return Value{
			BrightnessMultiplier: lerp(cur.kf.Brightness, next.kf.Brightness, t),
			CCTK:                 lerp(float64(cur.kf.CCTK), float64(next.kf.CCTK), t),
		}
	}

	last := kfs[n-1].kf
	return Value{BrightnessMultiplier: last.Brightness, CCTK: float64(last.CCTK)}
}

// minuteOfDay parses a "HH:MM" time-of-day string into minutes since
// midnight. A malformed string resolves to midnight rather than erroring,
// since keyframe times are validated at config load time.
func minuteOfDay(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0
	}
	return h*60 + m
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Update is a periodic scheduler job: it evaluates every group with a
// circadian_profile_id against the current time and stores the result
// for the resolver to pick up; main.go registers it at a 5s interval. A
// group inside its sleep_lock window is left untouched rather than
// re-evaluated, so a manual override made during the night isn't fought
// by the ring on the next job run.
func Update(cfg *config.Config, st *store.Store, now time.Time) error {
	for _, g := range cfg.Groups {
		if g.CircadianProfileID == "" {
			continue
		}
		if inSleepLock(g.SleepLock, now) {
			continue
		}
		profile, ok := cfg.CircadianProfileByID(g.CircadianProfileID)
		if !ok {
			continue
		}
		v := Evaluate(profile, now)
		cctK := v.CCTK
		st.SetGroupCircadian(g.ID, true, v.BrightnessMultiplier, &cctK)
	}
	return nil
}

// inSleepLock reports whether now falls within a group's configured
// nightly lock window, wrapping across midnight when start > end.
func inSleepLock(lock *config.SleepLock, now time.Time) bool {
	if lock == nil || lock.Start == "" || lock.End == "" {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	start := minuteOfDay(lock.Start)
	end := minuteOfDay(lock.End)
	if start == end {
		return false
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}
