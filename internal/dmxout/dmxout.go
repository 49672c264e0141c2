// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package dmxout composes per-universe 512-byte DMX frames from resolved
// fixture setpoints and hands them to a sink, deduplicating unchanged
// frames within a short TTL to reduce sink traffic.
package dmxout

import (
	"log/slog"
	"sync"
	"time"

	"duskline/internal/colormix"
	"duskline/internal/config"
	"duskline/internal/metrics"
	"duskline/internal/resolver"
)

// Sink is the hardware boundary a composed universe frame is handed to.
// Implementations live in internal/hardware.
type Sink interface {
	SendFrame(universe int, frame [512]byte) error
}

// Stage owns one frame buffer per universe (allocated on first use) and
// the last frame sent to each, for dedupe.
type Stage struct {
	logger  *slog.Logger
	sink    Sink
	dedupe  time.Duration
	cfg     *config.Config

	mu     sync.Mutex
	frames map[int]*[512]byte
	last   map[int]lastSend
}

type lastSend struct {
	frame [512]byte
	at    time.Time
}

// New builds a Stage. dedupe <= 0 disables deduplication entirely.
func New(cfg *config.Config, sink Sink, dedupe time.Duration, logger *slog.Logger) *Stage {
	return &Stage{
		logger: logger,
		sink:   sink,
		dedupe: dedupe,
		cfg:    cfg,
		frames: make(map[int]*[512]byte),
		last:   make(map[int]lastSend),
	}
}

// SwapConfig installs a new configuration snapshot; existing frame
// buffers are kept since universes rarely change membership wholesale.
func (s *Stage) SwapConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Compose builds each universe's frame from the resolved fixture list,
// mixing tunable-white channels with internal/colormix and writing
// single-channel fixtures directly, then hands changed frames to the
// sink. Universes are allocated lazily the first time a fixture
// references them — there is no hard cap on universe count.
func (s *Stage) Compose(now time.Time, resolved []resolver.Resolved) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[int]bool)

	for _, r := range resolved {
		fc, ok := s.cfg.FixtureByID(r.FixtureID)
		if !ok {
			continue
		}
		frame := s.frameFor(fc.DMXUniverse)
		touched[fc.DMXUniverse] = true

		metrics.FixtureBrightness.WithLabelValues(r.FixtureID).Set(r.Brightness)
		if r.HasCCT {
			metrics.FixtureCCT.WithLabelValues(r.FixtureID).Set(r.CCTK)
		}

		if !r.HasCCT || fc.DMXSecondaryChannel == nil {
			frame[fc.DMXPrimaryChannel-1] = byte(clampDuty(int(r.Brightness*255 + 0.5)))
			continue
		}

		warmDuty, coolDuty := s.mixDuties(fc, r)
		frame[fc.DMXPrimaryChannel-1] = byte(clampDuty(warmDuty))
		frame[*fc.DMXSecondaryChannel-1] = byte(clampDuty(coolDuty))
	}

	for universe := range touched {
		if err := s.sendIfChanged(now, universe); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) mixDuties(fc config.FixtureConfig, r resolver.Resolved) (warm, cool int) {
	if fc.WarmXY != nil && fc.CoolXY != nil {
		result := colormix.Calculate(int(r.CCTK), r.Brightness, colormix.Params{
			WarmCCT:       fc.CCTMinK,
			CoolCCT:       fc.CCTMaxK,
			WarmXY:        colormix.XY{X: fc.WarmXY.X, Y: fc.WarmXY.Y},
			CoolXY:        colormix.XY{X: fc.CoolXY.X, Y: fc.CoolXY.Y},
			WarmLumens:    fc.WarmLumens,
			CoolLumens:    fc.CoolLumens,
			PWMResolution: 255,
			Gamma:         fc.Gamma,
		})
		metrics.AchievedDuv.WithLabelValues(fc.ID).Set(result.AchievedDuv)
		return result.WarmDuty, result.CoolDuty
	}
	if fc.WarmLumens > 0 && fc.CoolLumens > 0 {
		result := colormix.CalculateFromLumensOnly(int(r.CCTK), r.Brightness, fc.CCTMinK, fc.CCTMaxK, fc.WarmLumens, fc.CoolLumens, 255, 0, fc.Gamma, 7)
		metrics.AchievedDuv.WithLabelValues(fc.ID).Set(result.AchievedDuv)
		return result.WarmDuty, result.CoolDuty
	}
	return colormix.CalculateSimple(int(r.CCTK), r.Brightness, fc.CCTMinK, fc.CCTMaxK, 255, fc.Gamma)
}

// frameFor returns the frame buffer for a universe, allocating it lazily
// on first reference. Caller must hold s.mu.
func (s *Stage) frameFor(universe int) *[512]byte {
	f, ok := s.frames[universe]
	if !ok {
		f = &[512]byte{}
		s.frames[universe] = f
	}
	return f
}

// sendIfChanged hands a universe's frame to the sink unless an identical
// frame was already sent within the dedupe window. Caller must hold s.mu.
func (s *Stage) sendIfChanged(now time.Time, universe int) error {
	frame := *s.frames[universe]
	prev, seen := s.last[universe]

	if seen && frame == prev.frame && s.dedupe > 0 && now.Sub(prev.at) < s.dedupe {
		return nil
	}

	if err := s.sink.SendFrame(universe, frame); err != nil {
		s.logger.Warn("dmx frame send failed", "universe", universe, "error", err)
		return err
	}
	metrics.DMXFramesTotal.WithLabelValues(metrics.UniverseLabel(universe)).Inc()
	s.last[universe] = lastSend{frame: frame, at: now}
	return nil
}

func clampDuty(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
