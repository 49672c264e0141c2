// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package store

import (
	"fmt"

	"duskline/internal/broadcast"
)

// RecallScene applies every value in a scene to its target fixtures,
// using the default easing and proportional timing. A scene scoped to a
// group only touches fixtures that are currently members of that group,
// even if the scene lists others — membership is checked at recall time.
func (s *Store) RecallScene(sceneID string) error {
	s.mu.RLock()
	cfg := s.cfg
	scene, ok := cfg.SceneByID(sceneID)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown scene %q", sceneID)
	}

	var allowed map[string]bool
	if scene.ScopeGroupID != "" {
		g, ok := cfg.GroupByID(scene.ScopeGroupID)
		if !ok {
			return fmt.Errorf("scene %q: unknown scope group %q", sceneID, scene.ScopeGroupID)
		}
		allowed = make(map[string]bool, len(g.Members))
		for _, m := range g.Members {
			allowed[m] = true
		}
	}

	easing := Easing(cfg.System.DefaultEasing)
	applied := 0
	for _, v := range scene.Values {
		if allowed != nil && !allowed[v.FixtureID] {
			continue
		}
		if v.TargetBrightness1000 != nil {
			b := float64(*v.TargetBrightness1000) / 1000.0
			if err := s.SetFixtureBrightness(v.FixtureID, b, nil, easing, true); err != nil {
				continue
			}
		}
		if v.TargetCCTK != nil {
			if err := s.SetFixtureCCT(v.FixtureID, float64(*v.TargetCCTK), nil, easing, true); err != nil {
				continue
			}
		}
		applied++
	}

	s.pub.Publish(broadcast.SceneRecalled, sceneID, map[string]interface{}{"fixtures_applied": applied})
	return nil
}

// CaptureValue is one fixture's captured state, for the API layer to
// serialize into a config.Scene for persistence.
type CaptureValue struct {
	FixtureID  string
	Brightness float64
	CCTK       float64
}

// CaptureScene reads the current state of the given fixtures so the
// caller can persist it as a new scene. Writing the scene back to the
// config collaborator is the API layer's job, not the store's.
func (s *Store) CaptureScene(fixtureIDs []string) []CaptureValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]CaptureValue, 0, len(fixtureIDs))
	for _, id := range fixtureIDs {
		f, ok := s.fixtures[id]
		if !ok {
			continue
		}
		values = append(values, CaptureValue{
			FixtureID:  f.ID,
			Brightness: f.CurrentBrightness,
			CCTK:       f.CurrentCCTK,
		})
	}
	return values
}
