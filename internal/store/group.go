// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package store

import (
	"time"

	"duskline/internal/broadcast"
)

// SetGroupBrightness fans a brightness write out to every member
// fixture's own goal_brightness and returns the number of fixtures
// updated. GroupRuntime.BrightnessMultiplier is left untouched by manual
// writes — it is reserved for circadian/system-level scaling applied on
// top of each fixture's own setpoint during resolution, so a
// switch-driven group dim is not scaled a second time.
func (s *Store) SetGroupBrightness(groupID string, value float64, duration *time.Duration, easing Easing, proportional bool) (int, error) {
	s.mu.RLock()
	g, ok := s.cfg.GroupByID(groupID)
	s.mu.RUnlock()
	if !ok {
		return 0, errUnknownGroup(groupID)
	}

	count := 0
	for _, fixtureID := range g.Members {
		if err := s.SetFixtureBrightness(fixtureID, value, duration, easing, proportional); err == nil {
			count++
		}
	}
	s.pub.Publish(broadcast.GroupStateChanged, groupID, map[string]interface{}{"brightness": value})
	return count, nil
}

// SetGroupCCT fans a CCT write out to every member fixture, setting each
// fixture's manual CCT flag so circadian control yields to the override
// until cleared.
func (s *Store) SetGroupCCT(groupID string, kelvin float64, duration *time.Duration, easing Easing, proportional bool) (int, error) {
	s.mu.RLock()
	g, ok := s.cfg.GroupByID(groupID)
	s.mu.RUnlock()
	if !ok {
		return 0, errUnknownGroup(groupID)
	}

	count := 0
	for _, fixtureID := range g.Members {
		if err := s.SetFixtureCCT(fixtureID, kelvin, duration, easing, proportional); err == nil {
			count++
		}
	}
	s.pub.Publish(broadcast.GroupStateChanged, groupID, map[string]interface{}{"color_temp": kelvin})
	return count, nil
}

// SetGroupCircadian stores the group's current circadian-derived
// brightness multiplier and CCT without fanning out to members; the
// resolver consults these fields during composition.
func (s *Store) SetGroupCircadian(groupID string, enabled bool, brightnessMult float64, cctK *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return errUnknownGroup(groupID)
	}
	g.CircadianEnabled = enabled
	g.CircadianBrightnessMultiplier = clamp(brightnessMult, 0, 1)
	if cctK != nil {
		g.CircadianCCTK = *cctK
		g.hasCircadianCCT = true
	} else {
		g.hasCircadianCCT = false
	}
	return nil
}

// AddFixtureToGroup adds a fixture to a group's membership list in the
// active configuration snapshot.
func (s *Store) AddFixtureToGroup(fixtureID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cfg.Groups {
		if s.cfg.Groups[i].ID == groupID {
			for _, m := range s.cfg.Groups[i].Members {
				if m == fixtureID {
					return nil
				}
			}
			s.cfg.Groups[i].Members = append(s.cfg.Groups[i].Members, fixtureID)
			return nil
		}
	}
	return errUnknownGroup(groupID)
}

// RemoveFixtureFromGroup removes a fixture from a group's membership.
// Subsequent group-level writes no longer reach it, and it is no longer
// affected by the group's circadian or brightness scaling.
func (s *Store) RemoveFixtureFromGroup(fixtureID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cfg.Groups {
		if s.cfg.Groups[i].ID == groupID {
			members := s.cfg.Groups[i].Members[:0]
			for _, m := range s.cfg.Groups[i].Members {
				if m != fixtureID {
					members = append(members, m)
				}
			}
			s.cfg.Groups[i].Members = members
			return nil
		}
	}
	return errUnknownGroup(groupID)
}

// UnregisterGroup removes a group entirely, including from every
// fixture's membership.
func (s *Store) UnregisterGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return errUnknownGroup(groupID)
	}
	delete(s.groups, groupID)
	groups := s.cfg.Groups[:0]
	for _, g := range s.cfg.Groups {
		if g.ID != groupID {
			groups = append(groups, g)
		}
	}
	s.cfg.Groups = groups
	return nil
}
