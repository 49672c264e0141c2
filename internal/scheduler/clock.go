// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"duskline/internal/config"
	"duskline/internal/store"
)

// clockEvent is a parsed schedule event with time components.
type clockEvent struct {
	Hour    int
	Minute  int
	Second  int
	SceneID string
	AllOff  bool
}

// ClockScheduler fires scene recalls (or an all-off) at fixed times of
// day, independent of the circadian ring — for events like a hard
// midnight cutoff that must happen regardless of circadian state.
type ClockScheduler struct {
	events   []clockEvent
	store    *store.Store
	logger   *slog.Logger
	location *time.Location

	mu       sync.RWMutex
	lastRun  string
	stopChan chan struct{}
	running  bool
}

// NewClockScheduler builds a scheduler from configuration; a nil cfg
// produces a scheduler with no events.
func NewClockScheduler(cfg *config.ScheduleConfig, st *store.Store, logger *slog.Logger) (*ClockScheduler, error) {
	loc := time.Local
	var rawEvents []config.ScheduleEvent
	if cfg != nil {
		rawEvents = cfg.Events
		if cfg.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(cfg.Timezone)
			if err != nil {
				return nil, err
			}
		}
	}

	events := make([]clockEvent, 0, len(rawEvents))
	for _, e := range rawEvents {
		parsed, err := parseClockTime(e.Time)
		if err != nil {
			return nil, err
		}
		parsed.SceneID = e.SceneID
		parsed.AllOff = e.AllOff
		events = append(events, parsed)
	}

	sort.Slice(events, func(i, j int) bool {
		return clockSeconds(events[i]) < clockSeconds(events[j])
	})

	return &ClockScheduler{
		events:   events,
		store:    st,
		logger:   logger,
		location: loc,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the background clock-check loop.
func (s *ClockScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop()
	s.logger.Info("clock scheduler started", "events", len(s.events), "timezone", s.location.String())
}

// Stop halts the background loop.
func (s *ClockScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.logger.Info("clock scheduler stopped")
}

func (s *ClockScheduler) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopChan:
			return
		}
	}
}

func (s *ClockScheduler) check() {
	now := time.Now().In(s.location)
	nowStr := now.Format("15:04:05")

	s.mu.Lock()
	if s.lastRun == nowStr {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	h, m, sec := now.Hour(), now.Minute(), now.Second()
	for _, e := range s.events {
		if e.Hour == h && e.Minute == m && e.Second == sec {
			s.execute(e)
			s.mu.Lock()
			s.lastRun = nowStr
			s.mu.Unlock()
			return
		}
	}
}

func (s *ClockScheduler) execute(e clockEvent) {
	s.logger.Info("clock scheduler firing event", "time", formatClockTime(e))

	if e.AllOff {
		for _, id := range s.store.FixtureIDs() {
			if err := s.store.SetFixtureBrightness(id, 0, nil, store.EaseLinear, false); err != nil {
				s.logger.Error("scheduled all-off failed", "fixture", id, "error", err)
			}
		}
		return
	}

	if e.SceneID != "" {
		if err := s.store.RecallScene(e.SceneID); err != nil {
			s.logger.Error("scheduled scene recall failed", "scene", e.SceneID, "error", err)
		}
	}
}

// NextEvent returns the next scheduled event from now, or nil if none
// are configured.
func (s *ClockScheduler) NextEvent() *NextEventInfo {
	if len(s.events) == 0 {
		return nil
	}

	now := time.Now().In(s.location)
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()

	for _, e := range s.events {
		if eSec := clockSeconds(e); eSec > nowSec {
			return &NextEventInfo{Time: formatClockTime(e), In: time.Duration(eSec-nowSec) * time.Second, SceneID: e.SceneID, AllOff: e.AllOff}
		}
	}

	e := s.events[0]
	eSec := clockSeconds(e)
	secsUntil := (24*3600 - nowSec) + eSec
	return &NextEventInfo{Time: formatClockTime(e), In: time.Duration(secsUntil) * time.Second, SceneID: e.SceneID, AllOff: e.AllOff}
}

// NextEventInfo describes the next scheduled clock event.
type NextEventInfo struct {
	Time    string        `json:"time"`
	In      time.Duration `json:"in"`
	SceneID string        `json:"scene_id,omitempty"`
	AllOff  bool          `json:"all_off,omitempty"`
}

func parseClockTime(s string) (clockEvent, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
		if err != nil {
			return clockEvent{}, err
		}
	}
	return clockEvent{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func formatClockTime(e clockEvent) string {
	return time.Date(0, 1, 1, e.Hour, e.Minute, e.Second, 0, time.UTC).Format("15:04:05")
}

func clockSeconds(e clockEvent) int {
	return e.Hour*3600 + e.Minute*60 + e.Second
}
