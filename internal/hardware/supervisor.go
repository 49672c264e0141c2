// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package hardware

import (
	"log/slog"
	"sync"
	"time"

	"duskline/internal/faults"
	"duskline/internal/metrics"
)

// Supervisor owns the active InputOutputDevice and DmxSink and performs
// a periodic health check, swapping to a mock fallback if the real
// device reports unhealthy so the control loop never blocks on a dead
// hardware link. The swap is atomic from a caller's perspective: readers
// always see either the fully-real or fully-mock pair, never a mix.
type Supervisor struct {
	logger *slog.Logger

	mu       sync.RWMutex
	io       InputOutputDevice
	sink     DmxSink
	realIO   InputOutputDevice
	realSink DmxSink
	mockIO   *MockIODevice
	mockSink *MockDmxSink
	onMock   bool

	lastCheck time.Time
}

// NewSupervisor starts with the given real devices active; a nil real
// device falls back to mock immediately (e.g. GPIO init failed at
// startup, which is treated as non-fatal).
func NewSupervisor(realIO InputOutputDevice, realSink DmxSink, logger *slog.Logger) *Supervisor {
	mockIO := NewMockIODevice()
	mockSink := NewMockDmxSink()

	s := &Supervisor{
		logger:   logger,
		realIO:   realIO,
		realSink: realSink,
		mockIO:   mockIO,
		mockSink: mockSink,
	}

	if realIO != nil && realSink != nil {
		s.io = realIO
		s.sink = realSink
	} else {
		s.io = mockIO
		s.sink = mockSink
		s.onMock = true
		logger.Warn("hardware supervisor starting on mock devices: no real device available")
	}
	metrics.SetHardwareOnMock(s.onMock)
	return s
}

// IO returns the currently active input device.
func (s *Supervisor) IO() InputOutputDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.io
}

// Sink returns the currently active DMX sink.
func (s *Supervisor) Sink() DmxSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sink
}

// OnMock reports whether the supervisor has fallen back to mock
// devices, for status reporting.
func (s *Supervisor) OnMock() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onMock
}

// CheckHealth is a periodic scheduler job: it polls the real device's
// health and swaps the active pair between real and mock as needed.
func (s *Supervisor) CheckHealth(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = now

	if s.realIO == nil || s.realSink == nil {
		return nil
	}

	realHealthy := s.realIO.Healthy() && s.realSink.Healthy()

	switch {
	case s.onMock && realHealthy:
		s.logger.Info("hardware recovered, switching back to real devices")
		s.io = s.realIO
		s.sink = s.realSink
		s.onMock = false
	case !s.onMock && !realHealthy:
		err := &faults.HardwareUnavailableError{Driver: "io/dmx", Err: ErrUnavailable}
		s.logger.Warn("hardware unhealthy, falling back to mock devices", "error", err)
		s.io = s.mockIO
		s.sink = s.mockSink
		s.onMock = true
	}
	metrics.SetHardwareOnMock(s.onMock)
	return nil
}

// Close releases both the real and mock devices.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.realIO != nil {
		if err := s.realIO.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.realSink != nil {
		if err := s.realSink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.mockIO.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.mockSink.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
