// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package hardware

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testSupervisorLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSupervisorStartsOnRealDevices(t *testing.T) {
	realIO := NewMockIODevice()
	realSink := NewMockDmxSink()
	s := NewSupervisor(realIO, realSink, testSupervisorLogger())

	if s.OnMock() {
		t.Error("expected supervisor to start on the real device pair")
	}
	if s.IO() != InputOutputDevice(realIO) {
		t.Error("expected IO() to return the real device")
	}
}

func TestNewSupervisorFallsBackWithNilRealDevices(t *testing.T) {
	s := NewSupervisor(nil, nil, testSupervisorLogger())
	if !s.OnMock() {
		t.Error("expected supervisor with nil real devices to start on mock")
	}
}

func TestCheckHealthSwapsToMockOnFailure(t *testing.T) {
	realIO := NewMockIODevice()
	realSink := NewMockDmxSink()
	s := NewSupervisor(realIO, realSink, testSupervisorLogger())

	realIO.SetHealthy(false)
	if err := s.CheckHealth(time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.OnMock() {
		t.Error("expected supervisor to fall back to mock when the real IO reports unhealthy")
	}
}

func TestCheckHealthRecoversToReal(t *testing.T) {
	realIO := NewMockIODevice()
	realSink := NewMockDmxSink()
	s := NewSupervisor(realIO, realSink, testSupervisorLogger())

	realIO.SetHealthy(false)
	_ = s.CheckHealth(time.Now())
	if !s.OnMock() {
		t.Fatal("expected fallback to mock before testing recovery")
	}

	realIO.SetHealthy(true)
	_ = s.CheckHealth(time.Now())
	if s.OnMock() {
		t.Error("expected supervisor to swap back to the real device once it reports healthy again")
	}
}

func TestCheckHealthNoopWithNilRealDevices(t *testing.T) {
	s := NewSupervisor(nil, nil, testSupervisorLogger())
	if err := s.CheckHealth(time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.OnMock() {
		t.Error("expected supervisor with no real devices to remain on mock")
	}
}

func TestSinkFollowsIOSwap(t *testing.T) {
	realIO := NewMockIODevice()
	realSink := NewMockDmxSink()
	s := NewSupervisor(realIO, realSink, testSupervisorLogger())

	realIO.SetHealthy(false)
	_ = s.CheckHealth(time.Now())

	if s.Sink() == DmxSink(realSink) {
		t.Error("expected Sink() to have swapped to the mock sink alongside IO")
	}
}

func TestCloseReleasesAllDevices(t *testing.T) {
	realIO := NewMockIODevice()
	realSink := NewMockDmxSink()
	s := NewSupervisor(realIO, realSink, testSupervisorLogger())

	if err := s.Close(); err != nil {
		t.Errorf("unexpected error closing supervisor: %v", err)
	}
}
