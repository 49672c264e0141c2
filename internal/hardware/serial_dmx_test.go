// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package hardware

import (
	"errors"
	"testing"
)

type fakeSerialPort struct {
	written []byte
	failing bool
}

func (f *fakeSerialPort) Read(p []byte) (int, error) { return 0, nil }

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	if f.failing {
		return 0, errors.New("write failed")
	}
	f.written = append(f.written[:0], p...)
	return len(p), nil
}

func (f *fakeSerialPort) Close() error { return nil }

func TestSendFramePrependsStartCode(t *testing.T) {
	port := &fakeSerialPort{}
	s := &SerialDmxSink{port: port}
	s.healthy.Store(true)

	var frame [512]byte
	frame[0] = 255
	frame[511] = 42

	if err := s.SendFrame(0, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(port.written) != 513 {
		t.Fatalf("expected 513-byte packet (start code + 512 channels), got %d", len(port.written))
	}
	if port.written[0] != dmxStartCode {
		t.Errorf("expected packet to begin with the DMX start code, got %d", port.written[0])
	}
	if port.written[1] != 255 || port.written[512] != 42 {
		t.Errorf("expected channel bytes to follow the start code unchanged, got first=%d last=%d", port.written[1], port.written[512])
	}
}

func TestSendFrameMarksUnhealthyOnWriteError(t *testing.T) {
	port := &fakeSerialPort{failing: true}
	s := &SerialDmxSink{port: port}
	s.healthy.Store(true)

	var frame [512]byte
	err := s.SendFrame(0, frame)
	if err == nil {
		t.Fatal("expected an error when the underlying write fails")
	}
	if s.Healthy() {
		t.Error("expected sink to report unhealthy after a failed write")
	}
}

func TestSendFrameRecoversHealthyOnSuccess(t *testing.T) {
	port := &fakeSerialPort{}
	s := &SerialDmxSink{port: port}
	s.healthy.Store(false)

	var frame [512]byte
	if err := s.SendFrame(0, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Healthy() {
		t.Error("expected a successful write to restore healthy status")
	}
}

func TestCloseDelegatesToPort(t *testing.T) {
	port := &fakeSerialPort{}
	s := &SerialDmxSink{port: port}
	if err := s.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
