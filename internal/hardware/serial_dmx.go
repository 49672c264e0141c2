// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package hardware

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
)

// dmxStartCode is the DMX512 null start code written ahead of the 512
// slots; no break/mark-after-break is generated before a frame.
const (
	dmxStartCode = 0x00
)

// SerialDmxSink transmits composed universe frames over a USB-to-RS485
// DMX512 transceiver. One sink drives exactly one universe; additional
// universes need additional sinks bound to additional serial ports.
type SerialDmxSink struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	cfg     *serial.Config
	healthy atomic.Bool
}

// NewSerialDmxSink opens a DMX512 transceiver on the given device path
// at the standard 250000 baud, 8N2 framing.
func NewSerialDmxSink(device string) (*SerialDmxSink, error) {
	cfg := &serial.Config{
		Address:  device,
		BaudRate: 250000,
		DataBits: 8,
		StopBits: 2,
		Parity:   "N",
		Timeout:  time.Second,
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open dmx serial port %s: %w", device, err)
	}
	s := &SerialDmxSink{port: port, cfg: cfg}
	s.healthy.Store(true)
	return s, nil
}

// SendFrame writes a DMX start code followed by the 512 channel bytes.
// universe is ignored: one SerialDmxSink is bound to exactly one serial
// port/universe by the caller.
func (s *SerialDmxSink) SendFrame(universe int, frame [512]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	packet := make([]byte, 0, 513)
	packet = append(packet, dmxStartCode)
	packet = append(packet, frame[:]...)

	if _, err := s.port.Write(packet); err != nil {
		s.healthy.Store(false)
		return fmt.Errorf("%w: write dmx frame: %v", ErrUnavailable, err)
	}
	s.healthy.Store(true)
	return nil
}

func (s *SerialDmxSink) Healthy() bool { return s.healthy.Load() }

func (s *SerialDmxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
