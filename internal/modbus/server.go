// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package modbus

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/tbrandon/mbserver"

	"duskline/internal/store"
)

// Config for Modbus TCP server.
type Config struct {
	Port string `yaml:"port"` // ":502" or ":5020"
}

// Server is the Modbus TCP bridge. Each configured fixture occupies two
// consecutive holding registers, in config declaration order:
//   - register 2*i     = brightness, 0-1000 (0.1% resolution)
//   - register 2*i + 1 = color temperature in Kelvin
//
// Coil 0 is write-only and triggers an all-fixture blackout on write 1.
type Server struct {
	cfg    *Config
	st     *store.Store
	logger *slog.Logger
	mb     *mbserver.Server
	mu     sync.RWMutex

	fixtureIDs []string
}

// NewServer creates a new Modbus TCP server bound to the store.
func NewServer(cfg *Config, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		st:     st,
		logger: logger,
	}
}

// Start starts the Modbus TCP server.
func (s *Server) Start() error {
	s.mu.Lock()
	fixtures := s.st.Config().Fixtures
	s.fixtureIDs = make([]string, len(fixtures))
	for i, f := range fixtures {
		s.fixtureIDs[i] = f.ID
	}
	s.mu.Unlock()

	s.mb = mbserver.NewServer()

	s.mb.RegisterFunctionHandler(3, s.handleReadHoldingRegisters)
	s.mb.RegisterFunctionHandler(6, s.handleWriteSingleRegister)
	s.mb.RegisterFunctionHandler(16, s.handleWriteMultipleRegisters)
	s.mb.RegisterFunctionHandler(1, s.handleReadCoils)
	s.mb.RegisterFunctionHandler(5, s.handleWriteSingleCoil)

	addr := s.cfg.Port
	if addr == "" {
		addr = ":502"
	}

	s.logger.Info("modbus TCP server starting", "addr", addr, "fixtures", len(s.fixtureIDs))

	go func() {
		if err := s.mb.ListenTCP(addr); err != nil {
			s.logger.Error("modbus TCP server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the Modbus TCP server.
func (s *Server) Stop() {
	if s.mb != nil {
		s.mb.Close()
		s.logger.Info("modbus TCP server stopped")
	}
}

func (s *Server) fixtureAt(registerIndex uint16) (id string, isCCT bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := int(registerIndex) / 2
	if i < 0 || i >= len(s.fixtureIDs) {
		return "", false, false
	}
	return s.fixtureIDs[i], registerIndex%2 == 1, true
}

func (s *Server) registerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fixtureIDs) * 2
}

// FC03: Read Holding Registers.
func (s *Server) handleReadHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])

	if int(startAddr)+int(quantity) > s.registerCount() {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	resp := make([]byte, 1+quantity*2)
	resp[0] = byte(quantity * 2)

	for i := uint16(0); i < quantity; i++ {
		reg := startAddr + i
		id, isCCT, ok := s.fixtureAt(reg)
		var val uint16
		if ok {
			snap, found := s.st.FixtureSnapshot(id)
			if found {
				if isCCT {
					val = uint16(snap.CurrentCCTK)
				} else {
					val = uint16(snap.CurrentBrightness * 1000)
				}
			}
		}
		binary.BigEndian.PutUint16(resp[1+i*2:], val)
	}

	return resp, &mbserver.Success
}

// FC06: Write Single Register.
func (s *Server) handleWriteSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if err := s.writeRegister(addr, value); err != nil {
		s.logger.Warn("modbus write failed", "register", addr, "error", err)
		return []byte{}, &mbserver.SlaveDeviceFailure
	}

	return data[:4], &mbserver.Success
}

// FC16: Write Multiple Registers.
func (s *Server) handleWriteMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := data[4]

	if int(startAddr)+int(quantity) > s.registerCount() {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if int(byteCount) != int(quantity)*2 || len(data) < 5+int(byteCount) {
		return []byte{}, &mbserver.IllegalDataValue
	}

	for i := uint16(0); i < quantity; i++ {
		value := binary.BigEndian.Uint16(data[5+i*2:])
		if err := s.writeRegister(startAddr+i, value); err != nil {
			s.logger.Warn("modbus write failed", "register", startAddr+i, "error", err)
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], startAddr)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

func (s *Server) writeRegister(addr, value uint16) error {
	id, isCCT, ok := s.fixtureAt(addr)
	if !ok {
		return errOutOfRange
	}
	if isCCT {
		return s.st.SetFixtureCCT(id, float64(value), nil, store.EaseLinear, false)
	}
	b := float64(value) / 1000.0
	return s.st.SetFixtureBrightness(id, b, nil, store.EaseLinear, false)
}

var errOutOfRange = &rangeError{}

type rangeError struct{}

func (*rangeError) Error() string { return "register out of configured fixture range" }

// FC01: Read Coils. Coil 0 is always reported low; blackout is write-only.
func (s *Server) handleReadCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	if startAddr+quantity > 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	resp := []byte{1, 0}
	return resp, &mbserver.Success
}

// FC05: Write Single Coil. Coil 0 write 1 triggers an all-fixture blackout.
func (s *Server) handleWriteSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])
	on := value == 0xFF00

	if addr != 0 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if on {
		s.mu.RLock()
		ids := append([]string(nil), s.fixtureIDs...)
		s.mu.RUnlock()
		for _, id := range ids {
			if err := s.st.SetFixtureBrightness(id, 0, nil, store.EaseLinear, false); err != nil {
				s.logger.Warn("modbus blackout write failed", "fixture", id, "error", err)
			}
		}
		s.logger.Info("modbus: blackout triggered")
	}

	return data[:4], &mbserver.Success
}
