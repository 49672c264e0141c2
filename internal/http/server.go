// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duskline/internal/api"
	"duskline/internal/broadcast"
	"duskline/internal/config"
	"duskline/internal/scheduler"
	"duskline/internal/store"
)

var startTime = time.Now()

//go:embed static/*
var staticFiles embed.FS

// HealthResponse is the typed payload for /api/health, avoiding a map
// allocation for a value read on every poll.
type HealthResponse struct {
	UptimeSec  int     `json:"uptime_sec"`
	UptimeStr  string  `json:"uptime_str"`
	Goroutines int     `json:"goroutines"`
	CPULoad1m  float64 `json:"cpu_load_1m"`
	CPULoad5m  float64 `json:"cpu_load_5m"`
	CPULoad15m float64 `json:"cpu_load_15m"`
	MemAllocMB float64 `json:"mem_alloc_mb"`
	MemSysMB   float64 `json:"mem_sys_mb"`
	MemHeapMB  float64 `json:"mem_heap_mb"`
	GCRuns     uint32  `json:"gc_runs"`
	GoVersion  string  `json:"go_version"`
	NumCPU     int     `json:"num_cpu"`
}

// Server is the HTTP/WebSocket server.
type Server struct {
	cfg    *config.Config
	st     *store.Store
	pub    *broadcast.Broadcaster
	api    *api.Handler
	clock  *scheduler.ClockScheduler
	logger *slog.Logger
	server *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, st *store.Store, pub *broadcast.Broadcaster, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		st:     st,
		pub:    pub,
		api:    api.NewHandler(st),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api", s.handleAPI)

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/blackout", s.handleBlackout)
	mux.HandleFunc("/api/fixtures", s.handleFixtures)
	mux.HandleFunc("/api/fixtures/", s.handleFixture)
	mux.HandleFunc("/api/groups", s.handleGroups)
	mux.HandleFunc("/api/groups/", s.handleGroup)
	mux.HandleFunc("/api/scenes/", s.handleSceneRecall)
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/schedule/next", s.handleScheduleNext)
	mux.HandleFunc("/api/health", s.handleHealth)

	mux.Handle("/metrics", promhttp.Handler())

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	s.server = &http.Server{
		Addr:    cfg.Server.HTTP,
		Handler: mux,
	}

	return s
}

// SetClockScheduler wires the clock scheduler for the schedule endpoints.
func (s *Server) SetClockScheduler(c *scheduler.ClockScheduler) {
	s.clock = c
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.cfg.Server.HTTP)
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleWebSocket streams broadcast events to the client and accepts
// unified API commands in return.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	subID, events := s.pub.Subscribe()
	defer s.pub.Unsubscribe(subID)

	outgoing := make(chan []byte, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Debug("websocket read error", "error", err)
				}
				return
			}
			resp := s.api.HandleJSON(message)
			outgoing <- resp
		}
	}()

	for {
		select {
		case data := <-outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write error", "error", err)
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write error", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// handleAPI handles the unified JSON API endpoint.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	resp := s.api.HandleJSON(body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.api.Handle(&api.Request{Cmd: "status"}))
}

func (s *Server) handleBlackout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.api.Handle(&api.Request{Cmd: "blackout"}))
}

func (s *Server) handleFixtures(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.api.Handle(&api.Request{Cmd: "fixtures"}))
}

func (s *Server) handleFixture(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/fixtures/")
	if id == "" {
		http.Error(w, "missing fixture id", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodPut {
		var body api.Request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body.Target = id
		body.TargetType = string(config.TargetFixture)
		if body.Cmd == "" {
			body.Cmd = "set_brightness"
		}
		s.jsonResponse(w, s.api.Handle(&body))
		return
	}

	snap, ok := s.st.FixtureSnapshot(id)
	if !ok {
		http.Error(w, "fixture not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, snap)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.api.Handle(&api.Request{Cmd: "groups"}))
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/groups/")
	if id == "" {
		http.Error(w, "missing group id", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodPut {
		var body api.Request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body.Target = id
		body.TargetType = string(config.TargetGroup)
		if body.Cmd == "" {
			body.Cmd = "set_brightness"
		}
		s.jsonResponse(w, s.api.Handle(&body))
		return
	}

	g, ok := s.cfg.GroupByID(id)
	if !ok {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, g)
}

func (s *Server) handleSceneRecall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/scenes/")
	s.jsonResponse(w, s.api.Handle(&api.Request{Cmd: "recall_scene", SceneID: id}))
}

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.clock == nil {
		s.jsonResponse(w, map[string]interface{}{"events": []interface{}{}})
		return
	}
	s.jsonResponse(w, map[string]interface{}{"next": s.clock.NextEvent()})
}

func (s *Server) handleScheduleNext(w http.ResponseWriter, r *http.Request) {
	if s.clock == nil {
		s.jsonResponse(w, nil)
		return
	}
	s.jsonResponse(w, s.clock.NextEvent())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var load1, load5, load15 float64
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Sscanf(string(data), "%f %f %f", &load1, &load5, &load15)
	}

	health := HealthResponse{
		UptimeSec:  int(time.Since(startTime).Seconds()),
		UptimeStr:  time.Since(startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		CPULoad1m:  load1,
		CPULoad5m:  load5,
		CPULoad15m: load15,
		MemAllocMB: float64(m.Alloc) / 1024 / 1024,
		MemSysMB:   float64(m.Sys) / 1024 / 1024,
		MemHeapMB:  float64(m.HeapAlloc) / 1024 / 1024,
		GCRuns:     m.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
	}

	s.jsonResponse(w, health)
}

// ServeHTTP exposes the underlying mux, for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.cfg.Server.HTTP
}
