// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duskline/internal/broadcast"
	"duskline/internal/circadian"
	"duskline/internal/config"
	"duskline/internal/dmxout"
	"duskline/internal/dtw"
	"duskline/internal/hardware"
	"duskline/internal/http"
	"duskline/internal/modbus"
	"duskline/internal/mqtt"
	"duskline/internal/resolver"
	"duskline/internal/scheduler"
	"duskline/internal/store"
	"duskline/internal/switches"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		dryRun     = flag.Bool("dry-run", false, "Validate config and exit")
	)
	flag.Parse()

	opts := &slog.HandlerOptions{Level: parseLogLevel(*logLevel)}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	logger.Info("duskline starting", "version", "1.0.0")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"fixtures", len(cfg.Fixtures),
		"groups", len(cfg.Groups),
		"scenes", len(cfg.Scenes),
		"switches", len(cfg.Switches),
		"http", cfg.Server.HTTP)

	if *dryRun {
		logger.Info("dry run mode - configuration is valid")
		os.Exit(0)
	}

	var configMTime time.Time
	if info, err := os.Stat(*configPath); err == nil {
		configMTime = info.ModTime()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	pub := broadcast.New(time.Duration(cfg.System.BroadcastThrottleMs)*time.Millisecond, logger)
	st := store.New(cfg, pub, logger)
	dtwEngine := dtw.New(cfg)

	realIO, realSink := initHardware(cfg, logger)
	supervisor := hardware.NewSupervisor(realIO, realSink, logger)

	switchEngine := switches.New(cfg.System, supervisor.IO(), st, pub, logger)
	composer := dmxout.New(cfg, supervisor.Sink(), time.Duration(cfg.DMX.DedupeMs)*time.Millisecond, logger)

	tickFn := func(now time.Time) error {
		live := st.Config()
		st.DrainMutations()
		switchEngine.Process(now, live.Switches, live.Groups)
		st.Tick(now)
		resolved := resolver.ResolveAll(st, live, dtwEngine)
		return composer.Compose(now, resolved)
	}
	executor := scheduler.NewTickExecutor(cfg.System.ControlLoopHz, tickFn, logger)

	executor.Register(scheduler.Job{
		Name:     "circadian",
		Interval: 5 * time.Second,
		Run:      func(now time.Time) error { return circadian.Update(st.Config(), st, now) },
	})
	executor.Register(scheduler.Job{
		Name:     "override_sweep",
		Interval: 30 * time.Second,
		Run: func(now time.Time) error {
			if n := st.SweepExpiredOverrides(now); n > 0 {
				logger.Debug("swept expired overrides", "count", n)
			}
			return nil
		},
	})
	executor.Register(scheduler.Job{
		Name:     "hardware_health",
		Interval: 10 * time.Second,
		Run:      supervisor.CheckHealth,
	})
	executor.Register(scheduler.Job{
		Name:     "persistence_flush",
		Interval: 5 * time.Second,
		Run: func(now time.Time) error {
			if st.TakeDirty() {
				logger.Debug("runtime state dirty, flush due")
			}
			return nil
		},
	})
	executor.Register(scheduler.Job{
		Name:     "config_reload",
		Interval: 5 * time.Second,
		Run:      reloadConfig(*configPath, st, dtwEngine, composer, switchEngine, &configMTime, logger),
	})

	go executor.Run()

	clockSched, err := scheduler.NewClockScheduler(cfg.Schedule, st, logger)
	if err != nil {
		logger.Error("failed to build clock scheduler", "error", err)
		os.Exit(1)
	}
	clockSched.Start()

	httpServer := http.NewServer(cfg, st, pub, logger)
	httpServer.SetClockScheduler(clockSched)
	if err := httpServer.Start(); err != nil {
		logger.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT != nil {
		mqttClient = mqtt.NewClient(&mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.MQTT.TopicPrefix,
		}, st, pub, logger)
		if err := mqttClient.Start(); err != nil {
			logger.Error("failed to start MQTT client", "error", err)
			os.Exit(1)
		}
	}

	var modbusServer *modbus.Server
	if cfg.Modbus != nil {
		modbusServer = modbus.NewServer(&modbus.Config{Port: cfg.Modbus.Port}, st, logger)
		if err := modbusServer.Start(); err != nil {
			logger.Error("failed to start Modbus server", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("duskline ready",
		"http", cfg.Server.HTTP,
		"control_loop_hz", cfg.System.ControlLoopHz,
		"modbus", cfg.Modbus != nil,
		"mqtt", cfg.MQTT != nil,
		"schedule_events", scheduleEventCount(cfg))

	<-ctx.Done()

	logger.Info("initiating graceful shutdown...")

	if modbusServer != nil {
		modbusServer.Stop()
	}
	if mqttClient != nil {
		mqttClient.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	clockSched.Stop()
	executor.Stop()

	if err := supervisor.Close(); err != nil {
		logger.Warn("hardware supervisor close error", "error", err)
	}

	logger.Info("duskline stopped")
}

// initHardware builds the real InputOutputDevice/DmxSink pair per
// configuration. A nil pair tells the supervisor to start on mock
// devices, which is treated as non-fatal: a daemon with no hardware
// attached is still useful for simulation and API development.
func initHardware(cfg *config.Config, logger *slog.Logger) (hardware.InputOutputDevice, hardware.DmxSink) {
	var io hardware.InputOutputDevice
	gpio, err := hardware.NewGPIOIODevice()
	if err != nil {
		logger.Warn("gpio init failed, switch inputs will use mock", "error", err)
	} else {
		io = gpio
	}

	var sink hardware.DmxSink
	if cfg.DMX.Sink == "serial" {
		serialSink, err := hardware.NewSerialDmxSink(cfg.DMX.Device)
		if err != nil {
			logger.Warn("dmx serial init failed, output will use mock", "error", err)
		} else {
			sink = serialSink
		}
	}

	return io, sink
}

// reloadConfig builds a periodic job that re-reads the config file when
// its mtime advances and fans the new snapshot out to every component
// that caches configuration-derived state: the store (new fixtures and
// groups), the DTW engine (dim-to-warm curve/range), the DMX composer,
// and the switch engine's dim_speed_ms/hold_threshold/tap_window
// tunables, which the teacher's doc comment promises are hot-reloadable
// without a restart.
func reloadConfig(path string, st *store.Store, dtwEngine *dtw.Engine, composer *dmxout.Stage, switchEngine *switches.Engine, mtime *time.Time, logger *slog.Logger) func(time.Time) error {
	return func(now time.Time) error {
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		if !info.ModTime().After(*mtime) {
			return nil
		}
		newCfg, err := config.Load(path)
		if err != nil {
			logger.Warn("config reload failed, keeping previous configuration", "error", err, "path", path)
			return nil
		}
		*mtime = info.ModTime()
		st.SwapConfig(newCfg)
		dtwEngine.SwapConfig(newCfg)
		composer.SwapConfig(newCfg)
		switchEngine.RefreshSystemSettings(newCfg.System)
		logger.Info("configuration reloaded",
			"dim_speed_ms", newCfg.System.DimSpeedMs,
			"hold_threshold_seconds", newCfg.System.HoldThresholdSeconds,
			"dtw_enabled", newCfg.System.DTWEnabled,
			"dtw_curve", newCfg.System.DTWCurve)
		return nil
	}
}

func scheduleEventCount(cfg *config.Config) int {
	if cfg.Schedule == nil {
		return 0
	}
	return len(cfg.Schedule.Events)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
