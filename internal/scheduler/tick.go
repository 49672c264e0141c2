// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"duskline/internal/faults"
	"duskline/internal/metrics"
)

// TickFunc runs once per control-loop tick. An error is logged and
// swallowed — a tick must never stop the loop.
type TickFunc func(now time.Time) error

// Job is a named task run on its own fixed interval from inside the
// tick loop, rather than on every tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time) error

	lastRun time.Time
}

// TickExecutor drives the fixed-tempo control loop: it calls the core
// tick function at the configured rate and, interleaved, any registered
// periodic job whose interval has elapsed.
type TickExecutor struct {
	logger *slog.Logger
	hz     int
	tick   TickFunc

	mu   sync.Mutex
	jobs []*Job

	overruns uint64
	ticks    uint64

	stop chan struct{}
	done chan struct{}
}

// NewTickExecutor builds an executor at the given rate (default 30 if
// hz <= 0).
func NewTickExecutor(hz int, tick TickFunc, logger *slog.Logger) *TickExecutor {
	if hz <= 0 {
		hz = 30
	}
	return &TickExecutor{
		logger: logger,
		hz:     hz,
		tick:   tick,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a periodic job. Safe to call before Run; calling after
// Run has started is also safe (guarded by the same mutex the tick loop
// checks).
func (e *TickExecutor) Register(job Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j := job
	e.jobs = append(e.jobs, &j)
}

// Run blocks, driving the tick loop until Stop is called or ctx-less
// caller cancels by closing via Stop.
func (e *TickExecutor) Run() {
	defer close(e.done)

	period := time.Second / time.Duration(e.hz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.runOnce(now, period)
		}
	}
}

func (e *TickExecutor) runOnce(now time.Time, period time.Duration) {
	start := time.Now()
	e.ticks++
	metrics.TicksTotal.Inc()

	if err := e.tick(now); err != nil {
		e.logger.Error("tick failed", "error", err)
	}

	e.mu.Lock()
	jobs := e.jobs
	e.mu.Unlock()

	for _, job := range jobs {
		if job.lastRun.IsZero() || now.Sub(job.lastRun) >= job.Interval {
			job.lastRun = now
			if err := job.Run(now); err != nil {
				e.logger.Warn("periodic job failed", "job", job.Name, "error", err)
			}
		}
	}

	if elapsed := time.Since(start); elapsed > period {
		e.overruns++
		metrics.TickOverrunsTotal.Inc()
		err := &faults.TickOverrunError{Budget: int64(period), Actual: int64(elapsed)}
		e.logger.Warn("tick overran its period", "error", err)
	}
}

// Stop signals the loop to exit and blocks until it has.
func (e *TickExecutor) Stop() {
	close(e.stop)
	<-e.done
}

// Stats returns (ticks run, overrun count), for metrics.
func (e *TickExecutor) Stats() (ticks, overruns uint64) {
	return e.ticks, e.overruns
}
