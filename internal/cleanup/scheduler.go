// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs an Engine on a fixed interval in the background until
// Stop is called.
type Scheduler struct {
	engine   *Engine
	cfg      Config
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewScheduler returns a Scheduler that is not yet started.
func NewScheduler(engine *Engine, cfg Config, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{engine: engine, cfg: cfg, interval: interval, logger: logger}
}

// Start launches the background goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()
}

// Stop signals the background goroutine to exit. It does not wait for the
// current cycle (if any) to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
}

// RunNow runs one cleanup cycle synchronously, independent of the ticker.
func (s *Scheduler) RunNow() (*Report, error) {
	return s.engine.Run(s.cfg, false)
}

func (s *Scheduler) runOnce() {
	report, err := s.engine.Run(s.cfg, false)
	if err != nil {
		s.logger.Error("cleanup cycle failed", "error", err)
		return
	}
	s.logger.Info("cleanup cycle completed",
		"deleted_sessions", report.DeletedSessions,
		"deleted_checkpoints", report.DeletedCheckpoints,
		"bytes_freed", report.BytesFreed,
		"duration", report.Duration,
		"errors", len(report.Errors),
	)
}
