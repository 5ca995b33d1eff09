// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/sapcc/go-bits/jobloop"

	"github.com/scroiset/climate/internal/store"
)

// Run the timer loop until the context is cancelled. Each tick
// processes at most one due event, so a slow handler delays but never
// overlaps other lifecycle actions.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("manager: starting timer loop", "interval", s.tickInterval)
	timer := time.NewTimer(jobloop.DefaultJitter(s.tickInterval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		s.Tick(ctx)
		timer.Reset(jobloop.DefaultJitter(s.tickInterval))
	}
}

// Process the earliest due event, if any. A failing action leaves the
// event in ERROR for operator attention, it is not retried. Errors are
// contained to the tick, the loop keeps running.
func (s *Service) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { s.monitor.observeTick(time.Since(start)) }()

	event, err := s.nextDueEvent()
	if err != nil {
		slog.Error("manager: failed to fetch due events", "error", err)
		return
	}
	if event == nil {
		return
	}
	slog.Info("manager: processing event",
		"event", event.ID, "type", event.EventType, "lease", event.LeaseID)
	action, ok := s.eventActions[event.EventType]
	if !ok {
		// Cannot happen for events that passed creation, but an event
		// written by an older release might carry a retired type.
		slog.Error("manager: no action for event type",
			"event", event.ID, "type", event.EventType)
		s.markEvent(event.ID, store.EventStatusError)
		s.monitor.observeEvent(false)
		return
	}
	if err := action(ctx, event.LeaseID); err != nil {
		slog.Error("manager: event failed",
			"event", event.ID, "type", event.EventType, "lease", event.LeaseID, "error", err)
		s.markEvent(event.ID, store.EventStatusError)
		s.monitor.observeEvent(false)
		return
	}
	s.markEvent(event.ID, store.EventStatusDone)
	s.monitor.observeEvent(true)
}

// The earliest UNDONE event whose time has passed, or nil.
func (s *Service) nextDueEvent() (*store.Event, error) {
	events, err := s.Store.ListEventsSorted("time", "asc",
		map[string]any{"status": store.EventStatusUndone})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	event := events[0]
	if event.Time.After(time.Now().UTC()) {
		return nil, nil
	}
	return &event, nil
}

func (s *Service) markEvent(id, status string) {
	if err := s.Store.UpdateEventStatus(id, status); err != nil {
		slog.Error("manager: failed to update event status",
			"event", id, "status", status, "error", err)
	}
}
