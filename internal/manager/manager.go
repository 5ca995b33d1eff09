// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager owns the lease lifecycle: creation, deletion, and
// the timer loop that fires lease events at their due time.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scroiset/climate/internal/conf"
	"github.com/scroiset/climate/internal/store"
)

var (
	// The date string is neither "now" nor of the accepted layout.
	ErrInvalidDate = errors.New("invalid date")
	// The lease window is empty, inverted or starts in the past.
	ErrInvalidWindow = errors.New("invalid lease window")
)

// Accepted layout for lease dates, minute granularity.
const DateLayout = "2006-01-02 15:04"

// Lease creation request as submitted by the tenant. Dates are given
// as strings so "now" can stand in for the current time.
type LeaseRequest struct {
	Name         string            `json:"name"`
	ProjectID    string            `json:"project_id"`
	StartDate    string            `json:"start_date"`
	EndDate      string            `json:"end_date"`
	Reservations []ReservationSpec `json:"reservations"`
}

// A lease with its reservations and events attached.
type LeaseView struct {
	store.Lease
	Reservations []store.Reservation `json:"reservations"`
	Events       []store.Event       `json:"events"`
}

// Service drives the lease lifecycle over the registered handlers.
type Service struct {
	Store    *store.Store
	Handlers Registry

	monitor      Monitor
	tickInterval time.Duration
	// Closed dispatch table from event type to action, fixed at
	// construction.
	eventActions map[string]func(ctx context.Context, leaseID string) error
}

func NewService(s *store.Store, handlers Registry, c conf.ManagerConfig, monitor Monitor) *Service {
	interval := time.Duration(c.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	svc := &Service{
		Store:        s,
		Handlers:     handlers,
		monitor:      monitor,
		tickInterval: interval,
	}
	svc.eventActions = map[string]func(ctx context.Context, leaseID string) error{
		store.EventTypeStartLease: svc.startLease,
		store.EventTypeEndLease:   svc.endLease,
	}
	return svc
}

// Parse a lease date, accepting the literal "now".
func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "now" {
		return now, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t.UTC(), nil
}

// Create a lease with its reservations and lifecycle events. The lease
// row and its events are committed first, then each reservation is
// allocated through its handler. A failing handler destroys the whole
// lease again so no half-created lease survives.
func (s *Service) CreateLease(ctx context.Context, req LeaseRequest) (*LeaseView, error) {
	now := time.Now().UTC().Truncate(time.Minute)
	start, err := parseDate(req.StartDate, now)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(req.EndDate, now)
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start, end)
	}
	if start.Before(now) {
		return nil, fmt.Errorf("%w: start %s is in the past", ErrInvalidWindow, start)
	}
	for _, spec := range req.Reservations {
		if _, err := s.Handlers.Get(spec.ResourceType); err != nil {
			return nil, err
		}
	}

	lease := &store.Lease{
		Name:      req.Name,
		ProjectID: req.ProjectID,
		StartDate: start,
		EndDate:   end,
	}
	events := []*store.Event{
		{EventType: store.EventTypeStartLease, Time: start},
		{EventType: store.EventTypeEndLease, Time: end},
	}
	if err := s.Store.CreateLease(lease, nil, events); err != nil {
		return nil, err
	}
	for _, spec := range req.Reservations {
		handler, err := s.Handlers.Get(spec.ResourceType)
		if err == nil {
			_, err = handler.CreateReservation(ctx, lease, spec)
		}
		if err != nil {
			if derr := s.Store.DestroyLease(lease.ID); derr != nil {
				slog.Error("manager: rollback of failed lease creation failed",
					"lease", lease.ID, "error", derr)
			}
			return nil, err
		}
	}
	slog.Info("manager: lease created",
		"lease", lease.ID, "name", lease.Name, "start", start, "end", end)
	return s.GetLease(lease.ID)
}

func (s *Service) GetLease(id string) (*LeaseView, error) {
	lease, err := s.Store.GetLease(id)
	if err != nil {
		return nil, err
	}
	reservations, err := s.Store.ListReservationsByLease(id)
	if err != nil {
		return nil, err
	}
	events, err := s.Store.ListEventsByLease(id)
	if err != nil {
		return nil, err
	}
	return &LeaseView{Lease: *lease, Reservations: reservations, Events: events}, nil
}

// List leases, optionally scoped to one project.
func (s *Service) ListLeases(projectID string) ([]store.Lease, error) {
	if projectID == "" {
		return s.Store.ListLeases()
	}
	return s.Store.ListLeasesByProject(projectID)
}

// Rename a lease. The window and the reservations are immutable.
func (s *Service) UpdateLease(ctx context.Context, id, name string) (*LeaseView, error) {
	if _, err := s.Store.UpdateLeaseName(id, name); err != nil {
		return nil, err
	}
	return s.GetLease(id)
}

// Delete a lease. Each reservation's handler tears down whatever the
// reservation still holds, then the lease cascades away.
func (s *Service) DeleteLease(ctx context.Context, id string) error {
	lease, err := s.Store.GetLease(id)
	if err != nil {
		return err
	}
	reservations, err := s.Store.ListReservationsByLease(id)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		handler, err := s.Handlers.Get(r.ResourceType)
		if err != nil {
			return err
		}
		if err := handler.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}
	}
	if err := s.Store.DestroyLease(id); err != nil {
		return err
	}
	slog.Info("manager: lease deleted", "lease", id, "name", lease.Name)
	return nil
}

// Hand all reservations of the lease to their tenants.
func (s *Service) startLease(ctx context.Context, leaseID string) error {
	reservations, err := s.Store.ListReservationsByLease(leaseID)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		handler, err := s.Handlers.Get(r.ResourceType)
		if err != nil {
			return err
		}
		if err := handler.OnStart(ctx, r.ID); err != nil {
			return err
		}
		if err := s.Store.UpdateReservationStatus(r.ID, store.StatusActive); err != nil {
			return err
		}
	}
	return nil
}

// Reclaim all reservations of the lease.
func (s *Service) endLease(ctx context.Context, leaseID string) error {
	reservations, err := s.Store.ListReservationsByLease(leaseID)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		handler, err := s.Handlers.Get(r.ResourceType)
		if err != nil {
			return err
		}
		if err := handler.OnEnd(ctx, r.ID); err != nil {
			return err
		}
		if err := s.Store.UpdateReservationStatus(r.ID, store.StatusCompleted); err != nil {
			return err
		}
	}
	return nil
}
