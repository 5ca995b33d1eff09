// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package hosts implements the reservation handler for whole physical
// hosts. A reservation gets its own pool, the allocated hosts move
// into it when the lease starts and return to the free pool when it
// ends.
package hosts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scroiset/climate/internal/alloc"
	"github.com/scroiset/climate/internal/conf"
	"github.com/scroiset/climate/internal/fleet"
	"github.com/scroiset/climate/internal/manager"
	"github.com/scroiset/climate/internal/pool"
	"github.com/scroiset/climate/internal/store"
)

// Resource type served by this handler.
const ResourceType = "physical:host"

// Options for this handler, given in the config under its resource
// type.
type Options struct {
	// Count range applied when a reservation request omits one.
	DefaultCountRange string `yaml:"default_count_range"`
}

type Handler struct {
	conf.YamlOpts[Options]

	Store *store.Store
	Alloc *alloc.Engine
	Pools *pool.Manager
}

func NewHandler(s *store.Store, engine *alloc.Engine, pools *pool.Manager) *Handler {
	h := &Handler{Store: s, Alloc: engine, Pools: pools}
	h.Options.DefaultCountRange = "1-1"
	return h
}

// Load the configured options. Omitted options keep their defaults.
func (h *Handler) Init(opts conf.RawOpts) error {
	if err := h.Load(opts); err != nil {
		return err
	}
	if h.Options.DefaultCountRange == "" {
		h.Options.DefaultCountRange = "1-1"
	}
	_, _, err := alloc.ParseCountRange(h.Options.DefaultCountRange)
	return err
}

func (h *Handler) ResourceType() string { return ResourceType }

// Serialize a requirement expression for the detail record. Strings
// pass through, anything else keeps its JSON form.
func encodeProperties(v any) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// Select hosts for the lease window and persist the reservation with
// its allocations in one transaction. The reservation's resource id is
// the pool created for it.
func (h *Handler) CreateReservation(
	ctx context.Context, lease *store.Lease, spec manager.ReservationSpec,
) (*store.Reservation, error) {
	countRange := spec.CountRange
	if countRange == "" {
		countRange = h.Options.DefaultCountRange
	}
	window := alloc.Window{Start: lease.StartDate, End: lease.EndDate}
	hostIDs, err := h.Alloc.Match(
		spec.HypervisorProperties, spec.ResourceProperties, countRange, window)
	if err != nil {
		return nil, err
	}
	hypervisorProps, err := encodeProperties(spec.HypervisorProperties)
	if err != nil {
		return nil, err
	}
	resourceProps, err := encodeProperties(spec.ResourceProperties)
	if err != nil {
		return nil, err
	}

	reservationPool, err := h.Pools.CreatePool(ctx)
	if err != nil {
		return nil, err
	}
	reservation := &store.Reservation{
		LeaseID:      lease.ID,
		ResourceID:   reservationPool.ID,
		ResourceType: ResourceType,
		Status:       store.StatusPending,
	}
	detail := &store.HostReservation{
		HypervisorProperties: hypervisorProps,
		ResourceProperties:   resourceProps,
		CountRange:           countRange,
		Status:               store.StatusPending,
	}
	allocations := make([]*store.HostAllocation, len(hostIDs))
	for i, hostID := range hostIDs {
		allocations[i] = &store.HostAllocation{ComputeHostID: hostID}
	}
	if err := h.Store.CreateHostReservation(reservation, detail, allocations); err != nil {
		// The empty pool is useless without its reservation.
		if derr := h.Pools.DeletePool(ctx, reservationPool.ID, false); derr != nil {
			slog.Error("hosts: orphaned reservation pool",
				"pool", reservationPool.ID, "error", derr)
		}
		return nil, err
	}
	slog.Info("hosts: reservation created",
		"reservation", reservation.ID, "pool", reservationPool.ID, "hosts", len(hostIDs))
	return reservation, nil
}

// Move the allocated hosts from the free pool into the reservation's
// pool, handing them to the tenant.
func (h *Handler) OnStart(ctx context.Context, reservationID string) error {
	reservation, err := h.Store.GetReservation(reservationID)
	if err != nil {
		return err
	}
	detail, err := h.Store.GetHostReservationByReservation(reservationID)
	if err != nil {
		return err
	}
	allocations, err := h.Store.ListAllocationsByReservation(reservationID)
	if err != nil {
		return err
	}
	for _, allocation := range allocations {
		host, err := h.Store.GetHost(allocation.ComputeHostID)
		if err != nil {
			return err
		}
		if err := h.Pools.AddHost(ctx, reservation.ResourceID, host.HypervisorHostname); err != nil {
			return err
		}
	}
	return h.Store.UpdateHostReservationStatus(detail.ID, store.StatusActive)
}

// Return the hosts to the free pool, drop the allocations and delete
// the reservation's pool.
func (h *Handler) OnEnd(ctx context.Context, reservationID string) error {
	reservation, err := h.Store.GetReservation(reservationID)
	if err != nil {
		return err
	}
	detail, err := h.Store.GetHostReservationByReservation(reservationID)
	if err != nil {
		return err
	}
	if err := h.Store.UpdateHostReservationStatus(detail.ID, store.StatusCompleted); err != nil {
		return err
	}
	allocations, err := h.Store.ListAllocationsByReservation(reservationID)
	if err != nil {
		return err
	}
	var hostnames []string
	for _, allocation := range allocations {
		host, err := h.Store.GetHost(allocation.ComputeHostID)
		if err != nil {
			return err
		}
		hostnames = append(hostnames, host.HypervisorHostname)
	}
	if len(hostnames) > 0 {
		if err := h.Pools.RemoveHosts(ctx, reservation.ResourceID, hostnames...); err != nil {
			return err
		}
	}
	for _, allocation := range allocations {
		if err := h.Store.DestroyAllocation(allocation.ID); err != nil {
			return err
		}
	}
	return h.Pools.DeletePool(ctx, reservation.ResourceID, false)
}

// Tear down whatever the reservation still holds: evacuate and delete
// its pool if it still exists and drop remaining allocations. The
// database rows themselves cascade away with the lease.
func (h *Handler) DeleteReservation(ctx context.Context, reservationID string) error {
	reservation, err := h.Store.GetReservation(reservationID)
	if err != nil {
		return err
	}
	if err := h.Pools.DeletePool(ctx, reservation.ResourceID, true); err != nil {
		if !errors.Is(err, fleet.ErrPoolNotFound) {
			return fmt.Errorf("deleting pool of reservation %s: %w", reservationID, err)
		}
	}
	allocations, err := h.Store.ListAllocationsByReservation(reservationID)
	if err != nil {
		return err
	}
	for _, allocation := range allocations {
		if err := h.Store.DestroyAllocation(allocation.ID); err != nil {
			return err
		}
	}
	return nil
}
