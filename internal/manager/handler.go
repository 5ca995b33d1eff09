// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/scroiset/climate/internal/store"
)

// No handler is registered for the requested resource type.
var ErrUnsupportedResourceType = errors.New("unsupported resource type")

// Requested reservation within a lease, as submitted by the tenant.
type ReservationSpec struct {
	ResourceType         string `json:"resource_type"`
	CountRange           string `json:"count_range"`
	HypervisorProperties any    `json:"hypervisor_properties,omitempty"`
	ResourceProperties   any    `json:"resource_properties,omitempty"`
}

// Handler implements the lifecycle of one resource type. Handlers are
// registered once at startup, the set never changes at runtime.
type Handler interface {
	// The resource type this handler serves, e.g. "physical:host".
	ResourceType() string
	// Allocate resources for the reservation and persist it. Called
	// during lease creation, before the lease becomes visible.
	CreateReservation(ctx context.Context, lease *store.Lease, spec ReservationSpec) (*store.Reservation, error)
	// Hand the reserved resources to the tenant.
	OnStart(ctx context.Context, reservationID string) error
	// Reclaim the reserved resources.
	OnEnd(ctx context.Context, reservationID string) error
	// Tear down whatever the reservation still holds, regardless of
	// its lifecycle state. Called during lease deletion.
	DeleteReservation(ctx context.Context, reservationID string) error
}

// Registry of handlers keyed by resource type, assembled at startup.
type Registry map[string]Handler

func NewRegistry(handlers ...Handler) (Registry, error) {
	registry := Registry{}
	for _, h := range handlers {
		if _, ok := registry[h.ResourceType()]; ok {
			return nil, fmt.Errorf("duplicate handler for resource type %q", h.ResourceType())
		}
		registry[h.ResourceType()] = h
	}
	return registry, nil
}

func (r Registry) Get(resourceType string) (Handler, error) {
	h, ok := r[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResourceType, resourceType)
	}
	return h, nil
}
