// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool maintains the shared free pool and the per-reservation
// pools on top of the fleet provider. A host can only enter a
// reservation pool by transiting through the free pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/scroiset/climate/internal/conf"
	"github.com/scroiset/climate/internal/fleet"
)

var (
	// The designated free pool does not exist.
	ErrNoFreePool = errors.New("freepool does not exist")
	// The host is not a member of the free pool.
	ErrHostNotInFreePool = errors.New("host not in freepool")
	// The fleet provider refused to move the host, operator
	// intervention is required.
	ErrCantRemoveHost = errors.New("can't remove host from pool")
	// The pool still has hosts attached and force was not given.
	ErrPoolHasHosts = errors.New("pool still has hosts attached")
)

// Metadata key marking the tenant owning a reservation pool.
const OwnerMetadataKey = "climate:owner"

// Prefix for the availability zone exposed for a reservation pool.
const azPrefix = "climate:"

type Manager struct {
	Provider fleet.Provider
	// Name of the designated free pool.
	FreepoolName string
	// Tenant marker written into pool metadata.
	ProjectID string
}

func NewManager(provider fleet.Provider, c conf.PoolConfig, projectID string) *Manager {
	name := c.FreepoolName
	if name == "" {
		name = "freepool"
	}
	return &Manager{Provider: provider, FreepoolName: name, ProjectID: projectID}
}

// Assert the free pool exists, creating it without an availability
// zone marker if absent. Idempotent setup step at startup.
func (m *Manager) EnsureFreePool(ctx context.Context) error {
	_, err := m.Provider.GetPool(ctx, m.FreepoolName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fleet.ErrPoolNotFound) {
		return err
	}
	slog.Info("pool: creating freepool", "name", m.FreepoolName)
	_, err = m.Provider.CreatePool(ctx, m.FreepoolName, "")
	return err
}

func (m *Manager) freePool(ctx context.Context) (*fleet.Pool, error) {
	pool, err := m.Provider.GetPool(ctx, m.FreepoolName)
	if errors.Is(err, fleet.ErrPoolNotFound) {
		return nil, ErrNoFreePool
	}
	return pool, err
}

// Create an empty reservation pool exposed with an availability zone,
// tagged with the owning tenant.
func (m *Manager) CreatePool(ctx context.Context) (*fleet.Pool, error) {
	name := uuid.NewString()
	slog.Debug("pool: creating reservation pool", "name", name)
	pool, err := m.Provider.CreatePool(ctx, name, azPrefix+name)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{OwnerMetadataKey: m.ProjectID}
	if err := m.Provider.SetPoolMetadata(ctx, pool.ID, metadata); err != nil {
		return nil, err
	}
	return pool, nil
}

func (m *Manager) Get(ctx context.Context, idOrName string) (*fleet.Pool, error) {
	return m.Provider.GetPool(ctx, idOrName)
}

// Return the host names attached to the pool.
func (m *Manager) Hosts(ctx context.Context, idOrName string) ([]string, error) {
	pool, err := m.Provider.GetPool(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	return pool.Hosts, nil
}

// Move a host from the free pool into the given pool. The host must
// currently be a member of the free pool, which rules out
// double-booking at the pool membership level.
func (m *Manager) AddHost(ctx context.Context, idOrName, host string) error {
	pool, err := m.Provider.GetPool(ctx, idOrName)
	if err != nil {
		return err
	}
	freePool, err := m.freePool(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(freePool.Hosts, host) {
		return fmt.Errorf("%w: %s not in %q", ErrHostNotInFreePool, host, freePool.Name)
	}
	if err := m.Provider.RemoveHost(ctx, freePool.ID, host); err != nil {
		return fmt.Errorf("%w: %s", ErrCantRemoveHost, err)
	}
	return m.Provider.AddHost(ctx, pool.ID, host)
}

// Remove the hosts from the pool and return them to the free pool.
// A failing provider call surfaces as ErrCantRemoveHost and needs
// operator intervention, there is no automatic retry.
func (m *Manager) RemoveHosts(ctx context.Context, idOrName string, hosts ...string) error {
	pool, err := m.Provider.GetPool(ctx, idOrName)
	if err != nil {
		return err
	}
	freePool, err := m.freePool(ctx)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		if err := m.Provider.RemoveHost(ctx, pool.ID, host); err != nil {
			return fmt.Errorf("%w: %s", ErrCantRemoveHost, err)
		}
		if err := m.Provider.AddHost(ctx, freePool.ID, host); err != nil {
			return fmt.Errorf("%w: %s", ErrCantRemoveHost, err)
		}
	}
	return nil
}

// Add a host to the free pool. Adding a host that is already a member
// is a no-op.
func (m *Manager) AddHostToFreePool(ctx context.Context, host string) error {
	freePool, err := m.freePool(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(freePool.Hosts, host) {
		slog.Warn("pool: host is already in the freepool", "host", host)
		return nil
	}
	return m.Provider.AddHost(ctx, freePool.ID, host)
}

// Remove hosts from the free pool, e.g. when a host leaves the
// reservable inventory.
func (m *Manager) RemoveHostsFromFreePool(ctx context.Context, hosts ...string) error {
	freePool, err := m.freePool(ctx)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		if !slices.Contains(freePool.Hosts, host) {
			return fmt.Errorf("%w: %s not in %q", ErrHostNotInFreePool, host, freePool.Name)
		}
		if err := m.Provider.RemoveHost(ctx, freePool.ID, host); err != nil {
			return fmt.Errorf("%w: %s", ErrCantRemoveHost, err)
		}
	}
	return nil
}

// Delete a pool. Unless force is given, deleting a pool that still has
// members fails. All members are evacuated back to the free pool
// before the pool is deleted.
func (m *Manager) DeletePool(ctx context.Context, idOrName string, force bool) error {
	pool, err := m.Provider.GetPool(ctx, idOrName)
	if err != nil {
		return err
	}
	if len(pool.Hosts) > 0 && !force {
		return fmt.Errorf("%w: %q", ErrPoolHasHosts, pool.Name)
	}
	if len(pool.Hosts) > 0 {
		if err := m.RemoveHosts(ctx, idOrName, pool.Hosts...); err != nil {
			return err
		}
	}
	return m.Provider.DeletePool(ctx, pool.ID)
}
