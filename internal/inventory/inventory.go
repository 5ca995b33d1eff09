// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package inventory enrolls hypervisor hosts into the reservable
// inventory and keeps their capability records up to date.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scroiset/climate/internal/fleet"
	"github.com/scroiset/climate/internal/pool"
	"github.com/scroiset/climate/internal/store"
)

var (
	// Hosts with running servers cannot be enrolled.
	ErrHostHasServers = errors.New("host has servers running")
	// Updates are limited to capabilities that already exist.
	ErrUnknownCapability = errors.New("no such extra capability")
	// Hosts holding allocations cannot leave the inventory.
	ErrHostAllocated = errors.New("host has active allocations")
)

// Inventory over the reservable hosts. Enrollment pulls the static
// hypervisor attributes from the fleet control plane and parks the
// host in the free pool.
type Inventory struct {
	Store    *store.Store
	Pools    *pool.Manager
	Provider fleet.Provider
}

func New(s *store.Store, pools *pool.Manager, provider fleet.Provider) *Inventory {
	return &Inventory{Store: s, Pools: pools, Provider: provider}
}

// Enroll a host into the reservable inventory. The host must exist on
// the fleet control plane and must not have any servers running. Extra
// capabilities are stored alongside the imported static attributes,
// and the host joins the free pool.
func (inv *Inventory) AddHost(ctx context.Context, name string, capabilities map[string]string) (*store.Host, error) {
	servers, err := inv.Provider.HostServers(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(servers) > 0 {
		return nil, fmt.Errorf("%w: %q runs %d servers", ErrHostHasServers, name, len(servers))
	}
	details, err := inv.Provider.GetHostDetails(ctx, name)
	if err != nil {
		return nil, err
	}
	host := &store.Host{
		VCPUs:              details.VCPUs,
		CPUInfo:            details.CPUInfo,
		HypervisorType:     details.HypervisorType,
		HypervisorVersion:  details.HypervisorVersion,
		HypervisorHostname: details.HypervisorHostname,
		MemoryMB:           details.MemoryMB,
		LocalGB:            details.LocalGB,
		Status:             details.Status,
	}
	extra := make([]*store.HostExtraCapability, 0, len(capabilities))
	for key, value := range capabilities {
		extra = append(extra, &store.HostExtraCapability{
			CapabilityName:  key,
			CapabilityValue: value,
		})
	}
	if err := inv.Store.CreateHost(host, extra); err != nil {
		return nil, err
	}
	if err := inv.Pools.AddHostToFreePool(ctx, details.HypervisorHostname); err != nil {
		// Do not leave a host in the inventory that never made it
		// into the free pool.
		if derr := inv.Store.DestroyHost(host.ID); derr != nil {
			slog.Error("inventory: orphaned host record", "host", host.ID, "error", derr)
		}
		return nil, err
	}
	slog.Info("inventory: host enrolled", "host", host.ID, "hostname", name)
	return host, nil
}

func (inv *Inventory) GetHost(id string) (*store.Host, error) {
	return inv.Store.GetHost(id)
}

func (inv *Inventory) ListHosts() ([]store.Host, error) {
	return inv.Store.ListHosts()
}

// Update the values of existing extra capabilities. Static attributes
// imported from the fleet control plane and capabilities never declared
// for the host cannot be updated this way.
func (inv *Inventory) UpdateHost(ctx context.Context, id string, values map[string]string) error {
	if _, err := inv.Store.GetHost(id); err != nil {
		return err
	}
	for key, value := range values {
		existing, err := inv.Store.ListExtraCapabilitiesByHostAndName(id, key)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return fmt.Errorf("%w: %q on host %s", ErrUnknownCapability, key, id)
		}
		for _, c := range existing {
			if err := inv.Store.UpdateExtraCapabilityValue(c.ID, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove a host from the reservable inventory. The host must not hold
// any allocations. It leaves the free pool before its record is
// cascade-deleted.
func (inv *Inventory) RemoveHost(ctx context.Context, id string) error {
	host, err := inv.Store.GetHost(id)
	if err != nil {
		return err
	}
	allocations, err := inv.Store.ListAllocationsByHost(id)
	if err != nil {
		return err
	}
	if len(allocations) > 0 {
		return fmt.Errorf("%w: host %s", ErrHostAllocated, id)
	}
	if err := inv.Pools.RemoveHostsFromFreePool(ctx, host.HypervisorHostname); err != nil {
		// The host may have been pulled out of the free pool by hand,
		// still drop it from the inventory then.
		if !errors.Is(err, pool.ErrHostNotInFreePool) {
			return err
		}
		slog.Warn("inventory: host was not in the freepool", "host", id)
	}
	return inv.Store.DestroyHost(id)
}
