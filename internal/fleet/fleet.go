// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleet abstracts the compute-fleet control plane that
// physically moves hosts between pools.
package fleet

import (
	"context"
	"errors"
)

// Returned when an id or name resolves to no pool.
var ErrPoolNotFound = errors.New("pool not found")

// Returned when a hostname resolves to no hypervisor.
var ErrHostNotFound = errors.New("host not found")

// A pool of compute hosts on the fleet control plane.
type Pool struct {
	ID               string
	Name             string
	AvailabilityZone string
	Hosts            []string
	Metadata         map[string]string
}

// Static attributes of a hypervisor host as reported by the fleet
// control plane.
type HostDetails struct {
	VCPUs              int
	CPUInfo            string
	HypervisorType     string
	HypervisorVersion  int
	HypervisorHostname string
	MemoryMB           int
	LocalGB            int
	Status             string
}

// Provider for fleet pool and host membership operations. All calls
// are synchronous remote calls.
type Provider interface {
	// List all pools.
	ListPools(ctx context.Context) ([]Pool, error)
	// Get a pool by id or, failing that, by name.
	GetPool(ctx context.Context, idOrName string) (*Pool, error)
	// Create an empty pool, optionally tagged with an availability zone.
	CreatePool(ctx context.Context, name, availabilityZone string) (*Pool, error)
	// Delete the pool. The pool should be empty.
	DeletePool(ctx context.Context, id string) error
	// Add the host to the pool.
	AddHost(ctx context.Context, poolID, host string) error
	// Remove the host from the pool.
	RemoveHost(ctx context.Context, poolID, host string) error
	// Set metadata on the pool.
	SetPoolMetadata(ctx context.Context, poolID string, metadata map[string]string) error
	// List the servers currently running on the host.
	HostServers(ctx context.Context, host string) ([]string, error)
	// Get the hypervisor attributes of the host.
	GetHostDetails(ctx context.Context, host string) (*HostDetails, error)
}
