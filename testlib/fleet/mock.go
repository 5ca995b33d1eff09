// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/scroiset/climate/internal/fleet"
)

// In-memory fleet provider for tests.
type MockProvider struct {
	mu     sync.Mutex
	nextID int
	pools  map[string]*fleet.Pool
	// Server ids per host, for hosts that should refuse enrollment.
	RunningServers map[string][]string
	// Hypervisor attributes per host. Hosts without an entry get
	// generic defaults.
	HostDetails map[string]fleet.HostDetails
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		pools:          map[string]*fleet.Pool{},
		RunningServers: map[string][]string{},
		HostDetails:    map[string]fleet.HostDetails{},
	}
}

func (p *MockProvider) ListPools(ctx context.Context) ([]fleet.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pools := make([]fleet.Pool, 0, len(p.pools))
	for _, pool := range p.pools {
		pools = append(pools, *pool)
	}
	return pools, nil
}

func (p *MockProvider) GetPool(ctx context.Context, idOrName string) (*fleet.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[idOrName]; ok {
		copied := *pool
		return &copied, nil
	}
	for _, pool := range p.pools {
		if pool.Name == idOrName {
			copied := *pool
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", fleet.ErrPoolNotFound, idOrName)
}

func (p *MockProvider) CreatePool(ctx context.Context, name, availabilityZone string) (*fleet.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	pool := &fleet.Pool{
		ID:               strconv.Itoa(p.nextID),
		Name:             name,
		AvailabilityZone: availabilityZone,
		Metadata:         map[string]string{},
	}
	p.pools[pool.ID] = pool
	copied := *pool
	return &copied, nil
}

func (p *MockProvider) DeletePool(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pools[id]; !ok {
		return fmt.Errorf("%w: %q", fleet.ErrPoolNotFound, id)
	}
	delete(p.pools, id)
	return nil
}

func (p *MockProvider) AddHost(ctx context.Context, poolID, host string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %q", fleet.ErrPoolNotFound, poolID)
	}
	if !slices.Contains(pool.Hosts, host) {
		pool.Hosts = append(pool.Hosts, host)
	}
	return nil
}

func (p *MockProvider) RemoveHost(ctx context.Context, poolID, host string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %q", fleet.ErrPoolNotFound, poolID)
	}
	i := slices.Index(pool.Hosts, host)
	if i < 0 {
		return fmt.Errorf("host %q not in pool %q", host, poolID)
	}
	pool.Hosts = slices.Delete(pool.Hosts, i, i+1)
	return nil
}

func (p *MockProvider) SetPoolMetadata(ctx context.Context, poolID string, metadata map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %q", fleet.ErrPoolNotFound, poolID)
	}
	for key, value := range metadata {
		pool.Metadata[key] = value
	}
	return nil
}

func (p *MockProvider) HostServers(ctx context.Context, host string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RunningServers[host], nil
}

func (p *MockProvider) GetHostDetails(ctx context.Context, host string) (*fleet.HostDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if details, ok := p.HostDetails[host]; ok {
		return &details, nil
	}
	return &fleet.HostDetails{
		VCPUs:              4,
		CPUInfo:            `{"arch":"x86_64"}`,
		HypervisorType:     "QEMU",
		HypervisorVersion:  2012000,
		HypervisorHostname: host,
		MemoryMB:           8192,
		LocalGB:            100,
		Status:             "enabled",
	}, nil
}
