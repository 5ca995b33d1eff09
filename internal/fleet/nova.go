// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/aggregates"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/hypervisors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"

	"github.com/scroiset/climate/internal/keystone"
)

// Provider implementation on OpenStack Nova host aggregates.
type novaProvider struct {
	// Keystone api to authenticate against.
	keystoneAPI keystone.KeystoneAPI
	// Which endpoint availability to use.
	availability string
	// Authenticated OpenStack service client for the compute service.
	sc *gophercloud.ServiceClient
}

// Create a new fleet provider backed by Nova host aggregates. The
// keystone api is authenticated on first use.
func NewNovaProvider(k keystone.KeystoneAPI, availability string) (Provider, error) {
	return &novaProvider{keystoneAPI: k, availability: availability}, nil
}

// Authenticate and resolve the compute endpoint lazily.
func (p *novaProvider) client(ctx context.Context) (*gophercloud.ServiceClient, error) {
	if p.sc != nil {
		return p.sc, nil
	}
	if err := p.keystoneAPI.Authenticate(ctx); err != nil {
		return nil, err
	}
	url, err := p.keystoneAPI.FindEndpoint(p.availability, "compute")
	if err != nil {
		return nil, err
	}
	p.sc = &gophercloud.ServiceClient{
		ProviderClient: p.keystoneAPI.Client(),
		// For some reason gophercloud expects a trailing slash.
		Endpoint: url + "/",
		Type:     "compute",
	}
	return p.sc, nil
}

func fromAggregate(agg aggregates.Aggregate) Pool {
	metadata := map[string]string{}
	for key, value := range agg.Metadata {
		metadata[key] = value
	}
	return Pool{
		ID:               strconv.Itoa(agg.ID),
		Name:             agg.Name,
		AvailabilityZone: agg.AvailabilityZone,
		Hosts:            agg.Hosts,
		Metadata:         metadata,
	}
}

func (p *novaProvider) ListPools(ctx context.Context) ([]Pool, error) {
	sc, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := aggregates.List(sc).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	aggs, err := aggregates.ExtractAggregates(pages)
	if err != nil {
		return nil, err
	}
	pools := make([]Pool, len(aggs))
	for i, agg := range aggs {
		pools[i] = fromAggregate(agg)
	}
	return pools, nil
}

// Get a pool by id or name. The aggregates api cannot look up by name,
// so the list is scanned for a matching name.
func (p *novaProvider) GetPool(ctx context.Context, idOrName string) (*Pool, error) {
	if id, err := strconv.Atoi(idOrName); err == nil {
		sc, err := p.client(ctx)
		if err != nil {
			return nil, err
		}
		agg, err := aggregates.Get(ctx, sc, id).Extract()
		if err == nil {
			pool := fromAggregate(*agg)
			return &pool, nil
		}
		if !gophercloud.ResponseCodeIs(err, 404) {
			return nil, err
		}
	}
	pools, err := p.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	for _, pool := range pools {
		if pool.Name == idOrName {
			return &pool, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, idOrName)
}

func (p *novaProvider) CreatePool(ctx context.Context, name, availabilityZone string) (*Pool, error) {
	sc, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("fleet: creating pool aggregate", "name", name, "az", availabilityZone)
	agg, err := aggregates.Create(ctx, sc, aggregates.CreateOpts{
		Name:             name,
		AvailabilityZone: availabilityZone,
	}).Extract()
	if err != nil {
		return nil, err
	}
	pool := fromAggregate(*agg)
	return &pool, nil
}

func (p *novaProvider) DeletePool(ctx context.Context, id string) error {
	sc, err := p.client(ctx)
	if err != nil {
		return err
	}
	aggID, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, id)
	}
	return aggregates.Delete(ctx, sc, aggID).ExtractErr()
}

func (p *novaProvider) AddHost(ctx context.Context, poolID, host string) error {
	sc, err := p.client(ctx)
	if err != nil {
		return err
	}
	aggID, err := strconv.Atoi(poolID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, poolID)
	}
	slog.Info("fleet: adding host to pool", "host", host, "pool", poolID)
	_, err = aggregates.AddHost(ctx, sc, aggID, aggregates.AddHostOpts{Host: host}).Extract()
	return err
}

func (p *novaProvider) RemoveHost(ctx context.Context, poolID, host string) error {
	sc, err := p.client(ctx)
	if err != nil {
		return err
	}
	aggID, err := strconv.Atoi(poolID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, poolID)
	}
	slog.Info("fleet: removing host from pool", "host", host, "pool", poolID)
	_, err = aggregates.RemoveHost(ctx, sc, aggID, aggregates.RemoveHostOpts{Host: host}).Extract()
	return err
}

func (p *novaProvider) SetPoolMetadata(ctx context.Context, poolID string, metadata map[string]string) error {
	sc, err := p.client(ctx)
	if err != nil {
		return err
	}
	aggID, err := strconv.Atoi(poolID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, poolID)
	}
	opts := aggregates.SetMetadataOpts{Metadata: map[string]any{}}
	for key, value := range metadata {
		opts.Metadata[key] = value
	}
	_, err = aggregates.SetMetadata(ctx, sc, aggID, opts).Extract()
	return err
}

// List the servers running on the given hypervisor host.
func (p *novaProvider) HostServers(ctx context.Context, host string) ([]string, error) {
	sc, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := servers.List(sc, servers.ListOpts{
		Host:       host,
		AllTenants: true,
	}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	all, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(all))
	for i, server := range all {
		ids[i] = server.ID
	}
	return ids, nil
}

// Get the hypervisor attributes of the host from Nova.
func (p *novaProvider) GetHostDetails(ctx context.Context, host string) (*HostDetails, error) {
	sc, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := hypervisors.List(sc, hypervisors.ListOpts{
		HypervisorHostnamePattern: &host,
	}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	all, err := hypervisors.ExtractHypervisors(pages)
	if err != nil {
		return nil, err
	}
	for _, hv := range all {
		// The pattern match is a substring match, so check for an
		// exact hostname.
		if hv.HypervisorHostname != host {
			continue
		}
		cpuInfo, err := json.Marshal(hv.CPUInfo)
		if err != nil {
			return nil, err
		}
		return &HostDetails{
			VCPUs:              hv.VCPUs,
			CPUInfo:            string(cpuInfo),
			HypervisorType:     hv.HypervisorType,
			HypervisorVersion:  hv.HypervisorVersion,
			HypervisorHostname: hv.HypervisorHostname,
			MemoryMB:           hv.MemoryMB,
			LocalGB:            hv.LocalGB,
			Status:             hv.Status,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrHostNotFound, host)
}
