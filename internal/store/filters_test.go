// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"testing"
)

func setupFilterHosts(t *testing.T, s *Store) (small, big, tagged *Host) {
	small = &Host{HypervisorHostname: "host-small", VCPUs: 2, MemoryMB: 4096, Status: "enabled"}
	big = &Host{HypervisorHostname: "host-big", VCPUs: 16, MemoryMB: 65536, Status: "enabled"}
	tagged = &Host{HypervisorHostname: "host-tagged", VCPUs: 8, MemoryMB: 16384, Status: "enabled"}
	if err := s.CreateHost(small, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.CreateHost(big, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	capabilities := []*HostExtraCapability{
		{CapabilityName: "rack", CapabilityValue: "r12"},
		{CapabilityName: "gpu", CapabilityValue: "true"},
	}
	if err := s.CreateHost(tagged, capabilities); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return small, big, tagged
}

func hostnames(hosts []Host) []string {
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.HypervisorHostname
	}
	return names
}

func TestListHostsByQueries_StaticColumns(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	setupFilterHosts(t, s)

	hosts, err := s.ListHostsByQueries([]string{"vcpus >= 8"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", hostnames(hosts))
	}
	for _, h := range hosts {
		if h.VCPUs < 8 {
			t.Errorf("host %s should have been filtered out", h.HypervisorHostname)
		}
	}
}

func TestListHostsByQueries_MultipleClauses(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	_, big, _ := setupFilterHosts(t, s)

	hosts, err := s.ListHostsByQueries([]string{"vcpus >= 8", "memory_mb > 32768"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0].ID != big.ID {
		t.Errorf("expected only the big host, got %v", hostnames(hosts))
	}
}

func TestListHostsByQueries_OrderedByID(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	setupFilterHosts(t, s)

	hosts, err := s.ListHostsByQueries(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 3 {
		t.Fatalf("expected 3 hosts, got %d", len(hosts))
	}
	for i := 1; i < len(hosts); i++ {
		if hosts[i-1].ID >= hosts[i].ID {
			t.Fatalf("expected ascending host ids, got %s before %s", hosts[i-1].ID, hosts[i].ID)
		}
	}
}

func TestListHostsByQueries_InOperator(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	small, big, _ := setupFilterHosts(t, s)

	hosts, err := s.ListHostsByQueries([]string{
		"hypervisor_hostname in " + small.HypervisorHostname + "," + big.HypervisorHostname,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("expected 2 hosts, got %v", hostnames(hosts))
	}
}

func TestListHostsByQueries_ExtraCapability(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	_, _, tagged := setupFilterHosts(t, s)

	hosts, err := s.ListHostsByQueries([]string{"rack == r12"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0].ID != tagged.ID {
		t.Errorf("expected only the tagged host, got %v", hostnames(hosts))
	}
}

func TestListHostsByQueries_UnsetCapabilityComparesAsNull(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	small, big, _ := setupFilterHosts(t, s)

	// Hosts without the capability carry the literal "null", so they
	// match a != filter against a concrete value.
	hosts, err := s.ListHostsByQueries([]string{"rack != r12"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", hostnames(hosts))
	}
	for _, h := range hosts {
		if h.ID != small.ID && h.ID != big.ID {
			t.Errorf("unexpected host %s", h.HypervisorHostname)
		}
	}
}

func TestListHostsByQueries_UnknownColumn(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()
	setupFilterHosts(t, s)

	_, err := s.ListHostsByQueries([]string{"nosuchcolumn == 42"})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestListHostsByQueries_MalformedQuery(t *testing.T) {
	s, closeDB := setupStore(t)
	defer closeDB()

	for _, query := range []string{"vcpus>=4", "vcpus ~ 4", "vcpus"} {
		if _, err := s.ListHostsByQueries([]string{query}); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("query %q: expected ErrInvalidFilter, got %v", query, err)
		}
	}
}
