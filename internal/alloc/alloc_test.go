// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/scroiset/climate/internal/constraint"
	"github.com/scroiset/climate/internal/store"
)

func TestParseCountRange(t *testing.T) {
	minHosts, maxHosts, err := ParseCountRange("1-3")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if minHosts != 1 || maxHosts != 3 {
		t.Errorf("expected 1-3, got %d-%d", minHosts, maxHosts)
	}
	for _, invalid := range []string{"", "3", "0-2", "3-2", "-1-2", "a-b", "1-2-3"} {
		if _, _, err := ParseCountRange(invalid); !errors.Is(err, ErrInvalidCountRange) {
			t.Errorf("count range %q: expected ErrInvalidCountRange, got %v", invalid, err)
		}
	}
}

func TestMatch_PrefersUnallocatedHosts(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	busy := addHost(t, s, "host-busy", 4)
	idle := addHost(t, s, "host-idle", 4)
	// The busy host is free for the requested window, but carries an
	// unrelated allocation elsewhere.
	allocate(t, s, busy.ID, "other-lease", at(1), at(2))

	hosts, err := engine.Match(nil, nil, "1-1", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0] != idle.ID {
		t.Errorf("expected the idle host to be preferred, got %v", hosts)
	}
}

func TestMatch_FallsBackToAllocatedHosts(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	busy := addHost(t, s, "host-busy", 4)
	idle := addHost(t, s, "host-idle", 4)
	allocate(t, s, busy.ID, "other-lease", at(1), at(2))

	hosts, err := engine.Match(nil, nil, "2-2", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", hosts)
	}
	if !slices.Contains(hosts, busy.ID) || !slices.Contains(hosts, idle.ID) {
		t.Errorf("expected both hosts, got %v", hosts)
	}
}

func TestMatch_ExcludesOverlappingHosts(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	taken := addHost(t, s, "host-taken", 4)
	allocate(t, s, taken.ID, "other-lease", at(10), at(12))

	// The requested window overlaps the existing booking, so the host
	// is unusable for it.
	_, err := engine.Match(nil, nil, "1-1", Window{at(11), at(13)})
	if !errors.Is(err, ErrInsufficientResources) {
		t.Errorf("expected ErrInsufficientResources, got %v", err)
	}

	// The adjacent window right after the booking works.
	hosts, err := engine.Match(nil, nil, "1-1", Window{at(12), at(14)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0] != taken.ID {
		t.Errorf("expected the host to qualify, got %v", hosts)
	}
}

func TestMatch_HonorsRequirements(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	addHost(t, s, "host-small", 2)
	big := addHost(t, s, "host-big", 16)

	hosts, err := engine.Match(`[">=", "$vcpus", "8"]`, nil, "1-2", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0] != big.ID {
		t.Errorf("expected only the big host, got %v", hosts)
	}
}

func TestMatch_CapsAtMaximum(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	addHost(t, s, "host-1", 4)
	addHost(t, s, "host-2", 4)
	addHost(t, s, "host-3", 4)

	hosts, err := engine.Match(nil, nil, "1-2", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("expected the maximum of 2 hosts, got %v", hosts)
	}
}

func TestMatch_DeterministicOrder(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	addHost(t, s, "host-1", 4)
	addHost(t, s, "host-2", 4)
	addHost(t, s, "host-3", 4)

	first, err := engine.Match(nil, nil, "2-2", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := engine.Match(nil, nil, "2-2", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(first, second) {
		t.Errorf("expected deterministic selection, got %v and %v", first, second)
	}
	if !slices.IsSorted(first) {
		t.Errorf("expected hosts in ascending id order, got %v", first)
	}
}

// Randomized check of the exclusivity invariant: however windows and
// pool sizes are drawn, a host never backs two reservations whose
// windows overlap.
func TestMatch_RandomizedExclusivity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 5; run++ {
		engine, s, closeDB := setupEngine(t)

		hostCount := 2 + rng.Intn(5)
		for i := 0; i < hostCount; i++ {
			addHost(t, s, fmt.Sprintf("host-%d", i), 4)
		}

		type booking struct {
			hosts  []string
			window Window
		}
		var bookings []booking
		for i := 0; i < 30; i++ {
			startHour := rng.Intn(20)
			w := Window{at(startHour), at(startHour + 1 + rng.Intn(4))}
			hosts, err := engine.Match(nil, nil, "1-2", w)
			if errors.Is(err, ErrInsufficientResources) {
				continue
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			name := fmt.Sprintf("run-%d-lease-%d", run, i)
			lease := &store.Lease{Name: name, ProjectID: "p", StartDate: w.Start, EndDate: w.End}
			if err := s.CreateLease(lease, nil, nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			r := &store.Reservation{LeaseID: lease.ID, ResourceID: "pool-" + name, ResourceType: "physical:host"}
			allocations := make([]*store.HostAllocation, len(hosts))
			for j, hostID := range hosts {
				allocations[j] = &store.HostAllocation{ComputeHostID: hostID}
			}
			if err := s.CreateHostReservation(r, nil, allocations); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			bookings = append(bookings, booking{hosts, w})
		}
		if len(bookings) == 0 {
			t.Fatal("expected at least one booking to succeed")
		}

		for i, a := range bookings {
			for _, b := range bookings[i+1:] {
				overlap := a.window.Start.Before(b.window.End) && b.window.Start.Before(a.window.End)
				if !overlap {
					continue
				}
				for _, host := range a.hosts {
					if slices.Contains(b.hosts, host) {
						t.Fatalf("host %s booked for both %v and %v", host, a.window, b.window)
					}
				}
			}
		}
		closeDB()
	}
}

func TestMatch_InsufficientResources(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	addHost(t, s, "host-1", 4)

	_, err := engine.Match(nil, nil, "2-3", Window{at(10), at(12)})
	if !errors.Is(err, ErrInsufficientResources) {
		t.Errorf("expected ErrInsufficientResources, got %v", err)
	}
}

func TestMatch_MalformedRequirements(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	addHost(t, s, "host-1", 4)

	_, err := engine.Match(`["or", [">", "$vcpus", "1"], ["<", "$vcpus", "8"]]`, nil, "1-1", Window{at(10), at(12)})
	if !errors.Is(err, constraint.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestMatch_BothRequirementSetsApply(t *testing.T) {
	engine, s, closeDB := setupEngine(t)
	defer closeDB()
	small := &store.Host{HypervisorHostname: "host-small", VCPUs: 2, Status: "enabled"}
	if err := s.CreateHost(small, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tagged := &store.Host{HypervisorHostname: "host-tagged", VCPUs: 16, Status: "enabled"}
	capabilities := []*store.HostExtraCapability{
		{CapabilityName: "rack", CapabilityValue: "r12"},
	}
	if err := s.CreateHost(tagged, capabilities); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hosts, err := engine.Match(
		`[">=", "$vcpus", "8"]`, `["==", "$rack", "r12"]`, "1-1", Window{at(10), at(12)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 1 || hosts[0] != tagged.ID {
		t.Errorf("expected only the tagged host, got %v", hosts)
	}
}
