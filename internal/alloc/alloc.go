// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package alloc selects the hosts satisfying a reservation's
// requirements that are available for the requested window, using free
// period interval arithmetic over existing allocations.
package alloc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/scroiset/climate/internal/constraint"
	"github.com/scroiset/climate/internal/store"
)

// Returned when fewer than the requested minimum of hosts qualify.
var ErrInsufficientResources = errors.New("not enough hosts available")

// Returned for count ranges not of the form "min-max" with
// 0 < min <= max.
var ErrInvalidCountRange = errors.New("invalid count range")

type Engine struct {
	Store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{Store: s}
}

// Parse a "min-max" count range.
func ParseCountRange(countRange string) (minHosts, maxHosts int, err error) {
	parts := strings.Split(countRange, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCountRange, countRange)
	}
	minHosts, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCountRange, countRange)
	}
	maxHosts, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCountRange, countRange)
	}
	if minHosts < 1 || maxHosts < minHosts {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCountRange, countRange)
	}
	return minHosts, maxHosts, nil
}

// Return the ids of matching hosts for the window, preferably hosts
// without any existing allocation. Hosts with allocations qualify only
// when their free period covers the full window as one contiguous
// interval; a host with any overlapping busy interval inside the
// window is treated as fully unusable for it. Ties are broken by
// ascending host id.
func (e *Engine) Match(
	hypervisorRequirements, resourceRequirements any,
	countRange string, window Window,
) ([]string, error) {
	minHosts, maxHosts, err := ParseCountRange(countRange)
	if err != nil {
		return nil, err
	}
	queries, err := constraint.ParseRequirements(hypervisorRequirements)
	if err != nil {
		return nil, err
	}
	resourceQueries, err := constraint.ParseRequirements(resourceRequirements)
	if err != nil {
		return nil, err
	}
	queries = append(queries, resourceQueries...)

	// Hosts come back ordered by ascending id, which keeps the
	// selection below deterministic.
	hosts, err := e.Store.ListHostsByQueries(queries)
	if err != nil {
		return nil, err
	}

	duration := window.Duration()
	var unallocated, allocated []string
	for _, host := range hosts {
		allocations, err := e.Store.ListAllocationsByHost(host.ID)
		if err != nil {
			return nil, err
		}
		if len(allocations) == 0 {
			unallocated = append(unallocated, host.ID)
			continue
		}
		free, err := e.FreePeriods(host.ID, window, duration)
		if err != nil {
			return nil, err
		}
		if len(free) == 1 &&
			free[0].Start.Equal(window.Start) && free[0].End.Equal(window.End) {
			allocated = append(allocated, host.ID)
		}
	}

	if len(unallocated) >= minHosts {
		return unallocated[:min(maxHosts, len(unallocated))], nil
	}
	all := append(unallocated, allocated...)
	if len(all) >= minHosts {
		return all[:min(maxHosts, len(all))], nil
	}
	return nil, fmt.Errorf("%w: %d of %d", ErrInsufficientResources, len(all), minHosts)
}
