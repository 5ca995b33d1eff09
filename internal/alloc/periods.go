// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"sort"
	"time"
)

// A half-open time interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// A requested reservation window, half-open.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// The periods within the window during which the host is fully booked,
// merged so that gaps shorter than the given duration count as booked.
func (e *Engine) FullPeriods(hostID string, window Window, duration time.Duration) ([]Period, error) {
	// The host status is binary: one reservation fills it.
	const capacity = 1
	const quantity = 1
	if window.Duration() < duration {
		return []Period{{window.Start, window.End}}, nil
	}
	leases, err := e.Store.ListLeasesByHostWindow(hostID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	// Sweep over the busy interval boundaries, clamped to the window.
	deltas := map[time.Time]int{}
	for _, lease := range leases {
		start := lease.StartDate
		if start.Before(window.Start) {
			start = window.Start
		}
		end := lease.EndDate
		if end.After(window.End) {
			end = window.End
		}
		deltas[start]++
		deltas[end]--
	}
	boundaries := make([]time.Time, 0, len(deltas))
	for t := range deltas {
		boundaries = append(boundaries, t)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	var full []Period
	used := 0
	var fullStart *time.Time
	for _, t := range boundaries {
		used += deltas[t]
		if fullStart == nil && used+quantity > capacity {
			start := t
			fullStart = &start
		} else if fullStart != nil && used+quantity <= capacity {
			full = append(full, Period{*fullStart, t})
			fullStart = nil
		}
	}
	return mergePeriods(full, window, duration), nil
}

// Merge full periods whose gap is too narrow to fit the duration.
func mergePeriods(full []Period, window Window, duration time.Duration) []Period {
	var merged []Period
	var fullStart, fullEnd time.Time
	var previous *Period
	for i := range full {
		period := full[i]
		if previous == nil {
			fullStart = period.Start
		}
		// Enough time between the two full periods.
		if previous != nil && period.Start.Sub(previous.End) >= duration {
			fullEnd = previous.End
			merged = append(merged, Period{fullStart, fullEnd})
			fullStart = period.Start
		}
		fullEnd = period.End
		previous = &full[i]
	}
	if previous != nil && window.End.Sub(previous.End) < duration {
		merged = append(merged, Period{fullStart, window.End})
	} else if previous != nil {
		merged = append(merged, Period{fullStart, previous.End})
	}
	if len(merged) >= 1 && merged[0].Start.Sub(window.Start) < duration {
		merged[0].Start = window.Start
	}
	return merged
}

// The complement of the full periods within the window: the intervals
// during which the host has no competing allocation and at least the
// given duration is available.
func (e *Engine) FreePeriods(hostID string, window Window, duration time.Duration) ([]Period, error) {
	full, err := e.FullPeriods(hostID, window, duration)
	if err != nil {
		return nil, err
	}
	var free []Period
	previous := Period{window.Start, window.Start}
	if len(full) >= 1 {
		for _, period := range full {
			free = append(free, Period{previous.End, period.Start})
			previous = period
		}
		free = append(free, Period{previous.End, window.End})
		if free[0].Start.Equal(free[0].End) {
			free = free[1:]
		}
		if len(free) > 0 && free[len(free)-1].Start.Equal(free[len(free)-1].End) {
			free = free[:len(free)-1]
		}
	} else if !window.Start.Equal(window.End) && !window.Start.Add(duration).After(window.End) {
		free = append(free, Period{window.Start, window.End})
	}
	return free, nil
}
