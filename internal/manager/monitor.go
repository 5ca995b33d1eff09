// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scroiset/climate/internal/monitoring"
)

type Monitor struct {
	tickDuration    prometheus.Histogram
	eventsProcessed prometheus.Counter
	eventsFailed    prometheus.Counter
}

func NewManagerMonitor(registry *monitoring.Registry) Monitor {
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "climate_manager_tick_duration_seconds",
		Help:    "Duration of timer loop ticks",
		Buckets: prometheus.DefBuckets,
	})
	eventsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "climate_manager_events_processed_total",
		Help: "Total number of lease events processed successfully",
	})
	eventsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "climate_manager_events_failed_total",
		Help: "Total number of lease events whose action failed",
	})
	registry.MustRegister(tickDuration, eventsProcessed, eventsFailed)
	return Monitor{
		tickDuration:    tickDuration,
		eventsProcessed: eventsProcessed,
		eventsFailed:    eventsFailed,
	}
}

func (m Monitor) observeTick(d time.Duration) {
	if m.tickDuration != nil {
		m.tickDuration.Observe(d.Seconds())
	}
}

func (m Monitor) observeEvent(success bool) {
	if success && m.eventsProcessed != nil {
		m.eventsProcessed.Inc()
	}
	if !success && m.eventsFailed != nil {
		m.eventsFailed.Inc()
	}
}
