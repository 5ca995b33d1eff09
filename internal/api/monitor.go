// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scroiset/climate/internal/monitoring"
)

type Monitor struct {
	apiRequestsTimer *prometheus.HistogramVec
}

func NewAPIMonitor(registry *monitoring.Registry) Monitor {
	apiRequestsTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "climate_api_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern", "status"})
	registry.MustRegister(apiRequestsTimer)
	return Monitor{apiRequestsTimer: apiRequestsTimer}
}
