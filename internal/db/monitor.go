// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scroiset/climate/internal/monitoring"
)

type Monitor struct {
	connectionAttempts prometheus.Counter
}

func NewDBMonitor(registry *monitoring.Registry) Monitor {
	connectionAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "climate_db_connection_attempts_total",
		Help: "Total number of attempts to connect to the database",
	})
	registry.MustRegister(connectionAttempts)
	return Monitor{
		connectionAttempts: connectionAttempts,
	}
}

func (m Monitor) observeConnectionAttempt() {
	if m.connectionAttempts != nil {
		m.connectionAttempts.Inc()
	}
}
