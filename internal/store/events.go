// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scroiset/climate/internal/db"
)

// Events carry one of the known event types, anything else is rejected
// when the lease is created.
var ErrUnknownEventType = errors.New("unknown event type")

// Columns that may be used as sort key or equality filter on events.
var eventColumns = map[string]bool{
	"id":         true,
	"lease_id":   true,
	"event_type": true,
	"time":       true,
	"status":     true,
}

func (s *Store) GetEvent(id string) (*Event, error) {
	var e Event
	err := s.DB.SelectOne(&e,
		"SELECT * FROM events WHERE id = :id", map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", db.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEventsByLease(leaseID string) ([]Event, error) {
	var events []Event
	_, err := s.DB.Select(&events,
		"SELECT * FROM events WHERE lease_id = :l ORDER BY time",
		map[string]any{"l": leaseID})
	return events, err
}

// List events sorted by the given column with equality filters applied.
// Unknown sort keys, directions or filter columns are rejected before
// the query runs.
func (s *Store) ListEventsSorted(sortKey, sortDir string, filters map[string]any) ([]Event, error) {
	if !eventColumns[sortKey] {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrInvalidFilter, sortKey)
	}
	if sortDir != "asc" && sortDir != "desc" {
		return nil, fmt.Errorf("%w: unknown sort direction %q", ErrInvalidFilter, sortDir)
	}
	query := "SELECT * FROM events"
	args := map[string]any{}
	var clauses []string
	for column, value := range filters {
		if !eventColumns[column] {
			return nil, fmt.Errorf("%w: unknown filter column %q", ErrInvalidFilter, column)
		}
		clauses = append(clauses, fmt.Sprintf("%s = :%s", column, column))
		args[column] = value
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortKey, strings.ToUpper(sortDir))
	var events []Event
	_, err := s.DB.Select(&events, query, args)
	return events, err
}

func (s *Store) UpdateEventStatus(id, status string) error {
	e, err := s.GetEvent(id)
	if err != nil {
		return err
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	_, err = s.DB.Update(e)
	return err
}
