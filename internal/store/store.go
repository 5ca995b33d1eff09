// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/google/uuid"

	"github.com/scroiset/climate/internal/db"
)

// Typed access to the persisted lease, reservation, event and host
// entities. Every mutation runs in one gorp transaction.
type Store struct {
	DB db.DB
}

func New(database db.DB) *Store {
	return &Store{DB: database}
}

// Register all models with gorp and create the tables if missing.
func (s *Store) SetupTables() error {
	leases := s.DB.AddTable(Lease{})
	leases.ColMap("name").SetUnique(true)
	reservations := s.DB.AddTable(Reservation{})
	events := s.DB.AddTable(Event{})
	hostReservations := s.DB.AddTable(HostReservation{})
	allocations := s.DB.AddTable(HostAllocation{})
	hosts := s.DB.AddTable(Host{})
	hosts.ColMap("hypervisor_hostname").SetUnique(true)
	capabilities := s.DB.AddTable(HostExtraCapability{})
	return s.DB.CreateTable(
		leases, reservations, events,
		hostReservations, allocations, hosts, capabilities,
	)
}

func newID() string { return uuid.NewString() }

func stamp(createdAt *time.Time, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

// Map driver errors to the store's error taxonomy.
func mapDBError(err error, entity string) error {
	if db.IsDuplicateEntry(err) {
		return fmt.Errorf("%w: %s", db.ErrDuplicateEntry, entity)
	}
	return err
}

// Persist a lease together with its reservations and events in one
// transaction. A failure (e.g. a duplicate lease name) rolls the whole
// lease back, never leaving an orphaned reservation or event.
func (s *Store) CreateLease(lease *Lease, reservations []*Reservation, events []*Event) error {
	if lease.ID == "" {
		lease.ID = newID()
	}
	stamp(&lease.CreatedAt, &lease.UpdatedAt)
	return s.DB.WithTx(func(tx *gorp.Transaction) error {
		if err := tx.Insert(lease); err != nil {
			return mapDBError(err, "leases")
		}
		for _, r := range reservations {
			if r.ID == "" {
				r.ID = newID()
			}
			r.LeaseID = lease.ID
			stamp(&r.CreatedAt, &r.UpdatedAt)
			if err := tx.Insert(r); err != nil {
				return mapDBError(err, "reservations")
			}
		}
		for _, e := range events {
			if e.EventType != EventTypeStartLease && e.EventType != EventTypeEndLease {
				return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
			}
			if e.ID == "" {
				e.ID = newID()
			}
			e.LeaseID = lease.ID
			if e.Status == "" {
				e.Status = EventStatusUndone
			}
			stamp(&e.CreatedAt, &e.UpdatedAt)
			if err := tx.Insert(e); err != nil {
				return mapDBError(err, "events")
			}
		}
		return nil
	})
}

func (s *Store) GetLease(id string) (*Lease, error) {
	var lease Lease
	err := s.DB.SelectOne(&lease,
		"SELECT * FROM leases WHERE id = :id", map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lease %s", db.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (s *Store) ListLeases() ([]Lease, error) {
	var leases []Lease
	_, err := s.DB.Select(&leases, "SELECT * FROM leases ORDER BY created_at")
	return leases, err
}

func (s *Store) ListLeasesByProject(projectID string) ([]Lease, error) {
	var leases []Lease
	_, err := s.DB.Select(&leases,
		"SELECT * FROM leases WHERE project_id = :p ORDER BY created_at",
		map[string]any{"p": projectID})
	return leases, err
}

// Shallow metadata update. The lease window is immutable after
// creation, so only the name can change.
func (s *Store) UpdateLeaseName(id, name string) (*Lease, error) {
	lease, err := s.GetLease(id)
	if err != nil {
		return nil, err
	}
	lease.Name = name
	lease.UpdatedAt = time.Now().UTC()
	if _, err := s.DB.Update(lease); err != nil {
		return nil, mapDBError(err, "leases")
	}
	return lease, nil
}

// Delete a lease and cascade to its reservations, their detail records
// and allocations, and its events, all in one transaction.
func (s *Store) DestroyLease(id string) error {
	lease, err := s.GetLease(id)
	if err != nil {
		return err
	}
	reservations, err := s.ListReservationsByLease(id)
	if err != nil {
		return err
	}
	return s.DB.WithTx(func(tx *gorp.Transaction) error {
		for _, r := range reservations {
			if _, err := tx.Exec(
				"DELETE FROM computehost_reservations WHERE reservation_id = :r",
				map[string]any{"r": r.ID}); err != nil {
				return err
			}
			if _, err := tx.Exec(
				"DELETE FROM computehost_allocations WHERE reservation_id = :r",
				map[string]any{"r": r.ID}); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(
			"DELETE FROM reservations WHERE lease_id = :l",
			map[string]any{"l": id}); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"DELETE FROM events WHERE lease_id = :l",
			map[string]any{"l": id}); err != nil {
			return err
		}
		if _, err := tx.Delete(lease); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) GetReservation(id string) (*Reservation, error) {
	var r Reservation
	err := s.DB.SelectOne(&r,
		"SELECT * FROM reservations WHERE id = :id", map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: reservation %s", db.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReservationsByLease(leaseID string) ([]Reservation, error) {
	var reservations []Reservation
	_, err := s.DB.Select(&reservations,
		"SELECT * FROM reservations WHERE lease_id = :l ORDER BY created_at",
		map[string]any{"l": leaseID})
	return reservations, err
}

func (s *Store) ListReservationsByResource(resourceID string) ([]Reservation, error) {
	var reservations []Reservation
	_, err := s.DB.Select(&reservations,
		"SELECT * FROM reservations WHERE resource_id = :r ORDER BY created_at",
		map[string]any{"r": resourceID})
	return reservations, err
}

func (s *Store) UpdateReservationStatus(id, status string) error {
	r, err := s.GetReservation(id)
	if err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	_, err = s.DB.Update(r)
	return err
}

// Persist a reservation, its host detail record and the allocations
// selected for it in one transaction. A failing allocation insert
// aborts the whole reservation creation.
func (s *Store) CreateHostReservation(
	r *Reservation, detail *HostReservation, allocations []*HostAllocation,
) error {
	if r.ID == "" {
		r.ID = newID()
	}
	stamp(&r.CreatedAt, &r.UpdatedAt)
	return s.DB.WithTx(func(tx *gorp.Transaction) error {
		if err := tx.Insert(r); err != nil {
			return mapDBError(err, "reservations")
		}
		if detail != nil {
			if detail.ID == "" {
				detail.ID = newID()
			}
			detail.ReservationID = r.ID
			stamp(&detail.CreatedAt, &detail.UpdatedAt)
			if err := tx.Insert(detail); err != nil {
				return mapDBError(err, "computehost_reservations")
			}
		}
		for _, a := range allocations {
			if a.ID == "" {
				a.ID = newID()
			}
			a.ReservationID = r.ID
			stamp(&a.CreatedAt, &a.UpdatedAt)
			if err := tx.Insert(a); err != nil {
				return mapDBError(err, "computehost_allocations")
			}
		}
		return nil
	})
}

func (s *Store) GetHostReservationByReservation(reservationID string) (*HostReservation, error) {
	var hr HostReservation
	err := s.DB.SelectOne(&hr,
		"SELECT * FROM computehost_reservations WHERE reservation_id = :r",
		map[string]any{"r": reservationID})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(
			"%w: host reservation for reservation %s", db.ErrNotFound, reservationID)
	}
	if err != nil {
		return nil, err
	}
	return &hr, nil
}

func (s *Store) UpdateHostReservationStatus(id, status string) error {
	var hr HostReservation
	err := s.DB.SelectOne(&hr,
		"SELECT * FROM computehost_reservations WHERE id = :id",
		map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: host reservation %s", db.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	hr.Status = status
	hr.UpdatedAt = time.Now().UTC()
	_, err = s.DB.Update(&hr)
	return err
}

func (s *Store) ListAllocationsByHost(hostID string) ([]HostAllocation, error) {
	var allocations []HostAllocation
	_, err := s.DB.Select(&allocations,
		"SELECT * FROM computehost_allocations WHERE compute_host_id = :h",
		map[string]any{"h": hostID})
	return allocations, err
}

func (s *Store) ListAllocationsByReservation(reservationID string) ([]HostAllocation, error) {
	var allocations []HostAllocation
	_, err := s.DB.Select(&allocations,
		"SELECT * FROM computehost_allocations WHERE reservation_id = :r",
		map[string]any{"r": reservationID})
	return allocations, err
}

func (s *Store) DestroyAllocation(id string) error {
	res, err := s.DB.Exec(
		"DELETE FROM computehost_allocations WHERE id = :id",
		map[string]any{"id": id})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: allocation %s", db.ErrNotFound, id)
	}
	return nil
}

// All leases holding an allocation on the given host whose window
// overlaps [start, end). Used for free period computation.
func (s *Store) ListLeasesByHostWindow(hostID string, start, end time.Time) ([]Lease, error) {
	var leases []Lease
	_, err := s.DB.Select(&leases, `
		SELECT DISTINCT l.* FROM leases l
		JOIN reservations r ON l.id = r.lease_id
		JOIN computehost_allocations a ON r.id = a.reservation_id
		WHERE a.compute_host_id = :h
		AND NOT ((l.start_date < :start AND l.end_date < :start)
		      OR (l.start_date > :end AND l.end_date > :end))`,
		map[string]any{"h": hostID, "start": start, "end": end})
	return leases, err
}
