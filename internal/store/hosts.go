// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gorp/gorp"

	"github.com/scroiset/climate/internal/db"
)

// Persist a host together with its extra capabilities in one
// transaction.
func (s *Store) CreateHost(host *Host, capabilities []*HostExtraCapability) error {
	if host.ID == "" {
		host.ID = newID()
	}
	stamp(&host.CreatedAt, &host.UpdatedAt)
	return s.DB.WithTx(func(tx *gorp.Transaction) error {
		if err := tx.Insert(host); err != nil {
			return mapDBError(err, "computehosts")
		}
		for _, c := range capabilities {
			if c.ID == "" {
				c.ID = newID()
			}
			c.ComputeHostID = host.ID
			stamp(&c.CreatedAt, &c.UpdatedAt)
			if err := tx.Insert(c); err != nil {
				return mapDBError(err, "computehost_extra_capabilities")
			}
		}
		return nil
	})
}

func (s *Store) GetHost(id string) (*Host, error) {
	var host Host
	err := s.DB.SelectOne(&host,
		"SELECT * FROM computehosts WHERE id = :id", map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: host %s", db.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *Store) ListHosts() ([]Host, error) {
	var hosts []Host
	_, err := s.DB.Select(&hosts, "SELECT * FROM computehosts ORDER BY id")
	return hosts, err
}

// Delete a host and cascade to its extra capabilities. Hosts holding
// allocations must be torn down by the caller first.
func (s *Store) DestroyHost(id string) error {
	host, err := s.GetHost(id)
	if err != nil {
		return err
	}
	return s.DB.WithTx(func(tx *gorp.Transaction) error {
		if _, err := tx.Exec(
			"DELETE FROM computehost_extra_capabilities WHERE computehost_id = :h",
			map[string]any{"h": id}); err != nil {
			return err
		}
		if _, err := tx.Delete(host); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) CreateExtraCapability(c *HostExtraCapability) error {
	if c.ID == "" {
		c.ID = newID()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)
	if err := s.DB.Insert(c); err != nil {
		return mapDBError(err, "computehost_extra_capabilities")
	}
	return nil
}

func (s *Store) ListExtraCapabilitiesByHost(hostID string) ([]HostExtraCapability, error) {
	var capabilities []HostExtraCapability
	_, err := s.DB.Select(&capabilities,
		"SELECT * FROM computehost_extra_capabilities WHERE computehost_id = :h",
		map[string]any{"h": hostID})
	return capabilities, err
}

func (s *Store) ListExtraCapabilitiesByName(name string) ([]HostExtraCapability, error) {
	var capabilities []HostExtraCapability
	_, err := s.DB.Select(&capabilities,
		"SELECT * FROM computehost_extra_capabilities WHERE capability_name = :n",
		map[string]any{"n": name})
	return capabilities, err
}

func (s *Store) ListExtraCapabilitiesByHostAndName(hostID, name string) ([]HostExtraCapability, error) {
	var capabilities []HostExtraCapability
	_, err := s.DB.Select(&capabilities, `
		SELECT * FROM computehost_extra_capabilities
		WHERE computehost_id = :h AND capability_name = :n`,
		map[string]any{"h": hostID, "n": name})
	return capabilities, err
}

func (s *Store) UpdateExtraCapabilityValue(id, value string) error {
	var c HostExtraCapability
	err := s.DB.SelectOne(&c,
		"SELECT * FROM computehost_extra_capabilities WHERE id = :id",
		map[string]any{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: extra capability %s", db.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	c.CapabilityValue = value
	c.UpdatedAt = time.Now().UTC()
	_, err = s.DB.Update(&c)
	return err
}
