// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "time"

// Reservation lifecycle states. Terminal states are not revisited.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Event states. DONE is terminal, ERROR marks an event whose handler
// failed and needs operator attention.
const (
	EventStatusUndone = "UNDONE"
	EventStatusDone   = "DONE"
	EventStatusError  = "ERROR"
)

// Known event types. Events with other types are rejected at creation.
const (
	EventTypeStartLease = "start_lease"
	EventTypeEndLease   = "end_lease"
)

// A tenant's time-bounded reservation request. Owns its reservations
// and events, which are cascade-deleted with the lease.
type Lease struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (Lease) TableName() string { return "leases" }

// A single resource-type-scoped claim within a lease. The resource id
// is an opaque handle into the handler's own pool abstraction.
type Reservation struct {
	ID           string    `db:"id" json:"id"`
	LeaseID      string    `db:"lease_id" json:"lease_id"`
	ResourceID   string    `db:"resource_id" json:"resource_id"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

// A scheduled lifecycle trigger attached to a lease, consumed once by
// the manager's timer loop.
type Event struct {
	ID        string    `db:"id" json:"id"`
	LeaseID   string    `db:"lease_id" json:"lease_id"`
	EventType string    `db:"event_type" json:"event_type"`
	Time      time.Time `db:"time" json:"time"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// Detail record for a reservation of resource type "physical:host".
// The properties are serialized constraint expressions, the count range
// is a "min-max" string.
type HostReservation struct {
	ID                   string    `db:"id" json:"id"`
	ReservationID        string    `db:"reservation_id" json:"reservation_id"`
	ResourceProperties   string    `db:"resource_properties" json:"resource_properties"`
	HypervisorProperties string    `db:"hypervisor_properties" json:"hypervisor_properties"`
	CountRange           string    `db:"count_range" json:"count_range"`
	Status               string    `db:"status" json:"status"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

func (HostReservation) TableName() string { return "computehost_reservations" }

// Commits a host to a reservation for its lease's window.
type HostAllocation struct {
	ID            string    `db:"id" json:"id"`
	ComputeHostID string    `db:"compute_host_id" json:"compute_host_id"`
	ReservationID string    `db:"reservation_id" json:"reservation_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

func (HostAllocation) TableName() string { return "computehost_allocations" }

// A reservable compute host with its static inventory attributes as
// reported by the fleet control plane.
type Host struct {
	ID                 string    `db:"id" json:"id"`
	VCPUs              int       `db:"vcpus" json:"vcpus"`
	CPUInfo            string    `db:"cpu_info" json:"cpu_info"`
	HypervisorType     string    `db:"hypervisor_type" json:"hypervisor_type"`
	HypervisorVersion  int       `db:"hypervisor_version" json:"hypervisor_version"`
	HypervisorHostname string    `db:"hypervisor_hostname" json:"hypervisor_hostname"`
	MemoryMB           int       `db:"memory_mb" json:"memory_mb"`
	LocalGB            int       `db:"local_gb" json:"local_gb"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

func (Host) TableName() string { return "computehosts" }

// An open key/value attribute bag per host, supplementing the static
// inventory attributes. Values are compared as strings.
type HostExtraCapability struct {
	ID              string    `db:"id" json:"id"`
	ComputeHostID   string    `db:"computehost_id" json:"computehost_id"`
	CapabilityName  string    `db:"capability_name" json:"capability_name"`
	CapabilityValue string    `db:"capability_value" json:"capability_value"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (HostExtraCapability) TableName() string { return "computehost_extra_capabilities" }
