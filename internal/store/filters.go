// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Returned for malformed filter strings, unknown filter columns, sort
// keys or sort directions.
var ErrInvalidFilter = errors.New("invalid filter")

// Static host columns addressable in filter queries.
var hostColumns = map[string]bool{
	"id":                  true,
	"vcpus":               true,
	"cpu_info":            true,
	"hypervisor_type":     true,
	"hypervisor_version":  true,
	"hypervisor_hostname": true,
	"memory_mb":           true,
	"local_gb":            true,
	"status":              true,
}

var filterOps = map[string]string{
	"<":  "<",
	">":  ">",
	"<=": "<=",
	">=": ">=",
	"==": "=",
	"!=": "!=",
	"in": "IN",
}

// A parsed "<field> <op> <value>" filter clause.
type hostQuery struct {
	field string
	op    string
	value string
}

func parseHostQuery(query string) (hostQuery, error) {
	parts := strings.SplitN(query, " ", 3)
	if len(parts) != 3 {
		return hostQuery{}, fmt.Errorf("%w: %q", ErrInvalidFilter, query)
	}
	q := hostQuery{field: parts[0], op: parts[1], value: parts[2]}
	if _, ok := filterOps[q.op]; !ok {
		return hostQuery{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, q.op)
	}
	return q, nil
}

// Compare two capability values with the requested operator. Values are
// compared as strings, there is no numeric coercion.
func compareStrings(left, op, right string) (bool, error) {
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "<=":
		return left <= right, nil
	case ">=":
		return left >= right, nil
	case "in":
		return slices.Contains(strings.Split(right, ","), left), nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
}

// Return hosts matching all filter queries of the form
// "<field> <op> <value>". Static columns are filtered in the database
// with native column comparison; fields outside the static schema are
// matched against the hosts' extra capabilities, comparing values as
// strings. An unset capability compares as the literal "null". A field
// that is neither a static column nor a known capability name is an
// invalid filter.
func (s *Store) ListHostsByQueries(queries []string) ([]Host, error) {
	var static, dynamic []hostQuery
	for _, raw := range queries {
		q, err := parseHostQuery(raw)
		if err != nil {
			return nil, err
		}
		if hostColumns[q.field] {
			static = append(static, q)
		} else {
			dynamic = append(dynamic, q)
		}
	}

	sql := "SELECT * FROM computehosts"
	args := map[string]any{}
	var clauses []string
	for i, q := range static {
		param := fmt.Sprintf("f%d", i)
		switch {
		case q.value == "null" && q.op == "==":
			clauses = append(clauses, q.field+" IS NULL")
		case q.value == "null" && q.op == "!=":
			clauses = append(clauses, q.field+" IS NOT NULL")
		case q.op == "in":
			values := strings.Split(q.value, ",")
			params := make([]string, len(values))
			for j, v := range values {
				params[j] = ":" + param + fmt.Sprintf("_%d", j)
				args[param+fmt.Sprintf("_%d", j)] = v
			}
			clauses = append(clauses, fmt.Sprintf(
				"%s IN (%s)", q.field, strings.Join(params, ", ")))
		default:
			clauses = append(clauses, fmt.Sprintf(
				"%s %s :%s", q.field, filterOps[q.op], param))
			args[param] = q.value
		}
	}
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	sql += " ORDER BY id"

	var hosts []Host
	if _, err := s.DB.Select(&hosts, sql, args); err != nil {
		return nil, err
	}

	for _, q := range dynamic {
		capabilities, err := s.ListExtraCapabilitiesByName(q.field)
		if err != nil {
			return nil, err
		}
		if len(capabilities) == 0 {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, q.field)
		}
		// Last write wins for duplicate names on one host.
		valuesByHost := map[string]string{}
		for _, c := range capabilities {
			valuesByHost[c.ComputeHostID] = c.CapabilityValue
		}
		var matching []Host
		for _, host := range hosts {
			value, ok := valuesByHost[host.ID]
			if !ok {
				// An unset capability matches the literal "null".
				value = "null"
			}
			match, err := compareStrings(value, q.op, q.value)
			if err != nil {
				return nil, err
			}
			if match {
				matching = append(matching, host)
			}
		}
		hosts = matching
	}
	return hosts, nil
}
