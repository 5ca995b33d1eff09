// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package constraint parses the small requirement expression language
// used by reservations into host filter clauses.
//
// A requirement is either a 3-element list [op, "$field", value] with
// op in {==, =, !=, >=, <=, >, <}, a conjunction ["and", expr, ...],
// or an empty list meaning no constraint. "or" is not supported.
package constraint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformed = errors.New("malformed requirement")

var operators = map[string]bool{
	"==": true,
	"=":  true,
	"!=": true,
	">=": true,
	"<=": true,
	">":  true,
	"<":  true,
}

// Normalize a requirement expression into a flat list of
// "field op value" clauses suitable for host filter queries.
// The input is either a JSON-encoded string or a native expression
// tree. An empty input yields no clauses.
func ParseRequirements(requirements any) ([]string, error) {
	if requirements == nil {
		return nil, nil
	}
	if text, ok := requirements.(string); ok {
		if text == "" {
			return nil, nil
		}
		var tree any
		if err := json.Unmarshal([]byte(text), &tree); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		requirements = tree
	}
	list, ok := requirements.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list", ErrMalformed)
	}
	return convert(list)
}

func convert(list []any) ([]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	if clause, ok := atomicClause(list); ok {
		return []string{clause}, nil
	}
	if head, ok := list[0].(string); ok && head == "and" && len(list) > 1 {
		var clauses []string
		for _, sub := range list[1:] {
			subList, ok := sub.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: conjunction of non-list", ErrMalformed)
			}
			subClauses, err := convert(subList)
			if err != nil {
				return nil, err
			}
			if len(subClauses) == 0 {
				return nil, fmt.Errorf("%w: empty conjunction member", ErrMalformed)
			}
			clauses = append(clauses, subClauses...)
		}
		return clauses, nil
	}
	if head, ok := list[0].(string); ok && head == "or" {
		return nil, fmt.Errorf("%w: the \"or\" operator is not supported", ErrMalformed)
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformed, list)
}

// Recognize [op, "$field", value] and flatten it to "field op value".
func atomicClause(list []any) (string, bool) {
	if len(list) != 3 {
		return "", false
	}
	op, ok := list[0].(string)
	if !ok || !operators[op] {
		return "", false
	}
	if op == "=" {
		op = "=="
	}
	field, ok := list[1].(string)
	if !ok || len(field) < 2 || field[0] != '$' {
		return "", false
	}
	value, ok := literal(list[2])
	if !ok || value == "" {
		return "", false
	}
	return field[1:] + " " + op + " " + value, true
}

func literal(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		// JSON numbers decode as float64.
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case bool:
		return strconv.FormatBool(value), true
	}
	return "", false
}
