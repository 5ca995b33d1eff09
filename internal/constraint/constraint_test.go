// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package constraint

import (
	"errors"
	"testing"
)

func TestParseRequirements_Empty(t *testing.T) {
	for _, input := range []any{nil, "", "[]", []any{}} {
		clauses, err := ParseRequirements(input)
		if err != nil {
			t.Errorf("input %v: expected no error, got %v", input, err)
		}
		if len(clauses) != 0 {
			t.Errorf("input %v: expected no clauses, got %v", input, clauses)
		}
	}
}

func TestParseRequirements_Atomic(t *testing.T) {
	clauses, err := ParseRequirements(`[">=", "$vcpus", "4"]`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 1 || clauses[0] != "vcpus >= 4" {
		t.Errorf("expected [vcpus >= 4], got %v", clauses)
	}
}

func TestParseRequirements_EqualityAliased(t *testing.T) {
	clauses, err := ParseRequirements(`["=", "$hypervisor_type", "QEMU"]`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 1 || clauses[0] != "hypervisor_type == QEMU" {
		t.Errorf("expected [hypervisor_type == QEMU], got %v", clauses)
	}
}

func TestParseRequirements_NumericLiteral(t *testing.T) {
	clauses, err := ParseRequirements(`[">", "$memory_mb", 4096]`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 1 || clauses[0] != "memory_mb > 4096" {
		t.Errorf("expected [memory_mb > 4096], got %v", clauses)
	}
}

func TestParseRequirements_Conjunction(t *testing.T) {
	input := `["and", [">=", "$vcpus", "4"], ["==", "$rack", "r12"]]`
	clauses, err := ParseRequirements(input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %v", clauses)
	}
	if clauses[0] != "vcpus >= 4" || clauses[1] != "rack == r12" {
		t.Errorf("unexpected clauses %v", clauses)
	}
}

func TestParseRequirements_NestedConjunction(t *testing.T) {
	input := `["and", ["and", [">", "$a", "1"], ["<", "$b", "2"]], ["==", "$c", "3"]]`
	clauses, err := ParseRequirements(input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 3 {
		t.Errorf("expected 3 clauses, got %v", clauses)
	}
}

func TestParseRequirements_OrRejected(t *testing.T) {
	_, err := ParseRequirements(`["or", [">", "$a", "1"], ["<", "$a", "2"]]`)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for \"or\", got %v", err)
	}
}

func TestParseRequirements_Malformed(t *testing.T) {
	inputs := []any{
		`["unknownop", "$a", "1"]`,
		`[">=", "vcpus", "4"]`,      // missing $ prefix
		`[">=", "$vcpus"]`,          // missing value
		`[">=", "$", "4"]`,          // empty field name
		`{"not": "a list"}`,         // wrong shape
		`["and"]`,                   // conjunction without members
		`this is not json`,         // not parseable
		42,                         // not a list
		[]any{">=", "$vcpus", nil}, // null literal
		[]any{">=", "$vcpus", ""},  // empty literal
	}
	for _, input := range inputs {
		if _, err := ParseRequirements(input); !errors.Is(err, ErrMalformed) {
			t.Errorf("input %v: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestParseRequirements_NativeTree(t *testing.T) {
	clauses, err := ParseRequirements([]any{">=", "$vcpus", float64(4)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clauses) != 1 || clauses[0] != "vcpus >= 4" {
		t.Errorf("expected [vcpus >= 4], got %v", clauses)
	}
}
