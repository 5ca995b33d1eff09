// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package db

import "errors"

// Returned when a get or destroy targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// Returned when an insert violates a uniqueness constraint.
var ErrDuplicateEntry = errors.New("duplicate entry")
