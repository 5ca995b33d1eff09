// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/go-gorp/gorp"
	_ "github.com/mattn/go-sqlite3"
)

func setupSqlite(t *testing.T) DB {
	sqlDB, err := sql.Open("sqlite3", t.TempDir()+"/test.db")
	if err != nil {
		t.Fatal(err)
	}
	d := DB{DbMap: &gorp.DbMap{Db: sqlDB, Dialect: gorp.SqliteDialect{}}}
	t.Cleanup(d.Close)
	return d
}

type thing struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func (thing) TableName() string { return "things" }

func TestCreateTable(t *testing.T) {
	d := setupSqlite(t)
	table := d.AddTable(thing{})
	if err := d.CreateTable(table); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Creating again must not fail, the tables are created with
	// IF NOT EXISTS.
	if err := d.CreateTable(table); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := d.Insert(&thing{ID: "1", Name: "a"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	d := setupSqlite(t)
	if err := d.CreateTable(d.AddTable(thing{})); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	err := d.WithTx(func(tx *gorp.Transaction) error {
		return tx.Insert(&thing{ID: "1", Name: "a"})
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	count, err := d.SelectInt("SELECT COUNT(*) FROM things")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	d := setupSqlite(t)
	if err := d.CreateTable(d.AddTable(thing{})); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	failure := errors.New("nope")
	err := d.WithTx(func(tx *gorp.Transaction) error {
		if err := tx.Insert(&thing{ID: "1", Name: "a"}); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the inner error, got %v", err)
	}
	count, err := d.SelectInt("SELECT COUNT(*) FROM things")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("expected the insert to be rolled back, got %d rows", count)
	}
}

func TestIsDuplicateEntry(t *testing.T) {
	if IsDuplicateEntry(nil) {
		t.Error("expected nil to not be a duplicate entry")
	}
	if !IsDuplicateEntry(errors.New(`pq: duplicate key value violates unique constraint "leases_name_key"`)) {
		t.Error("expected the postgres message to be recognized")
	}
	if !IsDuplicateEntry(errors.New("UNIQUE constraint failed: leases.name")) {
		t.Error("expected the sqlite message to be recognized")
	}
	if IsDuplicateEntry(errors.New("connection refused")) {
		t.Error("expected unrelated errors to not be duplicates")
	}
}
