package analytics

import (
	"context"
	"math"
	"testing"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory engine: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *SQLiteDB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		rows, err := db.Query(context.Background(), stmt)
		if err != nil {
			t.Fatalf("statement failed: %s: %v", stmt, err)
		}
		rows.Close()
	}
}

func seedOrders(t *testing.T, db *SQLiteDB) {
	mustExec(t, db,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, email TEXT, total REAL, note TEXT)`,
		`INSERT INTO orders VALUES (1, 'a@example.com', 10.5, 'first')`,
		`INSERT INTO orders VALUES (2, 'b@example.com', 20.0, NULL)`,
		`INSERT INTO orders VALUES (3, 'c@example.com', 10.5, NULL)`,
		`INSERT INTO orders VALUES (4, 'd@example.com', 5.0, NULL)`,
	)
}

func TestInspector_TableNames(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db,
		`CREATE TABLE customers (id INTEGER)`,
		`CREATE TABLE orders (id INTEGER)`,
	)

	names, err := NewInspector(db).TableNames(context.Background())
	if err != nil {
		t.Fatalf("table names failed: %v", err)
	}

	if len(names) != 2 || names[0] != "customers" || names[1] != "orders" {
		t.Errorf("unexpected table names: %v", names)
	}
}

func TestInspector_Profile(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	profile, err := NewInspector(db).Profile(context.Background(), "orders")
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}

	if profile.RowCount != 4 {
		t.Errorf("expected 4 rows, got %d", profile.RowCount)
	}
	if len(profile.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(profile.Columns))
	}

	byName := make(map[string]ColumnProfile, len(profile.Columns))
	for _, c := range profile.Columns {
		byName[c.Name] = c
	}

	note := byName["note"]
	if math.Abs(note.NullRate-0.75) > 1e-9 {
		t.Errorf("expected note null rate 0.75, got %f", note.NullRate)
	}

	total := byName["total"]
	// 3 distinct values over 4 rows.
	if math.Abs(total.DistinctRate-0.75) > 1e-9 {
		t.Errorf("expected total distinct rate 0.75, got %f", total.DistinctRate)
	}
	if total.DataType != "REAL" {
		t.Errorf("expected REAL data type, got %s", total.DataType)
	}

	email := byName["email"]
	if email.ValuePattern == nil || *email.ValuePattern != "email" {
		t.Errorf("expected email pattern detected, got %v", email.ValuePattern)
	}
	if byName["total"].ValuePattern != nil {
		t.Errorf("numeric column must not carry a pattern, got %v", *byName["total"].ValuePattern)
	}
}

func TestInspector_Profile_EmptyTable(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, `CREATE TABLE empty (id INTEGER, name TEXT)`)

	profile, err := NewInspector(db).Profile(context.Background(), "empty")
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}

	if profile.RowCount != 0 {
		t.Errorf("expected 0 rows, got %d", profile.RowCount)
	}
	for _, c := range profile.Columns {
		if c.NullRate != 0 || c.DistinctRate != 0 {
			t.Errorf("empty table stats must be zero, got %+v", c)
		}
	}
}

func TestInspector_Schema(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	schema, err := NewInspector(db).Schema(context.Background(), "orders")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	if schema.RowCount != 4 {
		t.Errorf("expected 4 rows, got %d", schema.RowCount)
	}
	if len(schema.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(schema.Columns))
	}
	for _, c := range schema.Columns {
		if c.NullRate != 0 || c.DistinctRate != 0 || c.ValuePattern != nil {
			t.Errorf("schema path must not compute statistics, got %+v", c)
		}
	}
	if schema.Columns[0].Name != "id" || schema.Columns[0].DataType != "INTEGER" {
		t.Errorf("unexpected first column: %+v", schema.Columns[0])
	}
}

func TestInspector_DatePatternDetection(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db,
		`CREATE TABLE events (occurred_at TEXT)`,
		`INSERT INTO events VALUES ('2026-01-15')`,
		`INSERT INTO events VALUES ('2026-02-20 10:30:00')`,
	)

	profile, err := NewInspector(db).Profile(context.Background(), "events")
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}

	col := profile.Columns[0]
	if col.ValuePattern == nil || *col.ValuePattern != "date" {
		t.Errorf("expected date pattern, got %v", col.ValuePattern)
	}
}
