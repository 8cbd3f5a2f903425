package database

import "testing"

func TestOpenMemoryRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	missing, err := MissingTables(db)
	if err != nil {
		t.Fatalf("MissingTables: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing tables after migration: %v", missing)
	}
	if err := IntegrityCheck(db); err != nil {
		t.Errorf("IntegrityCheck: %v", err)
	}
}

func TestMissingTablesReportsDropped(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		t.Fatalf("disable fks: %v", err)
	}
	if _, err := db.Exec("DROP TABLE audit_logs"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	missing, err := MissingTables(db)
	if err != nil {
		t.Fatalf("MissingTables: %v", err)
	}
	if len(missing) != 1 || missing[0] != "audit_logs" {
		t.Errorf("missing = %v, want [audit_logs]", missing)
	}
}
