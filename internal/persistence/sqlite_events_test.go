package persistence

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"
)

func TestSQLiteEventStoreSuite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteEventStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteEventStore failed: %v", err)
	}

	// Schema creation is idempotent.
	if _, err := NewSQLiteEventStore(db); err != nil {
		t.Fatalf("second NewSQLiteEventStore failed: %v", err)
	}

	suite.Run(t, &EventStoreSuite{store: store})
}
