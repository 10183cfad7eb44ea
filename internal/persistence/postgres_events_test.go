package persistence

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/scrapeflow/internal/testutil"
)

func TestPostgresEventStoreSuite(t *testing.T) {
	dsn := testutil.GetPostgresDSN(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresEventStore(db)
	if err != nil {
		t.Fatalf("NewPostgresEventStore failed: %v", err)
	}
	suite.Run(t, &EventStoreSuite{store: store})
}
