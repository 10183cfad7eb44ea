package persistence

import (
	"context"
	"database/sql"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// PostgresEventStore stores run events in PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver, for example
// "github.com/jackc/pgx/v5/stdlib" opened as sql.Open("pgx", dsn).
type PostgresEventStore struct {
	db *sql.DB
}

var _ EventStore = (*PostgresEventStore)(nil)

// NewPostgresEventStore initializes the required schema in the given
// database and returns a new PostgresEventStore.
func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			workflow TEXT NOT NULL DEFAULT '',
			seq BIGINT NOT NULL,
			type TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			output BYTEA,
			error TEXT NOT NULL DEFAULT '',
			at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, seq);
	`)
	return err
}

func (s *PostgresEventStore) AppendEvent(ctx context.Context, ev api.Event) error {
	rec, err := toRecord(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, workflow, seq, type, step, output, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.RunID,
		rec.Workflow,
		int64(rec.Seq),
		rec.Type,
		rec.Step,
		[]byte(rec.Output),
		rec.Error,
		rec.AtNano,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, workflow, seq, type, step, output, error, at
		FROM run_events
		WHERE run_id = $1
		ORDER BY seq ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
