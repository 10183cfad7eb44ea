package persistence

import (
	"context"
	"database/sql"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// SQLiteEventStore stores run events in SQLite.
//
// It expects an *sql.DB opened with the "sqlite" driver from
// modernc.org/sqlite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interfaces.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			workflow TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			output BLOB,
			error TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, seq);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.Event) error {
	rec, err := toRecord(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, workflow, seq, type, step, output, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Workflow,
		rec.Seq,
		rec.Type,
		rec.Step,
		[]byte(rec.Output),
		rec.Error,
		rec.AtNano,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, workflow, seq, type, step, output, error, at
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// scanEvents reads rows of (run_id, workflow, seq, type, step, output,
// error, at).
func scanEvents(rows *sql.Rows) ([]api.Event, error) {
	var out []api.Event
	for rows.Next() {
		var (
			rec    eventRecord
			output []byte
		)
		if err := rows.Scan(&rec.RunID, &rec.Workflow, &rec.Seq, &rec.Type, &rec.Step, &output, &rec.Error, &rec.AtNano); err != nil {
			return nil, err
		}
		rec.Output = output
		ev, err := rec.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
