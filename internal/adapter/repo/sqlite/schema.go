package sqlite

import (
	"context"
	"fmt"
)

// Schema notes: timestamps are stored in their wire form (fixed-width UTC
// text), so lexicographic order equals chronological order. cases,
// problem_ids and user_ids hold JSON arrays.
const schema = `
CREATE TABLE IF NOT EXISTS task (
	id           INTEGER PRIMARY KEY,
	user_id      INTEGER NOT NULL,
	contest_id   INTEGER NOT NULL,
	problem_id   INTEGER NOT NULL,
	language     TEXT    NOT NULL,
	created_time TEXT    NOT NULL,
	state        TEXT    NOT NULL,
	result       TEXT    NOT NULL,
	updated_time TEXT    NOT NULL,
	source_code  TEXT    NOT NULL,
	score        REAL    NOT NULL,
	cases        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_user_problem ON task(user_id, problem_id);
CREATE INDEX IF NOT EXISTS idx_task_user_contest ON task(user_id, contest_id);
CREATE INDEX IF NOT EXISTS idx_task_state ON task(state);

CREATE TABLE IF NOT EXISTS users (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS contests (
	id               INTEGER PRIMARY KEY,
	name             TEXT    NOT NULL,
	from_time        TEXT    NOT NULL,
	to_time          TEXT    NOT NULL,
	problem_ids      TEXT    NOT NULL,
	user_ids         TEXT    NOT NULL,
	submission_limit INTEGER NOT NULL
);
`

// InitSchema creates the tables and indexes when missing. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("op=sqlite.schema: %w", err)
	}
	return nil
}
