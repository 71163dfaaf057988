package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// JobsRepo persists jobs in the task table.
type JobsRepo struct {
	store *Store

	// mu serializes id assignment: Create reads MAX(id) and inserts, and
	// two concurrent submits must not observe the same maximum.
	mu sync.Mutex
}

// NewJobsRepo builds a JobsRepo over an open store.
func NewJobsRepo(s *Store) *JobsRepo { return &JobsRepo{store: s} }

const jobColumns = `id, user_id, contest_id, problem_id, language,
	created_time, state, result, updated_time, source_code, score, cases`

// Create assigns the next dense id (max+1, 0 when the table is empty) and
// inserts the record. The assigned id is returned on the job.
func (r *JobsRepo) Create(ctx context.Context, j domain.Job) (domain.Job, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.Create")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	err := r.store.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id)+1, 0) FROM task`).Scan(&next)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=jobs.create: %w: %v", domain.ErrExternal, err)
	}
	j.ID = next

	cases, err := json.Marshal(j.Cases)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=jobs.create: %w", err)
	}
	_, err = r.store.DB.ExecContext(ctx,
		`INSERT INTO task (`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Submission.UserID, j.Submission.ContestID, j.Submission.ProblemID,
		j.Submission.Language, j.CreatedTime.String(), string(j.State), string(j.Result),
		j.UpdatedTime.String(), j.Submission.SourceCode, j.Score, string(cases))
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=jobs.create: %w: %v", domain.ErrExternal, err)
	}
	return j, nil
}

// Get fetches one job by id.
func (r *JobsRepo) Get(ctx context.Context, id int64) (domain.Job, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.Get")
	defer span.End()

	row := r.store.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM task WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=jobs.get: %w: %v", domain.ErrExternal, err)
	}
	return j, nil
}

// Update rewrites the mutable columns of the row keyed by j.ID.
func (r *JobsRepo) Update(ctx context.Context, j domain.Job) error {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.Update")
	defer span.End()

	cases, err := json.Marshal(j.Cases)
	if err != nil {
		return fmt.Errorf("op=jobs.update: %w", err)
	}
	res, err := r.store.DB.ExecContext(ctx,
		`UPDATE task SET state = ?, result = ?, updated_time = ?, score = ?, cases = ? WHERE id = ?`,
		string(j.State), string(j.Result), j.UpdatedTime.String(), j.Score, string(cases), j.ID)
	if err != nil {
		return fmt.Errorf("op=jobs.update: %w: %v", domain.ErrExternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetResult stamps only the result column, leaving state and cases as they
// were.
func (r *JobsRepo) SetResult(ctx context.Context, id int64, v domain.Verdict) error {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.SetResult")
	defer span.End()

	res, err := r.store.DB.ExecContext(ctx, `UPDATE task SET result = ? WHERE id = ?`, string(v), id)
	if err != nil {
		return fmt.Errorf("op=jobs.set_result: %w: %v", domain.ErrExternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns jobs matching every set field of the filter, ascending by
// created_time. From/To are applied row by row after the indexed fetch.
func (r *JobsRepo) List(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.List")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.ContestID != nil {
		add("contest_id = ?", *f.ContestID)
	}
	if f.ProblemID != nil {
		add("problem_id = ?", *f.ProblemID)
	}
	if f.Language != nil {
		add("language = ?", *f.Language)
	}
	if f.State != nil {
		add("state = ?", string(*f.State))
	}
	if f.Result != nil {
		add("result = ?", string(*f.Result))
	}
	q := `SELECT ` + jobColumns + ` FROM task`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_time, id"

	rows, err := r.store.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.list: %w: %v", domain.ErrExternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=jobs.list: %w: %v", domain.ErrExternal, err)
		}
		if f.From != nil && j.CreatedTime.Before(f.From.Time) {
			continue
		}
		if f.To != nil && j.CreatedTime.After(f.To.Time) {
			continue
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=jobs.list: %w: %v", domain.ErrExternal, err)
	}
	return out, nil
}

// CountByUserContest counts the user's jobs inside one contest, backing the
// submission quota.
func (r *JobsRepo) CountByUserContest(ctx context.Context, userID, contestID int64) (int64, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.CountByUserContest")
	defer span.End()

	var n int64
	err := r.store.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task WHERE user_id = ? AND contest_id = ?`, userID, contestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("op=jobs.count_user_contest: %w: %v", domain.ErrExternal, err)
	}
	return n, nil
}

// CountByUser counts every job of the user regardless of contest or state.
func (r *JobsRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.CountByUser")
	defer span.End()

	var n int64
	err := r.store.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("op=jobs.count_user: %w: %v", domain.ErrExternal, err)
	}
	return n, nil
}

// ListByStates returns jobs whose state is in the given set, ascending by
// id. Used by startup recovery.
func (r *JobsRepo) ListByStates(ctx context.Context, states ...domain.State) ([]domain.Job, error) {
	tr := otel.Tracer("repo.jobs")
	ctx, span := tr.Start(ctx, "jobs.ListByStates")
	defer span.End()

	if len(states) == 0 {
		return []domain.Job{}, nil
	}
	ph := make([]string, len(states))
	args := make([]any, len(states))
	for i, s := range states {
		ph[i] = "?"
		args[i] = string(s)
	}
	q := `SELECT ` + jobColumns + ` FROM task WHERE state IN (` + strings.Join(ph, ",") + `) ORDER BY id`
	rows, err := r.store.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.list_states: %w: %v", domain.ErrExternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=jobs.list_states: %w: %v", domain.ErrExternal, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=jobs.list_states: %w: %v", domain.ErrExternal, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j                                      domain.Job
		created, updated, state, result, cases string
	)
	err := row.Scan(&j.ID, &j.Submission.UserID, &j.Submission.ContestID,
		&j.Submission.ProblemID, &j.Submission.Language, &created, &state,
		&result, &updated, &j.Submission.SourceCode, &j.Score, &cases)
	if err != nil {
		return domain.Job{}, err
	}
	if j.CreatedTime, err = domain.ParseTimestamp(created); err != nil {
		return domain.Job{}, fmt.Errorf("created_time %q: %w", created, err)
	}
	if j.UpdatedTime, err = domain.ParseTimestamp(updated); err != nil {
		return domain.Job{}, fmt.Errorf("updated_time %q: %w", updated, err)
	}
	j.State = domain.State(state)
	j.Result = domain.Verdict(result)
	if err := json.Unmarshal([]byte(cases), &j.Cases); err != nil {
		return domain.Job{}, fmt.Errorf("cases column: %w", err)
	}
	return j, nil
}
