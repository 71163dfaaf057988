package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// ContestsRepo persists contests. problem_ids and user_ids travel as JSON
// columns.
type ContestsRepo struct {
	store *Store
	mu    sync.Mutex
}

// NewContestsRepo builds a ContestsRepo over an open store.
func NewContestsRepo(s *Store) *ContestsRepo { return &ContestsRepo{store: s} }

const contestColumns = `id, name, from_time, to_time, problem_ids, user_ids, submission_limit`

// Create assigns id max+1 (1 on an empty table, so user contests start
// after the reserved contest 0) and inserts.
func (r *ContestsRepo) Create(ctx context.Context, c domain.Contest) (domain.Contest, error) {
	tr := otel.Tracer("repo.contests")
	ctx, span := tr.Start(ctx, "contests.Create")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	err := r.store.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id)+1, 1) FROM contests`).Scan(&next)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("op=contests.create: %w: %v", domain.ErrExternal, err)
	}
	c.ID = next
	if err := r.insert(ctx, c, `INSERT INTO contests (`+contestColumns+`) VALUES (?,?,?,?,?,?,?)`); err != nil {
		return domain.Contest{}, fmt.Errorf("op=contests.create: %w", err)
	}
	return c, nil
}

// Update rewrites an existing contest keyed by c.ID.
func (r *ContestsRepo) Update(ctx context.Context, c domain.Contest) error {
	tr := otel.Tracer("repo.contests")
	ctx, span := tr.Start(ctx, "contests.Update")
	defer span.End()

	problems, users, err := marshalIDLists(c)
	if err != nil {
		return fmt.Errorf("op=contests.update: %w", err)
	}
	res, err := r.store.DB.ExecContext(ctx,
		`UPDATE contests SET name = ?, from_time = ?, to_time = ?, problem_ids = ?, user_ids = ?, submission_limit = ? WHERE id = ?`,
		c.Name, c.From.String(), c.To.String(), problems, users, c.SubmissionLimit, c.ID)
	if err != nil {
		return fmt.Errorf("op=contests.update: %w: %v", domain.ErrExternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches one contest by id, including the reserved contest 0.
func (r *ContestsRepo) Get(ctx context.Context, id int64) (domain.Contest, error) {
	tr := otel.Tracer("repo.contests")
	ctx, span := tr.Start(ctx, "contests.Get")
	defer span.End()

	row := r.store.DB.QueryRowContext(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = ?`, id)
	c, err := scanContest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Contest{}, fmt.Errorf("op=contests.get: %w: %v", domain.ErrExternal, err)
	}
	return c, nil
}

// List returns user-created contests (id > 0) ascending by id.
func (r *ContestsRepo) List(ctx context.Context) ([]domain.Contest, error) {
	tr := otel.Tracer("repo.contests")
	ctx, span := tr.Start(ctx, "contests.List")
	defer span.End()

	rows, err := r.store.DB.QueryContext(ctx,
		`SELECT `+contestColumns+` FROM contests WHERE id > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("op=contests.list: %w: %v", domain.ErrExternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Contest, 0)
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("op=contests.list: %w: %v", domain.ErrExternal, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=contests.list: %w: %v", domain.ErrExternal, err)
	}
	return out, nil
}

// PutRoot inserts or refreshes contest 0. Runs at every startup so the
// synthesized contest tracks the configured problem set and known users.
func (r *ContestsRepo) PutRoot(ctx context.Context, c domain.Contest) error {
	tr := otel.Tracer("repo.contests")
	ctx, span := tr.Start(ctx, "contests.PutRoot")
	defer span.End()

	c.ID = domain.RootContestID
	if err := r.insert(ctx, c, `INSERT OR REPLACE INTO contests (`+contestColumns+`) VALUES (?,?,?,?,?,?,?)`); err != nil {
		return fmt.Errorf("op=contests.put_root: %w", err)
	}
	return nil
}

func (r *ContestsRepo) insert(ctx context.Context, c domain.Contest, q string) error {
	problems, users, err := marshalIDLists(c)
	if err != nil {
		return err
	}
	_, err = r.store.DB.ExecContext(ctx, q,
		c.ID, c.Name, c.From.String(), c.To.String(), problems, users, c.SubmissionLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternal, err)
	}
	return nil
}

func marshalIDLists(c domain.Contest) (problems, users string, err error) {
	pb, err := json.Marshal(emptyWhenNil(c.ProblemIDs))
	if err != nil {
		return "", "", err
	}
	ub, err := json.Marshal(emptyWhenNil(c.UserIDs))
	if err != nil {
		return "", "", err
	}
	return string(pb), string(ub), nil
}

// emptyWhenNil keeps the column a JSON array rather than null.
func emptyWhenNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func scanContest(row rowScanner) (domain.Contest, error) {
	var (
		c                             domain.Contest
		from, to, problemIDs, userIDs string
	)
	err := row.Scan(&c.ID, &c.Name, &from, &to, &problemIDs, &userIDs, &c.SubmissionLimit)
	if err != nil {
		return domain.Contest{}, err
	}
	if c.From, err = domain.ParseTimestamp(from); err != nil {
		return domain.Contest{}, fmt.Errorf("from_time %q: %w", from, err)
	}
	if c.To, err = domain.ParseTimestamp(to); err != nil {
		return domain.Contest{}, fmt.Errorf("to_time %q: %w", to, err)
	}
	if err := json.Unmarshal([]byte(problemIDs), &c.ProblemIDs); err != nil {
		return domain.Contest{}, fmt.Errorf("problem_ids column: %w", err)
	}
	if err := json.Unmarshal([]byte(userIDs), &c.UserIDs); err != nil {
		return domain.Contest{}, fmt.Errorf("user_ids column: %w", err)
	}
	return c, nil
}
