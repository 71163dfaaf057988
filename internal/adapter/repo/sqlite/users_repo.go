package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// UsersRepo persists users. Name uniqueness is checked by the usecase for
// the exact wire message; the UNIQUE column is the backstop.
type UsersRepo struct {
	store *Store
	mu    sync.Mutex
}

// NewUsersRepo builds a UsersRepo over an open store.
func NewUsersRepo(s *Store) *UsersRepo { return &UsersRepo{store: s} }

// Create assigns id max+1 (0 on an empty table) and inserts.
func (r *UsersRepo) Create(ctx context.Context, name string) (domain.User, error) {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.Create")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	err := r.store.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id)+1, 0) FROM users`).Scan(&next)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.create: %w: %v", domain.ErrExternal, err)
	}
	_, err = r.store.DB.ExecContext(ctx, `INSERT INTO users (id, name) VALUES (?, ?)`, next, name)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.create: %w: %v", domain.ErrExternal, err)
	}
	return domain.User{ID: next, Name: name}, nil
}

// Rename updates the name of an existing user.
func (r *UsersRepo) Rename(ctx context.Context, id int64, name string) (domain.User, error) {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.Rename")
	defer span.End()

	res, err := r.store.DB.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.rename: %w: %v", domain.ErrExternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.User{ID: id, Name: name}, nil
}

// Get fetches one user by id.
func (r *UsersRepo) Get(ctx context.Context, id int64) (domain.User, error) {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.Get")
	defer span.End()

	var u domain.User
	err := r.store.DB.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.get: %w: %v", domain.ErrExternal, err)
	}
	return u, nil
}

// GetByName fetches one user by its unique name.
func (r *UsersRepo) GetByName(ctx context.Context, name string) (domain.User, error) {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.GetByName")
	defer span.End()

	var u domain.User
	err := r.store.DB.QueryRowContext(ctx, `SELECT id, name FROM users WHERE name = ?`, name).
		Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.get_by_name: %w: %v", domain.ErrExternal, err)
	}
	return u, nil
}

// List returns every user ascending by id.
func (r *UsersRepo) List(ctx context.Context) ([]domain.User, error) {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.List")
	defer span.End()

	rows, err := r.store.DB.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("op=users.list: %w: %v", domain.ErrExternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("op=users.list: %w: %v", domain.ErrExternal, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=users.list: %w: %v", domain.ErrExternal, err)
	}
	return out, nil
}

// EnsureRoot inserts user 0 "root" when id 0 is absent. A renamed root is
// left alone.
func (r *UsersRepo) EnsureRoot(ctx context.Context) error {
	tr := otel.Tracer("repo.users")
	ctx, span := tr.Start(ctx, "users.EnsureRoot")
	defer span.End()

	_, err := r.store.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, name) VALUES (?, ?)`,
		domain.RootUserID, domain.RootUserName)
	if err != nil {
		return fmt.Errorf("op=users.ensure_root: %w: %v", domain.ErrExternal, err)
	}
	return nil
}
