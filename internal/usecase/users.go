package usecase

import (
	"context"
	"errors"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// UsersService manages the user registry.
type UsersService struct {
	Users domain.UserRepository
}

// NewUsersService wires a UsersService.
func NewUsersService(users domain.UserRepository) *UsersService {
	return &UsersService{Users: users}
}

// Upsert registers a new user when id is nil, otherwise renames the user
// with that id. Names are globally unique and the uniqueness check runs
// before the id lookup, so renaming a user to its current name is refused
// too.
func (s *UsersService) Upsert(ctx context.Context, id *int64, name string) (domain.User, error) {
	_, err := s.Users.GetByName(ctx, name)
	switch {
	case err == nil:
		return domain.User{}, domain.Errorf(domain.ErrInvalidArgument, "User name '%s' already exists.", name)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, err
	}
	if id == nil {
		return s.Users.Create(ctx, name)
	}
	u, err := s.Users.Rename(ctx, *id, name)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "User %d not found.", *id)
	}
	return u, err
}

// List returns every user ascending by id, root included.
func (s *UsersService) List(ctx context.Context) ([]domain.User, error) {
	return s.Users.List(ctx)
}
