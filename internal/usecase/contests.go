package usecase

import (
	"context"
	"errors"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// ContestInput is the decoded create/update payload. From and To stay
// strings so each can be rejected by name when malformed.
type ContestInput struct {
	ID              *int64
	Name            string
	From            string
	To              string
	ProblemIDs      []int64
	UserIDs         []int64
	SubmissionLimit int64
}

// ContestsService manages the contest registry.
type ContestsService struct {
	Users    domain.UserRepository
	Contests domain.ContestRepository
	Problems ProblemSet
}

// NewContestsService wires a ContestsService.
func NewContestsService(users domain.UserRepository, contests domain.ContestRepository, ps ProblemSet) *ContestsService {
	return &ContestsService{Users: users, Contests: contests, Problems: ps}
}

// Upsert creates a contest when in.ID is nil, otherwise replaces the
// contest with that id. Contest 0 is reserved and can never be written.
func (s *ContestsService) Upsert(ctx context.Context, in ContestInput) (domain.Contest, error) {
	if in.ID != nil {
		if *in.ID == domain.RootContestID {
			return domain.Contest{}, domain.Errorf(domain.ErrInvalidArgument, "Invalid contest id")
		}
		if _, err := s.Contests.Get(ctx, *in.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Contest{}, domain.Errorf(domain.ErrNotFound, "Contest %d not found.", *in.ID)
			}
			return domain.Contest{}, err
		}
	}
	from, err := domain.ParseTimestamp(in.From)
	if err != nil {
		return domain.Contest{}, domain.Errorf(domain.ErrInvalidArgument, "Invalid argument from")
	}
	to, err := domain.ParseTimestamp(in.To)
	if err != nil {
		return domain.Contest{}, domain.Errorf(domain.ErrInvalidArgument, "Invalid argument to")
	}
	if hasDuplicateIDs(in.UserIDs) {
		return domain.Contest{}, domain.Errorf(domain.ErrInvalidArgument, "Invalid argument user_ids")
	}
	for _, uid := range in.UserIDs {
		if _, err := s.Users.Get(ctx, uid); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Contest{}, domain.Errorf(domain.ErrNotFound, "user_id %d not found.", uid)
			}
			return domain.Contest{}, err
		}
	}
	if hasDuplicateIDs(in.ProblemIDs) {
		return domain.Contest{}, domain.Errorf(domain.ErrInvalidArgument, "Invalid argument problem_ids")
	}
	for _, pid := range in.ProblemIDs {
		if _, ok := s.Problems.ProblemByID(pid); !ok {
			return domain.Contest{}, domain.Errorf(domain.ErrNotFound, "problem_id %d not found.", pid)
		}
	}

	c := domain.Contest{
		Name:            in.Name,
		From:            from,
		To:              to,
		ProblemIDs:      in.ProblemIDs,
		UserIDs:         in.UserIDs,
		SubmissionLimit: in.SubmissionLimit,
	}
	if in.ID != nil {
		c.ID = *in.ID
		if err := s.Contests.Update(ctx, c); err != nil {
			return domain.Contest{}, err
		}
		return c, nil
	}
	return s.Contests.Create(ctx, c)
}

// Get returns one contest, the synthesized contest 0 included.
func (s *ContestsService) Get(ctx context.Context, id int64) (domain.Contest, error) {
	c, err := s.Contests.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Contest{}, domain.Errorf(domain.ErrNotFound, "Contest %d not found.", id)
	}
	return c, err
}

// List returns the user-created contests, excluding contest 0.
func (s *ContestsService) List(ctx context.Context) ([]domain.Contest, error) {
	return s.Contests.List(ctx)
}

func hasDuplicateIDs(ids []int64) bool {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
