package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/fairyhunter13/oj-server/internal/domain"
	obsctx "github.com/fairyhunter13/oj-server/internal/observability"
)

// JobsService answers job queries and reopens finished jobs.
type JobsService struct {
	Jobs       domain.JobRepository
	Users      domain.UserRepository
	Dispatcher domain.Dispatcher
	Now        func() time.Time
}

// NewJobsService wires a JobsService on the wall clock.
func NewJobsService(jobs domain.JobRepository, users domain.UserRepository, d domain.Dispatcher) *JobsService {
	return &JobsService{Jobs: jobs, Users: users, Dispatcher: d, Now: time.Now}
}

// List applies the composite filter. A user_name that matches no user, or
// that disagrees with an also-given user_id, yields an empty list rather
// than an error.
func (s *JobsService) List(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	if f.UserName != nil {
		u, err := s.Users.GetByName(ctx, *f.UserName)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return []domain.Job{}, nil
			}
			return nil, err
		}
		if f.UserID != nil && *f.UserID != u.ID {
			return []domain.Job{}, nil
		}
		id := u.ID
		f.UserID = &id
	}
	return s.Jobs.List(ctx, f)
}

// Get returns one job by id.
func (s *JobsService) Get(ctx context.Context, id int64) (domain.Job, error) {
	j, err := s.Jobs.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Job{}, domain.Errorf(domain.ErrNotFound, "Job %d not found.", id)
	}
	return j, err
}

// Retest wipes a finished job back to its queued shape and dispatches it
// again. Jobs still in flight cannot be reopened.
func (s *JobsService) Retest(ctx context.Context, id int64) (domain.Job, error) {
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, domain.Errorf(domain.ErrNotFound, "Job %d not found.", id)
		}
		return domain.Job{}, err
	}
	if j.State != domain.StateFinished {
		return domain.Job{}, domain.Errorf(domain.ErrInvalidState, "Job %d not finished.", id)
	}
	j.ResetForRetest(s.Now())
	if err := s.Jobs.Update(ctx, j); err != nil {
		return domain.Job{}, err
	}
	if err := s.Dispatcher.Enqueue(ctx, j.ID); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("enqueue failed, job stays queued",
			"job_id", j.ID, "error", err)
	}
	return j, nil
}
