package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/domain"
	obsctx "github.com/fairyhunter13/oj-server/internal/observability"
)

// Throttle is the optional submit rate limiter; a nil Throttle disables
// it. Backend failures fail open.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SubmitService validates submissions, persists the initial record and
// hands it to the judging pool.
type SubmitService struct {
	Jobs       domain.JobRepository
	Users      domain.UserRepository
	Contests   domain.ContestRepository
	Problems   ProblemSet
	Dispatcher domain.Dispatcher
	Throttle   Throttle
	Now        func() time.Time
}

// NewSubmitService wires a SubmitService on the wall clock.
func NewSubmitService(jobs domain.JobRepository, users domain.UserRepository, contests domain.ContestRepository, ps ProblemSet, d domain.Dispatcher) *SubmitService {
	return &SubmitService{Jobs: jobs, Users: users, Contests: contests, Problems: ps, Dispatcher: d, Now: time.Now}
}

// Submit runs the intake checks in their fixed order, short-circuiting on
// the first failure. On success the returned record is already persisted
// and queued; the caller never waits for judging.
func (s *SubmitService) Submit(ctx context.Context, sub domain.Submission) (domain.Job, error) {
	tr := otel.Tracer("usecase.submit")
	ctx, span := tr.Start(ctx, "submit.Submit")
	defer span.End()

	if s.Throttle != nil {
		ok, err := s.Throttle.Allow(ctx, fmt.Sprintf("submit:%d", sub.UserID))
		if err == nil && !ok {
			return domain.Job{}, domain.Errorf(domain.ErrRateLimited, "exceed submission limit")
		}
	}

	problem, ok := s.Problems.ProblemByID(sub.ProblemID)
	if !ok {
		return domain.Job{}, domain.Errorf(domain.ErrNotFound, "Problem %d not found.", sub.ProblemID)
	}
	if _, ok := s.Problems.LanguageByName(sub.Language); !ok {
		return domain.Job{}, domain.Errorf(domain.ErrNotFound, "Language %s not found.", sub.Language)
	}
	if _, err := s.Users.Get(ctx, sub.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, domain.Errorf(domain.ErrNotFound, "User %d not found.", sub.UserID)
		}
		return domain.Job{}, err
	}
	contest, err := s.Contests.Get(ctx, sub.ContestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, domain.Errorf(domain.ErrNotFound, "Contest %d not found.", sub.ContestID)
		}
		return domain.Job{}, err
	}
	// Contest 0 spans every user and problem; membership is only checked
	// for real contests.
	if sub.ContestID != domain.RootContestID {
		if !contest.HasUser(sub.UserID) {
			return domain.Job{}, domain.Errorf(domain.ErrInvalidArgument, "user_id %d not found in contest.", sub.UserID)
		}
		if !contest.HasProblem(sub.ProblemID) {
			return domain.Job{}, domain.Errorf(domain.ErrInvalidArgument, "problem_id %d not found in contest.", sub.ProblemID)
		}
	}
	now := s.Now().UTC()
	if now.Before(contest.From.Time) || now.After(contest.To.Time) {
		return domain.Job{}, domain.Errorf(domain.ErrInvalidArgument, "submit time invalid")
	}
	used, err := s.Jobs.CountByUserContest(ctx, sub.UserID, sub.ContestID)
	if err != nil {
		return domain.Job{}, err
	}
	if used >= contest.SubmissionLimit {
		return domain.Job{}, domain.Errorf(domain.ErrRateLimited, "exceed submission limit")
	}

	ts := domain.NewTimestamp(now)
	job := domain.Job{
		CreatedTime: ts,
		UpdatedTime: ts,
		Submission:  sub,
		State:       domain.StateQueueing,
		Result:      domain.VerdictWaiting,
		Cases:       domain.NewJobCases(len(problem.Cases)),
	}
	job, err = s.Jobs.Create(ctx, job)
	if err != nil {
		return domain.Job{}, err
	}
	span.SetAttributes(attribute.Int64("job.id", job.ID))

	if err := s.Dispatcher.Enqueue(ctx, job.ID); err != nil {
		// The record is persisted; startup recovery re-dispatches it.
		obsctx.LoggerFromContext(ctx).Warn("enqueue failed, job stays queued",
			"job_id", job.ID, "error", err)
	}
	return job, nil
}
