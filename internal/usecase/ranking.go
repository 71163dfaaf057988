package usecase

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// RankingService computes contest ranklists from finished jobs.
type RankingService struct {
	Jobs     domain.JobRepository
	Users    domain.UserRepository
	Contests domain.ContestRepository
	Problems ProblemSet
}

// NewRankingService wires a RankingService.
func NewRankingService(jobs domain.JobRepository, users domain.UserRepository, contests domain.ContestRepository, ps ProblemSet) *RankingService {
	return &RankingService{Jobs: jobs, Users: users, Contests: contests, Problems: ps}
}

// rankedUser carries one user's representative scores plus the values the
// tie-breakers compare.
type rankedUser struct {
	user   domain.User
	scores []float64
	final  float64
	count  int64            // total jobs by the user, any contest or state
	latest domain.Timestamp // latest representative; sentinel when none
}

// Ranklist ranks the contest's users by their summed representative scores.
// Contest 0 ranks every user over every configured problem.
func (s *RankingService) Ranklist(ctx context.Context, contestID int64, rule domain.ScoringRule, tie domain.TieBreaker) ([]domain.RanklistRow, error) {
	tr := otel.Tracer("usecase.ranking")
	ctx, span := tr.Start(ctx, "ranking.Ranklist")
	defer span.End()
	span.SetAttributes(attribute.Int64("contest.id", contestID))

	users, problemIDs, err := s.scope(ctx, contestID)
	if err != nil {
		return nil, err
	}
	sort.Slice(problemIDs, func(i, j int) bool { return problemIDs[i] < problemIDs[j] })

	ranked := make([]rankedUser, 0, len(users))
	for _, u := range users {
		ru := rankedUser{user: u, scores: make([]float64, 0, len(problemIDs))}
		hasRep := false
		for _, pid := range problemIDs {
			rep, found, err := s.representative(ctx, u.ID, pid, rule)
			if err != nil {
				return nil, err
			}
			if !found {
				ru.scores = append(ru.scores, 0)
				continue
			}
			ru.scores = append(ru.scores, rep.Score)
			ru.final += rep.Score
			if !hasRep || rep.CreatedTime.After(ru.latest.Time) {
				ru.latest = rep.CreatedTime
				hasRep = true
			}
		}
		if !hasRep {
			ru.latest = domain.MustTimestamp(domain.NoSubmissionTime)
		}
		if tie == domain.TieBySubmissionCount {
			n, err := s.Jobs.CountByUser(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			ru.count = n
		}
		ranked = append(ranked, ru)
	}

	sort.Slice(ranked, func(i, j int) bool { return s.ahead(ranked[i], ranked[j], tie) })

	rows := make([]domain.RanklistRow, len(ranked))
	for i, ru := range ranked {
		rank := i + 1
		if i > 0 && s.sameRank(ranked[i-1], ru, tie) {
			rank = rows[i-1].Rank
		}
		rows[i] = domain.RanklistRow{User: ru.user, Rank: rank, Scores: ru.scores}
	}
	return rows, nil
}

// scope resolves the users and problem ids the ranklist covers.
func (s *RankingService) scope(ctx context.Context, contestID int64) ([]domain.User, []int64, error) {
	if contestID == domain.RootContestID {
		users, err := s.Users.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		return users, s.Problems.ProblemIDs(), nil
	}
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.Errorf(domain.ErrNotFound, "Contest %d not found.", contestID)
		}
		return nil, nil, err
	}
	users := make([]domain.User, 0, len(contest.UserIDs))
	for _, uid := range contest.UserIDs {
		u, err := s.Users.Get(ctx, uid)
		if err != nil {
			return nil, nil, err
		}
		users = append(users, u)
	}
	ids := make([]int64, len(contest.ProblemIDs))
	copy(ids, contest.ProblemIDs)
	return users, ids, nil
}

// representative picks the scored submission that stands for (user,
// problem): the highest score with the earliest winning on ties, or simply
// the latest one. Only finished jobs count, from any contest.
func (s *RankingService) representative(ctx context.Context, userID, problemID int64, rule domain.ScoringRule) (domain.Job, bool, error) {
	state := domain.StateFinished
	jobs, err := s.Jobs.List(ctx, domain.JobFilter{UserID: &userID, ProblemID: &problemID, State: &state})
	if err != nil {
		return domain.Job{}, false, err
	}
	if len(jobs) == 0 {
		return domain.Job{}, false, nil
	}
	if rule == domain.ScoringLatest {
		return jobs[len(jobs)-1], true, nil
	}
	// jobs ascend by created_time, so replacing only on a strictly greater
	// score keeps the earliest of equal maxima.
	best := jobs[0]
	for _, j := range jobs[1:] {
		if j.Score > best.Score {
			best = j
		}
	}
	return best, true, nil
}

// ahead reports whether a sorts before b: score descending, then the
// selected tie-breaker, then user id ascending.
func (s *RankingService) ahead(a, b rankedUser, tie domain.TieBreaker) bool {
	if a.final != b.final {
		return a.final > b.final
	}
	switch tie {
	case domain.TieBySubmissionCount:
		if a.count != b.count {
			return a.count < b.count
		}
	case domain.TieBySubmissionTime:
		if !a.latest.Equal(b.latest.Time) {
			return a.latest.Before(b.latest.Time)
		}
	}
	return a.user.ID < b.user.ID
}

// sameRank reports whether two adjacent users share a rank: equal under
// (final score, tie-breaker). The id fallback that orders otherwise-tied
// rows never separates ranks, but an explicit user_id tie-breaker does.
func (s *RankingService) sameRank(a, b rankedUser, tie domain.TieBreaker) bool {
	if a.final != b.final {
		return false
	}
	switch tie {
	case domain.TieBySubmissionCount:
		return a.count == b.count
	case domain.TieBySubmissionTime:
		return a.latest.Equal(b.latest.Time)
	case domain.TieByUserID:
		return a.user.ID == b.user.ID
	}
	return true
}
