package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

func TestJobsCreateAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	for want := int64(0); want < 3; want++ {
		j, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"))
		require.NoError(t, err)
		assert.Equal(t, want, j.ID)
	}
}

func TestJobsGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	seed := testJob(2, 1, 3, "2026-08-27T02:05:29.000Z")
	created, err := repo.Create(ctx, seed)
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, seed.Submission, got.Submission)
	assert.Equal(t, domain.StateQueueing, got.State)
	assert.Equal(t, domain.VerdictWaiting, got.Result)
	assert.Equal(t, "2026-08-27T02:05:29.000Z", got.CreatedTime.String())
	require.Len(t, got.Cases, 3)
	assert.Equal(t, domain.VerdictWaiting, got.Cases[0].Result)
}

func TestJobsGetNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	_, err := repo.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobsUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	j, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"))
	require.NoError(t, err)

	j.State = domain.StateFinished
	j.Result = domain.VerdictAccepted
	j.Score = 100
	j.UpdatedTime = domain.MustTimestamp("2026-08-27T02:05:30.000Z")
	j.Cases[0].Result = domain.VerdictCompilationSuccess
	j.Cases[1] = domain.CaseResult{ID: 1, Result: domain.VerdictAccepted, Time: 512}
	j.Cases[2] = domain.CaseResult{ID: 2, Result: domain.VerdictAccepted, Time: 1024}
	require.NoError(t, repo.Update(ctx, j))

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinished, got.State)
	assert.Equal(t, domain.VerdictAccepted, got.Result)
	assert.Equal(t, float64(100), got.Score)
	assert.Equal(t, "2026-08-27T02:05:30.000Z", got.UpdatedTime.String())
	assert.Equal(t, int64(1024), got.Cases[2].Time)
}

func TestJobsSetResult(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	j, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"))
	require.NoError(t, err)

	require.NoError(t, repo.SetResult(ctx, j.ID, domain.VerdictSystemError))

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictSystemError, got.Result)
	assert.Equal(t, domain.StateQueueing, got.State, "state is left as it was")

	assert.ErrorIs(t, repo.SetResult(ctx, 42, domain.VerdictSystemError), domain.ErrNotFound)
}

func TestJobsUpdateMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	j := testJob(0, 0, 0, "2026-08-27T02:05:29.000Z")
	j.ID = 7
	assert.ErrorIs(t, repo.Update(ctx, j), domain.ErrNotFound)
}

func TestJobsListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	seed := []domain.Job{
		testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"),
		testJob(1, 0, 0, "2026-08-27T02:05:30.000Z"),
		testJob(1, 0, 1, "2026-08-27T02:05:31.000Z"),
	}
	seed[2].Submission.Language = "C"
	for _, j := range seed {
		_, err := repo.Create(ctx, j)
		require.NoError(t, err)
	}
	finished := seed[0]
	finished.ID = 0
	finished.State = domain.StateFinished
	finished.Result = domain.VerdictAccepted
	require.NoError(t, repo.Update(ctx, finished))

	ptr := func(v int64) *int64 { return &v }
	str := func(v string) *string { return &v }
	state := domain.StateFinished
	result := domain.VerdictAccepted
	from := domain.MustTimestamp("2026-08-27T02:05:30.000Z")
	to := domain.MustTimestamp("2026-08-27T02:05:30.000Z")

	tests := []struct {
		name    string
		filter  domain.JobFilter
		wantIDs []int64
	}{
		{"all", domain.JobFilter{}, []int64{0, 1, 2}},
		{"by user", domain.JobFilter{UserID: ptr(1)}, []int64{1, 2}},
		{"by problem", domain.JobFilter{ProblemID: ptr(0)}, []int64{0, 1}},
		{"by language", domain.JobFilter{Language: str("C")}, []int64{2}},
		{"by state", domain.JobFilter{State: &state}, []int64{0}},
		{"by result", domain.JobFilter{Result: &result}, []int64{0}},
		{"window", domain.JobFilter{From: &from, To: &to}, []int64{1}},
		{"user and problem", domain.JobFilter{UserID: ptr(1), ProblemID: ptr(0)}, []int64{1}},
		{"no match", domain.JobFilter{UserID: ptr(9)}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestJobsListOrderedByCreatedTime(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	// Insert out of chronological order; ids still ascend.
	times := []string{
		"2026-08-27T02:05:31.000Z",
		"2026-08-27T02:05:29.000Z",
		"2026-08-27T02:05:30.000Z",
	}
	for _, ts := range times {
		_, err := repo.Create(ctx, testJob(0, 0, 0, ts))
		require.NoError(t, err)
	}

	got, err := repo.List(ctx, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 0}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestJobsCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	for _, j := range []domain.Job{
		testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"),
		testJob(0, 1, 0, "2026-08-27T02:05:30.000Z"),
		testJob(1, 1, 0, "2026-08-27T02:05:31.000Z"),
	} {
		_, err := repo.Create(ctx, j)
		require.NoError(t, err)
	}

	n, err := repo.CountByUserContest(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountByUser(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountByUser(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobsListByStates(t *testing.T) {
	ctx := context.Background()
	repo := NewJobsRepo(openTestStore(t))

	a, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:29.000Z"))
	require.NoError(t, err)
	b, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:30.000Z"))
	require.NoError(t, err)
	c, err := repo.Create(ctx, testJob(0, 0, 0, "2026-08-27T02:05:31.000Z"))
	require.NoError(t, err)

	b.State = domain.StateRunning
	require.NoError(t, repo.Update(ctx, b))
	c.State = domain.StateFinished
	require.NoError(t, repo.Update(ctx, c))

	got, err := repo.ListByStates(ctx, domain.StateQueueing, domain.StateRunning)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)

	got, err = repo.ListByStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
