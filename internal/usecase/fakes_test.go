package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func cloneJob(j domain.Job) domain.Job {
	cases := make([]domain.CaseResult, len(j.Cases))
	copy(cases, j.Cases)
	j.Cases = cases
	return j
}

// fakeJobs is an in-memory JobRepository that records every Update
// snapshot, so tests can assert the persistence sequence.
type fakeJobs struct {
	mu      sync.Mutex
	rows    map[int64]domain.Job
	nextID  int64
	updates []domain.Job
	stamped []domain.Verdict
	getErr  error
}

func newFakeJobs() *fakeJobs { return &fakeJobs{rows: map[int64]domain.Job{}} }

func (f *fakeJobs) Create(_ domain.Context, j domain.Job) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.ID = f.nextID
	f.nextID++
	f.rows[j.ID] = cloneJob(j)
	return j, nil
}

func (f *fakeJobs) seed(j domain.Job) domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j.ID >= f.nextID {
		f.nextID = j.ID + 1
	}
	f.rows[j.ID] = cloneJob(j)
	return j
}

func (f *fakeJobs) Get(_ domain.Context, id int64) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Job{}, f.getErr
	}
	j, ok := f.rows[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (f *fakeJobs) Update(_ domain.Context, j domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[j.ID]; !ok {
		return domain.ErrNotFound
	}
	f.rows[j.ID] = cloneJob(j)
	f.updates = append(f.updates, cloneJob(j))
	return nil
}

func (f *fakeJobs) SetResult(_ domain.Context, id int64, v domain.Verdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Result = v
	f.rows[id] = j
	f.stamped = append(f.stamped, v)
	return nil
}

func (f *fakeJobs) List(_ domain.Context, flt domain.JobFilter) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Job{}
	for _, j := range f.rows {
		if flt.UserID != nil && j.Submission.UserID != *flt.UserID {
			continue
		}
		if flt.ContestID != nil && j.Submission.ContestID != *flt.ContestID {
			continue
		}
		if flt.ProblemID != nil && j.Submission.ProblemID != *flt.ProblemID {
			continue
		}
		if flt.Language != nil && j.Submission.Language != *flt.Language {
			continue
		}
		if flt.State != nil && j.State != *flt.State {
			continue
		}
		if flt.Result != nil && j.Result != *flt.Result {
			continue
		}
		if flt.From != nil && j.CreatedTime.Before(flt.From.Time) {
			continue
		}
		if flt.To != nil && j.CreatedTime.After(flt.To.Time) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedTime.Equal(out[b].CreatedTime.Time) {
			return out[a].CreatedTime.Before(out[b].CreatedTime.Time)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (f *fakeJobs) CountByUserContest(_ domain.Context, userID, contestID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.rows {
		if j.Submission.UserID == userID && j.Submission.ContestID == contestID {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) CountByUser(_ domain.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.rows {
		if j.Submission.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) ListByStates(_ domain.Context, states ...domain.State) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Job{}
	for _, j := range f.rows {
		for _, st := range states {
			if j.State == st {
				out = append(out, cloneJob(j))
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

type fakeUsers struct {
	mu   sync.Mutex
	rows map[int64]domain.User
}

func newFakeUsers(users ...domain.User) *fakeUsers {
	f := &fakeUsers{rows: map[int64]domain.User{}}
	for _, u := range users {
		f.rows[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ domain.Context, name string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64
	for id := range f.rows {
		if id >= next {
			next = id + 1
		}
	}
	u := domain.User{ID: next, Name: name}
	f.rows[next] = u
	return u, nil
}

func (f *fakeUsers) Rename(_ domain.Context, id int64, name string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u.Name = name
	f.rows[id] = u
	return u, nil
}

func (f *fakeUsers) Get(_ domain.Context, id int64) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByName(_ domain.Context, name string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.Name == name {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUsers) List(_ domain.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.User{}
	for _, u := range f.rows {
		out = append(out, u)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeUsers) EnsureRoot(_ domain.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[domain.RootUserID]; !ok {
		f.rows[domain.RootUserID] = domain.User{ID: domain.RootUserID, Name: domain.RootUserName}
	}
	return nil
}

type fakeContests struct {
	mu   sync.Mutex
	rows map[int64]domain.Contest
}

func newFakeContests(contests ...domain.Contest) *fakeContests {
	f := &fakeContests{rows: map[int64]domain.Contest{}}
	for _, c := range contests {
		f.rows[c.ID] = c
	}
	return f
}

func (f *fakeContests) Create(_ domain.Context, c domain.Contest) (domain.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64 = 1
	for id := range f.rows {
		if id >= next {
			next = id + 1
		}
	}
	c.ID = next
	f.rows[next] = c
	return c, nil
}

func (f *fakeContests) Update(_ domain.Context, c domain.Contest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[c.ID]; !ok {
		return domain.ErrNotFound
	}
	f.rows[c.ID] = c
	return nil
}

func (f *fakeContests) Get(_ domain.Context, id int64) (domain.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return domain.Contest{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeContests) List(_ domain.Context) ([]domain.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Contest{}
	for id, c := range f.rows {
		if id == domain.RootContestID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeContests) PutRoot(_ domain.Context, c domain.Contest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = domain.RootContestID
	f.rows[c.ID] = c
	return nil
}

// fakeProblems satisfies usecase.ProblemSet.
type fakeProblems struct {
	problems  map[int64]domain.Problem
	languages map[string]domain.Language
	ids       []int64
}

func newFakeProblems(problems []domain.Problem, languages []domain.Language) *fakeProblems {
	f := &fakeProblems{problems: map[int64]domain.Problem{}, languages: map[string]domain.Language{}}
	for _, p := range problems {
		f.problems[p.ID] = p
		f.ids = append(f.ids, p.ID)
	}
	for _, l := range languages {
		f.languages[l.Name] = l
	}
	return f
}

func (f *fakeProblems) ProblemByID(id int64) (domain.Problem, bool) {
	p, ok := f.problems[id]
	return p, ok
}

func (f *fakeProblems) LanguageByName(name string) (domain.Language, bool) {
	l, ok := f.languages[name]
	return l, ok
}

func (f *fakeProblems) ProblemIDs() []int64 {
	out := make([]int64, len(f.ids))
	copy(out, f.ids)
	return out
}

type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []int64
	err      error
}

func (f *fakeDispatcher) Enqueue(_ context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func (f *fakeDispatcher) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.enqueued))
	copy(out, f.enqueued)
	return out
}

// sandboxStep scripts one Run call of the fakeSandbox.
type sandboxStep struct {
	stdout  string
	stderr  string
	outcome domain.RunOutcome
	err     error
}

// fakeSandbox replays scripted steps and records every RunSpec.
type fakeSandbox struct {
	mu    sync.Mutex
	steps []sandboxStep
	calls []domain.RunSpec
}

func (f *fakeSandbox) Run(_ context.Context, spec domain.RunSpec) (domain.RunOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, spec)
	if len(f.steps) == 0 {
		return domain.RunOutcome{}, fmt.Errorf("unscripted sandbox call: %v", spec.Argv)
	}
	st := f.steps[0]
	f.steps = f.steps[1:]
	if st.err != nil {
		return domain.RunOutcome{}, st.err
	}
	if spec.Stdout != nil && st.stdout != "" {
		_, _ = io.WriteString(spec.Stdout, st.stdout)
	}
	if spec.Stderr != nil && st.stderr != "" {
		_, _ = io.WriteString(spec.Stderr, st.stderr)
	}
	return st.outcome, nil
}
