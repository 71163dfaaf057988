package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/oj-server/internal/adapter/httpserver"
	"github.com/fairyhunter13/oj-server/internal/config"
	"github.com/fairyhunter13/oj-server/internal/domain"
	"github.com/fairyhunter13/oj-server/internal/usecase"
)

func ptr[T any](v T) *T { return &v }

type fakeJobs struct {
	mu     sync.Mutex
	rows   map[int64]domain.Job
	nextID int64
}

func newFakeJobs() *fakeJobs { return &fakeJobs{rows: map[int64]domain.Job{}} }

func (f *fakeJobs) Create(_ domain.Context, j domain.Job) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.ID = f.nextID
	f.nextID++
	f.rows[j.ID] = j
	return j, nil
}

func (f *fakeJobs) seed(j domain.Job) domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j.ID >= f.nextID {
		f.nextID = j.ID + 1
	}
	f.rows[j.ID] = j
	return j
}

func (f *fakeJobs) Get(_ domain.Context, id int64) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) Update(_ domain.Context, j domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[j.ID]; !ok {
		return domain.ErrNotFound
	}
	f.rows[j.ID] = j
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
		out = append(out, j)
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
				out = append(out, j)
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
	for _, c := range f.rows {
		if c.ID == domain.RootContestID {
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
	f.rows[domain.RootContestID] = c
	return nil
}

type fakeProblems struct {
	problems  map[int64]domain.Problem
	languages map[string]domain.Language
	ids       []int64
}

func (f *fakeProblems) ProblemByID(id int64) (domain.Problem, bool) {
	p, ok := f.problems[id]
	return p, ok
}

func (f *fakeProblems) LanguageByName(name string) (domain.Language, bool) {
	l, ok := f.languages[name]
	return l, ok
}

func (f *fakeProblems) ProblemIDs() []int64 { return f.ids }

type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []int64
	err      error
}

func (f *fakeDispatcher) Enqueue(_ domain.Context, jobID int64) error {
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
	return append([]int64(nil), f.enqueued...)
}

// env bundles a server wired over in-memory stores with the stores
// themselves so tests can seed and inspect them.
type env struct {
	srv      *httpserver.Server
	jobs     *fakeJobs
	users    *fakeUsers
	contests *fakeContests
	dispatch *fakeDispatcher
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	now, err := time.Parse(domain.TimeLayout, "2024-06-01T12:00:00.000Z")
	require.NoError(t, err)

	jobs := newFakeJobs()
	users := newFakeUsers(
		domain.User{ID: 0, Name: "root"},
		domain.User{ID: 1, Name: "alice"},
		domain.User{ID: 2, Name: "bob"},
	)
	contests := newFakeContests(
		domain.Contest{
			ID:              domain.RootContestID,
			Name:            "root",
			From:            domain.MustTimestamp(domain.RootContestFrom),
			To:              domain.MustTimestamp(domain.RootContestTo),
			ProblemIDs:      []int64{1, 2},
			UserIDs:         []int64{0, 1, 2},
			SubmissionLimit: domain.RootContestCap,
		},
		domain.Contest{
			ID:              1,
			Name:            "weekly",
			From:            domain.MustTimestamp("2024-01-01T00:00:00.000Z"),
			To:              domain.MustTimestamp("2024-12-31T00:00:00.000Z"),
			ProblemIDs:      []int64{1},
			UserIDs:         []int64{1, 2},
			SubmissionLimit: 10,
		},
	)
	problems := &fakeProblems{
		problems: map[int64]domain.Problem{
			1: {ID: 1, Name: "a+b", Type: domain.ProblemStandard, Cases: []domain.Case{{Score: 50}, {Score: 50}}},
			2: {ID: 2, Name: "a*b", Type: domain.ProblemStandard, Cases: []domain.Case{{Score: 100}}},
		},
		languages: map[string]domain.Language{
			"fake": {Name: "fake", FileName: "main.fake", Command: []string{"fakec", "%INPUT%", "-o", "%OUTPUT%"}},
		},
		ids: []int64{1, 2},
	}
	dispatch := &fakeDispatcher{}

	submit := usecase.NewSubmitService(jobs, users, contests, problems, dispatch)
	submit.Now = func() time.Time { return now }
	jobsSvc := usecase.NewJobsService(jobs, users, dispatch)
	jobsSvc.Now = func() time.Time { return now }
	ranking := usecase.NewRankingService(jobs, users, contests, problems)
	usersSvc := usecase.NewUsersService(users)
	contestsSvc := usecase.NewContestsService(users, contests, problems)

	cfg := config.Config{AppEnv: "test", Port: 8080}
	srv := httpserver.NewServer(cfg, submit, jobsSvc, ranking, usersSvc, contestsSvc, nil, nil)
	return &env{srv: srv, jobs: jobs, users: users, contests: contests, dispatch: dispatch, now: now}
}

// do runs one request against a handler mounted at pattern and returns the
// recorder. Body is raw JSON, empty for GETs.
func do(t *testing.T, method, pattern string, h http.HandlerFunc, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, url, nil)
	} else {
		r = httptest.NewRequest(method, url, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

// decodeEnvelope reads the error envelope from a failure response.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (code int, reason, message string) {
	t.Helper()
	var env struct {
		Code    int    `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Code, env.Reason, env.Message
}
