package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fairyhunter13/oj-server/internal/adapter/observability"
	"github.com/fairyhunter13/oj-server/internal/config"
	"github.com/fairyhunter13/oj-server/internal/domain"
	"github.com/fairyhunter13/oj-server/internal/usecase"
)

// maxBodyBytes caps request bodies; source code above this is refused.
const maxBodyBytes = 1 << 20

// Server aggregates the handlers' dependencies.
type Server struct {
	Cfg        config.Config
	Submit     *usecase.SubmitService
	Jobs       *usecase.JobsService
	Ranking    *usecase.RankingService
	Users      *usecase.UsersService
	Contests   *usecase.ContestsService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error

	exitOnce sync.Once
	exit     chan struct{}
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, submit *usecase.SubmitService, jobs *usecase.JobsService, ranking *usecase.RankingService, users *usecase.UsersService, contests *usecase.ContestsService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:      cfg,
		Submit:   submit,
		Jobs:     jobs,
		Ranking:  ranking,
		Users:    users,
		Contests: contests,
		DBCheck:  dbCheck, RedisCheck: redisCheck,
		exit: make(chan struct{}),
	}
}

// ExitRequested is closed once POST /internal/exit has been accepted. The
// main loop selects on it to begin graceful shutdown.
func (s *Server) ExitRequested() <-chan struct{} { return s.exit }

// SubmitHandler accepts a submission, persists the queued job and returns
// the initial record. Judging happens asynchronously; the caller polls.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req submitRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		job, err := s.Submit.Submit(r.Context(), domain.Submission{
			SourceCode: *req.SourceCode,
			Language:   *req.Language,
			UserID:     *req.UserID,
			ContestID:  *req.ContestID,
			ProblemID:  *req.ProblemID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		observability.EnqueueJob(job.Submission.Language)
		writeJSON(w, http.StatusOK, job)
	}
}

// ListJobsHandler returns jobs matching the query predicates, ascending by
// creation time.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseJobFilter(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		list, err := s.Jobs.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetJobHandler returns one job by id.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		job, err := s.Jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// RetestJobHandler reopens a finished job and returns the reset record.
func (s *Server) RetestJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		job, err := s.Jobs.Retest(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		observability.EnqueueJob(job.Submission.Language)
		writeJSON(w, http.StatusOK, job)
	}
}

// UpsertUserHandler registers or renames a user.
func (s *Server) UpsertUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req userRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := s.Users.Upsert(r.Context(), req.ID, *req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// ListUsersHandler returns all users ascending by id.
func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Users.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// UpsertContestHandler creates or replaces a contest.
func (s *Server) UpsertContestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req contestRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		c, err := s.Contests.Upsert(r.Context(), usecase.ContestInput{
			ID:              req.ID,
			Name:            *req.Name,
			From:            *req.From,
			To:              *req.To,
			ProblemIDs:      req.ProblemIDs,
			UserIDs:         req.UserIDs,
			SubmissionLimit: req.SubmissionLimit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// ListContestsHandler returns the user-created contests.
func (s *Server) ListContestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Contests.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetContestHandler returns one contest, contest 0 included.
func (s *Server) GetContestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c, err := s.Contests.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// RanklistHandler returns the ranked rows for a contest.
func (s *Server) RanklistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rule, tie, err := parseRankQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows, err := s.Ranking.Ranklist(r.Context(), id, rule, tie)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// ExitHandler acknowledges the shutdown request, then signals the process
// to stop. The response is written before the signal so the client hears
// back ahead of listener teardown.
func (s *Server) ExitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
		s.exitOnce.Do(func() { close(s.exit) })
	}
}

// NotFoundHandler renders the error envelope for unknown routes.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.Errorf(domain.ErrNotFound, "route not found"))
	}
}

// ReadyzHandler probes the job store and, when configured, Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
