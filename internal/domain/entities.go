// Package domain holds the judge's entities, verdicts, error taxonomy and
// the ports implemented by the adapters. It stays free of transport and
// storage concerns.
package domain

import (
	"context"
	"io"
	"time"
)

// Reserved identities ensured at startup.
const (
	RootUserID     int64 = 0
	RootUserName         = "root"
	RootContestID  int64 = 0
	RootContestCap int64 = 1 << 30
)

// User is a submitter. Names are globally unique.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Contest scopes submissions to a user set, a problem set, a time window and
// a per-user submission quota. Contest 0 is synthesized from configuration
// and spans every user and problem.
type Contest struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	From            Timestamp `json:"from"`
	To              Timestamp `json:"to"`
	ProblemIDs      []int64   `json:"problem_ids"`
	UserIDs         []int64   `json:"user_ids"`
	SubmissionLimit int64     `json:"submission_limit"`
}

// HasUser reports membership of id in the contest's user set.
func (c Contest) HasUser(id int64) bool {
	for _, u := range c.UserIDs {
		if u == id {
			return true
		}
	}
	return false
}

// HasProblem reports membership of id in the contest's problem set.
func (c Contest) HasProblem(id int64) bool {
	for _, p := range c.ProblemIDs {
		if p == id {
			return true
		}
	}
	return false
}

// ProblemType selects the output-judging policy for a problem.
type ProblemType string

const (
	ProblemStandard       ProblemType = "standard"
	ProblemStrict         ProblemType = "strict"
	ProblemSPJ            ProblemType = "spj"
	ProblemDynamicRanking ProblemType = "dynamic_ranking"
)

// Case is one test of a problem. TimeLimit is in microseconds; zero means
// unbounded. MemoryLimit is recorded but not enforced.
type Case struct {
	Score       float64 `json:"score" yaml:"score"`
	InputFile   string  `json:"input_file" yaml:"input_file"`
	AnswerFile  string  `json:"answer_file" yaml:"answer_file"`
	TimeLimit   int64   `json:"time_limit" yaml:"time_limit"`
	MemoryLimit int64   `json:"memory_limit" yaml:"memory_limit"`
}

// ProblemMisc carries the optional judging extensions. Packing rows hold
// 1-based case indices; SpecialJudge is an argv template with %OUTPUT% and
// %ANSWER% placeholders; DynamicRankingRatio is the reserved score fraction.
type ProblemMisc struct {
	Packing             [][]int  `json:"packing,omitempty" yaml:"packing,omitempty"`
	SpecialJudge        []string `json:"special_judge,omitempty" yaml:"special_judge,omitempty"`
	DynamicRankingRatio *float64 `json:"dynamic_ranking_ratio,omitempty" yaml:"dynamic_ranking_ratio,omitempty"`
}

// Problem is a configured task. Read-only after startup.
type Problem struct {
	ID    int64       `json:"id" yaml:"id"`
	Name  string      `json:"name" yaml:"name"`
	Type  ProblemType `json:"type" yaml:"type"`
	Misc  ProblemMisc `json:"misc,omitempty" yaml:"misc,omitempty"`
	Cases []Case      `json:"cases" yaml:"cases"`
}

// TotalScore is the sum of all case scores.
func (p Problem) TotalScore() float64 {
	var s float64
	for _, c := range p.Cases {
		s += c.Score
	}
	return s
}

// Language is a configured toolchain. Command is the compile argv template
// containing the %INPUT% (source path) and %OUTPUT% (artifact path) tokens.
type Language struct {
	Name     string   `json:"name" yaml:"name"`
	FileName string   `json:"file_name" yaml:"file_name"`
	Command  []string `json:"command" yaml:"command"`
}

// Submission is the client-supplied part of a job.
type Submission struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	UserID     int64  `json:"user_id"`
	ContestID  int64  `json:"contest_id"`
	ProblemID  int64  `json:"problem_id"`
}

// CaseResult records one case of a job. Index 0 is the compilation
// pseudo-case; indices 1..n map to problem cases 0..n-1. Time is elapsed
// microseconds; Memory is reserved.
type CaseResult struct {
	ID     int     `json:"id"`
	Result Verdict `json:"result"`
	Time   int64   `json:"time"`
	Memory int64   `json:"memory"`
	Info   string  `json:"info"`
}

// Job is one submission with its judging history. Ids are dense from 0.
// After intake a job is mutated only by the executor that owns it until it
// reaches StateFinished.
type Job struct {
	ID          int64        `json:"id"`
	CreatedTime Timestamp    `json:"created_time"`
	UpdatedTime Timestamp    `json:"updated_time"`
	Submission  Submission   `json:"submission"`
	State       State        `json:"state"`
	Result      Verdict      `json:"result"`
	Score       float64      `json:"score"`
	Cases       []CaseResult `json:"cases"`
}

// NewJobCases builds the initial all-Waiting case list for a problem with n
// cases (n+1 entries counting the compilation pseudo-case).
func NewJobCases(n int) []CaseResult {
	cases := make([]CaseResult, n+1)
	for i := range cases {
		cases[i] = CaseResult{ID: i, Result: VerdictWaiting}
	}
	return cases
}

// ResetForRetest returns the job to the freshly-queued shape: state
// Queueing, result Waiting, zero score, every case Waiting, updated now.
func (j *Job) ResetForRetest(now time.Time) {
	j.State = StateQueueing
	j.Result = VerdictWaiting
	j.Score = 0
	j.UpdatedTime = NewTimestamp(now)
	for i := range j.Cases {
		j.Cases[i] = CaseResult{ID: j.Cases[i].ID, Result: VerdictWaiting}
	}
}

// JobFilter is the AND-composed predicate set for listing jobs. Nil fields
// do not constrain. From/To are applied against created_time after the
// fetch; UserName is resolved to a user id by the usecase.
type JobFilter struct {
	UserID    *int64
	UserName  *string
	ContestID *int64
	ProblemID *int64
	Language  *string
	State     *State
	Result    *Verdict
	From      *Timestamp
	To        *Timestamp
}

// RanklistRow is one ranked user with per-problem representative scores in
// ascending problem-id order.
type RanklistRow struct {
	User   User      `json:"user"`
	Rank   int       `json:"rank"`
	Scores []float64 `json:"scores"`
}

// ScoringRule selects the representative submission per (user, problem).
type ScoringRule string

const (
	ScoringLatest  ScoringRule = "latest"
	ScoringHighest ScoringRule = "highest"
)

// ParseScoringRule validates a query value. Empty input selects the default
// rule (highest).
func ParseScoringRule(s string) (ScoringRule, bool) {
	switch ScoringRule(s) {
	case ScoringLatest, ScoringHighest:
		return ScoringRule(s), true
	case "":
		return ScoringHighest, true
	}
	return "", false
}

// TieBreaker orders users whose final scores are equal.
type TieBreaker string

const (
	TieByNothing         TieBreaker = ""
	TieBySubmissionTime  TieBreaker = "submission_time"
	TieBySubmissionCount TieBreaker = "submission_count"
	TieByUserID          TieBreaker = "user_id"
)

// ParseTieBreaker validates a query value. Empty input means no tie-break.
func ParseTieBreaker(s string) (TieBreaker, bool) {
	switch TieBreaker(s) {
	case TieByNothing, TieBySubmissionTime, TieBySubmissionCount, TieByUserID:
		return TieBreaker(s), true
	}
	return "", false
}

// Repositories (ports)

type JobRepository interface {
	// Create assigns the next dense id (max+1, 0 when empty) and persists
	// the record. Id assignment and insert are serialized by the store.
	Create(ctx Context, j Job) (Job, error)
	Get(ctx Context, id int64) (Job, error)
	// Update rewrites the mutable columns of the row keyed by j.ID.
	Update(ctx Context, j Job) error
	// SetResult stamps only the result column, leaving state and cases
	// untouched. The executor's failure-absorption path.
	SetResult(ctx Context, id int64, v Verdict) error
	List(ctx Context, f JobFilter) ([]Job, error)
	// CountByUserContest backs the contest submission quota.
	CountByUserContest(ctx Context, userID, contestID int64) (int64, error)
	// CountByUser counts every job of the user regardless of contest or
	// state; it backs the submission_count tie-breaker.
	CountByUser(ctx Context, userID int64) (int64, error)
	// ListByStates returns jobs whose state is in the given set, for
	// startup recovery.
	ListByStates(ctx Context, states ...State) ([]Job, error)
}

type UserRepository interface {
	// Create assigns id max+1 and inserts.
	Create(ctx Context, name string) (User, error)
	// Rename updates the name of an existing user.
	Rename(ctx Context, id int64, name string) (User, error)
	Get(ctx Context, id int64) (User, error)
	GetByName(ctx Context, name string) (User, error)
	List(ctx Context) ([]User, error)
	// EnsureRoot inserts user 0 "root" if absent.
	EnsureRoot(ctx Context) error
}

type ContestRepository interface {
	// Create assigns id max+1 (1 when only contest 0 exists) and inserts.
	Create(ctx Context, c Contest) (Contest, error)
	// Update rewrites an existing contest keyed by c.ID.
	Update(ctx Context, c Contest) error
	Get(ctx Context, id int64) (Contest, error)
	// List returns user-created contests (id > 0) ordered by id.
	List(ctx Context) ([]Contest, error)
	// PutRoot inserts or refreshes contest 0.
	PutRoot(ctx Context, c Contest) error
}

// Dispatcher (port): hands a persisted job to a background judging worker.

type Dispatcher interface {
	Enqueue(ctx Context, jobID int64) error
}

// Sandbox (port): launches a child process with redirected stdio and an
// optional wall-clock deadline.

// RunSpec describes one child process run. A zero Deadline means unbounded.
type RunSpec struct {
	Argv     []string
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Deadline time.Duration
}

// RunOutcome reports how the child ended. TimedOut means the child was
// killed at the deadline and reaped; otherwise ExitCode holds its status.
// Elapsed is wall-clock time measured around spawn and collection.
type RunOutcome struct {
	TimedOut bool
	ExitCode int
	Elapsed  time.Duration
}

type Sandbox interface {
	// Run returns an error only when the child could not be launched.
	Run(ctx Context, spec RunSpec) (RunOutcome, error)
}

// Context aliases context.Context so ports read uniformly.
type Context = context.Context
