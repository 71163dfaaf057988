// Package usecase contains the judge's application services: intake,
// judging, queries, ranking and the user/contest registries. Services
// depend on the domain ports only.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/domain"
	obsctx "github.com/fairyhunter13/oj-server/internal/observability"
)

// ProblemSet resolves configured problems and languages. Satisfied by the
// judge configuration; read-only after startup.
type ProblemSet interface {
	ProblemByID(id int64) (domain.Problem, bool)
	LanguageByName(name string) (domain.Language, bool)
	ProblemIDs() []int64
}

// JudgeMetrics receives pipeline timing events.
type JudgeMetrics interface {
	ObserveCompile(language string, seconds float64)
	ObserveCase(language string, seconds float64)
}

// NopJudgeMetrics discards all events.
type NopJudgeMetrics struct{}

func (NopJudgeMetrics) ObserveCompile(string, float64) {}
func (NopJudgeMetrics) ObserveCase(string, float64)    {}

// JudgeService drives a job through compilation, per-case execution and
// aggregation. One instance is shared by all workers; each Execute call
// owns its job row exclusively until it reaches Finished.
type JudgeService struct {
	Jobs     domain.JobRepository
	Sandbox  domain.Sandbox
	Problems ProblemSet
	// WorkDir is the parent of the per-job temp{id} directories.
	WorkDir string
	Metrics JudgeMetrics
}

// NewJudgeService wires a JudgeService with no-op metrics.
func NewJudgeService(jobs domain.JobRepository, sb domain.Sandbox, ps ProblemSet, workDir string) *JudgeService {
	return &JudgeService{Jobs: jobs, Sandbox: sb, Problems: ps, WorkDir: workDir, Metrics: NopJudgeMetrics{}}
}

// Execute judges one persisted job to completion and reports the final
// verdict. Pipeline failures never escape: the row is stamped System Error
// and the worker moves on.
func (s *JudgeService) Execute(ctx context.Context, jobID int64) domain.Verdict {
	tr := otel.Tracer("usecase.judge")
	ctx, span := tr.Start(ctx, "judge.Execute")
	span.SetAttributes(attribute.Int64("job.id", jobID))
	defer span.End()
	log := obsctx.LoggerFromContext(ctx).With("job_id", jobID)

	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		log.Error("job fetch failed", "error", err)
		s.absorb(ctx, jobID)
		return domain.VerdictSystemError
	}
	problem, okP := s.Problems.ProblemByID(job.Submission.ProblemID)
	language, okL := s.Problems.LanguageByName(job.Submission.Language)
	if !okP || !okL {
		// Intake validated both, so the configuration changed across a
		// restart and orphaned this job.
		log.Error("problem or language no longer configured",
			"problem_id", job.Submission.ProblemID, "language", job.Submission.Language)
		s.absorb(ctx, jobID)
		return domain.VerdictSystemError
	}

	if err := s.run(ctx, &job, problem, language); err != nil {
		log.Error("judging failed", "error", err)
		s.absorb(ctx, jobID)
		return domain.VerdictSystemError
	}
	log.Info("job finished", "result", string(job.Result), "score", job.Score)
	return job.Result
}

// absorb stamps the result column best-effort. A store that cannot take
// the stamp is beyond repair from here.
func (s *JudgeService) absorb(ctx context.Context, jobID int64) {
	if err := s.Jobs.SetResult(ctx, jobID, domain.VerdictSystemError); err != nil {
		obsctx.LoggerFromContext(ctx).Error("system-error stamp failed", "job_id", jobID, "error", err)
	}
}

func (s *JudgeService) run(ctx context.Context, job *domain.Job, problem domain.Problem, language domain.Language) error {
	dir := filepath.Join(s.WorkDir, fmt.Sprintf("temp%d", job.ID))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("op=judge.workdir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			obsctx.LoggerFromContext(ctx).Warn("workdir cleanup failed", "dir", dir, "error", err)
		}
	}()

	srcPath := filepath.Join(dir, language.FileName)
	if err := os.WriteFile(srcPath, []byte(job.Submission.SourceCode), 0o644); err != nil {
		return fmt.Errorf("op=judge.write_source: %w", err)
	}
	artifact := filepath.Join(dir, "test")
	argv := make([]string, len(language.Command))
	for i, tok := range language.Command {
		switch tok {
		case "%INPUT%":
			argv[i] = srcPath
		case "%OUTPUT%":
			argv[i] = artifact
		default:
			argv[i] = tok
		}
	}

	// Compilation. Unbounded: the per-case deadline does not apply here.
	job.State = domain.StateRunning
	job.Result = domain.VerdictRunning
	job.Cases[0].Result = domain.VerdictRunning
	job.UpdatedTime = domain.NewTimestamp(time.Now())
	if err := s.Jobs.Update(ctx, *job); err != nil {
		return err
	}
	compileStart := time.Now()
	out, err := s.Sandbox.Run(ctx, domain.RunSpec{Argv: argv})
	s.Metrics.ObserveCompile(language.Name, time.Since(compileStart).Seconds())
	job.UpdatedTime = domain.NewTimestamp(time.Now())
	if err != nil || out.ExitCode != 0 {
		// A compiler that cannot be spawned reads the same as one that
		// rejected the source.
		job.State = domain.StateFinished
		job.Result = domain.VerdictCompilationError
		job.Cases[0].Result = domain.VerdictCompilationError
		return s.Jobs.Update(ctx, *job)
	}
	job.Cases[0].Result = domain.VerdictCompilationSuccess
	if err := s.Jobs.Update(ctx, *job); err != nil {
		return err
	}

	// Per-case execution. Each iteration persists the row so pollers see
	// live progress.
	cmp := Comparator{Sandbox: s.Sandbox}
	for i, tc := range problem.Cases {
		j := i + 1
		if job.Cases[j].Result == domain.VerdictSkipped {
			continue
		}
		res, outPath, err := s.runCase(ctx, dir, artifact, j, tc)
		if err != nil {
			return err
		}
		s.Metrics.ObserveCase(language.Name, res.Elapsed.Seconds())

		switch {
		case res.TimedOut:
			job.Cases[j].Time = tc.TimeLimit
			job.Cases[j].Result = domain.VerdictTimeLimitExceeded
		case res.ExitCode != 0:
			job.Cases[j].Time = res.Elapsed.Microseconds()
			job.Cases[j].Result = domain.VerdictRuntimeError
		default:
			job.Cases[j].Time = res.Elapsed.Microseconds()
			verdict, info, err := cmp.Match(ctx, problem, outPath, tc.AnswerFile)
			if err != nil {
				return err
			}
			job.Cases[j].Result = verdict
			job.Cases[j].Info = info
			if verdict == domain.VerdictAccepted {
				job.Score += tc.Score
			}
		}
		if job.Result == domain.VerdictRunning && job.Cases[j].Result != domain.VerdictAccepted {
			job.Result = job.Cases[j].Result
		}
		if job.Cases[j].Result != domain.VerdictAccepted {
			skipGroupTail(problem.Misc.Packing, job, j)
		}
		job.UpdatedTime = domain.NewTimestamp(time.Now())
		if err := s.Jobs.Update(ctx, *job); err != nil {
			return err
		}
	}

	// A packing group is all or nothing: when its tail was skipped, the
	// accepted members give their points back.
	for _, group := range problem.Misc.Packing {
		if len(group) == 0 || job.Cases[group[len(group)-1]].Result != domain.VerdictSkipped {
			continue
		}
		for _, idx := range group {
			if job.Cases[idx].Result == domain.VerdictAccepted {
				job.Score -= problem.Cases[idx-1].Score
			}
		}
	}
	if problem.Type == domain.ProblemDynamicRanking && problem.Misc.DynamicRankingRatio != nil {
		job.Score *= 1 - *problem.Misc.DynamicRankingRatio
	}

	job.Result = aggregateVerdict(job.Cases)
	job.State = domain.StateFinished
	job.UpdatedTime = domain.NewTimestamp(time.Now())
	return s.Jobs.Update(ctx, *job)
}

// runCase executes the artifact once with the case input as stdin and
// temp{id}/{j}.out as stdout.
func (s *JudgeService) runCase(ctx context.Context, dir, artifact string, j int, tc domain.Case) (domain.RunOutcome, string, error) {
	outPath := filepath.Join(dir, fmt.Sprintf("%d.out", j))
	outFile, err := os.Create(outPath)
	if err != nil {
		return domain.RunOutcome{}, "", fmt.Errorf("op=judge.case_output: %w", err)
	}
	defer func() { _ = outFile.Close() }()
	inFile, err := os.Open(tc.InputFile)
	if err != nil {
		return domain.RunOutcome{}, "", fmt.Errorf("op=judge.case_input: %w", err)
	}
	defer func() { _ = inFile.Close() }()

	res, err := s.Sandbox.Run(ctx, domain.RunSpec{
		Argv:     []string{artifact},
		Stdin:    inFile,
		Stdout:   outFile,
		Deadline: time.Duration(tc.TimeLimit) * time.Microsecond,
	})
	if err != nil {
		return domain.RunOutcome{}, "", fmt.Errorf("op=judge.case_run: %w", err)
	}
	return res, outPath, nil
}

// skipGroupTail marks the members after case j in its packing group as
// Skipped. A case outside every group skips nothing.
func skipGroupTail(packing [][]int, job *domain.Job, j int) {
	for _, group := range packing {
		for col, idx := range group {
			if idx == j {
				for _, rest := range group[col+1:] {
					job.Cases[rest].Result = domain.VerdictSkipped
				}
				return
			}
		}
	}
}

// aggregateVerdict walks the cases in order and returns the first
// non-accepting execution verdict; a walk that finds none is Accepted.
func aggregateVerdict(cases []domain.CaseResult) domain.Verdict {
	for _, c := range cases {
		switch c.Result {
		case domain.VerdictRuntimeError, domain.VerdictWrongAnswer,
			domain.VerdictSPJError, domain.VerdictTimeLimitExceeded:
			return c.Result
		}
	}
	return domain.VerdictAccepted
}
