package usecase

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fairyhunter13/oj-server/internal/domain"
	"github.com/fairyhunter13/oj-server/pkg/textcmp"
)

// spjCaptureLimit bounds in-memory checker output.
const spjCaptureLimit = 1 << 20

// Comparator implements the output-matching policies. Standard and strict
// comparisons are pure file reads; special judges run through the sandbox.
type Comparator struct {
	Sandbox domain.Sandbox
}

// Match judges a produced output file against the case answer under the
// problem's policy. The info string is empty except for special judges. An
// error means the comparison itself could not run, which ends the whole
// job as a system error.
func (c Comparator) Match(ctx context.Context, p domain.Problem, outputPath, answerPath string) (domain.Verdict, string, error) {
	if p.Type == domain.ProblemSPJ {
		v, info := c.runSpecialJudge(ctx, p.Misc.SpecialJudge, outputPath, answerPath)
		return v, info, nil
	}
	produced, err := os.ReadFile(outputPath)
	if err != nil {
		return "", "", fmt.Errorf("op=compare.read_output: %w", err)
	}
	answer, err := os.ReadFile(answerPath)
	if err != nil {
		return "", "", fmt.Errorf("op=compare.read_answer: %w", err)
	}
	accepted := false
	if p.Type == domain.ProblemStrict {
		accepted = textcmp.EqualExact(produced, answer)
	} else {
		accepted = textcmp.EqualNormalized(produced, answer)
	}
	if accepted {
		return domain.VerdictAccepted, "", nil
	}
	return domain.VerdictWrongAnswer, "", nil
}

// runSpecialJudge substitutes the output and answer paths into the checker
// argv and interprets its report. The contract: exit status 0 and at least
// two stdout lines, the first a verdict literal and the second free-form
// info. Every deviation, including a checker that cannot be launched, is
// an SPJ Error; a failed checker never fails the job.
func (c Comparator) runSpecialJudge(ctx context.Context, template []string, outputPath, answerPath string) (domain.Verdict, string) {
	argv := make([]string, len(template))
	for i, tok := range template {
		tok = strings.ReplaceAll(tok, "%OUTPUT%", outputPath)
		tok = strings.ReplaceAll(tok, "%ANSWER%", answerPath)
		argv[i] = tok
	}

	var stdout, stderr bytes.Buffer
	out, err := c.Sandbox.Run(ctx, domain.RunSpec{
		Argv:   argv,
		Stdout: domain.LimitWriter(&stdout, spjCaptureLimit),
		Stderr: domain.LimitWriter(&stderr, spjCaptureLimit),
	})
	if err != nil {
		return domain.VerdictSPJError, ""
	}
	if out.ExitCode != 0 {
		return domain.VerdictSPJError, stderr.String()
	}
	lines := strings.Split(stdout.String(), "\n")
	if len(lines) <= 1 {
		return domain.VerdictSPJError, ""
	}
	verdict, ok := domain.ParseVerdict(lines[0])
	if !ok {
		return domain.VerdictSPJError, lines[1]
	}
	return verdict, lines[1]
}
