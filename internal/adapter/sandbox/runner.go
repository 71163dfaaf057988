// Package sandbox launches judged child processes with redirected stdio
// and an optional wall-clock deadline. It is a plain subprocess runner;
// isolation is left to the deployment.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// Runner implements domain.Sandbox on os/exec.
type Runner struct{}

// New builds a Runner.
func New() *Runner { return &Runner{} }

// Run starts the child and waits for exit or deadline. The error return is
// reserved for launch and plumbing failures; everything after a clean start
// is reported through the outcome. Cancellation of ctx is deliberately not
// honored: a judged case runs to its own deadline.
func (r *Runner) Run(ctx context.Context, spec domain.RunSpec) (domain.RunOutcome, error) {
	tr := otel.Tracer("sandbox")
	_, span := tr.Start(ctx, "sandbox.Run")
	defer span.End()
	if len(spec.Argv) == 0 {
		return domain.RunOutcome{}, errors.New("op=sandbox.run: empty argv")
	}
	span.SetAttributes(attribute.String("proc.command", spec.Argv[0]))

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return domain.RunOutcome{}, fmt.Errorf("op=sandbox.run: start %s: %w", spec.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if spec.Deadline > 0 {
		t := time.NewTimer(spec.Deadline)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-done:
		out := domain.RunOutcome{Elapsed: time.Since(start)}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitCode()
		default:
			// The child ran but its stdio plumbing failed.
			return domain.RunOutcome{}, fmt.Errorf("op=sandbox.run: wait %s: %w", spec.Argv[0], err)
		}
		return out, nil
	case <-timeout:
		// Kill and reap so no zombie outlives the judging directory.
		_ = cmd.Process.Kill()
		<-done
		span.SetAttributes(attribute.Bool("proc.timed_out", true))
		return domain.RunOutcome{TimedOut: true, Elapsed: time.Since(start)}, nil
	}
}
