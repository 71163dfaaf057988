package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// RecoverInterrupted re-queues jobs the previous process left behind:
// anything still Queueing or Running lost its queue entry when the process
// died, so each is reset to the queued shape and dispatched again. Runs
// once at startup, after the dispatcher is up. Returns the requeue count.
func RecoverInterrupted(ctx context.Context, jobs domain.JobRepository, d domain.Dispatcher, now func() time.Time) (int, error) {
	tr := otel.Tracer("app.recovery")
	ctx, span := tr.Start(ctx, "app.RecoverInterrupted")
	defer span.End()

	stale, err := jobs.ListByStates(ctx, domain.StateQueueing, domain.StateRunning)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("jobs.stale", len(stale)))

	requeued := 0
	for _, j := range stale {
		j.ResetForRetest(now())
		if err := jobs.Update(ctx, j); err != nil {
			slog.Error("recovery: reset failed", slog.Int64("job_id", j.ID), slog.Any("error", err))
			continue
		}
		if err := d.Enqueue(ctx, j.ID); err != nil {
			slog.Warn("recovery: enqueue failed, job stays queued", slog.Int64("job_id", j.ID), slog.Any("error", err))
			continue
		}
		requeued++
	}
	span.SetAttributes(attribute.Int("jobs.requeued", requeued))
	return requeued, nil
}
