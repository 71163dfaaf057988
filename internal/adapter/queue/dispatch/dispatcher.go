// Package dispatch runs the in-process judging queue: a buffered channel
// of task records drained by a worker pool that scales between a floor and
// a ceiling based on backlog.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-server/internal/adapter/observability"
	"github.com/fairyhunter13/oj-server/internal/domain"
	obsctx "github.com/fairyhunter13/oj-server/internal/observability"
)

// JudgeFunc judges one persisted job to completion and reports the final
// aggregate verdict. It must absorb its own failures; the pool never
// retries.
type JudgeFunc func(ctx context.Context, jobID int64) domain.Verdict

// task is one unit of queued work. TaskID exists only for log and trace
// correlation; JobID keys the store row.
type task struct {
	TaskID uuid.UUID
	JobID  int64
}

// Options bound the pool. Zero fields fall back to defaults.
type Options struct {
	MinWorkers      int
	MaxWorkers      int
	QueueCapacity   int
	ScalingInterval time.Duration
	IdleTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 1
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 256
	}
	if o.ScalingInterval <= 0 {
		o.ScalingInterval = 2 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	return o
}

// Dispatcher implements domain.Dispatcher over a channel-fed worker pool.
type Dispatcher struct {
	judge JudgeFunc
	opts  Options

	queue    chan task
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	workers int
	closed  bool
}

// New builds a stopped Dispatcher; call Start before Enqueue.
func New(judge JudgeFunc, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		judge:    judge,
		opts:     opts,
		queue:    make(chan task, opts.QueueCapacity),
		shutdown: make(chan struct{}),
	}
}

// Start spawns the worker floor and the scaling manager. ctx is the process
// context handed to workers; request contexts never reach the pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.MinWorkers; i++ {
		d.spawn(ctx, false)
	}
	d.wg.Add(1)
	go d.manage(ctx)
}

// Enqueue hands a persisted job to the pool. It prefers the buffered
// channel; when the buffer is full it widens the pool and blocks on the
// handoff, so intake slows under saturation but never drops a job.
func (d *Dispatcher) Enqueue(ctx context.Context, jobID int64) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errors.New("op=dispatch.enqueue: dispatcher stopped")
	}

	t := task{TaskID: uuid.New(), JobID: jobID}
	select {
	case d.queue <- t:
	default:
		d.spawn(ctx, true)
		select {
		case d.queue <- t:
		case <-d.shutdown:
			return errors.New("op=dispatch.enqueue: dispatcher stopped")
		}
	}
	observability.QueueDepth.Set(float64(len(d.queue)))
	obsctx.LoggerFromContext(ctx).Debug("job enqueued",
		"task_id", t.TaskID.String(), "job_id", jobID, "queue_depth", len(d.queue))
	return nil
}

// Stop refuses new work, then waits for queued and running jobs up to
// timeout.
func (d *Dispatcher) Stop(timeout time.Duration) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Workers reports the live worker count.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workers
}

// manage scales the pool up while the queue is backed up. Workers above
// the floor retire themselves after IdleTimeout.
func (d *Dispatcher) manage(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.opts.ScalingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			depth := len(d.queue)
			observability.QueueDepth.Set(float64(depth))
			if depth > cap(d.queue)/2 {
				d.spawn(ctx, true)
			}
		case <-d.shutdown:
			return
		}
	}
}

// spawn adds one worker. Transient workers respect the ceiling and the
// idle timeout; floor workers live until shutdown.
func (d *Dispatcher) spawn(ctx context.Context, transient bool) {
	d.mu.Lock()
	if d.closed || (transient && d.workers >= d.opts.MaxWorkers) {
		d.mu.Unlock()
		return
	}
	d.workers++
	observability.WorkersActive.Set(float64(d.workers))
	d.mu.Unlock()

	d.wg.Add(1)
	go d.worker(ctx, transient)
}

func (d *Dispatcher) worker(ctx context.Context, transient bool) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.workers--
		observability.WorkersActive.Set(float64(d.workers))
		d.mu.Unlock()
	}()

	idle := time.NewTimer(d.opts.IdleTimeout)
	defer idle.Stop()
	for {
		if transient {
			select {
			case t := <-d.queue:
				d.runTask(ctx, t)
				idle.Reset(d.opts.IdleTimeout)
			case <-idle.C:
				return
			case <-d.shutdown:
				d.drain(ctx)
				return
			}
		} else {
			select {
			case t := <-d.queue:
				d.runTask(ctx, t)
			case <-d.shutdown:
				d.drain(ctx)
				return
			}
		}
	}
}

// drain empties what is already queued so accepted jobs finish before the
// process exits.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case t := <-d.queue:
			d.runTask(ctx, t)
		default:
			return
		}
	}
}

func (d *Dispatcher) runTask(ctx context.Context, t task) {
	observability.QueueDepth.Set(float64(len(d.queue)))
	// A started job runs to completion even while the process context is
	// being torn down; drained tasks still need working store writes.
	ctx = context.WithoutCancel(ctx)
	tr := otel.Tracer("dispatch")
	ctx, span := tr.Start(ctx, "dispatch.Task")
	span.SetAttributes(
		attribute.String("task.id", t.TaskID.String()),
		attribute.Int64("job.id", t.JobID),
	)
	defer span.End()

	log := obsctx.LoggerFromContext(ctx).With(
		"task_id", t.TaskID.String(), "job_id", t.JobID)
	log.Info("judging job")
	started := time.Now()
	observability.StartJob()
	verdict := d.judge(ctx, t.JobID)
	observability.FinishJob(string(verdict))
	log.Info("judging done",
		"result", string(verdict), "elapsed_ms", time.Since(started).Milliseconds())
}

var _ domain.Dispatcher = (*Dispatcher)(nil)
