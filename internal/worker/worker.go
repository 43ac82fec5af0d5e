// Package worker runs the per-stage loop: pop a job, lease it, run the stage
// function, merge its result into the flow record and hand the flow on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/flow"
	"github.com/SirClappington/guildq/internal/logging"
	"github.com/SirClappington/guildq/internal/queue"
)

// StageFunc computes one stage. It must be idempotent: a job can be delivered
// again once its lease expires.
type StageFunc func(ctx context.Context, job domain.Job) (domain.Result, error)

// Adapt turns a typed stage function into a StageFunc.
func Adapt[J domain.Job, R domain.Result](fn func(context.Context, J) (R, error)) StageFunc {
	return func(ctx context.Context, job domain.Job) (domain.Result, error) {
		j, ok := job.(J)
		if !ok {
			return nil, fmt.Errorf("stage expects %T, got %T", *new(J), job)
		}
		res, err := fn(ctx, j)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

type Options struct {
	// ID names the worker in logs; generated when empty.
	ID string
	// LockTime is the lease duration for each job.
	LockTime time.Duration
	// WaitTimeout bounds the blocking pop on an empty queue. Redis counts it
	// in whole seconds; anything between 0 and 1s waits 1s. Zero or less
	// polls without blocking and Run backs off between empty polls instead.
	WaitTimeout time.Duration
	// RetryDelay is the pause after a store failure before polling again. It
	// also caps the idle backoff of non-blocking polls.
	RetryDelay time.Duration
	// DeleteOnTerminal removes the flow record when a stage ends the flow.
	DeleteOnTerminal bool
	Logger           logging.Logger
}

// Outcome is what one Poll did.
type Outcome int

const (
	Idle      Outcome = iota // queue was empty
	Skipped                  // another worker holds the lease
	Dropped                  // the job's flow record is gone
	Failed                   // the stage function failed
	Completed                // result merged and flow routed
)

var outcomeName = map[Outcome]string{
	Idle:      "idle",
	Skipped:   "skipped",
	Dropped:   "dropped",
	Failed:    "failed",
	Completed: "completed",
}

func (o Outcome) String() string { return outcomeName[o] }

type Worker struct {
	id     string
	queue  *queue.RedisQ
	queues *queue.Registry
	flows  *flow.Store
	fn     StageFunc
	opts   Options
	log    logging.Logger
}

func New(queues *queue.Registry, flows *flow.Store, name domain.QueueName, fn StageFunc, opts Options) (*Worker, error) {
	q, err := queues.Get(name)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New("worker: stage function is required")
	}
	if opts.ID == "" {
		opts.ID = "worker-" + uuid.NewString()[:8]
	}
	if opts.LockTime <= 0 {
		opts.LockTime = time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Worker{
		id:     opts.ID,
		queue:  q,
		queues: queues,
		flows:  flows,
		fn:     fn,
		opts:   opts,
		log:    logging.With(logging.OrNop(opts.Logger), "worker", opts.ID, "queue", string(name)),
	}, nil
}

func (w *Worker) ID() string { return w.id }

const minIdleBackoff = 10 * time.Millisecond

// Run polls until ctx is cancelled. Store failures are logged and retried
// after RetryDelay; they never stop the loop. When polls do not block, an
// empty queue doubles the pause between polls up to RetryDelay.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	backoff := minIdleBackoff
	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("worker stopped")
			return nil
		}
		outcome, err := w.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("poll failed", "error", err)
			sleep(ctx, w.opts.RetryDelay)
			continue
		}
		if outcome != Idle || w.opts.WaitTimeout > 0 {
			backoff = minIdleBackoff
			continue
		}
		sleep(ctx, backoff)
		backoff = min(backoff*2, max(w.opts.RetryDelay, minIdleBackoff))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Poll runs one iteration of the loop. The error is non-nil only for store
// failures; anything local to the job is logged and reported as an Outcome.
func (w *Worker) Poll(ctx context.Context) (Outcome, error) {
	w.log.Verbose("polling")
	job, err := w.queue.Dequeue(ctx, w.opts.WaitTimeout)
	if errors.Is(err, queue.ErrEmpty) {
		return Idle, nil
	}
	var malformed *queue.MalformedJobError
	if errors.As(err, &malformed) {
		w.log.Error("dropping malformed job", "payload", malformed.Payload, "error", malformed.Err)
		return Dropped, nil
	}
	if err != nil {
		return Idle, fmt.Errorf("dequeue %s: %w", w.queue.Name(), err)
	}

	id := job.Meta().FlowID
	log := logging.With(w.log, "flowId", string(id))

	lease, ok, err := w.queue.AcquireLease(ctx, job, w.opts.LockTime)
	if err != nil {
		return Idle, fmt.Errorf("lease flow %s: %w", id, err)
	}
	if !ok {
		log.Debug("job already in progress, skipping")
		return Skipped, nil
	}
	defer func() {
		// Release even when ctx is done so the key does not linger until expiry.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.queue.ReleaseLease(rctx, lease); err != nil {
			log.Warn("lease release failed", "error", err)
		}
	}()

	exists, err := w.flows.Exists(ctx, id)
	if err != nil {
		return Idle, err
	}
	if !exists {
		log.Error("dropping job", "error", domain.ErrFlowNotFound)
		return Dropped, nil
	}

	start := time.Now()
	res, err := w.execute(ctx, job)
	if err != nil {
		log.Error("stage failed", "error", err, "duration", time.Since(start))
		return Failed, nil
	}
	log.Debug("stage finished", "next", string(res.Next()), "duration", time.Since(start))

	if err := w.finalize(ctx, id, res); err != nil {
		if errors.Is(err, domain.ErrFlowNotFound) {
			log.Error("dropping result", "error", err)
			return Dropped, nil
		}
		return Idle, err
	}
	return Completed, nil
}

// execute calls the stage function and checks its result before anything is
// written.
func (w *Worker) execute(ctx context.Context, job domain.Job) (res domain.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("stage panicked: %v", p)
		}
	}()
	res, err = w.fn(ctx, job)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("stage returned no result")
	}
	if res.Queue() != w.queue.Name() {
		return nil, fmt.Errorf("%w: %s result from %s stage", domain.ErrResultMismatch, res.Queue(), w.queue.Name())
	}
	if err := domain.CheckRoute(w.queue.Name(), res.Next()); err != nil {
		return nil, err
	}
	return res, nil
}

func (w *Worker) finalize(ctx context.Context, id domain.FlowID, res domain.Result) error {
	if err := w.flows.Merge(ctx, id, res.Update()); err != nil {
		return fmt.Errorf("merge flow %s: %w", id, err)
	}

	next := res.Next()
	if next == "" {
		w.log.Info("flow finished", "flowId", string(id))
		if w.opts.DeleteOnTerminal {
			return w.flows.Delete(ctx, id)
		}
		return nil
	}

	nq, err := w.queues.Get(next)
	if err != nil {
		return err
	}
	fields, err := w.flows.Read(ctx, id, nq.Attributes()...)
	if err != nil {
		return err
	}
	job, err := domain.BuildJob(next, id, fields)
	if err != nil {
		return fmt.Errorf("build %s job for flow %s: %w", next, id, err)
	}
	if err := nq.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s for flow %s: %w", next, id, err)
	}
	return nil
}
