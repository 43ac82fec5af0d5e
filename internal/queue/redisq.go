// Package queue implements the per-stage durable job queues and the leases
// that keep a job from being worked twice at once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/storage"
)

// ErrEmpty is returned by Dequeue when no job arrived within the wait timeout.
var ErrEmpty = errors.New("queue: empty")

type RedisQ struct {
	store      *storage.Store
	route      domain.Route
	name       domain.QueueName
	priorities int
}

// New binds a queue to a stage of the routing table. priorities < 1 means a
// single priority level.
func New(store *storage.Store, name domain.QueueName, priorities int) (*RedisQ, error) {
	route, ok := domain.Routes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownQueue, name)
	}
	if priorities < 1 {
		priorities = 1
	}
	return &RedisQ{store: store, route: route, name: name, priorities: priorities}, nil
}

func (q *RedisQ) Name() domain.QueueName { return q.name }

// Attributes lists the flow record fields this stage reads back.
func (q *RedisQ) Attributes() []string { return q.route.Attributes }

// Enqueue appends job to the list for its priority level. Priority 1 is the
// highest; out of range priorities are clamped.
func (q *RedisQ) Enqueue(ctx context.Context, job domain.Job) error {
	if job.Queue() != q.name {
		return fmt.Errorf("queue %s: cannot enqueue %s job", q.name, job.Queue())
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode %s job: %w", q.name, err)
	}
	return q.store.Push(ctx, q.key(job.Meta().Priority), payload)
}

// Dequeue waits up to waitTimeout for a job, taking higher priorities first.
// A waitTimeout <= 0 does not block.
func (q *RedisQ) Dequeue(ctx context.Context, waitTimeout time.Duration) (domain.Job, error) {
	_, payload, err := q.store.PopBlocking(ctx, waitTimeout, q.keys()...)
	if errors.Is(err, storage.ErrNil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	job, err := domain.DecodeJob(q.name, []byte(payload))
	if err != nil {
		return nil, &MalformedJobError{Queue: q.name, Payload: payload, Err: err}
	}
	return job, nil
}

// MalformedJobError is returned by Dequeue for a payload that was popped but
// could not be decoded. The payload is no longer on the queue.
type MalformedJobError struct {
	Queue   domain.QueueName
	Payload string
	Err     error
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("queue %s: malformed job: %v", e.Queue, e.Err)
}

func (e *MalformedJobError) Unwrap() error { return e.Err }

// Len counts waiting jobs across priority levels.
func (q *RedisQ) Len(ctx context.Context) (int64, error) {
	var total int64
	for _, k := range q.keys() {
		n, err := q.store.Len(ctx, k)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Lease is an exclusive, expiring claim on one (flow, stage) pair.
type Lease struct {
	Key   string
	token string
}

// AcquireLease claims job for lockTime. ok is false when another holder
// already has an unexpired lease; that is not an error.
func (q *RedisQ) AcquireLease(ctx context.Context, job domain.Job, lockTime time.Duration) (lease *Lease, ok bool, err error) {
	l := &Lease{Key: q.leaseKey(job.Meta().FlowID), token: uuid.NewString()}
	ok, err = q.store.Lock(ctx, l.Key, l.token, lockTime)
	if err != nil || !ok {
		return nil, false, err
	}
	return l, true, nil
}

// ReleaseLease frees the lease early. Releasing an expired or foreign lease
// is a no-op.
func (q *RedisQ) ReleaseLease(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	_, err := q.store.Unlock(ctx, l.Key, l.token)
	return err
}

func (q *RedisQ) key(priority int) string {
	p := min(max(priority, 1), q.priorities)
	return fmt.Sprintf("queue:%s:p%d", q.name, p)
}

func (q *RedisQ) keys() []string {
	keys := make([]string, q.priorities)
	for i := range keys {
		keys[i] = q.key(i + 1)
	}
	return keys
}

func (q *RedisQ) leaseKey(id domain.FlowID) string {
	return fmt.Sprintf("lease:%s:%s", q.name, id)
}
