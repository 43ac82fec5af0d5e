package queue

import (
	"fmt"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/storage"
)

// Registry holds one queue per stage so a worker can hand a flow to its
// successor by name.
type Registry struct {
	queues map[domain.QueueName]*RedisQ
}

func NewRegistry(store *storage.Store, priorities int) (*Registry, error) {
	reg := &Registry{queues: make(map[domain.QueueName]*RedisQ, len(domain.QueueNames))}
	for _, name := range domain.QueueNames {
		q, err := New(store, name, priorities)
		if err != nil {
			return nil, err
		}
		reg.queues[name] = q
	}
	return reg, nil
}

func (r *Registry) Get(name domain.QueueName) (*RedisQ, error) {
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownQueue, name)
	}
	return q, nil
}
