// Package flow persists access flow records and starts new flows.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/storage"
)

// Store keeps one Redis hash per flow, one JSON encoded value per field, so
// stages can read and merge single fields.
type Store struct {
	store *storage.Store
	ttl   time.Duration
}

// NewStore returns a flow store. ttl > 0 lets Redis expire records that are
// not deleted explicitly; each write refreshes it.
func NewStore(s *storage.Store, ttl time.Duration) *Store {
	return &Store{store: s, ttl: ttl}
}

func key(id domain.FlowID) string { return "flow:" + string(id) }

// Create writes a new record and fails with ErrFlowExists on an id collision.
func (s *Store) Create(ctx context.Context, id domain.FlowID, data domain.AccessFlowData) error {
	fields, err := data.Fields()
	if err != nil {
		return err
	}
	return s.store.Update(ctx, key(id), s.ttl, func(tx *storage.Tx) (map[string]string, error) {
		exists, err := tx.Exists()
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("create flow %s: %w", id, domain.ErrFlowExists)
		}
		return fields, nil
	})
}

// Read returns the requested fields as raw JSON. Fields the record does not
// have are omitted.
func (s *Store) Read(ctx context.Context, id domain.FlowID, fields ...string) (map[string]json.RawMessage, error) {
	if len(fields) == 0 {
		exists, err := s.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("read flow %s: %w", id, domain.ErrFlowNotFound)
		}
		return map[string]json.RawMessage{}, nil
	}
	vals, err := s.store.HashGet(ctx, key(id), fields...)
	if errors.Is(err, storage.ErrNil) {
		return nil, fmt.Errorf("read flow %s: %w", id, domain.ErrFlowNotFound)
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(vals))
	for k, v := range vals {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Get returns the whole record.
func (s *Store) Get(ctx context.Context, id domain.FlowID) (*domain.AccessFlowData, error) {
	vals, err := s.store.HashGet(ctx, key(id))
	if errors.Is(err, storage.ErrNil) {
		return nil, fmt.Errorf("get flow %s: %w", id, domain.ErrFlowNotFound)
	}
	if err != nil {
		return nil, err
	}
	return domain.DecodeFlow(vals)
}

func (s *Store) Exists(ctx context.Context, id domain.FlowID) (bool, error) {
	return s.store.Exists(ctx, key(id))
}

// Merge writes only the fields set in u. A status that would move the flow
// backwards is dropped; the rest of the update still applies.
func (s *Store) Merge(ctx context.Context, id domain.FlowID, u domain.FlowUpdate) error {
	fields, err := u.Fields()
	if err != nil {
		return err
	}
	return s.store.Update(ctx, key(id), s.ttl, func(tx *storage.Tx) (map[string]string, error) {
		raw, err := tx.Field("status")
		if errors.Is(err, storage.ErrNil) {
			return nil, fmt.Errorf("merge flow %s: %w", id, domain.ErrFlowNotFound)
		}
		if err != nil {
			return nil, err
		}
		var cur domain.Status
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return nil, fmt.Errorf("merge flow %s: bad status: %w", id, err)
		}
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			if k == "status" && !cur.Advances(u.Status) {
				continue
			}
			out[k] = v
		}
		return out, nil
	})
}

func (s *Store) Delete(ctx context.Context, id domain.FlowID) error {
	return s.store.Del(ctx, key(id))
}
