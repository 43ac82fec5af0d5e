// Package storage is the thin Redis client shared by queues, leases and flow
// records. It owns the connection lifecycle and classifies Redis failures as
// transient.
package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

// ErrNil is returned when a key, field or list element is absent.
var ErrNil = errors.New("storage: nil")

// ErrConflict is returned when an optimistic transaction keeps losing races.
var ErrConflict = errors.New("storage: transaction conflict")

const txRetries = 10

type Store struct{ rdb r.UniversalClient }

func New(rdb r.UniversalClient) *Store { return &Store{rdb} }

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Open connects and pings. The caller owns Close.
func Open(ctx context.Context, o Options) (*Store, error) {
	rdb := r.NewClient(&r.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	s := New(rdb)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return transient("ping", s.rdb.Ping(ctx).Err())
}

func (s *Store) Close() error { return s.rdb.Close() }

// Push prepends values to the list at key.
func (s *Store) Push(ctx context.Context, key string, values ...any) error {
	return transient("lpush", s.rdb.LPush(ctx, key, values...).Err())
}

// PopBlocking pops the tail of the first non-empty list among keys, waiting
// up to timeout. Redis takes the timeout in whole seconds, so a fraction is
// truncated and anything below 1s waits 1s. A timeout <= 0 checks each list
// once without blocking.
// Returns the key it popped from and the value, or ErrNil.
func (s *Store) PopBlocking(ctx context.Context, timeout time.Duration, keys ...string) (string, string, error) {
	if timeout <= 0 {
		for _, k := range keys {
			v, err := s.rdb.RPop(ctx, k).Result()
			if errors.Is(err, r.Nil) {
				continue
			}
			if err != nil {
				return "", "", transient("rpop", err)
			}
			return k, v, nil
		}
		return "", "", ErrNil
	}
	res, err := s.rdb.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, r.Nil) {
		return "", "", ErrNil
	}
	if err != nil {
		return "", "", transient("brpop", err)
	}
	if len(res) != 2 {
		return "", "", ErrNil
	}
	return res[0], res[1], nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	return n, transient("llen", err)
}

// Lock sets key to token only if it does not exist, expiring after ttl.
func (s *Store) Lock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	return ok, transient("setnx", err)
}

var unlockScript = r.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock deletes key only while it still holds token.
func (s *Store) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, s.rdb, []string{key}, token).Int()
	if err != nil {
		return false, transient("unlock", err)
	}
	return n == 1, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return transient("del", s.rdb.Del(ctx, keys...).Err())
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n == 1, transient("exists", err)
}

// HashGet returns the requested fields of the hash at key. Absent fields are
// left out of the map; ErrNil means the hash does not exist.
func (s *Store) HashGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if len(fields) == 0 {
		all, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, transient("hgetall", err)
		}
		if len(all) == 0 {
			return nil, ErrNil
		}
		return all, nil
	}
	pipe := s.rdb.Pipeline()
	exists := pipe.Exists(ctx, key)
	vals := pipe.HMGet(ctx, key, fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, transient("hmget", err)
	}
	if exists.Val() == 0 {
		return nil, ErrNil
	}
	out := make(map[string]string, len(fields))
	for i, v := range vals.Val() {
		if str, ok := v.(string); ok {
			out[fields[i]] = str
		}
	}
	return out, nil
}

// Tx is the view of a hash handed to Update callbacks.
type Tx struct {
	ctx context.Context
	tx  *r.Tx
	key string
}

// Field reads one field of the watched hash; ErrNil when absent.
func (t *Tx) Field(name string) (string, error) {
	v, err := t.tx.HGet(t.ctx, t.key, name).Result()
	if errors.Is(err, r.Nil) {
		return "", ErrNil
	}
	return v, transient("hget", err)
}

func (t *Tx) Exists() (bool, error) {
	n, err := t.tx.Exists(t.ctx, t.key).Result()
	return n == 1, transient("exists", err)
}

// Update runs fn against the hash at key under WATCH and atomically writes
// the fields it returns. ttl > 0 (re)sets the key expiry. fn may run more
// than once when another client modifies key concurrently.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn func(*Tx) (map[string]string, error)) error {
	txf := func(tx *r.Tx) error {
		fields, err := fn(&Tx{ctx: ctx, tx: tx, key: key})
		if err != nil {
			return callbackError{err}
		}
		if len(fields) == 0 {
			return nil
		}
		args := make([]any, 0, 2*len(fields))
		for k, v := range fields {
			args = append(args, k, v)
		}
		_, err = tx.TxPipelined(ctx, func(p r.Pipeliner) error {
			p.HSet(ctx, key, args...)
			if ttl > 0 {
				p.PExpire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}
	for i := 0; i < txRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		var cb callbackError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &cb):
			return cb.err
		case errors.Is(err, r.TxFailedErr):
			continue
		default:
			return transient("watch", err)
		}
	}
	return ErrConflict
}

type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }

// TransientError wraps a Redis failure (connectivity, timeout, server error).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: errors.Wrap(err, "redis")}
}
