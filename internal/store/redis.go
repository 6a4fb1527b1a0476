package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	runKeyPrefix     = "wikiwriter:run:"
	maxUpdateRetries = 16
)

// Redis stores run records as JSON documents. Updates use WATCH/MULTI so a
// concurrent write to the same key retries instead of being lost.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis wraps client. A zero ttl keeps records until they are deleted.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

// Conn opens a client and checks it answers PING.
func Conn(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
		Password:    password,
		DB:          db,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

func runKey(id string) string { return runKeyPrefix + id }

func (r *Redis) Create(ctx context.Context, rec Record) error {
	if err := checkCreate(rec); err != nil {
		return err
	}
	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.ID, err)
	}
	ok, err := r.client.SetNX(ctx, runKey(rec.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create run %s: %w", rec.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (Record, error) {
	return r.load(ctx, r.client, id)
}

func (r *Redis) Update(ctx context.Context, id string, mutate Mutator) (Record, error) {
	key := runKey(id)
	var out Record
	txf := func(tx *redis.Tx) error {
		prev, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := prev.Snapshot()
		if err := mutate(&next); err != nil {
			return err
		}
		if err := checkUpdate(prev, next); err != nil {
			return err
		}
		next.UpdatedAt = r.now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode run %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if r.ttl > 0 {
				pipe.Set(ctx, key, data, r.ttl)
			} else {
				pipe.Set(ctx, key, data, redis.KeepTTL)
			}
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return out, nil
	}
	return Record{}, fmt.Errorf("update run %s: too much contention", id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) load(ctx context.Context, c getter, id string) (Record, error) {
	val, err := c.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("get run %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return rec, nil
}
