package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

// Redis stores the cache in a Redis database under a key prefix:
//
//	<prefix>:version       schema version
//	<prefix>:tickets       hash id -> ticket JSON
//	<prefix>:queue:seq     queue key counter
//	<prefix>:queue:items   hash key -> change JSON
//	<prefix>:queue:order   sorted set of keys scored by timestamp
type Redis struct {
	rdb    *redis.Client
	prefix string

	mu     sync.Mutex
	ready  bool
	closed bool
}

// NewRedis wraps an existing client. The schema version is checked lazily.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "ticketdesk"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// OpenRedis connects to addr with the given database number.
func OpenRedis(addr, password string, db int, prefix string) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), prefix)
}

func (r *Redis) key(parts string) string { return r.prefix + ":" + parts }

// init verifies the schema version, wiping the prefix on mismatch. A failed
// check is retried on the next operation.
func (r *Redis) init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return apperr.ErrCacheClosed
	}
	if r.ready {
		return nil
	}

	version, err := r.rdb.Get(ctx, r.key("version")).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: read schema version: %w", err)
	}
	if version != SchemaVersion {
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.key("tickets"), r.key("queue:seq"), r.key("queue:items"), r.key("queue:order"))
			pipe.Set(ctx, r.key("version"), SchemaVersion, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("cache: reset schema: %w", err)
		}
	}
	r.ready = true
	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rdb.Close()
}

func (r *Redis) ReplaceAll(ctx context.Context, tickets []models.Ticket) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	values := make([]any, 0, len(tickets)*2)
	for _, t := range tickets {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("cache: encode ticket %s: %w", t.ID, err)
		}
		values = append(values, t.ID, string(data))
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key("tickets"))
		if len(values) > 0 {
			pipe.HSet(ctx, r.key("tickets"), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: replace tickets: %w", err)
	}
	return nil
}

func (r *Redis) ReadAll(ctx context.Context) ([]models.Ticket, error) {
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	all, err := r.rdb.HGetAll(ctx, r.key("tickets")).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: read tickets: %w", err)
	}
	out := make([]models.Ticket, 0, len(all))
	for _, data := range all {
		var t models.Ticket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("cache: decode ticket: %w", err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Redis) UpsertOne(ctx context.Context, t models.Ticket) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: encode ticket %s: %w", t.ID, err)
	}
	if err := r.rdb.HSet(ctx, r.key("tickets"), t.ID, string(data)).Err(); err != nil {
		return fmt.Errorf("cache: upsert ticket %s: %w", t.ID, err)
	}
	return nil
}

func (r *Redis) Append(ctx context.Context, c models.PendingChange) (int64, error) {
	if err := r.init(ctx); err != nil {
		return 0, err
	}
	key, err := r.rdb.Incr(ctx, r.key("queue:seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: allocate queue key: %w", err)
	}
	c.Key = key
	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("cache: encode change: %w", err)
	}
	member := queueMember(key)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key("queue:items"), member, string(data))
		pipe.ZAdd(ctx, r.key("queue:order"), redis.Z{Score: float64(c.Timestamp), Member: member})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache: enqueue: %w", err)
	}
	return key, nil
}

func (r *Redis) ReadAllOrdered(ctx context.Context) ([]models.PendingChange, error) {
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	members, err := r.rdb.ZRange(ctx, r.key("queue:order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: read queue order: %w", err)
	}
	if len(members) == 0 {
		return []models.PendingChange{}, nil
	}
	raw, err := r.rdb.HMGet(ctx, r.key("queue:items"), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: read queue items: %w", err)
	}
	out := make([]models.PendingChange, 0, len(raw))
	for _, v := range raw {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var c models.PendingChange
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("cache: decode change: %w", err)
		}
		out = append(out, c)
	}
	sortChanges(out)
	return out, nil
}

func (r *Redis) Remove(ctx context.Context, key int64) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	member := queueMember(key)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.key("queue:items"), member)
		pipe.ZRem(ctx, r.key("queue:order"), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: remove %d: %w", key, err)
	}
	return nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	if err := r.init(ctx); err != nil {
		return 0, err
	}
	n, err := r.rdb.ZCard(ctx, r.key("queue:order")).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: count queue: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.key("queue:items"), r.key("queue:order")).Err(); err != nil {
		return fmt.Errorf("cache: clear queue: %w", err)
	}
	return nil
}

// queueMember zero-pads keys so lexical order within a score matches numeric order.
func queueMember(key int64) string {
	return fmt.Sprintf("%020d", key)
}
