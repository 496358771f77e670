package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ytakahashi/todo-api/internal/config"
	"github.com/ytakahashi/todo-api/internal/models"
)

// maxWatchRetries bounds optimistic retries when another writer touches the
// same todo between WATCH and EXEC.
const maxWatchRetries = 64

// RedisStore keeps each todo as a JSON string, an id set for listing and an
// INCR counter for ids. INCR is atomic so concurrent creates never share an id.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

type RedisOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "todos",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStoreFromConfig dials redis and fails fast if it does not answer.
func NewRedisStoreFromConfig(ctx context.Context, cfg config.Store) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	s := NewRedisStore(rdb, WithRedisPrefix(cfg.RedisPrefix))
	s.owned = true
	return s, nil
}

func (s *RedisStore) counterKey() string { return s.prefix + ":next_id" }
func (s *RedisStore) idsKey() string     { return s.prefix + ":ids" }
func (s *RedisStore) itemKey(id uint64) string {
	return s.prefix + ":item:" + strconv.FormatUint(id, 10)
}

func (s *RedisStore) List(ctx context.Context) ([]Todo, error) {
	members, err := s.rdb.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, models.Internal(fmt.Errorf("list todo ids: %w", err))
	}
	todos := []Todo{}
	if len(members) == 0 {
		return todos, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, models.Internal(fmt.Errorf("bad todo id %q in set: %w", m, err))
		}
		keys = append(keys, s.itemKey(id))
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, models.Internal(fmt.Errorf("load todos: %w", err))
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		var todo Todo
		if err := json.Unmarshal([]byte(raw), &todo); err != nil {
			return nil, models.Internal(fmt.Errorf("decode todo: %w", err))
		}
		todos = append(todos, todo)
	}
	sortByID(todos)
	return todos, nil
}

func (s *RedisStore) Create(ctx context.Context, in models.CreateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	next, err := s.rdb.Incr(ctx, s.counterKey()).Result()
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("allocate todo id: %w", err))
	}

	todo := Todo{ID: uint64(next), Title: in.Title}
	data, err := json.Marshal(todo)
	if err != nil {
		return Todo{}, models.Internal(err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.itemKey(todo.ID), data, 0)
		pipe.SAdd(ctx, s.idsKey(), strconv.FormatUint(todo.ID, 10))
		return nil
	})
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("store todo %d: %w", todo.ID, err))
	}
	return todo, nil
}

func (s *RedisStore) Get(ctx context.Context, id uint64) (Todo, error) {
	raw, err := s.rdb.Get(ctx, s.itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Todo{}, models.ErrNotFound
	}
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("get todo %d: %w", id, err))
	}

	var todo Todo
	if err := json.Unmarshal(raw, &todo); err != nil {
		return Todo{}, models.Internal(fmt.Errorf("decode todo %d: %w", id, err))
	}
	return todo, nil
}

func (s *RedisStore) Update(ctx context.Context, id uint64, in models.UpdateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	key := s.itemKey(id)
	var updated Todo
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		var todo Todo
		if err := json.Unmarshal(raw, &todo); err != nil {
			return err
		}
		in.Apply(&todo)
		data, err := json.Marshal(todo)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = todo
		}
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, models.ErrNotFound):
			return Todo{}, err
		default:
			return Todo{}, models.Internal(fmt.Errorf("update todo %d: %w", id, err))
		}
	}
	return Todo{}, models.Internal(fmt.Errorf("update todo %d: too much contention", id))
}

func (s *RedisStore) Delete(ctx context.Context, id uint64) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.itemKey(id))
		pipe.SRem(ctx, s.idsKey(), strconv.FormatUint(id, 10))
		return nil
	})
	if err != nil {
		return models.Internal(fmt.Errorf("delete todo %d: %w", id, err))
	}
	if del.Val() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Close closes the client only when the store dialed it itself.
func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil || !s.owned {
		return nil
	}
	return s.rdb.Close()
}
