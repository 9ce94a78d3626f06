// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key, e.g. "academic:ckpt:".
	Prefix string

	// TTL expires a thread's keys after its last save. Zero keeps them.
	TTL time.Duration
}

// RedisStore persists checkpoints in Redis so several orchestrator
// processes can resume each other's threads.
//
// Keys per thread: <prefix><thread> holds the latest checkpoint and
// <prefix><thread>:hist is a list of every checkpoint, oldest first.
//
// Thread Safety: safe for concurrent use.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client. The store closes it on
// Close.
func NewRedisStoreFromClient(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) latestKey(thread string) string {
	return s.prefix + thread
}

func (s *RedisStore) historyKey(thread string) string {
	return s.prefix + thread + ":hist"
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	data, err := s.rdb.Get(ctx, s.latestKey(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return decode(data)
}

// Save implements Store. Both writes go through one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := encode(cp, s.now())
	if err != nil {
		return err
	}
	latest, hist := s.latestKey(cp.ThreadID), s.historyKey(cp.ThreadID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, latest, data, s.ttl)
		pipe.RPush(ctx, hist, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, hist, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	raw, err := s.rdb.LRange(ctx, s.historyKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", threadID, err)
	}
	out := make([]Checkpoint, 0, len(raw))
	for _, r := range raw {
		cp, err := decode([]byte(r))
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.latestKey(threadID), s.historyKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", threadID, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
