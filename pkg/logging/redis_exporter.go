// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamExporter appends log entries to a Redis stream, so the logs of
// several orchestrator replicas can be tailed in one place with XREAD.
//
// Each entry becomes one stream message with the fields ts (RFC 3339 with
// nanoseconds), level, msg, service and attrs (a JSON object).
type RedisStreamExporter struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamExporter writes to stream through rdb. A positive maxLen
// trims the stream approximately to that many messages. The exporter closes
// rdb on Close.
func NewRedisStreamExporter(rdb redis.UniversalClient, stream string, maxLen int64) *RedisStreamExporter {
	if stream == "" {
		stream = "academic:logs"
	}
	return &RedisStreamExporter{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Export implements LogExporter.
func (e *RedisStreamExporter) Export(ctx context.Context, entry LogEntry) error {
	attrs, err := json.Marshal(entry.Attrs)
	if err != nil {
		attrs = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	args := &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]any{
			"ts":      entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"level":   entry.Level.String(),
			"msg":     entry.Message,
			"service": entry.Service,
			"attrs":   string(attrs),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}
	return e.rdb.XAdd(ctx, args).Err()
}

// Flush is a no-op; every Export is acknowledged by the server.
func (e *RedisStreamExporter) Flush(context.Context) error { return nil }

// Close closes the Redis client.
func (e *RedisStreamExporter) Close() error { return e.rdb.Close() }

var _ LogExporter = (*RedisStreamExporter)(nil)
