// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists reasoning workflow state per thread.
//
// # Description
//
// A Checkpoint is written after every node transition and holds the full
// workflow state as opaque JSON, plus the node to run next. Loading the
// latest checkpoint of a thread resumes an interrupted run; a missing key
// means the run starts fresh. Every save also appends to the thread's
// history so the audit trail of a run can be inspected later.
//
// Two backends implement Store: BadgerStore (embedded, default) and
// RedisStore (networked, shared between orchestrator replicas).
//
// # Integrity
//
// Each checkpoint carries a SHA256 checksum over its content. Load rejects a
// checkpoint whose checksum does not match with ErrCorrupt.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Version is the current checkpoint format version (semver).
const Version = "1.0.0"

var (
	// ErrNotFound means the thread has no checkpoint. Callers start fresh.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt means a stored checkpoint failed checksum verification.
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrInvalidThreadID rejects ids that cannot be used as storage keys.
	ErrInvalidThreadID = errors.New("invalid thread id")
)

// validThreadID allows alphanumerics plus _ - . : up to 128 characters.
var validThreadID = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)

// Checkpoint is one durable snapshot of a workflow run.
type Checkpoint struct {
	Version  string          `json:"version"`
	ThreadID string          `json:"thread_id"`
	Step     int             `json:"step"`
	Node     string          `json:"node"`
	Next     string          `json:"next"`
	State    json.RawMessage `json:"state"`
	SavedAt  time.Time       `json:"saved_at"`
	Checksum string          `json:"checksum"`
}

// Store persists checkpoints keyed by thread id.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// Load returns the latest checkpoint of the thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save seals cp and writes it as the thread's latest checkpoint and as
	// the next history entry, atomically.
	Save(ctx context.Context, cp *Checkpoint) error

	// History returns every saved checkpoint of the thread, oldest first.
	History(ctx context.Context, threadID string) ([]Checkpoint, error)

	// Delete removes the thread's latest checkpoint and history.
	Delete(ctx context.Context, threadID string) error

	// Close releases the backend.
	Close() error
}

// ValidateThreadID returns ErrInvalidThreadID for unusable ids.
func ValidateThreadID(id string) error {
	if !validThreadID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidThreadID, id)
	}
	return nil
}

// seal stamps the version, timestamp and checksum.
func (c *Checkpoint) seal(now time.Time) error {
	if err := ValidateThreadID(c.ThreadID); err != nil {
		return err
	}
	c.Version = Version
	c.SavedAt = now.UTC().Truncate(time.Microsecond)
	sum, err := c.checksum()
	if err != nil {
		return err
	}
	c.Checksum = sum
	return nil
}

// verify recomputes the checksum.
func (c *Checkpoint) verify() error {
	sum, err := c.checksum()
	if err != nil {
		return err
	}
	if sum != c.Checksum {
		return fmt.Errorf("%w: thread %s step %d", ErrCorrupt, c.ThreadID, c.Step)
	}
	return nil
}

func (c *Checkpoint) checksum() (string, error) {
	data, err := json.Marshal(struct {
		Version  string          `json:"version"`
		ThreadID string          `json:"thread_id"`
		Step     int             `json:"step"`
		Node     string          `json:"node"`
		Next     string          `json:"next"`
		State    json.RawMessage `json:"state"`
		SavedAt  int64           `json:"saved_at"`
	}{c.Version, c.ThreadID, c.Step, c.Node, c.Next, c.State, c.SavedAt.UnixMicro()})
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// encode seals and marshals cp.
func encode(cp *Checkpoint, now time.Time) ([]byte, error) {
	if cp == nil {
		return nil, errors.New("checkpoint must not be nil")
	}
	if err := cp.seal(now); err != nil {
		return nil, err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// decode unmarshals and verifies a stored checkpoint.
func decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := cp.verify(); err != nil {
		return nil, err
	}
	return &cp, nil
}
