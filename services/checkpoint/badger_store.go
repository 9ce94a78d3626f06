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

	"github.com/dgraph-io/badger/v4"

	store "github.com/AleutianAI/AcademicAgent/pkg/storage/badger"
)

// Key layout:
//
//	ckpt/latest/<thread>            latest checkpoint
//	ckpt/hist/<thread>/<step:%08d>  history, ordered by step
const (
	latestPrefix  = "ckpt/latest/"
	historyPrefix = "ckpt/hist/"
)

// BadgerStore persists checkpoints in an embedded BadgerDB.
//
// Thread Safety: safe for concurrent use.
type BadgerStore struct {
	db  *store.DB
	now func() time.Time
}

// NewBadgerStore wraps an opened database. The store owns db and closes it
// on Close.
func NewBadgerStore(db *store.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// OpenBadgerStore opens the database described by cfg and wraps it.
func OpenBadgerStore(cfg store.Config) (*BadgerStore, error) {
	db, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

func latestKey(thread string) []byte {
	return []byte(latestPrefix + thread)
}

func historyKeyPrefix(thread string) []byte {
	return []byte(historyPrefix + thread + "/")
}

func historyKey(thread string, step int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", historyPrefix, thread, step))
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(threadID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return decode(data)
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := encode(cp, s.now())
	if err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(latestKey(cp.ThreadID), data); err != nil {
			return fmt.Errorf("write latest: %w", err)
		}
		if err := txn.Set(historyKey(cp.ThreadID, cp.Step), data); err != nil {
			return fmt.Errorf("write history: %w", err)
		}
		return nil
	})
}

// History implements Store.
func (s *BadgerStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	var out []Checkpoint
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := historyKeyPrefix(threadID)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			cp, err := decode(data)
			if err != nil {
				return err
			}
			out = append(out, *cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", threadID, err)
	}
	return out, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var keys [][]byte
		it := txn.NewIterator(badger.IteratorOptions{Prefix: historyKeyPrefix(threadID)})
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		keys = append(keys, latestKey(threadID))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
