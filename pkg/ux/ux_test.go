// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_NonTerminalPrintsOnce(t *testing.T) {
	var out bytes.Buffer
	s := NewSpinner(&out, "Indexing lec1")
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, "Indexing lec1...\n", out.String())
}

func TestSpinner_AnimatesAndClears(t *testing.T) {
	out := &syncBuffer{}
	s := NewSpinner(out, "Thinking")
	s.animate = true
	s.interval = 5 * time.Millisecond

	s.Start()
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Thinking"))
	}, time.Second, 5*time.Millisecond)
	s.Update("Still thinking")
	s.Stop()

	assert.Contains(t, out.String(), "\r\033[K")
}

func TestRun_ReturnsFnError(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")

	err := Run(&out, "Sweeping", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, out.String(), "Sweeping")
}

func TestIsTerminal_Buffer(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestMark(t *testing.T) {
	assert.Contains(t, Mark(true), "✓")
	assert.Contains(t, Mark(false), "✗")
}
