// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate guards the single shared accelerator.
//
// # Description
//
// A Gate admits at most one occupant at a time: an ingestion run or a
// reasoning query. Admission is a compare-and-set from Idle; a denied caller
// is rejected immediately and never queued. Both tracks go through the same
// TryAcquire primitive, so there is no window in which each track believes
// it holds the accelerator.
//
// # Leases
//
// Acquire returns a Lease whose Release only takes effect while the lease is
// still current. If the supervisor force-releases a stale holder and another
// task is admitted, the stale holder's deferred Release is a no-op instead of
// evicting the new occupant. The package-level Release stays unconditional
// for operators.
//
// # Thread Safety
//
// All methods are safe for concurrent use. State sits behind one mutex with
// no re-entrancy.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status is the gate's occupancy state.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusIngesting Status = "INGESTING"
	StatusQuerying  Status = "QUERYING"
	StatusError     Status = "ERROR"
)

// Track identifies which workload is asking for the accelerator.
type Track int

const (
	// TrackIngestion moves the gate to StatusIngesting.
	TrackIngestion Track = iota

	// TrackReasoning moves the gate to StatusQuerying.
	TrackReasoning
)

// String returns "ingestion" or "reasoning".
func (t Track) String() string {
	if t == TrackReasoning {
		return "reasoning"
	}
	return "ingestion"
}

func (t Track) status() Status {
	if t == TrackReasoning {
		return StatusQuerying
	}
	return StatusIngesting
}

// Occupancy is a point-in-time copy of the gate state.
type Occupancy struct {
	Status Status    `json:"status"`
	TaskID string    `json:"task_id,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Gate is the process-wide admission primitive. Construct with New and
// inject it; there is no package-level instance.
type Gate struct {
	mu         sync.Mutex
	state      Occupancy
	generation uint64

	maxHold time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithMaxHold sets the supervisory lease limit. Zero disables it.
func WithMaxHold(d time.Duration) Option {
	return func(g *Gate) { g.maxHold = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates an idle Gate.
func New(opts ...Option) *Gate {
	g := &Gate{
		state:  Occupancy{Status: StatusIdle},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	occupancyGauge.Set(0)
	return g
}

// TryAcquire atomically moves the gate from Idle to the track's status.
//
// # Description
//
// Returns true only if the prior state was Idle. Otherwise returns false and
// leaves the state untouched. A successful call must be paired with exactly
// one Release on every exit path.
//
// # Inputs
//
//   - track: TrackIngestion or TrackReasoning.
//   - taskID: asset id or thread id recorded as the holder.
//
// # Outputs
//
//   - bool: true when admitted.
func (g *Gate) TryAcquire(track Track, taskID string) bool {
	_, ok := g.tryAcquire(track, taskID)
	return ok
}

func (g *Gate) tryAcquire(track Track, taskID string) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Status != StatusIdle {
		acquisitions.WithLabelValues(track.String(), "denied").Inc()
		g.logger.Warn("gate denied",
			slog.String("track", track.String()),
			slog.String("task_id", taskID),
			slog.String("held_by", g.state.TaskID),
			slog.String("status", string(g.state.Status)))
		return 0, false
	}

	g.generation++
	g.state = Occupancy{Status: track.status(), TaskID: taskID, Since: g.now()}
	acquisitions.WithLabelValues(track.String(), "admitted").Inc()
	occupancyGauge.Set(1)
	g.logger.Info("gate acquired",
		slog.String("track", track.String()),
		slog.String("task_id", taskID))
	return g.generation, true
}

// Acquire is TryAcquire returning a Lease, or ErrAdmissionDenied.
func (g *Gate) Acquire(track Track, taskID string) (*Lease, error) {
	gen, ok := g.tryAcquire(track, taskID)
	if !ok {
		snap := g.Snapshot()
		return nil, &DeniedError{Track: track, TaskID: taskID, Holder: snap}
	}
	return &Lease{gate: g, generation: gen, track: track, taskID: taskID}, nil
}

// Release unconditionally resets the gate to Idle and clears the holder.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked("release")
}

func (g *Gate) releaseLocked(cause string) {
	prev := g.state
	if prev.Status != StatusIdle && !prev.Since.IsZero() {
		holdSeconds.Observe(g.now().Sub(prev.Since).Seconds())
	}
	g.generation++
	g.state = Occupancy{Status: StatusIdle}
	occupancyGauge.Set(0)
	g.logger.Info("gate released",
		slog.String("from", string(prev.Status)),
		slog.String("task_id", prev.TaskID),
		slog.String("cause", cause))
}

// IsAdmissible reports whether the gate is Idle. It is advisory: admission
// is only decided by TryAcquire.
func (g *Gate) IsAdmissible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Status == StatusIdle
}

// Snapshot returns a copy of the current occupancy.
func (g *Gate) Snapshot() Occupancy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Trip puts the gate into StatusError regardless of the current holder.
// Neither track is admitted until Release.
func (g *Gate) Trip(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.state
	g.generation++
	g.state = Occupancy{Status: StatusError, Since: g.now(), Reason: reason}
	occupancyGauge.Set(1)
	g.logger.Warn("gate tripped",
		slog.String("reason", reason),
		slog.String("previous", string(prev.Status)),
		slog.String("task_id", prev.TaskID))
}

// ReclaimStale force-releases a holder older than the configured MaxHold.
// Returns true when a lease was reclaimed. A tripped gate is left alone.
func (g *Gate) ReclaimStale() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxHold <= 0 {
		return false
	}
	switch g.state.Status {
	case StatusIngesting, StatusQuerying:
	default:
		return false
	}
	age := g.now().Sub(g.state.Since)
	if age < g.maxHold {
		return false
	}
	g.logger.Warn("reclaiming stale gate lease",
		slog.String("task_id", g.state.TaskID),
		slog.Duration("held_for", age),
		slog.Duration("max_hold", g.maxHold))
	forcedReleases.Inc()
	g.releaseLocked("supervisor")
	return true
}

// Supervise calls ReclaimStale every interval until ctx is done.
func (g *Gate) Supervise(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || g.maxHold <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.ReclaimStale()
		}
	}
}

// Lease is one successful admission.
type Lease struct {
	gate       *Gate
	generation uint64
	track      Track
	taskID     string
	once       sync.Once
}

// TaskID returns the holder identity recorded at admission.
func (l *Lease) TaskID() string { return l.taskID }

// Release returns the gate to Idle if this lease is still current. Safe to
// call more than once; only the first call has an effect.
func (l *Lease) Release() bool {
	released := false
	l.once.Do(func() {
		g := l.gate
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.generation != l.generation {
			g.logger.Warn("stale lease release ignored",
				slog.String("track", l.track.String()),
				slog.String("task_id", l.taskID))
			return
		}
		g.releaseLocked("lease")
		released = true
	})
	return released
}
