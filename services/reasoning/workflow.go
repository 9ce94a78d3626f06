// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AcademicAgent/services/checkpoint"
	"github.com/AleutianAI/AcademicAgent/services/gate"
)

// DefaultMaxSteps bounds one run. The longest legal path with two retries is
// eleven nodes.
const DefaultMaxSteps = 16

// startNode is recorded as the producing node of a run's first checkpoint.
const startNode = "start"

// Request is one question.
type Request struct {
	Query string `json:"query" binding:"required"`

	// ThreadID names the run for checkpointing. Empty generates one.
	ThreadID string `json:"thread_id,omitempty"`

	// AssetID restricts retrieval to one asset. Empty searches everything.
	AssetID string `json:"asset_id,omitempty"`
}

// Event reports one completed node.
type Event struct {
	ThreadID string    `json:"thread_id"`
	Step     int       `json:"step"`
	Node     NodeID    `json:"node"`
	Next     NodeID    `json:"next"`
	Status   Status    `json:"status"`
	Entries  []string  `json:"entries,omitempty"`
	Time     time.Time `json:"time"`
}

// Observer receives events synchronously from the running workflow. It must
// not block.
type Observer func(Event)

// Option configures a Workflow.
type Option func(*Workflow)

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxSteps = n
		}
	}
}

// WithObserver registers fn for node events.
func WithObserver(fn Observer) Option {
	return func(w *Workflow) { w.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// withNode replaces one node. Used by tests.
func withNode(n Node) Option {
	return func(w *Workflow) { w.nodes[n.ID] = n }
}

// Workflow runs the research, evaluate, vision, logic and synthesize graph.
//
// # Description
//
// Each run holds the accelerator gate on the reasoning track for its whole
// duration. After every node the engine merges the node's diff into the
// state, picks the next node with Next and saves a checkpoint, so a run
// interrupted by a crash or cancellation resumes from the last completed
// node.
//
// Thread Safety: safe for concurrent use. Concurrent runs are serialized by
// the gate, which denies all but one.
type Workflow struct {
	gate     *gate.Gate
	store    checkpoint.Store
	nodes    map[NodeID]Node
	maxSteps int
	observer Observer
	logger   *slog.Logger
}

// NewWorkflow builds a workflow over deps.
//
// # Inputs
//
//   - g: The shared accelerator gate.
//   - store: Checkpoint backend.
//   - deps: Node collaborators. All fields except TopK and Logger are required.
//   - opts: Functional options.
//
// # Outputs
//
//   - *Workflow: Ready to use.
//   - error: A required collaborator is nil.
func NewWorkflow(g *gate.Gate, store checkpoint.Store, deps Deps, opts ...Option) (*Workflow, error) {
	switch {
	case g == nil:
		return nil, errors.New("reasoning: gate is required")
	case store == nil:
		return nil, errors.New("reasoning: checkpoint store is required")
	case deps.LLM == nil:
		return nil, errors.New("reasoning: llm client is required")
	case deps.Evidence == nil:
		return nil, errors.New("reasoning: evidence store is required")
	case deps.Vision == nil || deps.Sandbox == nil:
		return nil, errors.New("reasoning: vision and sandbox workers are required")
	case deps.Frames == nil:
		return nil, errors.New("reasoning: frame locator is required")
	}
	w := &Workflow{
		gate:     g,
		store:    store,
		nodes:    buildNodes(deps),
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	if deps.Logger != nil {
		w.logger = deps.Logger
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Ask answers one question.
//
// # Description
//
// Validates the request, acquires the gate and either resumes the thread's
// unfinished run of the same question or starts a fresh one. A fresh run on
// an existing thread replaces the thread's checkpoint history.
//
// Node failures do not surface as errors: the returned state has Status
// error and a reasoning chain entry naming the failing node.
//
// # Outputs
//
//   - State: Final state of the run.
//   - error: ErrInvalidRequest, gate.ErrAdmissionDenied, ErrStepLimit, a
//     checkpoint failure or context cancellation.
func (w *Workflow) Ask(ctx context.Context, req Request) (State, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return State{}, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	if err := checkpoint.ValidateThreadID(req.ThreadID); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	lease, err := w.gate.Acquire(gate.TrackReasoning, req.ThreadID)
	if err != nil {
		return State{}, err
	}
	defer lease.Release()

	logger := w.logger.With(slog.String("thread_id", req.ThreadID))

	cp, err := w.store.Load(ctx, req.ThreadID)
	switch {
	case err == nil:
		if s, next, ok := resumable(cp, req.Query); ok {
			logger.Info("resuming reasoning run", slog.Int("step", cp.Step), slog.String("next", string(next)))
			return w.run(ctx, s, next, cp.Step)
		}
		if err := w.store.Delete(ctx, req.ThreadID); err != nil {
			return State{}, fmt.Errorf("reset thread: %w", err)
		}
	case errors.Is(err, checkpoint.ErrNotFound):
	case errors.Is(err, checkpoint.ErrCorrupt):
		logger.Warn("discarding corrupt checkpoint", slog.String("error", err.Error()))
		if err := w.store.Delete(ctx, req.ThreadID); err != nil {
			return State{}, fmt.Errorf("reset thread: %w", err)
		}
	default:
		return State{}, fmt.Errorf("load checkpoint: %w", err)
	}

	s := State{
		Query:          req.Query,
		ThreadID:       req.ThreadID,
		AssetID:        req.AssetID,
		Status:         StatusRunning,
		ReasoningChain: []string{},
	}
	logger.Info("reasoning run started", slog.String("asset_id", req.AssetID))
	if err := w.save(ctx, s, 0, startNode, NodeResearch); err != nil {
		return s, err
	}
	return w.run(ctx, s, NodeResearch, 0)
}

// Resume continues the thread's unfinished run. A finished run is returned
// unchanged without touching the gate.
//
// # Outputs
//
//   - State: Final state of the run.
//   - error: checkpoint.ErrNotFound for an unknown thread, or any Ask error.
func (w *Workflow) Resume(ctx context.Context, threadID string) (State, error) {
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cp, err := w.store.Load(ctx, threadID)
	if err != nil {
		return State{}, err
	}
	s, err := decodeState(cp)
	if err != nil {
		return State{}, err
	}
	next, err := ParseNodeID(cp.Next)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", checkpoint.ErrCorrupt, err)
	}
	if s.Status != StatusRunning || next == NodeEnd {
		return s, nil
	}

	lease, err := w.gate.Acquire(gate.TrackReasoning, threadID)
	if err != nil {
		return State{}, err
	}
	defer lease.Release()

	w.logger.Info("resuming reasoning run",
		slog.String("thread_id", threadID),
		slog.Int("step", cp.Step),
		slog.String("next", string(next)))
	return w.run(ctx, s, next, cp.Step)
}

// HistoryEntry summarizes one saved checkpoint.
type HistoryEntry struct {
	Step    int       `json:"step"`
	Node    string    `json:"node"`
	Next    string    `json:"next"`
	Status  Status    `json:"status"`
	SavedAt time.Time `json:"saved_at"`
}

// Thread is the persisted view of one run.
type Thread struct {
	State   State          `json:"state"`
	Next    string         `json:"next"`
	History []HistoryEntry `json:"history"`
}

// Thread loads the latest state and checkpoint history of a run.
func (w *Workflow) Thread(ctx context.Context, threadID string) (Thread, error) {
	cp, err := w.store.Load(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	s, err := decodeState(cp)
	if err != nil {
		return Thread{}, err
	}
	hist, err := w.store.History(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	t := Thread{State: s, Next: cp.Next, History: make([]HistoryEntry, 0, len(hist))}
	for _, h := range hist {
		e := HistoryEntry{Step: h.Step, Node: h.Node, Next: h.Next, SavedAt: h.SavedAt}
		if hs, err := decodeState(&h); err == nil {
			e.Status = hs.Status
		}
		t.History = append(t.History, e)
	}
	return t, nil
}

// Forget deletes a thread's checkpoints. A thread whose run currently holds
// the gate is left alone with ErrThreadBusy, since the run's next save
// would recreate a partial history.
func (w *Workflow) Forget(ctx context.Context, threadID string) error {
	if snap := w.gate.Snapshot(); snap.Status == gate.StatusQuerying && snap.TaskID == threadID {
		return fmt.Errorf("%w: %s", ErrThreadBusy, threadID)
	}
	return w.store.Delete(ctx, threadID)
}

// run executes nodes from next until the end node, the step limit or
// cancellation.
func (w *Workflow) run(ctx context.Context, s State, next NodeID, step int) (State, error) {
	logger := w.logger.With(slog.String("thread_id", s.ThreadID))

	for next != NodeEnd {
		if step >= w.maxSteps {
			s.Status = StatusError
			s.Error = fmt.Sprintf("step limit %d reached before %s", w.maxSteps, next)
			s.ReasoningChain = append(s.ReasoningChain, "engine: "+s.Error)
			runsTotal.WithLabelValues(string(StatusError)).Inc()
			if err := w.save(ctx, s, step, "engine", NodeEnd); err != nil {
				return s, err
			}
			logger.Error("reasoning run exceeded step limit", slog.Int("max_steps", w.maxSteps))
			return s, fmt.Errorf("%w (%d)", ErrStepLimit, w.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return s, err
		}

		node, ok := w.nodes[next]
		if !ok {
			return s, fmt.Errorf("no node registered for %s", next)
		}

		before := len(s.ReasoningChain)
		retries := s.RetryCount
		d, err := w.exec(ctx, node, s)
		if err != nil {
			if ctx.Err() != nil {
				// The last checkpoint still points at this node.
				return s, ctx.Err()
			}
			s.Status = StatusError
			s.Error = err.Error()
			s.ReasoningChain = append(s.ReasoningChain, fmt.Sprintf("%s: failed: %v", node.ID, err))
			logger.Error("reasoning node failed", slog.String("node", string(node.ID)), slog.String("error", err.Error()))
		} else {
			s = Merge(s, d)
		}
		if s.RetryCount > retries {
			retriesTotal.Inc()
		}

		following := Next(node.ID, s)
		step++
		if err := w.save(ctx, s, step, string(node.ID), following); err != nil {
			return s, err
		}
		w.emit(Event{
			ThreadID: s.ThreadID,
			Step:     step,
			Node:     node.ID,
			Next:     following,
			Status:   s.Status,
			Entries:  append([]string(nil), s.ReasoningChain[before:]...),
			Time:     time.Now(),
		})
		next = following
	}

	runsTotal.WithLabelValues(string(s.Status)).Inc()
	logger.Info("reasoning run finished",
		slog.String("status", string(s.Status)),
		slog.Int("steps", step),
		slog.Int("retries", s.RetryCount))
	return s, nil
}

// exec runs one node against its projected view. Panics and undeclared
// writes come back as *NodeError.
func (w *Workflow) exec(ctx context.Context, n Node, s State) (d Diff, err error) {
	ctx, span := otel.Tracer("reasoning").Start(ctx, "reasoning.node."+string(n.ID))
	span.SetAttributes(attribute.String("thread_id", s.ThreadID), attribute.Int("retry_count", s.RetryCount))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("reasoning node panicked",
				slog.String("node", string(n.ID)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			d, err = Diff{}, &NodeError{Node: n.ID, Err: fmt.Errorf("panic: %v", r)}
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		nodeDuration.WithLabelValues(string(n.ID), outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	d, err = n.Run(ctx, Project(s, n.Reads))
	if err != nil {
		return Diff{}, &NodeError{Node: n.ID, Err: err}
	}
	if err := n.checkWrites(d); err != nil {
		return Diff{}, &NodeError{Node: n.ID, Err: err}
	}
	return d, nil
}

func (w *Workflow) save(ctx context.Context, s State, step int, node string, next NodeID) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	cp := &checkpoint.Checkpoint{
		ThreadID: s.ThreadID,
		Step:     step,
		Node:     node,
		Next:     string(next),
		State:    data,
	}
	if err := w.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (w *Workflow) emit(e Event) {
	if w.observer != nil {
		w.observer(e)
	}
}

func decodeState(cp *checkpoint.Checkpoint) (State, error) {
	var s State
	if err := json.Unmarshal(cp.State, &s); err != nil {
		return State{}, fmt.Errorf("%w: state: %v", checkpoint.ErrCorrupt, err)
	}
	return s, nil
}

// resumable reports whether cp is an unfinished run of query.
func resumable(cp *checkpoint.Checkpoint, query string) (State, NodeID, bool) {
	s, err := decodeState(cp)
	if err != nil || s.Query != query || s.Status != StatusRunning {
		return State{}, "", false
	}
	next, err := ParseNodeID(cp.Next)
	if err != nil || next == NodeEnd {
		return State{}, "", false
	}
	return s, next, true
}
