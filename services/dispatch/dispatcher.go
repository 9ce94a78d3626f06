// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch runs out-of-process workers.
//
// # Description
//
// Workers (document parser, video slicer, transcriber, indexer, vector
// search, vision model, symbolic sandbox) live in separate interpreter
// environments and cannot share a runtime with the orchestrator. Every
// worker is launched the same way:
//
//	<interpreter> <script> <json-params>
//
// and returns one JSON object on the last non-blank line of stdout. Anything
// printed before it is treated as log noise.
//
// # Thread Safety
//
// Dispatcher is safe for concurrent use. Workers are single-shot; there is no
// pooling and no persistent child process.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("academic.dispatch")

var invocationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "academic",
	Subsystem: "dispatch",
	Name:      "invocation_seconds",
	Help:      "Worker invocation duration by worker key and status.",
	Buckets:   prometheus.ExponentialBuckets(0.05, 3, 10),
}, []string{"worker", "status"})

// Invocation is one worker call.
type Invocation struct {
	// WorkerKey selects the interpreter from Config.Environments.
	WorkerKey string

	// Script is relative to Config.ProjectRoot unless absolute.
	Script string

	// Params is serialized as the single JSON argument. Nil sends {}.
	Params map[string]any
}

// Invoker is anything that can run an Invocation.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// Config locates interpreters and scripts.
type Config struct {
	ProjectRoot  string
	Environments map[string]string
	Timeout      time.Duration
}

// Dispatcher is the production Invoker.
type Dispatcher struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRunner replaces the process runner. Used by tests.
func WithRunner(r Runner) Option {
	return func(d *Dispatcher) { d.runner = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		runner: NewExecRunner(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke runs one worker and returns its structured result.
//
// # Description
//
// Resolves the interpreter and script, launches the child with the JSON
// parameters as its only argument, and parses the result from stdout.
// Worker-side problems (nonzero exit, error status, unparseable output,
// launch failure, timeout) come back as an error-status Result with a nil
// error, so callers branch on Result.Status alone.
//
// # Inputs
//
//   - ctx: cancels the child process.
//   - inv: worker key, script path and parameters.
//
// # Outputs
//
//   - Result: the worker's answer.
//   - error: ErrConfig when the worker cannot be resolved, or a parameter
//     encoding failure. No process is started in either case.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	exe, err := d.interpreter(inv.WorkerKey)
	if err != nil {
		d.logger.Error("worker not configured",
			slog.String("worker", inv.WorkerKey),
			slog.String("error", err.Error()))
		return Result{}, err
	}
	script, err := d.script(inv.Script)
	if err != nil {
		d.logger.Error("worker script missing",
			slog.String("worker", inv.WorkerKey),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	params := inv.Params
	if params == nil {
		params = map[string]any{}
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return Result{}, fmt.Errorf("encode params for %s: %w", inv.WorkerKey, err)
	}

	ctx, span := tracer.Start(ctx, "dispatch.Invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("worker.key", inv.WorkerKey),
		attribute.String("worker.script", inv.Script),
	)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, runErr := d.runner.Run(ctx, Command{
		Path: exe,
		Args: []string{script, string(blob)},
		Dir:  d.cfg.ProjectRoot,
	})
	elapsed := time.Since(start)

	var res Result
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		res = Result{Status: StatusError, Message: "worker timed out", Details: string(out.Stderr)}
	case runErr != nil:
		res = Result{Status: StatusError, Message: "worker launch failed", Details: runErr.Error()}
	case out.ExitCode != 0:
		res = Result{
			Status:  StatusError,
			Message: fmt.Sprintf("worker exited with code %d", out.ExitCode),
			Details: string(out.Stderr),
		}
	default:
		res = ParseOutput(out.Stdout)
	}

	invocationSeconds.WithLabelValues(inv.WorkerKey, string(res.Status)).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.String("worker.status", string(res.Status)))
	if res.OK() {
		d.logger.Info("worker finished",
			slog.String("worker", inv.WorkerKey),
			slog.String("script", inv.Script),
			slog.Duration("duration", elapsed))
	} else {
		span.SetStatus(codes.Error, res.Message)
		d.logger.Error("worker failed",
			slog.String("worker", inv.WorkerKey),
			slog.String("script", inv.Script),
			slog.String("message", res.Message),
			slog.Int("exit_code", out.ExitCode),
			slog.Duration("duration", elapsed))
	}
	return res, nil
}

func (d *Dispatcher) interpreter(key string) (string, error) {
	exe := d.cfg.Environments[key]
	if exe == "" {
		return "", configErr("environment %q is not set", key)
	}
	if _, err := os.Stat(exe); err != nil {
		return "", configErr("environment %q points to missing interpreter %s", key, exe)
	}
	return exe, nil
}

func (d *Dispatcher) script(rel string) (string, error) {
	if rel == "" {
		return "", configErr("script path is empty")
	}
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.cfg.ProjectRoot, rel)
	}
	if _, err := os.Stat(path); err != nil {
		return "", configErr("script %s not found", path)
	}
	return path, nil
}

var _ Invoker = (*Dispatcher)(nil)
