// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingestion turns raw documents and videos into indexed evidence.
//
// # Description
//
// Two entry points share the resource gate:
//
//   - RunTargeted prepares one asset (slice and transcribe a video, or parse
//     a pdf), then indexes it. The first failing step aborts the run.
//   - Sweep runs every batch worker once, then synthesizes an outline for
//     each asset that lacks one. A failing asset is recorded and skipped.
//
// The asymmetry is deliberate: a targeted run is one unit of work that
// either completes or reports where it stopped, while a sweep trades
// all-or-nothing consistency for progress across independent assets.
//
// An asset counts as ingested once summary_outline.json exists in its
// folder. There is no other job ledger.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/gate"
)

// Steps are the preparation and indexing workers. *dispatch.Workers
// implements it. An empty id selects batch mode.
type Steps interface {
	ParseDocument(ctx context.Context, pdfID string) (dispatch.Result, error)
	SliceVideo(ctx context.Context, videoPath string) (dispatch.Result, error)
	Transcribe(ctx context.Context, audioID string) (dispatch.Result, error)
	Index(ctx context.Context, target, assetID string, forceReset bool) (dispatch.Result, error)
}

// Target describes a targeted ingestion run.
type Target struct {
	AssetType AssetType `json:"asset_type"`

	// AssetID identifies the run and holds the gate. Defaults to VideoID,
	// then PDFID.
	AssetID string `json:"asset_id,omitempty"`

	VideoID string `json:"video_id,omitempty"`
	PDFID   string `json:"pdf_id,omitempty"`

	// VideoPath is passed to the slicer. Defaults to VideoID.
	VideoPath string `json:"video_path,omitempty"`

	ForceReset bool `json:"force_reset,omitempty"`
}

// Pipeline drives ingestion runs.
//
// # Thread Safety
//
// Safe for concurrent use. The gate admits one run at a time; concurrent
// Sweep calls share one execution.
type Pipeline struct {
	gate    *gate.Gate
	steps   Steps
	scanner *Scanner
	synth   *Synthesizer
	logger  *slog.Logger
	sweeps  singleflight.Group

	// lifetime bounds shared sweeps. It outlives any single caller.
	lifetime context.Context
}

// NewPipeline wires the pipeline. All collaborators are required.
func NewPipeline(g *gate.Gate, steps Steps, scanner *Scanner, synth *Synthesizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gate:    g,
		steps:   steps,
		scanner: scanner,
		synth:   synth,
		logger:  logger.With(slog.String("component", "ingestion")),

		lifetime: context.Background(),
	}
}

// SetLifetime bounds shared sweeps by ctx, normally the server's run
// context. Call it before the pipeline serves requests.
func (p *Pipeline) SetLifetime(ctx context.Context) {
	if ctx != nil {
		p.lifetime = ctx
	}
}

// Scanner exposes the storage scanner for outline lookups.
func (p *Pipeline) Scanner() *Scanner { return p.scanner }

// normalize validates t and fills defaults. Errors here happen before the
// gate is touched.
func (t Target) normalize() (Target, error) {
	switch t.AssetType {
	case AssetVideo:
		if t.VideoID == "" {
			t.VideoID = t.AssetID
		}
	case AssetPDF:
		if t.PDFID == "" {
			t.PDFID = t.AssetID
		}
	case AssetAll:
		if t.VideoID == "" && t.PDFID == "" {
			return t, fmt.Errorf("%w: asset type all needs video_id or pdf_id", ErrMissingAsset)
		}
	default:
		return t, fmt.Errorf("%w: %q", ErrUnsupportedAsset, t.AssetType)
	}
	if t.AssetID == "" {
		t.AssetID = t.VideoID
	}
	if t.AssetID == "" {
		t.AssetID = t.PDFID
	}
	if t.AssetID == "" {
		return t, ErrMissingAsset
	}
	if t.VideoPath == "" {
		t.VideoPath = t.VideoID
	}
	return t, nil
}

// RunTargeted prepares and indexes one asset.
//
// # Description
//
// Preconditions are checked before the gate: a missing asset id returns
// ErrMissingAsset and an unknown asset type returns ErrUnsupportedAsset.
// The gate is then acquired on the ingestion track and released on every
// exit path.
//
// Steps: video slices then transcribes; pdf parses; all runs the pdf steps
// (when PDFID is set) then the video steps (when VideoID is set). The first
// step that fails aborts the run with a *StepError and indexing is skipped.
// Otherwise indexing runs and its result is returned as is.
//
// # Inputs
//
//   - ctx: Cancels in-flight workers.
//   - target: The asset to ingest.
//
// # Outputs
//
//   - dispatch.Result: The indexing result, or the failing step's result.
//   - error: ErrMissingAsset, ErrUnsupportedAsset, gate.ErrAdmissionDenied
//     or *StepError.
func (p *Pipeline) RunTargeted(ctx context.Context, target Target) (dispatch.Result, error) {
	t, err := target.normalize()
	if err != nil {
		targetedRuns.WithLabelValues(string(target.AssetType), "rejected").Inc()
		return dispatch.Result{}, err
	}

	lease, err := p.gate.Acquire(gate.TrackIngestion, t.AssetID)
	if err != nil {
		targetedRuns.WithLabelValues(string(t.AssetType), "denied").Inc()
		return dispatch.Result{}, err
	}
	defer lease.Release()

	logger := p.logger.With(slog.String("asset_id", t.AssetID), slog.String("asset_type", string(t.AssetType)))
	logger.Info("targeted ingestion started")

	if res, err := p.prepare(ctx, t); err != nil {
		targetedRuns.WithLabelValues(string(t.AssetType), "failed").Inc()
		logger.Error("targeted ingestion aborted", slog.String("error", err.Error()))
		return res, err
	}

	logger.Info("materials ready, indexing")
	res, err := p.steps.Index(ctx, string(t.AssetType), t.AssetID, t.ForceReset)
	if err != nil {
		targetedRuns.WithLabelValues(string(t.AssetType), "failed").Inc()
		return res, &StepError{Step: "index", AssetID: t.AssetID, Result: res, Err: err}
	}
	outcome := "ok"
	if !res.OK() {
		outcome = "index_error"
	}
	targetedRuns.WithLabelValues(string(t.AssetType), outcome).Inc()
	logger.Info("targeted ingestion finished", slog.String("index_status", string(res.Status)))
	return res, nil
}

type step struct {
	name string
	run  func(context.Context) (dispatch.Result, error)
}

func (p *Pipeline) plan(t Target) []step {
	pdf := []step{{"parse", func(ctx context.Context) (dispatch.Result, error) {
		return p.steps.ParseDocument(ctx, t.PDFID)
	}}}
	video := []step{
		{"slice", func(ctx context.Context) (dispatch.Result, error) {
			return p.steps.SliceVideo(ctx, t.VideoPath)
		}},
		{"transcribe", func(ctx context.Context) (dispatch.Result, error) {
			return p.steps.Transcribe(ctx, t.VideoID)
		}},
	}

	switch t.AssetType {
	case AssetVideo:
		return video
	case AssetPDF:
		return pdf
	default:
		var steps []step
		if t.PDFID != "" {
			steps = append(steps, pdf...)
		}
		if t.VideoID != "" {
			steps = append(steps, video...)
		}
		return steps
	}
}

func (p *Pipeline) prepare(ctx context.Context, t Target) (dispatch.Result, error) {
	for _, s := range p.plan(t) {
		res, err := s.run(ctx)
		if err != nil {
			return res, &StepError{Step: s.name, AssetID: t.AssetID, Result: res, Err: err}
		}
		if !res.OK() {
			return res, &StepError{Step: s.name, AssetID: t.AssetID, Result: res, Err: res.Err()}
		}
		p.logger.Debug("step done", slog.String("asset_id", t.AssetID), slog.String("step", s.name))
	}
	return dispatch.Result{}, nil
}

// SweepOptions tunes a sweep.
type SweepOptions struct {
	// Force rebuilds outlines that already exist.
	Force bool `json:"force"`
}

// StepOutcome records one batch worker of the sweep's batch pass.
type StepOutcome struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ItemFailure records a pending asset the sweep could not archive.
type ItemFailure struct {
	AssetID   string    `json:"asset_id"`
	AssetType AssetType `json:"asset_type"`
	Error     string    `json:"error"`
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Batch     []StepOutcome `json:"batch"`
	Pending   int           `json:"pending"`
	Archived  []string      `json:"archived"`
	Failed    []ItemFailure `json:"failed"`
}

// Sweep runs the batch pass then archives outlines for pending assets.
//
// # Description
//
// The gate is held once for the batch pass (task "sweep:batch"), during
// which every batch worker runs regardless of the others' outcome. It is
// then acquired and released once per pending asset, so a reasoning query
// can slip in between items. A denied or failing item is logged, recorded
// and skipped.
//
// Concurrent calls with the same Force value share one execution and
// receive the same report. The shared execution does not inherit the
// callers' cancellation: a caller whose ctx ends gets ctx.Err() while the
// run carries on until it finishes or the pipeline lifetime ends.
//
// # Outputs
//
//   - *SweepReport: Always non-nil when error is nil.
//   - error: gate.ErrAdmissionDenied when the batch pass cannot start, a
//     failure to list the asset roots, or the caller's ctx cancellation.
func (p *Pipeline) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	key := "sweep"
	if opts.Force {
		key = "sweep:force"
	}
	ch := p.sweeps.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := p.detach(ctx)
		defer cancel()
		return p.sweep(runCtx, opts)
	})
	select {
	case <-ctx.Done():
		p.logger.Debug("sweep caller gone, run continues")
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			p.logger.Debug("sweep joined in-flight run")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*SweepReport), nil
	}
}

// detach derives the shared run's context from the first caller's values
// without its cancellation. The run stops only when the lifetime ends.
func (p *Pipeline) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(p.lifetime, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *Pipeline) sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	report := &SweepReport{StartedAt: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		sweepDuration.Observe(report.Duration.Seconds())
	}()

	if err := p.batchPass(ctx, report); err != nil {
		return nil, err
	}

	tasks, unreadable, err := p.scanner.Pending(opts.Force)
	if err != nil {
		return report, fmt.Errorf("scan pending assets: %w", err)
	}
	for _, f := range unreadable {
		sweepItems.WithLabelValues("failed").Inc()
		p.logger.Warn("sweep item unreadable",
			slog.String("asset_id", f.AssetID),
			slog.String("error", f.Error))
	}
	report.Failed = append(report.Failed, unreadable...)
	report.Pending = len(tasks) + len(unreadable)
	p.logger.Info("sweep scan complete", slog.Int("pending", report.Pending), slog.Bool("force", opts.Force))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.archiveOne(ctx, task); err != nil {
			sweepItems.WithLabelValues(itemOutcome(err)).Inc()
			p.logger.Warn("sweep item skipped",
				slog.String("asset_id", task.AssetID),
				slog.String("error", err.Error()))
			report.Failed = append(report.Failed, ItemFailure{
				AssetID: task.AssetID, AssetType: task.AssetType, Error: err.Error(),
			})
			continue
		}
		sweepItems.WithLabelValues("archived").Inc()
		report.Archived = append(report.Archived, task.AssetID)
	}

	p.logger.Info("sweep finished",
		slog.Int("archived", len(report.Archived)),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

func (p *Pipeline) batchPass(ctx context.Context, report *SweepReport) error {
	lease, err := p.gate.Acquire(gate.TrackIngestion, "sweep:batch")
	if err != nil {
		return err
	}
	defer lease.Release()

	batch := []step{
		{"parse", func(ctx context.Context) (dispatch.Result, error) { return p.steps.ParseDocument(ctx, "") }},
		{"slice", func(ctx context.Context) (dispatch.Result, error) { return p.steps.SliceVideo(ctx, "") }},
		{"transcribe", func(ctx context.Context) (dispatch.Result, error) { return p.steps.Transcribe(ctx, "") }},
		{"index", func(ctx context.Context) (dispatch.Result, error) {
			return p.steps.Index(ctx, string(AssetAll), "", false)
		}},
	}
	for _, s := range batch {
		res, err := s.run(ctx)
		outcome := StepOutcome{Step: s.name, Status: string(res.Status), Message: res.Message}
		if err != nil {
			outcome.Status = string(dispatch.StatusError)
			outcome.Message = err.Error()
		}
		if outcome.Status != string(dispatch.StatusSuccess) {
			p.logger.Warn("batch step failed", slog.String("step", s.name), slog.String("message", outcome.Message))
		}
		report.Batch = append(report.Batch, outcome)
	}
	return nil
}

func (p *Pipeline) archiveOne(ctx context.Context, task AssetTask) error {
	lease, err := p.gate.Acquire(gate.TrackIngestion, task.AssetID)
	if err != nil {
		return err
	}
	defer lease.Release()

	outline, err := p.synth.Synthesize(ctx, task)
	if err != nil {
		return err
	}
	if err := Archive(task.OutlinePath(), outline); err != nil {
		return err
	}
	p.logger.Info("outline archived", slog.String("asset_id", task.AssetID), slog.Int("sections", len(outline.Outline)))
	return nil
}

func itemOutcome(err error) string {
	if errors.Is(err, gate.ErrAdmissionDenied) {
		return "denied"
	}
	return "failed"
}
