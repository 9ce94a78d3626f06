// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingestion

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AcademicAgent/services/dispatch"
)

var (
	// ErrMissingAsset means the target names no asset id.
	ErrMissingAsset = errors.New("missing asset id")

	// ErrUnsupportedAsset means the asset type is not video, pdf or all.
	ErrUnsupportedAsset = errors.New("unsupported asset type")
)

// StepError reports the preparation step that aborted a targeted run.
//
// It unwraps to the underlying cause: a *dispatch.WorkerError (and so
// dispatch.ErrWorkerFailure) for an error-status result, or
// dispatch.ErrConfig when the worker could not be launched at all.
type StepError struct {
	Step    string
	AssetID string
	Result  dispatch.Result
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ingestion step %s failed for %s: %v", e.Step, e.AssetID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
