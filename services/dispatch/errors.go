// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig means a worker key has no interpreter, or the interpreter or
	// script does not exist. Fatal to the call.
	ErrConfig = errors.New("worker configuration error")

	// ErrWorkerFailure means a worker exited nonzero, reported status error,
	// or printed no parseable result.
	ErrWorkerFailure = errors.New("worker failure")
)

// WorkerError is the Go error form of an error-status Result.
type WorkerError struct {
	Worker  string
	Message string
	Details string
}

func (e *WorkerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unspecified error"
	}
	if e.Worker != "" {
		return fmt.Sprintf("%v: %s: %s", ErrWorkerFailure, e.Worker, msg)
	}
	return fmt.Sprintf("%v: %s", ErrWorkerFailure, msg)
}

// Unwrap returns ErrWorkerFailure.
func (e *WorkerError) Unwrap() error { return ErrWorkerFailure }

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
