// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"errors"
	"fmt"
)

// ErrAdmissionDenied is returned when the gate is held by another task.
// Callers surface it; nothing retries automatically.
var ErrAdmissionDenied = errors.New("admission denied: accelerator busy")

// DeniedError carries the holder that caused a denial.
type DeniedError struct {
	Track  Track
	TaskID string
	Holder Occupancy
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s task %q: %v (status=%s, holder=%q)",
		e.Track, e.TaskID, ErrAdmissionDenied, e.Holder.Status, e.Holder.TaskID)
}

// Unwrap returns ErrAdmissionDenied.
func (e *DeniedError) Unwrap() error { return ErrAdmissionDenied }
