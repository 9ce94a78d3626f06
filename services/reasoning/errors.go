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
	"errors"
	"fmt"
)

var (
	// ErrStepLimit means the run executed the maximum number of nodes
	// without reaching the end.
	ErrStepLimit = errors.New("workflow step limit reached")

	// ErrFrameNotFound means no keyframe exists for the requested moment.
	// The vision node records it as feedback and continues.
	ErrFrameNotFound = errors.New("frame not found")

	// ErrInvalidRequest rejects a request before the gate is touched.
	ErrInvalidRequest = errors.New("invalid reasoning request")

	// ErrUndeclaredWrite means a node returned a diff touching fields it
	// did not declare.
	ErrUndeclaredWrite = errors.New("node wrote undeclared fields")

	// ErrThreadBusy rejects deleting a thread while a run of it holds the
	// gate.
	ErrThreadBusy = errors.New("thread has a run in progress")
)

// NodeError is a failure inside one node. The engine records it in the
// state and ends the run; it is returned to callers only through State.
type NodeError struct {
	Node NodeID
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
