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

import "fmt"

// NodeID names a workflow node. The string form is what checkpoints store.
type NodeID string

const (
	NodeResearch   NodeID = "research"
	NodeEvaluate   NodeID = "evaluate"
	NodeVision     NodeID = "vision"
	NodeLogic      NodeID = "logic"
	NodeSynthesize NodeID = "synthesize"
	NodeEnd        NodeID = "end"
)

// ParseNodeID validates a stored node name.
func ParseNodeID(s string) (NodeID, error) {
	switch id := NodeID(s); id {
	case NodeResearch, NodeEvaluate, NodeVision, NodeLogic, NodeSynthesize, NodeEnd:
		return id, nil
	}
	return "", fmt.Errorf("unknown node %q", s)
}

// Next is the transition table.
//
//	any node with Status error -> end
//	research   -> evaluate
//	evaluate   -> research    when the evaluator asked to refetch
//	           -> vision      when video evidence exists and vision is needed
//	           -> logic       when symbolic verification is needed
//	           -> synthesize  otherwise
//	vision     -> logic when verification is needed, else synthesize
//	logic      -> synthesize
//	synthesize -> end
func Next(current NodeID, s State) NodeID {
	if s.Status == StatusError {
		return NodeEnd
	}
	switch current {
	case NodeResearch:
		return NodeEvaluate
	case NodeEvaluate:
		if s.EvalReport != nil && s.EvalReport.Action == ActionRefetch {
			return NodeResearch
		}
		if s.HasVideo && s.Manifest.NeedVision {
			return NodeVision
		}
		if s.Manifest.NeedSandbox {
			return NodeLogic
		}
		return NodeSynthesize
	case NodeVision:
		if s.Manifest.NeedSandbox {
			return NodeLogic
		}
		return NodeSynthesize
	case NodeLogic:
		return NodeSynthesize
	default:
		return NodeEnd
	}
}
