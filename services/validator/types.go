// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator implements multi-layer consensus validation of
// AI-proposed API usages.
//
// A ValidationRequest names a framework, an entity path (class or
// class.method), and optionally the argument list the caller intends
// to pass. The engine cross-checks the proposal against independent
// knowledge layers (structural ground truth, temporal success
// patterns, documentation evidence, decision memory, and a signature
// type check), fuses the surviving layer scores into a single
// consensus score, and accepts or rejects the proposal against a
// configurable threshold. Rejections come back with up to three
// correction candidates when plausible near-misses exist.
package validator

import "time"

// =============================================================================
// Request / Report Types
// =============================================================================

// Argument is one proposed call argument. Either field may be empty:
// an empty Name means positional matching, an empty Type means the
// caller did not state a type and the slot matches any parameter.
type Argument struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// ValidationRequest describes one AI-proposed API usage.
//
// EntityPath is either "ClassName" or "ClassName.methodName".
// Intent is free-text context (what the caller is trying to do) and
// feeds the documentation and memory layers.
type ValidationRequest struct {
	Framework  string     `json:"framework" validate:"required"`
	EntityPath string     `json:"entity_path" validate:"required"`
	Args       []Argument `json:"args,omitempty"`
	Intent     string     `json:"intent,omitempty"`
}

// Verdict is the engine's final accept/reject decision.
type Verdict string

const (
	VerdictAccepted Verdict = "ACCEPTED"
	VerdictRejected Verdict = "REJECTED"
)

// RequestState tracks a request through the validation lifecycle.
//
// Transitions:
//
//	RECEIVED -> VALIDATING -> SCORING -> ACCEPTED
//	                                  -> REJECTED -> CORRECTING -> REJECTED_WITH_SUGGESTIONS
//	                                              -> REJECTED_NO_SUGGESTIONS
//	any non-terminal state -> FAILED
type RequestState string

const (
	StateReceived                RequestState = "RECEIVED"
	StateValidating              RequestState = "VALIDATING"
	StateScoring                 RequestState = "SCORING"
	StateAccepted                RequestState = "ACCEPTED"
	StateRejected                RequestState = "REJECTED"
	StateCorrecting              RequestState = "CORRECTING"
	StateRejectedWithSuggestions RequestState = "REJECTED_WITH_SUGGESTIONS"
	StateRejectedNoSuggestions   RequestState = "REJECTED_NO_SUGGESTIONS"
	StateFailed                  RequestState = "FAILED"
)

// Terminal reports whether the state ends the lifecycle.
func (s RequestState) Terminal() bool {
	switch s {
	case StateAccepted, StateRejectedWithSuggestions, StateRejectedNoSuggestions, StateFailed:
		return true
	}
	return false
}

// LayerScores holds the per-layer results that fed the consensus.
// A nil entry means the layer abstained (no data, or degraded) and
// its weight was redistributed across the remaining layers.
type LayerScores struct {
	Structural    *float64 `json:"structural"`
	Temporal      *float64 `json:"temporal"`
	Documentation *float64 `json:"documentation"`
	Memory        *float64 `json:"memory"`
	Type          *float64 `json:"type"`
}

// Correction is one suggested replacement for a rejected usage.
// Confidence is the consensus score the candidate earned in its own
// (single, non-recursive) validation pass.
type Correction struct {
	EntityPath string  `json:"entity_path"`
	Confidence float64 `json:"confidence"`
}

// ValidationReport is the engine's full answer for one request.
type ValidationReport struct {
	RequestID      string        `json:"request_id"`
	Framework      string        `json:"framework"`
	EntityPath     string        `json:"entity_path"`
	Verdict        Verdict       `json:"verdict"`
	ConsensusScore float64       `json:"consensus_score"`
	Layers         LayerScores   `json:"layers"`
	Corrections    []Correction  `json:"corrections,omitempty"`
	Reasons        []string      `json:"reasons,omitempty"`
	State          RequestState  `json:"state"`
	Deprecated     bool          `json:"deprecated,omitempty"`
	CacheHit       bool          `json:"cache_hit,omitempty"`
	Elapsed        time.Duration `json:"-"`
}

// Outcome records how a previously validated usage worked out in
// practice. The engine folds it into the temporal pattern store and
// the decision memory so future validations of the same shape see it.
type Outcome struct {
	Framework  string   `json:"framework" validate:"required"`
	EntityPath string   `json:"entity_path" validate:"required"`
	ArgTypes   []string `json:"arg_types,omitempty"`
	Success    bool     `json:"success"`
	Context    string   `json:"context,omitempty"`
}
