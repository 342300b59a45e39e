// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/structural"
	"github.com/AleutianAI/veritas/services/validator/temporal"
	"github.com/AleutianAI/veritas/services/validator/typecheck"
)

// =============================================================================
// Layer Dependencies
// =============================================================================

// StructuralStore is the ground-truth query surface the engine needs.
// *structural.Index satisfies it. Implementations backed by a remote
// store must honor ctx; the layer timeout cancels it.
type StructuralStore interface {
	Lookup(ctx context.Context, framework, entityPath string) (structural.LookupResult, error)
	Candidates(ctx context.Context, framework, entityPath string, floor float64, k int) []structural.Candidate
}

// PatternStore is the temporal counter surface. *temporal.Store
// satisfies it.
type PatternStore interface {
	Get(ctx context.Context, key string) (temporal.Stats, bool, error)
	RecordOutcome(ctx context.Context, key, framework string, success bool, observedAt time.Time) error
}

// =============================================================================
// Layer Results
// =============================================================================

// layerResult is one layer's verdict on a request. A nil score with
// degraded=false means the layer had no evidence (a legitimate
// abstention); degraded=true means it failed or timed out.
type layerResult struct {
	score    *float64
	degraded bool
	err      error
	reasons  []string
}

// structuralOutcome carries the extra facts only the structural
// layer produces, which the engine needs for the hard gate, the type
// check, and correction mining.
type structuralOutcome struct {
	layerResult
	lookup    structural.LookupResult
	typeScore *float64
	unknownFw bool
}

func scoreOf(v float64) *float64 { return &v }

// degradedReason renders a degraded layer's cause for the report, so
// an abstention forced by a failure stays distinguishable from one
// where the layer simply had no data.
func degradedReason(layer string, err error) string {
	cause := "unknown cause"
	if err != nil {
		cause = err.Error()
	}
	return layer + ": degraded (" + cause + ")"
}

// runLayer executes one layer body under the per-layer timeout.
// The body must honor ctx; the select is the backstop for ones that
// do not.
func (e *Engine) runLayer(ctx context.Context, name string, fn func(ctx context.Context) layerResult) layerResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LayerTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan layerResult, 1)
	go func() { ch <- fn(ctx) }()

	select {
	case res := <-ch:
		e.metrics.ObserveLayer(name, time.Since(start), res.degraded)
		return res
	case <-ctx.Done():
		e.metrics.ObserveLayer(name, time.Since(start), true)
		return layerResult{degraded: true, err: ctx.Err()}
	}
}

// =============================================================================
// Layer Bodies
// =============================================================================

// structuralLayer resolves the entity and, when it exists and the
// request states arguments, runs the signature type check. The type
// check depends on the lookup result, so both run in this layer's
// timeout budget rather than as a fifth concurrent branch.
func (e *Engine) structuralLayer(ctx context.Context, req ValidationRequest) structuralOutcome {
	out := structuralOutcome{}

	lookup, err := e.structural.Lookup(ctx, req.Framework, req.EntityPath)
	if err != nil {
		if errors.Is(err, structural.ErrFrameworkNotRegistered) {
			out.unknownFw = true
		}
		out.err = err
		out.degraded = true
		return out
	}
	out.lookup = lookup

	switch {
	case !lookup.Found:
		out.score = scoreOf(0)
		out.reasons = append(out.reasons,
			"structural: "+req.EntityPath+" does not exist in "+req.Framework+" "+lookup.Version)
	case lookup.Entity.Deprecated:
		out.score = scoreOf(0.5)
		out.reasons = append(out.reasons,
			"structural: "+req.EntityPath+" is deprecated in "+req.Framework+" "+lookup.Version)
	default:
		out.score = scoreOf(1)
	}

	// No recorded signature means there is nothing to check the stated
	// arguments against; the type layer abstains rather than guessing.
	if lookup.Found && lookup.Entity.Signature != nil && len(req.Args) > 0 {
		args := make([]typecheck.Arg, len(req.Args))
		for i, a := range req.Args {
			args[i] = typecheck.Arg{Name: a.Name, Type: a.Type}
		}
		res := typecheck.Check(lookup.Entity.Signature, args)
		out.typeScore = scoreOf(typecheck.Score(res))
		if !res.OK {
			out.reasons = append(out.reasons, "type: "+res.Reason)
		}
	}

	return out
}

// temporalLayer scores the request's normalized pattern from its
// observed success history. No history is an abstention, not a
// failure.
func (e *Engine) temporalLayer(ctx context.Context, req ValidationRequest) (layerResult, bool) {
	key := e.patternKey(req)

	stats, found, err := e.patterns.Get(ctx, key)
	if err != nil {
		return layerResult{degraded: true, err: err}, false
	}
	if !found {
		return layerResult{}, false
	}

	score := temporal.Score(stats, e.now(), e.cfg.DecayHorizon)
	res := layerResult{score: scoreOf(score)}

	lowConfidence := stats.Observations() < int64(e.cfg.MinObservations)
	if lowConfidence {
		res.reasons = append(res.reasons, "temporal: thin sample, weight halved")
	}
	return res, lowConfidence
}

// documentationLayer searches the framework's docs for evidence the
// entity is used the way the request intends. The top fused hit's
// blended similarity, punished for entity fragments the evidence
// never mentions, becomes the score.
func (e *Engine) documentationLayer(ctx context.Context, req ValidationRequest) layerResult {
	if e.docs == nil {
		return layerResult{}
	}

	query := req.EntityPath
	if req.Intent != "" {
		query += " " + req.Intent
	}
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return layerResult{degraded: true, err: err}
	}

	hits, err := e.docs.Search(ctx, req.Framework, query, queryVec, 5)
	if err != nil {
		return layerResult{degraded: true, err: err}
	}
	if len(hits) == 0 {
		return layerResult{}
	}

	top := hits[0]
	score := docindex.ContainmentPenalty(top.Score, req.EntityPath, top.Chunk.Text)
	res := layerResult{score: scoreOf(score)}
	if top.Chunk.SourceRef != "" {
		res.reasons = append(res.reasons, "documentation: best evidence "+top.Chunk.SourceRef)
	}
	return res
}

// memoryLayer averages the outcomes of the most similar past
// decisions, weighted by similarity. Fewer than the minimum number
// of hits is an abstention: a couple of loosely related memories is
// not experience.
func (e *Engine) memoryLayer(ctx context.Context, req ValidationRequest) layerResult {
	if e.decisions == nil {
		return layerResult{}
	}

	query := req.EntityPath
	if req.Intent != "" {
		query = req.Intent + " " + req.EntityPath
	}
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return layerResult{degraded: true, err: err}
	}

	hits, err := e.decisions.Similar(ctx, req.Framework, queryVec, e.cfg.MemoryK)
	if err != nil {
		return layerResult{degraded: true, err: err}
	}
	if len(hits) < e.cfg.MemoryMinHits {
		return layerResult{}
	}

	var weighted, mass float64
	for _, h := range hits {
		outcome := 0.0
		if h.Decision.Success {
			outcome = 1.0
		}
		weighted += outcome * h.Similarity
		mass += h.Similarity
	}
	if mass == 0 {
		return layerResult{}
	}
	return layerResult{score: scoreOf(weighted / mass)}
}

// patternKey is the normalized temporal key for a request.
func (e *Engine) patternKey(req ValidationRequest) string {
	argTypes := make([]string, len(req.Args))
	for i, a := range req.Args {
		argTypes[i] = a.Type
	}
	return temporal.Normalize(req.Framework, req.EntityPath, argTypes)
}
