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
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/memory"
	"github.com/AleutianAI/veritas/services/validator/structural"
	"github.com/AleutianAI/veritas/services/validator/temporal"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeStructural struct {
	results map[string]structural.LookupResult
	err     error
	delay   time.Duration
	cands   []structural.Candidate

	lookups    atomic.Int64
	candidates atomic.Int64
}

func (f *fakeStructural) Lookup(_ context.Context, _, entityPath string) (structural.LookupResult, error) {
	f.lookups.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return structural.LookupResult{}, f.err
	}
	if res, ok := f.results[entityPath]; ok {
		return res, nil
	}
	return structural.LookupResult{Found: false, Version: "v1.0.0"}, nil
}

func (f *fakeStructural) Candidates(_ context.Context, _, _ string, floor float64, k int) []structural.Candidate {
	f.candidates.Add(1)
	out := make([]structural.Candidate, 0, len(f.cands))
	for _, c := range f.cands {
		if c.Similarity >= floor {
			out = append(out, c)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

type fakePatterns struct {
	stats     temporal.Stats
	found     bool
	getErr    error
	recordErr error
	recorded  []string
}

func (f *fakePatterns) Get(_ context.Context, _ string) (temporal.Stats, bool, error) {
	return f.stats, f.found, f.getErr
}

func (f *fakePatterns) RecordOutcome(_ context.Context, key, _ string, _ bool, _ time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, key)
	return nil
}

type fakeDocs struct {
	hits []docindex.Hit
	err  error
}

func (f *fakeDocs) Add(context.Context, []docindex.Chunk) error { return nil }

func (f *fakeDocs) DeleteFramework(context.Context, string) error { return nil }

func (f *fakeDocs) Search(_ context.Context, _, _ string, _ []float32, _ int) ([]docindex.Hit, error) {
	return f.hits, f.err
}

type fakeDecisions struct {
	hits     []memory.ScoredDecision
	err      error
	appended []memory.Decision
}

func (f *fakeDecisions) Append(_ context.Context, d memory.Decision) error {
	f.appended = append(f.appended, d)
	return nil
}

func (f *fakeDecisions) Similar(_ context.Context, _ string, _ []float32, _ int) ([]memory.ScoredDecision, error) {
	return f.hits, f.err
}

// =============================================================================
// Fixtures
// =============================================================================

func mergeEntity() structural.LookupResult {
	return structural.LookupResult{
		Found:   true,
		Version: "v2.1.0",
		Entity: structural.Entity{
			Path:   "DataFrame.merge",
			Class:  "DataFrame",
			Method: "merge",
			Signature: &structural.Signature{
				Params: []structural.Parameter{
					{Name: "right", Type: "DataFrame"},
					{Name: "how", Type: "str", Optional: true},
				},
				Returns: "DataFrame",
			},
		},
	}
}

func strongDecisions() []memory.ScoredDecision {
	hits := make([]memory.ScoredDecision, 3)
	for i := range hits {
		hits[i] = memory.ScoredDecision{
			Decision:   memory.Decision{Framework: "pandas", EntityPath: "DataFrame.merge", Success: true},
			Similarity: 0.9,
		}
	}
	return hits
}

type testDeps struct {
	structural *fakeStructural
	patterns   *fakePatterns
	docs       *fakeDocs
	decisions  *fakeDecisions
}

// healthyDeps returns collaborators that unanimously endorse
// pandas DataFrame.merge.
func healthyDeps() testDeps {
	return testDeps{
		structural: &fakeStructural{
			results: map[string]structural.LookupResult{"DataFrame.merge": mergeEntity()},
		},
		patterns: &fakePatterns{
			stats: temporal.Stats{Success: 40, Failure: 0, LastObservedAt: time.Now().Add(-time.Hour)},
			found: true,
		},
		docs: &fakeDocs{hits: []docindex.Hit{{
			Chunk: docindex.Chunk{
				ID:        "pd-1",
				Framework: "pandas",
				Text:      "DataFrame.merge joins two frames on key columns",
				SourceRef: "pandas/merging.html",
			},
			Score: 1.0,
		}}},
		decisions: &fakeDecisions{hits: strongDecisions()},
	}
}

func newTestEngine(t *testing.T, d testDeps, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	deps := Deps{
		Structural: d.structural,
		Patterns:   d.patterns,
		Embedder:   embedding.NewHashEmbedder(64),
	}
	if d.docs != nil {
		deps.Docs = d.docs
	}
	if d.decisions != nil {
		deps.Decisions = d.decisions
	}

	eng, err := NewEngine(cfg, deps)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return eng
}

func mergeRequest() ValidationRequest {
	return ValidationRequest{
		Framework:  "pandas",
		EntityPath: "DataFrame.merge",
		Intent:     "join two frames on key columns",
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestValidate_Accepted(t *testing.T) {
	eng := newTestEngine(t, healthyDeps(), nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Verdict != VerdictAccepted {
		t.Fatalf("Verdict = %s, want ACCEPTED (consensus %.3f, reasons %v)",
			report.Verdict, report.ConsensusScore, report.Reasons)
	}
	if report.State != StateAccepted {
		t.Errorf("State = %s, want %s", report.State, StateAccepted)
	}
	if report.ConsensusScore < eng.cfg.Threshold {
		t.Errorf("ConsensusScore = %v, want >= %v", report.ConsensusScore, eng.cfg.Threshold)
	}
	if report.Layers.Structural == nil || *report.Layers.Structural != 1.0 {
		t.Errorf("structural score = %v, want 1.0", report.Layers.Structural)
	}
	if report.Layers.Type != nil {
		t.Errorf("type score = %v, want nil with no stated args", *report.Layers.Type)
	}
	if report.CacheHit {
		t.Error("first validation must not be a cache hit")
	}
	if report.RequestID == "" {
		t.Error("report is missing a request ID")
	}
}

func TestValidate_ConfirmedAbsenceOverridesConsensus(t *testing.T) {
	// Every soft layer endorses the usage, but the entity is not in
	// the framework dump. The hard gate must reject regardless.
	d := healthyDeps()
	d.structural.results = map[string]structural.LookupResult{}

	eng := newTestEngine(t, d, nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Verdict != VerdictRejected {
		t.Fatalf("Verdict = %s, want REJECTED", report.Verdict)
	}
	if report.State != StateRejectedNoSuggestions {
		t.Errorf("State = %s, want %s", report.State, StateRejectedNoSuggestions)
	}
	if report.Layers.Structural == nil || *report.Layers.Structural != 0 {
		t.Errorf("structural score = %v, want 0 for confirmed absence", report.Layers.Structural)
	}
}

func TestValidate_UnknownFrameworkFails(t *testing.T) {
	d := healthyDeps()
	d.structural.err = structural.ErrFrameworkNotRegistered

	eng := newTestEngine(t, d, nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if !errors.Is(err, ErrFrameworkNotRegistered) {
		t.Fatalf("Validate() error = %v, want ErrFrameworkNotRegistered", err)
	}
	if report.State != StateFailed {
		t.Errorf("State = %s, want %s", report.State, StateFailed)
	}
	if report.Verdict == VerdictRejected {
		t.Error("an unknown framework must fail, not reject")
	}
}

func TestValidate_StructuralTimeoutFails(t *testing.T) {
	d := healthyDeps()
	d.structural.delay = 100 * time.Millisecond

	eng := newTestEngine(t, d, func(cfg *Config) {
		cfg.LayerTimeout = 10 * time.Millisecond
	})

	report, err := eng.Validate(context.Background(), mergeRequest())
	if !errors.Is(err, ErrStructuralUnavailable) {
		t.Fatalf("Validate() error = %v, want ErrStructuralUnavailable", err)
	}
	if report.State != StateFailed {
		t.Errorf("State = %s, want %s", report.State, StateFailed)
	}
}

func TestValidate_SoftLayersDegradeToAbstention(t *testing.T) {
	d := healthyDeps()
	d.patterns.getErr = errors.New("badger: closed")
	d.docs.err = errors.New("weaviate: connection refused")

	eng := newTestEngine(t, d, nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Layers.Temporal != nil {
		t.Errorf("temporal score = %v, want nil after store failure", *report.Layers.Temporal)
	}
	if report.Layers.Documentation != nil {
		t.Errorf("documentation score = %v, want nil after search failure", *report.Layers.Documentation)
	}
	// Structural 1.0 and unanimous memory still carry the request.
	if report.Verdict != VerdictAccepted {
		t.Fatalf("Verdict = %s, want ACCEPTED on remaining layers (consensus %.3f)",
			report.Verdict, report.ConsensusScore)
	}

	// A forced abstention must name its cause, or the report cannot be
	// told apart from one where the layers simply had no data.
	assertReason(t, report.Reasons, "temporal: degraded (badger: closed)")
	assertReason(t, report.Reasons, "documentation: degraded (weaviate: connection refused)")
}

func assertReason(t *testing.T, reasons []string, want string) {
	t.Helper()
	for _, r := range reasons {
		if r == want {
			return
		}
	}
	t.Errorf("reasons = %v, missing %q", reasons, want)
}

func TestValidate_MissingSignatureTypeAbstains(t *testing.T) {
	// A class entity carries no signature. Stated arguments then have
	// nothing to be checked against, so the type layer abstains
	// instead of declaring the call impossible.
	d := healthyDeps()
	d.structural.results["DataFrame"] = structural.LookupResult{
		Found:   true,
		Version: "v2.1.0",
		Entity:  structural.Entity{Path: "DataFrame", Class: "DataFrame"},
	}

	eng := newTestEngine(t, d, nil)

	req := mergeRequest()
	req.EntityPath = "DataFrame"
	req.Args = []Argument{{Name: "data", Type: "dict"}}

	report, err := eng.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Layers.Type != nil {
		t.Errorf("type score = %v, want nil without a signature", *report.Layers.Type)
	}
	if report.Layers.Structural == nil || *report.Layers.Structural != 1.0 {
		t.Errorf("structural score = %v, want 1.0", report.Layers.Structural)
	}
	if report.Verdict != VerdictAccepted {
		t.Errorf("Verdict = %s, want ACCEPTED (consensus %.3f, reasons %v)",
			report.Verdict, report.ConsensusScore, report.Reasons)
	}
}

func TestValidate_ThinTemporalSampleHalvesWeight(t *testing.T) {
	// Two observations, both failures. At full weight the low
	// temporal score drags consensus below threshold; halved it does
	// not.
	d := healthyDeps()
	d.patterns.stats = temporal.Stats{Success: 0, Failure: 2, LastObservedAt: time.Now().Add(-time.Hour)}

	eng := newTestEngine(t, d, nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Layers.Temporal == nil {
		t.Fatal("temporal layer must still score with a thin sample")
	}
	halved := Fuse(report.Layers, eng.cfg.Weights, true)
	full := Fuse(report.Layers, eng.cfg.Weights, false)
	if report.ConsensusScore != halved || halved <= full {
		t.Errorf("consensus = %v, want halved-temporal fusion %v (full %v)",
			report.ConsensusScore, halved, full)
	}
}

func TestValidate_DeprecatedEntity(t *testing.T) {
	d := healthyDeps()
	res := mergeEntity()
	res.Entity.Deprecated = true
	d.structural.results["DataFrame.merge"] = res

	eng := newTestEngine(t, d, nil)

	report, err := eng.Validate(context.Background(), mergeRequest())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !report.Deprecated {
		t.Error("report must flag the deprecated entity")
	}
	if report.Layers.Structural == nil || *report.Layers.Structural != 0.5 {
		t.Errorf("structural score = %v, want 0.5 for deprecated entity", report.Layers.Structural)
	}
	if report.Verdict != VerdictRejected {
		t.Errorf("Verdict = %s, want REJECTED below threshold", report.Verdict)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	d := healthyDeps()
	eng := newTestEngine(t, d, nil)

	req := mergeRequest()
	req.Args = []Argument{{Name: "right", Type: "list"}}

	report, err := eng.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Layers.Type == nil || *report.Layers.Type != 0 {
		t.Fatalf("type score = %v, want 0 for mismatched argument", report.Layers.Type)
	}
	if report.Verdict != VerdictRejected {
		t.Errorf("Verdict = %s, want REJECTED", report.Verdict)
	}
}

func TestValidate_MalformedRequest(t *testing.T) {
	eng := newTestEngine(t, healthyDeps(), nil)

	report, err := eng.Validate(context.Background(), ValidationRequest{EntityPath: "DataFrame.merge"})
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("Validate() error = %v, want ErrMalformedRequest", err)
	}
	if report.State != StateFailed {
		t.Errorf("State = %s, want %s", report.State, StateFailed)
	}
}

func TestValidate_CacheShortCircuit(t *testing.T) {
	d := healthyDeps()
	eng := newTestEngine(t, d, nil)
	ctx := context.Background()

	first, err := eng.Validate(ctx, mergeRequest())
	if err != nil {
		t.Fatalf("first Validate() error: %v", err)
	}
	lookupsAfterFirst := d.structural.lookups.Load()

	second, err := eng.Validate(ctx, mergeRequest())
	if err != nil {
		t.Fatalf("second Validate() error: %v", err)
	}
	if !second.CacheHit {
		t.Error("second validation of the same shape must hit the cache")
	}
	if second.Verdict != first.Verdict || second.ConsensusScore != first.ConsensusScore {
		t.Error("cached report must match the original verdict and score")
	}
	if got := d.structural.lookups.Load(); got != lookupsAfterFirst {
		t.Errorf("cache hit still performed %d structural lookups", got-lookupsAfterFirst)
	}

	// A different arg shape is a different cache key.
	req := mergeRequest()
	req.Args = []Argument{{Name: "right", Type: "DataFrame"}}
	third, err := eng.Validate(ctx, req)
	if err != nil {
		t.Fatalf("third Validate() error: %v", err)
	}
	if third.CacheHit {
		t.Error("a new arg shape must not reuse the cached report")
	}
}

func TestInvalidateFramework(t *testing.T) {
	d := healthyDeps()
	eng := newTestEngine(t, d, nil)
	ctx := context.Background()

	if _, err := eng.Validate(ctx, mergeRequest()); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if n := eng.InvalidateFramework("pandas"); n != 1 {
		t.Fatalf("InvalidateFramework() = %d, want 1", n)
	}

	report, err := eng.Validate(ctx, mergeRequest())
	if err != nil {
		t.Fatalf("Validate() after invalidation error: %v", err)
	}
	if report.CacheHit {
		t.Error("invalidation must force a fresh validation")
	}
}

func TestRecordOutcome(t *testing.T) {
	d := healthyDeps()
	eng := newTestEngine(t, d, nil)

	outcome := Outcome{
		Framework:  "pandas",
		EntityPath: "DataFrame.merge",
		ArgTypes:   []string{"DataFrame", "str"},
		Success:    true,
		Context:    "joining orders onto customers",
	}
	if err := eng.RecordOutcome(context.Background(), outcome); err != nil {
		t.Fatalf("RecordOutcome() error: %v", err)
	}

	wantKey := temporal.Normalize("pandas", "DataFrame.merge", []string{"DataFrame", "str"})
	if len(d.patterns.recorded) != 1 || d.patterns.recorded[0] != wantKey {
		t.Errorf("recorded keys = %v, want [%s]", d.patterns.recorded, wantKey)
	}
	if len(d.decisions.appended) != 1 {
		t.Fatalf("decision memory got %d appends, want 1", len(d.decisions.appended))
	}
	dec := d.decisions.appended[0]
	if dec.Framework != "pandas" || !dec.Success || len(dec.Vector) == 0 {
		t.Errorf("appended decision is incomplete: %+v", dec)
	}
}

func TestRecordOutcome_PersistFailure(t *testing.T) {
	d := healthyDeps()
	d.patterns.recordErr = temporal.ErrRecordOutcomeFailed

	eng := newTestEngine(t, d, nil)

	err := eng.RecordOutcome(context.Background(), Outcome{
		Framework:  "pandas",
		EntityPath: "DataFrame.merge",
		Success:    false,
	})
	if !errors.Is(err, ErrRecordOutcomeFailed) {
		t.Fatalf("RecordOutcome() error = %v, want ErrRecordOutcomeFailed", err)
	}
	if len(d.decisions.appended) != 0 {
		t.Error("a failed counter write must not append to decision memory")
	}
}
