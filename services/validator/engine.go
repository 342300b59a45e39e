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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/veritas/services/validator/cache"
	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/memory"
	"github.com/AleutianAI/veritas/services/validator/observability"
	"github.com/AleutianAI/veritas/services/validator/temporal"
)

// =============================================================================
// Engine
// =============================================================================

// Deps are the collaborators an Engine validates against. Structural,
// Patterns, and Embedder are required; Docs and Decisions may be nil,
// in which case their layers abstain and the remaining weights
// renormalize.
type Deps struct {
	Structural StructuralStore
	Patterns   PatternStore
	Docs       docindex.Index
	Decisions  memory.Store
	Embedder   embedding.Embedder
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Engine runs the consensus validation pipeline.
//
// Thread Safety: safe for concurrent use.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	structural StructuralStore
	patterns   PatternStore
	docs       docindex.Index
	decisions  memory.Store
	embedder   embedding.Embedder
	metrics    *observability.Metrics
	validate   *playground.Validate
	cache      *cache.TTLCache[ValidationReport]
	tracer     trace.Tracer
	now        func() time.Time
}

// NewEngine wires an Engine from its configuration and dependencies.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if deps.Structural == nil {
		return nil, errors.New("engine requires a structural store")
	}
	if deps.Patterns == nil {
		return nil, errors.New("engine requires a pattern store")
	}
	if deps.Embedder == nil {
		return nil, errors.New("engine requires an embedder")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		structural: deps.Structural,
		patterns:   deps.Patterns,
		docs:       deps.Docs,
		decisions:  deps.Decisions,
		embedder:   deps.Embedder,
		metrics:    metrics,
		validate:   playground.New(playground.WithRequiredStructEnabled()),
		cache:      cache.New[ValidationReport](cfg.CacheTTL, cfg.CacheSize),
		tracer:     otel.Tracer("veritas/validator"),
		now:        time.Now,
	}, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate runs the full consensus pipeline for one proposed usage.
//
// Description: checks the report cache, fans the four knowledge
// layers out concurrently under per-layer timeouts, fuses their
// scores, applies the acceptance threshold and the structural hard
// gate, and on rejection mines and re-validates correction
// candidates.
//
// Inputs:
//   - ctx: carries cancellation; layer timeouts come from config.
//   - req: the proposed usage. Framework and EntityPath are required.
//
// Outputs:
//   - ValidationReport: always populated, including on failure.
//   - error: non-nil only when State is FAILED; ErrMalformedRequest,
//     ErrFrameworkNotRegistered, and ErrStructuralUnavailable are
//     distinguishable with errors.Is.
func (e *Engine) Validate(ctx context.Context, req ValidationRequest) (ValidationReport, error) {
	ctx, span := e.tracer.Start(ctx, "validator.Validate",
		trace.WithAttributes(
			attribute.String("framework", req.Framework),
			attribute.String("entity_path", req.EntityPath),
		))
	defer span.End()

	start := e.now()

	if err := e.validate.Struct(req); err != nil {
		verr := fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		return e.failed(req, start, verr), verr
	}

	key := e.cacheKey(req)
	if cached, ok := e.cache.Get(key); ok {
		cached.CacheHit = true
		cached.Elapsed = e.now().Sub(start)
		e.metrics.ObserveCache("hit")
		return cached, nil
	}
	e.metrics.ObserveCache("miss")

	report, err := e.validateOnce(ctx, req, true)
	report.Elapsed = e.now().Sub(start)

	span.SetAttributes(
		attribute.String("state", string(report.State)),
		attribute.Float64("consensus", report.ConsensusScore),
	)

	if err != nil {
		e.metrics.ObserveValidation(string(StateFailed), 0)
		return report, err
	}

	e.cache.Set(key, report)
	e.metrics.ObserveValidation(string(report.State), report.ConsensusScore)
	e.logger.Info("validation complete",
		"request_id", report.RequestID,
		"framework", req.Framework,
		"entity_path", req.EntityPath,
		"state", report.State,
		"consensus", report.ConsensusScore,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// validateOnce is one pass of the pipeline. Correction mining is
// disabled when re-validating a candidate so a bad suggestion can
// never recurse into more suggestions.
func (e *Engine) validateOnce(ctx context.Context, req ValidationRequest, correctionsEnabled bool) (ValidationReport, error) {
	report := e.newReport(req)
	report.State = StateValidating

	var (
		wg             sync.WaitGroup
		structuralOut  structuralOutcome
		temporalOut    layerResult
		temporalHalved bool
		docOut         layerResult
		memoryOut      layerResult
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		structuralOut = e.runStructural(ctx, req)
	}()
	go func() {
		defer wg.Done()
		temporalOut, temporalHalved = e.runTemporal(ctx, req)
	}()
	go func() {
		defer wg.Done()
		docOut = e.runLayer(ctx, LayerDocumentation, func(ctx context.Context) layerResult {
			return e.documentationLayer(ctx, req)
		})
	}()
	go func() {
		defer wg.Done()
		memoryOut = e.runLayer(ctx, LayerMemory, func(ctx context.Context) layerResult {
			return e.memoryLayer(ctx, req)
		})
	}()
	wg.Wait()

	// The structural layer is load-bearing: without ground truth the
	// consensus is meaningless, so its failure fails the request
	// rather than degrading it.
	if structuralOut.degraded {
		if structuralOut.unknownFw {
			err := fmt.Errorf("%w: %s", ErrFrameworkNotRegistered, req.Framework)
			return e.failedReport(report, err), err
		}
		err := fmt.Errorf("%w: %v", ErrStructuralUnavailable, structuralOut.err)
		return e.failedReport(report, err), err
	}

	report.Layers.Structural = structuralOut.score
	report.Layers.Type = structuralOut.typeScore
	report.Reasons = append(report.Reasons, structuralOut.reasons...)
	report.Deprecated = structuralOut.lookup.Found && structuralOut.lookup.Entity.Deprecated

	for _, l := range []struct {
		name string
		out  layerResult
	}{
		{LayerTemporal, temporalOut},
		{LayerDocumentation, docOut},
		{LayerMemory, memoryOut},
	} {
		report.Reasons = append(report.Reasons, l.out.reasons...)
		if l.out.degraded {
			report.Reasons = append(report.Reasons, degradedReason(l.name, l.out.err))
		}
	}
	report.Layers.Temporal = temporalOut.score
	report.Layers.Documentation = docOut.score
	report.Layers.Memory = memoryOut.score

	report.State = StateScoring
	report.ConsensusScore = Fuse(report.Layers, e.cfg.Weights, temporalHalved)

	// Hard gate: a confirmed miss in the structural index rejects the
	// request no matter what the soft layers believed.
	if !structuralOut.lookup.Found {
		report.Verdict = VerdictRejected
		report.State = StateRejected
	} else if report.ConsensusScore >= e.cfg.Threshold {
		report.Verdict = VerdictAccepted
		report.State = StateAccepted
	} else {
		report.Verdict = VerdictRejected
		report.State = StateRejected
		report.Reasons = append(report.Reasons,
			fmt.Sprintf("consensus %.3f below threshold %.2f", report.ConsensusScore, e.cfg.Threshold))
	}

	if report.State == StateRejected && correctionsEnabled {
		report.State = StateCorrecting
		report.Corrections = e.proposeCorrections(ctx, req)
		if len(report.Corrections) > 0 {
			report.State = StateRejectedWithSuggestions
		} else {
			report.State = StateRejectedNoSuggestions
		}
	}

	return report, nil
}

// runStructural mirrors runLayer for the structural+type branch,
// which returns a richer result than the other layers.
func (e *Engine) runStructural(ctx context.Context, req ValidationRequest) structuralOutcome {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LayerTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan structuralOutcome, 1)
	go func() { ch <- e.structuralLayer(ctx, req) }()

	select {
	case out := <-ch:
		e.metrics.ObserveLayer(LayerStructural, time.Since(start), out.degraded)
		return out
	case <-ctx.Done():
		e.metrics.ObserveLayer(LayerStructural, time.Since(start), true)
		return structuralOutcome{layerResult: layerResult{degraded: true, err: ctx.Err()}}
	}
}

// runTemporal threads the low-confidence flag through the timeout
// harness.
func (e *Engine) runTemporal(ctx context.Context, req ValidationRequest) (layerResult, bool) {
	var halved bool
	res := e.runLayer(ctx, LayerTemporal, func(ctx context.Context) layerResult {
		out, low := e.temporalLayer(ctx, req)
		halved = low
		return out
	})
	if res.degraded {
		return res, false
	}
	return res, halved
}

// =============================================================================
// RecordOutcome
// =============================================================================

// RecordOutcome feeds one observed execution result back into the
// temporal counters and, when a decision store is wired, into
// decision memory.
//
// Outputs:
//   - error: wraps ErrRecordOutcomeFailed when the counter update
//     could not be persisted after retries.
func (e *Engine) RecordOutcome(ctx context.Context, outcome Outcome) error {
	key := temporal.Normalize(outcome.Framework, outcome.EntityPath, outcome.ArgTypes)

	if err := e.patterns.RecordOutcome(ctx, key, outcome.Framework, outcome.Success, e.now()); err != nil {
		e.metrics.ObserveOutcome(outcome.Success, err)
		if errors.Is(err, temporal.ErrRecordOutcomeFailed) {
			return fmt.Errorf("%w: %v", ErrRecordOutcomeFailed, err)
		}
		return err
	}

	if e.decisions != nil {
		text := outcome.EntityPath
		if outcome.Context != "" {
			text = outcome.Context + " " + outcome.EntityPath
		}
		vec, err := e.embedder.Embed(ctx, text)
		if err == nil {
			decErr := e.decisions.Append(ctx, memory.Decision{
				ID:         key + "/" + e.now().UTC().Format(time.RFC3339Nano),
				Framework:  outcome.Framework,
				EntityPath: outcome.EntityPath,
				Context:    outcome.Context,
				Success:    outcome.Success,
				CreatedAt:  e.now().UTC(),
				Vector:     vec,
			})
			if decErr != nil {
				// Decision memory is advisory; a write failure must not
				// fail the outcome that already landed in the counters.
				e.logger.Warn("decision memory append failed", "error", decErr)
			}
		} else {
			e.logger.Warn("outcome embedding failed", "error", err)
		}
	}

	e.metrics.ObserveOutcome(outcome.Success, nil)
	return nil
}

// InvalidateFramework drops every cached report for a framework.
// Called by ingestion after a new dump lands; TTL expiry handles
// everything else.
func (e *Engine) InvalidateFramework(framework string) int {
	n := e.cache.InvalidatePrefix(framework + cacheKeySep)
	if n > 0 {
		e.metrics.ObserveCache("invalidation")
		e.logger.Info("cache invalidated", "framework", framework, "entries", n)
	}
	return n
}

// =============================================================================
// Helpers
// =============================================================================

const cacheKeySep = "\x00"

func newRequestID() string { return uuid.NewString() }

func (e *Engine) cacheKey(req ValidationRequest) string {
	argTypes := make([]string, len(req.Args))
	for i, a := range req.Args {
		argTypes[i] = a.Type
	}
	return req.Framework + cacheKeySep + req.EntityPath + cacheKeySep + strings.Join(argTypes, ",")
}

func (e *Engine) newReport(req ValidationRequest) ValidationReport {
	return ValidationReport{
		RequestID:  newRequestID(),
		Framework:  req.Framework,
		EntityPath: req.EntityPath,
		State:      StateReceived,
	}
}

func (e *Engine) failed(req ValidationRequest, start time.Time, err error) ValidationReport {
	report := e.newReport(req)
	report.Elapsed = e.now().Sub(start)
	return e.failedReport(report, err)
}

func (e *Engine) failedReport(report ValidationReport, err error) ValidationReport {
	report.State = StateFailed
	report.Reasons = append(report.Reasons, err.Error())
	return report
}
