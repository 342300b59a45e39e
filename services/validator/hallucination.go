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
	"sort"
	"strings"
)

// docBoost is added to a candidate's similarity when the framework's
// documentation mentions it, so a well-documented near-miss outranks
// an obscure one at equal edit distance.
const docBoost = 0.1

// candidatePoolFactor oversizes the fuzzy pool relative to the
// correction cap, since re-validation prunes most candidates.
const candidatePoolFactor = 3

// proposeCorrections mines entity paths the caller probably meant.
//
// Description: collects near-miss paths from the structural index,
// boosts the ones the documentation corpus actually mentions, then
// re-validates each candidate through the same pipeline with
// correction mining disabled. Only candidates the pipeline accepts
// survive; a hallucinated suggestion would be worse than none.
func (e *Engine) proposeCorrections(ctx context.Context, req ValidationRequest) []Correction {
	pool := e.cfg.MaxCorrections * candidatePoolFactor
	candidates := e.structural.Candidates(ctx, req.Framework, req.EntityPath, e.cfg.FuzzyFloor, pool)
	if len(candidates) == 0 {
		return nil
	}

	mentioned := e.documentedPaths(ctx, req)
	if len(mentioned) > 0 {
		for i := range candidates {
			if mentioned[strings.ToLower(candidates[i].Path)] {
				candidates[i].Similarity += docBoost
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Similarity > candidates[j].Similarity
		})
	}

	corrections := make([]Correction, 0, e.cfg.MaxCorrections)
	for _, cand := range candidates {
		if len(corrections) >= e.cfg.MaxCorrections {
			break
		}
		if cand.Path == req.EntityPath {
			continue
		}

		candReq := req
		candReq.EntityPath = cand.Path
		report, err := e.validateOnce(ctx, candReq, false)
		if err != nil || report.Verdict != VerdictAccepted {
			continue
		}

		corrections = append(corrections, Correction{
			EntityPath: cand.Path,
			Confidence: report.ConsensusScore,
		})
		e.metrics.CorrectionsProposedTotal.Inc()
	}

	sort.SliceStable(corrections, func(i, j int) bool {
		return corrections[i].Confidence > corrections[j].Confidence
	})
	return corrections
}

// documentedPaths returns the lowered candidate paths that appear in
// the top documentation hits for the rejected entity. Best effort: a
// doc search failure just skips the boost.
func (e *Engine) documentedPaths(ctx context.Context, req ValidationRequest) map[string]bool {
	if e.docs == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, req.EntityPath)
	if err != nil {
		return nil
	}
	hits, err := e.docs.Search(ctx, req.Framework, req.EntityPath, vec, 5)
	if err != nil {
		return nil
	}

	mentioned := make(map[string]bool)
	pool := e.cfg.MaxCorrections * candidatePoolFactor
	for _, cand := range e.structural.Candidates(ctx, req.Framework, req.EntityPath, e.cfg.FuzzyFloor, pool) {
		lowered := strings.ToLower(cand.Path)
		for _, h := range hits {
			if strings.Contains(strings.ToLower(h.Chunk.Text), lowered) {
				mentioned[lowered] = true
				break
			}
		}
	}
	return mentioned
}
