// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docindex stores documentation fragments per framework and
// serves hybrid lexical+semantic retrieval over them.
//
// Retrieval runs both channels, fuses the rankings with reciprocal
// rank fusion (lexical weight 0.3, semantic weight 0.7), and reports
// each hit's blended similarity so the consensus engine can use the
// top hit's score directly as layer evidence.
//
// Two backends ship: an in-memory index for local deployments and
// tests, and a Weaviate-backed index for shared installations.
package docindex

import (
	"context"
	"strings"
)

// Chunk is one indexed documentation fragment.
type Chunk struct {
	ID        string    `json:"id"`
	Framework string    `json:"framework"`
	Text      string    `json:"text"`
	SourceRef string    `json:"source_ref,omitempty"`
	Vector    []float32 `json:"-"`
}

// Hit is one retrieval result. Score is the blended similarity
// 0.3*lexical + 0.7*semantic, in [0, 1].
type Hit struct {
	Chunk Chunk
	Score float64
}

// Index is the documentation retrieval surface.
//
// Thread Safety: implementations must be safe for concurrent use.
type Index interface {
	// Add indexes chunks, replacing any existing chunks with the
	// same ID. Chunks must carry vectors from the same embedder the
	// queries will use.
	Add(ctx context.Context, chunks []Chunk) error

	// Search retrieves the k best chunks of one framework for a
	// query, hybrid-fused, best first.
	Search(ctx context.Context, framework, query string, queryVec []float32, k int) ([]Hit, error)

	// DeleteFramework drops all chunks of a framework, making room
	// for re-ingestion.
	DeleteFramework(ctx context.Context, framework string) error
}

// Channel weights and the RRF constant. k0=60 is the standard choice
// and keeps single-channel outliers from dominating the fusion.
const (
	lexicalWeight  = 0.3
	semanticWeight = 0.7
	rrfK           = 60
)

// LexicalOverlap is the fraction of query tokens present in the
// text, in [0, 1]. It is deliberately asymmetric: a long chunk that
// contains every query token scores 1 regardless of its own length.
func LexicalOverlap(query, text string) float64 {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := tokenSet(text)

	matched := 0
	for token := range queryTokens {
		if _, ok := textTokens[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// BlendScore combines the two channel similarities into the hit
// score reported to the engine.
func BlendScore(lexical, semantic float64) float64 {
	return lexicalWeight*lexical + semanticWeight*clamp01(semantic)
}

// ContainmentPenalty halves a score once per entity path fragment
// that the evidence text does not mention. Documentation that talks
// about the class but never the method is weak support for the
// method.
func ContainmentPenalty(score float64, entityPath, text string) float64 {
	lower := strings.ToLower(text)
	for _, fragment := range strings.Split(entityPath, ".") {
		if fragment == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(fragment)) {
			score /= 2
		}
	}
	return score
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		set[tok] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
