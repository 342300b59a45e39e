// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding turns text into vectors for the documentation
// and memory layers. Two implementations ship: an OpenAI-backed
// embedder for production and a deterministic local hash embedder
// for air-gapped deployments and tests.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder converts text into a fixed-dimension vector.
//
// Thread Safety: implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths or zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// =============================================================================
// Hash Embedder
// =============================================================================

const defaultHashDimensions = 256

// HashEmbedder is a deterministic bag-of-words embedder: each token
// is FNV-hashed into a bucket and the result is L2-normalized.
//
// It captures lexical overlap only, no semantics, but it needs no
// network, never fails, and identical text always maps to an
// identical vector. That makes it the default for local deployments
// and the fixture for every test that exercises vector search.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. Non-positive dims selects
// the default of 256.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed hashes the text's tokens into a normalized vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// tokenize lowercases and splits on non-alphanumeric runes. Dots and
// underscores split too, so "DataFrame.merge" shares tokens with
// "DataFrame.merge_ordered".
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// =============================================================================
// Validation
// =============================================================================

// ValidateDimensions checks a vector against an embedder's width.
// Stored vectors and query vectors must agree or similarity silently
// degrades to zero.
func ValidateDimensions(e Embedder, vec []float32) error {
	if len(vec) != e.Dimensions() {
		return fmt.Errorf("vector has %d dimensions, embedder produces %d", len(vec), e.Dimensions())
	}
	return nil
}
