// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory persists past validation decisions and their
// real-world outcomes, and retrieves the ones most similar to a new
// request. The engine's memory layer averages retrieved outcomes,
// weighted by similarity, into an experience score.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/veritas/services/validator/embedding"
)

// Decision is one remembered validation outcome.
type Decision struct {
	ID         string    `json:"id"`
	Framework  string    `json:"framework"`
	EntityPath string    `json:"entity_path"`
	Context    string    `json:"context"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
	Vector     []float32 `json:"-"`
}

// ScoredDecision pairs a retrieved decision with its similarity to
// the query, in [0, 1].
type ScoredDecision struct {
	Decision   Decision
	Similarity float64
}

// Store is the decision memory surface.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// Append records a decision. The vector must come from the same
	// embedder used at query time.
	Append(ctx context.Context, d Decision) error

	// Similar returns up to k decisions of a framework most similar
	// to the query vector, best first.
	Similar(ctx context.Context, framework string, queryVec []float32, k int) ([]ScoredDecision, error)
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryStore is the in-process Store backend.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[string][]Decision // framework -> decisions
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[string][]Decision)}
}

// Append records a decision.
func (s *MemoryStore) Append(_ context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.Framework] = append(s.decisions[d.Framework], d)
	return nil
}

// Similar scans the framework's decisions and returns the k nearest
// by cosine similarity.
func (s *MemoryStore) Similar(_ context.Context, framework string, queryVec []float32, k int) ([]ScoredDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := s.decisions[framework]
	if len(decisions) == 0 || k <= 0 {
		return nil, nil
	}

	scored := make([]ScoredDecision, 0, len(decisions))
	for _, d := range decisions {
		sim := embedding.Cosine(queryVec, d.Vector)
		if sim < 0 {
			sim = 0
		}
		scored = append(scored, ScoredDecision{Decision: d, Similarity: sim})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Similarity > scored[b].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
