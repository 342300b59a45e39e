// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docindex

import (
	"context"
	"sort"
	"sync"

	"github.com/AleutianAI/veritas/services/validator/embedding"
)

// MemoryIndex is the in-process Index backend.
//
// Thread Safety: safe for concurrent use; reads take a shared lock.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk // framework -> chunks
	byID   map[string]string  // chunk ID -> framework
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		chunks: make(map[string][]Chunk),
		byID:   make(map[string]string),
	}
}

// Add indexes chunks, replacing same-ID chunks.
func (idx *MemoryIndex) Add(_ context.Context, chunks []Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, chunk := range chunks {
		if fw, ok := idx.byID[chunk.ID]; ok {
			idx.removeLocked(fw, chunk.ID)
		}
		idx.chunks[chunk.Framework] = append(idx.chunks[chunk.Framework], chunk)
		idx.byID[chunk.ID] = chunk.Framework
	}
	return nil
}

// DeleteFramework drops all chunks of a framework.
func (idx *MemoryIndex) DeleteFramework(_ context.Context, framework string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, chunk := range idx.chunks[framework] {
		delete(idx.byID, chunk.ID)
	}
	delete(idx.chunks, framework)
	return nil
}

func (idx *MemoryIndex) removeLocked(framework, id string) {
	existing := idx.chunks[framework]
	for i, c := range existing {
		if c.ID == id {
			idx.chunks[framework] = append(existing[:i], existing[i+1:]...)
			break
		}
	}
	delete(idx.byID, id)
}

// Search runs both channels over the framework's chunks and fuses
// the rankings with RRF. Hit.Score is the blended similarity, not
// the fusion value: fusion only decides order.
func (idx *MemoryIndex) Search(_ context.Context, framework, query string, queryVec []float32, k int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	chunks := idx.chunks[framework]
	if len(chunks) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		chunk    Chunk
		lexical  float64
		semantic float64
		fused    float64
	}

	all := make([]scored, len(chunks))
	for i, chunk := range chunks {
		all[i] = scored{
			chunk:    chunk,
			lexical:  LexicalOverlap(query, chunk.Text),
			semantic: clamp01(embedding.Cosine(queryVec, chunk.Vector)),
		}
	}

	// Rank each channel independently, then fuse.
	byLex := make([]int, len(all))
	bySem := make([]int, len(all))
	for i := range all {
		byLex[i], bySem[i] = i, i
	}
	sort.SliceStable(byLex, func(a, b int) bool { return all[byLex[a]].lexical > all[byLex[b]].lexical })
	sort.SliceStable(bySem, func(a, b int) bool { return all[bySem[a]].semantic > all[bySem[b]].semantic })

	for rank, i := range byLex {
		all[i].fused += lexicalWeight / float64(rrfK+rank+1)
	}
	for rank, i := range bySem {
		all[i].fused += semanticWeight / float64(rrfK+rank+1)
	}

	sort.SliceStable(all, func(a, b int) bool { return all[a].fused > all[b].fused })
	if len(all) > k {
		all = all[:k]
	}

	hits := make([]Hit, len(all))
	for i, s := range all {
		hits[i] = Hit{Chunk: s.chunk, Score: BlendScore(s.lexical, s.semantic)}
	}
	return hits, nil
}
