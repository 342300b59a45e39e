// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "DataFrame.merge joins two frames")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "DataFrame.merge joins two frames")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != defaultHashDimensions {
		t.Errorf("len = %d, want %d", len(a), defaultHashDimensions)
	}
	if got := Cosine(a, b); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical text cosine = %v, want 1", got)
	}
}

func TestHashEmbedder_Normalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "merge concat join group aggregate")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", norm)
	}
}

func TestHashEmbedder_SimilarityOrdering(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "merge two dataframes on a key column")
	related, _ := e.Embed(ctx, "DataFrame.merge merges dataframes on key columns")
	unrelated, _ := e.Embed(ctx, "open a tcp socket and listen for packets")

	if Cosine(query, related) <= Cosine(query, unrelated) {
		t.Errorf("related (%v) should beat unrelated (%v)",
			Cosine(query, related), Cosine(query, unrelated))
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("DataFrame.merge_ordered(right, on='key')")
	want := []string{"dataframe", "merge", "ordered", "right", "on", "key"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateDimensions(t *testing.T) {
	e := NewHashEmbedder(16)
	if err := ValidateDimensions(e, make([]float32, 16)); err != nil {
		t.Errorf("matching dims: %v", err)
	}
	if err := ValidateDimensions(e, make([]float32, 8)); err == nil {
		t.Error("expected error for mismatched dims")
	}
}
