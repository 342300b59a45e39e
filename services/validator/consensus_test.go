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
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func TestFuse_AllLayersPresent(t *testing.T) {
	scores := LayerScores{
		Structural:    fptr(1.0),
		Temporal:      fptr(0.9),
		Documentation: fptr(0.8),
		Memory:        fptr(0.7),
		Type:          fptr(1.0),
	}
	got := Fuse(scores, DefaultWeights(), false)

	want := 0.30*1.0 + 0.20*0.9 + 0.20*0.8 + 0.15*0.7 + 0.15*1.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Fuse() = %v, want %v", got, want)
	}
}

func TestFuse_AbstentionsRenormalize(t *testing.T) {
	// Documentation and memory abstained; their weight mass must be
	// redistributed, not treated as zero scores.
	scores := LayerScores{
		Structural: fptr(1.0),
		Temporal:   fptr(1.0),
		Type:       fptr(1.0),
	}
	got := Fuse(scores, DefaultWeights(), false)
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("Fuse() with unanimous present layers = %v, want 1.0", got)
	}

	scores.Temporal = fptr(0.0)
	got = Fuse(scores, DefaultWeights(), false)
	want := (0.30*1.0 + 0.20*0.0 + 0.15*1.0) / (0.30 + 0.20 + 0.15)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Fuse() = %v, want %v", got, want)
	}
}

func TestFuse_TemporalHalved(t *testing.T) {
	scores := LayerScores{
		Structural: fptr(1.0),
		Temporal:   fptr(0.0),
	}
	full := Fuse(scores, DefaultWeights(), false)
	halved := Fuse(scores, DefaultWeights(), true)

	if halved <= full {
		t.Fatalf("halving a low temporal score should raise consensus: full=%v halved=%v", full, halved)
	}
	want := (0.30*1.0 + 0.10*0.0) / (0.30 + 0.10)
	if math.Abs(halved-want) > 1e-9 {
		t.Fatalf("Fuse() halved = %v, want %v", halved, want)
	}
}

func TestFuse_NoParticipants(t *testing.T) {
	if got := Fuse(LayerScores{}, DefaultWeights(), false); got != 0 {
		t.Fatalf("Fuse() with no scores = %v, want 0", got)
	}
}

func TestFuse_SingleLayer(t *testing.T) {
	scores := LayerScores{Documentation: fptr(0.42)}
	if got := Fuse(scores, DefaultWeights(), false); math.Abs(got-0.42) > 1e-9 {
		t.Fatalf("Fuse() single layer = %v, want 0.42", got)
	}
}
