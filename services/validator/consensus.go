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

// Layer names, used for metrics labels and report reasons.
const (
	LayerStructural    = "structural"
	LayerTemporal      = "temporal"
	LayerDocumentation = "documentation"
	LayerMemory        = "memory"
	LayerType          = "type"
)

// Fuse combines the surviving layer scores into one consensus score.
//
// Each non-nil layer contributes score*weight; the sum is divided by
// the participating weight mass, so abstaining layers redistribute
// their weight proportionally instead of dragging the score down.
// When temporalHalved is set (thin sample), the temporal layer
// participates at half weight.
//
// At least one layer must have scored; the engine guarantees the
// structural layer always does. With no participants Fuse returns 0.
func Fuse(scores LayerScores, weights Weights, temporalHalved bool) float64 {
	temporalWeight := weights.Temporal
	if temporalHalved {
		temporalWeight /= 2
	}

	var weighted, mass float64
	add := func(score *float64, weight float64) {
		if score == nil {
			return
		}
		weighted += *score * weight
		mass += weight
	}

	add(scores.Structural, weights.Structural)
	add(scores.Temporal, temporalWeight)
	add(scores.Documentation, weights.Documentation)
	add(scores.Memory, weights.Memory)
	add(scores.Type, weights.Type)

	if mass == 0 {
		return 0
	}
	return weighted / mass
}
