// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package temporal tracks how often normalized usage patterns
// succeeded or failed in practice, and turns those counters into a
// smoothed, recency-decayed score for the consensus engine.
package temporal

import "time"

// Stats are the persisted counters for one pattern key.
type Stats struct {
	Key            string    `json:"key"`
	Framework      string    `json:"framework"`
	Success        int64     `json:"success"`
	Failure        int64     `json:"failure"`
	LastObservedAt time.Time `json:"last_observed_at"`
}

// Observations is the total sample size behind the counters.
func (s Stats) Observations() int64 {
	return s.Success + s.Failure
}

// Score converts pattern counters into a [0, 1] score.
//
// The base score is the Laplace-smoothed success rate
// (success+1)/(success+failure+2), so a pattern with no history sits
// at the 0.5 prior rather than at an extreme.
//
// Evidence goes stale: once the last observation is older than
// horizon, the score decays linearly toward the 0.5 prior, reaching
// it at twice the horizon. Decay moves the score toward ignorance,
// never below it, so an old failing pattern is also pulled up to 0.5.
//
// Inputs:
//   - s: counters for the pattern.
//   - now: evaluation time.
//   - horizon: freshness window (the engine default is 12 months).
//
// Outputs:
//   - float64: the decayed, smoothed score in [0, 1].
func Score(s Stats, now time.Time, horizon time.Duration) float64 {
	raw := float64(s.Success+1) / float64(s.Success+s.Failure+2)

	if horizon <= 0 || s.LastObservedAt.IsZero() {
		return raw
	}

	age := now.Sub(s.LastObservedAt)
	switch {
	case age <= horizon:
		return raw
	case age >= 2*horizon:
		return 0.5
	default:
		// Linear fade of the evidence over (horizon, 2*horizon).
		fade := 1 - float64(age-horizon)/float64(horizon)
		return 0.5 + (raw-0.5)*fade
	}
}
