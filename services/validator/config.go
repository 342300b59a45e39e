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
	"fmt"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

// Weights assigns the relative trust placed in each knowledge layer.
// Weights must be positive and are normalized over the layers that
// actually produced a score, so they need not sum to exactly 1.
type Weights struct {
	Structural    float64 `yaml:"structural" json:"structural"`
	Temporal      float64 `yaml:"temporal" json:"temporal"`
	Documentation float64 `yaml:"documentation" json:"documentation"`
	Memory        float64 `yaml:"memory" json:"memory"`
	Type          float64 `yaml:"type" json:"type"`
}

// DefaultWeights returns the shipped layer weighting. Structural
// ground truth dominates; the learned layers share the remainder.
func DefaultWeights() Weights {
	return Weights{
		Structural:    0.30,
		Temporal:      0.20,
		Documentation: 0.20,
		Memory:        0.15,
		Type:          0.15,
	}
}

// Config tunes the validation engine. Zero values are replaced by
// defaults in ApplyDefaults; Validate rejects nonsensical settings.
type Config struct {
	// Weights is the per-layer trust distribution.
	Weights Weights `yaml:"weights" json:"weights"`

	// Threshold is the consensus score at or above which a request
	// is accepted. Default 0.92.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// LayerTimeout bounds each knowledge layer's lookup. A structural
	// timeout fails the request; any other layer degrades to an
	// abstention. Default 2s.
	LayerTimeout time.Duration `yaml:"layer_timeout" json:"layer_timeout"`

	// CacheTTL bounds how long a verdict for a (framework, entity
	// path, arg shape) triple is reused. Ingestion invalidates the
	// affected framework's entries regardless of age. Default 1h.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// CacheSize caps the number of cached verdicts. Default 4096.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// DecayHorizon is how old a temporal observation may get before
	// its evidence starts decaying toward the 0.5 prior. Default 12
	// months (8760h).
	DecayHorizon time.Duration `yaml:"decay_horizon" json:"decay_horizon"`

	// MinObservations is the sample size under which the temporal
	// layer's weight is halved. Default 5.
	MinObservations int `yaml:"min_observations" json:"min_observations"`

	// MemoryK is how many similar past decisions the memory layer
	// averages over. Default 5.
	MemoryK int `yaml:"memory_k" json:"memory_k"`

	// MemoryMinHits is the minimum number of similar decisions for
	// the memory layer to produce a score. Default 3.
	MemoryMinHits int `yaml:"memory_min_hits" json:"memory_min_hits"`

	// MaxCorrections caps the correction candidates proposed on
	// rejection. Default 3.
	MaxCorrections int `yaml:"max_corrections" json:"max_corrections"`

	// FuzzyFloor is the minimum normalized string similarity for a
	// structural near-miss to qualify as a correction candidate.
	// Default 0.6.
	FuzzyFloor float64 `yaml:"fuzzy_floor" json:"fuzzy_floor"`

	// OutcomeRetries is how many times a failed outcome write is
	// retried before ErrRecordOutcomeFailed. Default 3.
	OutcomeRetries int `yaml:"outcome_retries" json:"outcome_retries"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	zero := Weights{}
	if c.Weights == zero {
		c.Weights = DefaultWeights()
	}
	if c.Threshold == 0 {
		c.Threshold = 0.92
	}
	if c.LayerTimeout == 0 {
		c.LayerTimeout = 2 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	if c.DecayHorizon == 0 {
		c.DecayHorizon = 365 * 24 * time.Hour
	}
	if c.MinObservations == 0 {
		c.MinObservations = 5
	}
	if c.MemoryK == 0 {
		c.MemoryK = 5
	}
	if c.MemoryMinHits == 0 {
		c.MemoryMinHits = 3
	}
	if c.MaxCorrections == 0 {
		c.MaxCorrections = 3
	}
	if c.FuzzyFloor == 0 {
		c.FuzzyFloor = 0.6
	}
	if c.OutcomeRetries == 0 {
		c.OutcomeRetries = 3
	}
}

// Validate checks the configuration for values the engine cannot
// operate with.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", c.Threshold)
	}
	for name, w := range map[string]float64{
		"structural":    c.Weights.Structural,
		"temporal":      c.Weights.Temporal,
		"documentation": c.Weights.Documentation,
		"memory":        c.Weights.Memory,
		"type":          c.Weights.Type,
	} {
		if w <= 0 {
			return fmt.Errorf("weight %q must be positive, got %v", name, w)
		}
	}
	if c.LayerTimeout <= 0 {
		return fmt.Errorf("layer_timeout must be positive, got %v", c.LayerTimeout)
	}
	if c.FuzzyFloor < 0 || c.FuzzyFloor > 1 {
		return fmt.Errorf("fuzzy_floor must be in [0, 1], got %v", c.FuzzyFloor)
	}
	if c.MemoryMinHits > c.MemoryK {
		return fmt.Errorf("memory_min_hits (%d) cannot exceed memory_k (%d)", c.MemoryMinHits, c.MemoryK)
	}
	return nil
}
