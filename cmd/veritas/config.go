// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/AleutianAI/veritas/services/validator"
)

// Config is the veritas.yaml layout.
type Config struct {
	Server struct {
		Port string `yaml:"port"`

		// RateLimit is sustained requests per second per client IP
		// on the /v1 group. Zero disables limiting.
		RateLimit float64 `yaml:"rate_limit"`
		RateBurst int     `yaml:"rate_burst"`
	} `yaml:"server"`

	// Engine tunes the consensus pipeline (weights, threshold,
	// timeouts). Zero values take the engine defaults.
	Engine validator.Config `yaml:"engine"`

	Storage struct {
		// DataDir holds the pattern store. Default ./data.
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Weaviate struct {
		// URL of the Weaviate instance backing the documentation and
		// decision memory layers. Empty runs both layers in-process.
		URL                string `yaml:"url"`
		AllowStartDegraded bool   `yaml:"allow_start_degraded"`
	} `yaml:"weaviate"`

	Embedder struct {
		// Backend is "hash" (deterministic, offline) or "openai".
		Backend string `yaml:"backend"`
		Dims    int    `yaml:"dims"`
	} `yaml:"embedder"`

	Dumps struct {
		// Dir is scanned for *.yaml framework dumps at startup.
		Dir string `yaml:"dir"`
		// Watch re-ingests dumps when their files change.
		Watch bool `yaml:"watch"`
	} `yaml:"dumps"`

	Telemetry struct {
		// OTLPEndpoint is the gRPC collector address. Empty disables
		// trace export.
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8315"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = "hash"
	}
	if c.Embedder.Dims == 0 {
		c.Embedder.Dims = 256
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
