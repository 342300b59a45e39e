// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the validation engine over HTTP.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/veritas/services/validator"
	"github.com/AleutianAI/veritas/services/validator/ingest"
	"github.com/AleutianAI/veritas/services/validator/structural"
)

// IngestDumpRequest carries one framework API dump, as the YAML text
// produced by the extraction tooling.
type IngestDumpRequest struct {
	Dump   string `json:"dump"`
	Source string `json:"source,omitempty"`
}

// FrameworkInfo is one registered framework in the listing response.
type FrameworkInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ValidateUsage runs one proposed API usage through the engine.
func ValidateUsage(engine *validator.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validator.ValidationRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		report, err := engine.Validate(c.Request.Context(), req)
		if err != nil {
			status := statusForValidationError(err)
			slog.Error("Validation failed",
				"framework", req.Framework,
				"entity_path", req.EntityPath,
				"status", status,
				"error", err)
			c.JSON(status, gin.H{"error": err.Error(), "report": report})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func statusForValidationError(err error) int {
	switch {
	case errors.Is(err, validator.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, validator.ErrFrameworkNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, validator.ErrStructuralUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RecordOutcome folds one observed execution result back into the
// pattern store.
func RecordOutcome(engine *validator.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var outcome validator.Outcome
		if err := c.BindJSON(&outcome); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if outcome.Framework == "" || outcome.EntityPath == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "framework and entity_path are required"})
			return
		}

		if err := engine.RecordOutcome(c.Request.Context(), outcome); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, validator.ErrRecordOutcomeFailed) {
				status = http.StatusServiceUnavailable
			}
			slog.Error("Outcome recording failed",
				"framework", outcome.Framework,
				"entity_path", outcome.EntityPath,
				"error", err)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
	}
}

// IngestFramework applies a framework dump: structural swap, doc
// reindex, verdict cache invalidation.
func IngestFramework(ingestor *ingest.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestDumpRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.Dump == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dump is required"})
			return
		}

		res, err := ingestor.Ingest(c.Request.Context(), []byte(req.Dump), req.Source)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, structural.ErrStaleVersion):
				status = http.StatusConflict
			case errors.Is(err, structural.ErrInvalidDump):
				status = http.StatusBadRequest
			}
			slog.Error("Ingestion failed", "source", req.Source, "error", err)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status":      "success",
			"framework":   res.Framework,
			"version":     res.Version,
			"entities":    res.Entities,
			"doc_chunks":  res.Chunks,
			"invalidated": res.Invalidated,
		})
	}
}

// ListFrameworks reports the registered frameworks and their
// ingested versions.
func ListFrameworks(index *structural.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := index.Frameworks()
		out := make([]FrameworkInfo, 0, len(names))
		for _, name := range names {
			out = append(out, FrameworkInfo{Name: name, Version: index.Version(name)})
		}
		c.JSON(http.StatusOK, gin.H{"frameworks": out})
	}
}
