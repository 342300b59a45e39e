// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/veritas/services/validator"
	"github.com/AleutianAI/veritas/services/validator/handlers"
	"github.com/AleutianAI/veritas/services/validator/ingest"
	"github.com/AleutianAI/veritas/services/validator/middleware"
	"github.com/AleutianAI/veritas/services/validator/structural"
)

// Deps are the wired components the routes expose.
type Deps struct {
	Engine   *validator.Engine
	Ingestor *ingest.Ingestor
	Index    *structural.Index

	// Gatherer backs GET /metrics. Nil skips the endpoint.
	Gatherer prometheus.Gatherer

	// RateLimit is sustained requests per second per client IP.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	if deps.RateLimit > 0 {
		burst := deps.RateBurst
		if burst <= 0 {
			burst = int(deps.RateLimit)
		}
		v1.Use(middleware.NewRateLimiter(deps.RateLimit, burst).Middleware())
	}
	{
		v1.POST("/validate", handlers.ValidateUsage(deps.Engine))
		v1.POST("/outcomes", handlers.RecordOutcome(deps.Engine))
		v1.POST("/frameworks", handlers.IngestFramework(deps.Ingestor))
		v1.GET("/frameworks", handlers.ListFrameworks(deps.Index))
	}
}
