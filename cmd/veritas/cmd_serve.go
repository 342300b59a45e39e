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
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/veritas/pkg/logging"
	"github.com/AleutianAI/veritas/services/validator"
	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/ingest"
	"github.com/AleutianAI/veritas/services/validator/memory"
	"github.com/AleutianAI/veritas/services/validator/observability"
	"github.com/AleutianAI/veritas/services/validator/routes"
	"github.com/AleutianAI/veritas/services/validator/structural"
	"github.com/AleutianAI/veritas/services/validator/temporal"
	"github.com/AleutianAI/veritas/services/validator/vectordb"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("validator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Logging.Level),
		LogDir:  config.Logging.Dir,
		Service: "validator",
		JSON:    config.Logging.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if config.Telemetry.OTLPEndpoint != "" {
		cleanup, err := initTracer(config.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index := structural.NewIndex(structural.WithLogger(logger.Slog()))

	patternCfg := temporal.DefaultConfig(filepath.Join(config.Storage.DataDir, "patterns"))
	patternCfg.Retries = config.Engine.OutcomeRetries
	patternCfg.Logger = logger.Slog()
	patterns, err := temporal.Open(patternCfg)
	if err != nil {
		log.Fatalf("failed to open the pattern store: %v", err)
	}
	defer patterns.Close()

	embedder := buildEmbedder(logger.Slog())
	docs, decisions, dbClose := buildKnowledgeStores(ctx, logger.Slog())
	defer dbClose()

	reg := prometheus.NewRegistry()
	engine, err := validator.NewEngine(config.Engine, validator.Deps{
		Structural: index,
		Patterns:   patterns,
		Docs:       docs,
		Decisions:  decisions,
		Embedder:   embedder,
		Metrics:    observability.NewMetrics(reg),
		Logger:     logger.Slog(),
	})
	if err != nil {
		log.Fatalf("failed to build the validation engine: %v", err)
	}

	ingestor := ingest.NewIngestor(index, docs, embedder, engine, logger.Slog())
	if config.Dumps.Dir != "" {
		ingestDumpDir(ctx, ingestor, config.Dumps.Dir, logger.Slog())
		if config.Dumps.Watch {
			watcher, err := ingest.NewWatcher(config.Dumps.Dir, ingestor, logger.Slog())
			if err != nil {
				log.Fatalf("failed to watch the dump directory: %v", err)
			}
			defer watcher.Stop()
			go watcher.Start(ctx)
		}
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("validator-service"))
	routes.SetupRoutes(router, routes.Deps{
		Engine:    engine,
		Ingestor:  ingestor,
		Index:     index,
		Gatherer:  reg,
		RateLimit: config.Server.RateLimit,
		RateBurst: config.Server.RateBurst,
	})

	srv := &http.Server{Addr: ":" + config.Server.Port, Handler: router}
	go func() {
		logger.Info("validator service listening", "port", config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

// buildEmbedder picks the configured embedding backend.
func buildEmbedder(logger *slog.Logger) embedding.Embedder {
	switch config.Embedder.Backend {
	case "openai":
		embedder, err := embedding.NewOpenAIEmbedder()
		if err != nil {
			log.Fatalf("failed to configure the OpenAI embedder: %v", err)
		}
		logger.Info("using OpenAI embeddings")
		return embedder
	default:
		logger.Info("using hash embeddings", "dims", config.Embedder.Dims)
		return embedding.NewHashEmbedder(config.Embedder.Dims)
	}
}

// buildKnowledgeStores wires the documentation and decision layers to
// Weaviate when a URL is configured, otherwise to the in-process
// implementations. The returned func releases the Weaviate client.
func buildKnowledgeStores(ctx context.Context, logger *slog.Logger) (docindex.Index, memory.Store, func()) {
	if config.Weaviate.URL == "" {
		logger.Info("no weaviate configured, documentation and memory layers run in-process")
		return docindex.NewMemoryIndex(), memory.NewMemoryStore(), func() {}
	}

	client, err := vectordb.New(vectordb.Config{
		URL:                config.Weaviate.URL,
		AllowStartDegraded: config.Weaviate.AllowStartDegraded,
		Logger:             logger,
	})
	if err != nil {
		log.Fatalf("failed to connect to weaviate: %v", err)
	}

	docs, err := docindex.NewWeaviateIndex(ctx, client, logger)
	if err != nil {
		log.Fatalf("failed to prepare the documentation index: %v", err)
	}
	decisions, err := memory.NewWeaviateStore(ctx, client, logger)
	if err != nil {
		log.Fatalf("failed to prepare the decision store: %v", err)
	}
	return docs, decisions, func() { _ = client.Close() }
}

// ingestDumpDir applies every dump found at startup. Individual bad
// dumps are logged and skipped; the service still starts.
func ingestDumpDir(ctx context.Context, ingestor *ingest.Ingestor, dir string, logger *slog.Logger) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.y*ml"))
	if err != nil {
		logger.Warn("bad dump directory pattern", "dir", dir, "error", err)
		return
	}
	for _, path := range matches {
		if _, err := ingestor.IngestFile(ctx, path); err != nil {
			logger.Error("startup ingestion failed", "path", path, "error", err)
		}
	}
}
