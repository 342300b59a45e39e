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
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/vectordb"
)

// FrameworkDocClassName is the Weaviate class holding doc chunks.
const FrameworkDocClassName = "FrameworkDoc"

// FrameworkDocClass is the schema for documentation chunks. Vectors
// are provided by our own embedder, so the vectorizer stays off.
func FrameworkDocClass() *models.Class {
	return &models.Class{
		Class:       FrameworkDocClassName,
		Description: "Documentation fragment of an ingested framework",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "chunkId", DataType: []string{"text"}, Description: "Stable chunk identifier"},
			{Name: "framework", DataType: []string{"text"}, Description: "Owning framework name"},
			{Name: "text", DataType: []string{"text"}, Description: "Fragment text"},
			{Name: "sourceRef", DataType: []string{"text"}, Description: "Where the fragment came from"},
		},
	}
}

// WeaviateIndex is the Weaviate-backed Index. Every remote call runs
// through the shared vectordb client, which retries transient errors
// and fails fast with vectordb.ErrUnavailable while the connection is
// degraded, letting the documentation layer abstain instead of hang.
//
// Hybrid retrieval is delegated to Weaviate (alpha 0.7, matching the
// semantic channel weight); the blended hit score is recomputed
// locally from the returned vector and text so both backends report
// comparable similarities.
type WeaviateIndex struct {
	db     *vectordb.Client
	logger *slog.Logger

	schemaReady atomic.Bool
}

// NewWeaviateIndex creates the index and ensures its schema class
// exists. When Weaviate is down at startup the schema check is
// deferred to the first successful write, so a degraded start does
// not fail service boot.
func NewWeaviateIndex(ctx context.Context, db *vectordb.Client, logger *slog.Logger) (*WeaviateIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	idx := &WeaviateIndex{db: db, logger: logger}
	if err := idx.ensureSchema(ctx); err != nil {
		if !errors.Is(err, vectordb.ErrUnavailable) {
			return nil, err
		}
		logger.Warn("weaviate degraded at startup, doc schema check deferred", "error", err)
	}
	return idx, nil
}

func (idx *WeaviateIndex) ensureSchema(ctx context.Context) error {
	if idx.schemaReady.Load() {
		return nil
	}

	err := idx.db.Execute(ctx, func() error {
		exists, err := idx.db.Weaviate().Schema().ClassExistenceChecker().
			WithClassName(FrameworkDocClassName).
			Do(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := idx.db.Weaviate().Schema().ClassCreator().
			WithClass(FrameworkDocClass()).
			Do(ctx); err != nil {
			return err
		}
		idx.logger.Info("created weaviate class", "class", FrameworkDocClassName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure %s class: %w", FrameworkDocClassName, err)
	}
	idx.schemaReady.Store(true)
	return nil
}

// Add batch-upserts chunks. Object IDs are UUIDv5 of the chunk ID,
// so re-ingesting a chunk overwrites rather than duplicates.
func (idx *WeaviateIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := idx.ensureSchema(ctx); err != nil {
		return err
	}

	objects := make([]*models.Object, 0, len(chunks))
	for _, chunk := range chunks {
		objects = append(objects, &models.Object{
			Class: FrameworkDocClassName,
			ID:    chunkUUID(chunk.ID),
			Properties: map[string]interface{}{
				"chunkId":   chunk.ID,
				"framework": chunk.Framework,
				"text":      chunk.Text,
				"sourceRef": chunk.SourceRef,
			},
			Vector: chunk.Vector,
		})
	}

	err := idx.db.Execute(ctx, func() error {
		resp, err := idx.db.Weaviate().Batch().ObjectsBatcher().
			WithObjects(objects...).
			Do(ctx)
		if err != nil {
			return err
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return errors.New(obj.Result.Errors.Error[0].Message)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch add doc chunks: %w", err)
	}
	return nil
}

// DeleteFramework removes every chunk of a framework.
func (idx *WeaviateIndex) DeleteFramework(ctx context.Context, framework string) error {
	err := idx.db.Execute(ctx, func() error {
		_, err := idx.db.Weaviate().Batch().ObjectsBatchDeleter().
			WithClassName(FrameworkDocClassName).
			WithWhere(filters.Where().
				WithPath([]string{"framework"}).
				WithOperator(filters.Equal).
				WithValueString(framework)).
			Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete doc chunks for %q: %w", framework, err)
	}
	return nil
}

// Search runs a Weaviate hybrid query scoped to the framework.
func (idx *WeaviateIndex) Search(ctx context.Context, framework, query string, queryVec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	hybrid := idx.db.Weaviate().GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(queryVec).
		WithAlpha(semanticWeight)

	where := filters.Where().
		WithPath([]string{"framework"}).
		WithOperator(filters.Equal).
		WithValueString(framework)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "framework"},
		{Name: "text"},
		{Name: "sourceRef"},
		{Name: "_additional { vector }"},
	}

	var result *models.GraphQLResponse
	err := idx.db.Execute(ctx, func() error {
		r, err := idx.db.Weaviate().GraphQL().Get().
			WithClassName(FrameworkDocClassName).
			WithFields(fields...).
			WithWhere(where).
			WithHybrid(hybrid).
			WithLimit(k).
			Do(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid doc search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("hybrid doc search: %s", result.Errors[0].Message)
	}

	return idx.parseHits(result.Data, query, queryVec), nil
}

func (idx *WeaviateIndex) parseHits(data map[string]models.JSONObject, query string, queryVec []float32) []Hit {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[FrameworkDocClassName].([]interface{})
	if !ok {
		return nil
	}

	hits := make([]Hit, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := Chunk{
			ID:        getString(obj, "chunkId"),
			Framework: getString(obj, "framework"),
			Text:      getString(obj, "text"),
			SourceRef: getString(obj, "sourceRef"),
			Vector:    getVector(obj),
		}

		lexical := LexicalOverlap(query, chunk.Text)
		semantic := clamp01(embedding.Cosine(queryVec, chunk.Vector))
		hits = append(hits, Hit{Chunk: chunk, Score: BlendScore(lexical, semantic)})
	}
	return hits
}

// =============================================================================
// Parse Helpers
// =============================================================================

func getString(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func getVector(obj map[string]interface{}) []float32 {
	additional, ok := obj["_additional"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := additional["vector"].([]interface{})
	if !ok {
		return nil
	}
	vec := make([]float32, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			vec = append(vec, float32(f))
		}
	}
	return vec
}

// chunkUUID derives a stable object ID from the chunk ID.
func chunkUUID(id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("veritas/doc/"+id)).String())
}
