// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/veritas/services/validator/vectordb"
)

// DesignDecisionClassName is the Weaviate class holding decisions.
const DesignDecisionClassName = "DesignDecision"

// DesignDecisionClass is the schema for remembered decisions.
func DesignDecisionClass() *models.Class {
	return &models.Class{
		Class:       DesignDecisionClassName,
		Description: "Past validation decision and its observed outcome",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "decisionId", DataType: []string{"text"}, Description: "Stable decision identifier"},
			{Name: "framework", DataType: []string{"text"}, Description: "Framework the usage targeted"},
			{Name: "entityPath", DataType: []string{"text"}, Description: "Entity path that was validated"},
			{Name: "context", DataType: []string{"text"}, Description: "Free-text intent behind the usage"},
			{Name: "success", DataType: []string{"boolean"}, Description: "Whether the usage worked in practice"},
			{Name: "createdAt", DataType: []string{"date"}, Description: "When the outcome was recorded"},
		},
	}
}

// WeaviateStore is the Weaviate-backed decision memory. Remote calls
// run through the shared vectordb client: transient errors retry,
// and a degraded connection fails fast with vectordb.ErrUnavailable
// so the memory layer abstains instead of hanging.
type WeaviateStore struct {
	db     *vectordb.Client
	logger *slog.Logger

	schemaReady atomic.Bool
}

// NewWeaviateStore creates the store and ensures its schema class
// exists. When Weaviate is down at startup the schema check is
// deferred to the first successful write.
func NewWeaviateStore(ctx context.Context, db *vectordb.Client, logger *slog.Logger) (*WeaviateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &WeaviateStore{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		if !errors.Is(err, vectordb.ErrUnavailable) {
			return nil, err
		}
		logger.Warn("weaviate degraded at startup, decision schema check deferred", "error", err)
	}
	return s, nil
}

func (s *WeaviateStore) ensureSchema(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}

	err := s.db.Execute(ctx, func() error {
		exists, err := s.db.Weaviate().Schema().ClassExistenceChecker().
			WithClassName(DesignDecisionClassName).
			Do(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := s.db.Weaviate().Schema().ClassCreator().
			WithClass(DesignDecisionClass()).
			Do(ctx); err != nil {
			return err
		}
		s.logger.Info("created weaviate class", "class", DesignDecisionClassName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure %s class: %w", DesignDecisionClassName, err)
	}
	s.schemaReady.Store(true)
	return nil
}

// Append stores one decision.
func (s *WeaviateStore) Append(ctx context.Context, d Decision) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	err := s.db.Execute(ctx, func() error {
		_, err := s.db.Weaviate().Data().Creator().
			WithClassName(DesignDecisionClassName).
			WithID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("veritas/decision/"+d.ID)).String()).
			WithProperties(map[string]interface{}{
				"decisionId": d.ID,
				"framework":  d.Framework,
				"entityPath": d.EntityPath,
				"context":    d.Context,
				"success":    d.Success,
				"createdAt":  d.CreatedAt.Format(time.RFC3339),
			}).
			WithVector(d.Vector).
			Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("append decision %q: %w", d.ID, err)
	}
	return nil
}

// Similar retrieves the k nearest decisions of a framework by vector
// distance. Weaviate reports certainty = (1+cos)/2; it is converted
// back to a clamped cosine so both backends weigh outcomes alike.
func (s *WeaviateStore) Similar(ctx context.Context, framework string, queryVec []float32, k int) ([]ScoredDecision, error) {
	if k <= 0 {
		return nil, nil
	}

	nearVector := s.db.Weaviate().GraphQL().NearVectorArgBuilder().
		WithVector(queryVec)

	where := filters.Where().
		WithPath([]string{"framework"}).
		WithOperator(filters.Equal).
		WithValueString(framework)

	fields := []graphql.Field{
		{Name: "decisionId"},
		{Name: "framework"},
		{Name: "entityPath"},
		{Name: "context"},
		{Name: "success"},
		{Name: "createdAt"},
		{Name: "_additional { certainty }"},
	}

	var result *models.GraphQLResponse
	err := s.db.Execute(ctx, func() error {
		r, err := s.db.Weaviate().GraphQL().Get().
			WithClassName(DesignDecisionClassName).
			WithFields(fields...).
			WithWhere(where).
			WithNearVector(nearVector).
			WithLimit(k).
			Do(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("similar decisions: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("similar decisions: %s", result.Errors[0].Message)
	}

	return parseDecisions(result.Data), nil
}

func parseDecisions(data map[string]models.JSONObject) []ScoredDecision {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[DesignDecisionClassName].([]interface{})
	if !ok {
		return nil
	}

	decisions := make([]ScoredDecision, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		d := Decision{
			ID:         getString(obj, "decisionId"),
			Framework:  getString(obj, "framework"),
			EntityPath: getString(obj, "entityPath"),
			Context:    getString(obj, "context"),
		}
		if success, ok := obj["success"].(bool); ok {
			d.Success = success
		}
		if created, err := time.Parse(time.RFC3339, getString(obj, "createdAt")); err == nil {
			d.CreatedAt = created
		}

		similarity := 0.0
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				similarity = 2*certainty - 1
				if similarity < 0 {
					similarity = 0
				}
			}
		}
		decisions = append(decisions, ScoredDecision{Decision: d, Similarity: similarity})
	}
	return decisions
}

func getString(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

// compile-time interface checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*WeaviateStore)(nil)
)
