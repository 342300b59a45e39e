// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest loads framework API dumps into the structural index
// and their documentation strings into the doc search index. Applying
// a dump is the only event that invalidates cached verdicts for that
// framework.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/structural"
)

// chunkSize is the rough character budget per documentation chunk.
// Paragraphs are packed up to this size, never split mid-paragraph.
const chunkSize = 800

// embedConcurrency bounds parallel embedding calls during ingestion,
// which matters when the embedder is a remote API.
const embedConcurrency = 4

// CacheInvalidator drops cached verdicts for a framework. The
// validation engine satisfies it.
type CacheInvalidator interface {
	InvalidateFramework(framework string) int
}

// Result summarizes one applied dump.
type Result struct {
	Framework   string
	Version     string
	Entities    int
	Chunks      int
	Invalidated int
}

// Ingestor applies framework dumps: the structural swap lands first
// and immediately invalidates the framework's cached verdicts, then
// the docs reindex. A doc-indexing failure therefore leaves the
// structural snapshot current and the verdict cache cold, never a
// stale cache over a newer snapshot.
//
// Thread Safety: safe for concurrent use; concurrent dumps for the
// same framework serialize on the structural index's version gate.
type Ingestor struct {
	index    *structural.Index
	docs     docindex.Index
	embedder embedding.Embedder
	cache    CacheInvalidator
	logger   *slog.Logger
}

// NewIngestor wires an Ingestor. docs and cache may be nil, which
// skips doc indexing and cache invalidation respectively.
func NewIngestor(index *structural.Index, docs docindex.Index, embedder embedding.Embedder,
	cache CacheInvalidator, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		index:    index,
		docs:     docs,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

// IngestFile reads a YAML dump from disk and applies it.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading dump %s: %w", path, err)
	}
	return ing.Ingest(ctx, data, path)
}

// Ingest parses and applies one dump. sourceRef labels the doc chunks
// (usually the dump's file path) and may be empty.
func (ing *Ingestor) Ingest(ctx context.Context, data []byte, sourceRef string) (Result, error) {
	dump, err := structural.ParseDump(data)
	if err != nil {
		return Result{}, err
	}

	if err := ing.index.Apply(dump); err != nil {
		return Result{}, err
	}

	res := Result{
		Framework: dump.Name,
		Version:   ing.index.Version(dump.Name),
	}
	for _, cls := range dump.Classes {
		res.Entities += 1 + len(cls.Methods)
	}

	// The structural snapshot is already swapped; cached verdicts are
	// stale from this point on, even if the doc reindex below fails.
	if ing.cache != nil {
		res.Invalidated = ing.cache.InvalidateFramework(dump.Name)
	}

	if ing.docs != nil {
		chunks, err := ing.buildChunks(ctx, dump, sourceRef)
		if err != nil {
			return res, fmt.Errorf("embedding docs for %s: %w", dump.Name, err)
		}
		if err := ing.docs.DeleteFramework(ctx, dump.Name); err != nil {
			return res, fmt.Errorf("clearing stale docs for %s: %w", dump.Name, err)
		}
		if err := ing.docs.Add(ctx, chunks); err != nil {
			return res, fmt.Errorf("indexing docs for %s: %w", dump.Name, err)
		}
		res.Chunks = len(chunks)
	}

	ing.logger.Info("framework dump applied",
		"framework", res.Framework,
		"version", res.Version,
		"entities", res.Entities,
		"doc_chunks", res.Chunks,
		"verdicts_invalidated", res.Invalidated,
	)
	return res, nil
}

// buildChunks turns the dump's doc strings into embedded chunks.
// Each chunk text is prefixed with its entity path so lexical overlap
// and containment scoring see the path itself, not just the prose.
func (ing *Ingestor) buildChunks(ctx context.Context, dump structural.Framework, sourceRef string) ([]docindex.Chunk, error) {
	chunks := make([]docindex.Chunk, 0, len(dump.Classes))
	for _, cls := range dump.Classes {
		for _, text := range splitParagraphs(cls.Doc) {
			chunks = append(chunks, docindex.Chunk{
				ID:        fmt.Sprintf("%s/%s#%d", dump.Name, cls.Name, len(chunks)),
				Framework: dump.Name,
				Text:      cls.Name + ": " + text,
				SourceRef: sourceRef,
			})
		}
		for _, m := range cls.Methods {
			path := cls.Name + "." + m.Name
			for _, text := range splitParagraphs(m.Doc) {
				chunks = append(chunks, docindex.Chunk{
					ID:        fmt.Sprintf("%s/%s#%d", dump.Name, path, len(chunks)),
					Framework: dump.Name,
					Text:      path + ": " + text,
					SourceRef: sourceRef,
				})
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := ing.embedder.Embed(ctx, chunks[i].Text)
			if err != nil {
				return err
			}
			chunks[i].Vector = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// splitParagraphs packs blank-line separated paragraphs into chunks
// of at most chunkSize characters. Empty docs yield no chunks.
func splitParagraphs(doc string) []string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}

	var (
		out []string
		cur strings.Builder
	)
	for _, para := range strings.Split(doc, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > chunkSize {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
