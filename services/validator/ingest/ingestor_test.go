// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/structural"
)

const pandasDump = `framework: pandas
version: "2.1.0"
classes:
  - name: DataFrame
    doc: |
      Two-dimensional, size-mutable, potentially heterogeneous tabular data.
    methods:
      - name: merge
        doc: |
          Merge DataFrame objects with a database-style join.
        signature:
          params:
            - name: right
              type: DataFrame
          returns: DataFrame
      - name: melt
        signature:
          params: []
`

type fakeInvalidator struct {
	frameworks []string
}

func (f *fakeInvalidator) InvalidateFramework(fw string) int {
	f.frameworks = append(f.frameworks, fw)
	return 2
}

func newTestIngestor(t *testing.T) (*Ingestor, *structural.Index, *docindex.MemoryIndex, *fakeInvalidator) {
	t.Helper()
	idx := structural.NewIndex()
	docs := docindex.NewMemoryIndex()
	inv := &fakeInvalidator{}
	ing := NewIngestor(idx, docs, embedding.NewHashEmbedder(64), inv, nil)
	return ing, idx, docs, inv
}

func TestIngest_AppliesDumpAndIndexesDocs(t *testing.T) {
	ing, idx, docs, inv := newTestIngestor(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, []byte(pandasDump), "dumps/pandas.yaml")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Framework != "pandas" || res.Version != "v2.1.0" {
		t.Errorf("result = %+v, want pandas v2.1.0", res)
	}
	if res.Entities != 3 {
		t.Errorf("Entities = %d, want 3 (class + 2 methods)", res.Entities)
	}
	if res.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2 (melt has no doc)", res.Chunks)
	}
	if res.Invalidated != 2 || len(inv.frameworks) != 1 || inv.frameworks[0] != "pandas" {
		t.Errorf("cache invalidation = %+v / %v", res.Invalidated, inv.frameworks)
	}

	if _, err := idx.Lookup(ctx, "pandas", "DataFrame.merge"); err != nil {
		t.Errorf("Lookup() after ingest error: %v", err)
	}

	embedder := embedding.NewHashEmbedder(64)
	vec, _ := embedder.Embed(ctx, "DataFrame.merge database-style join")
	hits, err := docs.Search(ctx, "pandas", "DataFrame.merge database-style join", vec, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("ingested docs are not searchable")
	}
	if hits[0].Chunk.SourceRef != "dumps/pandas.yaml" {
		t.Errorf("SourceRef = %q, want the dump path", hits[0].Chunk.SourceRef)
	}
}

func TestIngest_StaleVersionRefused(t *testing.T) {
	ing, _, _, inv := newTestIngestor(t)
	ctx := context.Background()

	if _, err := ing.Ingest(ctx, []byte(pandasDump), ""); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	stale := []byte(`framework: pandas
version: "1.5.0"
classes:
  - name: Panel
    methods: []
`)
	_, err := ing.Ingest(ctx, stale, "")
	if !errors.Is(err, structural.ErrStaleVersion) {
		t.Fatalf("Ingest() stale error = %v, want ErrStaleVersion", err)
	}
	if len(inv.frameworks) != 1 {
		t.Errorf("a refused dump must not invalidate the cache (got %v)", inv.frameworks)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

func (failingEmbedder) Dimensions() int { return 64 }

func TestIngest_DocFailureStillInvalidatesCache(t *testing.T) {
	// Once Apply swaps the structural snapshot, every cached verdict
	// for the framework is stale. A doc-indexing failure afterwards
	// must not leave them being served.
	idx := structural.NewIndex()
	inv := &fakeInvalidator{}
	ing := NewIngestor(idx, docindex.NewMemoryIndex(), failingEmbedder{}, inv, nil)

	_, err := ing.Ingest(context.Background(), []byte(pandasDump), "")
	if err == nil {
		t.Fatal("Ingest() succeeded with a failing embedder")
	}
	if idx.Version("pandas") != "v2.1.0" {
		t.Fatalf("structural snapshot was not applied: version = %q", idx.Version("pandas"))
	}
	if len(inv.frameworks) != 1 || inv.frameworks[0] != "pandas" {
		t.Errorf("cache invalidations = %v, want [pandas] despite the doc failure", inv.frameworks)
	}
}

func TestIngest_InvalidDump(t *testing.T) {
	ing, _, _, _ := newTestIngestor(t)

	if _, err := ing.Ingest(context.Background(), []byte("framework: [nope"), ""); err == nil {
		t.Fatal("Ingest() accepted malformed YAML")
	}
}

func TestIngestFile_MissingFile(t *testing.T) {
	ing, _, _, _ := newTestIngestor(t)

	if _, err := ing.IngestFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("IngestFile() succeeded on a missing file")
	}
}

func TestSplitParagraphs(t *testing.T) {
	if got := splitParagraphs("  \n  "); got != nil {
		t.Errorf("splitParagraphs(blank) = %v, want nil", got)
	}

	got := splitParagraphs("first paragraph\n\nsecond paragraph")
	if len(got) != 1 {
		t.Fatalf("short paragraphs should pack into one chunk, got %d", len(got))
	}

	long := make([]byte, 0, 3*chunkSize)
	for len(long) < 3*chunkSize {
		long = append(long, []byte("lorem ipsum dolor sit amet\n\n")...)
	}
	chunks := splitParagraphs(string(long))
	if len(chunks) < 2 {
		t.Fatalf("oversized doc should split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > chunkSize {
			t.Errorf("chunk of %d chars exceeds budget %d", len(c), chunkSize)
		}
	}
}

func TestWatcher_IngestsOnWrite(t *testing.T) {
	ing, idx, _, _ := newTestIngestor(t)
	dir := t.TempDir()

	w, err := NewWatcher(dir, ing, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// A non-dump file must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pandas.yaml"), []byte(pandasDump), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if idx.Version("pandas") == "v2.1.0" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dump was not ingested before the deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if len(idx.Frameworks()) != 1 {
		t.Errorf("frameworks = %v, want only pandas", idx.Frameworks())
	}
}
