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
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/veritas/services/validator"
	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/ingest"
	"github.com/AleutianAI/veritas/services/validator/memory"
	"github.com/AleutianAI/veritas/services/validator/structural"
	"github.com/AleutianAI/veritas/services/validator/temporal"
)

// runValidate checks one usage entirely offline: dumps from the
// configured directory, pattern history from the local store, and
// in-process documentation search. Exit code 0 means accepted, 2
// rejected.
func runValidate(cmd *cobra.Command, args []string) {
	if config.Dumps.Dir == "" {
		log.Fatal("dumps.dir must be configured for offline validation")
	}

	ctx := context.Background()
	index := structural.NewIndex()
	embedder := embedding.NewHashEmbedder(config.Embedder.Dims)
	docs := docindex.NewMemoryIndex()

	ingestor := ingest.NewIngestor(index, docs, embedder, nil, nil)
	ingestDumpDir(ctx, ingestor, config.Dumps.Dir, slog.Default())

	patterns, err := temporal.Open(temporal.DefaultConfig(filepath.Join(config.Storage.DataDir, "patterns")))
	if err != nil {
		log.Fatalf("failed to open the pattern store: %v", err)
	}
	defer patterns.Close()

	engine, err := validator.NewEngine(config.Engine, validator.Deps{
		Structural: index,
		Patterns:   patterns,
		Docs:       docs,
		Decisions:  memory.NewMemoryStore(),
		Embedder:   embedder,
	})
	if err != nil {
		log.Fatalf("failed to build the validation engine: %v", err)
	}

	req := validator.ValidationRequest{
		Framework:  validateFramework,
		EntityPath: validateEntity,
		Intent:     validateIntent,
	}
	for _, raw := range validateArgs {
		name, typ, found := strings.Cut(raw, ":")
		if !found {
			typ = name
			name = ""
		}
		req.Args = append(req.Args, validator.Argument{Name: name, Type: typ})
	}

	report, err := engine.Validate(ctx, req)
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}
	if report.Verdict != validator.VerdictAccepted {
		os.Exit(2)
	}
}
