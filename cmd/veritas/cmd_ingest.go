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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/veritas/services/validator/docindex"
	"github.com/AleutianAI/veritas/services/validator/embedding"
	"github.com/AleutianAI/veritas/services/validator/ingest"
	"github.com/AleutianAI/veritas/services/validator/structural"
)

// runIngest dry-runs dump files through the full ingestion path
// (parse, version gate, doc chunking) and reports what each would
// register. Exit code 1 if any dump is bad.
func runIngest(cmd *cobra.Command, args []string) {
	index := structural.NewIndex()
	ingestor := ingest.NewIngestor(index, docindex.NewMemoryIndex(),
		embedding.NewHashEmbedder(config.Embedder.Dims), nil, nil)

	failed := false
	for _, path := range args {
		res, err := ingestor.IngestFile(context.Background(), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("OK   %s: %s %s, %d entities, %d doc chunks\n",
			path, res.Framework, res.Version, res.Entities, res.Chunks)
	}
	if failed {
		os.Exit(1)
	}
}
