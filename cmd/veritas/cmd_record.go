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
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/veritas/services/validator/temporal"
)

// runRecord writes one observed outcome straight into the local
// pattern store. Intended for batch backfills and scripts running on
// the same host as the service data directory.
func runRecord(cmd *cobra.Command, args []string) {
	cfg := temporal.DefaultConfig(filepath.Join(config.Storage.DataDir, "patterns"))
	cfg.Retries = config.Engine.OutcomeRetries
	store, err := temporal.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open the pattern store: %v", err)
	}
	defer store.Close()

	key := temporal.Normalize(recordFramework, recordEntity, recordArgTypes)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.RecordOutcome(ctx, key, recordFramework, recordSuccess, time.Now()); err != nil {
		log.Fatalf("failed to record the outcome: %v", err)
	}

	stats, _, err := store.Get(ctx, key)
	if err != nil {
		log.Fatalf("failed to read back the pattern: %v", err)
	}
	fmt.Printf("recorded: %s (%d successes, %d failures)\n", key, stats.Success, stats.Failure)
}
