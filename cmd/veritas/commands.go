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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string

	// validate flags
	validateFramework string
	validateEntity    string
	validateArgs      []string
	validateIntent    string

	// record flags
	recordFramework string
	recordEntity    string
	recordArgTypes  []string
	recordSuccess   bool

	rootCmd = &cobra.Command{
		Use:   "veritas",
		Short: "A consensus validation engine for AI-proposed API usage",
		Long: `Veritas cross-checks proposed API calls against a framework's
real API surface, its observed success history, its documentation,
and past decisions, and accepts only what the evidence supports.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the validation HTTP service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate one proposed usage offline against local dumps",
		Run:   runValidate, // Defined in cmd_validate.go
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest [dump.yaml...]",
		Short: "Check framework dump files and report what they register",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIngest, // Defined in cmd_ingest.go
	}

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Record an observed outcome into the local pattern store",
		Run:   runRecord, // Defined in cmd_record.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "veritas.yaml", "Path to the config file")

	validateCmd.Flags().StringVar(&validateFramework, "framework", "", "Framework name (required)")
	validateCmd.Flags().StringVar(&validateEntity, "entity", "", "Entity path, e.g. DataFrame.merge (required)")
	validateCmd.Flags().StringArrayVar(&validateArgs, "arg", nil, "Proposed argument as name:type (repeatable)")
	validateCmd.Flags().StringVar(&validateIntent, "intent", "", "Free-text intent of the call")
	_ = validateCmd.MarkFlagRequired("framework")
	_ = validateCmd.MarkFlagRequired("entity")

	recordCmd.Flags().StringVar(&recordFramework, "framework", "", "Framework name (required)")
	recordCmd.Flags().StringVar(&recordEntity, "entity", "", "Entity path (required)")
	recordCmd.Flags().StringArrayVar(&recordArgTypes, "arg-type", nil, "Argument type in call order (repeatable)")
	recordCmd.Flags().BoolVar(&recordSuccess, "success", false, "Whether the call succeeded")
	_ = recordCmd.MarkFlagRequired("framework")
	_ = recordCmd.MarkFlagRequired("entity")

	rootCmd.AddCommand(serveCmd, validateCmd, ingestCmd, recordCmd)
}
