// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package structural

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for structural queries and ingestion.
var (
	// ErrFrameworkNotRegistered means the index holds no dump for the
	// requested framework. Callers must not conflate this with a
	// confirmed absence of an entity inside a known framework.
	ErrFrameworkNotRegistered = errors.New("framework not registered")

	// ErrStaleVersion means an ingested dump carries a version older
	// than the one already indexed.
	ErrStaleVersion = errors.New("framework dump version is older than indexed version")

	// ErrInvalidDump means a dump failed structural validation.
	ErrInvalidDump = errors.New("invalid framework dump")
)

// =============================================================================
// Index
// =============================================================================

// frameworkTable is the immutable per-framework lookup structure.
type frameworkTable struct {
	version  string
	entities map[string]Entity
	paths    []string // sorted, for deterministic fuzzy scans
}

// snapshot is one immutable view of every ingested framework.
type snapshot struct {
	frameworks map[string]*frameworkTable
}

// Index answers structural queries from an atomically swapped
// snapshot.
//
// Thread Safety: Lookup, Candidates, and Frameworks are lock-free and
// safe for unbounded concurrency. Apply serializes writers with a
// mutex and publishes a fresh snapshot with a single atomic store,
// so readers never observe a half-ingested framework.
type Index struct {
	snap atomic.Pointer[snapshot]

	writeMu sync.Mutex
	logger  *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for ingestion events.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// NewIndex creates an empty Index.
func NewIndex(opts ...Option) *Index {
	idx := &Index{logger: slog.Default()}
	for _, opt := range opts {
		opt(idx)
	}
	idx.snap.Store(&snapshot{frameworks: map[string]*frameworkTable{}})
	return idx
}

// Lookup resolves an entity path within a framework.
//
// Inputs:
//   - ctx: unused here; the in-memory snapshot read cannot block.
//     Kept so networked implementations of the same surface can
//     honor cancellation.
//   - framework: framework name as ingested (case-sensitive).
//   - entityPath: "Class" or "Class.method".
//
// Outputs:
//   - LookupResult: Found=false is a confirmed absence.
//   - error: ErrFrameworkNotRegistered when the framework is unknown.
func (idx *Index) Lookup(_ context.Context, framework, entityPath string) (LookupResult, error) {
	table, ok := idx.snap.Load().frameworks[framework]
	if !ok {
		return LookupResult{}, fmt.Errorf("%w: %q", ErrFrameworkNotRegistered, framework)
	}

	entity, found := table.entities[entityPath]
	if !found {
		return LookupResult{Found: false, Version: table.version}, nil
	}
	return LookupResult{Found: true, Entity: entity, Version: table.version}, nil
}

// Candidates returns up to k entity paths of the framework whose
// similarity to entityPath is at least floor, best first. A missing
// framework yields nil; the caller has already distinguished that
// case through Lookup.
func (idx *Index) Candidates(_ context.Context, framework, entityPath string, floor float64, k int) []Candidate {
	table, ok := idx.snap.Load().frameworks[framework]
	if !ok || k <= 0 {
		return nil
	}

	candidates := make([]Candidate, 0, k)
	for _, path := range table.paths {
		if path == entityPath {
			continue
		}
		if sim := similarity(path, entityPath); sim >= floor {
			candidates = append(candidates, Candidate{Path: path, Similarity: sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Frameworks returns the names of all ingested frameworks, sorted.
func (idx *Index) Frameworks() []string {
	snap := idx.snap.Load()
	names := make([]string, 0, len(snap.frameworks))
	for name := range snap.frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version returns the ingested version of a framework, or "" when
// the framework is unknown.
func (idx *Index) Version(framework string) string {
	if table, ok := idx.snap.Load().frameworks[framework]; ok {
		return table.version
	}
	return ""
}

// Apply ingests a framework dump, replacing any previous dump for
// the same framework. Dumps older than the indexed version are
// refused with ErrStaleVersion; re-ingesting the same version is
// allowed (doc re-ingestion reuses it).
func (idx *Index) Apply(dump Framework) error {
	if err := validateDump(dump); err != nil {
		return err
	}

	table, err := buildTable(dump)
	if err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old := idx.snap.Load()
	if prev, ok := old.frameworks[dump.Name]; ok {
		if semver.Compare(canonicalVersion(dump.Version), canonicalVersion(prev.version)) < 0 {
			return fmt.Errorf("%w: %s %s < %s", ErrStaleVersion, dump.Name, dump.Version, prev.version)
		}
	}

	next := &snapshot{frameworks: make(map[string]*frameworkTable, len(old.frameworks)+1)}
	for name, t := range old.frameworks {
		next.frameworks[name] = t
	}
	next.frameworks[dump.Name] = table
	idx.snap.Store(next)

	idx.logger.Info("framework ingested",
		"framework", dump.Name,
		"version", dump.Version,
		"entities", len(table.entities),
	)
	return nil
}

// ParseDump decodes a YAML framework dump.
func ParseDump(data []byte) (Framework, error) {
	var dump Framework
	if err := yaml.Unmarshal(data, &dump); err != nil {
		return Framework{}, fmt.Errorf("%w: %v", ErrInvalidDump, err)
	}
	return dump, nil
}

// =============================================================================
// Internal
// =============================================================================

func validateDump(dump Framework) error {
	if dump.Name == "" {
		return fmt.Errorf("%w: missing framework name", ErrInvalidDump)
	}
	if !semver.IsValid(canonicalVersion(dump.Version)) {
		return fmt.Errorf("%w: version %q is not semver", ErrInvalidDump, dump.Version)
	}
	if len(dump.Classes) == 0 {
		return fmt.Errorf("%w: framework %q has no classes", ErrInvalidDump, dump.Name)
	}
	return nil
}

// canonicalVersion accepts both "2.1.0" and "v2.1.0".
func canonicalVersion(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func buildTable(dump Framework) (*frameworkTable, error) {
	entities := make(map[string]Entity)
	for _, class := range dump.Classes {
		if class.Name == "" {
			return nil, fmt.Errorf("%w: framework %q has a class with no name", ErrInvalidDump, dump.Name)
		}
		if _, dup := entities[class.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate class %q", ErrInvalidDump, class.Name)
		}
		entities[class.Name] = Entity{
			Path:       class.Name,
			Class:      class.Name,
			Deprecated: class.Deprecated,
		}

		for _, method := range class.Methods {
			if method.Name == "" {
				return nil, fmt.Errorf("%w: class %q has a method with no name", ErrInvalidDump, class.Name)
			}
			path := class.Name + "." + method.Name
			if _, dup := entities[path]; dup {
				return nil, fmt.Errorf("%w: duplicate method %q", ErrInvalidDump, path)
			}
			sig := method.Signature
			entities[path] = Entity{
				Path:   path,
				Class:  class.Name,
				Method: method.Name,
				// A method on a deprecated class is itself deprecated.
				Deprecated: method.Deprecated || class.Deprecated,
				Signature:  &sig,
			}
		}
	}

	paths := make([]string, 0, len(entities))
	for path := range entities {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return &frameworkTable{
		version:  dump.Version,
		entities: entities,
		paths:    paths,
	}, nil
}
