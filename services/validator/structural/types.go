// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package structural holds the ground-truth API surface of ingested
// frameworks and answers existence and signature queries against it.
//
// The package distinguishes three answers, and the distinction is
// load-bearing for the engine's hard gate:
//
//   - entity exists (with its signature and deprecation flag)
//   - entity is confirmed absent from a known framework
//   - the framework itself is unknown (ErrFrameworkNotRegistered)
//
// Reads are served from an immutable snapshot swapped atomically on
// ingestion, so lookups never block behind writers and a validation
// in flight sees one consistent view.
package structural

// Parameter is one formal parameter of a method signature.
type Parameter struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Signature describes a callable entity's formal interface.
type Signature struct {
	Params  []Parameter `yaml:"params" json:"params"`
	Returns string      `yaml:"returns,omitempty" json:"returns,omitempty"`
}

// Method is one method of a class, keyed in dumps by Name.
type Method struct {
	Name       string    `yaml:"name" json:"name"`
	Signature  Signature `yaml:"signature" json:"signature"`
	Deprecated bool      `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
	Doc        string    `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// Class is one class (or module-level namespace) of a framework.
type Class struct {
	Name       string   `yaml:"name" json:"name"`
	Methods    []Method `yaml:"methods" json:"methods"`
	Deprecated bool     `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
	Doc        string   `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// Framework is a complete API dump for one framework version, the
// unit of ingestion. Version must be a valid semantic version
// ("v2.1.0" or "2.1.0"); stale dumps are refused.
type Framework struct {
	Name    string  `yaml:"framework" json:"framework"`
	Version string  `yaml:"version" json:"version"`
	Classes []Class `yaml:"classes" json:"classes"`
}

// Entity is the resolved target of a lookup: either a class or a
// single method addressed as "Class.method".
type Entity struct {
	Path       string
	Class      string
	Method     string // empty when the entity is the class itself
	Signature  *Signature
	Deprecated bool
}

// LookupResult is the structural layer's answer for one entity path
// within a known framework.
type LookupResult struct {
	// Found is true when the entity exists in the framework dump.
	// False means confirmed absence: the framework is known and the
	// entity is not in it.
	Found bool

	// Entity is populated when Found.
	Entity Entity

	// Version is the ingested framework version that answered.
	Version string
}

// Candidate is a near-miss entity path with its normalized string
// similarity to the queried path, in [0, 1].
type Candidate struct {
	Path       string
	Similarity float64
}
