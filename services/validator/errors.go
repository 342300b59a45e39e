// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import "errors"

// Sentinel errors returned by the validation engine. Callers match
// with errors.Is; HTTP handlers map them to status codes.
var (
	// ErrMalformedRequest is returned when a request is missing
	// required fields or fails field validation. The request never
	// enters the lifecycle.
	ErrMalformedRequest = errors.New("malformed validation request")

	// ErrFrameworkNotRegistered is returned when the structural layer
	// has no knowledge of the requested framework at all. This is
	// deliberately distinct from a confirmed absence of an entity
	// within a known framework.
	ErrFrameworkNotRegistered = errors.New("framework not registered")

	// ErrStructuralUnavailable is returned when the structural layer
	// timed out or errored. Structural ground truth is mandatory, so
	// the request fails rather than degrading.
	ErrStructuralUnavailable = errors.New("structural layer unavailable")

	// ErrRecordOutcomeFailed is returned when an outcome could not be
	// persisted after exhausting retries. The caller may replay it.
	ErrRecordOutcomeFailed = errors.New("record outcome failed")
)
