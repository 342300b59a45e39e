// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package temporal

import "strings"

// untypedSlot marks an argument whose type the caller did not state.
// Distinct shapes must not collapse, so the placeholder is explicit
// rather than empty.
const untypedSlot = "?"

// Normalize builds the canonical pattern key for a usage.
//
// Two usages that differ only in literal argument values map to the
// same key: the key erases values and keeps only the framework, the
// entity path, and the ordered argument type list. Types are
// lowercased and stripped of whitespace; an empty type becomes "?".
//
// Example:
//
//	Normalize("pandas", "DataFrame.merge", []string{"DataFrame", "", "str"})
//	// "pandas|DataFrame.merge(dataframe,?,str)"
func Normalize(framework, entityPath string, argTypes []string) string {
	var b strings.Builder
	b.WriteString(framework)
	b.WriteByte('|')
	b.WriteString(entityPath)
	b.WriteByte('(')
	for i, t := range argTypes {
		if i > 0 {
			b.WriteByte(',')
		}
		t = strings.ToLower(strings.Join(strings.Fields(t), ""))
		if t == "" {
			t = untypedSlot
		}
		b.WriteString(t)
	}
	b.WriteByte(')')
	return b.String()
}
