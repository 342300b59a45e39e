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

import (
	"math"
	"testing"
	"time"
)

const horizon = 365 * 24 * time.Hour

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore_LaplaceSmoothing(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		success int64
		failure int64
		want    float64
	}{
		{"no history sits at prior", 0, 0, 0.5},
		{"mostly failing", 2, 8, 0.25},
		{"mostly succeeding", 8, 2, 0.75},
		{"single success never certain", 1, 0, 2.0 / 3.0},
		{"single failure never zero", 0, 1, 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stats{Success: tt.success, Failure: tt.failure, LastObservedAt: now}
			got := Score(s, now, horizon)
			if !almostEqual(got, tt.want) {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_Decay(t *testing.T) {
	now := time.Now()
	fresh := Stats{Success: 18, Failure: 0} // raw = 19/20 = 0.95

	t.Run("within horizon no decay", func(t *testing.T) {
		s := fresh
		s.LastObservedAt = now.Add(-horizon / 2)
		if got := Score(s, now, horizon); !almostEqual(got, 0.95) {
			t.Errorf("Score = %v, want 0.95", got)
		}
	})

	t.Run("exactly at horizon no decay", func(t *testing.T) {
		s := fresh
		s.LastObservedAt = now.Add(-horizon)
		if got := Score(s, now, horizon); !almostEqual(got, 0.95) {
			t.Errorf("Score = %v, want 0.95", got)
		}
	})

	t.Run("halfway past horizon fades halfway to prior", func(t *testing.T) {
		s := fresh
		s.LastObservedAt = now.Add(-horizon - horizon/2)
		want := 0.5 + (0.95-0.5)*0.5
		if got := Score(s, now, horizon); math.Abs(got-want) > 1e-6 {
			t.Errorf("Score = %v, want %v", got, want)
		}
	})

	t.Run("beyond twice horizon floors at prior", func(t *testing.T) {
		s := fresh
		s.LastObservedAt = now.Add(-3 * horizon)
		if got := Score(s, now, horizon); !almostEqual(got, 0.5) {
			t.Errorf("Score = %v, want 0.5", got)
		}
	})

	t.Run("stale failures also pulled up to prior", func(t *testing.T) {
		s := Stats{Success: 0, Failure: 18, LastObservedAt: now.Add(-3 * horizon)}
		if got := Score(s, now, horizon); !almostEqual(got, 0.5) {
			t.Errorf("Score = %v, want 0.5", got)
		}
	})

	t.Run("zero horizon disables decay", func(t *testing.T) {
		s := fresh
		s.LastObservedAt = now.Add(-10 * horizon)
		if got := Score(s, now, 0); !almostEqual(got, 0.95) {
			t.Errorf("Score = %v, want 0.95", got)
		}
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		framework string
		path      string
		argTypes  []string
		want      string
	}{
		{
			"typed args lowercased",
			"pandas", "DataFrame.merge", []string{"DataFrame", "STR"},
			"pandas|DataFrame.merge(dataframe,str)",
		},
		{
			"untyped slot marked",
			"pandas", "DataFrame.merge", []string{"DataFrame", ""},
			"pandas|DataFrame.merge(dataframe,?)",
		},
		{
			"no args",
			"requests", "Session.close", nil,
			"requests|Session.close()",
		},
		{
			"whitespace stripped from types",
			"fw", "C.m", []string{"dict [str, int]"},
			"fw|C.m(dict[str,int])",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.framework, tt.path, tt.argTypes)
			if got != tt.want {
				t.Errorf("Normalize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_DistinctShapesStayDistinct(t *testing.T) {
	a := Normalize("fw", "C.m", []string{"str"})
	b := Normalize("fw", "C.m", []string{"str", "str"})
	c := Normalize("fw", "C.m", []string{""})
	if a == b || a == c {
		t.Errorf("shapes collapsed: %q %q %q", a, b, c)
	}
}
