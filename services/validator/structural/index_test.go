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
	"sync"
	"testing"
)

func pandasDump(version string) Framework {
	return Framework{
		Name:    "pandas",
		Version: version,
		Classes: []Class{
			{
				Name: "DataFrame",
				Methods: []Method{
					{
						Name: "merge",
						Signature: Signature{
							Params: []Parameter{
								{Name: "right", Type: "DataFrame"},
								{Name: "on", Type: "str", Optional: true},
								{Name: "how", Type: "str", Optional: true},
							},
							Returns: "DataFrame",
						},
					},
					{
						Name: "append",
						Signature: Signature{
							Params:  []Parameter{{Name: "other", Type: "DataFrame"}},
							Returns: "DataFrame",
						},
						Deprecated: true,
					},
				},
			},
			{
				Name: "Panel",
				Methods: []Method{
					{Name: "to_frame", Signature: Signature{Returns: "DataFrame"}},
				},
				Deprecated: true,
			},
		},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex()
	if err := idx.Apply(pandasDump("2.1.0")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return idx
}

func TestIndex_Lookup(t *testing.T) {
	idx := newTestIndex(t)

	t.Run("method found", func(t *testing.T) {
		res, err := idx.Lookup(context.Background(), "pandas", "DataFrame.merge")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if !res.Found {
			t.Fatal("expected Found")
		}
		if res.Entity.Signature == nil || len(res.Entity.Signature.Params) != 3 {
			t.Errorf("unexpected signature: %+v", res.Entity.Signature)
		}
		if res.Entity.Deprecated {
			t.Error("merge should not be deprecated")
		}
		if res.Version != "2.1.0" {
			t.Errorf("Version = %q, want 2.1.0", res.Version)
		}
	})

	t.Run("class found", func(t *testing.T) {
		res, err := idx.Lookup(context.Background(), "pandas", "DataFrame")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if !res.Found || res.Entity.Method != "" {
			t.Errorf("expected class entity, got %+v", res.Entity)
		}
	})

	t.Run("confirmed absence", func(t *testing.T) {
		res, err := idx.Lookup(context.Background(), "pandas", "DataFrame.merg_all")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if res.Found {
			t.Error("expected confirmed absence")
		}
	})

	t.Run("unknown framework is an error, not an absence", func(t *testing.T) {
		_, err := idx.Lookup(context.Background(), "numpy", "ndarray.reshape")
		if !errors.Is(err, ErrFrameworkNotRegistered) {
			t.Errorf("err = %v, want ErrFrameworkNotRegistered", err)
		}
	})

	t.Run("deprecation inherited from class", func(t *testing.T) {
		res, err := idx.Lookup(context.Background(), "pandas", "Panel.to_frame")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if !res.Found || !res.Entity.Deprecated {
			t.Errorf("Panel.to_frame should inherit deprecation, got %+v", res.Entity)
		}
	})

	t.Run("deprecated method flagged", func(t *testing.T) {
		res, _ := idx.Lookup(context.Background(), "pandas", "DataFrame.append")
		if !res.Found || !res.Entity.Deprecated {
			t.Errorf("DataFrame.append should be deprecated, got %+v", res.Entity)
		}
	})
}

func TestIndex_Candidates(t *testing.T) {
	idx := newTestIndex(t)

	t.Run("near miss ranks first", func(t *testing.T) {
		cands := idx.Candidates(context.Background(), "pandas", "DataFrame.mergee", 0.6, 3)
		if len(cands) == 0 {
			t.Fatal("expected candidates")
		}
		if cands[0].Path != "DataFrame.merge" {
			t.Errorf("top candidate = %q, want DataFrame.merge", cands[0].Path)
		}
		if cands[0].Similarity < 0.9 {
			t.Errorf("similarity = %v, want >= 0.9", cands[0].Similarity)
		}
	})

	t.Run("floor filters weak matches", func(t *testing.T) {
		cands := idx.Candidates(context.Background(), "pandas", "zzzzzzzzzzzzzzzzzzzz", 0.6, 3)
		if len(cands) != 0 {
			t.Errorf("expected no candidates, got %v", cands)
		}
	})

	t.Run("k caps results", func(t *testing.T) {
		cands := idx.Candidates(context.Background(), "pandas", "DataFrame.merge", 0.1, 2)
		if len(cands) > 2 {
			t.Errorf("expected at most 2 candidates, got %d", len(cands))
		}
	})

	t.Run("unknown framework yields nil", func(t *testing.T) {
		if cands := idx.Candidates(context.Background(), "numpy", "x", 0.6, 3); cands != nil {
			t.Errorf("expected nil, got %v", cands)
		}
	})
}

func TestIndex_Apply_VersionGate(t *testing.T) {
	idx := newTestIndex(t)

	t.Run("newer version replaces", func(t *testing.T) {
		if err := idx.Apply(pandasDump("2.2.0")); err != nil {
			t.Fatalf("Apply newer: %v", err)
		}
		if v := idx.Version("pandas"); v != "2.2.0" {
			t.Errorf("Version = %q, want 2.2.0", v)
		}
	})

	t.Run("same version allowed", func(t *testing.T) {
		if err := idx.Apply(pandasDump("2.2.0")); err != nil {
			t.Fatalf("Apply same: %v", err)
		}
	})

	t.Run("older version refused", func(t *testing.T) {
		err := idx.Apply(pandasDump("2.0.0"))
		if !errors.Is(err, ErrStaleVersion) {
			t.Errorf("err = %v, want ErrStaleVersion", err)
		}
	})

	t.Run("v-prefixed versions compare", func(t *testing.T) {
		if err := idx.Apply(pandasDump("v2.3.0")); err != nil {
			t.Fatalf("Apply v-prefixed: %v", err)
		}
	})
}

func TestIndex_Apply_InvalidDumps(t *testing.T) {
	idx := NewIndex()

	tests := []struct {
		name string
		dump Framework
	}{
		{"missing name", Framework{Version: "1.0.0", Classes: []Class{{Name: "A"}}}},
		{"bad version", Framework{Name: "fw", Version: "latest", Classes: []Class{{Name: "A"}}}},
		{"no classes", Framework{Name: "fw", Version: "1.0.0"}},
		{"unnamed class", Framework{Name: "fw", Version: "1.0.0", Classes: []Class{{}}}},
		{"duplicate class", Framework{Name: "fw", Version: "1.0.0", Classes: []Class{{Name: "A"}, {Name: "A"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := idx.Apply(tt.dump); !errors.Is(err, ErrInvalidDump) {
				t.Errorf("err = %v, want ErrInvalidDump", err)
			}
		})
	}
}

func TestIndex_ConcurrentReadsDuringApply(t *testing.T) {
	idx := newTestIndex(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := idx.Lookup(context.Background(), "pandas", "DataFrame.merge")
				if err != nil || !res.Found {
					t.Errorf("Lookup during Apply: found=%v err=%v", res.Found, err)
					return
				}
			}
		}()
	}

	for v := 3; v < 20; v++ {
		if err := idx.Apply(pandasDump("2.2." + string(rune('0'+v%10)))); err != nil && !errors.Is(err, ErrStaleVersion) {
			t.Fatalf("Apply: %v", err)
		}
	}
	wg.Wait()
}

func TestParseDump(t *testing.T) {
	data := []byte(`
framework: requests
version: 2.31.0
classes:
  - name: Session
    methods:
      - name: get
        signature:
          params:
            - name: url
              type: str
          returns: Response
      - name: post
        deprecated: false
        signature:
          params:
            - name: url
              type: str
            - name: data
              type: dict
              optional: true
          returns: Response
`)

	dump, err := ParseDump(data)
	if err != nil {
		t.Fatalf("ParseDump: %v", err)
	}
	if dump.Name != "requests" || dump.Version != "2.31.0" {
		t.Errorf("unexpected header: %+v", dump)
	}
	if len(dump.Classes) != 1 || len(dump.Classes[0].Methods) != 2 {
		t.Fatalf("unexpected shape: %+v", dump.Classes)
	}
	if dump.Classes[0].Methods[1].Signature.Params[1].Optional != true {
		t.Error("optional flag not parsed")
	}

	if _, err := ParseDump([]byte("{not yaml")); !errors.Is(err, ErrInvalidDump) {
		t.Errorf("malformed YAML: err = %v, want ErrInvalidDump", err)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"DataFrame.merge", "DataFrame.merge", 1, 1},
		{"DataFrame.merge", "dataframe.MERGE", 1, 1}, // case-insensitive
		{"DataFrame.merge", "DataFrame.merg", 0.9, 0.99},
		{"abc", "xyz", 0, 0},
		{"", "", 1, 1},
	}

	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
