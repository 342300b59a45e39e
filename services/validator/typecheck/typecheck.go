// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typecheck compares a proposed argument list against a
// structural signature. The result is binary: the call shape either
// fits the signature or it does not. Graded confidence lives in the
// other layers; this one only answers "could this call possibly be
// well-formed".
package typecheck

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/veritas/services/validator/structural"
)

// Arg is one proposed argument. Name empty means positional; Type
// empty means unstated and matches any parameter type.
type Arg struct {
	Name string
	Type string
}

// Result explains a check.
type Result struct {
	OK     bool
	Reason string // set when !OK
}

// Check verifies args against sig.
//
// Matching rules:
//   - Positional args bind to parameters in order; named args bind
//     to the parameter with that name. Positional args may not
//     follow named ones.
//   - A parameter may be bound at most once.
//   - Every non-optional parameter must be bound... unless the call
//     passes no args at all, which is read as "arguments unstated"
//     and only checked for the signature existing.
//   - Types compare case-insensitively with whitespace stripped.
//     The wildcards "", "?", "any", "object", and "interface{}"
//     match every type, in either position.
func Check(sig *structural.Signature, args []Arg) Result {
	if sig == nil {
		return Result{OK: false, Reason: "entity is not callable"}
	}
	if len(args) == 0 {
		// Caller did not state arguments; nothing to contradict.
		return Result{OK: true}
	}
	if len(args) > len(sig.Params) {
		return Result{OK: false, Reason: "more arguments than parameters"}
	}

	bound := make([]bool, len(sig.Params))
	sawNamed := false

	for i, arg := range args {
		var param *structural.Parameter
		var slot int

		if arg.Name != "" {
			sawNamed = true
			found := false
			for j := range sig.Params {
				if sig.Params[j].Name == arg.Name {
					param, slot, found = &sig.Params[j], j, true
					break
				}
			}
			if !found {
				return Result{OK: false, Reason: "no parameter named " + arg.Name}
			}
		} else {
			if sawNamed {
				return Result{OK: false, Reason: "positional argument after named argument"}
			}
			param, slot = &sig.Params[i], i
		}

		if bound[slot] {
			return Result{OK: false, Reason: "parameter " + param.Name + " bound twice"}
		}
		bound[slot] = true

		if !typesMatch(arg.Type, param.Type) {
			return Result{OK: false, Reason: "argument " + describeArg(arg, slot) + " has type " + arg.Type + ", parameter wants " + param.Type}
		}
	}

	for j := range sig.Params {
		if !bound[j] && !sig.Params[j].Optional {
			return Result{OK: false, Reason: "missing required parameter " + sig.Params[j].Name}
		}
	}
	return Result{OK: true}
}

// Score maps a Result onto the consensus scale.
func Score(r Result) float64 {
	if r.OK {
		return 1
	}
	return 0
}

func typesMatch(argType, paramType string) bool {
	a := canonical(argType)
	p := canonical(paramType)
	if isWildcard(a) || isWildcard(p) {
		return true
	}
	return a == p
}

func canonical(t string) string {
	return strings.ToLower(strings.Join(strings.Fields(t), ""))
}

func isWildcard(t string) bool {
	switch t {
	case "", "?", "any", "object", "interface{}":
		return true
	}
	return false
}

func describeArg(arg Arg, slot int) string {
	if arg.Name != "" {
		return arg.Name
	}
	return "#" + strconv.Itoa(slot)
}
