// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package autofix

import (
	"log/slog"
	"regexp"
)

// =============================================================================
// REWRITE RULES
// =============================================================================

// MinimumPragma is the directive every rewritten source ends up with.
const MinimumPragma = "pragma solidity ^0.8.0;"

// maxPasses bounds the rewrite loop. Nested calls such as a.add(b.add(c))
// and chains such as c.current().add(1) need more than one pass.
const maxPasses = 16

// rewriteRule is a single regex substitution.
type rewriteRule struct {
	// name identifies the rule in debug logs.
	name string

	// pattern is matched against the whole source.
	pattern *regexp.Regexp

	// replacement uses regexp.Expand syntax (${1}).
	replacement string

	// apply replaces pattern matching for rules a regex cannot express.
	apply func(string) string
}

// rules run in order. Each targets an idiom removed from OpenZeppelin v5.x
// or made redundant by checked arithmetic in Solidity 0.8.
var rules = []rewriteRule{
	{name: "safemath-import", pattern: regexp.MustCompile(`import\s+['"]@openzeppelin/contracts/utils/math/SafeMath\.sol['"]\s*;?`)},
	{name: "safemath-using", pattern: regexp.MustCompile(`using\s+SafeMath\s+for\s+[\w\[\]]+\s*;`)},
	{name: "safemath-operators", apply: rewriteSafeMath},
	{name: "counters-import", pattern: regexp.MustCompile(`import\s+['"]@openzeppelin/contracts/utils/Counters\.sol['"]\s*;?`)},
	{name: "counters-using", pattern: regexp.MustCompile(`using\s+Counters\s+for\s+Counters\.Counter\s*;`)},
	{name: "counters-type", pattern: regexp.MustCompile(`Counters\.Counter`), replacement: "uint256"},
	{name: "counters-current", pattern: regexp.MustCompile(`(\w+)\.current\(\)`), replacement: "${1}"},
	{name: "counters-increment", pattern: regexp.MustCompile(`(\w+)\.increment\(\)`), replacement: "++${1}"},
	{name: "counters-decrement", pattern: regexp.MustCompile(`(\w+)\.decrement\(\)`), replacement: "--${1}"},
	{name: "exists", pattern: regexp.MustCompile(`\b_exists\(([^)]+)\)`), replacement: "ownerOf(${1}) != address(0)"},
}

var (
	inheritsOwnable    = regexp.MustCompile(`\bcontract\s+\w+\s+is\s+[^{]*\bOwnable\b`)
	ownableChained     = regexp.MustCompile(`\bOwnable\s*\(\s*[^)\s][^)]*\)`)
	ownableNoArgCall   = regexp.MustCompile(`(constructor\s*\([^)]*\)[^{;]*?)\bOwnable\s*\(\s*\)`)
	constructorHeader  = regexp.MustCompile(`(constructor\s*\([^)]*\)[^{;]*?)\s*\{`)
	pragmaDirective    = regexp.MustCompile(`pragma\s+solidity\s+[^;]+;`)
	constructorKeyword = regexp.MustCompile(`\bconstructor\s*\(`)
)

// RewriteKnownIdioms deterministically rewrites deprecated Solidity idioms.
//
// # Description
//
// Applies, in order: SafeMath removal (import, using-directive, and
// .add/.sub/.mul/.div to native operators), Counters removal (import,
// using-directive, type to uint256, .current/.increment/.decrement),
// _exists(x) to ownerOf(x) != address(0), Ownable(msg.sender) constructor
// chaining, and pragma normalization to ^0.8.0.
//
// # Inputs
//
//   - src: Solidity source text. May be malformed.
//
// # Outputs
//
//   - string: The rewritten source. Equal to src if nothing matched.
//
// # Limitations
//
//   - Textual only. `.add(` on a non-SafeMath receiver is rewritten too.
//   - Only the first constructor receives the Ownable chain.
//
// # Assumptions
//
//   - Pure function. Idempotent: RewriteKnownIdioms(RewriteKnownIdioms(s))
//     equals RewriteKnownIdioms(s).
func RewriteKnownIdioms(src string) (out string) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Rewrite panicked, returning input unchanged", slog.Any("panic", p))
			out = src
		}
	}()

	out = rewritePass(src)
	for i := 1; i < maxPasses; i++ {
		next := rewritePass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func rewritePass(src string) string {
	for _, rule := range rules {
		var next string
		if rule.apply != nil {
			next = rule.apply(src)
		} else {
			next = rule.pattern.ReplaceAllString(src, rule.replacement)
		}
		if next != src {
			slog.Debug("Rewrite rule applied", slog.String("rule", rule.name))
		}
		src = next
	}
	src = chainOwnable(src)
	return pragmaDirective.ReplaceAllString(src, MinimumPragma)
}

// chainOwnable makes the constructor of an Ownable contract call
// Ownable(msg.sender), as required by OpenZeppelin v5.x.
func chainOwnable(src string) string {
	if !constructorKeyword.MatchString(src) || !inheritsOwnable.MatchString(src) {
		return src
	}
	if ownableChained.MatchString(src) {
		return src
	}

	if loc := ownableNoArgCall.FindStringSubmatchIndex(src); loc != nil {
		var dst []byte
		dst = ownableNoArgCall.ExpandString(dst, "${1}Ownable(msg.sender)", src, loc)
		return src[:loc[0]] + string(dst) + src[loc[1]:]
	}

	loc := constructorHeader.FindStringSubmatchIndex(src)
	if loc == nil {
		return src
	}
	var dst []byte
	dst = constructorHeader.ExpandString(dst, "${1} Ownable(msg.sender) {", src, loc)
	return src[:loc[0]] + string(dst) + src[loc[1]:]
}
