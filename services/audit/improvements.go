// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/MetaDAG/pkg/solidity"
)

var (
	contractKeyword = regexp.MustCompile(`\bcontract\b`)
	structKeyword   = regexp.MustCompile(`\bstruct\b`)
	ownerOfZero     = regexp.MustCompile(`ownerOf\([^)]*\)\s*!=\s*address\(0\)`)
	counterImport   = regexp.MustCompile(`import\s+["']@openzeppelin/contracts/utils/Counters\.sol["']\s*;`)
	pragma08        = regexp.MustCompile(`pragma\s+solidity\s+\^0\.8`)
)

// Improvements groups the heuristic differences found between an original
// and a fixed contract.
//
// These are presence and count checks on raw text, not semantic
// verification. A renamed identifier can trip them.
type Improvements struct {
	Security      []string `json:"security_improvements"`
	Functionality []string `json:"functionality_improvements"`
	BestPractice  []string `json:"best_practice_improvements"`
	Structural    []string `json:"structural_improvements"`
	Total         int      `json:"total_improvements"`
}

// DetectImprovements compares original and fixed source.
//
// # Description
//
// Each check is independent of the others:
//
//   - structural: more import statements, a contract or struct keyword
//     that was absent before.
//   - security: ReentrancyGuard or nonReentrant newly present.
//   - functionality: more require( calls.
//   - best practice: _exists( replaced with an ownerOf(..) != address(0)
//     comparison, or an Ownable() no-arg base call removed.
//
// # Outputs
//
//   - Improvements: Lists are never nil. Total is the sum of their lengths.
func DetectImprovements(original, fixed string) Improvements {
	imp := Improvements{
		Security:      []string{},
		Functionality: []string{},
		BestPractice:  []string{},
		Structural:    []string{},
	}

	if delta := solidity.ImportCount(fixed) - solidity.ImportCount(original); delta > 0 {
		imp.Structural = append(imp.Structural, fmt.Sprintf("Added %d import statements", delta))
	}
	if newlyMatches(contractKeyword, original, fixed) {
		imp.Structural = append(imp.Structural, "Added contract declaration")
	}
	if newlyMatches(structKeyword, original, fixed) {
		imp.Structural = append(imp.Structural, "Added struct definition")
	}

	if newlyContains(original, fixed, "ReentrancyGuard") {
		imp.Security = append(imp.Security, "Added ReentrancyGuard protection")
	}
	if newlyContains(original, fixed, "nonReentrant") {
		imp.Security = append(imp.Security, "Added nonReentrant modifier")
	}

	if strings.Count(fixed, "require(") > strings.Count(original, "require(") {
		imp.Functionality = append(imp.Functionality, "Added input validation")
	}

	if strings.Contains(original, "_exists(") && !strings.Contains(fixed, "_exists(") && ownerOfZero.MatchString(fixed) {
		imp.BestPractice = append(imp.BestPractice, "Fixed ERC721 existence check")
	}
	if strings.Contains(original, "Ownable()") && !strings.Contains(fixed, "Ownable()") {
		imp.BestPractice = append(imp.BestPractice, "Fixed constructor inheritance")
	}

	imp.Total = len(imp.Security) + len(imp.Functionality) + len(imp.BestPractice) + len(imp.Structural)
	return imp
}

func newlyContains(original, fixed, token string) bool {
	return strings.Contains(fixed, token) && !strings.Contains(original, token)
}

func newlyMatches(re *regexp.Regexp, original, fixed string) bool {
	return re.MatchString(fixed) && !re.MatchString(original)
}

// Keys of the map returned by FixChecks.
const (
	CheckOwnableConstructor = "ownable_constructor"
	CheckCountersImport     = "counters_import"
	CheckCountersUsage      = "counters_usage"
	CheckSafeMathRemoved    = "safemath_removed"
	CheckExistsFixed        = "exists_fixed"
	CheckSolidityVersion    = "solidity_version"
)

// FixChecks reports which of the known OpenZeppelin v5 migrations are
// visible in fixed. The removal checks are only true when the original
// actually had the deprecated construct.
func FixChecks(original, fixed string) map[string]bool {
	return map[string]bool{
		CheckOwnableConstructor: strings.Contains(fixed, "Ownable(msg.sender)"),
		CheckCountersImport:     counterImport.MatchString(original) && !counterImport.MatchString(fixed),
		CheckCountersUsage:      strings.Contains(original, "Counters.Counter") && !strings.Contains(fixed, "Counters.Counter"),
		CheckSafeMathRemoved:    strings.Contains(original, "SafeMath") && !strings.Contains(fixed, "SafeMath"),
		CheckExistsFixed:        strings.Contains(original, "_exists(") && !strings.Contains(fixed, "_exists("),
		CheckSolidityVersion:    pragma08.MatchString(fixed),
	}
}
