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
	"regexp"
	"strings"
)

var (
	fencedSolidity = regexp.MustCompile("(?is)```solidity[ \\t]*\\r?\\n?(.*?)```")
	pragmaStart    = regexp.MustCompile(`(?is)pragma solidity.*?;`)
	numberedLine   = regexp.MustCompile(`^\d+\.`)
)

// ExtractSource pulls Solidity source out of a free-form model reply.
//
// # Description
//
// Tries three strategies in order and returns the first non-empty result:
//
//  1. The body of the first fenced block tagged `solidity` (any case).
//  2. Everything from the first `pragma solidity ...;` to the end.
//  3. A line filter that drops blank lines, markdown headers, emphasis
//     lines, "Changes and Explanations:" and numbered-list lines, keeping
//     the remaining lines from the first one that mentions
//     `pragma solidity`.
//
// # Outputs
//
//   - string: Trimmed source, or "" when no strategy found any.
func ExtractSource(reply string) string {
	if m := fencedSolidity.FindStringSubmatch(reply); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code
		}
	}

	if loc := pragmaStart.FindStringIndex(reply); loc != nil {
		return strings.TrimSpace(reply[loc[0]:])
	}

	return filterLines(reply)
}

func filterLines(reply string) string {
	var kept []string
	started := false

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "**"):
			continue
		case line == "Changes and Explanations:":
			continue
		case numberedLine.MatchString(line):
			continue
		}

		if !started && strings.Contains(strings.ToLower(line), "pragma solidity") {
			started = true
		}
		if started {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
