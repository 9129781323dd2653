// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lint runs solhint over Solidity source and classifies its output.
//
// The runner is the static-analysis step of the audit loop:
//
//	Generate → LINT → Rewrite + Repair → LINT → Improvements
//
// # Graceful Degradation
//
// A missing solhint binary is not an error. The run reports success with
// no findings and Available=false, so the pipeline keeps working on hosts
// without Node tooling. Any other execution problem (timeout, garbage
// output, crash without output) is reported as a failed run with Error set.
//
// # Classification
//
// solhint's text output is classified line by line, by substring, in this
// priority order:
//
//	| Line                              | Bucket   |
//	|-----------------------------------|----------|
//	| blank, or starts with solhint     | skipped  |
//	| contains "error" (any case)       | Errors   |
//	| contains "warning" (any case)     | Warnings |
//	| starts with ✓                     | skipped  |
//	| anything else                     | Issues   |
//
// # Usage
//
//	runner := lint.NewRunner(lint.WithConfigPath(".solhint.json"))
//	result := runner.Lint(ctx, source)
//	if !result.Success {
//	    // findings or an execution fault
//	}
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package lint
