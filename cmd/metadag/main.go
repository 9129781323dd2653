// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command metadag runs the contract pipeline from the command line.
//
// Every pipeline stage the HTTP service exposes is also a subcommand, so
// a contract can be validated, linted, rewritten, audited, generated or
// deployed without starting the server.
//
// # Usage
//
//	metadag validate Token.sol
//	metadag lint Token.sol --json
//	metadag rewrite Token.sol -o Token.fixed.sol
//	metadag audit Token.sol
//	metadag generate "an ERC20 token with burn"
//	metadag deploy Token.sol --network primordial
//	metadag serve --config metadag.yaml
//
// # Exit Codes
//
//   - 0: Success
//   - 1: Completed with findings
//   - 2: Failed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/MetaDAG/pkg/secrets"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the root command with args and maps the outcome to an exit
// code.
func execute(args []string) int {
	secrets.Init()
	defer secrets.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return CLIExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return CLIExitError
}
