// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deploy

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for deploy operations.
var (
	// ErrCompileFailed indicates the compiler rejected the source.
	ErrCompileFailed = errors.New("compilation failed")

	// ErrArtifactNotFound indicates compilation succeeded but produced no
	// artifact for the contract name, usually because the file declares a
	// differently named contract.
	ErrArtifactNotFound = errors.New("compiled artifact not found")

	// ErrTimeout indicates an external step exceeded its time budget.
	ErrTimeout = errors.New("timed out")

	// ErrToolchainUnavailable indicates npx or the Hardhat workspace is missing.
	ErrToolchainUnavailable = errors.New("toolchain unavailable")

	// ErrParseResult indicates the deploy script printed no usable JSON result.
	ErrParseResult = errors.New("failed to parse deployment result")

	// ErrDeployFailed indicates the deploy script reported a failure.
	ErrDeployFailed = errors.New("deployment failed")

	// ErrInvalidContractName indicates a supplied name is not a Solidity identifier.
	ErrInvalidContractName = errors.New("invalid contract name")

	// ErrInvalidNetwork indicates a network name with characters Hardhat
	// would not accept.
	ErrInvalidNetwork = errors.New("invalid network name")
)

// CompileError carries the compiler output of a rejected compilation.
type CompileError struct {
	// Output is the compiler's diagnostic text.
	Output string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCompileFailed, e.Output)
}

// Unwrap returns ErrCompileFailed for errors.Is.
func (e *CompileError) Unwrap() error {
	return ErrCompileFailed
}

// ErrorKind labels a failed deployment for clients and metrics.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindCompile    ErrorKind = "compile"
	KindTimeout    ErrorKind = "timeout"
	KindToolchain  ErrorKind = "toolchain"
	KindParse      ErrorKind = "parse"
	KindDeployment ErrorKind = "deployment"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidContractName), errors.Is(err, ErrInvalidNetwork):
		return KindValidation
	case errors.Is(err, ErrCompileFailed), errors.Is(err, ErrArtifactNotFound):
		return KindCompile
	case errors.Is(err, ErrParseResult):
		return KindParse
	case errors.Is(err, ErrDeployFailed):
		return KindDeployment
	default:
		return KindToolchain
	}
}
