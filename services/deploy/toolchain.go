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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/secrets"
)

// Default Hardhat settings.
const (
	DefaultHardhatDir     = "contracts/hardhat"
	DefaultNPX            = "npx"
	DefaultCompileTimeout = 60 * time.Second
	DefaultDeployTimeout  = 120 * time.Second

	// PrivateKeyEnv is the variable the Hardhat network config reads the
	// deployer key from.
	PrivateKeyEnv = "DEPLOYER_PRIVATE_KEY"

	maxProcessOutput = 1 << 20
	waitDelay        = 2 * time.Second
)

// Artifact is the subset of a Hardhat build artifact the pipeline uses.
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// ScriptRun is the captured result of a deploy script.
type ScriptRun struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Toolchain compiles and deploys contracts from a workspace slot keyed by
// contract name.
//
// Implementations must return *CompileError when the compiler rejects the
// source, ErrTimeout when a step runs out of time, and
// ErrToolchainUnavailable when the tools are missing.
type Toolchain interface {
	// Compile saves source into the slot for name and compiles it.
	Compile(ctx context.Context, name, source string) (*Artifact, error)

	// RunScript saves script for name and runs it against network. A
	// script that exits non-zero is not an error; its output is returned.
	RunScript(ctx context.Context, name, script, network string) (*ScriptRun, error)

	// Cleanup removes the files written for name.
	Cleanup(name string) error
}

// =============================================================================
// Hardhat
// =============================================================================

// Hardhat drives a Hardhat project through npx.
//
// Thread Safety: Safe for concurrent use with distinct contract names.
// Callers serialize work on the same name.
type Hardhat struct {
	dir            string
	npx            string
	compileTimeout time.Duration
	deployTimeout  time.Duration
	privateKey     *secrets.Secret
}

// HardhatOption configures a Hardhat toolchain.
type HardhatOption func(*Hardhat)

// WithNPX overrides the npx executable.
func WithNPX(path string) HardhatOption {
	return func(h *Hardhat) {
		h.npx = path
	}
}

// WithCompileTimeout overrides DefaultCompileTimeout.
func WithCompileTimeout(d time.Duration) HardhatOption {
	return func(h *Hardhat) {
		h.compileTimeout = d
	}
}

// WithDeployTimeout overrides DefaultDeployTimeout.
func WithDeployTimeout(d time.Duration) HardhatOption {
	return func(h *Hardhat) {
		h.deployTimeout = d
	}
}

// WithPrivateKey sets the deployer key exported to deploy scripts.
func WithPrivateKey(key *secrets.Secret) HardhatOption {
	return func(h *Hardhat) {
		h.privateKey = key
	}
}

// NewHardhat creates a toolchain rooted at dir. An empty dir means
// DefaultHardhatDir.
func NewHardhat(dir string, opts ...HardhatOption) *Hardhat {
	if dir == "" {
		dir = DefaultHardhatDir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	h := &Hardhat{
		dir:            dir,
		npx:            DefaultNPX,
		compileTimeout: DefaultCompileTimeout,
		deployTimeout:  DefaultDeployTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dir returns the project directory.
func (h *Hardhat) Dir() string {
	return h.dir
}

// Available checks that npx is on PATH and the project directory exists.
func (h *Hardhat) Available() error {
	if _, err := exec.LookPath(h.npx); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrToolchainUnavailable, h.npx, err)
	}
	info, err := os.Stat(h.dir)
	if err != nil {
		return fmt.Errorf("%w: hardhat directory: %v", ErrToolchainUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrToolchainUnavailable, h.dir)
	}
	return nil
}

func (h *Hardhat) sourcePath(name string) string {
	return filepath.Join(h.dir, "contracts", name+".sol")
}

func (h *Hardhat) scriptPath(name string) string {
	return filepath.Join(h.dir, "scripts", "deploy_"+name+".js")
}

func (h *Hardhat) artifactPath(name string) string {
	return filepath.Join(h.dir, "artifacts", "contracts", name+".sol", name+".json")
}

// Compile writes contracts/<name>.sol and runs `npx hardhat compile`.
//
// # Outputs
//
//   - *Artifact: Decoded from artifacts/contracts/<name>.sol/<name>.json.
//   - error: *CompileError on a non-zero exit, ErrArtifactNotFound when the
//     build produced no artifact for name, ErrTimeout, or
//     ErrToolchainUnavailable.
func (h *Hardhat) Compile(ctx context.Context, name, source string) (*Artifact, error) {
	if err := h.Available(); err != nil {
		return nil, err
	}
	if err := writeFile(h.sourcePath(name), source); err != nil {
		return nil, err
	}

	run, err := h.execute(ctx, h.compileTimeout, nil, "hardhat", "compile")
	if err != nil {
		return nil, err
	}
	if run.ExitCode != 0 {
		output := run.Stderr
		if output == "" {
			output = run.Stdout
		}
		return nil, &CompileError{Output: output}
	}

	data, err := os.ReadFile(h.artifactPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	return &artifact, nil
}

// RunScript writes scripts/deploy_<name>.js and runs it with
// `npx hardhat run --network <network>`. The deployer key is passed in
// the environment, never on the command line.
func (h *Hardhat) RunScript(ctx context.Context, name, script, network string) (*ScriptRun, error) {
	if err := h.Available(); err != nil {
		return nil, err
	}
	path := h.scriptPath(name)
	if err := writeFile(path, script); err != nil {
		return nil, err
	}

	var env []string
	if h.privateKey.IsSet() {
		key, err := h.privateKey.Reveal()
		if err != nil {
			return nil, fmt.Errorf("reading deployer key: %w", err)
		}
		env = append(env, PrivateKeyEnv+"="+key)
	}

	rel, err := filepath.Rel(h.dir, path)
	if err != nil {
		rel = path
	}
	return h.execute(ctx, h.deployTimeout, env, "hardhat", "run", rel, "--network", network)
}

// Cleanup removes the contract source and deploy script for name. Missing
// files are not an error.
func (h *Hardhat) Cleanup(name string) error {
	var errs []error
	for _, path := range []string{h.sourcePath(name), h.scriptPath(name)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// execute runs npx with args inside the project directory.
func (h *Hardhat) execute(ctx context.Context, timeout time.Duration, env []string, args ...string) (*ScriptRun, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.npx, args...)
	cmd.Dir = h.dir
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxProcessOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxProcessOutput}

	slog.Debug("Executing hardhat",
		slog.String("command", h.npx),
		slog.Any("args", args),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	err := cmd.Run()
	run := &ScriptRun{Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Warn("Hardhat step timed out",
			slog.Any("args", args),
			slog.Duration("timeout", timeout),
		)
		return nil, fmt.Errorf("hardhat %s %w after %s", args[0], ErrTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			run.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrToolchainUnavailable, err)
		default:
			return nil, fmt.Errorf("running hardhat: %w", err)
		}
	}

	slog.Debug("Hardhat step finished",
		slog.Any("args", args),
		slog.Int("exit_code", run.ExitCode),
		slog.Duration("duration", time.Since(start)),
	)
	return run, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// limitedWriter discards output past limit bytes.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if remaining := lw.limit - lw.written; remaining < len(p) {
		if remaining <= 0 {
			return n, nil
		}
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += written
	if err != nil {
		return written, err
	}
	return n, nil
}

var _ Toolchain = (*Hardhat)(nil)
