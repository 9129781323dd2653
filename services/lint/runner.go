// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCommand is the solhint executable name.
	DefaultCommand = "solhint"

	// DefaultConfigPath is the solhint rule file looked up by default.
	DefaultConfigPath = ".solhint.json"

	// DefaultTimeout bounds a single lint run.
	DefaultTimeout = 30 * time.Second

	// DefaultProbeTimeout bounds the `--version` availability probe.
	DefaultProbeTimeout = 10 * time.Second

	// contentPlaceholder replaces the temp file path in linter output.
	contentPlaceholder = "<content>"

	// waitDelay bounds how long a killed linter's pipes may stay open.
	waitDelay = 2 * time.Second
)

// =============================================================================
// LINT RUNNER
// =============================================================================

// Runner executes solhint and classifies its output.
//
// Description:
//
//	Probes for the linter lazily on first use (deduplicated across
//	concurrent callers) and caches the answer. Each Lint call writes the
//	source to a private temp file, runs the linter with a timeout, and
//	deletes the file on every exit path.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	command      string
	configPath   string
	timeout      time.Duration
	probeTimeout time.Duration
	workingDir   string

	availMu   sync.RWMutex
	detected  bool
	available bool
	probes    singleflight.Group
}

// Option configures the Runner.
type Option func(*Runner)

// WithCommand overrides the linter executable.
func WithCommand(command string) Option {
	return func(r *Runner) {
		r.command = command
	}
}

// WithConfigPath sets the solhint rule file. A path that does not exist
// is ignored with a warning and solhint falls back to its own discovery.
func WithConfigPath(path string) Option {
	return func(r *Runner) {
		r.configPath = path
	}
}

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithProbeTimeout sets the availability probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.probeTimeout = d
	}
}

// WithWorkingDir sets the working directory for linter execution.
func WithWorkingDir(dir string) Option {
	return func(r *Runner) {
		r.workingDir = dir
	}
}

// NewRunner creates a new solhint runner.
//
// Inputs:
//
//	opts - Optional configuration options
//
// Outputs:
//
//	*Runner - The configured runner
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		command:      DefaultCommand,
		configPath:   DefaultConfigPath,
		timeout:      DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.configPath != "" {
		abs, err := filepath.Abs(r.configPath)
		if err == nil {
			r.configPath = abs
		}
		if _, err := os.Stat(r.configPath); err != nil {
			slog.Warn("solhint config not found, using linter defaults",
				slog.String("path", r.configPath),
			)
			r.configPath = ""
		}
	}
	return r
}

// Command returns the linter executable name.
func (r *Runner) Command() string {
	return r.command
}

// DetectAvailable probes for the linter and caches the answer.
//
// Description:
//
//	Looks the command up on PATH and runs `<command> --version` under the
//	probe timeout. A missing binary reports (false, nil). A binary that is
//	present but cannot answer the probe reports an error and nothing is
//	cached, so the next call probes again. The probe is shared by
//	concurrent callers, so it ignores ctx cancellation and is bounded only
//	by the probe timeout.
//
// Outputs:
//
//	bool - True if the linter is installed
//	error - Non-nil on a probe fault other than not-found
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) DetectAvailable(ctx context.Context) (bool, error) {
	probeCtx := context.WithoutCancel(ctx)
	v, err, _ := r.probes.Do("probe", func() (any, error) {
		available, err := r.probe(probeCtx)
		if err != nil {
			return false, err
		}

		r.availMu.Lock()
		r.detected = true
		r.available = available
		r.availMu.Unlock()

		if available {
			slog.Info("Linter available", slog.String("command", r.command))
		} else {
			slog.Warn("Linter not installed", slog.String("command", r.command))
		}
		return available, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// IsAvailable returns the cached availability. It reports false before the
// first successful probe.
func (r *Runner) IsAvailable() bool {
	r.availMu.RLock()
	defer r.availMu.RUnlock()
	return r.detected && r.available
}

func (r *Runner) ensureAvailable(ctx context.Context) (bool, error) {
	r.availMu.RLock()
	detected, available := r.detected, r.available
	r.availMu.RUnlock()
	if detected {
		return available, nil
	}
	return r.DetectAvailable(ctx)
}

func (r *Runner) probe(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(r.command); err != nil {
		return false, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, r.command, "--version")
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return false, nil
	case probeCtx.Err() == context.DeadlineExceeded:
		return false, NewLinterError(r.command, ErrLinterTimeout).WithOutput(stderr.String())
	default:
		return false, NewLinterError(r.command, ErrLinterFailed).WithOutput(strings.TrimSpace(stderr.String()))
	}
}

// Lint runs solhint over source.
//
// Description:
//
//	Never returns an error and never panics. An unavailable linter yields
//	an empty successful result; an execution fault yields Success=false
//	with Error set and empty finding lists.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	source - Solidity source text
//
// Outputs:
//
//	*Result - The classified result
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Lint(ctx context.Context, source string) (result *Result) {
	ctx, span := startLintSpan(ctx, r.command, len(source))
	defer span.End()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Lint run panicked", slog.Any("panic", p))
			result = faultResult(fmt.Errorf("%v", p))
		}
		result.Duration = time.Since(start)
		setLintSpanResult(span, result)
		recordLintMetrics(ctx, result)
	}()

	available, err := r.ensureAvailable(ctx)
	if err != nil {
		return faultResult(err)
	}
	if !available {
		return newResult(false)
	}

	tmpFile, err := os.CreateTemp("", "lint-*.sol")
	if err != nil {
		return faultResult(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(source); err != nil {
		tmpFile.Close()
		return faultResult(fmt.Errorf("writing temp file: %w", err))
	}
	tmpFile.Close()

	output, err := r.executeLinter(ctx, tmpPath)
	if err != nil {
		if errors.Is(err, ErrLinterNotInstalled) {
			return newResult(false)
		}
		slog.Warn("Lint run failed", slog.String("command", r.command), slog.String("error", err.Error()))
		return faultResult(err)
	}
	if !utf8.Valid(output) {
		return faultResult(NewLinterError(r.command, ErrInvalidOutput))
	}

	result, err = ParseOutput(strings.ReplaceAll(string(output), tmpPath, contentPlaceholder))
	if err != nil {
		slog.Warn("Lint output unreadable", slog.String("command", r.command), slog.String("error", err.Error()))
		return faultResult(NewLinterError(r.command, err))
	}

	slog.Debug("Lint completed",
		slog.String("linter", r.command),
		slog.Duration("duration", time.Since(start)),
		slog.Int("errors", len(result.Errors)),
		slog.Int("warnings", len(result.Warnings)),
		slog.Int("issues", len(result.Issues)),
	)
	return result
}

// executeLinter runs the linter on a file and returns its stdout.
func (r *Runner) executeLinter(ctx context.Context, filePath string) ([]byte, error) {
	var args []string
	if r.configPath != "" {
		args = append(args, "--config", r.configPath)
	}
	args = append(args, filePath)

	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.command, args...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	} else {
		cmd.Dir = filepath.Dir(filePath)
	}

	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, NewLinterError(r.command, ErrLinterTimeout).WithOutput(stderr.String())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil, NewLinterError(r.command, ErrLinterNotInstalled)
	}
	if err != nil && stdout.Len() == 0 {
		return nil, NewLinterError(r.command, ErrLinterFailed).WithOutput(strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}
