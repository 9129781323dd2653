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
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLinter writes an executable shell script standing in for solhint.
func fakeLinter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake linter requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "solhint")
	script := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo 5.0.3; exit 0; fi\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake linter: %v", err)
	}
	return path
}

const stylishBody = `for last; do :; done
echo "$last"
echo "  3:5  warning  Explicitly mark visibility in function  func-visibility"
echo "  7:1  error    Compiler version ^0.7.0 does not satisfy the ^0.8.0 semver requirement  compiler-version"
echo ""
echo "✖ 2 problems (1 error, 1 warning)"
exit 1`

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(WithConfigPath(""))
	if r.Command() != DefaultCommand {
		t.Errorf("Command() = %q, want %q", r.Command(), DefaultCommand)
	}
	if r.timeout != DefaultTimeout || r.probeTimeout != DefaultProbeTimeout {
		t.Errorf("unexpected timeouts: %v / %v", r.timeout, r.probeTimeout)
	}
	if r.IsAvailable() {
		t.Error("IsAvailable should be false before detection")
	}
}

func TestNewRunner_MissingConfigIsDropped(t *testing.T) {
	r := NewRunner(WithConfigPath(filepath.Join(t.TempDir(), "nope.json")))
	if r.configPath != "" {
		t.Errorf("configPath = %q, want empty", r.configPath)
	}
}

func TestRunner_Lint_NotInstalled(t *testing.T) {
	r := NewRunner(WithCommand("definitely-not-solhint-9f3a"))

	result := r.Lint(context.Background(), "pragma solidity ^0.8.0;")

	if !result.Success {
		t.Errorf("Success = false, want true when linter missing (error: %s)", result.Error)
	}
	if result.Available {
		t.Error("Available should be false")
	}
	if result.HasFindings() {
		t.Error("no findings expected")
	}

	available, err := r.DetectAvailable(context.Background())
	if err != nil || available {
		t.Errorf("DetectAvailable() = %v, %v; want false, nil", available, err)
	}
}

func TestRunner_Lint_ClassifiesOutput(t *testing.T) {
	r := NewRunner(WithCommand(fakeLinter(t, stylishBody)))

	result := r.Lint(context.Background(), "contract A {}")

	if result.Success {
		t.Error("Success should be false")
	}
	if result.Error != "" {
		t.Fatalf("unexpected fault: %s", result.Error)
	}
	if !result.Available {
		t.Error("Available should be true")
	}
	if len(result.Errors) != 2 || len(result.Warnings) != 1 || len(result.Issues) != 1 {
		t.Errorf("got %d errors, %d warnings, %d issues", len(result.Errors), len(result.Warnings), len(result.Issues))
	}
	if len(result.Issues) == 1 && result.Issues[0] != contentPlaceholder {
		t.Errorf("temp path should be replaced, got %q", result.Issues[0])
	}
	if !r.IsAvailable() {
		t.Error("availability should be cached after the first run")
	}
}

func TestRunner_Lint_PassesConfigAndRemovesTempFile(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_LINT_MARKER", marker)

	config := filepath.Join(t.TempDir(), ".solhint.json")
	if err := os.WriteFile(config, []byte(`{"extends": "solhint:recommended"}`), 0644); err != nil {
		t.Fatal(err)
	}

	body := `echo "$@" > "$FAKE_LINT_MARKER"
for last; do :; done
cat "$last" > "$FAKE_LINT_MARKER.src"`
	r := NewRunner(WithCommand(fakeLinter(t, body)), WithConfigPath(config))

	result := r.Lint(context.Background(), "contract Marker {}")
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}

	args, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	fields := strings.Fields(string(args))
	if len(fields) != 3 || fields[0] != "--config" || fields[1] != config {
		t.Fatalf("args = %q", args)
	}
	if !strings.HasSuffix(fields[2], ".sol") {
		t.Errorf("temp file should have .sol extension, got %s", fields[2])
	}
	if _, err := os.Stat(fields[2]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file %s should be removed, stat err = %v", fields[2], err)
	}

	src, err := os.ReadFile(marker + ".src")
	if err != nil {
		t.Fatal(err)
	}
	if string(src) != "contract Marker {}" {
		t.Errorf("linter saw %q", src)
	}
}

func TestRunner_Lint_Timeout(t *testing.T) {
	r := NewRunner(
		WithCommand(fakeLinter(t, "exec sleep 5")),
		WithTimeout(100*time.Millisecond),
	)

	start := time.Now()
	result := r.Lint(context.Background(), "contract A {}")

	if result.Success {
		t.Error("Success should be false on timeout")
	}
	if !strings.Contains(result.Error, ErrLinterTimeout.Error()) {
		t.Errorf("Error = %q, want timeout", result.Error)
	}
	if result.HasFindings() {
		t.Error("finding lists should be empty on a fault")
	}
	if time.Since(start) > 4*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestRunner_Lint_CrashWithoutOutput(t *testing.T) {
	r := NewRunner(WithCommand(fakeLinter(t, "echo 'boom' >&2\nexit 2")))

	result := r.Lint(context.Background(), "contract A {}")

	if result.Success {
		t.Error("Success should be false")
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("Error = %q, want stderr included", result.Error)
	}
}

func TestRunner_Lint_NonTextOutput(t *testing.T) {
	r := NewRunner(WithCommand(fakeLinter(t, `printf '\377\376 error\n'`)))

	result := r.Lint(context.Background(), "contract A {}")

	if result.Success || !strings.Contains(result.Error, ErrInvalidOutput.Error()) {
		t.Errorf("want invalid-output fault, got %+v", result)
	}
}

func TestRunner_Lint_ProbeFault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "solhint")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho broken >&2\nexit 3\n"), 0755); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(WithCommand(path))

	result := r.Lint(context.Background(), "contract A {}")
	if result.Success || result.Error == "" {
		t.Errorf("want probe fault, got %+v", result)
	}
	if r.IsAvailable() {
		t.Error("a failed probe must not be cached as available")
	}
}

func TestRunner_DetectAvailable_IgnoresCallerCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "solhint")
	slowProbe := "#!/bin/sh\nsleep 0.2\necho 5.0.3\n"
	if err := os.WriteFile(path, []byte(slowProbe), 0755); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(WithCommand(path))

	// The first caller gives up while the shared probe is still running.
	first, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	avail := make([]bool, 2)
	for i, ctx := range []context.Context{first, context.Background()} {
		wg.Add(1)
		go func(idx int, ctx context.Context) {
			defer wg.Done()
			avail[idx], errs[idx] = r.DetectAvailable(ctx)
		}(i, ctx)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil || !avail[i] {
			t.Errorf("caller %d: available=%v err=%v, want true <nil>", i, avail[i], errs[i])
		}
	}
	if !r.IsAvailable() {
		t.Error("probe result should be cached")
	}
}

func TestRunner_Lint_Concurrent(t *testing.T) {
	r := NewRunner(WithCommand(fakeLinter(t, stylishBody)))

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = r.Lint(context.Background(), "contract A {}")
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		if result.Error != "" || len(result.Errors) != 2 {
			t.Errorf("result %d: %+v", i, result)
		}
	}
}

func TestLinterError(t *testing.T) {
	err := NewLinterError("solhint", ErrLinterTimeout).WithOutput("stderr text")
	if !errors.Is(err, ErrLinterTimeout) {
		t.Error("errors.Is should see the sentinel")
	}
	if got := err.Error(); got != "solhint: linter timeout: stderr text" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewLinterError("solhint", ErrLinterFailed).Error(); got != "solhint: linter execution failed" {
		t.Errorf("Error() = %q", got)
	}
}
