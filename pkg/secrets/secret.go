// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets keeps process credentials (model API key, deployer private
// key) in encrypted memguard enclaves instead of plain Go strings.
//
// # Description
//
// A Secret is sealed once at startup and opened only for the instant a
// credential is handed to a client constructor or a child process
// environment. The plaintext copy returned by Reveal is the caller's
// responsibility; keep it on the stack of the function that uses it.
//
// # Thread Safety
//
// Secret is safe for concurrent use. memguard enclaves are immutable.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// ErrEmpty is returned by Reveal on a Secret that holds no value.
var ErrEmpty = errors.New("secret is empty")

// minMlockLimitKB is the locked-memory budget below which memguard may fail
// to pin its key material.
const minMlockLimitKB = 64

var initOnce sync.Once

// Init installs the memguard interrupt handler and logs the locked-memory
// limit. Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()

		var rlimit unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
			slog.Warn("Could not determine mlock limit", "error", err)
			return
		}
		if rlimit.Cur == unix.RLIM_INFINITY {
			slog.Info("Secure memory initialized", "mlock_limit_kb", "unlimited")
			return
		}
		limitKB := int64(rlimit.Cur / 1024)
		if limitKB < minMlockLimitKB {
			slog.Warn("mlock limit is low, secret storage may fail",
				"current_limit_kb", limitKB,
				"required_kb", minMlockLimitKB,
			)
			return
		}
		slog.Info("Secure memory initialized", "mlock_limit_kb", limitKB)
	})
}

// Purge destroys all memguard-managed memory. Call on shutdown.
func Purge() {
	memguard.Purge()
}

// Secret is a sealed credential.
type Secret struct {
	name    string
	enclave *memguard.Enclave
}

// New seals value under name. Surrounding whitespace is trimmed; an empty
// value yields a Secret for which IsSet reports false.
func New(name, value string) *Secret {
	s := &Secret{name: name}
	value = strings.TrimSpace(value)
	if value == "" {
		return s
	}
	s.enclave = memguard.NewEnclave([]byte(value))
	return s
}

// Name returns the label given at construction. It never contains the value.
func (s *Secret) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// IsSet reports whether the secret holds a value.
func (s *Secret) IsSet() bool {
	return s != nil && s.enclave != nil
}

// Reveal opens the enclave and returns a plaintext copy of the value.
func (s *Secret) Reveal() (string, error) {
	if !s.IsSet() {
		return "", fmt.Errorf("%s: %w", s.Name(), ErrEmpty)
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", s.name, err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

// String redacts the value so a Secret can be logged safely.
func (s *Secret) String() string {
	if !s.IsSet() {
		return "[unset]"
	}
	return "[redacted]"
}

// LogValue implements slog.LogValuer.
func (s *Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}
