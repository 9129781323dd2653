// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists per-user chat transcripts and deployment
// records.
//
// Both collections are append-only lists keyed by user ID. Appending to
// an unknown user creates the list; reading an unknown user returns an
// empty list.
package history

import (
	"context"
	"errors"
	"time"
)

// TimestampKey is the entry field stamped on append.
const TimestampKey = "timestamp"

// ErrInvalidUserID is returned for an empty user ID.
var ErrInvalidUserID = errors.New("user_id is required")

// Entry is one free-form history item as sent by the client.
type Entry map[string]any

// Store persists chat and deployment history.
//
// Implementations must make each append atomic per user and must stamp
// every entry lacking TimestampKey with the append time.
type Store interface {
	// AppendChat appends entries to the user's chat history.
	AppendChat(ctx context.Context, userID string, entries []Entry) error

	// ChatHistory returns the user's chat history, oldest first.
	ChatHistory(ctx context.Context, userID string) ([]Entry, error)

	// DeleteChatHistory removes the user's chat history.
	DeleteChatHistory(ctx context.Context, userID string) error

	// AppendDeployment appends one deployment record.
	AppendDeployment(ctx context.Context, userID string, entry Entry) error

	// Deployments returns the user's deployment records, oldest first.
	Deployments(ctx context.Context, userID string) ([]Entry, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// stamp returns copies of entries with TimestampKey set where missing.
// Inputs are not modified.
func stamp(entries []Entry, now time.Time) []Entry {
	ts := now.UTC().Format(time.RFC3339Nano)
	out := make([]Entry, len(entries))
	for i, e := range entries {
		c := make(Entry, len(e)+1)
		for k, v := range e {
			c[k] = v
		}
		if _, ok := c[TimestampKey]; !ok {
			c[TimestampKey] = ts
		}
		out[i] = c
	}
	return out
}

func checkUserID(userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	return nil
}
