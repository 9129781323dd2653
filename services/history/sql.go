// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSQLitePath is used when no MongoDB URI is configured.
const DefaultSQLitePath = "./data/metadag.db"

type entryKind string

const (
	kindChat       entryKind = "chat"
	kindDeployment entryKind = "deployment"
)

// entryRow stores one history entry as JSON.
type entryRow struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"index:idx_history_user_kind;not null"`
	Kind      string    `gorm:"index:idx_history_user_kind;not null"`
	Payload   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (entryRow) TableName() string {
	return "history_entries"
}

// SQLStore keeps history in a single SQLite table, one row per entry.
//
// Thread Safety: Safe for concurrent use.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLStore opens or creates the database at path and migrates the
// schema. ":memory:" is accepted for tests.
func NewSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	slog.Info("Using SQLite history store", slog.String("path", path))
	return &SQLStore{db: db, now: time.Now}, nil
}

// AppendChat inserts entries in one transaction.
func (s *SQLStore) AppendChat(ctx context.Context, userID string, entries []Entry) error {
	return s.insert(ctx, kindChat, userID, entries)
}

// ChatHistory returns the user's chat entries in insertion order.
func (s *SQLStore) ChatHistory(ctx context.Context, userID string) ([]Entry, error) {
	return s.list(ctx, kindChat, userID)
}

// DeleteChatHistory deletes the user's chat rows.
func (s *SQLStore) DeleteChatHistory(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kindChat)).
		Delete(&entryRow{}).Error
	if err != nil {
		return fmt.Errorf("deleting chat history: %w", err)
	}
	return nil
}

// AppendDeployment inserts one deployment row.
func (s *SQLStore) AppendDeployment(ctx context.Context, userID string, entry Entry) error {
	return s.insert(ctx, kindDeployment, userID, []Entry{entry})
}

// Deployments returns the user's deployment entries in insertion order.
func (s *SQLStore) Deployments(ctx context.Context, userID string) ([]Entry, error) {
	return s.list(ctx, kindDeployment, userID)
}

// Ping checks the database handle.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) insert(ctx context.Context, kind entryKind, userID string, entries []Entry) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	now := s.now().UTC()
	rows := make([]entryRow, 0, len(entries))
	for _, e := range stamp(entries, now) {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding %s entry: %w", kind, err)
		}
		rows = append(rows, entryRow{UserID: userID, Kind: string(kind), Payload: string(payload), CreatedAt: now})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting %s entries: %w", kind, err)
		}
		return nil
	})
}

func (s *SQLStore) list(ctx context.Context, kind entryKind, userID string) ([]Entry, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	var rows []entryRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reading %s entries: %w", kind, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		var e Entry
		if err := json.Unmarshal([]byte(r.Payload), &e); err != nil {
			slog.Warn("Skipping corrupt history row", slog.Uint64("id", uint64(r.ID)), slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var _ Store = (*SQLStore)(nil)
