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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Mongo collection and field names.
const (
	DefaultDatabase       = "metadag"
	chatCollection        = "chat_history"
	deploymentsCollection = "deployments"
	userIDField           = "user_id"
	chatField             = "chat_history"
	deploymentsField      = "deployments"

	connectTimeout = 10 * time.Second
)

// MongoStore keeps one document per user in each collection:
// {user_id, chat_history: [...]} and {user_id, deployments: [...]}.
//
// Thread Safety: Safe for concurrent use.
type MongoStore struct {
	client      *mongo.Client
	chats       *mongo.Collection
	deployments *mongo.Collection
	now         func() time.Time
}

// NewMongoStore connects to uri and ensures a unique user_id index on both
// collections.
//
// # Inputs
//
//   - ctx: Bounds the initial ping and index creation.
//   - uri: A mongodb:// or mongodb+srv:// connection string.
//   - database: Database name. Empty means DefaultDatabase.
//
// # Outputs
//
//   - *MongoStore: Connected store. Call Close when done.
//   - error: Connection, ping or index failure.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:      client,
		chats:       db.Collection(chatCollection),
		deployments: db.Collection(deploymentsCollection),
		now:         time.Now,
	}

	index := mongo.IndexModel{
		Keys:    bson.D{{Key: userIDField, Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, coll := range []*mongo.Collection{s.chats, s.deployments} {
		if _, err := coll.Indexes().CreateOne(pingCtx, index); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("creating %s index: %w", coll.Name(), err)
		}
	}

	slog.Info("Connected to MongoDB", slog.String("database", database))
	return s, nil
}

// AppendChat pushes entries onto the user's chat_history array, creating
// the document if needed.
func (s *MongoStore) AppendChat(ctx context.Context, userID string, entries []Entry) error {
	return s.push(ctx, s.chats, chatField, userID, entries)
}

// ChatHistory returns the user's chat_history array.
func (s *MongoStore) ChatHistory(ctx context.Context, userID string) ([]Entry, error) {
	return s.list(ctx, s.chats, chatField, userID)
}

// DeleteChatHistory removes the user's chat document.
func (s *MongoStore) DeleteChatHistory(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if _, err := s.chats.DeleteOne(ctx, bson.M{userIDField: userID}); err != nil {
		return fmt.Errorf("deleting chat history: %w", err)
	}
	return nil
}

// AppendDeployment pushes entry onto the user's deployments array.
func (s *MongoStore) AppendDeployment(ctx context.Context, userID string, entry Entry) error {
	return s.push(ctx, s.deployments, deploymentsField, userID, []Entry{entry})
}

// Deployments returns the user's deployments array.
func (s *MongoStore) Deployments(ctx context.Context, userID string) ([]Entry, error) {
	return s.list(ctx, s.deployments, deploymentsField, userID)
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) push(ctx context.Context, coll *mongo.Collection, field, userID string, entries []Entry) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	update := bson.M{"$push": bson.M{field: bson.M{"$each": stamp(entries, s.now())}}}
	_, err := coll.UpdateOne(ctx, bson.M{userIDField: userID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("appending to %s: %w", coll.Name(), err)
	}
	return nil
}

func (s *MongoStore) list(ctx context.Context, coll *mongo.Collection, field, userID string) ([]Entry, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	var doc bson.M
	err := coll.FindOne(ctx, bson.M{userIDField: userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", coll.Name(), err)
	}

	raw, _ := doc[field].(bson.A)
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(bson.M); ok {
			entries = append(entries, Entry(m))
		}
	}
	return entries, nil
}

var _ Store = (*MongoStore)(nil)
