package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ayush/task-manager/internal/events"
)

// MongoAuditLog appends every committed change to the audit_events collection.
type MongoAuditLog struct {
	col *mongo.Collection
}

func NewMongoAuditLog(db *mongo.Database) *MongoAuditLog {
	return &MongoAuditLog{col: db.Collection("audit_events")}
}

func (s *MongoAuditLog) Publish(ctx context.Context, e events.Event) error {
	if _, err := s.col.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongo audit insert: %w", err)
	}
	return nil
}
