package mongodb

import (
	"context"
	"fmt"
	"time"

	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"
	"renthub/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type auditLogRepository struct {
	collection *mongo.Collection
}

func NewAuditLogRepository(db *database.MongoDB) interfaces.AuditLogRepository {
	return &auditLogRepository{
		collection: db.Collection("audit_logs"),
	}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}
	return nil
}

func (r *auditLogRepository) GetByResource(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	filter := bson.M{"resource": resource, "resource_id": resourceID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit log entries: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find audit log entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("failed to decode audit log entries: %w", err)
	}
	return entries, total, nil
}
