package interfaces

import (
	"context"

	"renthub/internal/models"

	"renthub/internal/utils"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	GetByResource(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error)
}
