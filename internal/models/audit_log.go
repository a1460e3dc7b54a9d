package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	AuditActionCreate           AuditAction = "create"
	AuditActionStatusChange     AuditAction = "status_change"
	AuditActionRefundAttempt    AuditAction = "refund_attempt"
	AuditActionRefundFailed     AuditAction = "refund_failed"
	AuditActionPayoutCreated    AuditAction = "payout_created"
	AuditActionWithdrawal       AuditAction = "withdrawal"
	AuditActionChargeReview     AuditAction = "charge_review"
	AuditActionManualReviewFlag AuditAction = "manual_review_flag"
)

// AuditLog is an append-only record of a state change on a money-movement or
// booking row. Written before or atomically with the change it describes.
type AuditLog struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	ActorID    *primitive.ObjectID    `json:"actor_id" bson:"actor_id"`
	Actor      string                 `json:"actor" bson:"actor"`
	Action     AuditAction            `json:"action" bson:"action" validate:"required"`
	Resource   string                 `json:"resource" bson:"resource" validate:"required"`
	ResourceID string                 `json:"resource_id" bson:"resource_id"`
	OldValues  map[string]interface{} `json:"old_values" bson:"old_values"`
	NewValues  map[string]interface{} `json:"new_values" bson:"new_values"`
	Metadata   map[string]interface{} `json:"metadata" bson:"metadata"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
}
