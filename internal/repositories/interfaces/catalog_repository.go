package interfaces

import (
	"context"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CatalogRepository is the read-only window onto the catalog collaborator:
// vehicles, categories, regional pricing and plans are looked up by id and
// never written by the engine.
type CatalogRepository interface {
	GetVehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error)
	GetCategory(ctx context.Context, id primitive.ObjectID) (*models.VehicleCategory, error)
	GetRegionalPricing(ctx context.Context, city string) (*models.RegionalPricing, error)
	GetInsurancePlan(ctx context.Context, id primitive.ObjectID) (*models.InsurancePlan, error)
	GetProtectionPlan(ctx context.Context, id primitive.ObjectID) (*models.ProtectionPlan, error)
}
