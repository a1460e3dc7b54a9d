package mongodb

import (
	"context"
	"fmt"

	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type catalogRepository struct {
	vehicles        *mongo.Collection
	categories      *mongo.Collection
	regionalPricing *mongo.Collection
	insurancePlans  *mongo.Collection
	protectionPlans *mongo.Collection
}

func NewCatalogRepository(db *database.MongoDB) interfaces.CatalogRepository {
	return &catalogRepository{
		vehicles:        db.Collection("vehicles"),
		categories:      db.Collection("vehicle_categories"),
		regionalPricing: db.Collection("regional_pricing"),
		insurancePlans:  db.Collection("insurance_plans"),
		protectionPlans: db.Collection("protection_plans"),
	}
}

func (r *catalogRepository) GetVehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.vehicles.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &vehicle, nil
}

func (r *catalogRepository) GetCategory(ctx context.Context, id primitive.ObjectID) (*models.VehicleCategory, error) {
	var category models.VehicleCategory
	err := r.categories.FindOne(ctx, bson.M{"_id": id}).Decode(&category)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle category: %w", err)
	}
	return &category, nil
}

func (r *catalogRepository) GetRegionalPricing(ctx context.Context, city string) (*models.RegionalPricing, error) {
	var pricing models.RegionalPricing
	err := r.regionalPricing.FindOne(ctx, bson.M{"city": city}).Decode(&pricing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get regional pricing: %w", err)
	}
	return &pricing, nil
}

func (r *catalogRepository) GetInsurancePlan(ctx context.Context, id primitive.ObjectID) (*models.InsurancePlan, error) {
	var plan models.InsurancePlan
	err := r.insurancePlans.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get insurance plan: %w", err)
	}
	return &plan, nil
}

func (r *catalogRepository) GetProtectionPlan(ctx context.Context, id primitive.ObjectID) (*models.ProtectionPlan, error) {
	var plan models.ProtectionPlan
	err := r.protectionPlans.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get protection plan: %w", err)
	}
	return &plan, nil
}
