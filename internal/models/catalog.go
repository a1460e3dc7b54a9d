package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PlanPricingMode string

const (
	PlanPricingDaily PlanPricingMode = "daily"
	PlanPricingFixed PlanPricingMode = "fixed"
)

// Catalog types are read-only collaborators: the engine looks them up by id
// to price a booking but never mutates them.

type Vehicle struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OwnerID    primitive.ObjectID `json:"owner_id" bson:"owner_id"`
	CategoryID primitive.ObjectID `json:"category_id" bson:"category_id"`
	City       string             `json:"city" bson:"city"`
	// DailyRate of zero means the category default applies.
	DailyRate     float64   `json:"daily_rate" bson:"daily_rate"`
	DepositAmount float64   `json:"deposit_amount" bson:"deposit_amount"`
	Active        bool      `json:"active" bson:"active"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

type VehicleCategory struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name             string             `json:"name" bson:"name"`
	DefaultDailyRate float64            `json:"default_daily_rate" bson:"default_daily_rate"`
}

// RegionalPricing scales a vehicle's daily rate for a city and clamps the
// result into a configured band.
type RegionalPricing struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	City         string             `json:"city" bson:"city"`
	Multiplier   float64            `json:"multiplier" bson:"multiplier" default:"1"`
	MinDailyRate float64            `json:"min_daily_rate" bson:"min_daily_rate"`
	MaxDailyRate float64            `json:"max_daily_rate" bson:"max_daily_rate"`
}

type InsurancePlan struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	DailyPrice float64            `json:"daily_price" bson:"daily_price"`
	Active     bool               `json:"active" bson:"active"`
}

type ProtectionPlan struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Version     int                `json:"version" bson:"version"`
	PricingMode PlanPricingMode    `json:"pricing_mode" bson:"pricing_mode" default:"daily"`
	DailyPrice  float64            `json:"daily_price" bson:"daily_price"`
	FixedFee    float64            `json:"fixed_fee" bson:"fixed_fee"`
	MinFee      float64            `json:"min_fee" bson:"min_fee"`
	MaxFee      float64            `json:"max_fee" bson:"max_fee"`
	Excess      float64            `json:"excess" bson:"excess"`
	Terms       map[string]string  `json:"terms" bson:"terms"`
	Active      bool               `json:"active" bson:"active"`
}

// Snapshot captures the plan's terms as an immutable value for storage on a
// booking.
func (p *ProtectionPlan) Snapshot(now time.Time) *PlanSnapshot {
	terms := make(map[string]string, len(p.Terms))
	for k, v := range p.Terms {
		terms[k] = v
	}
	return &PlanSnapshot{
		PlanID:      p.ID,
		Version:     p.Version,
		Name:        p.Name,
		PricingMode: p.PricingMode,
		DailyPrice:  p.DailyPrice,
		FixedFee:    p.FixedFee,
		Excess:      p.Excess,
		Terms:       terms,
		CapturedAt:  now,
	}
}
