package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type promoCodeRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
	usages     *mongo.Collection
}

func NewPromoCodeRepository(db *database.MongoDB) interfaces.PromoCodeRepository {
	return &promoCodeRepository{
		db:         db,
		collection: db.Collection("promo_codes"),
		usages:     db.Collection("promo_code_usages"),
	}
}

func (r *promoCodeRepository) Create(ctx context.Context, code *models.PromoCode) error {
	code.ID = primitive.NewObjectID()
	code.Code = strings.ToUpper(code.Code)
	code.CreatedAt = time.Now()
	code.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, code); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}

func (r *promoCodeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PromoCode, error) {
	var code models.PromoCode
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&code)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &code, nil
}

func (r *promoCodeRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.collection.FindOne(ctx, bson.M{"code": strings.ToUpper(code)}).Decode(&promo)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

// Redeem runs the redemption-time cap enforcement. The total cap is checked
// and incremented in a single conditional update. That update also runs on
// every redemption, so two concurrent redemptions of the same code always
// write the same code document and the server write-conflicts one of them;
// the driver retries the aborted transaction and its per-user count then
// includes the winner's usage row. N racing redemptions against a cap of k
// therefore succeed exactly k times, per user and in total.
func (r *promoCodeRepository) Redeem(ctx context.Context, codeID primitive.ObjectID, usage *models.PromoCodeUsage) error {
	usage.ID = primitive.NewObjectID()
	usage.PromoCodeID = codeID
	usage.CreatedAt = time.Now()

	_, err := r.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		var code models.PromoCode
		if err := r.collection.FindOne(sessCtx, bson.M{"_id": codeID}).Decode(&code); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, interfaces.ErrNotFound
			}
			return nil, fmt.Errorf("failed to load promo code: %w", err)
		}

		if code.MaxUsesPerUser > 0 {
			used, err := r.countUsagesByUser(sessCtx, codeID, usage.UserID, usage.GuestEmail)
			if err != nil {
				return nil, err
			}
			if used >= int64(code.MaxUsesPerUser) {
				return nil, interfaces.ErrPromoUserCapExceeded
			}
		}

		// Conditional increment: matches only while used_count is still
		// below the cap, so the check and the bump are one statement.
		filter := bson.M{"_id": codeID}
		if code.MaxTotalUses > 0 {
			filter["$expr"] = bson.M{"$lt": []interface{}{"$used_count", "$max_total_uses"}}
		}
		result, err := r.collection.UpdateOne(
			sessCtx,
			filter,
			bson.M{
				"$inc": bson.M{"used_count": 1},
				"$set": bson.M{"updated_at": time.Now()},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to increment promo usage: %w", err)
		}
		if result.ModifiedCount == 0 {
			return nil, interfaces.ErrPromoCapExceeded
		}

		if _, err := r.usages.InsertOne(sessCtx, usage); err != nil {
			return nil, fmt.Errorf("failed to record promo usage: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *promoCodeRepository) CountUsagesByUser(ctx context.Context, codeID primitive.ObjectID, userID *primitive.ObjectID, guestEmail string) (int64, error) {
	return r.countUsagesByUser(ctx, codeID, userID, guestEmail)
}

func (r *promoCodeRepository) countUsagesByUser(ctx context.Context, codeID primitive.ObjectID, userID *primitive.ObjectID, guestEmail string) (int64, error) {
	filter := bson.M{"promo_code_id": codeID}
	switch {
	case userID != nil:
		filter["user_id"] = *userID
	case guestEmail != "":
		filter["guest_email"] = guestEmail
	default:
		return 0, nil
	}

	count, err := r.usages.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count promo usages: %w", err)
	}
	return count, nil
}

func (r *promoCodeRepository) ReleaseUsage(ctx context.Context, usageID primitive.ObjectID) error {
	_, err := r.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		var usage models.PromoCodeUsage
		if err := r.usages.FindOne(sessCtx, bson.M{"_id": usageID}).Decode(&usage); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, interfaces.ErrNotFound
			}
			return nil, fmt.Errorf("failed to load promo usage: %w", err)
		}

		if _, err := r.usages.DeleteOne(sessCtx, bson.M{"_id": usageID}); err != nil {
			return nil, fmt.Errorf("failed to delete promo usage: %w", err)
		}

		_, err := r.collection.UpdateOne(
			sessCtx,
			bson.M{"_id": usage.PromoCodeID, "used_count": bson.M{"$gt": 0}},
			bson.M{
				"$inc": bson.M{"used_count": -1},
				"$set": bson.M{"updated_at": time.Now()},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement promo usage: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *promoCodeRepository) ReleaseUsageForBooking(ctx context.Context, bookingID primitive.ObjectID) error {
	var usage models.PromoCodeUsage
	err := r.usages.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&usage)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil
		}
		return fmt.Errorf("failed to find promo usage for booking: %w", err)
	}
	return r.ReleaseUsage(ctx, usage.ID)
}

func (r *promoCodeRepository) BindUsageToBooking(ctx context.Context, usageID, bookingID primitive.ObjectID) error {
	_, err := r.usages.UpdateOne(
		ctx,
		bson.M{"_id": usageID},
		bson.M{"$set": bson.M{"booking_id": bookingID}},
	)
	if err != nil {
		return fmt.Errorf("failed to bind promo usage to booking: %w", err)
	}
	return nil
}
