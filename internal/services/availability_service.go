package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AvailabilityService answers whether a vehicle is free for a window. The
// answer is advisory: the authoritative conflict check runs inside the same
// transaction that inserts the booking, so a positive answer here can still
// lose the race.
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time) (bool, error)
}

type availabilityService struct {
	bookingRepo interfaces.BookingRepository
	catalogRepo interfaces.CatalogRepository
}

func NewAvailabilityService(
	bookingRepo interfaces.BookingRepository,
	catalogRepo interfaces.CatalogRepository,
) AvailabilityService {
	return &availabilityService{
		bookingRepo: bookingRepo,
		catalogRepo: catalogRepo,
	}
}

func (s *availabilityService) CheckAvailability(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time) (bool, error) {
	if utils.RentalDays(pickupAt, returnAt) <= 0 {
		return false, NewValidationError("return_at", "return must be after pickup")
	}

	vehicle, err := s.catalogRepo.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, ErrVehicleNotFound
		}
		return false, fmt.Errorf("failed to load vehicle: %w", err)
	}
	if !vehicle.Active {
		return false, nil
	}

	conflicts, err := s.bookingRepo.CountConflicts(ctx, vehicleID, pickupAt, returnAt, nil)
	if err != nil {
		return false, fmt.Errorf("failed to count conflicting bookings: %w", err)
	}
	return conflicts == 0, nil
}
