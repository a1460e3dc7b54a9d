package routes

import (
	"renthub/internal/handlers"
	"renthub/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes wires the booking lifecycle endpoints. Quotes,
// availability and booking creation allow guest checkout; lifecycle
// transitions and charge review need authentication.
func SetupBookingRoutes(r *gin.RouterGroup, bookingHandler *handlers.BookingHandler, jwtSecret string) {
	public := r.Group("/")
	public.Use(middleware.OptionalAuth(jwtSecret))
	{
		public.GET("/vehicles/:vehicle_id/availability", bookingHandler.CheckAvailability)
		public.POST("/quotes", bookingHandler.GetQuote)
		public.POST("/bookings", bookingHandler.CreateBooking)
		public.GET("/bookings/reference/:reference", bookingHandler.GetBookingByReference)
		public.POST("/bookings/:id/payment/retry", bookingHandler.RetryPayment)
	}

	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthRequired(jwtSecret))
	{
		bookings.GET("/", bookingHandler.ListMyBookings)
		bookings.GET("/:id", bookingHandler.GetBooking)
		bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
	}

	// Owner-side lifecycle: handover, return, incident charges.
	owner := r.Group("/bookings")
	owner.Use(middleware.AuthRequired(jwtSecret), middleware.OwnerRequired())
	{
		owner.POST("/:id/activate", bookingHandler.ActivateBooking)
		owner.POST("/:id/complete", bookingHandler.CompleteBooking)
		owner.POST("/:id/no-show", bookingHandler.MarkNoShow)
		owner.POST("/:id/charges", bookingHandler.CreateCharge)
	}

	// Admin-side: disputes and charge review.
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		admin.POST("/bookings/:id/dispute", bookingHandler.DisputeBooking)
		admin.POST("/charges/:charge_id/approve", bookingHandler.ApproveCharge)
		admin.POST("/charges/:charge_id/reject", bookingHandler.RejectCharge)
		admin.POST("/charges/:charge_id/settle", bookingHandler.SettleCharge)
	}
}
