package handlers

import (
	"renthub/internal/middleware"
	"renthub/internal/services"
	"renthub/internal/utils"

	"github.com/gin-gonic/gin"
)

type PayoutHandler struct {
	reconciliationService services.ReconciliationService
}

func NewPayoutHandler(reconciliationService services.ReconciliationService) *PayoutHandler {
	return &PayoutHandler{
		reconciliationService: reconciliationService,
	}
}

// GetBalance returns the owner's currently payable balance.
func (h *PayoutHandler) GetBalance(c *gin.Context) {
	ownerID := middleware.CurrentUserID(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c)
		return
	}

	balance, err := h.reconciliationService.AvailableBalance(c.Request.Context(), *ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Balance retrieved", gin.H{
		"owner_id":          ownerID.Hex(),
		"available_balance": balance,
	})
}

// RequestWithdrawal pays out part of the balance ahead of the scheduled
// cycle, for a fee.
func (h *PayoutHandler) RequestWithdrawal(c *gin.Context) {
	ownerID := middleware.CurrentUserID(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c)
		return
	}

	var request struct {
		Amount float64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	withdrawal, err := h.reconciliationService.RequestInstantWithdrawal(c.Request.Context(), *ownerID, request.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Withdrawal completed", withdrawal)
}
