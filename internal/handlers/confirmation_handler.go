package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/services"
)

// ConfirmationManager renders and finishes paid bookings
type ConfirmationManager interface {
	Receipt(ctx context.Context, userID, bookingID uuid.UUID) (*models.Receipt, error)
	Finish(ctx context.Context, userID, bookingID uuid.UUID, next string) (string, error)
}

// ConfirmationHandler handles the booking confirmation page
type ConfirmationHandler struct {
	confirmations ConfirmationManager
	logger        *logrus.Logger
}

// NewConfirmationHandler creates a new confirmation handler
func NewConfirmationHandler(confirmations ConfirmationManager, logger *logrus.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		confirmations: confirmations,
		logger:        logger,
	}
}

// FinishRequest picks where the student goes after the confirmation page
type FinishRequest struct {
	Next string `json:"next"` // "dashboard" (default) or "new_booking"
}

// GetReceipt handles GET /api/v1/booking/confirmation/:booking_id
func (h *ConfirmationHandler) GetReceipt(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	receipt, err := h.confirmations.Receipt(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		h.writeError(c, bookingID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// Finish handles POST /api/v1/booking/confirmation/:booking_id/finish
func (h *ConfirmationHandler) Finish(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	var req FinishRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}

	next, err := h.confirmations.Finish(c.Request.Context(), userCtx.UserID, bookingID, req.Next)
	if err != nil {
		h.writeError(c, bookingID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_to": next})
}

func parseBookingID(c *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid booking ID format",
		})
		return uuid.Nil, false
	}
	return bookingID, true
}

func (h *ConfirmationHandler) writeError(c *gin.Context, bookingID uuid.UUID, err error) {
	if errors.Is(err, services.ErrBookingNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Booking not found",
		})
		return
	}

	h.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to load booking confirmation")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "database_error",
		Message: "Failed to load booking",
	})
}
