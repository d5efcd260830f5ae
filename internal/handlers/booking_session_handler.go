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

// BookingSessionManager reads and writes the wizard's selections
type BookingSessionManager interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.BookingSession, error)
	Update(ctx context.Context, userID uuid.UUID, update models.BookingSessionUpdate) (*models.BookingSession, error)
	Reset(ctx context.Context, userID uuid.UUID) error
}

// BookingSessionHandler handles the booking wizard's session
type BookingSessionHandler struct {
	sessions BookingSessionManager
	logger   *logrus.Logger
}

// NewBookingSessionHandler creates a new booking session handler
func NewBookingSessionHandler(sessions BookingSessionManager, logger *logrus.Logger) *BookingSessionHandler {
	return &BookingSessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// GetSession handles GET /api/v1/booking/session
func (h *BookingSessionHandler) GetSession(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to load booking session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "session_error",
			Message: "Failed to load booking session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// UpdateSession handles PUT /api/v1/booking/session
func (h *BookingSessionHandler) UpdateSession(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var update models.BookingSessionUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	sess, err := h.sessions.Update(c.Request.Context(), userCtx.UserID, update)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrIdentityLocked):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "identity_locked",
				Message: err.Error(),
				Code:    "IDENTITY_LOCKED",
			})
		case errors.Is(err, models.ErrStepLocked):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "step_locked",
				Message: err.Error(),
				Code:    "STEP_LOCKED",
			})
		case errors.Is(err, services.ErrInvalidSessionUpdate):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
		default:
			h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to update booking session")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "session_error",
				Message: "Failed to update booking session",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// ResetSession handles DELETE /api/v1/booking/session
func (h *BookingSessionHandler) ResetSession(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.sessions.Reset(c.Request.Context(), userCtx.UserID); err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to reset booking session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "session_error",
			Message: "Failed to reset booking session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Booking session cleared"})
}
