package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/internal/services"
)

// PaymentCallbacks receives the gateway's outcomes
type PaymentCallbacks interface {
	ReportDismissed(ctx context.Context, userID uuid.UUID, orderID string) error
	ReportError(ctx context.Context, userID uuid.UUID, orderID, message string) error
	HandleNotification(ctx context.Context, n *payhere.Notification, meta *services.ClientMeta) error
}

// PaymentHandler handles hash minting and PayHere callbacks
type PaymentHandler struct {
	callbacks PaymentCallbacks
	minter    payhere.HashMinter
	logger    *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(callbacks PaymentCallbacks, minter payhere.HashMinter, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		callbacks: callbacks,
		minter:    minter,
		logger:    logger,
	}
}

// PaymentErrorRequest is the client's onError report
type PaymentErrorRequest struct {
	Message string `json:"message"`
}

// MintHash handles POST /api/v1/payments/hash.
// Response: {"success": true, "data": {"hash", "merchantId"}} or {"success": false, "error"}.
func (h *PaymentHandler) MintHash(c *gin.Context) {
	var req payhere.HashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "order_id, amount and currency are required"})
		return
	}

	result, err := h.minter.MintHash(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, payhere.ErrInvalidHashRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.WithError(err).WithField("order_id", req.OrderID).Error("Failed to mint payment hash")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Failed to generate payment hash"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Dismissed handles POST /api/v1/payments/:order_id/dismissed
func (h *PaymentHandler) Dismissed(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	orderID := c.Param("order_id")
	if err := h.callbacks.ReportDismissed(c.Request.Context(), userCtx.UserID, orderID); err != nil {
		h.writeCallbackError(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment dismissed"})
}

// Error handles POST /api/v1/payments/:order_id/error
func (h *PaymentHandler) Error(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req PaymentErrorRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}

	orderID := c.Param("order_id")
	if err := h.callbacks.ReportError(c.Request.Context(), userCtx.UserID, orderID, req.Message); err != nil {
		h.writeCallbackError(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment error recorded"})
}

func (h *PaymentHandler) writeCallbackError(c *gin.Context, orderID string, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
			Code:    "ORDER_NOT_FOUND",
		})
	case errors.Is(err, services.ErrOrderNotPending):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
			Code:    "ORDER_NOT_PENDING",
		})
	default:
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to apply payment callback")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "payment_error",
			Message: "Failed to record payment result",
		})
	}
}

// Notify handles POST /api/v1/payments/payhere/notify (PayHere server-to-server).
// PayHere retries on non-2xx, so rejected notifications still answer 200.
func (h *PaymentHandler) Notify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.logger.WithError(err).Warn("Unreadable PayHere notification")
		c.Status(http.StatusOK)
		return
	}

	n, err := payhere.ParseNotification(c.Request.PostForm)
	if err != nil {
		h.logger.WithError(err).Warn("Malformed PayHere notification")
		c.Status(http.StatusOK)
		return
	}

	if err := h.callbacks.HandleNotification(c.Request.Context(), n, clientMeta(c)); err != nil {
		entry := h.logger.WithError(err).WithField("order_id", n.OrderID)
		if errors.Is(err, services.ErrInvalidNotification) {
			entry.Warn("PayHere notification rejected")
		} else {
			// Transient failure: ask PayHere to retry
			entry.Error("Failed to apply PayHere notification")
			c.Status(http.StatusInternalServerError)
			return
		}
	}

	c.Status(http.StatusOK)
}
