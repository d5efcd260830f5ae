package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/internal/services"
	"github.com/edimy/tutoring-backend/pkg/validator"
)

const defaultCountry = "Sri Lanka"

// CheckoutManager drives a student's payment page
type CheckoutManager interface {
	Mount(ctx context.Context, userID uuid.UUID) (*services.CheckoutState, error)
	State(userID uuid.UUID) (*services.CheckoutState, error)
	Unmount(ctx context.Context, userID uuid.UUID)
	Pay(ctx context.Context, userID uuid.UUID, customer payhere.Customer, meta *services.ClientMeta) (*services.PaymentStart, error)
}

// CheckoutHandler handles the payment page
type CheckoutHandler struct {
	checkout     CheckoutManager
	tickInterval time.Duration
	logger       *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler. tickInterval paces the countdown stream.
func NewCheckoutHandler(checkout CheckoutManager, tickInterval time.Duration, logger *logrus.Logger) *CheckoutHandler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &CheckoutHandler{
		checkout:     checkout,
		tickInterval: tickInterval,
		logger:       logger,
	}
}

// PayRequest carries the billing address; name, email and phone come from the token
type PayRequest struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Mount handles POST /api/v1/checkout/mount
func (h *CheckoutHandler) Mount(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	state, err := h.checkout.Mount(c.Request.Context(), userCtx.UserID)
	if err != nil {
		var prereq *models.PrerequisiteError
		if errors.As(err, &prereq) {
			// Not an error for the client: it navigates back without rendering payment controls
			c.JSON(http.StatusOK, gin.H{
				"redirect_to": prereq.RedirectTo,
				"missing":     prereq.Missing,
			})
			return
		}

		var taken *services.SlotUnavailableError
		if errors.As(err, &taken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":       "slot_unavailable",
				"message":     taken.Error(),
				"code":        "SLOT_UNAVAILABLE",
				"redirect_to": taken.RedirectTo,
			})
			return
		}

		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to mount checkout")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "checkout_error",
			Message: "Failed to reserve the selected slot",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

// GetState handles GET /api/v1/checkout/state
func (h *CheckoutHandler) GetState(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	state, err := h.checkout.State(userCtx.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_mounted",
			Message: err.Error(),
			Code:    "CHECKOUT_NOT_MOUNTED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Unmount handles DELETE /api/v1/checkout
func (h *CheckoutHandler) Unmount(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	h.checkout.Unmount(c.Request.Context(), userCtx.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Checkout closed"})
}

// Countdown handles GET /api/v1/checkout/countdown as a server-sent event stream.
// It emits "tick" with the reservation window until the window expires ("expired")
// or the page goes away ("closed"). A client disconnect ends the stream.
func (h *CheckoutHandler) Countdown(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	if _, err := h.checkout.State(userCtx.UserID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_mounted",
			Message: err.Error(),
			Code:    "CHECKOUT_NOT_MOUNTED",
		})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.tickInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		state, err := h.checkout.State(userCtx.UserID)
		if err != nil {
			c.SSEvent("closed", gin.H{"message": err.Error()})
			c.Writer.Flush()
			return
		}

		if state.Reservation.Expired {
			c.SSEvent("expired", state.Reservation)
			c.Writer.Flush()
			return
		}

		c.SSEvent("tick", state.Reservation)
		c.Writer.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pay handles POST /api/v1/checkout/pay
func (h *CheckoutHandler) Pay(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req PayRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}

	customer := payhere.Customer{
		FirstName: userCtx.FirstName,
		LastName:  userCtx.LastName,
		Email:     userCtx.Email,
		Phone:     userCtx.Phone,
		Address:   req.Address,
		City:      req.City,
		Country:   req.Country,
	}
	if req.Phone != "" {
		customer.Phone = req.Phone
	}
	if customer.Country == "" {
		customer.Country = defaultCountry
	}

	start, err := h.checkout.Pay(c.Request.Context(), userCtx.UserID, customer, clientMeta(c))
	if err != nil {
		h.writePayError(c, userCtx.UserID, err)
		return
	}

	c.JSON(http.StatusOK, start)
}

func (h *CheckoutHandler) writePayError(c *gin.Context, userID uuid.UUID, err error) {
	var fieldErr *validator.FieldError

	status := http.StatusInternalServerError
	resp := gin.H{"error": "payment_error", "message": err.Error()}

	switch {
	case errors.As(err, &fieldErr):
		status = http.StatusBadRequest
		resp = gin.H{"error": "invalid_customer", "message": fieldErr.Error(), "field": fieldErr.Field}
	case errors.Is(err, services.ErrCheckoutNotMounted):
		status = http.StatusNotFound
		resp["code"] = "CHECKOUT_NOT_MOUNTED"
	case errors.Is(err, services.ErrReservationExpired):
		status = http.StatusConflict
		resp["code"] = "RESERVATION_EXPIRED"
	case errors.Is(err, services.ErrPaymentInProgress):
		status = http.StatusConflict
		resp["code"] = "PAYMENT_IN_PROGRESS"
	case errors.Is(err, services.ErrCheckoutCompleted):
		status = http.StatusConflict
		resp["code"] = "CHECKOUT_COMPLETED"
	case errors.Is(err, services.ErrCheckoutClosed):
		status = http.StatusConflict
		resp["code"] = "CHECKOUT_CLOSED"
	case errors.Is(err, services.ErrGatewayNotReady):
		status = http.StatusServiceUnavailable
		resp["code"] = "GATEWAY_NOT_READY"
	case errors.Is(err, services.ErrHashMintFailed):
		status = http.StatusBadGateway
		resp["code"] = "HASH_MINT_FAILED"
	default:
		h.logger.WithError(err).WithField("user_id", userID).Error("Payment attempt failed")
	}

	// The page state carries the banner the client renders
	if state, stateErr := h.checkout.State(userID); stateErr == nil {
		resp["state"] = state
	}
	c.JSON(status, resp)
}
