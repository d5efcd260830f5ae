package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentOrderStatus tracks a single payment attempt
type PaymentOrderStatus string

const (
	OrderStatusPending   PaymentOrderStatus = "pending"
	OrderStatusCompleted PaymentOrderStatus = "completed"
	OrderStatusDismissed PaymentOrderStatus = "dismissed"
	OrderStatusFailed    PaymentOrderStatus = "failed"
)

// PaymentOrder is one attempt to pay for a held slot (payment_orders table).
// Every attempt gets a fresh order id and hash; neither is reused.
type PaymentOrder struct {
	OrderID       string             `json:"order_id" db:"order_id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	HoldID        uuid.UUID          `json:"hold_id" db:"hold_id"`
	TutorID       string             `json:"tutor_id" db:"tutor_id"`
	SlotID        string             `json:"slot_id" db:"slot_id"`
	Amount        string             `json:"amount" db:"amount"` // always two decimals, e.g. "67.50"
	Currency      string             `json:"currency" db:"currency"`
	MerchantID    string             `json:"merchant_id" db:"merchant_id"`
	Hash          string             `json:"-" db:"hash"`
	Status        PaymentOrderStatus `json:"status" db:"status"`
	PaymentID     *string            `json:"payment_id,omitempty" db:"payment_id"`
	StatusMessage *string            `json:"status_message,omitempty" db:"status_message"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// IsFinal reports whether the order already received its outcome
func (o *PaymentOrder) IsFinal() bool {
	return o.Status != OrderStatusPending
}

// FormatAmount renders a price the way the gateway and hash expect it
func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

// FormatMoney renders an amount for display, e.g. "LKR 67.50"
func FormatMoney(currency string, amount float64) string {
	return currency + " " + FormatAmount(amount)
}

// ============================================================================
// PAYMENT OUTCOME
// ============================================================================

// OutcomeKind tags a PaymentOutcome
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeDismissed OutcomeKind = "dismissed"
	OutcomeFailed    OutcomeKind = "failed"
)

// PaymentOutcome is the single result of a started payment
type PaymentOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	OrderID string      `json:"order_id"`
	Message string      `json:"message,omitempty"` // set for failures
}

func CompletedOutcome(orderID string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeCompleted, OrderID: orderID}
}

func DismissedOutcome(orderID string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeDismissed, OrderID: orderID}
}

func FailedOutcome(orderID, message string) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeFailed, OrderID: orderID, Message: message}
}

// OrderStatus maps the outcome onto the persisted order status
func (o PaymentOutcome) OrderStatus() PaymentOrderStatus {
	switch o.Kind {
	case OutcomeCompleted:
		return OrderStatusCompleted
	case OutcomeDismissed:
		return OrderStatusDismissed
	default:
		return OrderStatusFailed
	}
}

// ============================================================================
// CHECKOUT PHASES
// ============================================================================

// CheckoutPhase is the state of the payment page
type CheckoutPhase string

const (
	PhaseIdle                  CheckoutPhase = "idle"
	PhaseAwaitingHash          CheckoutPhase = "awaiting_hash"
	PhaseAwaitingGatewayResult CheckoutPhase = "awaiting_gateway_result"
	PhaseCompleted             CheckoutPhase = "completed"
)

// IsProcessing is true while a payment attempt is in flight
func (p CheckoutPhase) IsProcessing() bool {
	return p == PhaseAwaitingHash || p == PhaseAwaitingGatewayResult
}
