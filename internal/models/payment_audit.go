package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventHashMinted             PaymentEventType = "hash_minted"
	PaymentEventHashFailed             PaymentEventType = "hash_failed"
	PaymentEventGatewayStarted         PaymentEventType = "gateway_started"
	PaymentEventNotifyReceived         PaymentEventType = "notify_received"
	PaymentEventNotifyRejected         PaymentEventType = "notify_rejected"
	PaymentEventCompleted              PaymentEventType = "payment_completed"
	PaymentEventDismissed              PaymentEventType = "payment_dismissed"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed   PaymentEventType = "booking_confirmation_failed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend       PaymentEventSource = "backend"
	PaymentSourcePayHereNotify PaymentEventSource = "payhere_notify"
	PaymentSourceClient        PaymentEventSource = "client"
	PaymentSourceSystem        PaymentEventSource = "system"
)

// JSONB is a free-form JSON column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	HoldID    *uuid.UUID `json:"hold_id,omitempty" db:"hold_id"`
	OrderID   *string    `json:"order_id,omitempty" db:"order_id"`
	PaymentID *string    `json:"payment_id,omitempty" db:"payment_id"` // PayHere payment_id

	// Event info
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	// Amount tracking
	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string  `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	// Gateway status
	StatusCode    *int    `json:"status_code,omitempty" db:"status_code"`
	StatusMessage *string `json:"status_message,omitempty" db:"status_message"`

	// Raw payloads
	Payload JSONB `json:"payload,omitempty" db:"payload"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Request metadata
	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo JSONB   `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetOrder links the audit to a payment order and its hold
func (pa *PaymentAudit) SetOrder(order *PaymentOrder) *PaymentAudit {
	orderID := order.OrderID
	userID := order.UserID
	holdID := order.HoldID
	pa.OrderID = &orderID
	pa.UserID = &userID
	pa.HoldID = &holdID
	return pa
}

// SetOrderID links the audit to an order id only (e.g. an unknown order in a notify)
func (pa *PaymentAudit) SetOrderID(orderID string) *PaymentAudit {
	pa.OrderID = &orderID
	return pa
}

// SetPaymentID sets the PayHere payment id
func (pa *PaymentAudit) SetPaymentID(paymentID string) *PaymentAudit {
	if paymentID != "" {
		pa.PaymentID = &paymentID
	}
	return pa
}

// SetAmounts sets and verifies amounts - returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received float64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	// Compare with tolerance for floating point
	const tolerance = 0.01
	diff := expected - received
	match := diff < tolerance && diff > -tolerance
	pa.AmountsMatch = &match
	return match
}

// SetGatewayStatus sets the status reported by PayHere
func (pa *PaymentAudit) SetGatewayStatus(code int, message string) *PaymentAudit {
	pa.StatusCode = &code
	if message != "" {
		pa.StatusMessage = &message
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetPayload stores the raw event payload
func (pa *PaymentAudit) SetPayload(payload map[string]interface{}) *PaymentAudit {
	pa.Payload = JSONB(payload)
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent string, device map[string]interface{}) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if len(device) > 0 {
		pa.DeviceInfo = JSONB(device)
	}
	return pa
}
