package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, user_id, hold_id, order_id, payment_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			status_code, status_message, payload, error_message,
			ip_address, user_agent, device_info, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.UserID, audit.HoldID, audit.OrderID, audit.PaymentID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.StatusCode, audit.StatusMessage, audit.Payload, audit.ErrorMessage,
		audit.IPAddress, audit.UserAgent, audit.DeviceInfo, audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"order_id":   audit.OrderID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"order_id":   audit.OrderID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByOrderID retrieves all audit entries for an order, oldest first
func (r *PaymentAuditRepository) GetByOrderID(ctx context.Context, orderID string) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT id, user_id, hold_id, order_id, payment_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			status_code, status_message, payload, error_message,
			ip_address, user_agent, device_info, created_at
		FROM payment_audits
		WHERE order_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get audits by order ID: %w", err)
	}
	return audits, nil
}
