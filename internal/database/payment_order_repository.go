package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edimy/tutoring-backend/internal/models"
)

// ErrOrderFinalized means the order already has an outcome
var ErrOrderFinalized = errors.New("payment order already finalized")

// PaymentOrderRepository handles payment_orders
type PaymentOrderRepository struct {
	db *sqlx.DB
}

// NewPaymentOrderRepository creates a new payment order repository
func NewPaymentOrderRepository(db *sqlx.DB) *PaymentOrderRepository {
	return &PaymentOrderRepository{db: db}
}

// CreateOrder stores a new pending order
func (r *PaymentOrderRepository) CreateOrder(ctx context.Context, order *models.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (
			order_id, user_id, hold_id, tutor_id, slot_id,
			amount, currency, merchant_id, hash, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		order.OrderID, order.UserID, order.HoldID, order.TutorID, order.SlotID,
		order.Amount, order.Currency, order.MerchantID, order.Hash, order.Status,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// GetOrder returns the order or nil if it does not exist
func (r *PaymentOrderRepository) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	query := `
		SELECT order_id, user_id, hold_id, tutor_id, slot_id,
			amount, currency, merchant_id, hash, status,
			payment_id, status_message, created_at, updated_at
		FROM payment_orders
		WHERE order_id = $1`

	err := r.db.GetContext(ctx, &order, query, orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}
	return &order, nil
}

// FinalizeOrder records the outcome of a pending order.
// Returns ErrOrderFinalized if the order already has one.
func (r *PaymentOrderRepository) FinalizeOrder(ctx context.Context, orderID string, status models.PaymentOrderStatus, paymentID, message *string) error {
	query := `
		UPDATE payment_orders
		SET status = $2,
			payment_id = COALESCE($3, payment_id),
			status_message = $4,
			updated_at = NOW()
		WHERE order_id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, orderID, status, paymentID, message)
	if err != nil {
		return fmt.Errorf("failed to finalize payment order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrderFinalized
	}
	return nil
}
