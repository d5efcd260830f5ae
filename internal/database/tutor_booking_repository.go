package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edimy/tutoring-backend/internal/models"
)

// TutorBookingRepository handles tutor_bookings
type TutorBookingRepository struct {
	db *sqlx.DB
}

// NewTutorBookingRepository creates a new tutor booking repository
func NewTutorBookingRepository(db *sqlx.DB) *TutorBookingRepository {
	return &TutorBookingRepository{db: db}
}

// CreateBooking stores a paid booking. The order id is unique, so a
// replayed completion cannot create a second booking.
func (r *TutorBookingRepository) CreateBooking(ctx context.Context, booking *models.TutorBooking) error {
	query := `
		INSERT INTO tutor_bookings (
			id, user_id, hold_id, order_id, tutor_id, slot_id, session_date,
			snapshot, total_amount, currency, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		booking.ID, booking.UserID, booking.HoldID, booking.OrderID, booking.TutorID,
		booking.SlotID, booking.SessionDate, booking.Snapshot, booking.TotalAmount,
		booking.Currency, booking.Status, booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tutor booking: %w", err)
	}
	return nil
}

// GetBookingForUser returns the student's booking or nil if it does not exist
func (r *TutorBookingRepository) GetBookingForUser(ctx context.Context, id, userID uuid.UUID) (*models.TutorBooking, error) {
	var booking models.TutorBooking
	query := `
		SELECT id, user_id, hold_id, order_id, tutor_id, slot_id, session_date::text AS session_date,
			snapshot, total_amount, currency, status, finished_at, created_at
		FROM tutor_bookings
		WHERE id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &booking, query, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tutor booking: %w", err)
	}
	return &booking, nil
}

// MarkFinished records that the student left the confirmation page; idempotent
func (r *TutorBookingRepository) MarkFinished(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE tutor_bookings
		SET finished_at = COALESCE(finished_at, NOW())
		WHERE id = $1 AND user_id = $2`

	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("failed to finish tutor booking: %w", err)
	}
	return nil
}
