package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edimy/tutoring-backend/internal/models"
)

var (
	// ErrSlotUnavailable means another student holds or has booked the slot
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrHoldNotActive means the hold was released, expired or already confirmed
	ErrHoldNotActive = errors.New("slot hold is not active")
)

// SlotHoldRepository handles slot_holds
type SlotHoldRepository struct {
	db *sqlx.DB
}

// NewSlotHoldRepository creates a new slot hold repository
func NewSlotHoldRepository(db *sqlx.DB) *SlotHoldRepository {
	return &SlotHoldRepository{db: db}
}

// CreateHold releases the student's previous holds and reserves the slot for them.
// Returns ErrSlotUnavailable if someone else holds or booked the same slot.
func (r *SlotHoldRepository) CreateHold(ctx context.Context, hold *models.SlotHold) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	releaseQuery := `
		UPDATE slot_holds
		SET status = 'released', updated_at = NOW()
		WHERE user_id = $1 AND status = 'held'`

	if _, err := tx.ExecContext(ctx, releaseQuery, hold.UserID); err != nil {
		return fmt.Errorf("failed to release previous holds: %w", err)
	}

	var taken int
	conflictQuery := `
		SELECT COUNT(*) FROM slot_holds
		WHERE slot_id = $1
		AND session_date = $2
		AND user_id <> $3
		AND (status = 'confirmed' OR (status = 'held' AND expires_at > NOW()))`

	if err := tx.GetContext(ctx, &taken, conflictQuery, hold.SlotID, hold.SessionDate, hold.UserID); err != nil {
		return fmt.Errorf("failed to check slot availability: %w", err)
	}
	if taken > 0 {
		return ErrSlotUnavailable
	}

	insertQuery := `
		INSERT INTO slot_holds (
			id, user_id, tutor_id, slot_id, session_date,
			status, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.ExecContext(ctx, insertQuery,
		hold.ID, hold.UserID, hold.TutorID, hold.SlotID, hold.SessionDate,
		hold.Status, hold.ExpiresAt, hold.CreatedAt, hold.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create slot hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot hold: %w", err)
	}
	return nil
}

// GetHoldByID returns the hold or nil if it does not exist
func (r *SlotHoldRepository) GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SlotHold, error) {
	var hold models.SlotHold
	query := `
		SELECT id, user_id, tutor_id, slot_id, session_date::text AS session_date,
			status, expires_at, created_at, updated_at
		FROM slot_holds
		WHERE id = $1`

	err := r.db.GetContext(ctx, &hold, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot hold: %w", err)
	}
	return &hold, nil
}

// ConfirmHold turns an active hold into a booking reservation
func (r *SlotHoldRepository) ConfirmHold(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE slot_holds
		SET status = 'confirmed', updated_at = NOW()
		WHERE id = $1 AND status = 'held' AND expires_at > NOW()`

	return r.transition(ctx, query, id, "confirm")
}

// ReleaseHold gives the slot back
func (r *SlotHoldRepository) ReleaseHold(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE slot_holds
		SET status = 'released', updated_at = NOW()
		WHERE id = $1 AND status = 'held'`

	return r.transition(ctx, query, id, "release")
}

func (r *SlotHoldRepository) transition(ctx context.Context, query string, id uuid.UUID, action string) error {
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to %s slot hold: %w", action, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrHoldNotActive
	}
	return nil
}

// ExpireStaleHolds marks every held row past its expiry as expired
func (r *SlotHoldRepository) ExpireStaleHolds(ctx context.Context) (int, error) {
	query := `
		UPDATE slot_holds
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'held' AND expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to expire slot holds: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
