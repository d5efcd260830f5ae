package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotHoldStatus represents the status of a reservation hold
// Matches PostgreSQL ENUM: slot_hold_status
type SlotHoldStatus string

const (
	HoldStatusHeld      SlotHoldStatus = "held"      // Slot locked while the student pays
	HoldStatusConfirmed SlotHoldStatus = "confirmed" // Payment completed, booking created
	HoldStatusReleased  SlotHoldStatus = "released"  // Replaced by a newer hold or page left
	HoldStatusExpired   SlotHoldStatus = "expired"   // Window ran out
)

// SlotHold is the server-side reservation behind the checkout countdown (slot_holds table)
type SlotHold struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	UserID      uuid.UUID      `json:"user_id" db:"user_id"`
	TutorID     string         `json:"tutor_id" db:"tutor_id"`
	SlotID      string         `json:"slot_id" db:"slot_id"`
	SessionDate string         `json:"session_date" db:"session_date"`
	Status      SlotHoldStatus `json:"status" db:"status"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// NewSlotHold creates a held reservation for the session's slot
func NewSlotHold(session *BookingSession, holdFor time.Duration) *SlotHold {
	now := time.Now()
	return &SlotHold{
		ID:          uuid.New(),
		UserID:      session.UserID,
		TutorID:     session.Identity.TutorID,
		SlotID:      session.Slot.SlotID,
		SessionDate: session.SelectedDate,
		Status:      HoldStatusHeld,
		ExpiresAt:   now.Add(holdFor),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsExpired checks if the hold window has passed
func (h *SlotHold) IsExpired() bool {
	return time.Now().After(h.ExpiresAt)
}

// IsActive reports whether the hold still reserves the slot
func (h *SlotHold) IsActive() bool {
	return h.Status == HoldStatusHeld && !h.IsExpired()
}

// RemainingSeconds returns whole seconds left on the hold, never negative
func (h *SlotHold) RemainingSeconds() int {
	remaining := int(time.Until(h.ExpiresAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReservationWindow describes the countdown shown on the payment page
type ReservationWindow struct {
	TotalSeconds     int  `json:"total_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	TickIntervalMs   int  `json:"tick_interval_ms"`
	Expired          bool `json:"expired"`
}
