package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TutorBookingStatus represents the status of a paid tutoring session
type TutorBookingStatus string

const (
	TutorBookingConfirmed TutorBookingStatus = "confirmed"

	// Paid, but the hold could not be confirmed (e.g. it expired during payment)
	TutorBookingNeedsReview TutorBookingStatus = "needs_review"
)

// BookingSnapshot freezes the wizard selections at payment time
type BookingSnapshot struct {
	Identity     BookingIdentity    `json:"identity"`
	SelectedDate string             `json:"selected_date"`
	Preferences  BookingPreferences `json:"preferences"`
	Slot         SelectedSlot       `json:"slot"`
}

// Value returns JSON text; lib/pq would send []byte as bytea
func (s BookingSnapshot) Value() (driver.Value, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (s *BookingSnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = BookingSnapshot{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("type assertion to []byte failed for BookingSnapshot")
	}
}

// TutorBooking is a paid session (tutor_bookings table)
type TutorBooking struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	UserID      uuid.UUID          `json:"user_id" db:"user_id"`
	HoldID      uuid.UUID          `json:"hold_id" db:"hold_id"`
	OrderID     string             `json:"order_id" db:"order_id"`
	TutorID     string             `json:"tutor_id" db:"tutor_id"`
	SlotID      string             `json:"slot_id" db:"slot_id"`
	SessionDate string             `json:"session_date" db:"session_date"`
	Snapshot    BookingSnapshot    `json:"snapshot" db:"snapshot"`
	TotalAmount float64            `json:"total_amount" db:"total_amount"`
	Currency    string             `json:"currency" db:"currency"`
	Status      TutorBookingStatus `json:"status" db:"status"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// MadeFrom reports whether the wizard session is the one this booking was paid from
func (b *TutorBooking) MadeFrom(s *BookingSession) bool {
	if s == nil {
		return false
	}
	if s.BookingID != nil {
		return *s.BookingID == b.ID
	}
	return s.Identity != nil && s.Identity.TutorID == b.TutorID &&
		s.Slot != nil && s.Slot.SlotID == b.SlotID &&
		s.SelectedDate == b.SessionDate
}

// NewTutorBooking builds the booking row for a completed payment
func NewTutorBooking(session *BookingSession, hold *SlotHold, order *PaymentOrder) *TutorBooking {
	snapshot := BookingSnapshot{
		SelectedDate: session.SelectedDate,
	}
	if session.Identity != nil {
		snapshot.Identity = *session.Identity
	}
	if session.Preferences != nil {
		snapshot.Preferences = *session.Preferences
	}
	if session.Slot != nil {
		snapshot.Slot = *session.Slot
	}

	return &TutorBooking{
		ID:          uuid.New(),
		UserID:      session.UserID,
		HoldID:      hold.ID,
		OrderID:     order.OrderID,
		TutorID:     hold.TutorID,
		SlotID:      hold.SlotID,
		SessionDate: session.SelectedDate,
		Snapshot:    snapshot,
		TotalAmount: session.Total(),
		Currency:    order.Currency,
		Status:      TutorBookingConfirmed,
		CreatedAt:   time.Now(),
	}
}

// ============================================================================
// RECEIPT
// ============================================================================

// Receipt is the confirmation view of a paid booking
type Receipt struct {
	BookingID  uuid.UUID `json:"booking_id"`
	OrderID    string    `json:"order_id"`
	TutorName  string    `json:"tutor_name"`
	Subject    string    `json:"subject,omitempty"`
	Language   string    `json:"language,omitempty"`
	ClassType  string    `json:"class_type,omitempty"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Duration   string    `json:"duration"`
	Total      string    `json:"total"` // "LKR 67.50"
	Status     string    `json:"status"`
	IsFinished bool      `json:"is_finished"`
	BookedAt   time.Time `json:"booked_at"`
}

// Receipt renders the booking for the confirmation page
func (b *TutorBooking) Receipt() *Receipt {
	r := &Receipt{
		BookingID:  b.ID,
		OrderID:    b.OrderID,
		TutorName:  b.Snapshot.Identity.FullName(),
		Date:       b.SessionDate,
		StartTime:  b.Snapshot.Slot.StartTime,
		EndTime:    b.Snapshot.Slot.EndTime,
		Total:      FormatMoney(b.Currency, b.TotalAmount),
		Status:     string(b.Status),
		IsFinished: b.FinishedAt != nil,
		BookedAt:   b.CreatedAt,
	}

	prefs := b.Snapshot.Preferences
	if prefs.SelectedSubject != nil {
		r.Subject = prefs.SelectedSubject.Name
	}
	if prefs.SelectedLanguage != nil {
		r.Language = prefs.SelectedLanguage.Name
	}
	if prefs.SelectedClassType != nil {
		r.ClassType = prefs.SelectedClassType.Name
	}

	if d, err := b.Snapshot.Slot.Duration(); err == nil {
		r.Duration = FormatDuration(d)
	}

	return r
}

// FormatDuration renders a session length like "1h 30m"
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", minutes)
	case minutes == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}
