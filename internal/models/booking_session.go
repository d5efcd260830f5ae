package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// WIZARD STEPS
// ============================================================================

// WizardStep is the furthest step of the booking wizard the student reached
type WizardStep string

const (
	StepTutor        WizardStep = "tutor"
	StepSlots        WizardStep = "slots"
	StepPreferences  WizardStep = "preferences"
	StepPayment      WizardStep = "payment"
	StepConfirmation WizardStep = "confirmation"
)

var stepOrder = map[WizardStep]int{
	StepTutor:        0,
	StepSlots:        1,
	StepPreferences:  2,
	StepPayment:      3,
	StepConfirmation: 4,
}

// IsValid reports whether the step is a known wizard step
func (s WizardStep) IsValid() bool {
	_, ok := stepOrder[s]
	return ok
}

// ReachedPayment reports whether the wizard is at or beyond the payment step
func (s WizardStep) ReachedPayment() bool {
	return stepOrder[s] >= stepOrder[StepPayment]
}

// ErrIdentityLocked is returned when the tutor is changed after the payment step was reached
var ErrIdentityLocked = errors.New("tutor selection is locked once payment has started")

// ErrStepLocked is returned when the wizard is moved back after the payment step was reached.
// Only a reset or a completed booking starts the wizard over.
var ErrStepLocked = errors.New("wizard step cannot go back once payment has started")

// ErrInvalidSlot is returned for a slot whose end is not after its start
var ErrInvalidSlot = errors.New("slot end time must be after start time")

// ============================================================================
// SELECTIONS
// ============================================================================

// BookingIdentity identifies the tutor being booked
type BookingIdentity struct {
	TutorID        string `json:"tutor_id"`
	TutorFirstName string `json:"tutor_first_name"`
	TutorLastName  string `json:"tutor_last_name"`
}

// FullName returns the tutor's display name
func (i BookingIdentity) FullName() string {
	if i.TutorLastName == "" {
		return i.TutorFirstName
	}
	return i.TutorFirstName + " " + i.TutorLastName
}

// NamedOption is a selectable option with an id and display name
type NamedOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubjectOption is a subject with the tutor's hourly rate
type SubjectOption struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
}

// ClassTypeOption is a class format (individual, group...) with its price multiplier
type ClassTypeOption struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PriceMultiplier float64 `json:"price_multiplier"`
}

// BookingPreferences holds what the student picked on the preferences step
type BookingPreferences struct {
	SelectedSubject   *SubjectOption   `json:"selected_subject,omitempty"`
	SelectedLanguage  *NamedOption     `json:"selected_language,omitempty"`
	SelectedClassType *ClassTypeOption `json:"selected_class_type,omitempty"`
	FinalPrice        *float64         `json:"final_price,omitempty"`
}

// SelectedSlot is a time slot on the selected date, times as HH:MM
type SelectedSlot struct {
	SlotID    string  `json:"slot_id"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Price     float64 `json:"price"`
}

// Duration returns end - start. Both ends are on the same day.
func (s SelectedSlot) Duration() (time.Duration, error) {
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", s.StartTime, err)
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", s.EndTime, err)
	}
	d := end.Sub(start)
	if d <= 0 {
		return 0, ErrInvalidSlot
	}
	return d, nil
}

// ============================================================================
// BOOKING SESSION
// ============================================================================

// BookingSession is everything the wizard has collected for one student
type BookingSession struct {
	UserID       uuid.UUID           `json:"user_id"`
	Identity     *BookingIdentity    `json:"identity,omitempty"`
	SelectedDate string              `json:"selected_date,omitempty"` // "2006-01-02"
	Preferences  *BookingPreferences `json:"preferences,omitempty"`
	Slot         *SelectedSlot       `json:"slot,omitempty"`
	BookingID    *uuid.UUID          `json:"booking_id,omitempty"`
	Step         WizardStep          `json:"step"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewBookingSession creates an empty session for a student
func NewBookingSession(userID uuid.UUID) *BookingSession {
	return &BookingSession{
		UserID:    userID,
		Step:      StepTutor,
		UpdatedAt: time.Now(),
	}
}

// BookingSessionUpdate carries a partial update from the wizard; nil fields are left untouched
type BookingSessionUpdate struct {
	Identity     *BookingIdentity    `json:"identity,omitempty"`
	SelectedDate *string             `json:"selected_date,omitempty"`
	Preferences  *BookingPreferences `json:"preferences,omitempty"`
	Slot         *SelectedSlot       `json:"slot,omitempty"`
	Step         *WizardStep         `json:"step,omitempty"`
}

// Apply merges an update into the session
func (s *BookingSession) Apply(u BookingSessionUpdate) error {
	if u.Step != nil {
		if !u.Step.IsValid() {
			return fmt.Errorf("unknown wizard step %q", *u.Step)
		}
		if s.Step.ReachedPayment() && stepOrder[*u.Step] < stepOrder[s.Step] {
			return ErrStepLocked
		}
	}

	if u.Identity != nil {
		if s.Step.ReachedPayment() && (s.Identity == nil || *s.Identity != *u.Identity) {
			return ErrIdentityLocked
		}
		identity := *u.Identity
		s.Identity = &identity
	}

	if u.SelectedDate != nil {
		if _, err := time.Parse("2006-01-02", *u.SelectedDate); err != nil {
			return fmt.Errorf("invalid selected date %q: %w", *u.SelectedDate, err)
		}
		s.SelectedDate = *u.SelectedDate
	}

	if u.Slot != nil {
		if _, err := u.Slot.Duration(); err != nil {
			return err
		}
		slot := *u.Slot
		s.Slot = &slot
	}

	if u.Preferences != nil {
		if u.Preferences.FinalPrice != nil && *u.Preferences.FinalPrice <= 0 {
			return fmt.Errorf("final price must be positive")
		}
		prefs := *u.Preferences
		s.Preferences = &prefs
	}

	if u.Step != nil {
		s.Step = *u.Step
	}

	s.UpdatedAt = time.Now()
	return nil
}

// PrerequisiteError means the payment step was entered with part of the booking missing.
// The client is expected to navigate to RedirectTo without showing an error.
type PrerequisiteError struct {
	Missing    string `json:"missing"`
	RedirectTo string `json:"redirect_to"`
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("booking prerequisite missing: %s", e.Missing)
}

// CheckPrerequisites returns a *PrerequisiteError naming the first missing piece
// among tutor, date, slot and final price, or nil when payment may begin
func (s *BookingSession) CheckPrerequisites() error {
	if s == nil || s.Identity == nil || s.Identity.TutorID == "" {
		return &PrerequisiteError{Missing: "tutor", RedirectTo: "/tutors"}
	}

	slotsRoute := fmt.Sprintf("/booking/%s/slots", s.Identity.TutorID)

	if s.SelectedDate == "" {
		return &PrerequisiteError{Missing: "date", RedirectTo: slotsRoute}
	}

	if s.Slot == nil {
		return &PrerequisiteError{Missing: "slot", RedirectTo: slotsRoute}
	}
	if _, err := s.Slot.Duration(); err != nil {
		return &PrerequisiteError{Missing: "slot", RedirectTo: slotsRoute}
	}

	if s.Preferences == nil || s.Preferences.FinalPrice == nil {
		return &PrerequisiteError{Missing: "final_price", RedirectTo: slotsRoute}
	}

	return nil
}

// Total returns the price to charge; only meaningful after CheckPrerequisites passed
func (s *BookingSession) Total() float64 {
	if s.Preferences == nil || s.Preferences.FinalPrice == nil {
		return 0
	}
	return *s.Preferences.FinalPrice
}
