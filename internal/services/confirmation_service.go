package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/session"
)

// ErrBookingNotFound is returned when the booking does not exist or belongs to someone else
var ErrBookingNotFound = errors.New("booking not found")

// Routes the confirmation page can leave to
const (
	RouteDashboard  = "/student/dashboard"
	RouteNewBooking = "/tutors"
)

// BookingReader loads and finishes a student's paid bookings
type BookingReader interface {
	GetBookingForUser(ctx context.Context, id, userID uuid.UUID) (*models.TutorBooking, error)
	MarkFinished(ctx context.Context, id, userID uuid.UUID) error
}

// PageCloser tears down the checkout page a booking was paid on
type PageCloser interface {
	UnmountBooking(ctx context.Context, userID uuid.UUID, booking *models.TutorBooking) bool
}

// ConfirmationService renders the receipt and closes out the wizard
type ConfirmationService struct {
	bookings BookingReader
	store    session.Store
	checkout PageCloser
	logger   *logrus.Logger
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(bookings BookingReader, store session.Store, checkout PageCloser, logger *logrus.Logger) *ConfirmationService {
	return &ConfirmationService{
		bookings: bookings,
		store:    store,
		checkout: checkout,
		logger:   logger,
	}
}

// Receipt returns the confirmation view of a student's booking
func (s *ConfirmationService) Receipt(ctx context.Context, userID, bookingID uuid.UUID) (*models.Receipt, error) {
	booking, err := s.bookings.GetBookingForUser(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking.Receipt(), nil
}

// Finish irreversibly clears what is left of this booking's wizard and returns the next route.
// A wizard or checkout page the student has since started for another booking is kept.
// next is "new_booking" to start over, anything else goes to the dashboard.
func (s *ConfirmationService) Finish(ctx context.Context, userID, bookingID uuid.UUID, next string) (string, error) {
	booking, err := s.bookings.GetBookingForUser(ctx, bookingID, userID)
	if err != nil {
		return "", err
	}
	if booking == nil {
		return "", ErrBookingNotFound
	}

	if err := s.bookings.MarkFinished(ctx, bookingID, userID); err != nil {
		return "", err
	}

	sess, err := s.store.Load(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load booking session: %w", err)
	}
	if booking.MadeFrom(sess) {
		if err := s.store.Clear(ctx, userID); err != nil {
			return "", fmt.Errorf("failed to clear booking session: %w", err)
		}
	}
	if s.checkout != nil {
		s.checkout.UnmountBooking(ctx, userID, booking)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"booking_id": bookingID,
	}).Info("Booking wizard finished")

	if next == "new_booking" {
		return RouteNewBooking, nil
	}
	return RouteDashboard, nil
}
