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

// ErrInvalidSessionUpdate wraps every rejected wizard update
var ErrInvalidSessionUpdate = errors.New("invalid booking session update")

// BookingSessionService keeps the wizard's selections between pages
type BookingSessionService struct {
	store  session.Store
	logger *logrus.Logger
}

// NewBookingSessionService creates a new booking session service
func NewBookingSessionService(store session.Store, logger *logrus.Logger) *BookingSessionService {
	return &BookingSessionService{
		store:  store,
		logger: logger,
	}
}

// Get returns the student's session, or a fresh empty one
func (s *BookingSessionService) Get(ctx context.Context, userID uuid.UUID) (*models.BookingSession, error) {
	sess, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking session: %w", err)
	}
	if sess == nil {
		sess = models.NewBookingSession(userID)
	}
	return sess, nil
}

// Update merges the wizard's changes into the stored session
func (s *BookingSessionService) Update(ctx context.Context, userID uuid.UUID, update models.BookingSessionUpdate) (*models.BookingSession, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := sess.Apply(update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSessionUpdate, err)
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save booking session: %w", err)
	}
	return sess, nil
}

// Reset discards the session, e.g. when the student starts over
func (s *BookingSessionService) Reset(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear booking session: %w", err)
	}
	s.logger.WithField("user_id", userID).Info("Booking session reset")
	return nil
}
