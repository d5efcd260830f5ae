package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edimy/tutoring-backend/internal/models"
)

const keyPrefix = "booking_session:"

// Store persists the booking wizard's state, one value per student
type Store interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.BookingSession, error)
	Save(ctx context.Context, session *models.BookingSession) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

// RedisStore keeps booking sessions in Redis under booking_session:<user id>
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store; each save refreshes the TTL
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

// Load returns the student's session, or nil if there is none
func (s *RedisStore) Load(ctx context.Context, userID uuid.UUID) (*models.BookingSession, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking session: %w", err)
	}

	var session models.BookingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking session: %w", err)
	}
	return &session, nil
}

// Save writes the whole session
func (s *RedisStore) Save(ctx context.Context, session *models.BookingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal booking session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save booking session: %w", err)
	}
	return nil
}

// Clear removes the session. Clearing a missing session is not an error.
func (s *RedisStore) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear booking session: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
