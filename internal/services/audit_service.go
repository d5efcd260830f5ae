package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/utils"
)

// AuditLogger persists payment audit entries
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// ClientMeta is request metadata attached to audit entries
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// AuditService records payment events. Write failures are logged and never
// returned, so a broken audit table cannot block a payment.
type AuditService struct {
	repo   AuditLogger
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditLogger, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record writes an audit entry, filling request metadata when present
func (s *AuditService) Record(ctx context.Context, audit *models.PaymentAudit, meta *ClientMeta) {
	if s == nil || s.repo == nil || audit == nil {
		return
	}

	if meta != nil {
		audit.SetMetadata(meta.IPAddress, meta.UserAgent, utils.ParseUserAgent(meta.UserAgent).Map())
	}

	if err := s.repo.Log(ctx, audit); err != nil {
		entry := s.logger.WithError(err).WithField("event_type", audit.EventType)
		if audit.OrderID != nil {
			entry = entry.WithField("order_id", *audit.OrderID)
		}
		entry.Error("Failed to write payment audit")
	}
}
