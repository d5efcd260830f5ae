package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/metrics"
)

// HoldExpirer flips overdue holds to expired and reports how many changed
type HoldExpirer interface {
	ExpireStaleHolds(ctx context.Context) (int, error)
}

// LimiterJanitor drops idle rate limiter entries
type LimiterJanitor interface {
	Cleanup() int
}

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	holds   HoldExpirer
	limiter LimiterJanitor
	spec    string
	logger  *logrus.Logger
}

// NewCronService creates a new CronService. spec is a robfig schedule such as "@every 1m".
// limiter may be nil.
func NewCronService(holds HoldExpirer, limiter LimiterJanitor, spec string, logger *logrus.Logger) *CronService {
	if spec == "" {
		spec = "@every 1m"
	}
	return &CronService{
		cron:    cron.New(cron.WithSeconds()),
		holds:   holds,
		limiter: limiter,
		spec:    spec,
		logger:  logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.expireHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold expiry job: %w", err)
	}
	s.logger.WithField("schedule", s.spec).Info("Scheduled: expire stale slot holds")

	if s.limiter != nil {
		// "0 */10 * * * *" = every 10 minutes
		if _, err := s.cron.AddFunc("0 */10 * * * *", s.cleanupLimiterJob); err != nil {
			return fmt.Errorf("failed to schedule rate limiter cleanup job: %w", err)
		}
		s.logger.Info("Scheduled: rate limiter cleanup (every 10 minutes)")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunExpireHoldsNow runs the hold expiry job immediately
func (s *CronService) RunExpireHoldsNow() {
	s.expireHoldsJob()
}

func (s *CronService) expireHoldsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startTime := time.Now()
	expired, err := s.holds.ExpireStaleHolds(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to expire stale holds")
		return
	}

	metrics.AddHoldsExpired(expired)
	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": time.Since(startTime).String(),
		}).Info("[CRON] Expired stale slot holds")
	}
}

func (s *CronService) cleanupLimiterJob() {
	if removed := s.limiter.Cleanup(); removed > 0 {
		s.logger.WithField("removed", removed).Debug("[CRON] Cleaned up idle rate limiters")
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
