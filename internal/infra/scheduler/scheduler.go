package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const auditTimeout = 2 * time.Minute

// RoleAuditor is satisfied by app.RoleAuditService.
type RoleAuditor interface {
	Audit(ctx context.Context) ([]string, error)
}

type RoleAuditScheduler struct {
	cronEngine *cron.Cron
	auditor    RoleAuditor
	logger     *logrus.Entry
	cronSpec   string // e.g., "*/30 * * * *" (every 30 minutes)
}

func NewRoleAuditScheduler(auditor RoleAuditor, logger *logrus.Entry, cronSpec string) *RoleAuditScheduler {
	return &RoleAuditScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		auditor:    auditor,
		logger:     logger,
		cronSpec:   cronSpec,
	}
}

// Start registers the audit job and starts the cron engine.
func (s *RoleAuditScheduler) Start() error {
	s.logger.Info("Starting role audit scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Debug("Cron job triggered for role audit.")
		s.RunAudit(context.Background())
	})
	if err != nil {
		return fmt.Errorf("could not add role audit cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("Role audit scheduler started.")
	return nil
}

// RunAudit runs a single audit with a bounded timeout and logs the result.
func (s *RoleAuditScheduler) RunAudit(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()

	missing, err := s.auditor.Audit(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during role audit")
	}
	if len(missing) == 0 && err == nil {
		s.logger.Debug("Role audit passed for all guilds.")
	}
}

func (s *RoleAuditScheduler) Stop() {
	s.logger.Info("Stopping role audit scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Role audit scheduler gracefully stopped.")
}
