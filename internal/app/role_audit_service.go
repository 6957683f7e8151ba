package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"verifier_bot/internal/domain/alert"
	"verifier_bot/internal/domain/chat"

	"github.com/sirupsen/logrus"
)

// RoleAuditService checks that every connected guild has the role granted on
// verification, so misconfiguration surfaces before a member hits it.
// A guild is alerted once when it starts missing the role and again only
// after it has been seen with the role in between.
type RoleAuditService struct {
	chat     chat.Platform
	alerts   alert.Notifier
	roleName string
	logger   *logrus.Entry

	mu       sync.Mutex
	reported map[string]bool
}

func NewRoleAuditService(platform chat.Platform, alerts alert.Notifier, roleName string, logger *logrus.Entry) *RoleAuditService {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	return &RoleAuditService{
		chat:     platform,
		alerts:   alerts,
		roleName: roleName,
		logger:   logger,
		reported: make(map[string]bool),
	}
}

// Audit returns the ids of guilds that lack the role. Lookup failures other
// than a missing role are joined into the returned error.
func (s *RoleAuditService) Audit(ctx context.Context) ([]string, error) {
	guildIDs := s.chat.GuildIDs()
	s.logger.WithField("guild_count", len(guildIDs)).Debug("Auditing verified role")

	var missing []string
	var errs []error
	failed := make(map[string]bool)
	for _, guildID := range guildIDs {
		_, err := s.chat.RoleIDByName(ctx, guildID, s.roleName)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrRoleNotFound):
			s.logger.WithFields(logrus.Fields{"guild_id": guildID, "role": s.roleName}).Error("Verified role missing from guild")
			missing = append(missing, guildID)
		default:
			s.logger.WithError(err).WithField("guild_id", guildID).Warn("Could not list guild roles")
			failed[guildID] = true
			errs = append(errs, fmt.Errorf("guild %s: %w", guildID, err))
		}
	}

	if fresh := s.markReported(missing, failed); len(fresh) > 0 {
		text := fmt.Sprintf("Verified role %q is missing in guild(s): %s", s.roleName, strings.Join(missing, ", "))
		if err := s.alerts.Alert(ctx, text); err != nil {
			s.logger.WithError(err).Warn("Failed to deliver operator alert")
		}
	}
	return missing, errors.Join(errs...)
}

// markReported records the current set of guilds missing the role and
// returns the ones not reported before. Guilds whose lookup failed keep their
// previous state.
func (s *RoleAuditService) markReported(missing []string, failed map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]bool, len(missing))
	var fresh []string
	for _, guildID := range missing {
		next[guildID] = true
		if !s.reported[guildID] {
			fresh = append(fresh, guildID)
		}
	}
	for guildID := range failed {
		if s.reported[guildID] {
			next[guildID] = true
		}
	}
	s.reported = next
	return fresh
}
