// internal/domain/chat/platform.go
package chat

import (
	"context"
	"errors"
)

// ErrRoleNotFound is returned when a guild has no role with the requested name.
var ErrRoleNotFound = errors.New("role not found in guild")

// Member identifies a guild member invoking an interaction.
type Member struct {
	GuildID  string
	UserID   string
	Username string
}

// Platform is the subset of chat-platform operations the verification workflow needs.
// This keeps the workflow independent of the Discord library.
type Platform interface {
	RenameMember(ctx context.Context, guildID, userID, nickname string) error
	// RoleIDByName resolves a role by its exact name. ErrRoleNotFound is
	// returned when no role matches; with duplicates the first one wins.
	RoleIDByName(ctx context.Context, guildID, name string) (string, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	Username(ctx context.Context, userID string) (string, error)
	GuildIDs() []string
}
