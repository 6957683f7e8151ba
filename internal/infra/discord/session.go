// internal/infra/discord/session.go
package discord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"verifier_bot/internal/domain/chat"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Session wraps a discordgo session and implements chat.Platform.
//
// Each gateway connection has its own context. It is cancelled when the
// connection drops, which aborts every task started on that connection.
type Session struct {
	dg      *discordgo.Session
	timeout time.Duration
	logger  *logrus.Entry
	ready   atomic.Bool

	mu         sync.Mutex
	closed     bool
	connCtx    context.Context
	connCancel context.CancelFunc
}

func NewSession(token string, callTimeout time.Duration, logger *logrus.Entry) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	s := &Session{dg: dg, timeout: callTimeout, logger: logger}
	s.connCtx, s.connCancel = context.WithCancel(context.Background())

	dg.AddHandler(s.onReady)
	dg.AddHandler(s.onConnect)
	dg.AddHandler(s.onDisconnect)
	return s, nil
}

func (s *Session) Open() error {
	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	s.ready.Store(false)
	s.mu.Lock()
	s.closed = true
	s.connCancel()
	s.mu.Unlock()
	return s.dg.Close()
}

// Ready reports whether the gateway has completed its handshake.
func (s *Session) Ready() bool {
	return s.ready.Load()
}

// TaskContext returns a context bound to the current gateway connection.
// Connect and interaction events are dispatched concurrently, so an
// interaction from a new connection may arrive before onConnect; a cancelled
// context is renewed here unless the session was closed.
func (s *Session) TaskContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewLocked()
	return context.WithCancel(s.connCtx)
}

// renewLocked replaces a cancelled connection context. s.mu must be held.
func (s *Session) renewLocked() {
	if s.closed || s.connCtx.Err() == nil {
		return
	}
	s.connCtx, s.connCancel = context.WithCancel(context.Background())
}

func (s *Session) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	s.ready.Store(true)
	s.logger.WithFields(logrus.Fields{
		"bot_user": r.User.Username,
		"guilds":   len(r.Guilds),
	}).Info("Discord session ready")
}

func (s *Session) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewLocked()
	s.logger.Debug("Discord gateway connected")
}

func (s *Session) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	s.ready.Store(false)
	s.mu.Lock()
	s.connCancel()
	s.mu.Unlock()
	s.logger.Warn("Discord gateway disconnected, aborting in-flight verifications")
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Session) RenameMember(ctx context.Context, guildID, userID, nickname string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.dg.GuildMemberNickname(guildID, userID, nickname, discordgo.WithContext(ctx))
}

func (s *Session) RoleIDByName(ctx context.Context, guildID, name string) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	roles, err := s.dg.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list roles of guild %s: %w", guildID, err)
	}
	if id, ok := findRole(roles, name); ok {
		return id, nil
	}
	return "", chat.ErrRoleNotFound
}

func (s *Session) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.dg.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (s *Session) Username(ctx context.Context, userID string) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	u, err := s.dg.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	return u.Username, nil
}

func (s *Session) GuildIDs() []string {
	s.dg.State.RLock()
	defer s.dg.State.RUnlock()
	ids := make([]string, 0, len(s.dg.State.Guilds))
	for _, g := range s.dg.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

// findRole returns the id of the first role named name.
func findRole(roles []*discordgo.Role, name string) (string, bool) {
	for _, r := range roles {
		if r.Name == name {
			return r.ID, true
		}
	}
	return "", false
}
