// internal/infra/discord/handlers.go
package discord

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"verifier_bot/internal/app"
	"verifier_bot/internal/domain/chat"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	VerifyButtonID = "persistent:verify_contestdojo"
	VerifyModalID  = "contestdojo_verify_modal"
	EmailInputID   = "email"

	maxEmailLength = 320
)

const verifyTextFormat = `Welcome to the %s Discord server!

To gain access to the channels, please first verify yourself with ContestDojo
using the button below. You will be prompted to enter the email address you used
to register for the event. This is the same email address you will use to login
to the website to take your tests.

Once you are verified, you will be able to see the rest of the server. If you
have trouble verifying, please reach out to server staff or open a ticket.`

// Verifier is satisfied by app.VerificationService.
type Verifier interface {
	HandleSubmission(ctx context.Context, sub app.Submission) app.Result
}

type HandlerConfig struct {
	VerifyTrigger string
	EventName     string
}

type handlers struct {
	session  *Session
	verifier Verifier
	cfg      HandlerConfig
	logger   *logrus.Entry
}

// RegisterHandlers wires the verify panel trigger, the verify button and the
// email modal to the verification workflow.
func RegisterHandlers(sess *Session, verifier Verifier, cfg HandlerConfig, baseLogger *logrus.Entry) {
	h := &handlers{session: sess, verifier: verifier, cfg: cfg, logger: baseLogger}
	sess.dg.AddHandler(h.onMessageCreate)
	sess.dg.AddHandler(h.onInteractionCreate)
}

func (h *handlers) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Content != h.cfg.VerifyTrigger {
		return
	}
	defer h.recoverPanic("message_create")

	log := h.logger.WithFields(logrus.Fields{
		"handler":    "verify_panel",
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"sender_id":  m.Author.ID,
	})
	log.Info("Verify panel trigger received")

	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve sender permissions")
		return
	}
	if !isAdministrator(perms) {
		log.Warn("Unauthorized verify panel trigger")
		return
	}

	if err := s.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		log.WithError(err).Warn("Failed to delete trigger message")
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, VerifyPanel(h.cfg.EventName)); err != nil {
		log.WithError(err).Error("Failed to post verify panel")
		return
	}
	log.Info("Verify panel posted")
}

func (h *handlers) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer h.recoverPanic("interaction_create")

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID != VerifyButtonID {
			return
		}
		if err := s.InteractionRespond(i.Interaction, VerifyModal()); err != nil {
			h.logger.WithError(err).WithField("handler", "verify_button").Error("Failed to open verify modal")
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		if data.CustomID != VerifyModalID {
			return
		}
		h.handleSubmission(s, i, data)
	}
}

func (h *handlers) handleSubmission(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	log := h.logger.WithField("handler", "verify_modal")

	// Lookup plus update can exceed the interaction deadline, so acknowledge first.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.WithError(err).Error("Failed to acknowledge submission")
		return
	}

	ctx, cancel := h.session.TaskContext()
	defer cancel()

	res := h.verifier.HandleSubmission(ctx, app.Submission{
		Email:  ModalValue(data, EmailInputID),
		Member: MemberFromInteraction(i.Interaction),
	})

	log = log.WithFields(logrus.Fields{"task_id": res.TaskID, "outcome": res.Outcome})
	content := res.Message
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		log.WithError(err).Error("Failed to send verification reply")
		return
	}
	log.Debug("Verification reply sent")
}

func (h *handlers) recoverPanic(event string) {
	if r := recover(); r != nil {
		h.logger.WithFields(logrus.Fields{
			"event": event,
			"panic": fmt.Sprint(r),
			"stack": string(debug.Stack()),
		}).Error("Recovered from panic in discord handler")
	}
}

func isAdministrator(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0
}

// VerifyPanel is the message carrying the persistent verify button.
func VerifyPanel(eventName string) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: fmt.Sprintf(verifyTextFormat, eventName),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Verify with ContestDojo",
						Style:    discordgo.SuccessButton,
						CustomID: VerifyButtonID,
					},
				},
			},
		},
	}
}

// VerifyModal asks the member for the email on their student account.
func VerifyModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: VerifyModalID,
			Title:    "ContestDojo Verification",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    EmailInputID,
							Label:       "Email Address",
							Style:       discordgo.TextInputShort,
							Placeholder: "Enter the email address on your student account.",
							Required:    true,
							MaxLength:   maxEmailLength,
						},
					},
				},
			},
		},
	}
}

// ModalValue returns the value of the text input with the given custom id.
func ModalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok && input.CustomID == customID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}

// MemberFromInteraction returns the invoking guild member, or nil for DMs.
func MemberFromInteraction(i *discordgo.Interaction) *chat.Member {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return nil
	}
	return &chat.Member{
		GuildID:  i.GuildID,
		UserID:   i.Member.User.ID,
		Username: i.Member.User.Username,
	}
}
