// internal/app/verification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"verifier_bot/internal/domain/alert"
	"verifier_bot/internal/domain/chat"
	"verifier_bot/internal/domain/student"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Application-level errors for the verification workflow
var ErrDataIntegrity = errors.New("more than one student matches this email")
var ErrMissingRole = errors.New("verified role is not configured in guild")

// maxNicknameLength is Discord's limit on guild nicknames, in characters.
const maxNicknameLength = 32

const alertTimeout = 10 * time.Second

// Outcome is the terminal state of a single verification attempt.
type Outcome string

const (
	OutcomeVerified      Outcome = "verified"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeNotRegistered Outcome = "not_registered"
	OutcomeConflict      Outcome = "conflict"
	OutcomeNotInGuild    Outcome = "not_in_guild"
	OutcomeFailed        Outcome = "failed"
)

// Submission is a verification request: the email typed into the modal and
// the member who submitted it. Member is nil when the request did not come
// from inside a guild.
type Submission struct {
	Email  string
	Member *chat.Member
}

// Result is what the invoking member is told, plus the cause for failures.
type Result struct {
	TaskID  string
	Outcome Outcome
	Message string
	Student *student.Record
	Err     error
}

// OutcomeRecorder is notified once per handled submission.
type OutcomeRecorder interface {
	ObserveVerification(outcome string, start time.Time)
}

type VerificationService struct {
	directory student.Directory
	chat      chat.Platform
	alerts    alert.Notifier
	recorder  OutcomeRecorder
	eventID   string
	roleName  string
	logger    *logrus.Entry
}

func NewVerificationService(
	directory student.Directory,
	platform chat.Platform,
	alerts alert.Notifier,
	recorder OutcomeRecorder, // may be nil
	eventID string,
	roleName string,
	logger *logrus.Entry,
) *VerificationService {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	return &VerificationService{
		directory: directory,
		chat:      platform,
		alerts:    alerts,
		recorder:  recorder,
		eventID:   eventID,
		roleName:  roleName,
		logger:    logger,
	}
}

// FindStudentByEmail returns the single student registered with email, or
// nil when there is none. More than one match is ErrDataIntegrity.
func (s *VerificationService) FindStudentByEmail(ctx context.Context, email string) (*student.Record, error) {
	matches, err := s.directory.ListStudents(ctx, s.eventID, student.ByEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to list students by email: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w (%d matches)", ErrDataIntegrity, len(matches))
	}
}

// VerifyStudent binds member to rec: it renames the member, grants the
// verified role and records the account on the student's custom fields.
// The caller must have checked that rec is eligible. Every step is safe to
// repeat, so a failed attempt can simply be resubmitted.
func (s *VerificationService) VerifyStudent(ctx context.Context, rec *student.Record, member chat.Member) error {
	roleID, err := s.chat.RoleIDByName(ctx, member.GuildID, s.roleName)
	if err != nil {
		if errors.Is(err, chat.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %q in guild %s", ErrMissingRole, s.roleName, member.GuildID)
		}
		return fmt.Errorf("failed to resolve role %q: %w", s.roleName, err)
	}

	if err := s.chat.RenameMember(ctx, member.GuildID, member.UserID, Nickname(rec)); err != nil {
		return fmt.Errorf("failed to rename member %s: %w", member.UserID, err)
	}
	if err := s.chat.AddMemberRole(ctx, member.GuildID, member.UserID, roleID); err != nil {
		return fmt.Errorf("failed to grant role to member %s: %w", member.UserID, err)
	}

	patch := student.Patch{CustomFields: student.Set(bindingFields(rec, member))}
	if _, err := s.directory.UpdateStudent(ctx, s.eventID, rec.ID, patch); err != nil {
		return fmt.Errorf("failed to record binding on student %s: %w", rec.ID, err)
	}
	return nil
}

// HandleSubmission runs one verification attempt from scratch and never
// returns an error: failures become a generic reply and are logged here.
func (s *VerificationService) HandleSubmission(ctx context.Context, sub Submission) Result {
	start := time.Now()
	taskID := uuid.NewString()
	res := s.handle(ctx, taskID, sub)
	res.TaskID = taskID
	if s.recorder != nil {
		s.recorder.ObserveVerification(string(res.Outcome), start)
	}
	return res
}

func (s *VerificationService) handle(ctx context.Context, taskID string, sub Submission) Result {
	log := s.logger.WithField("task_id", taskID)

	if sub.Member == nil {
		log.Info("Submission received outside of a guild")
		return Result{Outcome: OutcomeNotInGuild, Message: MsgDirectMessage}
	}
	member := *sub.Member
	email := strings.TrimSpace(sub.Email)
	log = log.WithFields(logrus.Fields{
		"guild_id": member.GuildID,
		"user_id":  member.UserID,
		"email":    email,
	})
	log.Info("Verification submitted")

	// An empty filter would match every student in the event.
	if email == "" {
		log.Info("Submission has a blank email")
		return Result{Outcome: OutcomeNotFound, Message: MsgNotFound}
	}

	rec, err := s.FindStudentByEmail(ctx, email)
	if err != nil {
		return s.fail(ctx, log, err)
	}
	if rec == nil {
		log.Info("No student matches email")
		return Result{Outcome: OutcomeNotFound, Message: MsgNotFound}
	}
	log = log.WithField("student_id", rec.ID)

	if !rec.IsEligible() {
		log.Info("Student has no event number")
		return Result{Outcome: OutcomeNotRegistered, Message: MsgNotRegistered, Student: rec}
	}

	if rec.IsBoundToOther(member.UserID) {
		boundID := rec.BoundAccountID()
		log.WithField("bound_user_id", boundID).Info("Student already bound to a different account")
		name := s.accountName(ctx, log, boundID)
		return Result{Outcome: OutcomeConflict, Message: fmt.Sprintf(MsgConflictFormat, name), Student: rec}
	}

	if err := s.VerifyStudent(ctx, rec, member); err != nil {
		return s.fail(ctx, log, err)
	}

	log.WithField("number", rec.AssignedNumber()).Info("Student verified")
	return Result{
		Outcome: OutcomeVerified,
		Message: fmt.Sprintf(MsgWelcomeFormat, rec.FirstName, rec.AssignedNumber()),
		Student: rec,
	}
}

func (s *VerificationService) fail(ctx context.Context, log *logrus.Entry, err error) Result {
	log = log.WithError(err)
	switch {
	case errors.Is(err, ErrDataIntegrity):
		log.Error("Directory data integrity error")
		s.alert(ctx, log, fmt.Sprintf("Directory data integrity problem: %v", err))
	case errors.Is(err, ErrMissingRole):
		log.Error("Configuration error")
		s.alert(ctx, log, fmt.Sprintf("Verifier misconfiguration: %v", err))
	default:
		log.Error("Verification failed")
	}
	return Result{Outcome: OutcomeFailed, Message: MsgFailure, Err: err}
}

// alert outlives the task context so a disconnect does not swallow it.
func (s *VerificationService) alert(ctx context.Context, log *logrus.Entry, text string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := s.alerts.Alert(actx, text); err != nil {
		log.WithField("alert_error", err.Error()).Warn("Failed to deliver operator alert")
	}
}

// accountName resolves a bound account id for display, falling back to a
// mention that the client renders itself.
func (s *VerificationService) accountName(ctx context.Context, log *logrus.Entry, userID string) string {
	name, err := s.chat.Username(ctx, userID)
	if err != nil || name == "" {
		log.WithError(err).WithField("bound_user_id", userID).Warn("Could not resolve bound account name")
		return "<@" + userID + ">"
	}
	return name
}

// Nickname is the display name given to a verified member: "[number] First Last",
// cut to Discord's nickname limit.
func Nickname(rec *student.Record) string {
	nick := fmt.Sprintf("[%s] %s", rec.AssignedNumber(), rec.FullName())
	if utf8.RuneCountInString(nick) <= maxNicknameLength {
		return nick
	}
	return string([]rune(nick)[:maxNicknameLength])
}

// bindingFields returns rec's custom fields with the member's identity set.
// Other custom fields are carried over unchanged.
func bindingFields(rec *student.Record, member chat.Member) map[string]string {
	fields := make(map[string]string, len(rec.CustomFields)+2)
	for k, v := range rec.CustomFields {
		fields[k] = v
	}
	fields[student.CustomFieldDiscordID] = member.UserID
	fields[student.CustomFieldDiscordUsername] = member.Username
	return fields
}
