package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"verifier_bot/internal/domain/chat"
	"verifier_bot/internal/domain/student"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

const (
	testEventID  = "evt_1"
	testGuildID  = "guild_1"
	testRoleName = "Verified"
	testRoleID   = "role_verified"
)

func strPtr(s string) *string { return &s }

func adaRecord() student.Record {
	return student.Record{
		ID:        "stu_ada",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Grade:     student.GradeLevel(11),
		User:      "usr_ada",
		Number:    strPtr("42"),
	}
}

type VerificationServiceSuite struct {
	suite.Suite
	directory *fakeDirectory
	platform  *fakePlatform
	notifier  *fakeNotifier
	recorder  *fakeRecorder
	service   *VerificationService
	requester *chat.Member
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

func (s *VerificationServiceSuite) SetupTest() {
	log := logrus.New()
	log.SetOutput(io.Discard)

	s.directory = &fakeDirectory{}
	s.platform = newFakePlatform()
	s.platform.roles[testGuildID] = map[string]string{testRoleName: testRoleID}
	s.notifier = &fakeNotifier{}
	s.recorder = &fakeRecorder{}
	s.service = NewVerificationService(s.directory, s.platform, s.notifier, s.recorder, testEventID, testRoleName, logrus.NewEntry(log))
	s.requester = &chat.Member{GuildID: testGuildID, UserID: "111", Username: "ada_l"}
}

func (s *VerificationServiceSuite) submit(email string) Result {
	return s.service.HandleSubmission(context.Background(), Submission{Email: email, Member: s.requester})
}

// =============================================================================
// FindStudentByEmail
// =============================================================================

func (s *VerificationServiceSuite) TestFindStudentByEmail() {
	ctx := context.Background()

	s.Run("zero matches is not found", func() {
		rec, err := s.service.FindStudentByEmail(ctx, "nobody@example.com")
		s.NoError(err)
		s.Nil(rec)
	})

	s.Run("one match returns the record", func() {
		s.directory.students = []student.Record{adaRecord()}
		rec, err := s.service.FindStudentByEmail(ctx, "ada@example.com")
		s.Require().NoError(err)
		s.Equal("stu_ada", rec.ID)
	})

	s.Run("two matches is a data integrity error", func() {
		dup := adaRecord()
		dup.ID = "stu_dup"
		s.directory.students = []student.Record{adaRecord(), dup}
		rec, err := s.service.FindStudentByEmail(ctx, "ada@example.com")
		s.ErrorIs(err, ErrDataIntegrity)
		s.Nil(rec)
	})

	s.Run("directory failure propagates", func() {
		s.directory.listErr = errors.New("boom")
		defer func() { s.directory.listErr = nil }()
		_, err := s.service.FindStudentByEmail(ctx, "ada@example.com")
		s.Error(err)
		s.NotErrorIs(err, ErrDataIntegrity)
	})
}

// =============================================================================
// VerifyStudent
// =============================================================================

func (s *VerificationServiceSuite) TestVerifyStudent() {
	ctx := context.Background()

	s.Run("renames, grants role and records binding", func() {
		s.directory.students = []student.Record{adaRecord()}
		rec := adaRecord()

		s.Require().NoError(s.service.VerifyStudent(ctx, &rec, *s.requester))

		state := s.platform.members["111"]
		s.Equal("[42] Ada Lovelace", state.nickname)
		s.True(state.roles[testRoleID])

		stored := s.directory.record("stu_ada")
		s.Equal("111", stored.CustomFields[student.CustomFieldDiscordID])
		s.Equal("ada_l", stored.CustomFields[student.CustomFieldDiscordUsername])
	})

	s.Run("is idempotent", func() {
		s.directory.students = []student.Record{adaRecord()}
		rec := adaRecord()

		s.Require().NoError(s.service.VerifyStudent(ctx, &rec, *s.requester))
		once := s.directory.record("stu_ada").CustomFields

		again := s.directory.record("stu_ada")
		s.Require().NoError(s.service.VerifyStudent(ctx, &again, *s.requester))
		twice := s.directory.record("stu_ada").CustomFields

		s.Equal(once, twice)
		s.Equal("[42] Ada Lovelace", s.platform.members["111"].nickname)
	})

	s.Run("keeps unrelated custom fields", func() {
		rec := adaRecord()
		rec.CustomFields = map[string]string{"shirt-size": "M"}
		s.directory.students = []student.Record{rec}

		s.Require().NoError(s.service.VerifyStudent(ctx, &rec, *s.requester))
		stored := s.directory.record("stu_ada")
		s.Equal("M", stored.CustomFields["shirt-size"])
		s.Equal("111", stored.CustomFields[student.CustomFieldDiscordID])
	})

	s.Run("sends only custom fields in the patch", func() {
		s.directory.students = []student.Record{adaRecord()}
		s.directory.patches = nil
		rec := adaRecord()

		s.Require().NoError(s.service.VerifyStudent(ctx, &rec, *s.requester))
		s.Require().Len(s.directory.patches, 1)
		body := s.directory.patches[0].Body()
		s.Len(body, 1)
		s.Contains(body, "customFields")
	})

	s.Run("remote patch failure keeps chat mutations", func() {
		s.directory.students = []student.Record{adaRecord()}
		s.directory.patchErr = errors.New("directory down")
		defer func() { s.directory.patchErr = nil }()
		rec := adaRecord()

		err := s.service.VerifyStudent(ctx, &rec, *s.requester)
		s.Error(err)
		s.True(s.platform.members["111"].roles[testRoleID])
	})
}

func (s *VerificationServiceSuite) TestVerifyStudentMissingRole() {
	s.platform.roles = map[string]map[string]string{}
	s.directory.students = []student.Record{adaRecord()}
	rec := adaRecord()

	err := s.service.VerifyStudent(context.Background(), &rec, *s.requester)
	s.ErrorIs(err, ErrMissingRole)
	s.Zero(s.platform.mutations)
	s.Empty(s.directory.patches)
}

// =============================================================================
// HandleSubmission scenarios
// =============================================================================

func (s *VerificationServiceSuite) TestSubmissionEmailNotFound() {
	res := s.submit("nobody@example.com")

	s.Equal(OutcomeNotFound, res.Outcome)
	s.Equal(MsgNotFound, res.Message)
	s.Contains(res.Message, "Couldn't find your student account")
	s.Zero(s.platform.mutations)
	s.Empty(s.directory.patches)
	s.NotEmpty(res.TaskID)
}

func (s *VerificationServiceSuite) TestSubmissionNotRegistered() {
	rec := adaRecord()
	rec.Number = strPtr("")
	s.directory.students = []student.Record{rec}

	res := s.submit("ada@example.com")

	s.Equal(OutcomeNotRegistered, res.Outcome)
	s.Equal(MsgNotRegistered, res.Message)
	s.Zero(s.platform.mutations)
	s.Empty(s.directory.patches)
}

func (s *VerificationServiceSuite) TestSubmissionNoNumber() {
	rec := adaRecord()
	rec.Number = nil
	s.directory.students = []student.Record{rec}

	res := s.submit("ada@example.com")
	s.Equal(OutcomeNotRegistered, res.Outcome)
}

func (s *VerificationServiceSuite) TestSubmissionBoundToDifferentAccount() {
	rec := adaRecord()
	rec.CustomFields = map[string]string{student.CustomFieldDiscordID: "999"}
	s.directory.students = []student.Record{rec}
	s.platform.usernames["999"] = "original_ada"

	res := s.submit("ada@example.com")

	s.Equal(OutcomeConflict, res.Outcome)
	s.Equal("Looks like you've already verified with a different Discord account (original_ada)!", res.Message)
	s.Zero(s.platform.mutations)
	s.Empty(s.directory.patches)
}

func (s *VerificationServiceSuite) TestSubmissionConflictWithUnresolvableAccount() {
	rec := adaRecord()
	rec.CustomFields = map[string]string{student.CustomFieldDiscordID: "999"}
	s.directory.students = []student.Record{rec}

	res := s.submit("ada@example.com")

	s.Equal(OutcomeConflict, res.Outcome)
	s.Contains(res.Message, "<@999>")
	s.Zero(s.platform.mutations)
}

func (s *VerificationServiceSuite) TestSubmissionVerifies() {
	s.directory.students = []student.Record{adaRecord()}

	res := s.submit("ada@example.com")

	s.Equal(OutcomeVerified, res.Outcome)
	s.Equal("Welcome to the server, Ada! Your student ID is 42.", res.Message)
	s.Contains(res.Message, "42")
	s.Equal("[42] Ada Lovelace", s.platform.members["111"].nickname)
	s.True(s.platform.members["111"].roles[testRoleID])

	stored := s.directory.record("stu_ada")
	s.Equal("111", stored.CustomFields[student.CustomFieldDiscordID])
	s.Equal("ada_l", stored.CustomFields[student.CustomFieldDiscordUsername])
	s.Equal([]string{string(OutcomeVerified)}, s.recorder.outcomes)
}

func (s *VerificationServiceSuite) TestSubmissionTrimsEmail() {
	s.directory.students = []student.Record{adaRecord()}

	res := s.submit("  ada@example.com \n")
	s.Equal(OutcomeVerified, res.Outcome)
}

func (s *VerificationServiceSuite) TestSubmissionBlankEmail() {
	s.directory.students = []student.Record{adaRecord()}

	for _, email := range []string{"", "   ", "\t\n"} {
		res := s.submit(email)
		s.Equal(OutcomeNotFound, res.Outcome)
		s.Equal(MsgNotFound, res.Message)
	}
	s.Zero(s.directory.listCalls)
	s.Empty(s.notifier.alerts)
	s.Zero(s.platform.mutations)
}

func (s *VerificationServiceSuite) TestSubmissionReverifiesSameAccount() {
	rec := adaRecord()
	rec.CustomFields = map[string]string{
		student.CustomFieldDiscordID:       "111",
		student.CustomFieldDiscordUsername: "ada_l",
	}
	s.directory.students = []student.Record{rec}

	first := s.submit("ada@example.com")
	fieldsAfterFirst := s.directory.record("stu_ada").CustomFields
	second := s.submit("ada@example.com")

	s.Equal(OutcomeVerified, first.Outcome)
	s.Equal(OutcomeVerified, second.Outcome)
	s.Equal(fieldsAfterFirst, s.directory.record("stu_ada").CustomFields)
}

func (s *VerificationServiceSuite) TestSubmissionAmbiguousEmail() {
	dup := adaRecord()
	dup.ID = "stu_dup"
	s.directory.students = []student.Record{adaRecord(), dup}

	res := s.submit("ada@example.com")

	s.Equal(OutcomeFailed, res.Outcome)
	s.Equal(MsgFailure, res.Message)
	s.NotContains(res.Message, "more than one")
	s.ErrorIs(res.Err, ErrDataIntegrity)
	s.Len(s.notifier.alerts, 1)
	s.Zero(s.platform.mutations)
}

func (s *VerificationServiceSuite) TestSubmissionMissingRole() {
	s.platform.roles = map[string]map[string]string{}
	s.directory.students = []student.Record{adaRecord()}

	res := s.submit("ada@example.com")

	s.Equal(OutcomeFailed, res.Outcome)
	s.Equal(MsgFailure, res.Message)
	s.ErrorIs(res.Err, ErrMissingRole)
	s.Require().Len(s.notifier.alerts, 1)
	s.Contains(s.notifier.alerts[0], testRoleName)
}

func (s *VerificationServiceSuite) TestSubmissionDirectoryFailure() {
	s.directory.listErr = errors.New("HTTP 503")

	res := s.submit("ada@example.com")

	s.Equal(OutcomeFailed, res.Outcome)
	s.Equal(MsgFailure, res.Message)
	s.Error(res.Err)
	s.Empty(s.notifier.alerts)
}

func (s *VerificationServiceSuite) TestSubmissionOutsideGuild() {
	res := s.service.HandleSubmission(context.Background(), Submission{Email: "ada@example.com"})

	s.Equal(OutcomeNotInGuild, res.Outcome)
	s.Equal(MsgDirectMessage, res.Message)
}

// =============================================================================
// Nickname
// =============================================================================

func (s *VerificationServiceSuite) TestNickname() {
	s.Run("formats number and full name", func() {
		rec := adaRecord()
		s.Equal("[42] Ada Lovelace", Nickname(&rec))
	})

	s.Run("truncates to discord limit", func() {
		rec := adaRecord()
		rec.FirstName = "Maximiliana-Josephine"
		rec.LastName = "Wolfeschlegelsteinhausen"
		nick := Nickname(&rec)
		s.Equal(maxNicknameLength, len([]rune(nick)))
		s.Equal("[42] Maximiliana-Josephine Wolfe", nick)
	})
}
