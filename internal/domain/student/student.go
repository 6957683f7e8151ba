// internal/domain/student/student.go
package student

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reserved custom-field keys used to bind a Discord account to a record.
const (
	CustomFieldDiscordID       = "discord-id"
	CustomFieldDiscordUsername = "discord-username"
)

// Record is a student's registration entry in the event directory.
type Record struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	FirstName       string            `json:"fname"`
	LastName        string            `json:"lname"`
	Grade           Grade             `json:"grade"`
	User            string            `json:"user"`
	Team            *string           `json:"team,omitempty"`
	Org             *string           `json:"org,omitempty"`
	Number          *string           `json:"number,omitempty"`
	Waiver          *Waiver           `json:"waiver,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	CustomFields    map[string]string `json:"customFields,omitempty"`
	CheckInPool     map[string]string `json:"checkInPool,omitempty"`
	RoomAssignments map[string]string `json:"roomAssignments,omitempty"`
}

// UnmarshalJSON decodes a record and rejects payloads that omit a required field.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		ID        *string `json:"id"`
		Email     *string `json:"email"`
		FirstName *string `json:"fname"`
		LastName  *string `json:"lname"`
		Grade     *Grade  `json:"grade"`
		User      *string `json:"user"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	required := []struct {
		name    string
		missing bool
	}{
		{"id", aux.ID == nil},
		{"email", aux.Email == nil},
		{"fname", aux.FirstName == nil},
		{"lname", aux.LastName == nil},
		{"grade", aux.Grade == nil},
		{"user", aux.User == nil},
	}
	for _, f := range required {
		if f.missing {
			return fmt.Errorf("student record: missing required field %q", f.name)
		}
	}

	*r = Record(aux.plain)
	r.ID = *aux.ID
	r.Email = *aux.Email
	r.FirstName = *aux.FirstName
	r.LastName = *aux.LastName
	r.Grade = *aux.Grade
	r.User = *aux.User
	return nil
}

// IsEligible reports whether the record has an assigned event number.
func (r *Record) IsEligible() bool {
	return r.Number != nil && *r.Number != ""
}

// AssignedNumber returns the event number, or "" when none is assigned.
func (r *Record) AssignedNumber() string {
	if r.Number == nil {
		return ""
	}
	return *r.Number
}

func (r *Record) FullName() string {
	return r.FirstName + " " + r.LastName
}

// BoundAccountID returns the chat account id stored on the record, or "".
func (r *Record) BoundAccountID() string {
	if r.CustomFields == nil {
		return ""
	}
	return r.CustomFields[CustomFieldDiscordID]
}

// IsBoundToOther reports whether the record is already bound to an account
// other than accountID.
func (r *Record) IsBoundToOther(accountID string) bool {
	bound := r.BoundAccountID()
	return bound != "" && bound != accountID
}

// Grade is either an integer grade level or free text.
type Grade struct {
	Level  int
	Text   string
	IsText bool
}

func GradeLevel(n int) Grade { return Grade{Level: n} }
func GradeText(s string) Grade { return Grade{Text: s, IsText: true} }

func (g Grade) String() string {
	if g.IsText {
		return g.Text
	}
	return strconv.Itoa(g.Level)
}

func (g Grade) MarshalJSON() ([]byte, error) {
	if g.IsText {
		return json.Marshal(g.Text)
	}
	return json.Marshal(g.Level)
}

func (g *Grade) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("grade must not be null")
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*g = GradeLevel(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*g = GradeText(s)
		return nil
	}
	return fmt.Errorf("grade must be an integer or a string, got %s", data)
}

// Waiver is either a boolean waiver status or a free-text value such as a URL.
type Waiver struct {
	Signed bool
	Text   string
	IsText bool
}

func WaiverSigned(b bool) Waiver { return Waiver{Signed: b} }
func WaiverText(s string) Waiver { return Waiver{Text: s, IsText: true} }

func (w Waiver) MarshalJSON() ([]byte, error) {
	if w.IsText {
		return json.Marshal(w.Text)
	}
	return json.Marshal(w.Signed)
}

func (w *Waiver) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*w = WaiverSigned(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*w = WaiverText(s)
		return nil
	}
	return fmt.Errorf("waiver must be a boolean or a string, got %s", data)
}
