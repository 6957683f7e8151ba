package student

import (
	"context"
	"encoding/json"
)

// Directory is the remote system of record for event students.
type Directory interface {
	ListStudents(ctx context.Context, eventID string, filter ListFilter) ([]Record, error)
	UpdateStudent(ctx context.Context, eventID, studentID string, patch Patch) (*Record, error)
}

// ListFilter narrows a student listing. Nil fields apply no filter.
type ListFilter struct {
	OrgID  *string
	TeamID *string
	Number *string
	Email  *string
}

// ByEmail returns a filter matching a single email address.
func ByEmail(email string) ListFilter {
	return ListFilter{Email: &email}
}

// Field is an optional patch value. The zero value is unset and is never sent.
// A field created with Null is sent as an explicit JSON null.
type Field[T any] struct {
	value T
	set   bool
	null  bool
}

func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

func (f Field[T]) IsSet() bool  { return f.set }
func (f Field[T]) IsNull() bool { return f.set && f.null }

// Get returns the value and whether it is set to a non-null value.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set && !f.null
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// Patch is a partial update of a student record.
type Patch struct {
	Grade        Field[Grade]
	Org          Field[string]
	Team         Field[string]
	Number       Field[string]
	Waiver       Field[Waiver]
	Notes        Field[string]
	CustomFields Field[map[string]string]
}

// Body returns the wire representation of the patch, holding only the keys
// that were explicitly set.
func (p Patch) Body() map[string]json.Marshaler {
	body := make(map[string]json.Marshaler)
	add := func(key string, set bool, m json.Marshaler) {
		if set {
			body[key] = m
		}
	}
	add("grade", p.Grade.IsSet(), p.Grade)
	add("org", p.Org.IsSet(), p.Org)
	add("team", p.Team.IsSet(), p.Team)
	add("number", p.Number.IsSet(), p.Number)
	add("waiver", p.Waiver.IsSet(), p.Waiver)
	add("notes", p.Notes.IsSet(), p.Notes)
	add("customFields", p.CustomFields.IsSet(), p.CustomFields)
	return body
}

func (p Patch) IsEmpty() bool {
	return len(p.Body()) == 0
}
