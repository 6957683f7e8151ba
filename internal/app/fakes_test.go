package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"verifier_bot/internal/domain/chat"
	"verifier_bot/internal/domain/student"
)

var errStudentMissing = errors.New("not found")

// fakeDirectory is an in-memory student.Directory keyed by student id.
type fakeDirectory struct {
	mu       sync.Mutex
	students []student.Record
	listErr   error
	patchErr  error
	patches   []student.Patch
	listCalls int
}

func (d *fakeDirectory) ListStudents(_ context.Context, _ string, filter student.ListFilter) ([]student.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	var out []student.Record
	for _, s := range d.students {
		if filter.Email != nil && s.Email != *filter.Email {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *fakeDirectory) UpdateStudent(_ context.Context, _ string, studentID string, patch student.Patch) (*student.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patches = append(d.patches, patch)
	if d.patchErr != nil {
		return nil, d.patchErr
	}
	for i := range d.students {
		if d.students[i].ID != studentID {
			continue
		}
		if fields, ok := patch.CustomFields.Get(); ok {
			d.students[i].CustomFields = fields
		}
		updated := d.students[i]
		return &updated, nil
	}
	return nil, errStudentMissing
}

func (d *fakeDirectory) record(id string) student.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.students {
		if s.ID == id {
			return s
		}
	}
	return student.Record{}
}

type fakeMemberState struct {
	nickname string
	roles    map[string]bool
}

// fakePlatform is an in-memory chat.Platform.
type fakePlatform struct {
	mu        sync.Mutex
	roles     map[string]map[string]string // guild -> role name -> role id
	usernames map[string]string
	members   map[string]*fakeMemberState // user id -> state
	renameErr error
	rolesErr  error
	mutations int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		roles:     map[string]map[string]string{},
		usernames: map[string]string{},
		members:   map[string]*fakeMemberState{},
	}
}

func (p *fakePlatform) member(userID string) *fakeMemberState {
	m, ok := p.members[userID]
	if !ok {
		m = &fakeMemberState{roles: map[string]bool{}}
		p.members[userID] = m
	}
	return m
}

func (p *fakePlatform) RenameMember(_ context.Context, _, userID, nickname string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renameErr != nil {
		return p.renameErr
	}
	p.mutations++
	p.member(userID).nickname = nickname
	return nil
}

func (p *fakePlatform) RoleIDByName(_ context.Context, guildID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rolesErr != nil {
		return "", p.rolesErr
	}
	if id, ok := p.roles[guildID][name]; ok {
		return id, nil
	}
	return "", chat.ErrRoleNotFound
}

func (p *fakePlatform) AddMemberRole(_ context.Context, _, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutations++
	p.member(userID).roles[roleID] = true
	return nil
}

func (p *fakePlatform) Username(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.usernames[userID]
	if !ok {
		return "", errStudentMissing
	}
	return name, nil
}

func (p *fakePlatform) GuildIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.roles))
	for id := range p.roles {
		ids = append(ids, id)
	}
	return ids
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) Alert(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, text)
	return nil
}

type fakeRecorder struct {
	outcomes []string
}

func (r *fakeRecorder) ObserveVerification(outcome string, _ time.Time) {
	r.outcomes = append(r.outcomes, outcome)
}
