package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Monday, so holiday calendars do not skip it.
var testNow = time.Date(2030, time.June, 3, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fmt.Sprintf(format, args...))
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) UserApplied(_ context.Context, app *models.GroupApplication) {
	n.record("applied:%d", app.SenderID)
}

func (n *recordingNotifier) UserJoined(_ context.Context, user *models.User, ref models.GroupRef) {
	n.record("joined:%d:%s", user.ID, ref)
}

func (n *recordingNotifier) ApplicationDeclined(_ context.Context, app *models.GroupApplication) {
	n.record("declined:%d", app.SenderID)
}

func (n *recordingNotifier) InterviewInvitationSent(_ context.Context, inv *models.GroupInvitation) {
	n.record("interview_invitation:%d", inv.ReceiverID)
}

func (n *recordingNotifier) JoinInvitationSent(_ context.Context, inv *models.GroupInvitation) {
	n.record("join_invitation:%d", inv.ReceiverID)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GroupEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event GroupEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	m         *Membership
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "fuse.db") + "?_busy_timeout=5000",
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	f.m = NewMembership(db, Options{
		Notifier:  f.notifier,
		Publisher: f.publisher,
		Tokens:    &utils.SequenceGenerator{Prefix: "slot"},
		Clock:     func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) user(name string) *models.User {
	f.t.Helper()
	u := &models.User{
		Username: name,
		Email:    name + "@example.com",
		Role:     models.SystemRoleUser,
		AuthType: models.AuthTypeLocal,
		IsActive: true,
	}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) group(owner *models.User, kind models.GroupKind, name string, restriction models.Restriction) models.GroupRef {
	f.t.Helper()
	g, err := f.m.Groups.Create(f.ctx, owner.ID, kind, CreateGroupInput{Name: name, Restriction: string(restriction)})
	require.NoError(f.t, err)
	return g.Ref()
}

func (f *fixture) project(owner *models.User, orgID uint, name string, restriction models.Restriction) models.GroupRef {
	f.t.Helper()
	g, err := f.m.Groups.Create(f.ctx, owner.ID, models.KindProject, CreateGroupInput{
		Name:           name,
		Restriction:    string(restriction),
		OrganizationID: &orgID,
	})
	require.NoError(f.t, err)
	return g.Ref()
}

func (f *fixture) slot(admin *models.User, ref models.GroupRef, in time.Duration) models.Interview {
	f.t.Helper()
	start := testNow.Add(in)
	slots, err := f.m.Interviews.AddSlots(f.ctx, admin.ID, ref, []SlotInput{{Start: start, End: start.Add(30 * time.Minute)}})
	require.NoError(f.t, err)
	require.Len(f.t, slots, 1)
	return slots[0]
}

func (f *fixture) roles(userID uint, ref models.GroupRef) models.RoleSet {
	f.t.Helper()
	roles, err := NewRelationshipService(f.db).Roles(f.ctx, userID, ref)
	require.NoError(f.t, err)
	return roles
}

func (f *fixture) interview(id uint) models.Interview {
	f.t.Helper()
	var slot models.Interview
	require.NoError(f.t, f.db.Unscoped().First(&slot, id).Error)
	return slot
}

func (f *fixture) memberCount(ref models.GroupRef) int {
	f.t.Helper()
	g, err := models.NewGroup(ref.Kind)
	require.NoError(f.t, err)
	require.NoError(f.t, f.db.First(g, ref.ID).Error)
	return g.Base().MemberCount
}
