package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent [][]string
	subj []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to []string, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	m.subj = append(m.subj, subject)
	return m.err
}

func (f *fixture) inbox(userID uint) []models.Notification {
	f.t.Helper()
	var rows []models.Notification
	require.NoError(f.t, f.db.Where("receiver_id = ?", userID).Order("id").Find(&rows).Error)
	return rows
}

func TestNotificationProcessor_UserApplied(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionApplicationRequired)
	require.NoError(t, NewRelationshipService(f.db).AddRoles(f.ctx, carol.ID, team, models.RoleDefaultUser, models.RoleAdmin))
	app, err := f.m.Applications.Apply(f.ctx, bob.ID, team)
	require.NoError(t, err)

	mailer := &fakeMailer{}
	hub := NewInboxHub()
	stream := hub.Subscribe(alice.ID, "test")
	p := NewNotificationProcessor(f.db, mailer).WithHub(hub)

	err = p.Process(f.ctx, &NotificationTask{
		Event:         models.NotificationUserApplied,
		GroupKind:     team.Kind,
		GroupID:       team.ID,
		UserID:        bob.ID,
		ApplicationID: &app.ID,
	})
	require.NoError(t, err)

	for _, admin := range []*models.User{alice, carol} {
		rows := f.inbox(admin.ID)
		require.Len(t, rows, 1, admin.Username)
		assert.Equal(t, models.NotificationUserApplied, rows[0].Type)
		assert.Equal(t, "bob applied to join core", rows[0].Message)
		require.NotNil(t, rows[0].ApplicationID)
		assert.Equal(t, app.ID, *rows[0].ApplicationID)
		assert.Equal(t, "core", rows[0].Payload["group_name"])
	}
	assert.Empty(t, f.inbox(bob.ID))

	select {
	case n := <-stream:
		assert.Equal(t, alice.ID, n.ReceiverID)
	default:
		t.Error("hub did not receive the notification")
	}

	require.Len(t, mailer.sent, 1)
	assert.ElementsMatch(t, []string{"alice@example.com", "carol@example.com"}, mailer.sent[0])
	assert.Equal(t, "[Fuse] bob applied to join core", mailer.subj[0])
}

func TestNotificationProcessor_Events(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionOpen)
	p := NewNotificationProcessor(f.db, &fakeMailer{err: errors.New("smtp down")})

	tests := []struct {
		event    models.NotificationType
		receiver uint
		message  string
	}{
		{models.NotificationApplicationDeclined, bob.ID, "Your application to core was declined"},
		{models.NotificationInterviewInvitation, bob.ID, "You are invited to an interview for core"},
		{models.NotificationJoinInvitation, bob.ID, "You are invited to join core"},
		{models.NotificationUserJoined, alice.ID, "bob joined core"},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			err := p.Process(f.ctx, &NotificationTask{Event: tt.event, GroupKind: team.Kind, GroupID: team.ID, UserID: bob.ID})
			require.NoError(t, err, "a mail failure keeps the in-app rows")

			rows := f.inbox(tt.receiver)
			require.NotEmpty(t, rows)
			last := rows[len(rows)-1]
			assert.Equal(t, tt.event, last.Type)
			assert.Equal(t, tt.message, last.Message)
		})
	}

	// The owner joining their own group notifies nobody.
	before := len(f.inbox(alice.ID))
	err := p.Process(f.ctx, &NotificationTask{Event: models.NotificationUserJoined, GroupKind: team.Kind, GroupID: team.ID, UserID: alice.ID})
	require.NoError(t, err)
	assert.Len(t, f.inbox(alice.ID), before)

	err = p.Process(f.ctx, &NotificationTask{Event: "bogus", GroupKind: team.Kind, GroupID: team.ID, UserID: bob.ID})
	assert.Error(t, err)
	err = p.Process(f.ctx, &NotificationTask{Event: models.NotificationJoinInvitation, GroupKind: team.Kind, GroupID: 404, UserID: bob.ID})
	assert.Error(t, err)
}

func TestNotificationService_SyncQueue(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionOpen)

	queue := NewSyncQueue()
	queue.SetProcessor(NewNotificationProcessor(f.db, nil).Process)
	svc := NewNotificationService(queue)

	svc.UserJoined(f.ctx, bob, team)
	svc.JoinInvitationSent(f.ctx, &models.GroupInvitation{ID: 3, GroupKind: team.Kind, GroupID: team.ID, ReceiverID: bob.ID})
	require.NoError(t, queue.Close())

	assert.Len(t, f.inbox(alice.ID), 1)
	rows := f.inbox(bob.ID)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].InvitationID)
	assert.Equal(t, uint(3), *rows[0].InvitationID)
}

func TestInboxService(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	base := testNow.Add(-time.Hour)
	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, f.db.Create(&models.Notification{
			ReceiverID: alice.ID,
			Type:       models.NotificationUserJoined,
			Message:    msg,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	other := models.Notification{ReceiverID: bob.ID, Type: models.NotificationUserJoined, Message: "bob's"}
	require.NoError(t, f.db.Create(&other).Error)

	inbox := NewInboxService(f.db)
	page, err := inbox.List(f.ctx, alice.ID, false, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "third", page.Items[0].Message)

	err = inbox.MarkRead(f.ctx, alice.ID, other.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "marking another user's notification: %v", err)

	require.NoError(t, inbox.MarkRead(f.ctx, alice.ID, page.Items[0].ID))
	unread, err := inbox.List(f.ctx, alice.ID, true, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread.Total)

	n, err := inbox.MarkAllRead(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = inbox.List(f.ctx, alice.ID, true, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, unread.Total)
	assert.Empty(t, unread.Items)
}
