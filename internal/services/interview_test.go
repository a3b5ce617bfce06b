package services

import (
	"errors"
	"testing"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditSlot_Times(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionOpen)
	slot := f.slot(alice, team, 24*time.Hour) // [start, start+30m)

	afterEnd := slot.EndTime.Add(time.Hour)
	_, err := f.m.Interviews.EditSlot(f.ctx, alice.ID, slot.ID, EditSlotInput{Start: &afterEnd})
	assert.True(t, errors.Is(err, ErrInvalidTime), "start after stored end: %v", err)

	beforeStart := slot.StartTime.Add(-time.Minute)
	_, err = f.m.Interviews.EditSlot(f.ctx, alice.ID, slot.ID, EditSlotInput{End: &beforeStart})
	assert.True(t, errors.Is(err, ErrInvalidTime), "end before stored start: %v", err)

	newStart, newEnd := slot.StartTime.Add(2*time.Hour), slot.StartTime.Add(time.Hour)
	_, err = f.m.Interviews.EditSlot(f.ctx, alice.ID, slot.ID, EditSlotInput{Start: &newStart, End: &newEnd})
	assert.True(t, errors.Is(err, ErrInvalidTime), "both given, reversed: %v", err)

	newEnd = slot.StartTime.Add(3 * time.Hour)
	edited, err := f.m.Interviews.EditSlot(f.ctx, alice.ID, slot.ID, EditSlotInput{Start: &newStart, End: &newEnd})
	require.NoError(t, err)
	assert.True(t, edited.StartTime.Equal(newStart))

	stored := f.interview(slot.ID)
	assert.True(t, stored.StartTime.Equal(newStart))
	assert.True(t, stored.EndTime.Equal(newEnd))
}

func TestAddSlots_Validation(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionOpen)
	future := testNow.Add(time.Hour)

	tests := []struct {
		name    string
		actor   uint
		slots   []SlotInput
		wantErr error
	}{
		{"empty", alice.ID, nil, ErrInvalidFields},
		{"past start", alice.ID, []SlotInput{{Start: testNow.Add(-time.Hour), End: testNow}}, ErrInvalidFields},
		{"end before start", alice.ID, []SlotInput{{Start: future, End: future.Add(-time.Minute)}}, ErrInvalidFields},
		{"not an admin", bob.ID, []SlotInput{{Start: future, End: future.Add(time.Hour)}}, ErrInsufficientPrivileges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Interviews.AddSlots(f.ctx, tt.actor, team, tt.slots)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddSlots() error = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateSlots_FromTemplates(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	org := f.group(alice, models.KindOrganization, "acme", models.RestrictionOpen)

	day := func(d int) time.Time { return time.Date(2030, time.June, d, 10, 0, 0, 0, time.UTC) }
	for _, start := range []time.Time{day(1), day(4), day(5)} { // June 1 is before testNow
		_, err := f.m.Interviews.AddTemplate(f.ctx, alice.ID, org, SlotInput{Start: start, End: start.Add(time.Hour)})
		require.NoError(t, err)
	}

	created, err := f.m.Interviews.GenerateSlots(f.ctx, alice.ID, org)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.True(t, created[0].StartTime.Equal(day(4)))
	assert.True(t, created[1].StartTime.Equal(day(5)))
	for _, slot := range created {
		assert.True(t, slot.Available)
		assert.Nil(t, slot.UserID)
		assert.NotEmpty(t, slot.Code)
	}

	again, err := f.m.Interviews.GenerateSlots(f.ctx, alice.ID, org)
	require.NoError(t, err)
	assert.Empty(t, again)

	project := f.project(alice, org.ID, "rocket", models.RestrictionOpen)
	fromOrg, err := f.m.Interviews.GenerateSlots(f.ctx, alice.ID, project)
	require.NoError(t, err)
	assert.Len(t, fromOrg, 2)
}

func TestGenerateSlots_SkipsHolidays(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	org, err := f.m.Groups.Create(f.ctx, alice.ID, models.KindOrganization, CreateGroupInput{
		Name:           "acme",
		HolidayCountry: "us",
		InterviewTemplates: []SlotInput{
			// Independence Day 2030 is a Thursday.
			{Start: time.Date(2030, time.July, 4, 15, 0, 0, 0, time.UTC), End: time.Date(2030, time.July, 4, 16, 0, 0, 0, time.UTC)},
			{Start: time.Date(2030, time.July, 5, 15, 0, 0, 0, time.UTC), End: time.Date(2030, time.July, 5, 16, 0, 0, 0, time.UTC)},
			{Start: time.Date(2030, time.July, 6, 15, 0, 0, 0, time.UTC), End: time.Date(2030, time.July, 6, 16, 0, 0, 0, time.UTC)},
		},
	})
	require.NoError(t, err)

	created, err := f.m.Interviews.GenerateSlots(f.ctx, alice.ID, org.Ref())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, time.July, created[0].StartTime.Month())
	assert.Equal(t, 5, created[0].StartTime.Day())
}

func TestDeleteAndCancelSlot(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	team := f.group(alice, models.KindTeam, "core", models.RestrictionOpen)
	kept := f.slot(alice, team, 24*time.Hour)
	cancelled := f.slot(alice, team, 25*time.Hour)
	deleted := f.slot(alice, team, 26*time.Hour)

	err := f.m.Interviews.DeleteSlot(f.ctx, bob.ID, deleted.ID)
	assert.True(t, errors.Is(err, ErrInsufficientPrivileges), "got %v", err)

	require.NoError(t, f.m.Interviews.CancelSlot(f.ctx, alice.ID, cancelled.ID))
	require.NoError(t, f.m.Interviews.DeleteSlot(f.ctx, alice.ID, deleted.ID))

	available, err := f.m.Interviews.AvailableSlots(f.ctx, team)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, kept.ID, available[0].ID)

	// Deletion is logical.
	assert.True(t, f.interview(deleted.ID).DeletedAt.Valid)

	_, err = f.m.Interviews.EditSlot(f.ctx, alice.ID, deleted.ID, EditSlotInput{})
	assert.True(t, errors.Is(err, ErrNotFound), "edit deleted slot: %v", err)
}
