package assist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/model"
)

var now = time.Date(2024, 1, 10, 8, 20, 0, 0, time.UTC)

func TestParseDateTimeAndTags(t *testing.T) {
	d, err := NewParser().Parse("Standup tomorrow at 9am #team", model.DemoTeam(), now)
	require.NoError(t, err)

	assert.Equal(t, "Standup", d.Title)
	assert.Equal(t, "2024-01-11", d.Date)
	assert.Equal(t, "09:00", d.StartTime)
	assert.Equal(t, "10:00", d.EndTime)
	assert.Equal(t, []string{"Team"}, d.Tags)
	assert.Empty(t, d.Recurrence)
	assert.Empty(t, d.TaggedUserIDs)
}

func TestParseRecurrenceDurationAndMembers(t *testing.T) {
	d, err := NewParser().Parse("Design review with Jane and @user3 tomorrow at 2pm every week for 30 minutes", model.DemoTeam(), now)
	require.NoError(t, err)

	assert.Equal(t, "Design review with Jane", d.Title)
	assert.Equal(t, "2024-01-11", d.Date)
	assert.Equal(t, "14:00", d.StartTime)
	assert.Equal(t, "14:30", d.EndTime)
	assert.Equal(t, model.RecurrenceWeekly, d.Recurrence)
	assert.ElementsMatch(t, []string{"user-1", "user-3"}, d.TaggedUserIDs)
}

func TestParseWithoutDate(t *testing.T) {
	d, err := NewParser().Parse("Plan roadmap monthly for 2 hours #planning #Planning", nil, now)
	require.NoError(t, err)

	assert.Equal(t, "Plan roadmap", d.Title)
	assert.Equal(t, "2024-01-10", d.Date)
	assert.Equal(t, "09:00", d.StartTime)
	assert.Equal(t, "11:00", d.EndTime)
	assert.Equal(t, model.RecurrenceMonthly, d.Recurrence)
	assert.Equal(t, []string{"Planning"}, d.Tags)
}

func TestParseCapsEndOfDay(t *testing.T) {
	late := time.Date(2024, 1, 10, 21, 5, 0, 0, time.UTC)
	d, err := NewParser().Parse("Deploy daily for 3 hours", nil, late)
	require.NoError(t, err)
	assert.Equal(t, "22:00", d.StartTime)
	assert.Equal(t, "23:59", d.EndTime)
	assert.Equal(t, model.RecurrenceDaily, d.Recurrence)
}

func TestParseEmpty(t *testing.T) {
	_, err := NewParser().Parse("   ", nil, now)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestApplyToMergesNonEmpty(t *testing.T) {
	base := model.Fields{
		Title:         "Old",
		Description:   "keep me",
		Date:          "2024-01-01",
		StartTime:     "08:00",
		EndTime:       "09:00",
		TaggedUserIDs: []string{"user-2"},
		Color:         model.ColorGreen,
		Tags:          []string{"Ops"},
	}
	got := Draft{Title: "New", StartTime: "10:00", EndTime: "11:00", Recurrence: model.RecurrenceDaily}.ApplyTo(base)

	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, "2024-01-01", got.Date)
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "11:00", got.EndTime)
	assert.Equal(t, model.RecurrenceDaily, got.Recurrence)
	assert.Equal(t, []string{"user-2"}, got.TaggedUserIDs)
	assert.Equal(t, []string{"Ops"}, got.Tags)
	assert.Equal(t, model.ColorGreen, got.Color)
}

func TestMatchUser(t *testing.T) {
	team := model.DemoTeam()
	u, ok := matchUser(team, "MICHAEL")
	require.True(t, ok)
	assert.Equal(t, "user-2", u.ID)

	u, ok = matchUser(team, "user4")
	require.True(t, ok)
	assert.Equal(t, "user-4", u.ID)

	_, ok = matchUser(team, "nobody")
	assert.False(t, ok)
}
