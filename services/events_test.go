package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

var taipei = time.FixedZone("CST", 8*3600)

func TestInDateRange(t *testing.T) {
	// Wednesday 2025-08-20 10:00 local
	wed := time.Date(2025, 8, 20, 10, 0, 0, 0, taipei)
	// Sunday 2025-08-24 13:18 local
	sun := time.Date(2025, 8, 24, 13, 18, 0, 0, taipei)

	at := func(day, hour int) time.Time {
		return time.Date(2025, 8, day, hour, 0, 0, 0, taipei)
	}

	tests := []struct {
		name  string
		event time.Time
		rng   string
		now   time.Time
		want  bool
	}{
		{"all", at(1, 0), "", wed, true},
		{"all chinese", at(1, 0), AllFilter, wed, true},
		{"today early", at(20, 0), "today", wed, true},
		{"today late", at(20, 23), "today", wed, true},
		{"tomorrow", at(21, 0), "today", wed, false},
		{"today across utc midnight", time.Date(2025, 8, 19, 17, 0, 0, 0, time.UTC), "today", wed, true},
		{"saturday", at(23, 9), "weekend", wed, true},
		{"sunday", at(24, 20), "weekend", wed, true},
		{"friday", at(22, 20), "weekend", wed, false},
		{"next saturday", at(30, 9), "weekend", wed, false},
		{"sunday itself", at(24, 20), "weekend", sun, true},
		{"yesterday on sunday", at(23, 9), "weekend", sun, true},
		{"next weekend from sunday", at(30, 9), "weekend", sun, false},
		{"unknown range", at(1, 0), "someday", wed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InDateRange(tt.event, tt.rng, tt.now))
		})
	}
}

func TestFilterEvents(t *testing.T) {
	now := time.Date(2025, 8, 20, 10, 0, 0, 0, taipei)
	events := []models.Event{
		{ID: "1", Title: "Board games", City: "台北市", Category: "遊戲", EventTimestamp: now},
		{ID: "2", Title: "Hiking", Description: "Elephant mountain", City: "台北市", Category: "戶外", EventTimestamp: now.AddDate(0, 0, 3)},
		{ID: "3", Title: "Jazz night", City: "台中市", Category: "音樂", EventTimestamp: now.AddDate(0, 0, 1)},
	}

	ids := func(evs []models.Event) []string {
		out := []string{}
		for _, e := range evs {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids(FilterEvents(events, EventFilter{City: AllFilter}, now)))
	assert.Equal(t, []string{"1", "2"}, ids(FilterEvents(events, EventFilter{City: "台北市"}, now)))
	assert.Equal(t, []string{"3"}, ids(FilterEvents(events, EventFilter{Category: "音樂"}, now)))
	assert.Equal(t, []string{"1"}, ids(FilterEvents(events, EventFilter{DateRange: "today"}, now)))
	assert.Equal(t, []string{"2"}, ids(FilterEvents(events, EventFilter{DateRange: "weekend"}, now)))
	assert.Equal(t, []string{"2"}, ids(FilterEvents(events, EventFilter{Q: "ELEPHANT"}, now)))
	assert.Equal(t, []string{"3"}, ids(FilterEvents(events, EventFilter{Q: "jazz"}, now)))
	assert.Empty(t, FilterEvents(events, EventFilter{City: "台中市", Q: "hiking"}, now))
}

func TestEventCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	host := seedUser(t, s, "host", "Hana")
	now := time.Date(2025, 8, 20, 2, 0, 0, 0, time.UTC)
	e := NewEvents(s, taipei)
	e.clock = fixedClock(now)

	_, err := e.Create(ctx, host, NewEvent{Title: "Later", City: "台北市", EventTimestamp: now.Add(48 * time.Hour)})
	require.NoError(t, err)
	first, err := e.Create(ctx, host, NewEvent{Title: "Sooner", City: "台北市", EventTimestamp: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = e.Create(ctx, host, NewEvent{Title: "Elsewhere", City: "高雄市", EventTimestamp: now.Add(2 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, models.InPerson, first.EventType)
	assert.Equal(t, "Hana", first.Creator)
	assert.Equal(t, "event-"+first.ID, first.ChatID())

	list, err := e.List(ctx, EventFilter{City: "台北市"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Sooner", list[0].Title)
	assert.Equal(t, "Later", list[1].Title)

	today, err := e.List(ctx, EventFilter{DateRange: "today"})
	require.NoError(t, err)
	assert.Len(t, today, 2)
}

func TestEventCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	host := seedUser(t, s, "host", "Hana")
	e := NewEvents(s, nil)
	when := time.Now().Add(time.Hour)

	_, err := e.Create(ctx, host, NewEvent{Title: " ", EventTimestamp: when})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Create(ctx, host, NewEvent{Title: "No time"})
	assert.ErrorIs(t, err, ErrValidation)

	stream := NewEvent{Title: "Stream", EventType: models.Online, EventTimestamp: when}
	assert.ErrorIs(t, stream.Validate(), ErrValidation)
	_, err = e.Create(ctx, host, stream)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NoError(t, NewEvent{Title: "Walk", EventTimestamp: when}.Validate())

	ev, err := e.Create(ctx, host, NewEvent{Title: "Stream", EventType: models.Online, OnlineLink: "https://meet", EventTimestamp: when})
	require.NoError(t, err)
	assert.Equal(t, models.Online, ev.EventType)
}

func TestEventUpdatePermissions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	host := seedUser(t, s, "host", "Hana")
	other := seedUser(t, s, "other", "Oli")
	admin := seedUser(t, s, "admin", "Root")
	admin.Role = models.RoleAdmin
	e := NewEvents(s, nil)

	ev, err := e.Create(ctx, host, NewEvent{Title: "Picnic", EventTimestamp: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	title := "Hijacked"
	_, err = e.Update(ctx, other, ev.ID, EventPatch{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	title = "Picnic by the river"
	got, err := e.Update(ctx, host, ev.ID, EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)

	online := models.Online
	_, err = e.Update(ctx, admin, ev.ID, EventPatch{EventType: &online})
	assert.ErrorIs(t, err, ErrValidation, "online without a link")

	city := "新竹市"
	got, err = e.Update(ctx, admin, ev.ID, EventPatch{City: &city})
	require.NoError(t, err)
	assert.Equal(t, city, got.City)

	stored, err := e.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, title, stored.Title)
	assert.Equal(t, city, stored.City)
	assert.Equal(t, models.InPerson, stored.EventType)

	_, err = e.Update(ctx, host, "missing", EventPatch{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEventAdminSearchAndDelete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	hana := seedUser(t, s, "hana", "Hana")
	oli := seedUser(t, s, "oli", "Oli")
	e := NewEvents(s, nil)
	when := time.Now().Add(time.Hour)

	ev, err := e.Create(ctx, hana, NewEvent{Title: "Picnic", EventTimestamp: when})
	require.NoError(t, err)
	_, err = e.Create(ctx, oli, NewEvent{Title: "Karaoke", EventTimestamp: when})
	require.NoError(t, err)

	byCreator, err := e.AdminSearch(ctx, "hana")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	assert.Equal(t, "Picnic", byCreator[0].Title)

	byTitle, err := e.AdminSearch(ctx, "kara")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)

	all, err := e.AdminSearch(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, e.SetImage(ctx, ev.ID, "https://img/poster.png"))
	got, err := e.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://img/poster.png", got.ImageURL)

	require.NoError(t, e.Delete(ctx, ev.ID))
	_, err = e.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
