package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

type NewEvent struct {
	Title            string           `json:"title" form:"title" binding:"required"`
	Description      string           `json:"description" form:"description"`
	Category         string           `json:"category" form:"category"`
	City             string           `json:"city" form:"city"`
	EventType        models.EventType `json:"event_type" form:"event_type" binding:"omitempty,oneof=in-person online"`
	Location         string           `json:"location" form:"location"`
	OnlineLink       string           `json:"online_link" form:"online_link"`
	ImageURL         string           `json:"image_url" form:"image_url"`
	EventTimestamp   time.Time        `json:"event_timestamp" form:"event_timestamp" binding:"required"`
	ParticipantLimit int              `json:"participant_limit" form:"participant_limit" binding:"gte=0"`
	Fee              int              `json:"fee" form:"fee" binding:"gte=0"`
}

// EventPatch carries the fields an organizer may change. Nil means keep.
type EventPatch struct {
	Title            *string           `json:"title"`
	Description      *string           `json:"description"`
	Category         *string           `json:"category"`
	City             *string           `json:"city"`
	EventType        *models.EventType `json:"event_type"`
	Location         *string           `json:"location"`
	OnlineLink       *string           `json:"online_link"`
	ImageURL         *string           `json:"image_url"`
	EventTimestamp   *time.Time        `json:"event_timestamp"`
	ParticipantLimit *int              `json:"participant_limit"`
	Fee              *int              `json:"fee"`
}

// AllFilter is the catch-all value the client sends for an unset filter.
const AllFilter = "全部"

type EventFilter struct {
	City      string `form:"city"`
	Category  string `form:"category"`
	DateRange string `form:"date_range"` // today | weekend
	Q         string `form:"q"`
}

type Events struct {
	store store.Store
	clock clock
	loc   *time.Location
}

func NewEvents(s store.Store, loc *time.Location) *Events {
	if loc == nil {
		loc = time.UTC
	}
	return &Events{store: s, loc: loc}
}

// Validate applies the checks Create makes, so callers can reject input
// before doing anything with side effects.
func (in NewEvent) Validate() error {
	ev := models.Event{
		Title:          strings.TrimSpace(in.Title),
		EventType:      in.EventType,
		OnlineLink:     in.OnlineLink,
		EventTimestamp: in.EventTimestamp,
	}
	if ev.EventType == "" {
		ev.EventType = models.InPerson
	}
	return validateEvent(&ev)
}

func (e *Events) Create(ctx context.Context, creator *models.User, in NewEvent) (*models.Event, error) {
	now := e.clock.now()
	ev := models.Event{
		ID:               primitive.NewObjectID().Hex(),
		CreatorID:        creator.ID,
		Creator:          creator.Profile.Nickname,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Category:         in.Category,
		City:             in.City,
		EventType:        in.EventType,
		Location:         in.Location,
		OnlineLink:       in.OnlineLink,
		ImageURL:         in.ImageURL,
		EventTimestamp:   in.EventTimestamp,
		ParticipantLimit: in.ParticipantLimit,
		Fee:              in.Fee,
		Responders:       map[string]models.Responder{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ev.EventType == "" {
		ev.EventType = models.InPerson
	}
	if err := validateEvent(&ev); err != nil {
		return nil, err
	}

	if err := e.store.Set(ctx, store.Events, ev.ID, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &ev, nil
}

func validateEvent(ev *models.Event) error {
	if ev.Title == "" {
		return validation("title is required")
	}
	if ev.EventTimestamp.IsZero() {
		return validation("event_timestamp is required")
	}
	switch ev.EventType {
	case models.Online:
		if strings.TrimSpace(ev.OnlineLink) == "" {
			return validation("online events need an online_link")
		}
	case models.InPerson:
	default:
		return validation("unknown event_type %q", ev.EventType)
	}
	return nil
}

func (e *Events) Get(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	if err := e.store.Get(ctx, store.Events, id, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// List returns events matching f, soonest first.
func (e *Events) List(ctx context.Context, f EventFilter) ([]models.Event, error) {
	q := store.Query{}.Sort("event_timestamp", false)
	if v := filterValue(f.City); v != "" {
		q = q.And("city", v)
	}
	if v := filterValue(f.Category); v != "" {
		q = q.And("category", v)
	}

	var all []models.Event
	if err := e.store.Find(ctx, store.Events, q, &all); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return FilterEvents(all, f, e.clock.now().In(e.loc)), nil
}

// FilterEvents applies f to events in memory, keeping their order. now
// fixes the calendar day and location used for date ranges.
func FilterEvents(events []models.Event, f EventFilter, now time.Time) []models.Event {
	city, category := filterValue(f.City), filterValue(f.Category)
	q := strings.ToLower(strings.TrimSpace(f.Q))

	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if city != "" && ev.City != city {
			continue
		}
		if category != "" && ev.Category != category {
			continue
		}
		if !InDateRange(ev.EventTimestamp, f.DateRange, now) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(ev.Title), q) &&
			!strings.Contains(strings.ToLower(ev.Description), q) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// InDateRange compares calendar days in now's location. "weekend" means
// the Saturday and Sunday of the current week; on a Sunday that is
// yesterday's Saturday and today.
func InDateRange(t time.Time, rng string, now time.Time) bool {
	day := startOfDay(t.In(now.Location()))
	today := startOfDay(now)

	switch filterValue(rng) {
	case "":
		return true
	case "today":
		return day.Equal(today)
	case "weekend":
		wd := int(today.Weekday())
		saturday := today.AddDate(0, 0, 6-wd)
		sunday := today.AddDate(0, 0, 7-wd)
		if wd == 0 {
			saturday = today.AddDate(0, 0, -1)
			sunday = today
		}
		return day.Equal(saturday) || day.Equal(sunday)
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if v == AllFilter || strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

// Update applies patch for the creator or an admin.
func (e *Events) Update(ctx context.Context, actor *models.User, id string, patch EventPatch) (*models.Event, error) {
	var out models.Event
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var ev models.Event
		if err := tx.Get(ctx, store.Events, id, &ev); err != nil {
			return err
		}
		if ev.CreatorID != actor.ID && !actor.IsAdmin() {
			return fmt.Errorf("%w: only the organizer can edit this event", ErrForbidden)
		}

		fields := patch.apply(&ev)
		if err := validateEvent(&ev); err != nil {
			return err
		}
		ev.UpdatedAt = e.clock.now()
		fields["updated_at"] = ev.UpdatedAt

		out = ev
		return tx.Update(ctx, store.Events, id, fields)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p EventPatch) apply(ev *models.Event) bson.M {
	fields := bson.M{}
	setString := func(key string, dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			fields[key] = *dst
		}
	}
	setString("title", &ev.Title, p.Title)
	setString("description", &ev.Description, p.Description)
	setString("category", &ev.Category, p.Category)
	setString("city", &ev.City, p.City)
	setString("location", &ev.Location, p.Location)
	setString("online_link", &ev.OnlineLink, p.OnlineLink)
	setString("image_url", &ev.ImageURL, p.ImageURL)

	if p.EventType != nil {
		ev.EventType = *p.EventType
		fields["event_type"] = ev.EventType
	}
	if p.EventTimestamp != nil {
		ev.EventTimestamp = *p.EventTimestamp
		fields["event_timestamp"] = ev.EventTimestamp
	}
	if p.ParticipantLimit != nil && *p.ParticipantLimit >= 0 {
		ev.ParticipantLimit = *p.ParticipantLimit
		fields["participant_limit"] = ev.ParticipantLimit
	}
	if p.Fee != nil && *p.Fee >= 0 {
		ev.Fee = *p.Fee
		fields["fee"] = ev.Fee
	}
	return fields
}

func (e *Events) SetImage(ctx context.Context, id, url string) error {
	return e.store.Update(ctx, store.Events, id, bson.M{
		"image_url":  url,
		"updated_at": e.clock.now(),
	})
}

func (e *Events) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, store.Events, id)
}

// AdminSearch matches q against the title or the organizer's nickname,
// newest first.
func (e *Events) AdminSearch(ctx context.Context, q string) ([]models.Event, error) {
	var all []models.Event
	if err := e.store.Find(ctx, store.Events, store.Query{}.Sort("created_at", true), &all); err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all, nil
	}
	out := make([]models.Event, 0, len(all))
	for _, ev := range all {
		if strings.Contains(strings.ToLower(ev.Title), q) || strings.Contains(strings.ToLower(ev.Creator), q) {
			out = append(out, ev)
		}
	}
	return out, nil
}
