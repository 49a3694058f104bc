// Package seed loads demo users, events and challenges into a store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/services"
	"github.com/phillip/haojiu-go/store"
)

//go:embed default.yaml
var defaultData []byte

type File struct {
	Users      []User      `yaml:"users"`
	Events     []Event     `yaml:"events"`
	Challenges []Challenge `yaml:"challenges"`
}

type User struct {
	ID       string   `yaml:"id"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Nickname string   `yaml:"nickname"`
	Avatar   string   `yaml:"avatar"`
	Role     string   `yaml:"role"`
	Friends  []string `yaml:"friends"`
}

type Event struct {
	ID             string    `yaml:"id"`
	CreatorID      string    `yaml:"creator_id"`
	Title          string    `yaml:"title"`
	Description    string    `yaml:"description"`
	Category       string    `yaml:"category"`
	City           string    `yaml:"city"`
	EventType      string    `yaml:"event_type"`
	Location       string    `yaml:"location"`
	OnlineLink     string    `yaml:"online_link"`
	ImageURL       string    `yaml:"image_url"`
	EventTimestamp time.Time `yaml:"event_timestamp"`
	// user id -> response type
	Responders map[string]string `yaml:"responders"`
}

type Point struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Clue string  `yaml:"clue"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

type Challenge struct {
	ID             string    `yaml:"id"`
	CreatorID      string    `yaml:"creator_id"`
	Title          string    `yaml:"title"`
	Description    string    `yaml:"description"`
	Reward         string    `yaml:"reward"`
	ImageURL       string    `yaml:"image_url"`
	EventTimestamp time.Time `yaml:"event_timestamp"`
	Team           []string  `yaml:"team"`
	Points         []Point   `yaml:"treasure_points"`
}

// Load reads a seed file, or the built-in demo data when path is empty.
func Load(path string) (*File, error) {
	data := defaultData
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Apply writes every document of f in one batch. Response counters are
// derived from the responders so they always agree.
func Apply(ctx context.Context, s store.Store, f *File, now time.Time) error {
	users, err := f.users(now)
	if err != nil {
		return err
	}

	var ops []store.Op
	for _, u := range users {
		ops = append(ops,
			store.SetOp(store.Users, u.ID, u),
			store.SetOp(store.Emails, u.Email, models.EmailClaim{UserID: u.ID}))
	}
	for _, e := range f.Events {
		ev, err := e.build(users, now)
		if err != nil {
			return err
		}
		ops = append(ops, store.SetOp(store.Events, ev.ID, ev))
	}
	for _, c := range f.Challenges {
		ch, err := c.build(users, now)
		if err != nil {
			return err
		}
		ops = append(ops, store.SetOp(store.Challenges, ch.ID, ch))
	}

	if err := s.Batch(ctx, ops...); err != nil {
		return fmt.Errorf("seed batch: %w", err)
	}
	logger.Info.Printf("[seed] wrote %d users, %d events, %d challenges", len(users), len(f.Events), len(f.Challenges))
	return nil
}

func (f *File) users(now time.Time) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(f.Users))
	for _, su := range f.Users {
		if su.ID == "" || su.Email == "" || su.Password == "" {
			return nil, fmt.Errorf("seed user %q: id, email and password are required", su.ID)
		}
		if _, dup := users[su.ID]; dup {
			return nil, fmt.Errorf("seed user %q: duplicate id", su.ID)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", su.ID, err)
		}

		u := &models.User{
			ID:               su.ID,
			Email:            strings.ToLower(su.Email),
			PasswordHash:     string(hash),
			Role:             models.RoleUser,
			Profile:          models.DefaultProfile(),
			Friends:          []models.Contact{},
			IncomingRequests: []models.Contact{},
			OutgoingRequests: []models.Contact{},
			Groups:           []models.Group{},
			CreatedAt:        now,
		}
		if su.Role == models.RoleAdmin {
			u.Role = models.RoleAdmin
		}
		if su.Nickname != "" {
			u.Profile.Nickname = su.Nickname
		}
		u.Profile.Avatar = su.Avatar
		users[su.ID] = u
	}

	// Friendship is symmetric even if the file lists it on one side only.
	for _, su := range f.Users {
		u := users[su.ID]
		for _, id := range su.Friends {
			other, ok := users[id]
			if !ok {
				return nil, fmt.Errorf("seed user %q: unknown friend %q", su.ID, id)
			}
			addFriend(u, other)
			addFriend(other, u)
		}
	}
	return users, nil
}

func addFriend(u, friend *models.User) {
	for _, c := range u.Friends {
		if c.UserID == friend.ID {
			return
		}
	}
	u.Friends = append(u.Friends, friend.Contact())
}

func (e Event) build(users map[string]*models.User, now time.Time) (*models.Event, error) {
	creator, ok := users[e.CreatorID]
	if !ok {
		return nil, fmt.Errorf("seed event %q: unknown creator %q", e.ID, e.CreatorID)
	}
	ev := &models.Event{
		ID:             e.ID,
		CreatorID:      creator.ID,
		Creator:        creator.Profile.Nickname,
		Title:          e.Title,
		Description:    e.Description,
		Category:       e.Category,
		City:           e.City,
		EventType:      models.EventType(e.EventType),
		Location:       e.Location,
		OnlineLink:     e.OnlineLink,
		ImageURL:       e.ImageURL,
		EventTimestamp: e.EventTimestamp,
		Responders:     map[string]models.Responder{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ev.EventType == "" {
		ev.EventType = models.InPerson
	}
	for userID, resp := range e.Responders {
		u, ok := users[userID]
		if !ok {
			return nil, fmt.Errorf("seed event %q: unknown responder %q", e.ID, userID)
		}
		rt := models.ResponseType(resp)
		if !rt.Valid() {
			return nil, fmt.Errorf("seed event %q: %w", e.ID, services.ErrInvalidResponse)
		}
		services.ApplyResponse(ev, u.ID, u.Profile.Nickname, rt)
	}
	return ev, nil
}

func (c Challenge) build(users map[string]*models.User, now time.Time) (*models.Challenge, error) {
	if _, ok := users[c.CreatorID]; !ok {
		return nil, fmt.Errorf("seed challenge %q: unknown creator %q", c.ID, c.CreatorID)
	}
	ch := &models.Challenge{
		ID:             c.ID,
		CreatorID:      c.CreatorID,
		Title:          c.Title,
		Description:    c.Description,
		Reward:         c.Reward,
		ImageURL:       c.ImageURL,
		EventTimestamp: c.EventTimestamp,
		TreasurePoints: []models.TreasurePoint{},
		Team:           []models.TeamMember{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, id := range c.Team {
		u, ok := users[id]
		if !ok {
			return nil, fmt.Errorf("seed challenge %q: unknown team member %q", c.ID, id)
		}
		ch.Team, _ = services.MergeTeam(ch.Team, u.Member())
	}
	for _, p := range c.Points {
		ch.TreasurePoints = append(ch.TreasurePoints, models.TreasurePoint{
			ID:          p.ID,
			Name:        p.Name,
			Clue:        p.Clue,
			Coordinates: models.Coordinates{Lat: p.Lat, Lng: p.Lng},
			Status:      models.PointLocked,
		})
	}
	return ch, nil
}
