package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

type NewPoint struct {
	Name string  `json:"name" binding:"required"`
	Clue string  `json:"clue"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type NewChallenge struct {
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Reward         string     `json:"reward"`
	ImageURL       string     `json:"image_url"`
	EventTimestamp time.Time  `json:"event_timestamp"`
	Points         []NewPoint `json:"treasure_points" binding:"required,min=1,dive"`
}

type Challenges struct {
	store store.Store
	clock clock
}

func NewChallenges(s store.Store) *Challenges {
	return &Challenges{store: s}
}

func (c *Challenges) Create(ctx context.Context, host *models.User, in NewChallenge) (*models.Challenge, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, validation("title is required")
	}
	if len(in.Points) == 0 {
		return nil, validation("at least one treasure point is required")
	}

	now := c.clock.now()
	ch := models.Challenge{
		ID:             primitive.NewObjectID().Hex(),
		CreatorID:      host.ID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Reward:         in.Reward,
		ImageURL:       in.ImageURL,
		EventTimestamp: in.EventTimestamp,
		Team:           []models.TeamMember{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, p := range in.Points {
		if strings.TrimSpace(p.Name) == "" {
			return nil, validation("treasure point name is required")
		}
		ch.TreasurePoints = append(ch.TreasurePoints, models.TreasurePoint{
			ID:          "tp-" + uuid.NewString(),
			Name:        p.Name,
			Clue:        p.Clue,
			Coordinates: models.Coordinates{Lat: p.Lat, Lng: p.Lng},
			Status:      models.PointLocked,
		})
	}

	if err := c.store.Set(ctx, store.Challenges, ch.ID, ch); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return withProgress(&ch), nil
}

func (c *Challenges) Get(ctx context.Context, id string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := c.store.Get(ctx, store.Challenges, id, &ch); err != nil {
		return nil, err
	}
	return withProgress(&ch), nil
}

// List returns challenges soonest first. q, when set, matches the title.
func (c *Challenges) List(ctx context.Context, q string) ([]models.Challenge, error) {
	var all []models.Challenge
	if err := c.store.Find(ctx, store.Challenges, store.Query{}.Sort("event_timestamp", false), &all); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.Challenge, 0, len(all))
	for i := range all {
		if q != "" && !strings.Contains(strings.ToLower(all[i].Title), q) {
			continue
		}
		out = append(out, *withProgress(&all[i]))
	}
	return out, nil
}

func (c *Challenges) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, store.Challenges, id)
}

// JoinSolo adds member to the team. Joining twice is a no-op.
func (c *Challenges) JoinSolo(ctx context.Context, challengeID string, member models.TeamMember) (*models.Challenge, error) {
	ch, _, err := c.CreateTeam(ctx, challengeID, []models.TeamMember{member})
	return ch, err
}

// CreateTeam unions members into the team and reports who was new.
func (c *Challenges) CreateTeam(ctx context.Context, challengeID string, members []models.TeamMember) (*models.Challenge, []models.TeamMember, error) {
	var added []models.TeamMember
	ch, err := c.mutate(ctx, challengeID, func(ch *models.Challenge) error {
		ch.Team, added = MergeTeam(ch.Team, members...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ch, added, nil
}

func (c *Challenges) SubmitPoint(ctx context.Context, challengeID, pointID, actorID string, sub models.Submission) (*models.Challenge, error) {
	ch, err := c.mutate(ctx, challengeID, func(ch *models.Challenge) error {
		sub.SubmittedAt = c.clock.now()
		return ApplySubmission(ch, pointID, actorID, sub)
	})
	if err != nil {
		return nil, err
	}
	metrics.PointTransitions.WithLabelValues(string(models.PointLocked), string(models.PointPending)).Inc()
	return ch, nil
}

func (c *Challenges) ReviewPoint(ctx context.Context, challengeID, pointID, actorID string, approve bool) (*models.Challenge, error) {
	ch, err := c.mutate(ctx, challengeID, func(ch *models.Challenge) error {
		return ApplyReview(ch, pointID, actorID, approve)
	})
	if err != nil {
		return nil, err
	}
	to := models.PointLocked
	if approve {
		to = models.PointCompleted
	}
	metrics.PointTransitions.WithLabelValues(string(models.PointPending), string(to)).Inc()
	return ch, nil
}

// mutate loads the challenge, applies fn and writes team and points back
// in one transaction.
func (c *Challenges) mutate(ctx context.Context, id string, fn func(ch *models.Challenge) error) (*models.Challenge, error) {
	var out models.Challenge
	err := c.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var ch models.Challenge
		if err := tx.Get(ctx, store.Challenges, id, &ch); err != nil {
			return err
		}
		if err := fn(&ch); err != nil {
			return err
		}
		ch.UpdatedAt = c.clock.now()
		out = ch
		return tx.Update(ctx, store.Challenges, id, bson.M{
			"team":            ch.Team,
			"treasure_points": ch.TreasurePoints,
			"updated_at":      ch.UpdatedAt,
		})
	})
	if err != nil {
		logger.Debug.Printf("[challenges] mutate %s: %v", id, err)
		return nil, err
	}
	return withProgress(&out), nil
}

func withProgress(ch *models.Challenge) *models.Challenge {
	pr := ChallengeProgress(ch)
	ch.Progress = &pr
	return ch
}
