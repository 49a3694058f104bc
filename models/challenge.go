package models

import (
	"time"
)

// Coordinates struct for latitude and longitude
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type PointStatus string

const (
	PointLocked    PointStatus = "locked"
	PointPending   PointStatus = "pending"
	PointCompleted PointStatus = "completed"
)

type Submission struct {
	PhotoURL    string    `bson:"photo_url" json:"photo_url"`
	Comment     string    `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedBy string    `bson:"submitted_by,omitempty" json:"submitted_by,omitempty"`
	SubmittedAt time.Time `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
}

type TreasurePoint struct {
	ID          string      `bson:"id" json:"id"`
	Name        string      `bson:"name" json:"name"`
	Clue        string      `bson:"clue,omitempty" json:"clue,omitempty"`
	Coordinates Coordinates `bson:"coordinates" json:"coordinates"`
	Status      PointStatus `bson:"status" json:"status"`
	Submission  *Submission `bson:"submission" json:"submission"`
}

type TeamMember struct {
	ID       string `bson:"id" json:"id"`
	Nickname string `bson:"nickname" json:"nickname"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

type Challenge struct {
	ID             string          `bson:"_id" json:"id"`
	CreatorID      string          `bson:"creator_id" json:"creator_id"` // host
	Title          string          `bson:"title" json:"title"`
	Description    string          `bson:"description,omitempty" json:"description,omitempty"`
	Reward         string          `bson:"reward,omitempty" json:"reward,omitempty"`
	ImageURL       string          `bson:"image_url,omitempty" json:"image_url,omitempty"`
	EventTimestamp time.Time       `bson:"event_timestamp" json:"event_timestamp"`
	TreasurePoints []TreasurePoint `bson:"treasure_points" json:"treasure_points"`
	Team           []TeamMember    `bson:"team" json:"team"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`

	// Enriched fields
	Progress *Progress `bson:"-" json:"progress,omitempty"`
}

type Progress struct {
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Total     int `json:"total"`
}

func (c *Challenge) HasMember(userID string) bool {
	for _, m := range c.Team {
		if m.ID == userID {
			return true
		}
	}
	return false
}

func (c *Challenge) Point(pointID string) *TreasurePoint {
	for i := range c.TreasurePoints {
		if c.TreasurePoints[i].ID == pointID {
			return &c.TreasurePoints[i]
		}
	}
	return nil
}
