package models

import (
	"time"
)

type EventType string

const (
	InPerson EventType = "in-person"
	Online   EventType = "online"
)

type ResponseType string

const (
	WantToGo   ResponseType = "wantToGo"
	Interested ResponseType = "interested"
	CantGo     ResponseType = "cantGo"
)

var ResponseTypes = []ResponseType{WantToGo, Interested, CantGo}

func (r ResponseType) Valid() bool {
	switch r {
	case WantToGo, Interested, CantGo:
		return true
	}
	return false
}

// ResponseCounts is the denormalized tally of responders per type.
type ResponseCounts struct {
	WantToGo   int `bson:"wantToGo" json:"wantToGo"`
	Interested int `bson:"interested" json:"interested"`
	CantGo     int `bson:"cantGo" json:"cantGo"`
}

func (c *ResponseCounts) field(r ResponseType) *int {
	switch r {
	case WantToGo:
		return &c.WantToGo
	case Interested:
		return &c.Interested
	case CantGo:
		return &c.CantGo
	}
	return nil
}

func (c ResponseCounts) Get(r ResponseType) int {
	if p := c.field(r); p != nil {
		return *p
	}
	return 0
}

func (c *ResponseCounts) Inc(r ResponseType) {
	if p := c.field(r); p != nil {
		*p++
	}
}

// Dec never goes below zero.
func (c *ResponseCounts) Dec(r ResponseType) {
	if p := c.field(r); p != nil && *p > 0 {
		*p--
	}
}

type Responder struct {
	Response ResponseType `bson:"response" json:"response"`
	Nickname string       `bson:"nickname" json:"nickname"`
}

type Event struct {
	ID               string               `bson:"_id" json:"id"`
	CreatorID        string               `bson:"creator_id" json:"creator_id"`
	Creator          string               `bson:"creator" json:"creator"` // organizer nickname
	Title            string               `bson:"title" json:"title"`
	Description      string               `bson:"description,omitempty" json:"description,omitempty"`
	Category         string               `bson:"category,omitempty" json:"category,omitempty"`
	City             string               `bson:"city,omitempty" json:"city,omitempty"`
	EventType        EventType            `bson:"event_type" json:"event_type"`
	Location         string               `bson:"location,omitempty" json:"location,omitempty"`
	OnlineLink       string               `bson:"online_link,omitempty" json:"online_link,omitempty"`
	ImageURL         string               `bson:"image_url,omitempty" json:"image_url,omitempty"`
	EventTimestamp   time.Time            `bson:"event_timestamp" json:"event_timestamp"`
	ParticipantLimit int                  `bson:"participant_limit,omitempty" json:"participant_limit,omitempty"`
	Fee              int                  `bson:"fee,omitempty" json:"fee,omitempty"`
	Responses        ResponseCounts       `bson:"responses" json:"responses"`
	Responders       map[string]Responder `bson:"responders" json:"responders"`
	CreatedAt        time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at" json:"updated_at"`
}

// ChatID is the chat room attached to the event.
func (e Event) ChatID() string {
	return "event-" + e.ID
}
