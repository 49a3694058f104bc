package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Profile struct {
	Nickname     string   `bson:"nickname" json:"nickname"`
	Bio          string   `bson:"bio,omitempty" json:"bio,omitempty"`
	Avatar       string   `bson:"avatar,omitempty" json:"avatar,omitempty"`
	FaceVerified bool     `bson:"face_verified" json:"face_verified"`
	Interests    []string `bson:"interests,omitempty" json:"interests,omitempty"`
	Reputation   int      `bson:"reputation" json:"reputation"`
	Phone        string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Address      string   `bson:"address,omitempty" json:"address,omitempty"`
}

// Contact is how one user appears in another's friend and request lists.
type Contact struct {
	UserID   string `bson:"user_id" json:"user_id"`
	Nickname string `bson:"nickname" json:"nickname"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

type Group struct {
	ID      string   `bson:"id" json:"id"`
	Name    string   `bson:"name" json:"name"`
	Members []string `bson:"members" json:"members"`
}

// EmailClaim reserves an address for one account.
type EmailClaim struct {
	UserID string `bson:"user_id" json:"user_id"`
}

type User struct {
	ID               string    `bson:"_id" json:"id"`
	Email            string    `bson:"email" json:"email"`
	PasswordHash     string    `bson:"password_hash" json:"-"`
	Role             string    `bson:"role" json:"role"`
	Profile          Profile   `bson:"profile" json:"profile"`
	Friends          []Contact `bson:"friends" json:"friends"`
	IncomingRequests []Contact `bson:"incoming_requests" json:"incoming_requests"`
	OutgoingRequests []Contact `bson:"outgoing_requests" json:"outgoing_requests"`
	Groups           []Group   `bson:"groups" json:"groups"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) Contact() Contact {
	return Contact{UserID: u.ID, Nickname: u.Profile.Nickname, Avatar: u.Profile.Avatar}
}

func (u *User) Member() TeamMember {
	return TeamMember{ID: u.ID, Nickname: u.Profile.Nickname, Avatar: u.Profile.Avatar}
}

// DefaultProfile is what a freshly signed-up user starts with.
func DefaultProfile() Profile {
	return Profile{
		Nickname:   "新來的揪咖",
		Bio:        "我喜歡用這個 App！",
		Interests:  []string{"電影", "美食"},
		Reputation: 75,
	}
}

// SessionRecord exists while a sign-in is live. Deleting it signs the
// user out even if their token has not expired.
type SessionRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
