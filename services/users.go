package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

// ProfilePatch holds the editable profile fields. Nil means keep.
type ProfilePatch struct {
	Nickname  *string   `json:"nickname" binding:"omitempty,min=1,max=30"`
	Bio       *string   `json:"bio" binding:"omitempty,max=280"`
	Avatar    *string   `json:"avatar"`
	Interests *[]string `json:"interests"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
}

type Users struct {
	store store.Store
}

func NewUsers(s store.Store) *Users {
	return &Users{store: s}
}

func (u *Users) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := u.store.Get(ctx, store.Users, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *Users) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*models.User, error) {
	var out models.User
	err := u.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var user models.User
		if err := tx.Get(ctx, store.Users, id, &user); err != nil {
			return err
		}

		p := &user.Profile
		if patch.Nickname != nil {
			nick := strings.TrimSpace(*patch.Nickname)
			if nick == "" {
				return validation("nickname cannot be empty")
			}
			p.Nickname = nick
		}
		if patch.Bio != nil {
			p.Bio = *patch.Bio
		}
		if patch.Avatar != nil {
			p.Avatar = *patch.Avatar
		}
		if patch.Interests != nil {
			p.Interests = *patch.Interests
		}
		if patch.Phone != nil {
			p.Phone = strings.TrimSpace(*patch.Phone)
		}
		if patch.Address != nil {
			p.Address = strings.TrimSpace(*patch.Address)
		}

		out = user
		return tx.Update(ctx, store.Users, id, bson.M{"profile": user.Profile})
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &out, nil
}

// List returns every user, oldest account first.
func (u *Users) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := u.store.Find(ctx, store.Users, store.Query{}.Sort("created_at", false), &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
