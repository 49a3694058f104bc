package seed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

func TestMain(m *testing.M) {
	logger.Silence()
	os.Exit(m.Run())
}

var seededAt = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func TestApplyDefault(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, Apply(ctx, s, f, seededAt))

	var admin models.User
	require.NoError(t, s.Get(ctx, store.Users, "admin", &admin))
	assert.True(t, admin.IsAdmin())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("haojiu123")))

	var claim models.EmailClaim
	require.NoError(t, s.Get(ctx, store.Emails, admin.Email, &claim))
	assert.Equal(t, "admin", claim.UserID)

	// friends listed on one side appear on both
	var friend models.User
	require.NoError(t, s.Get(ctx, store.Users, "friend-1", &friend))
	require.Len(t, friend.Friends, 1)
	assert.Equal(t, "demo-user", friend.Friends[0].UserID)

	var ev models.Event
	require.NoError(t, s.Get(ctx, store.Events, "event-movie", &ev))
	assert.Equal(t, "電影迷", ev.Creator)
	assert.Equal(t, 2, ev.Responses.WantToGo)
	assert.Equal(t, 1, ev.Responses.Interested)
	assert.Equal(t, 0, ev.Responses.CantGo)
	assert.Equal(t, "王小明", ev.Responders["friend-1"].Nickname)

	var ch models.Challenge
	require.NoError(t, s.Get(ctx, store.Challenges, "challenge-drinks", &ch))
	assert.Len(t, ch.Team, 2)
	require.Len(t, ch.TreasurePoints, 3)
	for _, p := range ch.TreasurePoints {
		assert.Equal(t, models.PointLocked, p.Status)
		assert.Nil(t, p.Submission)
	}
}

func TestApplyRejectsUnknownReferences(t *testing.T) {
	cases := map[string]string{
		"friend": `
users:
  - {id: a, email: a@x.io, password: pw, friends: [ghost]}
`,
		"creator": `
users:
  - {id: a, email: a@x.io, password: pw}
events:
  - {id: e, creator_id: ghost, title: t, event_timestamp: 2025-08-24T20:00:00Z}
`,
		"responder": `
users:
  - {id: a, email: a@x.io, password: pw}
events:
  - {id: e, creator_id: a, title: t, event_timestamp: 2025-08-24T20:00:00Z, responders: {ghost: wantToGo}}
`,
		"response type": `
users:
  - {id: a, email: a@x.io, password: pw}
events:
  - {id: e, creator_id: a, title: t, event_timestamp: 2025-08-24T20:00:00Z, responders: {a: maybe}}
`,
		"team member": `
users:
  - {id: a, email: a@x.io, password: pw}
challenges:
  - {id: c, creator_id: a, title: t, team: [ghost]}
`,
		"missing password": `
users:
  - {id: a, email: a@x.io}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(doc))
			require.NoError(t, err)
			s := store.NewMemory()
			assert.Error(t, Apply(context.Background(), s, f, seededAt))

			var users []models.User
			require.NoError(t, s.Find(context.Background(), store.Users, store.Query{}, &users))
			assert.Empty(t, users, "nothing is written when the file is invalid")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParseBadYAML(t *testing.T) {
	_, err := Parse([]byte("users: [unclosed"))
	assert.Error(t, err)
}
