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

func newChallengeFixture(t *testing.T) (*Challenges, *models.Challenge, *models.User) {
	t.Helper()
	s := store.NewMemory()
	host := seedUser(t, s, "host", "Hana")
	c := NewChallenges(s)
	c.clock = fixedClock(time.Date(2025, 8, 24, 13, 0, 0, 0, time.UTC))

	ch, err := c.Create(context.Background(), host, NewChallenge{
		Title: "Old town hunt",
		Points: []NewPoint{
			{Name: "Temple gate", Clue: "red doors", Lat: 25.03, Lng: 121.5},
			{Name: "Tea house"},
		},
	})
	require.NoError(t, err)
	return c, ch, host
}

func TestChallengeCreate(t *testing.T) {
	_, ch, host := newChallengeFixture(t)

	assert.Equal(t, host.ID, ch.CreatorID)
	require.Len(t, ch.TreasurePoints, 2)
	for _, p := range ch.TreasurePoints {
		assert.Equal(t, models.PointLocked, p.Status)
		assert.Nil(t, p.Submission)
		assert.NotEmpty(t, p.ID)
	}
	assert.Equal(t, models.Coordinates{Lat: 25.03, Lng: 121.5}, ch.TreasurePoints[0].Coordinates)
	assert.Equal(t, &models.Progress{Total: 2}, ch.Progress)
	assert.NotNil(t, ch.Team)
}

func TestChallengeCreateValidation(t *testing.T) {
	c, _, host := newChallengeFixture(t)
	ctx := context.Background()

	_, err := c.Create(ctx, host, NewChallenge{Title: " ", Points: []NewPoint{{Name: "a"}}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.Create(ctx, host, NewChallenge{Title: "t"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.Create(ctx, host, NewChallenge{Title: "t", Points: []NewPoint{{Name: ""}}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitThenRejectScenario(t *testing.T) {
	c, ch, host := newChallengeFixture(t)
	ctx := context.Background()
	p := ch.TreasurePoints[0].ID

	_, err := c.JoinSolo(ctx, ch.ID, models.TeamMember{ID: "M", Nickname: "Mei"})
	require.NoError(t, err)

	got, err := c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{PhotoURL: "x", Comment: "y"})
	require.NoError(t, err)
	assert.Equal(t, models.PointPending, got.Point(p).Status)
	require.NotNil(t, got.Point(p).Submission)
	assert.Equal(t, "M", got.Point(p).Submission.SubmittedBy)
	assert.Equal(t, 1, got.Progress.Pending)

	got, err = c.ReviewPoint(ctx, ch.ID, p, host.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PointLocked, got.Point(p).Status)
	assert.Nil(t, got.Point(p).Submission)

	stored, err := c.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PointLocked, stored.Point(p).Status)
	assert.Nil(t, stored.Point(p).Submission)
}

func TestSubmitThenApprove(t *testing.T) {
	c, ch, host := newChallengeFixture(t)
	ctx := context.Background()
	p := ch.TreasurePoints[1].ID

	_, err := c.JoinSolo(ctx, ch.ID, models.TeamMember{ID: "M"})
	require.NoError(t, err)
	_, err = c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{PhotoURL: "https://img/x.jpg"})
	require.NoError(t, err)

	got, err := c.ReviewPoint(ctx, ch.ID, p, host.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.PointCompleted, got.Point(p).Status)
	require.NotNil(t, got.Point(p).Submission)
	assert.Equal(t, "https://img/x.jpg", got.Point(p).Submission.PhotoURL)
	assert.Equal(t, models.Progress{Completed: 1, Total: 2}, *got.Progress)

	// completed is terminal
	_, err = c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{PhotoURL: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = c.ReviewPoint(ctx, ch.ID, p, host.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitAndReviewGuards(t *testing.T) {
	c, ch, host := newChallengeFixture(t)
	ctx := context.Background()
	p := ch.TreasurePoints[0].ID
	_, err := c.JoinSolo(ctx, ch.ID, models.TeamMember{ID: "M"})
	require.NoError(t, err)

	_, err = c.SubmitPoint(ctx, ch.ID, p, "stranger", models.Submission{PhotoURL: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.SubmitPoint(ctx, ch.ID, p, host.ID, models.Submission{PhotoURL: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.SubmitPoint(ctx, ch.ID, "nope", "M", models.Submission{PhotoURL: "x"})
	assert.ErrorIs(t, err, ErrPointNotFound)

	// locked points cannot be reviewed
	_, err = c.ReviewPoint(ctx, ch.ID, p, host.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{PhotoURL: "x"})
	require.NoError(t, err)

	// pending points cannot be resubmitted
	_, err = c.SubmitPoint(ctx, ch.ID, p, "M", models.Submission{PhotoURL: "y"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = c.ReviewPoint(ctx, ch.ID, p, "M", true)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.SubmitPoint(ctx, "missing", p, "M", models.Submission{PhotoURL: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPointNeverSkipsPending(t *testing.T) {
	for from, targets := range pointTransitions {
		for _, to := range targets {
			assert.False(t, from == models.PointLocked && to == models.PointCompleted)
		}
	}
	assert.False(t, canTransition(models.PointLocked, models.PointCompleted))
	assert.False(t, canTransition(models.PointCompleted, models.PointLocked))
	assert.False(t, canTransition(models.PointCompleted, models.PointPending))

	p := &models.TreasurePoint{Status: models.PointLocked}
	assert.ErrorIs(t, transition(p, models.PointCompleted), ErrInvalidTransition)
	assert.Equal(t, models.PointLocked, p.Status)
}

func TestRejectAlwaysClearsSubmission(t *testing.T) {
	subs := []models.Submission{
		{PhotoURL: "a"},
		{PhotoURL: "b", Comment: "long comment", SubmittedBy: "M"},
		{PhotoURL: "c", SubmittedAt: time.Now()},
	}
	for _, sub := range subs {
		sub := sub
		ch := &models.Challenge{
			CreatorID: "host",
			TreasurePoints: []models.TreasurePoint{
				{ID: "p", Status: models.PointPending, Submission: &sub},
			},
		}
		require.NoError(t, ApplyReview(ch, "p", "host", false))
		assert.Equal(t, models.PointLocked, ch.TreasurePoints[0].Status)
		assert.Nil(t, ch.TreasurePoints[0].Submission)
	}
}

func TestCreateTeamMergesMembers(t *testing.T) {
	c, ch, _ := newChallengeFixture(t)
	ctx := context.Background()

	_, err := c.JoinSolo(ctx, ch.ID, models.TeamMember{ID: "a", Nickname: "A"})
	require.NoError(t, err)
	_, err = c.JoinSolo(ctx, ch.ID, models.TeamMember{ID: "a", Nickname: "A"})
	require.NoError(t, err)

	got, added, err := c.CreateTeam(ctx, ch.ID, []models.TeamMember{
		{ID: "a"}, {ID: "b", Nickname: "B"}, {ID: "b"}, {ID: ""}, {ID: "c"},
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(got.Team))
	for _, m := range got.Team {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	require.Len(t, added, 2)
	assert.Equal(t, "B", added[0].Nickname)
}

func TestChallengeListAndDelete(t *testing.T) {
	c, ch, host := newChallengeFixture(t)
	ctx := context.Background()

	_, err := c.Create(ctx, host, NewChallenge{
		Title:          "Night market",
		EventTimestamp: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Points:         []NewPoint{{Name: "Stall"}},
	})
	require.NoError(t, err)

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := c.List(ctx, "MARKET")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Night market", found[0].Title)
	assert.NotNil(t, found[0].Progress)

	require.NoError(t, c.Delete(ctx, ch.ID))
	_, err = c.Get(ctx, ch.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckSubmissionLeavesChallengeAlone(t *testing.T) {
	_, ch, host := newChallengeFixture(t)
	ch.Team = []models.TeamMember{{ID: "M"}}
	p := ch.TreasurePoints[0].ID

	assert.ErrorIs(t, CheckSubmission(ch, p, host.ID), ErrForbidden)
	assert.ErrorIs(t, CheckSubmission(ch, p, "stranger"), ErrForbidden)
	assert.ErrorIs(t, CheckSubmission(ch, "nope", "M"), ErrPointNotFound)
	require.NoError(t, CheckSubmission(ch, p, "M"))
	assert.Equal(t, models.PointLocked, ch.Point(p).Status)

	ch.Point(p).Status = models.PointPending
	assert.ErrorIs(t, CheckSubmission(ch, p, "M"), ErrInvalidTransition)
}
