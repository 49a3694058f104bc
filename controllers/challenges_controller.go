package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/live"
	"github.com/phillip/haojiu-go/middleware"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/services"
	"github.com/phillip/haojiu-go/utils"
)

// ---------------- CREATE ----------------
func CreateChallenge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.NewChallenge
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		host, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}
		challenge, err := env.Challenges.Create(ctx, host, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, challenge)
	}
}

// ---------------- LIST ----------------
func ListChallenges(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		challenges, err := env.Challenges.List(ctx, c.Query("q"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, challenges)
	}
}

// ---------------- GET ----------------
func GetChallenge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		challenge, err := env.Challenges.Get(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		etag := utils.GenerateETag(challenge.ID, challenge.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, challenge)
	}
}

// ---------------- DELETE (admin) ----------------
func DeleteChallenge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		id := c.Param("id")
		if err := env.Challenges.Delete(ctx, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "challenge deleted successfully", "id": id})
	}
}

// ---------------- TEAM ----------------
func JoinChallenge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		me, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}
		challenge, err := env.Challenges.JoinSolo(ctx, c.Param("id"), me.Member())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, challenge)
	}
}

// CreateTeam joins the caller together with friends picked from their
// friend list.
func CreateTeam(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			FriendIDs []string `json:"friend_ids"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		me, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}

		members := []models.TeamMember{me.Member()}
		for _, id := range input.FriendIDs {
			friend := findContact(me.Friends, id)
			if friend == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "only friends can be added to a team", "user_id": id})
				return
			}
			members = append(members, models.TeamMember{ID: friend.UserID, Nickname: friend.Nickname, Avatar: friend.Avatar})
		}

		challenge, added, err := env.Challenges.CreateTeam(ctx, c.Param("id"), members)
		if err != nil {
			respondError(c, err)
			return
		}
		if added == nil {
			added = []models.TeamMember{}
		}
		c.JSON(http.StatusOK, gin.H{"challenge": challenge, "added": added})
	}
}

// ---------------- TREASURE POINTS ----------------

// SubmitPoint accepts either a multipart photo upload or a photo_url that
// was uploaded beforehand.
func SubmitPoint(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PhotoURL string `json:"photo_url" form:"photo_url"`
			Comment  string `json:"comment" form:"comment"`
		}
		if err := c.ShouldBind(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 60*time.Second)
		defer cancel()

		id, pointID := c.Param("id"), c.Param("pointId")
		userID := middleware.Session(c).UserID

		before, err := env.Challenges.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := services.CheckSubmission(before, pointID, userID); err != nil {
			respondError(c, err)
			return
		}

		uploaded, err := uploadFile(ctx, c, env, "photo", utils.FolderTreasurePoints)
		if err != nil {
			respondError(c, err)
			return
		}
		if uploaded != "" {
			input.PhotoURL = uploaded
		}
		sub := models.Submission{PhotoURL: input.PhotoURL, Comment: input.Comment}

		predicted, err := predictChallenge(before, func(ch *models.Challenge) error {
			return services.ApplySubmission(ch, pointID, userID, sub)
		})
		if err != nil {
			discardUpload(ctx, env, uploaded)
			respondError(c, err)
			return
		}

		res, err := env.Hub.Dispatch(ctx, live.Command{
			Topic:    live.ChallengeTopic(id),
			ID:       id,
			Snapshot: before,
			Predict:  predicted,
			Commit: func(ctx context.Context) (any, error) {
				return env.Challenges.SubmitPoint(ctx, id, pointID, userID, sub)
			},
		})
		if err != nil {
			discardUpload(ctx, env, uploaded)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func ReviewPoint(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Approve *bool `json:"approve" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		id, pointID := c.Param("id"), c.Param("pointId")
		userID := middleware.Session(c).UserID
		approve := *input.Approve

		before, err := env.Challenges.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		predicted, err := predictChallenge(before, func(ch *models.Challenge) error {
			return services.ApplyReview(ch, pointID, userID, approve)
		})
		if err != nil {
			respondError(c, err)
			return
		}

		res, err := env.Hub.Dispatch(ctx, live.Command{
			Topic:    live.ChallengeTopic(id),
			ID:       id,
			Snapshot: before,
			Predict:  predicted,
			Commit: func(ctx context.Context) (any, error) {
				return env.Challenges.ReviewPoint(ctx, id, pointID, userID, approve)
			},
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if !approve {
			if p := before.Point(pointID); p != nil && p.Submission != nil {
				discardUpload(ctx, env, p.Submission.PhotoURL)
			}
		}
		c.JSON(http.StatusOK, res)
	}
}

// predictChallenge runs apply on a copy of ch so the snapshot stays intact
// for a revert.
func predictChallenge(ch *models.Challenge, apply func(*models.Challenge) error) (*models.Challenge, error) {
	cp := *ch
	cp.Team = append([]models.TeamMember(nil), ch.Team...)
	cp.TreasurePoints = append([]models.TreasurePoint(nil), ch.TreasurePoints...)
	if err := apply(&cp); err != nil {
		return nil, err
	}
	pr := services.ChallengeProgress(&cp)
	cp.Progress = &pr
	return &cp, nil
}

func findContact(list []models.Contact, userID string) *models.Contact {
	for i := range list {
		if list[i].UserID == userID {
			return &list[i]
		}
	}
	return nil
}
