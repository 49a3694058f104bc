package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/middleware"
	"github.com/phillip/haojiu-go/services"
)

// friendOp runs one step of the request protocol between the caller and
// the user named by :userId.
func friendOp(env *Env, kind services.FriendOpKind, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		other := c.Param("userId")
		op := services.FriendOp{Kind: kind, Actor: middleware.Session(c).UserID, Other: other}
		if err := env.Friends.Do(ctx, op); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, "user_id": other})
	}
}

// ---------------- REQUESTS ----------------
func SendFriendRequest(env *Env) gin.HandlerFunc {
	return friendOp(env, services.FriendSend, "friend request sent")
}

func AcceptFriendRequest(env *Env) gin.HandlerFunc {
	return friendOp(env, services.FriendAccept, "friend request accepted")
}

// DeclineFriendRequest also cancels a request the caller sent.
func DeclineFriendRequest(env *Env) gin.HandlerFunc {
	return friendOp(env, services.FriendDecline, "friend request removed")
}

// ---------------- LIST ----------------
func ListFriends(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		me, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"friends":           orEmpty(me.Friends),
			"incoming_requests": orEmpty(me.IncomingRequests),
			"outgoing_requests": orEmpty(me.OutgoingRequests),
			"groups":            orEmpty(me.Groups),
		})
	}
}

// ---------------- GROUPS ----------------
func CreateGroup(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name      string   `json:"name" binding:"required"`
			MemberIDs []string `json:"member_ids"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		group, err := env.Friends.CreateGroup(ctx, middleware.Session(c).UserID, input.Name, input.MemberIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, group)
	}
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
