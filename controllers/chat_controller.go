package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/models"
)

const defaultMessageLimit = 100

// chatID names the chat a route addresses: an explicit :chatId, or the
// chat of event :id.
func chatID(c *gin.Context) string {
	if id := c.Param("chatId"); id != "" {
		return id
	}
	return models.Event{ID: c.Param("id")}.ChatID()
}

// ---------------- LIST ----------------
func ListMessages(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultMessageLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		messages, err := env.Chat.List(ctx, chatID(c), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orEmpty(messages))
	}
}

// ---------------- SEND ----------------
func SendMessage(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		sender, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}
		msg, err := env.Chat.Send(ctx, chatID(c), sender, input.Text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}
