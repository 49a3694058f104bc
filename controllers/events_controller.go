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
func CreateEvent(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Bind JSON or form fields ---
		var input services.NewEvent
		if err := c.ShouldBind(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 60*time.Second)
		defer cancel()

		creator, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}

		if err := input.Validate(); err != nil {
			respondError(c, err)
			return
		}

		// --- Optional cover image ---
		uploaded, err := uploadFile(ctx, c, env, "image", utils.FolderEvents)
		if err != nil {
			respondError(c, err)
			return
		}
		if uploaded != "" {
			input.ImageURL = uploaded
		}

		event, err := env.Events.Create(ctx, creator, input)
		if err != nil {
			discardUpload(ctx, env, uploaded)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

// ---------------- LIST ----------------
func ListEvents(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter services.EventFilter
		if err := c.ShouldBindQuery(&filter); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		events, err := env.Events.List(ctx, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		if len(events) == 0 {
			c.JSON(http.StatusOK, []models.Event{})
			return
		}

		// --- Pick the most recently updated event ---
		latest := events[0]
		for _, ev := range events {
			if ev.UpdatedAt.After(latest.UpdatedAt) {
				latest = ev
			}
		}

		// --- ETag covers the filter and the result set ---
		etag := utils.GenerateETag(c.Request.URL.RawQuery, len(events), latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, events)
	}
}

// ---------------- GET ----------------
func GetEvent(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		event, err := env.Events.Get(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		etag := utils.GenerateETag(event.ID, event.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, event)
	}
}

// ---------------- UPDATE ----------------
func UpdateEvent(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch services.EventPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		updated, err := env.Events.Update(ctx, actor(c), c.Param("id"), patch)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Event updated successfully",
			"event":   updated,
		})
	}
}

// ---------------- DELETE (admin) ----------------
func DeleteEvent(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 30*time.Second)
		defer cancel()

		id := c.Param("id")
		existing, err := env.Events.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := env.Events.Delete(ctx, id); err != nil {
			respondError(c, err)
			return
		}

		discardUpload(ctx, env, existing.ImageURL)

		c.JSON(http.StatusOK, gin.H{
			"message": "event deleted successfully",
			"id":      id,
		})
	}
}

// ---------------- RESPOND ----------------

// SetResponse toggles the caller's attendance response. Live subscribers
// of the event see the predicted counts first, then the committed ones.
func SetResponse(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Response models.ResponseType `json:"response" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		if !input.Response.Valid() {
			respondError(c, services.ErrInvalidResponse)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		id := c.Param("id")
		sess := middleware.Session(c)
		before, err := env.Events.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}

		predicted := *before
		predicted.Responders = make(map[string]models.Responder, len(before.Responders))
		for k, v := range before.Responders {
			predicted.Responders[k] = v
		}
		services.ApplyResponse(&predicted, sess.UserID, sess.Nickname, input.Response)

		res, err := env.Hub.Dispatch(ctx, live.Command{
			Topic:    live.EventTopic(id),
			ID:       id,
			Snapshot: before,
			Predict:  predicted,
			Commit: func(ctx context.Context) (any, error) {
				return env.Ledger.SetResponse(ctx, id, sess.UserID, sess.Nickname, input.Response)
			},
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ---------------- POSTER ----------------

// GeneratePoster asks the image model for a poster and stores it as the
// event's image.
func GeneratePoster(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 120*time.Second)
		defer cancel()

		id := c.Param("id")
		event, err := env.Events.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if sess := middleware.Session(c); event.CreatorID != sess.UserID && !sess.IsAdmin() {
			respondError(c, services.ErrForbidden)
			return
		}

		img, err := env.Posters.Generate(ctx, event)
		if err != nil {
			respondError(c, err)
			return
		}
		url, err := env.Uploader.Upload(ctx, img, utils.FolderPosters)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := env.Events.SetImage(ctx, id, url); err != nil {
			discardUpload(ctx, env, url)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"image_url": url})
	}
}

// ---------------- ADMIN SEARCH ----------------
func AdminSearchEvents(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		events, err := env.Events.AdminSearch(ctx, c.Query("q"))
		if err != nil {
			respondError(c, err)
			return
		}
		if events == nil {
			events = []models.Event{}
		}
		c.JSON(http.StatusOK, events)
	}
}
