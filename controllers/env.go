package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/auth"
	"github.com/phillip/haojiu-go/config"
	"github.com/phillip/haojiu-go/live"
	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/middleware"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/services"
	"github.com/phillip/haojiu-go/store"
	"github.com/phillip/haojiu-go/utils"
)

// Env is what every handler closes over.
type Env struct {
	Cfg   *config.Config
	Store store.Store
	Auth  *auth.Service
	Hub   *live.Hub

	Ledger        *services.Ledger
	Events        *services.Events
	Challenges    *services.Challenges
	Friends       *services.Friends
	Users         *services.Users
	Chat          *services.Chat
	Notifications *services.Notifications

	Uploader utils.Uploader
	Posters  utils.PosterGenerator
}

// NewEnv wires the services over s. Optional integrations fall back to
// disabled implementations.
func NewEnv(cfg *config.Config, s store.Store, uploader utils.Uploader, posters utils.PosterGenerator, notifier services.RequestNotifier) *Env {
	if uploader == nil {
		uploader = utils.NoUploads{}
	}
	if posters == nil {
		posters = utils.NoPosters{}
	}
	env := &Env{
		Cfg:           cfg,
		Store:         s,
		Auth:          auth.NewService(s, cfg.JWTSecret, cfg.JWTTTL),
		Hub:           live.NewHub(s, cfg.CORSOrigins),
		Ledger:        services.NewLedger(s),
		Events:        services.NewEvents(s, cfg.Location),
		Challenges:    services.NewChallenges(s),
		Friends:       services.NewFriends(s, notifier),
		Users:         services.NewUsers(s),
		Chat:          services.NewChat(s),
		Notifications: services.NewNotifications(s),
		Uploader:      uploader,
		Posters:       posters,
	}
	env.Auth.OnAuthStateChange(env.Hub.OnAuthStateChange)
	return env
}

func requestContext(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrPointNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
		msg = "the document changed while saving, please retry"
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, live.ErrPrivateTopic):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrRequestExists),
		errors.Is(err, services.ErrNoPendingRequest),
		errors.Is(err, auth.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, live.ErrUnknownTopic):
		status = http.StatusBadRequest
	case errors.Is(err, utils.ErrUploadsDisabled), errors.Is(err, utils.ErrPosterUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		msg = "request timed out"
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

// currentUser loads the signed-in user's document.
func currentUser(ctx context.Context, c *gin.Context, env *Env) (*models.User, error) {
	sess := middleware.Session(c)
	if sess == nil {
		return nil, auth.ErrInvalidToken
	}
	return env.Users.Get(ctx, sess.UserID)
}

// actor is the session as the services see it when only id and role matter.
func actor(c *gin.Context) *models.User {
	sess := middleware.Session(c)
	return &models.User{ID: sess.UserID, Role: sess.Role, Profile: models.Profile{Nickname: sess.Nickname}}
}

// uploadFile stores the multipart file under field, if any. It returns ""
// when the request carries no such file.
func uploadFile(ctx context.Context, c *gin.Context, env *Env, field, folder string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", fmt.Errorf("%w: invalid form data", services.ErrValidation)
	}
	file, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	return env.Uploader.Upload(ctx, file, folder)
}

// discardUpload removes an image nothing refers to any more. Failures are
// logged only.
func discardUpload(ctx context.Context, env *Env, url string) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := env.Uploader.Delete(ctx, url); err != nil && !errors.Is(err, utils.ErrUploadsDisabled) {
		logger.Warn.Printf("[uploads] discard %s: %v", url, err)
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
