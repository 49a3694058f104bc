package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/middleware"
	"github.com/phillip/haojiu-go/services"
	"github.com/phillip/haojiu-go/utils"
)

// ---------------- ME ----------------
func Me(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		me, err := currentUser(ctx, c, env)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, me)
	}
}

// GetUser returns the public part of a user. Only the user themselves or
// an admin sees the full document.
func GetUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		user, err := env.Users.Get(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if sess := middleware.Session(c); sess.UserID == user.ID || sess.IsAdmin() {
			c.JSON(http.StatusOK, user)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "profile": user.Profile})
	}
}

// ---------------- UPDATE ----------------
func UpdateProfile(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch services.ProfilePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		user, err := env.Users.UpdateProfile(ctx, middleware.Session(c).UserID, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// UploadAvatar stores the "avatar" file and points the profile at it.
func UploadAvatar(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 60*time.Second)
		defer cancel()

		url, err := uploadFile(ctx, c, env, "avatar", utils.FolderAvatars)
		if err != nil {
			respondError(c, err)
			return
		}
		if url == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
			return
		}

		user, err := env.Users.UpdateProfile(ctx, middleware.Session(c).UserID, services.ProfilePatch{Avatar: &url})
		if err != nil {
			discardUpload(ctx, env, url)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// ---------------- LIST (admin) ----------------
func ListUsers(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		users, err := env.Users.List(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orEmpty(users))
	}
}
