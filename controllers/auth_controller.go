package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/middleware"
)

// ---------------- REGISTER ----------------
func Register(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
			Nickname string `json:"nickname"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		cred, err := env.Auth.SignUp(ctx, input.Email, input.Password, input.Nickname)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cred)
	}
}

// ---------------- LOGIN ----------------
func Login(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		ctx, cancel := requestContext(c, 10*time.Second)
		defer cancel()

		cred, err := env.Auth.SignIn(ctx, input.Email, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cred)
	}
}

// ---------------- LOGOUT ----------------
func Logout(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, 5*time.Second)
		defer cancel()

		if err := env.Auth.SignOut(ctx, middleware.Session(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "signed out"})
	}
}

// ---------------- SESSION ----------------
func CurrentSession(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, middleware.Session(c))
	}
}
