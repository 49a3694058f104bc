package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/middleware"
)

// Live upgrades to a WebSocket subscribed to every ?topic= given. More
// topics can be added over the socket afterwards.
func Live(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := env.Hub.Serve(c.Writer, c.Request, middleware.Session(c), c.QueryArray("topic"))
		if err != nil {
			respondError(c, err)
		}
	}
}
