// Package httpd is the backend HTTP surface: the directory REST API,
// the log push hub and the signaling switchboard websocket.
package httpd

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/config"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Directory   *app.Directory
	Steps       *app.StepLog
	Switchboard *app.Switchboard
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallDeckSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.httpd").Str("static", cfg.StaticPath).Msg("router setup")

	h := &Handlers{Directory: deps.Directory, Steps: deps.Steps, Switchboard: deps.Switchboard}
	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/heartbeat", h.Heartbeat)
	api.GET("/users", h.Users)
	api.GET("/logs", h.Logs)
	api.DELETE("/logs", h.ClearLogs)
	api.POST("/call/initiate", h.InitiateCall)

	logsCtl := &LogsWSController{Steps: deps.Steps}
	r.GET("/ws/logs", func(c *gin.Context) {
		logsCtl.HandleLogs(ctx, c)
	})

	sigCtl := &SignalWSController{Switchboard: deps.Switchboard, Directory: deps.Directory}
	r.GET("/ws/signal", func(c *gin.Context) {
		sigCtl.HandleSignal(ctx, c)
	})

	return r
}
