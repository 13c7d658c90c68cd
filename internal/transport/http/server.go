package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/auth"
	"github.com/avolkov-dev/relaycast-server/internal/config"
	"github.com/avolkov-dev/relaycast-server/internal/realtime"
	"github.com/avolkov-dev/relaycast-server/internal/service"
)

// Deps bundles what the HTTP layer needs from the rest of the application.
type Deps struct {
	Auth     *auth.Service
	Chat     *service.ChatService
	Posts    *service.PostService
	Gate     *realtime.Gate
	Manager  *realtime.Manager
	Registry *realtime.Registry
}

// NewServer builds the HTTP server with all routes.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	chatHandlers := NewChatHandlers(deps.Chat, logger)
	postHandlers := NewPostHandlers(deps.Posts, logger)
	bcastHandlers := NewBroadcastingHandlers(deps.Auth, deps.Gate, deps.Manager, logger)

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := engine.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.Auth, logger))
	authed.GET("/posts", postHandlers.List)
	authed.POST("/posts", postHandlers.Create)
	authed.POST("/chat", chatHandlers.Send)
	authed.GET("/chat/:user_id", chatHandlers.Conversation)
	authed.POST("/chat/:user_id/read", chatHandlers.MarkRead)
	authed.POST("/broadcasting/auth", bcastHandlers.Authorize)

	engine.GET("/ws", gin.WrapH(NewWSHandler(deps.Manager, deps.Registry, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
