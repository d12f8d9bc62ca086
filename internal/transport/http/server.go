package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/store"
)

// NewServer builds the HTTP server: health, the WebSocket endpoint and the REST API.
func NewServer(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(hub, authService, users, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts /ws on a plain mux and everything else on the gin engine.
// The WebSocket upgrade needs the raw ResponseWriter for the hijack.
func NewHandler(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", NewRouter(hub, authService, users, cfg, logger))
	return mux
}

// NewRouter registers the REST routes on a fresh gin engine.
func NewRouter(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, cfg.TokenTTL, logger)
	userHandlers := NewUserHandlers(users, logger)
	groupHandlers := NewGroupHandlers(hub, logger)
	messageHandlers := NewMessageHandlers(hub, logger)

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", apiHandlers.Register)
	authRoutes.POST("/login", apiHandlers.Login)
	authRoutes.POST("/logout", apiHandlers.Logout)

	protected := api.Group("", AuthMiddleware(authService, logger))
	protected.GET("/users", userHandlers.ListUsers)
	protected.GET("/groups", groupHandlers.ListGroups)
	protected.GET("/messages/group/:groupId", messageHandlers.GroupHistory)
	protected.GET("/messages/:receiver", messageHandlers.DirectHistory)
	protected.PATCH("/messages/:messageId/read", messageHandlers.MarkRead)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
