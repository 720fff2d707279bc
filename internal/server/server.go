package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"taskhub/internal/storage/sqlite"
)

// tokenTTL is the fixed lifetime of issued access tokens.
const tokenTTL = time.Hour

// Server provides the HTTP handlers for the task management backend.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	logger    *slog.Logger
	jwtSecret []byte
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, logger *slog.Logger, jwtSecret string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// the frontend is served separately, so the API allows any origin
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	srv := &Server{
		engine:    router,
		store:     store,
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires the public and token-protected handlers together.
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.POST("/register", s.handleRegister)
		api.POST("/login", s.handleLogin)

		authed := api.Group("", s.requireAuth)
		{
			authed.GET("/user", s.handleGetUser)

			projects := authed.Group("/projects")
			{
				projects.GET("", s.handleListProjects)
				projects.POST("", s.handleCreateProject)
				projects.GET(":id", s.handleGetProject)
				projects.PUT(":id", s.handleUpdateProject)
				projects.DELETE(":id", s.handleDeleteProject)
				projects.GET(":id/tasks", s.handleListTasks)
				projects.POST(":id/tasks", s.handleCreateTask)
			}

			authed.GET("/tasks/:id", s.handleGetTask)
			authed.PUT("/tasks/:id", s.handleUpdateTask)
			authed.DELETE("/tasks/:id", s.handleDeleteTask)
		}
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", msg))
	}
	c.JSON(status, gin.H{"error": msg})
}

// respondDateError returns the fixed message for unparseable request dates.
func respondDateError(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)"})
}
