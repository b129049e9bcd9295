package server

import (
	"dm-lab/auth"
	"dm-lab/observability"
	"dm-lab/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	// CORSOrigins lists the allowed origins. Empty or "*" allows every origin.
	CORSOrigins []string
	// DebugStats mounts /debug/stats behind the token check.
	DebugStats bool
}

type Server struct {
	service     services.IMessagingService
	tokens      *auth.TokenManager
	monitoring  *observability.MonitoringManager
	corsOrigins []string
	debugStats  bool
	log         *slog.Logger
}

func NewServer(service services.IMessagingService, tokens *auth.TokenManager,
	monitoring *observability.MonitoringManager, options Options, log *slog.Logger) *Server {
	return &Server{
		service:     service,
		tokens:      tokens,
		monitoring:  monitoring,
		corsOrigins: options.CORSOrigins,
		debugStats:  options.DebugStats,
		log:         log,
	}
}

// Router builds the gin engine. Every /v1 route requires a Bearer token.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.corsOrigins) == 0 || (len(s.corsOrigins) == 1 && s.corsOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = s.corsOrigins
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.debugStats {
		r.GET("/debug/stats", auth.Middleware(s.tokens), func(c *gin.Context) {
			c.JSON(http.StatusOK, s.monitoring.GetLatest())
		})
	}

	v1 := r.Group("/v1", auth.Middleware(s.tokens))
	{
		v1.GET("/conversations", s.handleListConversations)
		v1.POST("/conversations", s.handleCreateConversation)
		v1.GET("/conversations/:id", s.handleGetConversation)
		v1.PATCH("/conversations/:id", s.handleUpdateConversation)
		v1.POST("/conversations/:id/leave", s.handleLeaveConversation)
		v1.POST("/conversations/:id/accept", s.handleAcceptConversation)
		v1.POST("/conversations/:id/read", s.handleMarkRead)
		v1.POST("/conversations/:id/participants", s.handleAddParticipant)
		v1.GET("/conversations/:id/messages", s.handleListMessages)
		v1.POST("/conversations/:id/messages", s.handleSendMessage)
		v1.GET("/conversations/:id/search", s.handleSearchMessages)

		v1.PATCH("/messages/:id", s.handleEditMessage)
		v1.DELETE("/messages/:id", s.handleDeleteMessage)

		v1.GET("/users/:id/can-message", s.handleCanMessage)
		v1.PUT("/me/profile", s.handleUpdateProfile)
		v1.PUT("/blocks/:id", s.handleBlock)
		v1.DELETE("/blocks/:id", s.handleUnblock)
		v1.GET("/notifications", s.handleListNotifications)
	}
	return r
}

// requestLogger logs every request through slog and feeds the monitoring counters.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		s.monitoring.RecordRequest(status)
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.log.Log(c.Request.Context(), level, "Request handled",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"caller_id", auth.CallerID(c),
		)
	}
}
