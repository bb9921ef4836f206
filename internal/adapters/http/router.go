package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/adapters/identity"
	"github.com/dkeye/canvas-presence/internal/adapters/signal"
	"github.com/dkeye/canvas-presence/internal/app/orch"
	"github.com/dkeye/canvas-presence/internal/config"
	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

const internalTokenHeader = "X-Internal-Token"

// SetupRouter wires the ops endpoints and the websocket upgrade.
// sessionStore may be nil when identity comes from Redis.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, resolver core.IdentityResolver, sessionStore sessions.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	if sessionStore != nil {
		r.Use(sessions.Sessions(identity.SessionName, sessionStore))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": o.Registry.Count()})
	})
	r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	api.GET("/workspaces/:id/presence", func(c *gin.Context) {
		u, ok := resolver.Resolve(c.Request)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ws := c.Param("id")
		if _, err := o.Gate.RequireWorkspaceMember(c.Request.Context(), ws, u.ID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o.WorkspaceSnapshot(ws))
	})

	api.POST("/authz/invalidate", func(c *gin.Context) {
		token := c.GetHeader(internalTokenHeader)
		if cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Secret)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var req struct {
			UserID string `json:"userId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}
		n := o.InvalidateUser(domain.UserID(req.UserID))
		log.Info().Str("module", "adapters.http").Str("user", req.UserID).Int("evicted", n).Msg("authz cache invalidated")
		c.JSON(http.StatusOK, gin.H{"evicted": n})
	})

	if sessionStore != nil && cfg.Mode != "release" {
		api.POST("/dev/session", func(c *gin.Context) {
			var req struct {
				UserID string `json:"userId" binding:"required"`
				Name   string `json:"name"`
				Image  string `json:"image"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
				return
			}
			u, err := domain.NewUser(req.UserID, req.Name, req.Image)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := identity.SaveUser(sessions.Default(c), u); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save dev session")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "session not saved"})
				return
			}
			c.JSON(http.StatusOK, u)
		})
	}

	ctrl := signal.NewSignalWSController(o, resolver, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Bool("sessions", sessionStore != nil).Msg("router setup")
	return r
}

func writeError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeWorkspaceNotFound, domain.CodeDiagramNotFound, domain.CodeThreadNotFound:
		status = http.StatusNotFound
	case domain.CodeForbidden:
		status = http.StatusForbidden
	}
	msg := "internal error"
	if domain.IsExpected(err) {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}
