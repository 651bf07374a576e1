package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/orderrelay/internal/adapters/signal"
	"github.com/dkeye/orderrelay/internal/app/orch"
	"github.com/dkeye/orderrelay/internal/config"
	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie. It only correlates reconnects; it is not authentication.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, limiter *signal.ConnectRateLimiter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("OrderRelaySessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(o, limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// GET /ws/:roomType/:roomId?role=customer
	r.GET("/ws/:roomType/:roomId", func(c *gin.Context) {
		key, ok := roomKey(c)
		if !ok {
			return
		}
		role, err := domain.ParseRole(c.DefaultQuery("role", string(key.Type)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctrl.HandleSignal(ctx, c, key, role)
	})

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	api.GET("/monitor", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Counters())
	})

	room := api.Group("/rooms/:roomType/:roomId")

	room.GET("/stats", func(c *gin.Context) {
		key, ok := roomKey(c)
		if !ok {
			return
		}
		stats, err := o.Stats(key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	room.POST("/broadcast", func(c *gin.Context) {
		key, frame, ok := envelopeBody(c, "")
		if !ok {
			return
		}
		n, err := o.Broadcast(key, frame)
		respondBroadcast(c, n, err)
	})

	room.POST("/order-update", func(c *gin.Context) {
		key, frame, ok := envelopeBody(c, protocol.TypeOrderUpdate)
		if !ok {
			return
		}
		n, err := o.OrderUpdate(key, frame)
		respondBroadcast(c, n, err)
	})

	room.DELETE("", func(c *gin.Context) {
		key, ok := roomKey(c)
		if !ok {
			return
		}
		if !o.EvictRoom(key) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func roomKey(c *gin.Context) (domain.RoomKey, bool) {
	key, err := domain.NewRoomKey(c.Param("roomType"), c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.RoomKey{}, false
	}
	return key, true
}

// envelopeBody reads the request body as one envelope. wantType, when set,
// must match the envelope type.
func envelopeBody(c *gin.Context, wantType string) (domain.RoomKey, core.Frame, bool) {
	key, ok := roomKey(c)
	if !ok {
		return domain.RoomKey{}, nil, false
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
		return domain.RoomKey{}, nil, false
	}
	env, err := protocol.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return domain.RoomKey{}, nil, false
	}
	if wantType != "" && env.Type != wantType {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "expected " + wantType})
		return domain.RoomKey{}, nil, false
	}
	return key, core.Frame(body), true
}

func respondBroadcast(c *gin.Context, n int, err error) {
	if err != nil && !errors.Is(err, core.ErrRoomStopped) {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recipientCount": n})
}
