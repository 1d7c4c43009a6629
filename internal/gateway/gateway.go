// Package gateway is the HTTP entry point binding the five engine
// operations and the read-only snapshot/feed projections to REST and
// WebSocket endpoints (spec §6, §2 — "explicitly an external collaborator
// ... present because a deployable system needs an entry point").
// Grounded on internal/gateway/gateway.go: the same gin router, in-house
// sliding-window RateLimiter, tracing/auth middleware pair, and
// circuit.BreakerGroup shape, rebound from order/position/market routes to
// token/doctor routes and from msgClient.Publish fire-and-forget calls to
// direct, synchronous internal/engine calls (the engine itself already
// commits before returning, so there is no async hop to protect here the
// way the teacher protects its orders-service publish).
package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aniket1251/opd-token-allocation-engine/internal/auth"
	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/feed"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
)

// Gateway is the OPD token allocation HTTP API.
type Gateway struct {
	router      *gin.Engine
	engine      *engine.Engine
	auth        *auth.Service
	cache       *cache.Store
	loader      cache.Loader
	feed        *feed.Feed
	breakers    *circuit.BreakerGroup
	rateLimiter *RateLimiter
	clock       clock.Clock
	location    *time.Location
}

// Config holds gateway server configuration.
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// New assembles a Gateway wiring the engine, snapshot cache, live feed, and
// staff auth service around a gin router.
func New(cfg Config, eng *engine.Engine, authSvc *auth.Service, snapCache *cache.Store, loader cache.Loader, liveFeed *feed.Feed) *Gateway {
	breakers := circuit.NewBreakerGroup(circuit.Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	})

	g := &Gateway{
		router:   gin.Default(),
		engine:   eng,
		auth:     authSvc,
		cache:    snapCache,
		loader:   loader,
		feed:     liveFeed,
		breakers: breakers,
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
		clock:    eng.Clock,
		location: eng.Location,
	}

	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.rateLimitMiddleware())
	g.router.Use(g.tracingMiddleware())

	g.router.GET("/health", g.healthCheck)

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/tokens", g.authMiddleware(), g.createToken)
		v1.DELETE("/tokens/:id", g.authMiddleware(), g.cancelToken)
		v1.POST("/tokens/:id/no-show", g.authMiddleware(), g.markNoShow)
		v1.POST("/tokens/:id/complete", g.authMiddleware(), g.completeToken)

		v1.POST("/doctors/:doctorId/expire", g.authMiddleware(), g.expireWaiting)
		v1.GET("/doctors/:doctorId/snapshot", g.authMiddleware(), g.getSnapshot)

		v1.GET("/ws", g.authMiddleware(), g.handleWebSocket)
	}
}

// Run starts the gateway's HTTP server on addr.
func (g *Gateway) Run(addr string) error {
	return g.router.Run(addr)
}

// Handler exposes the underlying gin router so cmd/gateway can wrap it in
// its own *http.Server for graceful shutdown, instead of calling Run and
// losing the ability to call Shutdown on SIGTERM.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := g.auth.Verify(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("staff_id", claims.StaffID)
		c.Set("staff_role", claims.Role)
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !g.rateLimiter.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// RateLimiter is a per-key sliding-window limiter.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// Allow reports whether a request for key is within the window's budget,
// recording it if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := make([]time.Time, 0, len(requests))
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
