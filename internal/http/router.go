// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID, logging, recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/config"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/http/handlers"
	"github.com/supportdesk/conversation-engine/internal/http/middleware"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, and then mounts the versioned API
// under cfg.APIBasePath with authentication, idempotency, and rate limiting
// scoped to it.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter, gzip
//  6. Metrics
//  7. CORS and security headers
//
// Per API group:
//  8. Authenticate (identity required for every API route)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, producer events.Producer, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	corsHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-User-ID", "X-User-Role", "X-User-Name", "If-None-Match",
		middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services from db/producer/config
	ticketSvc := services.NewTicketService(db, producer)
	ticketSvc.MaxContentRunes = cfg.MaxContentRunes

	chatSvc := services.NewChatService(db, producer)
	chatSvc.ReuseActive = cfg.Chat.ReuseActive
	chatSvc.MaxContentRunes = cfg.MaxContentRunes
	chatSvc.SubjectLocale = language.English

	syncSvc := services.NewSyncService(db)
	syncSvc.DefaultLimit = cfg.Sync.DefaultLimit
	syncSvc.MaxLimit = cfg.Sync.MaxLimit

	gate := &auth.OwnershipGate{DB: db}
	h := handlers.New(ticketSvc, chatSvc, syncSvc, gate, db, cfg.IdempotencyTTL)

	// Versioned API: authentication, idempotency, and rate limiting apply to
	// every route in the group.
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Authenticate(auth.HeaderResolver{}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, threadID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, threadID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api.Use(rl.Handler())
	{
		// Tickets
		api.POST("/tickets", h.CreateTicket)
		api.GET("/tickets", h.ListTickets)
		api.GET("/tickets/:id", h.GetTicket)
		api.POST("/tickets/:id/messages", h.PostTicketMessage)
		api.GET("/tickets/:id/messages", h.SyncTicketMessages)
		api.POST("/tickets/:id/read", h.MarkTicketRead)

		// Chat sessions
		api.POST("/chat/sessions", h.StartChat)
		api.GET("/chat/sessions", h.ListChatSessions)
		api.GET("/chat/sessions/:id", h.GetChatSession)
		api.POST("/chat/sessions/:id/messages", h.PostChatMessage)
		api.GET("/chat/sessions/:id/messages", h.SyncChatMessages)
		api.POST("/chat/sessions/:id/read", h.MarkChatRead)
		api.POST("/chat/sessions/:id/end", h.EndChat)

		// Admin surface
		admin := api.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/tickets", h.AdminListTickets)
			admin.PATCH("/tickets/:id", h.AdminPatchTicket)
			admin.POST("/tickets/:id/assign", h.AdminAssignTicket)
			admin.POST("/chat/sessions/:id/assign", h.AdminAssignChat)
			admin.POST("/chat/sessions/:id/end", h.AdminEndChat)
			admin.GET("/analytics", h.AdminAnalytics)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
