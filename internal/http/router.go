// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, bearer authentication, idempotency,
// and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/config"
	"github.com/tbourn/crystarise-backend/internal/http/handlers"
	"github.com/tbourn/crystarise-backend/internal/http/middleware"
	"github.com/tbourn/crystarise-backend/internal/services"
)

// Deps are the collaborators the API is built from. Rooms and Crystals are
// the storage backend (embedded or hosted); Idem is always the embedded
// idempotency table.
type Deps struct {
	Rooms    services.RoomStore
	Crystals services.CrystalStore
	Idem     services.IdempotencyStore
	Verifier auth.Verifier
	Accounts auth.Accounts
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), compression, CORS
// and security headers, health and metrics endpoints, and then mounts the
// public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip, CORS and security headers
//
// Per group:
//   - /auth: rate limiter keyed by client IP, no-store caching
//   - authenticated API: RequireAuth, then idempotency validation (before the
//     rate limiter to allow bypass on replay), then a per-user rate limiter,
//     then private caching (profile routes override it with no-store)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics("/metrics"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression, CORS posture, security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		Expose:       []string{"ETag", "Retry-After", middleware.HeaderIdempotencyReplayed},
	}))
	noStore := middleware.CacheControl(middleware.CacheNoStore)

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← stores/identity
	roomSvc := services.NewRoomService(deps.Rooms)
	crystalSvc := services.NewCrystalService(deps.Crystals, deps.Idem)
	crystalSvc.RecordsDefaultLimit = cfg.Records.DefaultLimit
	crystalSvc.RecordsMaxLimit = cfg.Records.MaxLimit
	profileSvc := services.NewProfileService(deps.Rooms, deps.Crystals, deps.Accounts)
	authSvc := services.NewAuthService(deps.Accounts)

	h := handlers.New(roomSvc, crystalSvc, profileSvc, authSvc)
	h.RedactBackendErrors = cfg.RedactBackendErrors

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Hello, World!"})
	})

	// Public: credentials
	ipLimiter := middleware.NewRateLimiter("auth", cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	pub := api.Group("/auth", ipLimiter.Handler(), noStore)
	{
		pub.POST("/signup", h.SignUp)
		pub.POST("/signin", h.SignIn)
	}

	// Authenticated API
	userLimiter := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	userLimiter.WriteCost = cfg.RateWriteCost
	priv := api.Group("",
		middleware.RequireAuth(deps.Verifier),
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200, Scope: recordScope},
			idempotencyLookup(deps.Idem),
		),
		userLimiter.Handler(),
		middleware.CacheControl(middleware.CachePrivate),
	)
	{
		// Rooms
		priv.POST("/rooms/solo", h.CreateSoloRoom)
		priv.POST("/rooms", h.CreateRoom)
		priv.POST("/rooms/group", h.CreateGroupRoom)
		priv.POST("/rooms/join", h.JoinRoom)
		priv.GET("/rooms/mine", h.MyRooms)
		priv.GET("/rooms/:id", h.GetRoom)
		priv.GET("/rooms/:id/members", h.RoomMembers)

		// Crystals
		priv.POST("/crystals", h.CreateCrystal)
		priv.GET("/crystals/by-room/:room_id", h.CrystalByRoom)
		priv.POST("/crystals/by-room/:room_id/records", h.AddRecordByRoom)
		priv.GET("/crystals/by-room/:room_id/summary", h.SummaryByRoom)
		priv.POST("/crystals/:id/records", h.AddRecord)
		priv.GET("/crystals/:id/records", h.ListRecords)
		priv.GET("/crystals/:id/summary", h.CrystalSummary)

		// Profile
		priv.GET("/me/profile", noStore, h.GetProfile)
		priv.PATCH("/me/profile", noStore, h.UpdateProfile)
	}
}

// recordScope names the idempotency scope of an append by crystal id. The
// crystal behind a by-room append is only known to the service, which
// resolves that replay itself.
func recordScope(c *gin.Context) string {
	if c.Request.Method != http.MethodPost || c.FullPath() == "" {
		return ""
	}
	if strings.HasSuffix(c.FullPath(), "/crystals/:id/records") {
		return "crystal:" + c.Param("id")
	}
	return ""
}

// idempotencyLookup adapts the idempotency store to the middleware callback.
func idempotencyLookup(idem services.IdempotencyStore) middleware.IdempotencyLookup {
	if idem == nil {
		return nil
	}
	return func(ctx context.Context, userID, scope, key string) (bool, error) {
		_, ok, err := idem.Lookup(ctx, userID, scope, key)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header (helps simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
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
