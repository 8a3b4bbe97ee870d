// Package httpapi wires the HTTP transport (Gin) to the handlers,
// middleware and supporting stores. It centralizes cross-cutting concerns
// such as tracing, correlation IDs, logging/redaction, panic recovery,
// metrics, CORS, security headers, compression, authentication,
// idempotency and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/config"
	"github.com/tbourn/worldfriends-backend/internal/http/handlers"
	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/services"
	"github.com/tbourn/worldfriends-backend/internal/storage"
)

// idemStore adapts the idempotency repository functions to
// middleware.IdempotencyStore.
type idemStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency, reporting a miss as found=false.
func (s idemStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, int, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return rec.ResourceID, rec.Status, true, nil
}

// Save proxies repo.CreateIdempotency. A concurrent retry that saved first
// wins; the duplicate is not an error.
func (s idemStore) Save(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, s.ttl)
	if repo.IsDuplicate(err) {
		return nil
	}
	return err
}

// Deps are the collaborators RegisterRoutes wires into the services.
type Deps struct {
	DB     *gorm.DB
	Tokens middleware.TokenResolver
	// Blobs resolves and deletes media keys. Optional.
	Blobs storage.Blobs
	// Events receives post-commit invalidation events. Optional.
	Events realtime.Publisher
	// Realtime serves /ws. Optional; without it /ws answers 503.
	Realtime handlers.Subscriber
}

// newHandlers builds the services over d and the handlers over them.
func newHandlers(d Deps, cfg config.Config) *handlers.Handlers {
	base := services.Deps{DB: d.DB, Blobs: d.Blobs, Events: d.Events, Notifier: &services.Notifier{}}
	privacy := &services.PrivacyGate{Deps: base}
	policy := services.NewPolicy(cfg.TrustedAuthorIDs)

	return handlers.New(handlers.Services{
		Friendships:   &services.FriendshipService{Deps: base, Privacy: privacy},
		Conversations: &services.ConversationService{Deps: base},
		Messages:      &services.MessageService{Deps: base, MaxContentRunes: cfg.MessageMaxRunes},
		Groups:        &services.GroupService{Deps: base, TitleMaxLen: cfg.GroupTitleMaxLen},
		Posts:         &services.PostService{Deps: base, Policy: policy},
		Interactions:  &services.InteractionService{Deps: base, Policy: policy},
		Users:         &services.UserService{Deps: base, Privacy: privacy},
		Discovery:     &services.DiscoveryService{Deps: base},
		Blocks:        privacy,
		Notifications: &services.NotificationService{Deps: base},
		Realtime:      d.Realtime,
	}, cfg.DefaultLocale)
}

// RegisterRoutes builds the services from d, attaches all middleware and
// HTTP endpoints to the given Gin engine, and mounts the authenticated API
// under cfg.APIBasePath.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access log (redacting unless LOG_REDACT=false)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. gzip (the websocket and /metrics are excluded)
//
// API group order: Authenticate, then the idempotency validator (a replay
// answers before spending a rate-limit token), then the rate limiter.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath
	wsPath := joinPath(apiBase, "/ws")

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath, "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Ops
	r.GET("/health", health(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(),
		middleware.WithWriteCost(cfg.RateWriteCost))
	h := newHandlers(d, cfg)

	// Realtime: browsers cannot set headers on a WebSocket handshake.
	ws := groupWithPrefix(r, apiBase)
	ws.GET("/ws",
		middleware.Authenticate(d.Tokens, middleware.AuthOptions{QueryParam: "access_token"}),
		rl.Handler(),
		h.Events,
	)

	api := groupWithPrefix(r, apiBase)
	api.Use(
		middleware.Authenticate(d.Tokens, middleware.AuthOptions{}),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idemStore{db: d.DB, ttl: cfg.IdempotencyTTL}),
		rl.Handler(),
	)
	{
		// Friendships
		api.POST("/friendships", h.SendFriendRequest)
		api.POST("/friendships/:id/accept", h.AcceptFriendRequest)
		api.POST("/friendships/:id/reject", h.RejectFriendRequest)
		api.GET("/friendships/requests", h.ListFriendRequests)
		api.GET("/friends", h.ListFriends)
		api.DELETE("/friends/:userId", h.RemoveFriend)

		// Conversations
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/unread", h.HasUnreadConversations)
		api.GET("/conversations/:id", h.ConversationInfo)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.POST("/conversations/:id/read", h.MarkConversationRead)
		api.GET("/conversations/:id/messages", h.ConversationMessages)

		// Messages
		api.POST("/messages", h.SendMessage)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.POST("/messages/:id/correction", h.CorrectMessage)

		// Groups
		api.POST("/groups", h.CreateGroup)
		api.GET("/groups", h.ListGroups)
		api.GET("/groups/:id", h.GroupInfo)
		api.DELETE("/groups/:id", h.DeleteGroup)
		api.POST("/groups/:id/leave", h.LeaveGroup)
		api.POST("/groups/:id/read", h.MarkGroupRead)
		api.GET("/groups/:id/members", h.GroupMembers)
		api.GET("/groups/:id/messages", h.GroupMessages)

		// Feed
		api.POST("/posts", h.CreatePost)
		api.GET("/posts/:id", h.PostDetails)
		api.PUT("/posts/:id/attachments", h.UpdatePostAttachments)
		api.DELETE("/posts/:id", h.DeletePost)
		api.POST("/posts/:id/pin", h.TogglePin)
		api.GET("/feed", h.Feed)
		api.POST("/collections", h.CreateCollection)
		api.GET("/collections", h.ListCollections)

		// Interactions
		api.POST("/posts/:id/reactions", h.React)
		api.GET("/posts/:id/reactions", h.Reactions)
		api.POST("/posts/:id/comments", h.Comment)
		api.GET("/posts/:id/comments", h.Comments)
		api.GET("/comments/:id", h.CommentByID)
		api.GET("/comments/:id/replies", h.Replies)
		api.DELETE("/comments/:id", h.DeleteComment)

		// Users
		api.GET("/me", h.Me)
		api.GET("/discover", h.Discover)
		api.GET("/users/:id", h.Profile)
		api.GET("/users/:id/posts", h.UserPosts)
		api.GET("/users/:id/photos", h.UserPhotos)
		api.POST("/users/:id/block", h.BlockUser)
		api.DELETE("/users/:id/block", h.UnblockUser)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadNotifications)
		api.POST("/notifications/read", h.MarkNotificationsRead)
	}
}

// health reports liveness and, when a database is wired, whether it
// answers a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				middleware.LoggerFrom(c).Error().Err(err).Msg("health: database unreachable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// corsMiddleware returns the CORS posture: allow every origin when none are
// configured, otherwise echo allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
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
		cors.New(base),
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

// joinPath appends p to the API base path.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
