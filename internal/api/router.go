package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/app"
	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/cache"
	"github.com/escalaapp/escala/internal/handlers"
	"github.com/escalaapp/escala/internal/middleware"
	"github.com/escalaapp/escala/internal/realtime"
	"github.com/escalaapp/escala/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
// When store or rateStore are nil, database-backed implementations are used.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, store cache.Store, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if store == nil {
		store = cache.NewDatabaseStore(db)
	}
	if rateStore == nil {
		rateStore = middleware.NewDatabaseRateStore(store)
	}

	hub := realtime.NewHub()

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	notifier, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}
	users, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	teams, err := services.NewTeamService(db, audit, services.WithTeamNotifier(notifier))
	if err != nil {
		return nil, err
	}

	var inviteOpts []services.InvitationOption
	if base := strings.TrimSpace(cfg.Server.ExternalURL); base != "" {
		inviteOpts = append(inviteOpts, services.WithInviteBaseURL(base))
	}
	if cfg.Invites.TTL > 0 {
		inviteOpts = append(inviteOpts, services.WithInviteTTL(cfg.Invites.TTL))
	}
	invitations, err := services.NewInvitationService(db, teams, audit, notifier, inviteOpts...)
	if err != nil {
		return nil, err
	}

	var pendingOpts []services.PendingInviteOption
	if cfg.Invites.PendingStaleness > 0 {
		pendingOpts = append(pendingOpts, services.WithPendingStaleness(cfg.Invites.PendingStaleness))
	}
	pending, err := services.NewPendingInviteCache(store, pendingOpts...)
	if err != nil {
		return nil, err
	}
	resume, err := services.NewInviteResumeCoordinator(pending, invitations)
	if err != nil {
		return nil, err
	}

	authHandler, err := handlers.NewAuthHandler(users, jwt, resume)
	if err != nil {
		return nil, err
	}
	teamHandler, err := handlers.NewTeamHandler(teams)
	if err != nil {
		return nil, err
	}
	inviteHandler, err := handlers.NewInvitationHandler(invitations, pending)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := handlers.NewNotificationHandler(notifier)
	if err != nil {
		return nil, err
	}
	realtimeHandler := handlers.NewRealtimeHandler(hub, jwt,
		realtime.StreamNotifications,
		realtime.StreamInvitations,
		realtime.StreamMemberships,
	)

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}

	// Credential endpoints get a tighter, store-backed budget.
	authRate := middleware.RateLimitWithStore(rateStore, 10, time.Minute)
	publicInviteRate := middleware.RateLimitWithStore(rateStore, 30, time.Minute)

	// Public auth routes
	auth := r.Group("/api/auth")
	auth.Use(authRate)
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Public invitation routes: the landing page reads the preview, checks
	// the token and stashes the invite before the visitor signs in.
	invitesPublic := r.Group("/api/invitations")
	invitesPublic.Use(publicInviteRate)
	{
		invitesPublic.GET("/:id", inviteHandler.PublicMetadata)
		invitesPublic.POST("/:id/validate", inviteHandler.Validate)
		invitesPublic.POST("/:id/stash", inviteHandler.Stash)
	}

	// Protected routes
	requireAuth := middleware.Auth(jwt)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	teamRoutes := api.Group("/teams")
	{
		teamRoutes.POST("", teamHandler.Create)
		teamRoutes.GET("/:id", teamHandler.Get)
		teamRoutes.GET("/:id/members", teamHandler.ListMembers)
		teamRoutes.DELETE("/:id/members/:memberID", teamHandler.RemoveMember)
		teamRoutes.PATCH("/:id/members/:memberID/role", teamHandler.UpdateMemberRole)
		teamRoutes.POST("/:id/invitations", inviteHandler.Create)
		teamRoutes.GET("/:id/invitations", inviteHandler.ListForTeam)
	}
	api.GET("/me/teams", teamHandler.ListMine)

	inviteRoutes := api.Group("/invitations")
	{
		inviteRoutes.DELETE("/:id", inviteHandler.Cancel)
		inviteRoutes.POST("/:id/regenerate", inviteHandler.Regenerate)
		inviteRoutes.POST("/:id/accept", inviteHandler.Accept)
	}

	notificationRoutes := api.Group("/notifications")
	{
		notificationRoutes.GET("", notificationHandler.List)
		notificationRoutes.POST("/:id/read", notificationHandler.MarkRead)
		notificationRoutes.POST("/:id/unread", notificationHandler.MarkUnread)
		notificationRoutes.DELETE("/:id", notificationHandler.Delete)
		notificationRoutes.POST("/read-all", notificationHandler.MarkAllRead)
	}

	// The websocket entry point authenticates via query token because browser
	// websocket dials cannot set the Authorization header.
	r.GET("/api/realtime", realtimeHandler.Stream)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
