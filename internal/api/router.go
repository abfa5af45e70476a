// Package api wires together all HTTP routes for the team directory backend.
//
// Route grouping philosophy:
//   - Everything except authentication entry points and health probes sits
//     behind AuthMiddleware: the directory holds personal data, so there is no
//     anonymous read surface. Anonymous callers get 401 from the middleware;
//     the service layer additionally treats an empty actor as "show nothing"
//     so a missing identity can never widen visibility.
//   - Scope enforcement happens per route group for uniform areas (team,
//     directories, users, settings) and inside the handlers for contacts,
//     where the required scope depends on whether the target contact is a
//     shared team entry or part of a personal book.
//   - /api/v1/files serves stored avatars for the local storage backend only.
//     Cloud backends hand out their own signed URLs and bypass this route.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/team-directory/team-directory/internal/api/admin"
	"github.com/team-directory/team-directory/internal/api/avatars"
	"github.com/team-directory/team-directory/internal/api/contacts"
	"github.com/team-directory/team-directory/internal/api/directories"
	"github.com/team-directory/team-directory/internal/api/team"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/auth/oidc"
	"github.com/team-directory/team-directory/internal/config"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/directory"
	"github.com/team-directory/team-directory/internal/jobs"
	"github.com/team-directory/team-directory/internal/middleware"
	"github.com/team-directory/team-directory/internal/safego"
	"github.com/team-directory/team-directory/internal/storage"

	// Import storage backends to register them
	_ "github.com/team-directory/team-directory/internal/storage/azure"
	_ "github.com/team-directory/team-directory/internal/storage/gcs"
	_ "github.com/team-directory/team-directory/internal/storage/local"
	_ "github.com/team-directory/team-directory/internal/storage/s3"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) calls
// Shutdown() once the HTTP server has drained.
type BackgroundServices struct {
	ldapSyncJob *jobs.LDAPSyncJob
	limiters    []middleware.Limiter
	redisClient *redis.Client
}

// Shutdown stops all background goroutines and closes shared clients.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.ldapSyncJob != nil {
		bg.ldapSyncJob.Stop()
	}
	for _, limiter := range bg.limiters {
		limiter.Stop()
	}
	if bg.redisClient != nil {
		_ = bg.redisClient.Close()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	log.Printf("Initialized storage backend: %s", cfg.Storage.DefaultBackend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	pinRepo := repositories.NewPinRepository(db)
	teamRepo := repositories.NewTeamRepository(db)

	// Wrap *sql.DB with sqlx for the settings and directory repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	settingsRepo := repositories.NewSettingsRepository(sqlxDB)
	directoryRepo := repositories.NewDirectoryRepository(sqlxDB)

	// Core directory service
	directoryService := directory.NewService(
		teamRepo, contactRepo, userRepo, pinRepo, settingsRepo,
		storageBackend, cfg.Directory.AvatarURLTTL, slog.Default(),
	)

	// Rate limiters: cluster-wide via Redis when configured, per-instance
	// token buckets otherwise.
	bg := &BackgroundServices{}
	if cfg.Redis.Address != "" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("rate limiting via redis", "address", cfg.Redis.Address)
	}
	newLimiter := func(rlCfg middleware.RateLimitConfig) middleware.Limiter {
		if bg.redisClient != nil {
			return middleware.NewRedisRateLimiter(bg.redisClient, rlCfg)
		}
		return middleware.NewRateLimiter(rlCfg)
	}
	authLimiter := newLimiter(middleware.AuthRateLimitConfig())
	generalLimiter := newLimiter(middleware.DefaultRateLimitConfig())
	uploadLimiter := newLimiter(middleware.UploadRateLimitConfig())
	bg.limiters = []middleware.Limiter{authLimiter, generalLimiter, uploadLimiter}

	// LDAP user sync job (no-op when disabled)
	bg.ldapSyncJob = jobs.NewLDAPSyncJob(userRepo, &cfg.Auth.LDAP)
	ldapJob := bg.ldapSyncJob
	safego.Go(func() {
		ldapJob.Start(context.Background())
	})

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health and readiness probes
	router.GET("/healthz", healthzHandler(db))
	router.GET("/readyz", readyzHandler(db, storageBackend))

	// API version
	router.GET("/version", versionHandler())

	// File serving endpoint for local storage with ServeDirectly enabled
	avatarHandlers := avatars.NewHandlers(
		storageBackend, userRepo, contactRepo, directoryRepo,
		cfg.Directory.AvatarMaxSizeBytes, cfg.Directory.AvatarURLTTL,
	)
	router.GET("/api/v1/files/*filepath", avatarHandlers.ServeFileHandler())

	// Initialize handlers
	teamHandlers := team.NewHandlers(directoryService)
	contactHandlers := contacts.NewHandlers(contactRepo, directoryRepo, settingsRepo)
	directoryHandlers := directories.NewHandlers(directoryRepo, contactRepo, settingsRepo)
	authHandlers := admin.NewAuthHandlers(cfg, userRepo)
	userHandlers := admin.NewUserHandlers(userRepo)
	settingsHandlers := admin.NewSettingsHandlers(settingsRepo)

	// Single sign-on is optional: a discovery failure at startup logs an error
	// and leaves password login working instead of taking the service down.
	if cfg.Auth.OIDC.Enabled {
		provider, err := oidc.NewOIDCProvider(&cfg.Auth.OIDC)
		if err != nil {
			slog.Error("failed to initialize OIDC provider, SSO disabled",
				"error", err, "issuer", cfg.Auth.OIDC.IssuerURL)
		} else {
			authHandlers.SetOIDCProvider(provider)
			slog.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required, strictly rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authLimiter))
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.GET("/sso", authHandlers.SSOHandler())
			authGroup.GET("/sso/callback", authHandlers.SSOCallbackHandler())
			authGroup.GET("/logout", authHandlers.LogoutHandler())
		}

		// Everything else requires a valid token
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.AuthMiddleware(userRepo))
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalLimiter))
		{
			authenticatedGroup.GET("/auth/me", authHandlers.MeHandler())

			// Team directory listing and pins
			authenticatedGroup.GET("/team",
				middleware.RequireScope(auth.ScopeTeamRead),
				teamHandlers.ListHandler())
			authenticatedGroup.POST("/pin/:contactRef",
				middleware.RequireScope(auth.ScopeTeamRead),
				teamHandlers.PinHandler())
			authenticatedGroup.DELETE("/pin/:contactRef",
				middleware.RequireScope(auth.ScopeTeamRead),
				teamHandlers.UnpinHandler())

			// Contacts. Scope checks live in the handlers: a team contact
			// needs contacts:write, a personal one needs directories:write
			// plus ownership of its book.
			authenticatedGroup.POST("/contacts", contactHandlers.CreateHandler())
			authenticatedGroup.GET("/contacts/:id", contactHandlers.GetHandler())
			authenticatedGroup.PUT("/contacts/:id", contactHandlers.UpdateHandler())
			authenticatedGroup.DELETE("/contacts/:id", contactHandlers.DeleteHandler())
			authenticatedGroup.POST("/contacts/:id/avatar",
				middleware.RateLimitMiddleware(uploadLimiter),
				avatarHandlers.UploadContactAvatarHandler())

			// Own profile
			authenticatedGroup.POST("/profile/avatar",
				middleware.RateLimitMiddleware(uploadLimiter),
				avatarHandlers.UploadUserAvatarHandler())

			// Personal contact books
			directoriesGroup := authenticatedGroup.Group("/directories")
			{
				directoriesGroup.GET("",
					middleware.RequireScope(auth.ScopeDirectoriesRead),
					directoryHandlers.ListHandler())
				directoriesGroup.POST("",
					middleware.RequireScope(auth.ScopeDirectoriesWrite),
					directoryHandlers.CreateHandler())
				directoriesGroup.GET("/:id/contacts",
					middleware.RequireScope(auth.ScopeDirectoriesRead),
					directoryHandlers.ListContactsHandler())
				directoriesGroup.DELETE("/:id",
					middleware.RequireScope(auth.ScopeDirectoriesWrite),
					directoryHandlers.DeleteHandler())
			}

			// User account management
			usersGroup := authenticatedGroup.Group("/users")
			{
				usersGroup.GET("",
					middleware.RequireScope(auth.ScopeUsersRead),
					userHandlers.ListUsersHandler())
				usersGroup.GET("/:id",
					middleware.RequireScope(auth.ScopeUsersRead),
					userHandlers.GetUserHandler())
				usersGroup.POST("",
					middleware.RequireScope(auth.ScopeUsersWrite),
					userHandlers.CreateUserHandler())
				usersGroup.DELETE("/:id",
					middleware.RequireScope(auth.ScopeUsersWrite),
					userHandlers.DeleteUserHandler())
			}

			// Runtime settings administration
			settingsGroup := authenticatedGroup.Group("/admin/settings")
			settingsGroup.Use(middleware.RequireScope(auth.ScopeSettingsManage))
			{
				settingsGroup.GET("/:catalog", settingsHandlers.GetSettingsHandler())
				settingsGroup.PUT("/:catalog", settingsHandlers.UpdateSettingsHandler())
			}
		}
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /healthz [get]
// healthzHandler returns the health status of the service
func healthzHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and storage backend connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /readyz [get]
// readyzHandler returns the readiness status of the service.
// Unlike the liveness probe (/healthz), this also checks the storage backend
// so that a Kubernetes readiness gate fails when avatar traffic would error.
func readyzHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe the storage backend with a known-absent sentinel path.
		// Exists() exercises authentication and network connectivity without
		// creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
