package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/internal/cache"
	"github.com/gridwatch/healthindexer/internal/handlers"
	"github.com/gridwatch/healthindexer/internal/middleware"
	"github.com/gridwatch/healthindexer/internal/services"
)

// Dependencies collects everything the router needs. Construction fails fast
// on missing required services.
type Dependencies struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Policy   *iauth.Policy
	Accounts *services.AccountService
	Users    *services.UserService
	Analyses *services.AnalysisService

	RateStore cache.Store

	AllowedOrigins []string
	SecureCookie   bool
	RateLimit      int
	RateWindow     time.Duration
	EnableMetrics  bool
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("authorization policy must be provided")
	}
	if deps.Accounts == nil || deps.Users == nil || deps.Analyses == nil {
		return nil, fmt.Errorf("account, user and analysis services must be provided")
	}

	rateLimit := deps.RateLimit
	if rateLimit == 0 {
		rateLimit = 100
	}
	rateWindow := deps.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.AllowedOrigins))
	r.Use(middleware.RateLimit(deps.RateStore, rateLimit, rateWindow))

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	if deps.EnableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.JWT, deps.SecureCookie)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Analyses)
	analysisHandler := handlers.NewAnalysisHandler(deps.Analyses)

	// Public auth routes. Logout only clears the cookie, so it needs no
	// session; identity degrades to guest rather than rejecting.
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.GET("/identity", authHandler.Identity)
	}

	requireAuth := middleware.Auth(deps.JWT)

	// Authenticated routes
	analysis := r.Group("/api/analysis")
	analysis.Use(requireAuth)
	{
		analysis.POST("", analysisHandler.Submit)
		analysis.GET("/history", analysisHandler.History)
	}

	// Admin routes
	admin := r.Group("/api/admin")
	admin.Use(requireAuth, middleware.RequireAdmin(deps.Policy))
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.PUT("/users/:id/role", adminHandler.UpdateRole)
		admin.GET("/history", adminHandler.History)
	}

	return r, nil
}
