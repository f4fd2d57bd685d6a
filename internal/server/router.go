package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/justsurfingit/adaudit/internal/handlers"
	"github.com/justsurfingit/adaudit/internal/logging"
	"github.com/justsurfingit/adaudit/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services bundles what the routes need.
type Services struct {
	Auth            *services.AuthService
	Accounts        *services.AccountService
	Analysis        *services.AnalysisService
	Recommendations *services.RecommendationService
	Modifications   *services.ModificationService
	Ingest          *services.IngestService
	Export          *services.ExportService
}

// NewRouter wires middleware and every /api/v1 route.
func NewRouter(cfg *config.Config, db *gorm.DB, log *zap.Logger, svc *Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(log))
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	authHandler := handlers.NewAuthHandler(svc.Auth, strings.HasPrefix(cfg.Auth.Google.RedirectURL, "https://"))
	accountHandler := handlers.NewAccountHandler(svc.Accounts, svc.Analysis, svc.Export)
	recHandler := handlers.NewRecommendationHandler(svc.Recommendations)
	modHandler := handlers.NewModificationHandler(svc.Modifications, svc.Export)
	ingestHandler := handlers.NewIngestHandler(svc.Ingest)
	scriptHandler := handlers.NewScriptHandler(svc.Modifications)
	userHandler := handlers.NewUserHandler(svc.Auth)

	api := r.Group("/api/v1")
	{
		api.GET("/health", handlers.HealthCheck(db))

		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/google/url", authHandler.GoogleURL)
		api.POST("/auth/google/callback", authHandler.GoogleCallback)
	}

	// Dashboard routes, readable by every role
	session := api.Group("", handlers.RequireSession(svc.Auth))
	{
		session.POST("/auth/logout", authHandler.Logout)
		session.GET("/auth/me", authHandler.Me)

		session.GET("/accounts", accountHandler.List)
		session.GET("/accounts/:id", accountHandler.Get)
		session.GET("/accounts/:id/campaigns", accountHandler.Campaigns)
		session.GET("/accounts/:id/keywords", accountHandler.Keywords)
		session.GET("/accounts/:id/search-terms", accountHandler.SearchTerms)
		session.GET("/accounts/:id/recommendations.csv", accountHandler.RecommendationsCSV)

		session.GET("/recommendations", recHandler.List)

		session.GET("/modifications", modHandler.List)
		session.GET("/modifications.csv", modHandler.ExportCSV)
		session.GET("/modifications/:id", modHandler.Get)
	}

	reviewer := session.Group("", handlers.RequireRole(services.RoleReviewer))
	{
		reviewer.POST("/accounts/:id/analyze", accountHandler.Analyze)

		reviewer.POST("/recommendations/:id/dismiss", recHandler.Dismiss)
		reviewer.POST("/recommendations/:id/convert", recHandler.Convert)

		reviewer.POST("/modifications", modHandler.Create)
		reviewer.POST("/modifications/bulk-review", modHandler.BulkReview)
		reviewer.POST("/modifications/:id/approve", modHandler.Approve)
		reviewer.POST("/modifications/:id/reject", modHandler.Reject)
		reviewer.POST("/modifications/:id/retry", modHandler.Retry)
	}

	admin := session.Group("", handlers.RequireRole())
	{
		admin.POST("/users", userHandler.Create)
	}

	// Google Ads script routes
	scripts := api.Group("", handlers.RequireAPIKey(cfg.Auth.ScriptsAPIKey))
	{
		scripts.POST("/ingest/runs", ingestHandler.StartRun)
		scripts.GET("/ingest/runs/:id", ingestHandler.GetRun)
		scripts.POST("/ingest/runs/:id/chunks", ingestHandler.AppendChunk)
		scripts.POST("/ingest/runs/:id/complete", ingestHandler.Complete)

		scripts.GET("/scripts/modifications", scriptHandler.Pending)
		scripts.POST("/scripts/modifications/results", scriptHandler.Results)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Api-Key"}
	cfg.ExposeHeaders = []string{"Content-Disposition"}
	return cfg
}
