package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/accessrequests"
	"github.com/mikepea/succession/pkg/succession/analytics"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/auth"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/importer"
	"github.com/mikepea/succession/pkg/succession/logging"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/notify"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/mikepea/succession/pkg/succession/plans"
	"github.com/mikepea/succession/pkg/succession/roles"
	"github.com/mikepea/succession/pkg/succession/search"
	"github.com/mikepea/succession/pkg/succession/users"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceName is reported by the health endpoints
const ServiceName = "succession"

// Deps are the long-lived components the router is built from
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Recorder audit.Recorder
	Mailer   notify.Mailer
}

// NewRouter assembles the HTTP API
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	mailer := d.Mailer
	if mailer == nil {
		mailer = notify.NewLogMailer(d.Logger)
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.Middleware(d.Logger), d.Metrics.Middleware(), CORS(cfg.AllowedOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	policy := permissions.NewPolicy(cfg.Access)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": ServiceName,
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(d.DB, auth.Options{
			Tokens:           tokens,
			Resets:           auth.NewResetService(d.DB, cfg.ResetTokenTTL),
			Policy:           policy,
			Recorder:         d.Recorder,
			Mailer:           mailer,
			Limiter:          auth.NewRateLimiter(cfg.AuthRateLimit.PerSecond, cfg.AuthRateLimit.Burst),
			Metrics:          d.Metrics,
			FrontendURL:      cfg.FrontendURL,
			ExposeResetToken: cfg.ExposeResetToken,
		})
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Everything else requires an active account
		protected := api.Group("", auth.Middleware(tokens, d.DB, policy))

		accessrequests.NewHandler(d.DB, accessrequests.NewService(d.DB), d.Recorder).RegisterRoutes(protected)
		users.NewHandler(d.DB, d.Recorder).RegisterRoutes(protected)
		roles.NewHandler(d.DB, d.Recorder).RegisterRoutes(protected)
		plans.NewHandler(d.DB, d.Recorder).RegisterRoutes(protected)
		analytics.NewHandler(d.DB).RegisterRoutes(protected)
		search.NewHandler(d.DB).RegisterRoutes(protected)
		importer.NewHandler(
			importer.New(d.DB, cfg.Import.DefaultEmailDomain, d.Metrics),
			d.Recorder,
			cfg.MaxUploadBytes,
		).RegisterRoutes(protected)
		audit.NewHandler(d.DB).RegisterRoutes(protected)
	}

	return r
}
