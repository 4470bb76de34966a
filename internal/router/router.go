package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-approval-api/internal/handler"
	"github.com/noah-isme/attendance-approval-api/internal/middleware"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	"github.com/noah-isme/attendance-approval-api/pkg/config"
	"github.com/noah-isme/attendance-approval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-approval-api/pkg/middleware/requestid"
)

const multipartMemory = 8 << 20

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Requests *handler.RequestHandler
	Metrics  *handler.MetricsHandler
}

// New builds the gin engine with global middleware and every route group.
func New(cfg *config.Config, logr *zap.Logger, tokens middleware.TokenValidator, observer middleware.HTTPObserver, h *Handlers) *gin.Engine {
	if logr == nil {
		logr = zap.NewNop()
	}
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = multipartMemory
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	staffOnly := middleware.RequireRoles(models.RoleCoordinator, models.RoleHOD)

	// Public auth endpoints.
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}
	authed := auth.Group("", middleware.JWT(tokens))
	{
		authed.POST("/logout", h.Auth.Logout)
		authed.POST("/change-password", h.Auth.ChangePassword)
		authed.GET("/me", h.Auth.Me)
	}

	// The signed token is the credential for downloads, so a bearer token is optional.
	api.GET("/requests/:id/attachment", middleware.OptionalJWT(tokens), h.Requests.Attachment)

	requests := api.Group("/requests", middleware.JWT(tokens))
	{
		requests.GET("", h.Requests.List)
		requests.GET("/queue", h.Requests.Queue)
		requests.GET("/export", h.Requests.Export)
		requests.POST("", middleware.RequireRoles(models.RoleStudent), h.Requests.Submit)
		requests.GET("/:id", h.Requests.Get)
		requests.POST("/:id/decision", staffOnly, h.Requests.Decide)
		requests.GET("/:id/attachment-url", h.Requests.AttachmentURL)
	}

	api.GET("/metrics/summary", middleware.JWT(tokens), staffOnly, h.Metrics.Summary)

	return r
}
