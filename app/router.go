package app

import (
	"time"

	"github.com/jdiaz1993/quickcalories/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	if s.Metrics != nil {
		router.Use(s.Metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.Origins(),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Device-Id", "Stripe-Signature"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	if s.Metrics != nil && s.cfg.Metrics.Enabled {
		router.GET("/metrics", s.Metrics.Handler())
	}

	hook := auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return s.UpsertUserFromClaims(c.Request.Context(), claims)
		},
	}

	api := router.Group("/api")
	api.POST("/stripe/webhook", s.StripeWebhook)
	api.GET("/pro-status", s.ProStatusPing)
	api.POST("/verify-session", s.VerifySession)
	api.GET("/barcode", s.GetBarcode)

	// identity is optional: anonymous callers are limited per device and
	// authenticated callers also get history
	open := api.Group("/")
	open.Use(auth.Optional(s.Verifier, hook))
	open.POST("/estimate", s.Estimate)
	open.POST("/scan-photo", s.ScanPhoto)
	open.POST("/barcode", s.PostBarcode)
	open.GET("/usage", s.GetUsage)
	open.POST("/portal", s.CreatePortalSession)

	protected := api.Group("/")
	protected.Use(auth.Middleware(s.Verifier, hook))
	protected.GET("/me", s.Me)
	protected.POST("/checkout", s.CreateCheckoutSession)
	protected.GET("/estimates", s.ListEstimates)
	protected.DELETE("/estimates", s.DeleteAllEstimates)
	protected.GET("/estimates/daily", s.DailyEstimates)
	protected.DELETE("/estimates/:id", s.DeleteEstimate)
	protected.GET("/goals", s.GetGoal)
	protected.PUT("/goals", s.PutGoal)
	protected.GET("/summary", s.Summary)

	bearer := api.Group("/")
	bearer.Use(auth.Middleware(s.Verifier, auth.MiddlewareConfig{
		OnAuthenticated:     hook.OnAuthenticated,
		UnauthorizedMessage: "Not authenticated",
	}))
	bearer.POST("/pro-status", s.ProStatus)

	return router
}

// requestLogger logs one line per request at debug level, and failures at warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"user_id": auth.UserID(c.Request.Context()),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("request completed")
			return
		}
		entry.Debug("request completed")
	}
}
