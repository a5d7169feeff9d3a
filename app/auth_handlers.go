package app

import (
	"net/http"

	"github.com/jdiaz1993/quickcalories/app/models"
	"github.com/jdiaz1993/quickcalories/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the authenticated user's profile and plan.
func (s *Server) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	ctx := c.Request.Context()

	resp := gin.H{
		"user_id":      claims.Subject,
		"email":        claims.Email,
		"plan":         models.PlanFree,
		"isPro":        false,
		"subscription": nil,
		"dailyLimit":   s.cfg.Usage.FreeDailyLimit,
	}

	if s.Profiles != nil {
		p, found, err := s.Profiles.GetProfile(ctx, claims.Subject)
		if err != nil {
			respondError(c, err)
			return
		}
		if found && p.Email != "" {
			resp["email"] = p.Email
		}
	}

	if s.Entitlements != nil {
		sub, found, err := s.Entitlements.Status(ctx, claims.Subject)
		if err != nil {
			respondError(c, err)
			return
		}
		if found {
			resp["plan"] = sub.Plan()
			resp["subscription"] = subscriptionView(sub)
			if sub.Status.Entitled() {
				resp["isPro"] = true
				resp["dailyLimit"] = nil
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
