package app

import (
	"net/http"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetUsage reports the free-tier bucket for the X-Device-Id header without
// consuming from it. Pro callers get a null remaining count.
func (s *Server) GetUsage(c *gin.Context) {
	if s.Usage == nil {
		respondError(c, errNoUsage)
		return
	}
	ctx := c.Request.Context()
	limit := s.cfg.Usage.FreeDailyLimit

	isPro := false
	if uid := userID(c); uid != "" && s.Entitlements != nil {
		pro, err := s.Entitlements.IsPro(ctx, uid)
		if err != nil {
			log.WithFields(log.Fields{"user_id": uid, "err": err}).Warn("entitlement lookup failed, reporting free usage")
		}
		isPro = pro
	}

	used, err := s.Usage.Used(ctx, s.deviceID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	status := models.UsageStatus{Limit: limit, Used: used, IsPro: isPro}
	if !isPro {
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
	}
	c.JSON(http.StatusOK, status)
}
