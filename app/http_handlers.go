package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jdiaz1993/quickcalories/app/history"
	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/gin-gonic/gin"
)

// ListEstimates returns the caller's history newest first, optionally
// bounded by ?from= and ?to= (dates or RFC3339) and ?limit= (max 50).
func (s *Server) ListEstimates(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	f, err := s.historyFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := s.History.List(ctx, userID(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []models.EstimateRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// DailyEstimates groups the same page of history by local calendar day.
func (s *Server) DailyEstimates(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	f, err := s.historyFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := s.History.List(ctx, userID(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history.GroupByDay(records, s.loc)})
}

// DeleteEstimate removes one estimate owned by the caller.
func (s *Server) DeleteEstimate(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	if err := s.History.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteAllEstimates clears the caller's history.
func (s *Server) DeleteAllEstimates(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	n, err := s.History.DeleteAll(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": n})
}

func (s *Server) GetGoal(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	g, ok, err := s.History.GetGoal(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"goal": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": g})
}

func (s *Server) PutGoal(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	var g models.Goal
	if err := c.ShouldBindJSON(&g); err != nil {
		respondError(c, badRequest("Goal values must be non-negative whole numbers"))
		return
	}
	g.UserID = userID(c)
	saved, err := s.History.PutGoal(c.Request.Context(), g)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": saved})
}

// Summary compares one day's totals with the caller's goal. ?date= defaults
// to today in the service timezone.
func (s *Server) Summary(c *gin.Context) {
	if s.History == nil {
		respondError(c, errNoDatabase)
		return
	}
	day := time.Now().In(s.loc)
	if q := c.Query("date"); q != "" {
		d, err := parseDate(q, s.loc)
		if err != nil {
			respondError(c, badRequest("date must be YYYY-MM-DD"))
			return
		}
		day = d
	}
	from, to := history.DayBounds(day, s.loc)

	ctx := c.Request.Context()
	uid := userID(c)
	totals, count, err := s.History.DayTotals(ctx, uid, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	var goal *models.Goal
	if g, ok, err := s.History.GetGoal(ctx, uid); err != nil {
		respondError(c, err)
		return
	} else if ok {
		goal = &g
	}
	c.JSON(http.StatusOK, history.Summarize(from.Format(dateLayout), totals, count, goal))
}

func (s *Server) historyFilter(c *gin.Context) (history.Filter, error) {
	var f history.Filter
	var err error
	if f.From, err = parseBound(c.Query("from"), s.loc); err != nil {
		return f, badRequest("from must be YYYY-MM-DD or RFC3339")
	}
	if f.To, err = parseBound(c.Query("to"), s.loc); err != nil {
		return f, badRequest("to must be YYYY-MM-DD or RFC3339")
	}
	// a bare end date includes that whole day
	if q := c.Query("to"); q != "" && len(q) == len(dateLayout) {
		f.To = f.To.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return f, badRequest("to must be after from")
	}
	f.Limit = history.MaxList
	if q := c.Query("limit"); q != "" {
		if v, err := parsePositiveInt(q); err == nil && v < history.MaxList {
			f.Limit = v
		}
	}
	return f, nil
}
