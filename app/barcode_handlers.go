package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jdiaz1993/quickcalories/app/barcode"
	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/gin-gonic/gin"
)

// GetBarcode handles GET /api/barcode?code=. The code must already be 8-14 digits.
func (s *Server) GetBarcode(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	if !barcode.ValidCode(code) {
		respondError(c, barcode.ErrInvalidCode)
		return
	}
	s.lookupBarcode(c, code, false)
}

// PostBarcode handles POST /api/barcode {"code": ..., "save": bool}. Non-digits
// are stripped from the code first. Authenticated callers may ask for the
// result to be saved to their history.
func (s *Server) PostBarcode(c *gin.Context) {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(c.Request.Body, maxJSONBody))
	dec.UseNumber() // numeric codes keep their digits
	if err := dec.Decode(&body); err != nil {
		respondError(c, badRequest(msgInvalidJSON))
		return
	}
	var raw string
	switch v := body["code"].(type) {
	case string:
		raw = v
	case nil:
	default:
		raw = fmt.Sprint(v)
	}
	code := barcode.NormalizeCode(raw)
	if !barcode.ValidCode(code) {
		respondError(c, barcode.ErrInvalidCode)
		return
	}
	save, _ := body["save"].(bool)
	s.lookupBarcode(c, code, save)
}

func (s *Server) lookupBarcode(c *gin.Context, code string, save bool) {
	if s.Barcode == nil {
		respondError(c, errors.New("barcode lookup not configured"))
		return
	}
	ctx := c.Request.Context()
	res, err := s.Barcode.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, barcode.ErrUpstream) {
			s.Metrics.upstream("openfoodfacts")
			s.Metrics.estimate(models.SourceBarcode, "upstream")
		} else {
			s.Metrics.estimate(models.SourceBarcode, "not_found")
		}
		respondError(c, err)
		return
	}
	s.Metrics.estimate(models.SourceBarcode, "ok")

	if !save {
		c.JSON(http.StatusOK, gin.H{"result": res})
		return
	}
	outcome := s.persistBestEffort(ctx, models.EstimateRecord{
		UserID:     userID(c),
		Meal:       res.Meal,
		Portion:    models.PortionMedium,
		Calories:   res.Calories,
		ProteinG:   res.ProteinG,
		CarbsG:     res.CarbsG,
		FatG:       res.FatG,
		Confidence: res.Confidence,
		Notes:      res.Notes,
		Source:     models.SourceBarcode,
	})
	c.JSON(http.StatusOK, outcome.response(res))
}
