package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jdiaz1993/quickcalories/app/estimator"
	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	maxJSONBody   = int64(65536)
	maxImageBytes = int64(5 << 20)

	msgInvalidJSON   = "Invalid JSON body"
	msgMissingMeal   = "Body must include a non-empty string 'meal'"
	msgNotSavedToLog = "Estimate was not saved to history"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Estimate handles POST /api/estimate. Input is validated before the gate so
// a bad request never costs a free unit, and the provider is only called once
// the gate allows it.
func (s *Server) Estimate(c *gin.Context) {
	var body any
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxJSONBody)).Decode(&body); err != nil {
		s.Metrics.estimate(models.SourceText, "invalid")
		respondError(c, badRequest(msgInvalidJSON))
		return
	}
	req, ok := parseEstimateBody(body)
	if !ok {
		s.Metrics.estimate(models.SourceText, "invalid")
		respondError(c, badRequest(msgMissingMeal))
		return
	}
	if s.Estimator == nil {
		respondError(c, estimator.ErrNotConfigured)
		return
	}
	if !s.authorize(c, models.SourceText) {
		return
	}

	ctx := c.Request.Context()
	est, err := s.Estimator.Estimate(ctx, req)
	if err != nil {
		s.estimateFailed(c, models.SourceText, err)
		return
	}
	s.Metrics.estimate(models.SourceText, "ok")

	rec := models.EstimateRecord{
		UserID:     userID(c),
		Meal:       req.Meal,
		Portion:    req.Portion,
		Calories:   est.Calories,
		ProteinG:   est.ProteinG,
		CarbsG:     est.CarbsG,
		FatG:       est.FatG,
		Confidence: est.Confidence,
		Notes:      est.Notes,
		Source:     models.SourceText,
	}
	if req.Details != "" {
		details := req.Details
		rec.Details = &details
	}
	outcome := s.persistBestEffort(ctx, rec)

	c.JSON(http.StatusOK, outcome.response(est))
}

// ScanPhoto handles POST /api/scan-photo with a multipart "image" field.
func (s *Server) ScanPhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes+(1<<20))

	fh, err := c.FormFile("image")
	if err != nil {
		s.Metrics.estimate(models.SourcePhoto, "invalid")
		respondError(c, badRequest("Missing or invalid 'image' file"))
		return
	}
	if fh.Size > maxImageBytes {
		s.Metrics.estimate(models.SourcePhoto, "invalid")
		respondError(c, badRequest("Image must be 5MB or smaller"))
		return
	}
	mime := strings.ToLower(strings.TrimSpace(fh.Header.Get("Content-Type")))
	if !allowedImage(mime) {
		s.Metrics.estimate(models.SourcePhoto, "invalid")
		respondError(c, badRequest("File must be an image (JPEG, PNG, WebP, or GIF)"))
		return
	}
	image, err := readUpload(fh)
	if err != nil {
		respondError(c, badRequest("Missing or invalid 'image' file"))
		return
	}
	if s.Estimator == nil {
		respondError(c, estimator.ErrNotConfigured)
		return
	}
	if !s.authorize(c, models.SourcePhoto) {
		return
	}

	ctx := c.Request.Context()
	est, err := s.Estimator.EstimatePhoto(ctx, image, mime)
	if err != nil {
		s.estimateFailed(c, models.SourcePhoto, err)
		return
	}
	s.Metrics.estimate(models.SourcePhoto, "ok")

	outcome := s.persistBestEffort(ctx, models.EstimateRecord{
		UserID:     userID(c),
		Meal:       est.Meal,
		Portion:    models.PortionMedium,
		Calories:   est.Calories,
		ProteinG:   est.ProteinG,
		CarbsG:     est.CarbsG,
		FatG:       est.FatG,
		Confidence: est.Confidence,
		Notes:      est.Notes,
		Source:     models.SourcePhoto,
	})

	c.JSON(http.StatusOK, outcome.response(est))
}

// authorize runs the gate and writes the 429 or 500 response itself when the
// request may not proceed.
func (s *Server) authorize(c *gin.Context, source string) bool {
	if s.Gate == nil {
		respondError(c, errors.New("estimate gate not configured"))
		return false
	}
	d, err := s.Gate.Authorize(c.Request.Context(), userID(c), s.deviceID(c))
	if err != nil {
		s.Metrics.estimate(source, "error")
		respondError(c, err)
		return false
	}
	switch {
	case d.IsPro:
		s.Metrics.gateDecision("pro")
	case d.Allowed:
		s.Metrics.gateDecision("free")
	default:
		s.Metrics.gateDecision("denied")
		s.Metrics.estimate(source, "denied")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": d.Reason})
		return false
	}
	return true
}

func (s *Server) estimateFailed(c *gin.Context, source string, err error) {
	outcome := "error"
	var up *estimator.UpstreamError
	switch {
	case errors.As(err, &up), errors.Is(err, context.DeadlineExceeded):
		outcome = "upstream"
		s.Metrics.upstream("openai")
	case errors.Is(err, estimator.ErrInvalidResponse):
		outcome = "invalid_response"
	}
	s.Metrics.estimate(source, outcome)
	respondError(c, err)
}

// persistOutcome is the result of a best-effort history write.
type persistOutcome struct {
	Attempted bool
	Saved     *models.EstimateRecord
	Err       error
}

func (o persistOutcome) response(result any) gin.H {
	resp := gin.H{"result": result}
	if o.Saved != nil {
		resp["id"] = o.Saved.ID
	}
	if o.Err != nil {
		resp["warning"] = msgNotSavedToLog
	}
	return resp
}

// persistBestEffort saves rec for authenticated callers. It never fails the
// request; the outcome tells the caller whether to add a warning.
func (s *Server) persistBestEffort(ctx context.Context, rec models.EstimateRecord) persistOutcome {
	if rec.UserID == "" || s.History == nil {
		return persistOutcome{}
	}
	saved, err := s.History.Insert(ctx, rec)
	if err != nil {
		s.Metrics.persistFailed()
		log.WithFields(log.Fields{
			"user_id": rec.UserID,
			"source":  rec.Source,
			"err":     err,
		}).Warn("estimate returned but not saved")
		return persistOutcome{Attempted: true, Err: err}
	}
	return persistOutcome{Attempted: true, Saved: &saved}
}

// parseEstimateBody accepts a JSON object with a non-blank string meal.
// portion and details are optional and only honoured when they are strings.
func parseEstimateBody(body any) (models.EstimateRequest, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return models.EstimateRequest{}, false
	}
	meal, ok := obj["meal"].(string)
	if !ok {
		return models.EstimateRequest{}, false
	}
	portion, _ := obj["portion"].(string)
	details, _ := obj["details"].(string)
	return models.NewEstimateRequest(meal, portion, details)
}

func allowedImage(mime string) bool {
	for _, t := range allowedImageTypes {
		if strings.HasPrefix(mime, t) {
			return true
		}
	}
	return false
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxImageBytes {
		return nil, errors.New("image too large")
	}
	return data, nil
}
