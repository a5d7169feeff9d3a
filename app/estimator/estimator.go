// Package estimator turns meal descriptions and photos into nutrition estimates
// through an inference provider.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jdiaz1993/quickcalories/app/models"
)

// ErrNotConfigured is returned when the provider API key is missing.
var ErrNotConfigured = errors.New("estimator: provider not configured")

// Provider produces estimates. Implementations do not retry.
type Provider interface {
	Estimate(ctx context.Context, req models.EstimateRequest) (models.Estimate, error)
	EstimatePhoto(ctx context.Context, image []byte, mime string) (models.PhotoEstimate, error)
}

// UpstreamError is a failed call to the provider. Status is the provider's
// HTTP status, or 0 when the request never got a response.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("estimator: upstream %d: %s", e.Status, e.Message)
}

// HTTPStatus maps the provider status to the status returned to callers.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status == 0 || e.Status >= 500 {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}
