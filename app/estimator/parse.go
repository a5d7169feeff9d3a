package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jdiaz1993/quickcalories/app/models"
)

var (
	// ErrInvalidResponse is the parent of every provider payload failure.
	ErrInvalidResponse = errors.New("estimator: invalid provider response")
	// ErrNoContent means the provider returned no message content.
	ErrNoContent = fmt.Errorf("%w: no content", ErrInvalidResponse)
	// ErrNotJSON means the message content is not a JSON object.
	ErrNotJSON = fmt.Errorf("%w: content is not valid JSON", ErrInvalidResponse)
	// ErrMissingFields means the JSON object fails the estimate schema.
	ErrMissingFields = fmt.Errorf("%w: missing required estimate fields", ErrInvalidResponse)
)

// ParseEstimate validates provider output into an Estimate. Numeric fields may
// be numbers or numeric strings; they are clamped at zero and rounded.
func ParseEstimate(content string) (models.Estimate, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return models.Estimate{}, err
	}
	return estimateFromObject(obj)
}

// ParsePhotoEstimate is ParseEstimate plus a required non-empty meal name.
func ParsePhotoEstimate(content string) (models.PhotoEstimate, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return models.PhotoEstimate{}, err
	}
	meal := strings.TrimSpace(stringify(obj["meal"]))
	if meal == "" {
		return models.PhotoEstimate{}, fmt.Errorf("%w: meal", ErrMissingFields)
	}
	est, err := estimateFromObject(obj)
	if err != nil {
		return models.PhotoEstimate{}, err
	}
	return models.PhotoEstimate{Meal: meal, Estimate: est}, nil
}

func decodeObject(content string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, ErrNotJSON
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrNotJSON
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not an object", ErrMissingFields)
	}
	return obj, nil
}

func estimateFromObject(obj map[string]any) (models.Estimate, error) {
	conf, _ := obj["confidence"].(string)
	confidence := models.Confidence(conf)
	if !confidence.Valid() {
		return models.Estimate{}, fmt.Errorf("%w: confidence %q", ErrMissingFields, conf)
	}

	var est models.Estimate
	fields := []struct {
		key string
		dst *int
	}{
		{"calories", &est.Calories},
		{"protein_g", &est.ProteinG},
		{"carbs_g", &est.CarbsG},
		{"fat_g", &est.FatG},
	}
	for _, f := range fields {
		n, ok := number(obj[f.key])
		if !ok {
			return models.Estimate{}, fmt.Errorf("%w: %s", ErrMissingFields, f.key)
		}
		*f.dst = n
	}
	est.Confidence = confidence
	est.Notes = stringify(obj["notes"])
	return est, nil
}

// number accepts a JSON number or numeric string and returns it rounded and
// clamped at zero. NaN and infinities are rejected.
func number(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// saturate so the int conversion stays defined
	return int(math.Round(math.Min(math.Max(0, f), math.MaxInt32))), true
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
