// Package barcode looks up packaged food nutrition on Open Food Facts.
package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrInvalidCode = errors.New("barcode: code must be 8-14 digits")
	ErrNotFound    = errors.New("barcode: product not found")
	ErrUpstream    = errors.New("barcode: lookup failed")
)

var (
	codePattern = regexp.MustCompile(`^\d{8,14}$`)
	nonDigits   = regexp.MustCompile(`\D`)
)

// ValidCode reports whether code is 8 to 14 ASCII digits.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// NormalizeCode strips every non-digit, for codes typed with spaces or dashes.
func NormalizeCode(raw string) string {
	return nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")
}

type Client struct {
	baseURL string
	httpc   *http.Client
	cache   *expirable.LRU[string, models.BarcodeResult]
}

func NewClient(baseURL string, timeout, cacheTTL time.Duration, cacheSize int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		cache:   expirable.NewLRU[string, models.BarcodeResult](cacheSize, nil, cacheTTL),
	}
}

// Lookup fetches code from Open Food Facts and builds an estimate from the
// product's nutriments. Found products are cached.
func (c *Client) Lookup(ctx context.Context, code string) (models.BarcodeResult, error) {
	if !ValidCode(code) {
		return models.BarcodeResult{}, ErrInvalidCode
	}
	if res, ok := c.cache.Get(code); ok {
		return res, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v0/product/"+code+".json", nil)
	if err != nil {
		return models.BarcodeResult{}, err
	}
	req.Header.Set("User-Agent", "QuickCalories/1.0")

	res, err := c.httpc.Do(req)
	if err != nil {
		return models.BarcodeResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return models.BarcodeResult{}, fmt.Errorf("%w: http %d", ErrUpstream, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return models.BarcodeResult{}, ErrNotFound
	}

	var payload models.OFFResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return models.BarcodeResult{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if payload.Status != 1 || payload.Product == nil {
		return models.BarcodeResult{}, ErrNotFound
	}

	result := FromProduct(*payload.Product)
	c.cache.Add(code, result)
	return result, nil
}

// FromProduct prefers per-serving values and falls back to per-100g.
// Confidence is high for complete serving data, medium for complete 100g
// data and low otherwise; notes name the basis and any missing macro.
func FromProduct(p models.OFFProduct) models.BarcodeResult {
	serving := macrosFor(p.Nutriments, "_serving")
	per100 := macrosFor(p.Nutriments, "_100g")
	hasServing := anyPositive(serving)
	has100 := anyPositive(per100)

	chosen := per100
	if hasServing {
		chosen = serving
	}
	m := models.Macros{
		Calories: round(chosen[0]),
		ProteinG: round(chosen[1]),
		CarbsG:   round(chosen[2]),
		FatG:     round(chosen[3]),
	}

	var missing []string
	if m.Calories == 0 {
		missing = append(missing, "calories")
	}
	if m.ProteinG == 0 {
		missing = append(missing, "protein")
	}
	if m.CarbsG == 0 {
		missing = append(missing, "carbs")
	}
	if m.FatG == 0 {
		missing = append(missing, "fat")
	}

	confidence := models.ConfidenceLow
	switch {
	case hasServing && len(missing) == 0:
		confidence = models.ConfidenceHigh
	case !hasServing && has100 && len(missing) == 0:
		confidence = models.ConfidenceMedium
	}

	notes := "Source: Open Food Facts."
	switch {
	case hasServing:
		notes = "Values per serving. Source: Open Food Facts."
	case has100:
		notes = "Values per 100g. Source: Open Food Facts."
	}
	if len(missing) > 0 {
		notes += " Missing: " + strings.Join(missing, ", ") + "."
	}

	return models.BarcodeResult{
		Meal: mealName(p),
		Estimate: models.Estimate{
			Macros:     m,
			Confidence: confidence,
			Notes:      notes,
		},
	}
}

func mealName(p models.OFFProduct) string {
	name := strings.TrimSpace(p.ProductNameEN)
	if name == "" {
		name = strings.TrimSpace(p.ProductName)
	}
	if name == "" {
		name = "Product"
	}
	if brand := strings.TrimSpace(p.Brands); brand != "" {
		return strings.TrimSpace(brand + " " + name)
	}
	return name
}

// macrosFor returns calories, protein, carbs, fat for the given suffix.
func macrosFor(n map[string]any, suffix string) [4]float64 {
	return [4]float64{
		num(n["energy-kcal"+suffix]),
		num(n["proteins"+suffix]),
		num(n["carbohydrates"+suffix]),
		num(n["fat"+suffix]),
	}
}

func anyPositive(v [4]float64) bool {
	for _, x := range v {
		if x > 0 {
			return true
		}
	}
	return false
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

func round(f float64) int {
	return int(math.Round(f))
}
