// Package models defines the estimate, history and billing shapes shared across packages.
package models

import (
	"strings"
	"time"
)

type Portion string

const (
	PortionSmall  Portion = "small"
	PortionMedium Portion = "medium"
	PortionLarge  Portion = "large"
)

// ParsePortion returns the matching portion, or medium for anything else.
func ParsePortion(s string) Portion {
	switch p := Portion(s); p {
	case PortionSmall, PortionMedium, PortionLarge:
		return p
	}
	return PortionMedium
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Macros are whole-number nutrition values.
type Macros struct {
	Calories int `json:"calories"`
	ProteinG int `json:"protein_g"`
	CarbsG   int `json:"carbs_g"`
	FatG     int `json:"fat_g"`
}

func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		ProteinG: m.ProteinG + o.ProteinG,
		CarbsG:   m.CarbsG + o.CarbsG,
		FatG:     m.FatG + o.FatG,
	}
}

// Estimate is the validated result of one inference call.
type Estimate struct {
	Macros
	Confidence Confidence `json:"confidence"`
	Notes      string     `json:"notes"`
}

// EstimateRequest is a validated text estimate request.
type EstimateRequest struct {
	Meal    string
	Portion Portion
	Details string
}

// NewEstimateRequest trims inputs; ok is false when meal is blank.
func NewEstimateRequest(meal, portion, details string) (EstimateRequest, bool) {
	meal = strings.TrimSpace(meal)
	if meal == "" {
		return EstimateRequest{}, false
	}
	return EstimateRequest{
		Meal:    meal,
		Portion: ParsePortion(portion),
		Details: strings.TrimSpace(details),
	}, true
}

// PhotoEstimate is an estimate derived from an image, including the recognised meal.
type PhotoEstimate struct {
	Meal string `json:"meal"`
	Estimate
}

// BarcodeResult is an estimate built from Open Food Facts product data.
type BarcodeResult struct {
	Meal string `json:"meal"`
	Estimate
}

// EstimateRecord is a persisted estimate owned by a user.
type EstimateRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"-"`
	Meal       string     `json:"meal"`
	Portion    Portion    `json:"portion"`
	Details    *string    `json:"details"`
	Calories   int        `json:"calories"`
	ProteinG   int        `json:"protein_g"`
	CarbsG     int        `json:"carbs_g"`
	FatG       int        `json:"fat_g"`
	Confidence Confidence `json:"confidence,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r EstimateRecord) Macros() Macros {
	return Macros{Calories: r.Calories, ProteinG: r.ProteinG, CarbsG: r.CarbsG, FatG: r.FatG}
}

// Sources of a persisted estimate.
const (
	SourceText    = "text"
	SourcePhoto   = "photo"
	SourceBarcode = "barcode"
)
