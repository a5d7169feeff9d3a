package estimator

import (
	"testing"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEstimateCoercesNumbers(t *testing.T) {
	got, err := ParseEstimate(`{"calories":"450.6","protein_g":30.4,"carbs_g":"12","fat_g":20.5,"confidence":"medium","notes":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, models.Estimate{
		Macros:     models.Macros{Calories: 451, ProteinG: 30, CarbsG: 12, FatG: 21},
		Confidence: models.ConfidenceMedium,
		Notes:      "ok",
	}, got)
}

func TestParseEstimateClampsNegatives(t *testing.T) {
	got, err := ParseEstimate(`{"calories":-10,"protein_g":"-0.4","carbs_g":0,"fat_g":1,"confidence":"low"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Calories)
	assert.Equal(t, 0, got.ProteinG)
	assert.Equal(t, "", got.Notes, "missing notes default to empty")
}

func TestParseEstimateAcceptsLargeFiniteValues(t *testing.T) {
	got, err := ParseEstimate(`{"calories":2500000,"protein_g":"1e6","carbs_g":0,"fat_g":0,"confidence":"low"}`)
	require.NoError(t, err)
	assert.Equal(t, 2500000, got.Calories)
	assert.Equal(t, 1000000, got.ProteinG)
}

func TestParseEstimateRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"not json", "Here is your estimate: 400 kcal", ErrNotJSON},
		{"trailing text", `{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"} thanks`, ErrNotJSON},
		{"empty", "", ErrNotJSON},
		{"array", `[1,2]`, ErrMissingFields},
		{"missing confidence", `{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1}`, ErrMissingFields},
		{"bad confidence", `{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"certain"}`, ErrMissingFields},
		{"uppercase confidence", `{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"HIGH"}`, ErrMissingFields},
		{"missing calories", `{"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"}`, ErrMissingFields},
		{"non numeric string", `{"calories":"lots","protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"}`, ErrMissingFields},
		{"bool macro", `{"calories":true,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"}`, ErrMissingFields},
		{"infinite", `{"calories":"Inf","protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"}`, ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEstimate(tt.content)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestParseEstimateNonStringNotes(t *testing.T) {
	got, err := ParseEstimate(`{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"high","notes":42}`)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Notes)
}

func TestParsePhotoEstimate(t *testing.T) {
	got, err := ParsePhotoEstimate(`{"meal":"  Caesar salad ","calories":350,"protein_g":"12.5","carbs_g":14,"fat_g":28,"confidence":"medium","notes":"dressing assumed"}`)
	require.NoError(t, err)
	assert.Equal(t, "Caesar salad", got.Meal)
	assert.Equal(t, 13, got.ProteinG)

	_, err = ParsePhotoEstimate(`{"meal":" ","calories":1,"protein_g":1,"carbs_g":1,"fat_g":1,"confidence":"low"}`)
	assert.ErrorIs(t, err, ErrMissingFields)
}
