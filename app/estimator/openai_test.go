package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, status int, body string, seen *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newTestProvider(t *testing.T, srv *httptest.Server) *OpenAI {
	t.Helper()
	p, err := NewOpenAI(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return p
}

func TestOpenAIEstimate(t *testing.T) {
	var seen capturedRequest
	srv := chatServer(t, http.StatusOK,
		completion(`{"calories":"620","protein_g":35,"carbs_g":70.2,"fat_g":18,"confidence":"high","notes":"large bowl"}`), &seen)
	p := newTestProvider(t, srv)

	req, ok := models.NewEstimateRequest("chicken burrito bowl", "large", "extra guac")
	require.True(t, ok)
	est, err := p.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 620, est.Calories)
	assert.Equal(t, 70, est.CarbsG)

	assert.Equal(t, "gpt-4o-mini", seen.Model)
	assert.InDelta(t, 0.3, seen.Temperature, 1e-6)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	var user string
	require.NoError(t, json.Unmarshal(seen.Messages[1].Content, &user))
	assert.Equal(t, "Estimate nutrition for this meal. Portion size: large. Details: extra guac. Meal: chicken burrito bowl", user)
}

func TestOpenAIEstimatePhoto(t *testing.T) {
	var seen capturedRequest
	srv := chatServer(t, http.StatusOK,
		completion(`{"meal":"Pancakes","calories":500,"protein_g":9,"carbs_g":80,"fat_g":15,"confidence":"medium","notes":""}`), &seen)
	p := newTestProvider(t, srv)

	est, err := p.EstimatePhoto(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Pancakes", est.Meal)
	assert.Equal(t, 500, seen.MaxTokens)
	assert.True(t, strings.Contains(string(seen.Messages[1].Content), "data:image/jpeg;base64,/9j/"))
}

func TestOpenAIUpstreamErrors(t *testing.T) {
	t.Run("server error maps to 502", func(t *testing.T) {
		srv := chatServer(t, http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`, nil)
		_, err := newTestProvider(t, srv).Estimate(context.Background(), models.EstimateRequest{Meal: "toast", Portion: models.PortionMedium})

		var up *UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, "overloaded", up.Message)
		assert.Equal(t, http.StatusBadGateway, up.HTTPStatus())
	})
	t.Run("client error maps to 400", func(t *testing.T) {
		srv := chatServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, nil)
		_, err := newTestProvider(t, srv).Estimate(context.Background(), models.EstimateRequest{Meal: "toast", Portion: models.PortionMedium})

		var up *UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, http.StatusBadRequest, up.HTTPStatus())
		assert.Equal(t, "Incorrect API key provided", up.Message)
	})
	t.Run("invalid content", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, completion(`{"calories":100}`), nil)
		_, err := newTestProvider(t, srv).Estimate(context.Background(), models.EstimateRequest{Meal: "toast", Portion: models.PortionMedium})
		assert.ErrorIs(t, err, ErrMissingFields)
	})
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(config.OpenAIConfig{APIKey: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
