package estimator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/sashabaranov/go-openai"
)

const estimateSchema = `{
  "calories": number,
  "protein_g": number,
  "carbs_g": number,
  "fat_g": number,
  "confidence": "low" | "medium" | "high",
  "notes": string
}`

const photoSchema = `JSON object with: "meal" (string, short description of the food), "calories" (number), ` +
	`"protein_g" (number), "carbs_g" (number), "fat_g" (number), "confidence" ("low"|"medium"|"high"), ` +
	`"notes" (string, brief caveats).`

var textSystemPrompt = "You are a nutrition assistant. Estimate macros for the given meal. " +
	"Respond with a single JSON object only, no markdown or extra text. Schema: " + estimateSchema + ". " +
	`Use confidence "low" for vague descriptions, "medium" for somewhat specific, "high" for very specific. ` +
	"Notes: brief caveats or assumptions. " +
	"Portion size: when the user specifies portion (small/medium/large), scale your estimates accordingly: " +
	`treat "medium" as a typical serving, "small" as roughly 0.6-0.75x that, "large" as roughly 1.3-1.5x. ` +
	"Details: when additional details are provided (e.g. sauces, extra cheese, cooking method), incorporate them into the estimate. " +
	"Return the final scaled values for calories, protein_g, carbs_g, and fat_g."

var photoSystemPrompt = "You are a nutrition assistant. Look at the image of food and estimate what the meal is and its nutrition. " +
	"Respond with a single JSON object only, no markdown or extra text. Schema: " + photoSchema + " " +
	`Use confidence "low" for unclear or partial images, "medium" for recognizable portions, "high" for clear and identifiable meals. ` +
	"Notes: brief caveats (e.g. portion assumed, items not fully visible)."

const (
	temperature     = 0.3
	photoMaxTokens  = 500
	photoUserPrompt = "Estimate the meal and nutrition for this image. Return JSON only."
)

// OpenAI is a Provider backed by the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), model: model}, nil
}

// UserPrompt renders the user message for a text request.
func UserPrompt(req models.EstimateRequest) string {
	if req.Details != "" {
		return fmt.Sprintf("Estimate nutrition for this meal. Portion size: %s. Details: %s. Meal: %s",
			req.Portion, req.Details, req.Meal)
	}
	return fmt.Sprintf("Estimate nutrition for this meal. Portion size: %s. Meal: %s", req.Portion, req.Meal)
}

func (o *OpenAI) Estimate(ctx context.Context, req models.EstimateRequest) (models.Estimate, error) {
	content, err := o.complete(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: textSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    temperature,
	})
	if err != nil {
		return models.Estimate{}, err
	}
	return ParseEstimate(content)
}

func (o *OpenAI) EstimatePhoto(ctx context.Context, image []byte, mime string) (models.PhotoEstimate, error) {
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	content, err := o.complete(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: photoSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: photoUserPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    temperature,
		MaxTokens:      photoMaxTokens,
	})
	if err != nil {
		return models.PhotoEstimate{}, err
	}
	return ParsePhotoEstimate(content)
}

func (o *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoContent
	}
	return resp.Choices[0].Message.Content, nil
}

func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("OpenAI API error: %d", apiErr.HTTPStatusCode)
		}
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: msg}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Status: reqErr.HTTPStatusCode, Message: fmt.Sprintf("OpenAI API error: %d", reqErr.HTTPStatusCode)}
	}
	return &UpstreamError{Message: err.Error()}
}
