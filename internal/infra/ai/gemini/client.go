package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

const DefaultModel = "gemini-2.5-flash"

// generator is the slice of genai.Models the client needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error)
}

type sdkGenerator struct {
	client *genai.Client
}

func (g sdkGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini API error (HTTP %d): %s", apiErr.Code, apiErr.Message)
		}
		return "", err
	}
	return result.Text(), nil
}

// Client implements analysis.Inference on the Gemini API.
type Client struct {
	gen         generator
	Model       string
	Temperature float32
	MaxTokens   int
}

var _ analysis.Inference = (*Client)(nil)

func NewClient(ctx context.Context, apiKey, model string, temperature float32, maxTokens int) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{gen: sdkGenerator{client: client}, Model: model, Temperature: temperature, MaxTokens: maxTokens}, nil
}

func (c *Client) Analyze(ctx context.Context, in analysis.InferenceRequest) (string, error) {
	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	temp := c.Temperature
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.GetSystemPrompt()}},
		},
	}
	if c.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.MaxTokens)
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt.GetUserPrompt(in)}},
	}}

	text, err := c.gen.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}
