package guidance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/config"
)

// OpenAI implements Generator against the OpenAI Chat Completions
// API. The wire types map directly to the API JSON and work with any
// server implementing the same format.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAI creates the generator.
func NewOpenAI(cfg config.OpenAIConfig) *OpenAI {
	return &OpenAI{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// --- Chat Completions wire types ---

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GenerateGuidance asks for a numbered 5-8 step troubleshooting guide.
func (g *OpenAI) GenerateGuidance(ctx context.Context, issueType, description string) (string, error) {
	prompt := fmt.Sprintf(
		"You are an IT support engineer for an educational institution. Using the "+
			"information below, write a detailed troubleshooting guide of 5-8 steps to "+
			"resolve the user's problem. Number each step 1., 2. and keep the language plain.\n\n"+
			"Issue category: %s\nUser description: %s\n",
		issueType, description)

	request := openaiRequest{
		Model: g.model,
		Messages: []openaiMessage{
			{Role: "system", Content: "You are a helpful IT support assistant."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("guidance/openai: encoding request: %w", err)
	}

	url := g.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("guidance/openai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("guidance/openai: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("guidance/openai: reading response: %w", err)
	}

	var response openaiResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("guidance/openai: parsing response (status %d): %w", httpResp.StatusCode, err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("guidance/openai: %s: %s", response.Error.Type, response.Error.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("guidance/openai: unexpected status %d", httpResp.StatusCode)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("guidance/openai: response contained no choices")
	}

	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("guidance/openai: response contained no text")
	}
	return text, nil
}

var _ Generator = (*OpenAI)(nil)
