package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ankittk/taskwatch/internal/capture"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com"
	defaultOpenAIModel    = "gpt-4o"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	HTTPClient *http.Client
}

// NewOpenAI returns an analyzer for api.openai.com or a compatible endpoint. name is
// reported by Name ("openai" or "custom").
func NewOpenAI(name, apiKey, model, endpoint string) *OpenAI {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		name:       name,
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		model:      model,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	return req, nil
}

func (o *OpenAI) Analyze(ctx context.Context, c capture.Context) ([]capture.DetectedTask, error) {
	reqBody := map[string]any{
		"model": o.model,
		"messages": []map[string]any{
			{"role": "system", "content": DetectionPrompt},
			{"role": "user", "content": c.FormatForLLM()},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := o.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s API returned %d: %s", o.name, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", o.name, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", o.name)
	}
	return ParseTasks(apiResp.Choices[0].Message.Content)
}

func (o *OpenAI) HealthCheck(ctx context.Context) error {
	req, err := o.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s API returned %d", o.name, resp.StatusCode)
	}
	return nil
}
