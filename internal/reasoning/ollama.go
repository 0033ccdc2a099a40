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
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "llama3.2"
)

// Ollama analyzes contexts with a local Ollama server.
type Ollama struct {
	baseURL    string
	model      string
	HTTPClient *http.Client
}

// NewOllama returns an analyzer for the Ollama server at endpoint.
func NewOllama(model, endpoint string) *Ollama {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		model:      model,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Analyze(ctx context.Context, c capture.Context) ([]capture.DetectedTask, error) {
	body, err := json.Marshal(map[string]any{
		"model":  o.model,
		"system": DetectionPrompt,
		"prompt": c.FormatForLLM(),
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return ParseTasks(out.Response)
}

func (o *Ollama) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %d", resp.StatusCode)
	}
	return nil
}
