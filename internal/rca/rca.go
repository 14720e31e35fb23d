// Package rca produces best-effort root-cause analyses for remediated pods.
// It runs strictly after an action has completed and can only ever enrich
// the record of what happened; no remediation decision depends on it.
package rca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 60 * time.Second
)

// Bundle is the context handed to the analyzer for one remediated pod.
type Bundle struct {
	PodName     string
	Namespace   string
	Logs        string
	Alerts      string
	Description string
	Events      string
}

// Analyzer turns a context bundle into an analysis text.
type Analyzer interface {
	Analyze(ctx context.Context, b Bundle) (string, error)
}

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Option configures a GeminiClient.
type Option func(*GeminiClient)

// WithBaseURL overrides the API endpoint. Tests point this at a stub.
func WithBaseURL(url string) Option {
	return func(c *GeminiClient) { c.baseURL = url }
}

// WithTimeout bounds each analyze call.
func WithTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.client.Timeout = d }
}

// NewGeminiClient creates an analyzer backed by the Gemini API.
func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Analyze submits the bundle and returns the generated analysis text.
func (c *GeminiClient) Analyze(ctx context.Context, b Bundle) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(b)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode rca request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build rca request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rca request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("rca request returned %d: %s", resp.StatusCode, data)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("failed to decode rca response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("rca response contained no candidates")
	}

	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// BuildPrompt assembles the SRE analysis prompt from a bundle.
func BuildPrompt(b Bundle) string {
	return fmt.Sprintf(`As an expert SRE, provide a root cause analysis (RCA) for the failing Kubernetes pod %s in namespace %s.
Analyze the following context to determine the most likely cause of failure and suggest a concrete fix.

Pod description:
%s

Recent pod logs:
%s

Recent namespace events:
%s

Active alerts:
%s
`, b.PodName, b.Namespace, b.Description, b.Logs, b.Events, b.Alerts)
}
