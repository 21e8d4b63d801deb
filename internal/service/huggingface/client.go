package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co"
	DefaultTimeout = 60 * time.Second
	maxBodySize    = 4 << 20
)

// ErrAllAttemptsFailed is returned when no generation strategy produced a 2xx response.
var ErrAllAttemptsFailed = errors.New("all inference attempts failed")

// Client calls the hosted inference API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an inference client; an empty baseURL selects the public endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Strategy is one way of asking the API for generated text.
type Strategy struct {
	Label   string
	path    func(model string) string
	headers map[string]string
	payload func(prompt string) any
}

var (
	// TextGeneration targets the model endpoint with text-generation parameters.
	TextGeneration = Strategy{
		Label: "text-generation",
		path:  func(m string) string { return "/models/" + m },
		payload: func(prompt string) any {
			return map[string]any{
				"inputs": prompt,
				"parameters": map[string]any{
					"max_new_tokens":   512,
					"do_sample":        true,
					"temperature":      0.7,
					"top_p":            0.9,
					"return_full_text": false,
				},
				"options": map[string]any{
					"use_cache":      false,
					"wait_for_model": true,
				},
			}
		},
	}
	// Text2Text targets the model endpoint with text2text-generation parameters.
	Text2Text = Strategy{
		Label:   "text2text-generation",
		path:    func(m string) string { return "/models/" + m },
		headers: map[string]string{"X-Use-Cache": "false"},
		payload: func(prompt string) any {
			return map[string]any{
				"inputs": prompt,
				"parameters": map[string]any{
					"max_length":  512,
					"do_sample":   true,
					"temperature": 0.7,
					"top_p":       0.9,
				},
			}
		},
	}
	// Pipeline lets the API infer the task through the text-generation pipeline route.
	Pipeline = Strategy{
		Label: "no-task",
		path:  func(m string) string { return "/pipeline/text-generation/" + m },
		payload: func(prompt string) any {
			return map[string]any{"inputs": prompt}
		},
	}
)

// Generation is the first successful inference response.
type Generation struct {
	Strategy string
	Raw      json.RawMessage
	Text     string
}

// Generate runs the strategies in order and returns the first 2xx response.
// The returned slice holds one message per failed attempt.
func (c *Client) Generate(ctx context.Context, model, prompt string, strategies ...Strategy) (*Generation, []string) {
	if len(strategies) == 0 {
		strategies = []Strategy{TextGeneration}
	}
	var failures []string
	for _, s := range strategies {
		raw, err := c.post(ctx, s.path(model), s.headers, s.payload(prompt))
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s error: %s", s.Label, err.Error()))
			continue
		}
		return &Generation{Strategy: s.Label, Raw: raw, Text: GeneratedText(raw)}, failures
	}
	return nil, failures
}

// FailureError folds the per-attempt messages of a failed Generate call.
func FailureError(failures []string) error {
	if len(failures) == 0 {
		return ErrAllAttemptsFailed
	}
	return fmt.Errorf("%w: %s", ErrAllAttemptsFailed, strings.Join(failures, "; "))
}

// GeneratedText extracts generated_text from either an array or an object response.
func GeneratedText(raw []byte) string {
	res := gjson.ParseBytes(raw)
	if res.IsArray() {
		return res.Get("0.generated_text").String()
	}
	return res.Get("generated_text").String()
}

// Embed computes a sentence embedding with the feature-extraction task.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	raw, err := c.post(ctx, "/pipeline/feature-extraction/"+model, nil, map[string]any{
		"inputs":  text,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("feature extraction: %w", err)
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return nil, fmt.Errorf("feature extraction: unexpected response %s", truncate(string(raw), 200))
	}
	// some models return one row per input
	if first := res.Get("0"); first.IsArray() {
		res = first
	}
	values := res.Array()
	if len(values) == 0 {
		return nil, errors.New("feature extraction: empty embedding")
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v.Float())
	}
	return out, nil
}

// ModelInfo returns the raw model status document.
func (c *Client) ModelInfo(ctx context.Context, model string) (json.RawMessage, error) {
	return c.get(ctx, "/models/"+model)
}

// PipelineInfo returns the raw pipeline listing for a model.
func (c *Client) PipelineInfo(ctx context.Context, model string) (json.RawMessage, error) {
	return c.get(ctx, "/pipeline/list/"+model)
}

// StatusError carries a non-2xx upstream reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return e.Body
}

func (c *Client) post(ctx context.Context, path string, headers map[string]string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(msg, 400)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response: %s", truncate(string(body), 200))
	}
	return json.RawMessage(body), nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
