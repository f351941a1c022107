// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaClient speaks the local Ollama chat API. No credentials; the backend
// runs on the user's own hardware.
type OllamaClient struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// NewOllamaClient creates an Ollama provider.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (c *OllamaClient) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	// Ollama reports token counts as eval statistics.
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate implements Provider.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Envelope, error) {
	payload := ollamaRequest{
		Model:  c.model,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
		Messages: []ollamaMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	start := time.Now()
	var resp ollamaResponse
	if err := postJSON(ctx, c.httpc, c.baseURL+"/api/chat", nil, payload, &resp); err != nil {
		return nil, err
	}

	if resp.Message.Content == "" {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedResponse)
	}

	return &Envelope{
		Text:             resp.Message.Content,
		Provider:         c.Name(),
		Model:            resp.Model,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		Latency:          time.Since(start),
	}, nil
}
