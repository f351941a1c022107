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

// OpenAIClient speaks the chat-completions API. Also covers OpenAI-compatible
// gateways when pointed at a different base URL.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

// NewOpenAIClient creates an OpenAI provider.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Envelope, error) {
	payload := openAIRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	start := time.Now()
	var resp openAIResponse
	if err := postJSON(ctx, c.httpc, c.baseURL+"/v1/chat/completions", headers, payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}

	return &Envelope{
		Text:             resp.Choices[0].Message.Content,
		Provider:         c.Name(),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(start),
	}, nil
}
