package translate

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/collector/clients"
)

const (
	DefaultAnthropicBaseUrl = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	// Anthropic reports "overloaded_error" with this status.
	anthropicOverloadedStatus = 529
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// AnthropicProvider calls the Messages API.
type AnthropicProvider struct {
	client    *clients.HttpClient
	baseUrl   string
	header    http.Header
	maxTokens int
	cfg       ProviderConfig
}

func NewAnthropicProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, ErrProviderNotConfigured
	}
	baseUrl := cfg.AnthropicBaseUrl
	if baseUrl == "" {
		baseUrl = DefaultAnthropicBaseUrl
	}
	header := http.Header{}
	header.Set("x-api-key", cfg.AnthropicAPIKey)
	header.Set("anthropic-version", anthropicVersion)
	return &AnthropicProvider{
		client:    clients.NewDefaultHttpClient().WithTimeout(providerTimeout),
		baseUrl:   strings.TrimRight(baseUrl, "/"),
		header:    header,
		maxTokens: cfg.maxTokens(),
		cfg:       cfg,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return AnthropicProviderName
}

func (p *AnthropicProvider) Translate(ctx context.Context, model string, prompt string) (string, error) {
	return callWithRateLimitRetry(ctx, p.Name(), p.cfg.rateLimitPolicy(p.Name()), func(ctx context.Context) (string, error) {
		return p.call(ctx, model, prompt)
	})
}

func (p *AnthropicProvider) call(ctx context.Context, model string, prompt string) (string, error) {
	req := anthropicRequest{
		Model:     model,
		MaxTokens: p.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	res := anthropicResponse{}
	if err := p.client.PostJSON(ctx, p.baseUrl+"/v1/messages", p.header, req, &res); err != nil {
		return "", toProviderError(p.Name(), err, anthropicOverloadedStatus)
	}
	for _, block := range res.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &FatalError{Provider: p.Name(), Err: errors.New("no text content in response")}
}
