package translate

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/collector/clients"
)

const DefaultOpenAIBaseUrl = "https://api.openai.com"

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAIProvider calls the Chat Completions API.
type OpenAIProvider struct {
	client    *clients.HttpClient
	baseUrl   string
	header    http.Header
	maxTokens int
	cfg       ProviderConfig
}

func NewOpenAIProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, ErrProviderNotConfigured
	}
	baseUrl := cfg.OpenAIBaseUrl
	if baseUrl == "" {
		baseUrl = DefaultOpenAIBaseUrl
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.OpenAIAPIKey)
	return &OpenAIProvider{
		client:    clients.NewDefaultHttpClient().WithTimeout(providerTimeout),
		baseUrl:   strings.TrimRight(baseUrl, "/"),
		header:    header,
		maxTokens: cfg.maxTokens(),
		cfg:       cfg,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return OpenAIProviderName
}

func (p *OpenAIProvider) Translate(ctx context.Context, model string, prompt string) (string, error) {
	return callWithRateLimitRetry(ctx, p.Name(), p.cfg.rateLimitPolicy(p.Name()), func(ctx context.Context) (string, error) {
		return p.call(ctx, model, prompt)
	})
}

func (p *OpenAIProvider) call(ctx context.Context, model string, prompt string) (string, error) {
	req := openAIRequest{
		Model:     model,
		Messages:  []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens: p.maxTokens,
	}
	res := openAIResponse{}
	if err := p.client.PostJSON(ctx, p.baseUrl+"/v1/chat/completions", p.header, req, &res); err != nil {
		return "", toProviderError(p.Name(), err)
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Message.Content) == "" {
		return "", &FatalError{Provider: p.Name(), Err: errors.New("empty completion")}
	}
	return res.Choices[0].Message.Content, nil
}
