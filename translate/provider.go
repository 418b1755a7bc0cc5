package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/collector/clients"
	"github.com/lovelive-bluebird/bluebird/retry"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	DefaultMaxTokens = 1024
	// Long prompts with references can take well over a minute to complete.
	providerTimeout = 90 * time.Second
)

// Provider sends a rendered prompt to one LLM vendor. Implementations retry
// rate limiting themselves and report anything else as *FatalError.
type Provider interface {
	Name() string
	Translate(ctx context.Context, model string, prompt string) (string, error)
}

// ProviderConfig carries every vendor's settings. Constructors read only
// their own fields.
type ProviderConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseUrl string
	OpenAIAPIKey     string
	OpenAIBaseUrl    string
	MaxTokens        int

	// Nil selects retry.RateLimitPolicy.
	RateLimitPolicy *retry.Policy
}

func (c ProviderConfig) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

func (c ProviderConfig) rateLimitPolicy(provider string) retry.Policy {
	p := retry.RateLimitPolicy()
	if c.RateLimitPolicy != nil {
		p = *c.RateLimitPolicy
	}
	p.Name = provider + "_rate_limit"
	return p
}

func classifyProviderError(err error) retry.Class {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return retry.Retryable
	}
	return retry.Fatal
}

// callWithRateLimitRetry retries call only while it reports rate limiting.
// Exhausting the budget is fatal for this model.
func callWithRateLimitRetry(ctx context.Context, provider string, policy retry.Policy, call func(ctx context.Context) (string, error)) (string, error) {
	var text string
	err := retry.Do(ctx, policy, classifyProviderError, func(ctx context.Context) error {
		var err error
		text, err = call(ctx)
		return err
	})
	if err == nil {
		return text, nil
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return "", err
	}
	return "", &FatalError{Provider: provider, Err: err}
}

// Error types and codes vendors report in the body when throttling,
// whatever the HTTP status.
var rateLimitErrorTypes = map[string]bool{
	"rate_limit_error":    true,
	"overloaded_error":    true,
	"rate_limit_exceeded": true,
}

type vendorErrorBody struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

// toProviderError maps an HTTP failure onto the provider error types.
// rateLimitStatuses lists the statuses the vendor uses for throttling.
func toProviderError(provider string, err error, rateLimitStatuses ...int) error {
	var statusErr *clients.HttpStatusError
	if errors.As(err, &statusErr) && isRateLimited(statusErr, rateLimitStatuses) {
		Log.WithFields(logrus.Fields{"provider": provider, "status": statusErr.StatusCode}).Warn("provider rate limited")
		return &RateLimitedError{Provider: provider, StatusCode: statusErr.StatusCode, Body: statusErr.Body}
	}
	return &FatalError{Provider: provider, Err: err}
}

func isRateLimited(statusErr *clients.HttpStatusError, rateLimitStatuses []int) bool {
	for _, code := range append(rateLimitStatuses, http.StatusTooManyRequests) {
		if statusErr.StatusCode == code {
			return true
		}
	}
	var body vendorErrorBody
	if json.Unmarshal([]byte(statusErr.Body), &body) != nil {
		return false
	}
	return rateLimitErrorTypes[body.Error.Type] || rateLimitErrorTypes[body.Error.Code]
}
