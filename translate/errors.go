package translate

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrProviderNotConfigured is returned by a provider constructor when its
// credentials are absent. The registry treats such providers as unavailable.
var ErrProviderNotConfigured = errors.New("provider not configured")

// RateLimitedError is retried in place by the provider adapter.
type RateLimitedError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited (http %d): %s", e.Provider, e.StatusCode, e.Body)
}

// FatalError ends the attempt on the current model. The engine moves on to
// the next one.
type FatalError struct {
	Provider string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Failure is one model that did not produce a translation.
type Failure struct {
	Spec ModelSpec
	Err  error
}

// TranslationError lists every failure, in the order the models were tried.
type TranslationError struct {
	Failures []Failure
}

func (e *TranslationError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %v", f.Spec, f.Err))
	}
	return "all translation models failed: " + strings.Join(reasons, "; ")
}
