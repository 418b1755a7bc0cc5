// Package translate turns post text into the target language, walking an
// ordered list of provider:model pairs until one succeeds.
package translate

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/model"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

type Request struct {
	Text string
	// Earlier translations by the same persona, newest first. Optional.
	References []model.TranslationPair
}

// Result is empty with a zero Spec when the input was blank.
type Result struct {
	Text string
	Spec ModelSpec
}

// Engine is stateless apart from its start-up configuration and is safe for
// concurrent use.
type Engine struct {
	registry *Registry
	specs    []ModelSpec
	prompt   *Prompt
}

func NewEngine(registry *Registry, specs []ModelSpec, prompt *Prompt) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("translate: nil registry")
	}
	if len(specs) == 0 {
		return nil, errors.New("translate: no model specs")
	}
	if prompt == nil {
		prompt = DefaultPrompt()
	}
	copied := make([]ModelSpec, len(specs))
	copy(copied, specs)
	return &Engine{registry: registry, specs: copied, prompt: prompt}, nil
}

func (e *Engine) Specs() []ModelSpec {
	res := make([]ModelSpec, len(e.specs))
	copy(res, e.specs)
	return res
}

// Translate tries each model in order. Blank text short-circuits without
// contacting any provider. When every model fails, the returned
// *TranslationError lists each failure in order.
func (e *Engine) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return &Result{}, nil
	}
	prompt := e.prompt.Render(req.Text, req.References)

	failures := []Failure{}
	for _, spec := range e.specs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{Spec: spec, Err: err})
			break
		}

		provider, err := e.registry.Get(spec.Provider)
		if err != nil {
			failures = append(failures, Failure{Spec: spec, Err: err})
			continue
		}

		logger := Log.WithFields(logrus.Fields{"model": spec.String()})
		text, err := provider.Translate(ctx, spec.Model, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = &FatalError{Provider: spec.Provider, Err: errors.New("empty translation")}
		}
		if err != nil {
			logger.WithError(err).Warn("translation model failed, trying next")
			failures = append(failures, Failure{Spec: spec, Err: err})
			continue
		}

		logger.Info("translation succeeded")
		return &Result{Text: strings.TrimSpace(text), Spec: spec}, nil
	}
	return nil, &TranslationError{Failures: failures}
}
