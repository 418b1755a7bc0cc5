package translate

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

// Constructor builds a provider from config, returning
// ErrProviderNotConfigured when the provider's credentials are absent.
type Constructor func(cfg ProviderConfig) (Provider, error)

const (
	AnthropicProviderName = "anthropic"
	OpenAIProviderName    = "openai"
)

// DefaultConstructors lists every provider this build knows about.
func DefaultConstructors() map[string]Constructor {
	return map[string]Constructor{
		AnthropicProviderName: NewAnthropicProvider,
		OpenAIProviderName:    NewOpenAIProvider,
	}
}

// Registry resolves provider names to constructed providers. It is built
// once at start-up and read-only afterwards.
type Registry struct {
	providers   map[string]Provider
	unavailable map[string]error
}

// NewRegistry runs every constructor. A constructor failure makes that
// provider unavailable, it does not fail the registry.
func NewRegistry(cfg ProviderConfig, constructors map[string]Constructor) *Registry {
	r := &Registry{providers: map[string]Provider{}, unavailable: map[string]error{}}
	for name, construct := range constructors {
		name = strings.ToLower(name)
		p, err := construct(cfg)
		if err != nil {
			r.unavailable[name] = err
			Log.WithFields(logrus.Fields{"provider": name}).WithError(err).Info("translation provider unavailable")
			continue
		}
		r.providers[name] = p
	}
	return r
}

// NewStaticRegistry wraps already constructed providers.
func NewStaticRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: map[string]Provider{}, unavailable: map[string]error{}}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get explains why a provider is missing when it is.
func (r *Registry) Get(name string) (Provider, error) {
	name = strings.ToLower(name)
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	if err, ok := r.unavailable[name]; ok {
		return nil, errors.Wrapf(err, "provider %q unavailable", name)
	}
	return nil, errors.Errorf("provider %q is not registered", name)
}

// Available lists the usable provider names, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
