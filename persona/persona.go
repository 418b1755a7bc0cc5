// Package persona maps social-media authors to the bot identities that
// republish their posts.
package persona

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Persona is a configured identity: the author handle it listens to and the
// bot credential it posts with.
type Persona struct {
	ID         string `yaml:"id"`
	Handle     string `yaml:"twitter_handle"`
	Credential string `yaml:"telegram_bot_token"`
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	byID     map[string]*Persona
	byHandle map[string]*Persona
	ordered  []*Persona
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NewRegistry validates every persona and indexes them by id and by handle.
// A leading "@" on the handle is ignored.
func NewRegistry(personas []Persona) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]*Persona, len(personas)),
		byHandle: make(map[string]*Persona, len(personas)),
	}
	for i := range personas {
		p := personas[i]
		p.Handle = strings.TrimPrefix(strings.TrimSpace(p.Handle), "@")
		id, handle := normalize(p.ID), normalize(p.Handle)

		if id == "" {
			return nil, errors.Errorf("persona #%d has no id", i)
		}
		if handle == "" {
			return nil, errors.Errorf("persona %q has no handle", p.ID)
		}
		if strings.TrimSpace(p.Credential) == "" {
			return nil, errors.Errorf("persona %q has no credential", p.ID)
		}
		if _, ok := r.byID[id]; ok {
			return nil, errors.Errorf("duplicate persona id %q", p.ID)
		}
		if other, ok := r.byHandle[handle]; ok {
			return nil, errors.Errorf("handle %q is shared by personas %q and %q", p.Handle, other.ID, p.ID)
		}

		r.byID[id] = &p
		r.byHandle[handle] = &p
		r.ordered = append(r.ordered, &p)
	}
	return r, nil
}

// ByID looks up a persona by id, ignoring case.
func (r *Registry) ByID(id string) (*Persona, bool) {
	p, ok := r.byID[normalize(id)]
	return p, ok
}

// ByHandle looks up a persona by author handle, ignoring case and a leading "@".
func (r *Registry) ByHandle(handle string) (*Persona, bool) {
	p, ok := r.byHandle[normalize(strings.TrimPrefix(strings.TrimSpace(handle), "@"))]
	return p, ok
}

// All returns the personas in configuration order.
func (r *Registry) All() []*Persona {
	res := make([]*Persona, len(r.ordered))
	copy(res, r.ordered)
	return res
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

// LookupEnv is the environment accessor used by LoadFromEnv, os.LookupEnv in
// production.
type LookupEnv func(key string) (string, bool)

// EnvKeys returns the environment variable names for a persona named name,
// e.g. CHARACTER_POLKA_TWITTER_HANDLE.
func EnvKeys(name string) (handleKey, tokenKey string) {
	prefix := "CHARACTER_" + strings.ToUpper(name) + "_"
	return prefix + "TWITTER_HANDLE", prefix + "TELEGRAM_BOT_TOKEN"
}

// LoadFromEnv builds one persona per name from CHARACTER_<NAME>_* variables.
// Every named persona must be fully configured.
func LoadFromEnv(names []string, lookup LookupEnv) ([]Persona, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	res := []Persona{}
	missing := []string{}
	for _, name := range names {
		handleKey, tokenKey := EnvKeys(name)
		handle, _ := lookup(handleKey)
		token, _ := lookup(tokenKey)
		if handle == "" {
			missing = append(missing, handleKey)
		}
		if token == "" {
			missing = append(missing, tokenKey)
		}
		res = append(res, Persona{ID: strings.ToLower(name), Handle: handle, Credential: token})
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Errorf("missing persona environment variables: %s", strings.Join(missing, ", "))
	}
	return res, nil
}
