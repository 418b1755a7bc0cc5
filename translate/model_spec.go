package translate

import (
	"strings"

	"github.com/pkg/errors"
)

// ModelSpec names one provider:model pair in the fallback list.
type ModelSpec struct {
	Provider string
	Model    string
}

func (s ModelSpec) String() string {
	return s.Provider + ":" + s.Model
}

// ParseModelSpec parses "provider:model". The model part may itself contain
// colons.
func ParseModelSpec(raw string) (ModelSpec, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return ModelSpec{}, errors.Errorf("invalid model spec %q, want provider:model", raw)
	}
	return ModelSpec{
		Provider: strings.ToLower(strings.TrimSpace(raw[:idx])),
		Model:    strings.TrimSpace(raw[idx+1:]),
	}, nil
}

// ParseModelSpecs parses a comma separated, ordered list. Empty entries are
// skipped but the list as a whole must not be empty.
func ParseModelSpecs(raw string) ([]ModelSpec, error) {
	specs := []ModelSpec{}
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		spec, err := ParseModelSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, errors.New("no translation models configured")
	}
	return specs, nil
}
