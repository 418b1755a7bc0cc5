package translate

import (
	_ "embed"
	"strings"

	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/model"
)

const (
	textPlaceholder       = "{{TEXT}}"
	referencesPlaceholder = "{{REFERENCES}}"
)

//go:embed prompts/translate.prompt
var defaultPromptTemplate string

// Prompt renders the translation instruction sent to every provider.
type Prompt struct {
	template string
}

func DefaultPrompt() *Prompt {
	return &Prompt{template: defaultPromptTemplate}
}

// NewPrompt fails if template has no {{TEXT}} placeholder.
func NewPrompt(template string) (*Prompt, error) {
	if !strings.Contains(template, textPlaceholder) {
		return nil, errors.Errorf("prompt template has no %s placeholder", textPlaceholder)
	}
	return &Prompt{template: template}, nil
}

// Render substitutes the post text and the optional reference translations.
// Substitution is single pass, placeholders inside text are left alone.
func (p *Prompt) Render(text string, references []model.TranslationPair) string {
	return strings.NewReplacer(
		textPlaceholder, text,
		referencesPlaceholder, renderReferences(references),
	).Replace(p.template)
}

func renderReferences(references []model.TranslationPair) string {
	if len(references) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nPrevious translations of this character, for consistency of tone and terms:\n")
	for _, r := range references {
		b.WriteString("<example>\n<original>\n")
		b.WriteString(r.OriginalText)
		b.WriteString("\n</original>\n<translation>\n")
		b.WriteString(r.TranslationText)
		b.WriteString("\n</translation>\n</example>\n")
	}
	return b.String()
}
