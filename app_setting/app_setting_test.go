package app_setting

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelive-bluebird/bluebird/persona"
)

func envOf(m map[string]string) persona.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	s, err := LoadFrom("", envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, s.PORT)
	assert.Equal(t, "mai", s.NOTICE_PERSONA)
	assert.Equal(t, DefaultPersonaNames, s.PERSONA_NAMES)
	assert.Equal(t, "anthropic:claude-3-7-sonnet-20250219", s.TranslationModels())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setting.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
PORT: 9000
TELEGRAM_CHAT_ID: "@lovelive_kr"
POSTGRES_STATEMENT_TIMEOUT_SECOND: 10
PERSONAS:
  - id: mai
    twitter_handle: mai_staff
    telegram_bot_token: "123:abcdef"
`), 0644))

	s, err := LoadFrom(path, envOf(map[string]string{
		"PORT":                  "7070",
		"TRANSLATION_MODEL":     "claude-3-haiku, openai:gpt-4o",
		"PERSONA_NAMES":         "Polka, Mai ,",
		"ENABLE_DATADOG_TRACER": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7070, s.PORT)
	assert.Equal(t, "@lovelive_kr", s.TELEGRAM_CHAT_ID)
	assert.Equal(t, 10*time.Second, s.StatementTimeout())
	assert.Equal(t, []string{"Polka", "Mai"}, s.PERSONA_NAMES)
	assert.True(t, s.ENABLE_DATADOG_TRACER)
	assert.Equal(t, "anthropic:claude-3-haiku,openai:gpt-4o", s.TranslationModels())

	personas, err := s.Personas(envOf(nil))
	require.NoError(t, err)
	require.Len(t, personas, 1)
	assert.Equal(t, "mai_staff", personas[0].Handle)
}

func TestLoadRejectsBadNumber(t *testing.T) {
	_, err := LoadFrom("", envOf(map[string]string{"POSTGRES_MAX_CONNS": "many"}))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), envOf(nil))
	assert.Error(t, err)
}

func TestPersonasFromEnv(t *testing.T) {
	s, err := LoadFrom("", envOf(map[string]string{"PERSONA_NAMES": "Mai"}))
	require.NoError(t, err)

	personas, err := s.Personas(envOf(map[string]string{
		"CHARACTER_MAI_TWITTER_HANDLE":     "mai_staff",
		"CHARACTER_MAI_TELEGRAM_BOT_TOKEN": "123:abc",
	}))
	require.NoError(t, err)
	assert.Equal(t, []persona.Persona{{ID: "mai", Handle: "mai_staff", Credential: "123:abc"}}, personas)

	_, err = s.Personas(envOf(nil))
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	s := AppSetting{
		ANTHROPIC_API_KEY: "sk-ant-123456",
		POSTGRES_DSN:      "pw",
		PERSONAS:          []persona.Persona{{ID: "mai", Credential: "123:secret"}},
	}
	r := s.Redacted()
	assert.Equal(t, "****3456", r.ANTHROPIC_API_KEY)
	assert.Equal(t, "****", r.POSTGRES_DSN)
	assert.Equal(t, "****cret", r.PERSONAS[0].Credential)
	assert.Equal(t, "123:secret", s.PERSONAS[0].Credential)
}
