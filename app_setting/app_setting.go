package app_setting

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/lovelive-bluebird/bluebird/persona"
)

const (
	SettingPathEnvKey = "BLUEBIRD_SETTING_PATH"

	DefaultPort              = 8000
	DefaultNoticePersona     = "mai"
	DefaultTranslationModels = "anthropic:claude-3-7-sonnet-20250219"
	DefaultReferenceLimit    = 3
	DefaultRedisPort         = "6379"
)

// DefaultPersonaNames are the characters relayed when neither the YAML
// file nor PERSONA_NAMES lists any.
var DefaultPersonaNames = []string{
	"Polka", "Mai", "Akira", "Hanabi", "Miracle",
	"Noriko", "Yukuri", "Aurora", "Midori", "Shion",
}

// AppSetting is the runtime setting shared by the webhook server and the
// operator cli. Values are read from an optional YAML file and then
// overridden by environment variables of the same name.
type AppSetting struct {
	// Port the webhook server listens on.
	PORT int `yaml:"PORT"`
	// Destination chat, numeric id or @channel.
	TELEGRAM_CHAT_ID string `yaml:"TELEGRAM_CHAT_ID"`
	// Persona whose bot posts system notices and admin announcements.
	NOTICE_PERSONA string `yaml:"NOTICE_PERSONA"`
	// Names used to build CHARACTER_<NAME>_* environment keys.
	PERSONA_NAMES []string `yaml:"PERSONA_NAMES"`
	// Inline personas. When set, PERSONA_NAMES is ignored.
	PERSONAS []persona.Persona `yaml:"PERSONAS"`

	// Ordered, comma separated provider:model list. A bare model name is
	// taken as an anthropic model.
	TRANSLATION_MODEL string `yaml:"TRANSLATION_MODEL"`
	// Earlier translations passed to the model as reference.
	TRANSLATION_REFERENCE_LIMIT int    `yaml:"TRANSLATION_REFERENCE_LIMIT"`
	ANTHROPIC_API_KEY           string `yaml:"ANTHROPIC_API_KEY"`
	OPENAI_API_KEY              string `yaml:"OPENAI_API_KEY"`
	TWITTER_API_KEY             string `yaml:"TWITTER_API_KEY"`
	// Secret used to answer the webhook CRC challenge.
	TWITTER_CONSUMER_SECRET string `yaml:"TWITTER_CONSUMER_SECRET"`

	POSTGRES_DSN                     string `yaml:"POSTGRES_DSN"`
	POSTGRES_MIN_CONNS               int    `yaml:"POSTGRES_MIN_CONNS"`
	POSTGRES_MAX_CONNS               int    `yaml:"POSTGRES_MAX_CONNS"`
	POSTGRES_STATEMENT_TIMEOUT_SECOND int64  `yaml:"POSTGRES_STATEMENT_TIMEOUT_SECOND"`

	// Empty REDIS_HOST disables the parent link cache.
	REDIS_HOST   string `yaml:"REDIS_HOST"`
	REDIS_PORT   string `yaml:"REDIS_PORT"`
	REDIS_PASSWD string `yaml:"REDIS_PASSWD"`

	TELEGRAM_ERROR_BOT_TOKEN string `yaml:"TELEGRAM_ERROR_BOT_TOKEN"`
	TELEGRAM_ERROR_CHAT_ID   string `yaml:"TELEGRAM_ERROR_CHAT_ID"`
	SLACK_ERROR_WEBHOOK_URL  string `yaml:"SLACK_ERROR_WEBHOOK_URL"`

	// Empty disables webhook payload archiving.
	ARCHIVE_S3_BUCKET string `yaml:"ARCHIVE_S3_BUCKET"`

	ENABLE_DATADOG_TRACER   bool   `yaml:"ENABLE_DATADOG_TRACER"`
	ENABLE_DATADOG_PROFILER bool   `yaml:"ENABLE_DATADOG_PROFILER"`
	DD_AGENT_STATSD_ADDR    string `yaml:"DD_AGENT_STATSD_ADDR"`
}

func defaultSetting() AppSetting {
	return AppSetting{
		PORT:                        DefaultPort,
		NOTICE_PERSONA:              DefaultNoticePersona,
		PERSONA_NAMES:               append([]string{}, DefaultPersonaNames...),
		TRANSLATION_MODEL:           DefaultTranslationModels,
		TRANSLATION_REFERENCE_LIMIT: DefaultReferenceLimit,
		REDIS_PORT:                  DefaultRedisPort,
	}
}

// Load reads the YAML file at path, or the one named by
// BLUEBIRD_SETTING_PATH when path is empty, and applies environment
// overrides.
func Load(path string) (AppSetting, error) {
	if path == "" {
		path = os.Getenv(SettingPathEnvKey)
	}
	return LoadFrom(path, os.LookupEnv)
}

// LoadFrom is Load with an explicit file path and environment. An empty path
// skips the file.
func LoadFrom(path string, lookup persona.LookupEnv) (AppSetting, error) {
	s := defaultSetting()
	if path != "" {
		yamlFile, err := ioutil.ReadFile(path)
		if err != nil {
			return s, errors.Wrap(err, "read setting file")
		}
		if err := yaml.Unmarshal(yamlFile, &s); err != nil {
			return s, errors.Wrapf(err, "parse setting file %s", path)
		}
	}
	if err := s.applyEnv(lookup); err != nil {
		return s, err
	}
	return s, nil
}

func (s *AppSetting) applyEnv(lookup persona.LookupEnv) error {
	o := overrider{lookup: lookup}
	o.setInt("PORT", &s.PORT)
	o.setString("TELEGRAM_CHAT_ID", &s.TELEGRAM_CHAT_ID)
	o.setString("NOTICE_PERSONA", &s.NOTICE_PERSONA)
	o.setList("PERSONA_NAMES", &s.PERSONA_NAMES)
	o.setString("TRANSLATION_MODEL", &s.TRANSLATION_MODEL)
	o.setInt("TRANSLATION_REFERENCE_LIMIT", &s.TRANSLATION_REFERENCE_LIMIT)
	o.setString("ANTHROPIC_API_KEY", &s.ANTHROPIC_API_KEY)
	o.setString("OPENAI_API_KEY", &s.OPENAI_API_KEY)
	o.setString("TWITTER_API_KEY", &s.TWITTER_API_KEY)
	o.setString("TWITTER_CONSUMER_SECRET", &s.TWITTER_CONSUMER_SECRET)
	o.setString("POSTGRES_DSN", &s.POSTGRES_DSN)
	o.setInt("POSTGRES_MIN_CONNS", &s.POSTGRES_MIN_CONNS)
	o.setInt("POSTGRES_MAX_CONNS", &s.POSTGRES_MAX_CONNS)
	o.setInt64("POSTGRES_STATEMENT_TIMEOUT_SECOND", &s.POSTGRES_STATEMENT_TIMEOUT_SECOND)
	o.setString("REDIS_HOST", &s.REDIS_HOST)
	o.setString("REDIS_PORT", &s.REDIS_PORT)
	o.setString("REDIS_PASSWD", &s.REDIS_PASSWD)
	o.setString("TELEGRAM_ERROR_BOT_TOKEN", &s.TELEGRAM_ERROR_BOT_TOKEN)
	o.setString("TELEGRAM_ERROR_CHAT_ID", &s.TELEGRAM_ERROR_CHAT_ID)
	o.setString("SLACK_ERROR_WEBHOOK_URL", &s.SLACK_ERROR_WEBHOOK_URL)
	o.setString("ARCHIVE_S3_BUCKET", &s.ARCHIVE_S3_BUCKET)
	o.setBool("ENABLE_DATADOG_TRACER", &s.ENABLE_DATADOG_TRACER)
	o.setBool("ENABLE_DATADOG_PROFILER", &s.ENABLE_DATADOG_PROFILER)
	o.setString("DD_AGENT_STATSD_ADDR", &s.DD_AGENT_STATSD_ADDR)
	return o.err
}

// TranslationModels returns the model list in provider:model form.
func (s AppSetting) TranslationModels() string {
	parts := []string{}
	for _, part := range strings.Split(s.TRANSLATION_MODEL, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, ":") {
			part = "anthropic:" + part
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ",")
}

func (s AppSetting) RedisAddr() string {
	return s.REDIS_HOST + ":" + s.REDIS_PORT
}

func (s AppSetting) StatementTimeout() time.Duration {
	return time.Duration(s.POSTGRES_STATEMENT_TIMEOUT_SECOND) * time.Second
}

// Personas returns the inline personas, or builds them from the
// CHARACTER_<NAME>_* environment variables.
func (s AppSetting) Personas(lookup persona.LookupEnv) ([]persona.Persona, error) {
	if len(s.PERSONAS) > 0 {
		return s.PERSONAS, nil
	}
	return persona.LoadFromEnv(s.PERSONA_NAMES, lookup)
}

// Redacted is a copy safe to print, secrets keep only their last 4 chars.
func (s AppSetting) Redacted() AppSetting {
	r := s
	for _, secret := range []*string{
		&r.ANTHROPIC_API_KEY, &r.OPENAI_API_KEY, &r.TWITTER_API_KEY,
		&r.TWITTER_CONSUMER_SECRET, &r.POSTGRES_DSN, &r.TELEGRAM_ERROR_BOT_TOKEN,
		&r.SLACK_ERROR_WEBHOOK_URL, &r.REDIS_PASSWD,
	} {
		*secret = mask(*secret)
	}
	r.PERSONAS = make([]persona.Persona, len(s.PERSONAS))
	for i, p := range s.PERSONAS {
		p.Credential = mask(p.Credential)
		r.PERSONAS[i] = p
	}
	return r
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

type overrider struct {
	lookup persona.LookupEnv
	err    error
}

func (o *overrider) get(key string) (string, bool) {
	v, ok := o.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (o *overrider) setString(key string, dst *string) {
	if v, ok := o.get(key); ok {
		*dst = v
	}
}

func (o *overrider) setList(key string, dst *[]string) {
	v, ok := o.get(key)
	if !ok {
		return
	}
	res := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	*dst = res
}

func (o *overrider) setInt(key string, dst *int) {
	if v, ok := o.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			o.fail(key, err)
			return
		}
		*dst = n
	}
}

func (o *overrider) setInt64(key string, dst *int64) {
	if v, ok := o.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			o.fail(key, err)
			return
		}
		*dst = n
	}
}

func (o *overrider) setBool(key string, dst *bool) {
	if v, ok := o.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			o.fail(key, err)
			return
		}
		*dst = b
	}
}

func (o *overrider) fail(key string, err error) {
	if o.err == nil {
		o.err = errors.Wrapf(err, "invalid value for %s", key)
	}
}
