// Package app assembles the pipeline components from an AppSetting. Both the
// webhook server and the operator cli build their dependencies here.
package app

import (
	"context"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/app_setting"
	"github.com/lovelive-bluebird/bluebird/collector/file_store"
	"github.com/lovelive-bluebird/bluebird/persona"
	"github.com/lovelive-bluebird/bluebird/publisher"
	"github.com/lovelive-bluebird/bluebird/store"
	"github.com/lovelive-bluebird/bluebird/store/linkcache"
	"github.com/lovelive-bluebird/bluebird/telegram"
	"github.com/lovelive-bluebird/bluebird/threading"
	"github.com/lovelive-bluebird/bluebird/translate"
	"github.com/lovelive-bluebird/bluebird/utils"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

// App is the fully wired pipeline. Cache and Archive are nil when not
// configured.
type App struct {
	Setting   app_setting.AppSetting
	Store     *store.Store
	Cache     *linkcache.Cache
	Personas  *persona.Registry
	Engine    *translate.Engine
	Sink      *telegram.Sink
	Archive   file_store.FileStore
	Metrics   statsd.ClientInterface
	Processor *publisher.TweetPublisherProcessor
}

func ErrorHooks(setting app_setting.AppSetting) ErrorHookConfig {
	return ErrorHookConfig{
		TelegramBotToken: setting.TELEGRAM_ERROR_BOT_TOKEN,
		TelegramChatID:   setting.TELEGRAM_ERROR_CHAT_ID,
		SlackWebhookURL:  setting.SLACK_ERROR_WEBHOOK_URL,
	}
}

func StoreConfig(setting app_setting.AppSetting) store.Config {
	return store.Config{
		DSN:              setting.POSTGRES_DSN,
		MinConns:         setting.POSTGRES_MIN_CONNS,
		MaxConns:         setting.POSTGRES_MAX_CONNS,
		StatementTimeout: setting.StatementTimeout(),
	}
}

// OpenStore opens the pool and verifies the schema revision.
func OpenStore(ctx context.Context, setting app_setting.AppSetting) (*store.Store, error) {
	if setting.POSTGRES_DSN == "" {
		return nil, errors.New("POSTGRES_DSN is not set")
	}
	s, err := store.Open(ctx, StoreConfig(setting))
	if err != nil {
		return nil, err
	}
	if err := s.CheckSchemaVersion(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func LoadPersonas(setting app_setting.AppSetting) (*persona.Registry, error) {
	personas, err := setting.Personas(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return persona.NewRegistry(personas)
}

func NewTranslationEngine(setting app_setting.AppSetting) (*translate.Engine, error) {
	specs, err := translate.ParseModelSpecs(setting.TranslationModels())
	if err != nil {
		return nil, err
	}
	registry := translate.NewRegistry(translate.ProviderConfig{
		AnthropicAPIKey: setting.ANTHROPIC_API_KEY,
		OpenAIAPIKey:    setting.OPENAI_API_KEY,
	}, translate.DefaultConstructors())
	return translate.NewEngine(registry, specs, translate.DefaultPrompt())
}

func NewSink(setting app_setting.AppSetting) (*telegram.Sink, error) {
	if setting.TELEGRAM_CHAT_ID == "" {
		return nil, errors.New("TELEGRAM_CHAT_ID is not set")
	}
	return telegram.NewSink(setting.TELEGRAM_CHAT_ID)
}

// NewArchive returns nil when ARCHIVE_S3_BUCKET is not set.
func NewArchive(setting app_setting.AppSetting) (file_store.FileStore, error) {
	if setting.ARCHIVE_S3_BUCKET == "" {
		return nil, nil
	}
	return file_store.NewS3FileStore(setting.ARCHIVE_S3_BUCKET)
}

// Build wires every component. Failing to reach Redis or S3 only disables
// the cache or the archive, the store and the sink are required.
func Build(ctx context.Context, setting app_setting.AppSetting, serviceName string) (*App, error) {
	a := &App{Setting: setting}
	var err error

	if a.Personas, err = LoadPersonas(setting); err != nil {
		return nil, errors.Wrap(err, "load personas")
	}
	if _, ok := a.Personas.ByID(setting.NOTICE_PERSONA); !ok {
		Log.WithField("persona", setting.NOTICE_PERSONA).Warn("notice persona is not configured, system notices disabled")
	}
	if a.Engine, err = NewTranslationEngine(setting); err != nil {
		return nil, errors.Wrap(err, "build translation engine")
	}
	if a.Sink, err = NewSink(setting); err != nil {
		return nil, errors.Wrap(err, "build telegram sink")
	}
	if a.Store, err = OpenStore(ctx, setting); err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	var lookup threading.LinkLookup = a.Store
	if setting.REDIS_HOST != "" {
		cache, err := linkcache.Connect(ctx, setting.RedisAddr(), setting.REDIS_PASSWD, a.Store)
		if err != nil {
			Log.WithError(err).Warn("link cache disabled")
		} else {
			a.Cache = cache
			lookup = cache
		}
	}

	if a.Archive, err = NewArchive(setting); err != nil {
		Log.WithError(err).Warn("payload archive disabled")
		a.Archive = nil
	}

	a.Metrics = &statsd.NoOpClient{}
	if setting.DD_AGENT_STATSD_ADDR != "" {
		a.Metrics = utils.NewDogStatsdClient(setting.DD_AGENT_STATSD_ADDR, serviceName)
	}

	a.Processor = publisher.NewTweetPublisherProcessor(
		a.Personas,
		threading.NewResolver(lookup),
		a.Engine,
		a.Sink,
		a.Store,
		publisher.Config{
			NoticePersona:  setting.NOTICE_PERSONA,
			ReferenceLimit: setting.TRANSLATION_REFERENCE_LIMIT,
		},
	)
	if a.Cache != nil {
		a.Processor.SetLinkCache(a.Cache)
	}
	a.Processor.SetMetrics(a.Metrics)
	return a, nil
}

func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Metrics != nil {
		a.Metrics.Close()
	}
}
