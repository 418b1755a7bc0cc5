package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/lovelive-bluebird/bluebird/app"
	"github.com/lovelive-bluebird/bluebird/app_setting"
	"github.com/lovelive-bluebird/bluebird/collector/clients"
	"github.com/lovelive-bluebird/bluebird/collector/file_store"
	"github.com/lovelive-bluebird/bluebird/store"
	"github.com/lovelive-bluebird/bluebird/telegram"
	"github.com/lovelive-bluebird/bluebird/translate"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	defaultFetchLimit = 20
	sampleText        = "今日はライブでした！みんな来てくれてありがとう〜！"
)

func fetchAndSend(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("fetch-and-send", flag.ExitOnError)
	query := fs.String("query", "", "search query, defaults to every configured persona's tweets")
	queryType := fs.String("type", clients.QueryTypeLatest, "Latest or Top")
	limit := fs.Int("limit", defaultFetchLimit, "maximum number of tweets, 0 fetches everything")
	cursor := fs.String("cursor", "", "starting pagination cursor")
	personaID := fs.String("persona", "", "send every tweet as this persona")
	dryRun := fs.Bool("dry-run", false, "print what would be sent without sending")
	fs.Parse(args)

	registry, err := app.LoadPersonas(setting)
	if err != nil {
		return err
	}
	forced, err := lookupForcedPersona(registry, *personaID)
	if err != nil {
		return err
	}
	if *query == "" {
		*query = defaultQuery(registry)
	}

	client, err := clients.NewTwitterClient(setting.TWITTER_API_KEY, "")
	if err != nil {
		return err
	}
	tweets, err := client.SearchFrom(ctx, *query, *queryType, *cursor, *limit)
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %d tweets for %q\n", len(tweets), *query)
	return forward(ctx, setting, registry, toPosts(tweets, forced), *dryRun)
}

func dumpTweets(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("dump-tweets", flag.ExitOnError)
	query := fs.String("query", "", "search query, defaults to every configured persona's tweets")
	queryType := fs.String("type", clients.QueryTypeLatest, "Latest or Top")
	limit := fs.Int("limit", defaultFetchLimit, "maximum number of tweets, 0 fetches everything")
	cursor := fs.String("cursor", "", "starting pagination cursor")
	file := fs.String("file", "", "output path, defaults to dumps/tweets_<timestamp>.json")
	fs.Parse(args)

	if *query == "" {
		registry, err := app.LoadPersonas(setting)
		if err != nil {
			return err
		}
		*query = defaultQuery(registry)
	}
	client, err := clients.NewTwitterClient(setting.TWITTER_API_KEY, "")
	if err != nil {
		return err
	}
	tweets, err := client.SearchFrom(ctx, *query, *queryType, *cursor, *limit)
	if err != nil {
		return err
	}

	dir, key := ".", file_store.DumpKey(time.Now(), "tweets")
	if *file != "" {
		dir, key = filepath.Dir(*file), filepath.Base(*file)
	}
	local, err := file_store.NewLocalFileStore(dir)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(tweets, "", "  ")
	if err != nil {
		return err
	}
	if _, err := local.Store(key, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, "write dump")
	}
	fmt.Printf("Saved %d tweets to %s\n", len(tweets), local.GetUrlFromKey(key))
	return nil
}

func sendFromFile(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("send-from-file", flag.ExitOnError)
	file := fs.String("file", "", "JSON file holding a tweet list or a webhook payload (required)")
	personaID := fs.String("persona", "", "send every tweet as this persona")
	offset := fs.Int("offset", 0, "skip this many tweets")
	limit := fs.Int("limit", 0, "maximum number of tweets to send, 0 sends all")
	dryRun := fs.Bool("dry-run", false, "print what would be sent without sending")
	fs.Parse(args)

	if *file == "" {
		fs.Usage()
		return errors.New("-file is required")
	}
	data, err := ioutil.ReadFile(*file)
	if err != nil {
		return err
	}
	tweets, err := parseTweetsFile(data)
	if err != nil {
		return err
	}
	tweets = window(tweets, *offset, *limit)

	registry, err := app.LoadPersonas(setting)
	if err != nil {
		return err
	}
	forced, err := lookupForcedPersona(registry, *personaID)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d tweets from %s\n", len(tweets), *file)
	return forward(ctx, setting, registry, toPosts(tweets, forced), *dryRun)
}

func sendAdminNotification(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("send-admin-notification", flag.ExitOnError)
	noHeader := fs.Bool("no-header", false, "send without the admin header")
	fs.Parse(args)

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		fs.Usage()
		return errors.New("message is required")
	}
	registry, err := app.LoadPersonas(setting)
	if err != nil {
		return err
	}
	notice, ok := registry.ByID(setting.NOTICE_PERSONA)
	if !ok {
		return errors.Errorf("notice persona %q is not configured", setting.NOTICE_PERSONA)
	}
	sink, err := app.NewSink(setting)
	if err != nil {
		return err
	}
	messageId, err := sink.Publish(ctx, notice.Credential, telegram.FormatAdminNotice(message, !*noHeader), nil)
	if err != nil {
		return err
	}
	fmt.Printf("Admin notification sent as %s (message %d)\n", notice.ID, messageId)
	return nil
}

func showConfig(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	out, err := yaml.Marshal(setting.Redacted())
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	if registry, err := app.LoadPersonas(setting); err != nil {
		fmt.Printf("\nPersonas: %v\n", err)
	} else {
		fmt.Println("\nPersonas:")
		for _, p := range registry.All() {
			fmt.Printf("  - %s (@%s)\n", p.ID, p.Handle)
		}
	}

	fmt.Printf("\nTranslation models: %s\n", setting.TranslationModels())
	registry := translate.NewRegistry(translate.ProviderConfig{
		AnthropicAPIKey: setting.ANTHROPIC_API_KEY,
		OpenAIAPIKey:    setting.OPENAI_API_KEY,
	}, translate.DefaultConstructors())
	fmt.Printf("Available providers: %s\n", strings.Join(registry.Available(), ", "))
	return nil
}

func testErrorLogger(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("test-error-logger", flag.ExitOnError)
	message := fs.String("message", "This is a test error message", "text of the test error")
	fs.Parse(args)

	if setting.TELEGRAM_ERROR_BOT_TOKEN == "" && setting.SLACK_ERROR_WEBHOOK_URL == "" {
		return errors.New("no error hook configured, set TELEGRAM_ERROR_BOT_TOKEN and TELEGRAM_ERROR_CHAT_ID or SLACK_ERROR_WEBHOOK_URL")
	}
	host, _ := os.Hostname()
	Logger.Log.WithField("source", "test-error-logger").Errorf("%s (sent at %s from %s)", *message, time.Now().Format(time.RFC3339), host)
	Logger.CloseErrorHooks()
	fmt.Println("Test error logged, check the configured error channels")
	return nil
}

func testTranslation(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	fs := flag.NewFlagSet("test-translation", flag.ExitOnError)
	text := fs.String("text", sampleText, "text to translate")
	models := fs.String("models", "", "provider:model list overriding TRANSLATION_MODEL")
	fs.Parse(args)

	if *models != "" {
		setting.TRANSLATION_MODEL = *models
	}
	engine, err := app.NewTranslationEngine(setting)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := engine.Translate(ctx, translate.Request{Text: *text})
	if err != nil {
		return err
	}
	fmt.Printf("Model: %s (%s)\n\n%s\n", res.Spec.String(), time.Since(start).Round(time.Millisecond), res.Text)
	return nil
}

func migrateDB(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	s, err := store.Open(ctx, app.StoreConfig(setting))
	if err != nil {
		return err
	}
	defer s.Close()

	applied, err := s.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Printf("Applied %s\n", name)
	}
	return nil
}

func checkSchema(ctx context.Context, setting app_setting.AppSetting, args []string) error {
	s, err := store.Open(ctx, app.StoreConfig(setting))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CheckSchemaVersion(ctx); err != nil {
		return err
	}
	revision, err := store.ExpectedSchemaVersion()
	if err != nil {
		return err
	}
	fmt.Printf("Schema is at expected revision %s\n", revision)
	return nil
}
