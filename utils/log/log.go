package log

import (
	"os"
	"time"

	ddhook "github.com/bin3377/logrus-datadog-hook"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/utils/dotenv"
	"github.com/lovelive-bluebird/bluebird/utils/flag"
)

const (
	datadogUSHost    = "http-intake.logs.datadoghq.com"
	syncFrequencySec = 30
	syncRetry        = 3
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry

	telegramHook *TelegramHook
)

// This init function is only for testing cases, where the entry point is not
// main function. Unit test will fail with nil pointer dereference if we don't
// init here.
func init() {
	InitLogger()
}

func InitLogger() {
	logger = logrus.New()

	if apiKey := os.Getenv("DD_API_KEY"); dotenv.IsProdEnv() && apiKey != "" {
		hook := ddhook.NewHook(
			datadogUSHost,
			apiKey,
			syncFrequencySec*time.Second,
			syncRetry,
			logrus.InfoLevel,
			&logrus.JSONFormatter{},
			ddhook.Options{},
		)
		logger.Hooks.Add(hook)
	}

	// Also send log to stderr, without json formatter for better readability
	logger.SetOutput(os.Stderr)

	Log = logger.WithFields(
		logrus.Fields{"service": *flag.ServiceName, "is_development": !dotenv.IsProdEnv()},
	)
}

// ErrorHookConfig names the out-of-band destinations for ERROR and above.
// Empty fields disable the corresponding hook.
type ErrorHookConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	SlackWebhookURL  string
}

// AddErrorHooks attaches the error forwarding hooks to the global logger.
// Failing to build a hook is reported and otherwise ignored, the process
// keeps running with stderr logging only.
func AddErrorHooks(cfg ErrorHookConfig) {
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		hook, err := NewTelegramHook(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			Log.WithError(err).Warn("telegram error hook disabled")
		} else {
			logger.Hooks.Add(hook)
			telegramHook = hook
			Log.Info("telegram error hook enabled")
		}
	}
	if cfg.SlackWebhookURL != "" {
		logger.Hooks.Add(NewSlackHook(cfg.SlackWebhookURL))
		Log.Info("slack error hook enabled")
	}
}

// CloseErrorHooks flushes alerts still queued by the error hooks. Call it
// before the process exits.
func CloseErrorHooks() {
	if telegramHook != nil {
		telegramHook.Close()
	}
}
