package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/lovelive-bluebird/bluebird/app"
	"github.com/lovelive-bluebird/bluebird/app_setting"
	"github.com/lovelive-bluebird/bluebird/utils/dotenv"
	Flag "github.com/lovelive-bluebird/bluebird/utils/flag"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

type command struct {
	summary string
	run     func(ctx context.Context, setting app_setting.AppSetting, args []string) error
}

var commands = map[string]command{
	"fetch-and-send":          {"Fetch tweets from twitterapi.io and forward them to Telegram", fetchAndSend},
	"dump-tweets":             {"Fetch tweets and save them to a JSON file", dumpTweets},
	"send-from-file":          {"Send tweets from a JSON file to Telegram", sendFromFile},
	"send-admin-notification": {"Send an admin notification as the notice persona", sendAdminNotification},
	"show-config":             {"Display the current configuration, secrets redacted", showConfig},
	"test-error-logger":       {"Send a test message through the error log hooks", testErrorLogger},
	"test-translation":        {"Translate a sample text through the configured models", testTranslation},
	"migrate-db":              {"Apply pending database migrations", migrateDB},
	"check-schema":            {"Verify the database schema revision", checkSchema},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: bluebird_cli [-setting path] <command> [options]\n\nAvailable commands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-24s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nFor help on a specific command, run:\n  bluebird_cli <command> -h\n")
}

func main() {
	dotenv.LoadDotEnvs()
	Flag.ParseFlags()
	if *Flag.ServiceName == "" {
		*Flag.ServiceName = Flag.OperatorCli
	}
	Logger.InitLogger()

	args := Flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(2)
	}

	setting, err := app_setting.Load(*Flag.SettingPath)
	if err != nil {
		Logger.Log.WithError(err).Fatal("fail to load setting")
	}
	Logger.AddErrorHooks(app.ErrorHooks(setting))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cmd.run(ctx, setting, args[1:])
	Logger.CloseErrorHooks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		stop()
		os.Exit(1)
	}
}
