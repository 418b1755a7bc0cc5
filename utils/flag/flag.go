/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	WebhookServer = "bluebird_webhook"
	OperatorCli   = "bluebird_cli"
)

var (
	IsDevelopment *bool
	ServiceName   *string
	SettingPath   *string
)

func init() {
	IsDevelopment = flag.Bool("dev", true, "set to true if the current run is for development. default value is true")
	ServiceName = flag.String("service", "", "'bluebird_webhook' or 'bluebird_cli', defaults to the binary's own")
	SettingPath = flag.String("setting", "", "optional path to the yaml app setting, overrides BLUEBIRD_SETTING_PATH")
}

// ParseFlags must only be called from main. Parsing from init would break
// `go test`, whose flags are registered after package init.
func ParseFlags() {
	flag.Parse()
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}
