package utils

import (
	"github.com/DataDog/datadog-go/statsd"

	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const defaultStatsdAddr = "127.0.0.1:8125"

// NewDogStatsdClient returns a client for the local Datadog agent. When the
// client cannot be created a no-op client is returned so callers never deal
// with a nil metrics sink.
func NewDogStatsdClient(addr string, serviceName string) statsd.ClientInterface {
	if addr == "" {
		addr = defaultStatsdAddr
	}
	client, err := statsd.New(addr,
		statsd.WithTags([]string{"service:" + serviceName, "env:" + datadogEnv()}),
	)
	if err != nil {
		Logger.Log.WithError(err).Warn("statsd disabled")
		return &statsd.NoOpClient{}
	}
	return client
}
