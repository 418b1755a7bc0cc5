package utils

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/lovelive-bluebird/bluebird/utils/dotenv"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

func datadogEnv() string {
	if dotenv.IsProdEnv() {
		return "production"
	}
	return "development"
}

// StartTracer starts the Datadog tracer. The agent address comes from
// DD_AGENT_HOST / DD_TRACE_AGENT_PORT.
func StartTracer(serviceName string) {
	tracer.Start(
		tracer.WithService(serviceName),
		tracer.WithEnv(datadogEnv()),
	)

	Logger.Log.WithFields(
		logrus.Fields{"service": serviceName, "env": datadogEnv()},
	).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	tracer.Stop()
}
