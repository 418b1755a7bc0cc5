package utils

import (
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"

	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

// StartProfiler starts the Datadog continuous profiler. A failure only
// disables profiling.
func StartProfiler(serviceName string) {
	if err := profiler.Start(
		profiler.WithService(serviceName),
		profiler.WithEnv(datadogEnv()),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	); err != nil {
		Logger.Log.WithError(err).Warn("profiler disabled")
		return
	}
	Logger.Log.Info("profiler initialized")
}

// Stop profiler, OK to be closed multiple times
func CloseProfiler() {
	profiler.Stop()
}
