package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/lovelive-bluebird/bluebird/app"
	"github.com/lovelive-bluebird/bluebird/app_setting"
	"github.com/lovelive-bluebird/bluebird/utils"
	"github.com/lovelive-bluebird/bluebird/utils/dotenv"
	Flag "github.com/lovelive-bluebird/bluebird/utils/flag"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	dotenv.LoadDotEnvs()
	Flag.ParseFlags()
	if *Flag.ServiceName == "" {
		*Flag.ServiceName = Flag.WebhookServer
	}
	Logger.InitLogger()

	err := run()
	if err != nil {
		Logger.Log.WithError(err).Error("webhook server exited")
	}
	Logger.CloseErrorHooks()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	setting, err := app_setting.Load(*Flag.SettingPath)
	if err != nil {
		return err
	}
	Logger.AddErrorHooks(app.ErrorHooks(setting))

	if setting.ENABLE_DATADOG_TRACER {
		utils.StartTracer(*Flag.ServiceName)
		defer utils.CloseTracer()
	}
	if setting.ENABLE_DATADOG_PROFILER {
		utils.StartProfiler(*Flag.ServiceName)
		defer utils.CloseProfiler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, setting, *Flag.ServiceName)
	if err != nil {
		return err
	}
	defer a.Close()

	if !*Flag.IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(EnvoyForwardedFor())
	router.Use(cors.Default())
	if setting.ENABLE_DATADOG_TRACER {
		router.Use(gintrace.Middleware(*Flag.ServiceName))
	}
	AddRoutes(router, a)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", setting.PORT),
		Handler: router,
		// Batches are processed synchronously within the request.
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	Logger.Log.WithField("port", setting.PORT).Info("===== Webhook Server Started =====")

	select {
	case sig := <-sigCh:
		Logger.Log.WithField("signal", sig.String()).Info("received signal, shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		Logger.Log.WithError(err).Warn("error shutting down http server")
	}
	return nil
}
