package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botfleet/core/bootstrap"
	coreconfig "botfleet/core/config"
	"botfleet/core/logger"
)

// Options describe how to load configuration and bootstrap the application.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(opts bootstrap.Options) (*bootstrap.App, error)

	ShutdownLogger func() error
}

// Run loads configuration, bootstraps the application, and serves webhooks
// until the process receives an interrupt.
func Run(opts Options) error {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	startedAt := time.Now()
	app, err := boot(bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error(logger.Background(), "app", "close.fail",
				slog.String("error", err.Error()),
			)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "app", "ready",
		slog.String("addr", app.Server.Addr()),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = app.Server.Run(ctx)
	logger.Info(logger.Background(), "app", "shutdown")
	return err
}
