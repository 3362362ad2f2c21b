// Package cli holds the startup steps shared by cmd/conti and
// cmd/conti-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"conti/internal/backend"
	"conti/internal/config"
	clog "conti/internal/log"
)

// LoadEnvFile loads .env for local development. Missing files are ignored.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL/LOG_FORMAT and makes
// it the slog default.
func SetupLogger(cfg *config.Config, component string) *clog.Logger {
	logger := clog.New(clog.Config{
		Level:     clog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	clog.SetDefault(logger)
	return logger
}

// LoadConfig loads the environment, validates it and returns the config
// together with a logger. Exits the process on invalid configuration.
func LoadConfig(component string) (*config.Config, *clog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", clog.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the configured store. adjust may tweak the backend config
// before the store is created. Exits the process on failure.
func InitBackend(ctx context.Context, logger *clog.Logger, cfg *config.Config, adjust func(*backend.Config)) (backend.Factory, backend.Config, *backend.BackendResult) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", clog.FieldError, err)
		os.Exit(1)
	}
	if adjust != nil {
		adjust(&backendCfg)
	}

	factory := backend.NewFactory(logger.WithComponent(clog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", clog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return factory, backendCfg, res
}

// Close runs the backend cleanup, logging failures.
func Close(logger *clog.Logger, res *backend.BackendResult) {
	if res == nil || res.Cleanup == nil {
		return
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", clog.FieldError, err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
