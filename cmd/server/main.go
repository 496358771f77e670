package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/spf13/cobra"
	"github.com/ytakahashi/todo-api/internal/config"
	"github.com/ytakahashi/todo-api/internal/handlers"
	"github.com/ytakahashi/todo-api/internal/logging"
	"github.com/ytakahashi/todo-api/internal/server"
	"github.com/ytakahashi/todo-api/internal/services"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	configFile string
	host       string
	port       int
	logLevel   string
	backend    string
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "todo-api",
		Short:         "Serve the todo REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	f.register(cmd)
	return cmd
}

func (f *flags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "Path to a TOML config file (default $CONFIG_FILE)")
	cmd.Flags().StringVar(&f.host, "host", "", "Listen host (overrides $HOST)")
	cmd.Flags().IntVar(&f.port, "port", 0, "Listen port (overrides $PORT)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Store backend: memory, sqlite, redis, firestore (overrides $STORE_BACKEND)")
}

// loadConfig layers flags over file and env, then validates the result.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("backend") {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(f.backend))
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	repo, err := services.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	opts := server.Options{
		Repo:    repo,
		Logger:  logger,
		Limiter: cfg.Limiter,
	}
	if cfg.Line.Enabled() {
		bot, err := messaging_api.NewMessagingApiAPI(cfg.Line.ChannelToken)
		if err != nil {
			return fmt.Errorf("failed to create LINE bot client: %w", err)
		}
		opts.Webhook = handlers.NewWebhookHandler(bot, repo, cfg.Line.ChannelSecret, logger)
	}

	e := server.New(ctx, opts)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Warn("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("server starting",
		"addr", cfg.Addr(),
		"backend", cfg.Store.Backend,
		"line", cfg.Line.Enabled(),
		"rate_limit", cfg.Limiter.Enabled(),
	)
	if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	// in-flight requests finish before the store is closed
	<-shutdownDone
	return nil
}
