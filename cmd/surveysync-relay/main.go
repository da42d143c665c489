package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldworkshq/surveysync/internal/config"
	"github.com/fieldworkshq/surveysync/internal/logging"
	"github.com/fieldworkshq/surveysync/internal/metrics"
	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/fieldworkshq/surveysync/internal/server"
	"github.com/fieldworkshq/surveysync/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "surveysync-relay",
		Short: "Survey synchronization relay server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Snapshot storage driver (json, sqlite)")
	cmd.PersistentFlags().String("storage-path", defaults.GetString("storage.path"), "Snapshot storage path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "storage.path", "storage-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newSnapshotBackend(cfg config.RelayConfig, logger *zap.Logger) (store.SnapshotStore, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverSQLite:
		db, err := store.OpenSQLite(cfg.StoragePath, logger)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(db)
	default:
		return store.NewJSONFileStore(cfg.StoragePath, logger)
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.LoadRelay(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	collectors := metrics.New()

	backend, err := newSnapshotBackend(appConfig, logger)
	if err != nil {
		return fmt.Errorf("open snapshot storage: %w", err)
	}

	stateStore, err := store.New(store.Config{
		Backend: backend,
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}
	stateStore.Load()

	mutationRouter, err := relay.NewRouter(relay.RouterConfig{
		Store:   stateStore,
		Hub:     relay.NewHub(collectors),
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Router:  mutationRouter,
		Store:   stateStore,
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_driver", appConfig.StorageDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
