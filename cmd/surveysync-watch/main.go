// surveysync-watch tails a relay's survey collection from the terminal:
// it connects, mirrors the shared state, and prints the aggregate counts
// whenever a change event arrives.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldworkshq/surveysync/internal/client"
	"github.com/fieldworkshq/surveysync/internal/config"
	"github.com/fieldworkshq/surveysync/internal/logging"
	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "surveysync-watch",
		Short: "Follow a survey relay from the terminal",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
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
	cmd.PersistentFlags().String("relay-url", defaults.GetString("relay.url"), "Relay WebSocket URL")
	cmd.PersistentFlags().Duration("reconnect-base-delay", defaults.GetDuration("reconnect.base_delay"), "Reconnect backoff base delay")
	cmd.PersistentFlags().Int("reconnect-max-attempts", defaults.GetInt("reconnect.max_attempts"), "Consecutive reconnect attempts before giving up")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "relay.url", "relay-url")
	bindFlag(cmd, "reconnect.base_delay", "reconnect-base-delay")
	bindFlag(cmd, "reconnect.max_attempts", "reconnect-max-attempts")
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

func runWatch(ctx context.Context) error {
	appConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	session := client.NewSession(logger)
	session.Observe(func(event relay.Event) {
		stats := session.Stats()
		logger.Info("collection updated",
			zap.String("event", event.Type),
			zap.Int("total", stats.Total),
			zap.Int("pending", stats.Pending),
			zap.Int("in_progress", stats.InProgress),
			zap.Int("completed", stats.Completed),
			zap.Int("cancelled", stats.Cancelled))
	})

	reconnector, err := client.NewReconnector(client.ReconnectorConfig{
		Dial: func(ctx context.Context) (client.Transport, error) {
			return client.DialWebSocket(ctx, appConfig.RelayURL, logger)
		},
		BaseDelay:   appConfig.ReconnectBaseDelay,
		MaxAttempts: appConfig.ReconnectMaxAttempts,
		Logger:      logger,
		OnStateChange: func(state client.ConnState) {
			logger.Info("connection state changed", zap.String("state", string(state)))
		},
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = reconnector.Run(signalCtx, session)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, client.ErrReconnectFailed) {
		logger.Error("relay unreachable, giving up", zap.String("url", appConfig.RelayURL))
	}
	return err
}
