package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fechamento/internal/common"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "fechamento",
		Short: "Daily back-office closing pipeline",
		Long: `fechamento orchestrates the daily closing cycle for every active
client: capture transactions from source systems, classify them, route
ambiguous or high-stakes cases to human review, sync the rest to the
client's ERP, and notify stakeholders.`,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/fechamento/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(clientsCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received interrupt signal, shutting down gracefully")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "fechamento"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FECHAMENTO")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	common.SetupLogger(
		common.ParseLogLevel(viper.GetString("logging.level")),
		viper.GetString("logging.format"))
	return nil
}

func setDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "fechamento")

	viper.SetDefault("database.path", filepath.Join(dataDir, "fechamento.db"))
	viper.SetDefault("capture.dir", filepath.Join(dataDir, "captures"))
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("broker.buffer_size", 256)
	viper.SetDefault("broker.workers", 4)
	viper.SetDefault("broker.max_deliveries", 3)
	viper.SetDefault("retry.max_attempts", 2)
	viper.SetDefault("retry.delay", "500ms")
	viper.SetDefault("cycle.client_concurrency", 4)
	viper.SetDefault("cycle.max_duration", "2h")
	viper.SetDefault("stage.transaction_concurrency", 8)
	viper.SetDefault("stage.confidence_threshold", 0.85)
	viper.SetDefault("stage.authorization_threshold", "10000")
	viper.SetDefault("reconcile.match_window", "72h")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("fechamento %s\n", version)
		},
	}
}
