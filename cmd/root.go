// Package cmd holds the command line entry points.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camden-git/entomobackend/config"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	v := config.NewViper()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "entomo",
		Short:         "Annotation editing backend for insect life-stage detections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a yaml/json/toml config file")
	rootCmd.PersistentFlags().String("database-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	bindFlag(v, rootCmd, "database_path", "database-path")
	bindFlag(v, rootCmd, "log_level", "log-level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file loaded", "error", err)
		}
		if configFile != "" {
			if err := config.ReadConfigFile(v, configFile); err != nil {
				return err
			}
		}
		return nil
	}

	rootCmd.AddCommand(
		serveCommand(v),
		migrateCommand(v),
		shortcutsCommand(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bindFlag lets a flag override the config key when it is set explicitly.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

// loadConfig resolves the configuration and installs the default logger.
func loadConfig(v *viper.Viper) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)
	return cfg, log, nil
}
