package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/duelhall/mambot/mambot"
	"github.com/duelhall/mambot/mambot/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mamctl",
	Short:         "operations tool for the MamBot economy core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")
}

// setupApp loads configuration and connects everything the subcommands need.
// The caller must Close the returned app.
func setupApp(ctx context.Context) (*mambot.App, error) {
	cfg, err := mambot.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	a := mambot.New(*cfg, "mamctl", "cli")
	if err := a.Setup(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
