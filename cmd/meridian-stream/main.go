// Command meridian-stream generates and decodes LLM data streams.
//
//	meridian-stream generate --model lorem:lorem-fast "Tell me a story"
//	meridian-stream generate --model lorem:lorem-fast --format data "Hi" | meridian-stream decode
//	meridian-stream models lorem
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

var (
	logLevel         string
	envFile          string
	capabilitiesFile string
)

var rootCmd = &cobra.Command{
	Use:           "meridian-stream",
	Short:         "Generate and decode LLM data streams",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		slog.SetDefault(newLogger(logLevel))
		if capabilitiesFile != "" {
			if err := llmprovider.LoadCapabilitiesFromFile(capabilitiesFile); err != nil {
				return fmt.Errorf("load capabilities: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with provider API keys")
	rootCmd.PersistentFlags().StringVar(&capabilitiesFile, "capabilities", "", "YAML file overriding embedded model capabilities")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv reads a dotenv file. A missing file is fine; variables already set
// in the environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
