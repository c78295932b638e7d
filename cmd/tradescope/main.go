package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "tradescope",
		Short:        "X Layer wallet trade monitor",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnvFile(envFile)
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before config (missing file is ignored)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream wallet activity and push trade messages",
		RunE:  runMonitor,
	}

	runCmd.Flags().String("ws-url", "wss://xlayerws.okx.com", "node WebSocket URL")
	runCmd.Flags().String("wallets-file", "./wallets.json", "watched wallets file")
	runCmd.Flags().String("wallets-dsn", "", "Postgres DSN for the watched_wallets table (overrides wallets-file)")
	runCmd.Flags().Duration("wallets-poll", 30*time.Second, "Postgres wallet poll interval")
	runCmd.Flags().Duration("wallets-debounce", 300*time.Millisecond, "wallet file change debounce")
	runCmd.Flags().Duration("ping-interval", 20*time.Second, "heartbeat ping interval")
	runCmd.Flags().Duration("backoff-floor", time.Second, "initial reconnect delay")
	runCmd.Flags().Duration("backoff-cap", 30*time.Second, "maximum reconnect delay")
	runCmd.Flags().Duration("call-timeout", 15*time.Second, "eth_call timeout for token metadata")
	runCmd.Flags().Int("max-inflight-receipts", 8, "receipts aggregated concurrently")
	runCmd.Flags().String("native-price", "190", "native coin USD price")
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().String("telegram-chat-id", "", "Telegram chat id")
	runCmd.Flags().Float64("telegram-rate", 4, "Telegram messages per second")
	runCmd.Flags().String("notices-out", "", "optional JSONL file for transfer/swap notices")
	runCmd.Flags().String("metrics-addr", "", "Prometheus listen address, e.g. :9102")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect <tx-hash>",
		Short: "Aggregate one transaction receipt and print the trade messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("ws-url", "wss://xlayerws.okx.com", "node URL (ws, wss, http or https)")
	inspectCmd.Flags().String("wallets-file", "./wallets.json", "watched wallets file")
	inspectCmd.Flags().String("wallets-dsn", "", "Postgres DSN for the watched_wallets table")
	inspectCmd.Flags().StringSlice("wallet", nil, "wallet addresses to inspect instead of the configured set")
	inspectCmd.Flags().String("native-price", "190", "native coin USD price")
	inspectCmd.Flags().Duration("call-timeout", 15*time.Second, "eth_call timeout for token metadata")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	walletsCmd := &cobra.Command{
		Use:   "wallets",
		Short: "Manage the watched wallet set",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Copy the wallets file into the watched_wallets table",
		RunE:  runWalletsImport,
	}
	importCmd.Flags().String("wallets-file", "./wallets.json", "watched wallets file")
	importCmd.Flags().String("wallets-dsn", "", "Postgres DSN")
	importCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the configured wallet set",
		RunE:  runWalletsList,
	}
	listCmd.Flags().String("wallets-file", "./wallets.json", "watched wallets file")
	listCmd.Flags().String("wallets-dsn", "", "Postgres DSN (overrides wallets-file)")
	listCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	walletsCmd.AddCommand(importCmd, listCmd)
	root.AddCommand(walletsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFile lets an external price updater rewrite values between
// restarts; entries override the inherited environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
