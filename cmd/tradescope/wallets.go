package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeScope/internal/config"
	"tradeScope/internal/registry"
	"tradeScope/internal/storage/postgres"
)

func runWalletsImport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.WalletsFile == "" {
		return fmt.Errorf("wallets-file is required")
	}
	if cfg.WalletsDSN == "" {
		return fmt.Errorf("wallets-dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallets, err := registry.FileSource{Path: cfg.WalletsFile}.Load(ctx)
	if err != nil {
		return err
	}
	set := registry.NewWalletSet(wallets)
	if skipped := len(wallets) - set.Len(); skipped > 0 {
		logger.Warn("entries skipped (invalid or duplicate)", zap.Int("skipped", skipped))
	}

	store, err := postgres.NewStore(ctx, cfg.WalletsDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := store.UpsertWallets(ctx, set.Wallets()); err != nil {
		return fmt.Errorf("upsert wallets: %w", err)
	}

	logger.Info("wallets imported", zap.Int("count", set.Len()), zap.String("from", cfg.WalletsFile))
	return nil
}

func runWalletsList(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, _, closeSource, err := walletSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	wallets, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, w := range registry.NewWalletSet(wallets).Wallets() {
		fmt.Fprintf(out, "%s\t%s\n", w.Address, w.Label)
	}
	return nil
}
