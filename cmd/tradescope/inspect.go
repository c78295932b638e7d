package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeScope/internal/chain"
	"tradeScope/internal/config"
	"tradeScope/internal/dex"
	"tradeScope/internal/flow"
	"tradeScope/internal/model"
	"tradeScope/internal/registry"
)

func runInspect(cmd *cobra.Command, args []string) error {
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

	if cfg.WSURL == "" {
		return fmt.Errorf("ws-url is required")
	}
	price, err := cfg.NativePriceMicros()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set, err := inspectWallets(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		return fmt.Errorf("no wallets to inspect")
	}

	client, err := chain.NewClient(ctx, cfg.WSURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	receipt, err := client.Receipt(ctx, args[0])
	if err != nil {
		return err
	}

	resolver := dex.NewResolver(client, dex.ResolverConfig{
		WrappedNative:   common.HexToAddress(cfg.WrappedNative),
		WrappedSymbol:   cfg.WrappedSymbol,
		WrappedDecimals: uint8(cfg.NativeDecimals),
		CallTimeout:     cfg.CallTimeout,
	}, logger, nil)
	aggregator := flow.NewAggregator(flow.Config{
		WrappedNative:     cfg.WrappedNative,
		NativeSymbol:      cfg.NativeSymbol,
		NativeDecimals:    uint8(cfg.NativeDecimals),
		NativePriceMicros: price,
		ChainName:         cfg.ChainName,
	}, resolver, logger, nil)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tx %s block %d logs %d", receipt.TransactionHash, receipt.Block(), len(receipt.Logs))
	if ts, err := client.BlockTimestamp(ctx, receipt.Block()); err == nil {
		fmt.Fprintf(out, " at %s", time.Unix(int64(ts), 0).UTC().Format(time.RFC3339))
	} else {
		logger.Warn("block timestamp unavailable", zap.Error(err))
	}
	fmt.Fprintln(out)

	records := aggregator.Aggregate(ctx, receipt, "", set)
	if len(records) == 0 {
		fmt.Fprintln(out, "no net change for watched wallets")
		return nil
	}
	for _, record := range records {
		fmt.Fprintln(out)
		fmt.Fprintln(out, aggregator.Format(record))
	}
	return nil
}

func inspectWallets(ctx context.Context, cmd *cobra.Command, cfg config.Config) (*registry.WalletSet, error) {
	explicit, _ := cmd.Flags().GetStringSlice("wallet")
	if len(explicit) > 0 {
		wallets := make([]model.Wallet, 0, len(explicit))
		for _, addr := range explicit {
			wallets = append(wallets, model.Wallet{Address: addr})
		}
		return registry.NewWalletSet(wallets), nil
	}

	source, _, closeSource, err := walletSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSource()
	wallets, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	return registry.NewWalletSet(wallets), nil
}
