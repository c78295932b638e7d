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

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradeScope/internal/config"
	"tradeScope/internal/dex"
	"tradeScope/internal/flow"
	"tradeScope/internal/metrics"
	"tradeScope/internal/monitor"
	"tradeScope/internal/notify"
	"tradeScope/internal/registry"
	"tradeScope/internal/storage"
	"tradeScope/internal/storage/postgres"
	"tradeScope/internal/wsrpc"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
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

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	price, err := cfg.NativePriceMicros()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	source, opts, closeSource, err := walletSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	wallets := registry.New(source, opts, logger.Named("registry"))
	if _, err := wallets.Refresh(ctx); err != nil {
		logger.Warn("initial wallet load failed, starting with an empty set", zap.Error(err))
	}

	mux := wsrpc.NewMux(logger.Named("mux"))
	resolver := dex.NewResolver(monitor.NewMuxCaller(mux), dex.ResolverConfig{
		WrappedNative:   common.HexToAddress(cfg.WrappedNative),
		WrappedSymbol:   cfg.WrappedSymbol,
		WrappedDecimals: uint8(cfg.NativeDecimals),
		CallTimeout:     cfg.CallTimeout,
	}, logger.Named("resolver"), m)
	aggregator := flow.NewAggregator(flow.Config{
		WrappedNative:     cfg.WrappedNative,
		NativeSymbol:      cfg.NativeSymbol,
		NativeDecimals:    uint8(cfg.NativeDecimals),
		NativePriceMicros: price,
		ChainName:         cfg.ChainName,
	}, resolver, logger.Named("flow"), m)

	g, gctx := errgroup.WithContext(ctx)

	var sink notify.Sink
	if cfg.TelegramEnabled() {
		telegram := notify.NewTelegramSink(notify.TelegramConfig{
			Token:         cfg.TelegramToken,
			ChatID:        cfg.TelegramChatID,
			ExplorerTxURL: cfg.ExplorerTxURL,
			Rate:          cfg.TelegramRate,
		}, logger.Named("telegram"), m)
		g.Go(func() error { return telegram.Run(gctx) })
		sink = telegram
	} else {
		logger.Info("telegram disabled (missing token or chat id), trades go to the log")
		sink = notify.NewLogSink(logger.Named("trades"))
	}

	var notices storage.NoticeStore
	if cfg.NoticesOut != "" {
		noticeLog, err := storage.OpenNoticeLog(cfg.NoticesOut)
		if err != nil {
			return err
		}
		defer func() {
			if err := noticeLog.Close(); err != nil {
				logger.Warn("close notice log", zap.String("path", noticeLog.Path()), zap.Error(err))
			}
		}()
		notices = noticeLog
	}

	mon := monitor.New(monitor.Config{
		MaxInflightReceipts: int64(cfg.MaxInflightReceipts),
	}, mux, wallets, aggregator, sink, notices, logger.Named("monitor"), m)

	client := wsrpc.NewClient(wsrpc.Config{
		URL:          cfg.WSURL,
		PingInterval: cfg.PingInterval,
		BackoffFloor: cfg.BackoffFloor,
		BackoffCap:   cfg.BackoffCap,
	}, mux, mon, logger.Named("ws"), m)

	logger.Info("tradescope start",
		zap.String("ws_url", cfg.WSURL),
		zap.String("wallets_file", cfg.WalletsFile),
		zap.Bool("wallets_postgres", cfg.WalletsDSN != ""),
		zap.Int("wallets", wallets.Current().Len()),
		zap.String("native_price", cfg.NativePrice),
		zap.Bool("telegram", cfg.TelegramEnabled()),
		zap.String("notices_out", cfg.NoticesOut),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g.Go(func() error { return wallets.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		monitor.FollowChanges(gctx, wallets.Changes(), client)
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, promRegistry, logger) })
	}

	err = g.Wait()
	mon.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("tradescope stopped")
		return nil
	}
	return err
}

func walletSource(ctx context.Context, cfg config.Config) (registry.Source, registry.Options, func(), error) {
	opts := registry.Options{Debounce: cfg.WalletsDebounce}
	if cfg.WalletsDSN == "" {
		return registry.FileSource{Path: cfg.WalletsFile}, opts, func() {}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.WalletsDSN)
	if err != nil {
		return nil, opts, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, opts, nil, fmt.Errorf("ensure schema: %w", err)
	}
	opts.Poll = cfg.WalletsPoll
	return registry.PostgresSource{Store: store}, opts, store.Close, nil
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("metrics listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
