package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"tradeScope/internal/dex"
	"tradeScope/internal/flow"
	"tradeScope/internal/metrics"
	"tradeScope/internal/model"
	"tradeScope/internal/notify"
	"tradeScope/internal/registry"
	"tradeScope/internal/storage"
	"tradeScope/internal/wsrpc"
)

const DefaultMaxInflightReceipts = 8

// Config holds runtime settings for the monitor.
type Config struct {
	// MaxInflightReceipts bounds receipts being aggregated at once.
	MaxInflightReceipts int64
}

// Wallets exposes the current watched set.
type Wallets interface {
	Current() *registry.WalletSet
}

// Monitor reacts to session events: it subscribes on every open, streams
// notices for log pushes and turns receipts of touched transactions into
// trade messages.
type Monitor struct {
	cfg        Config
	mux        *wsrpc.Mux
	wallets    Wallets
	aggregator *flow.Aggregator
	sink       notify.Sink
	notices    storage.NoticeStore
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// seen is only touched from the client loop.
	seen    map[string]struct{}
	workers *semaphore.Weighted
	wg      sync.WaitGroup
	now     func() time.Time
}

// New builds a Monitor. notices may be nil.
func New(
	cfg Config,
	mux *wsrpc.Mux,
	wallets Wallets,
	aggregator *flow.Aggregator,
	sink notify.Sink,
	notices storage.NoticeStore,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxInflightReceipts <= 0 {
		cfg.MaxInflightReceipts = DefaultMaxInflightReceipts
	}
	return &Monitor{
		cfg:        cfg,
		mux:        mux,
		wallets:    wallets,
		aggregator: aggregator,
		sink:       sink,
		notices:    notices,
		logger:     logger,
		metrics:    m,
		seen:       make(map[string]struct{}),
		workers:    semaphore.NewWeighted(cfg.MaxInflightReceipts),
		now:        time.Now,
	}
}

type logFilter struct {
	Topics []interface{} `json:"topics"`
}

// OnOpen subscribes to new heads and, when wallets are watched, to the four
// wallet log filters.
func (m *Monitor) OnOpen(ctx context.Context) {
	m.seen = make(map[string]struct{})

	set := m.wallets.Current()
	m.subscribe(wsrpc.Tag{Kind: wsrpc.TagHeads}, "newHeads")
	if set.Len() == 0 {
		m.logger.Warn("no watched wallets, only heads subscribed")
		return
	}

	walletTopics := set.Topics()
	transfer := dex.TopicTransfer.Hex()
	swap := dex.TopicSwapV2.Hex()
	m.subscribe(wsrpc.Tag{Kind: wsrpc.TagTransferIn}, "logs", logFilter{Topics: []interface{}{transfer, nil, walletTopics}})
	m.subscribe(wsrpc.Tag{Kind: wsrpc.TagTransferOut}, "logs", logFilter{Topics: []interface{}{transfer, walletTopics, nil}})
	m.subscribe(wsrpc.Tag{Kind: wsrpc.TagSwapBySender}, "logs", logFilter{Topics: []interface{}{swap, walletTopics, nil}})
	m.subscribe(wsrpc.Tag{Kind: wsrpc.TagSwapByRecipient}, "logs", logFilter{Topics: []interface{}{swap, nil, walletTopics}})

	m.logger.Info("subscriptions requested", zap.Int("wallets", set.Len()), zap.String("watching", set.Describe()))
}

func (m *Monitor) subscribe(tag wsrpc.Tag, params ...interface{}) {
	if _, err := m.mux.Subscribe(tag, params...); err != nil {
		m.logger.Error("subscribe failed", zap.Stringer("filter", tag), zap.Error(err))
	}
}

// OnFrame dispatches one inbound frame.
func (m *Monitor) OnFrame(ctx context.Context, data []byte) {
	ev, err := m.mux.Dispatch(data)
	if err != nil {
		m.metrics.DroppedFrame()
		if errors.Is(err, wsrpc.ErrUnknownSubscription) {
			m.logger.Debug("push for unbound subscription dropped", zap.Error(err))
		} else {
			m.logger.Warn("frame dropped", zap.Error(err))
		}
		return
	}

	switch ev.Kind {
	case wsrpc.EventSubscribed:
		m.logger.Info("subscribed", zap.Stringer("filter", ev.Tag), zap.String("id", ev.SubscriptionID))
	case wsrpc.EventPush:
		m.metrics.Push(ev.Tag.String())
		m.handlePush(ev)
	case wsrpc.EventReceipt:
		m.handleReceipt(ctx, ev)
	case wsrpc.EventRPCError:
		m.logger.Warn("rpc error", zap.Stringer("request", ev.Tag), zap.String("tx", ev.TxHash), zap.Error(ev.Err))
	}
}

type head struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

func (m *Monitor) handlePush(ev wsrpc.Event) {
	if ev.Tag.Kind == wsrpc.TagHeads {
		var h head
		if err := json.Unmarshal(ev.Result, &h); err != nil {
			m.metrics.DroppedFrame()
			m.logger.Warn("bad head push", zap.Error(err))
			return
		}
		number := model.ParseQuantity(h.Number)
		m.metrics.HeadBlock(number)
		m.logger.Debug("new head", zap.Uint64("block", number), zap.String("hash", h.Hash))
		return
	}

	var log model.RawLog
	if err := json.Unmarshal(ev.Result, &log); err != nil {
		m.metrics.DroppedFrame()
		m.logger.Warn("bad log push", zap.Stringer("filter", ev.Tag), zap.Error(err))
		return
	}

	switch {
	case ev.Tag.IsTransfer():
		m.onTransfer(ev.Tag, log)
	case ev.Tag.IsSwap():
		m.onSwap(ev.Tag, log)
	}
}

func (m *Monitor) onTransfer(tag wsrpc.Tag, log model.RawLog) {
	transfer, ok := dex.DecodeTransfer(log)
	if !ok {
		m.logger.Debug("undecodable transfer push", zap.String("tx", log.TransactionHash))
		return
	}
	m.emit(model.Notice{
		Kind:        model.NoticeTransfer,
		Filter:      tag.String(),
		BlockNumber: log.Block(),
		TxHash:      log.TransactionHash,
		Address:     transfer.Token,
		From:        transfer.From,
		To:          transfer.To,
		Amounts:     map[string]string{"value": transfer.Value.Dec()},
		Removed:     log.Removed,
	})

	if log.Removed || log.TransactionHash == "" {
		return
	}
	if _, ok := m.seen[log.TransactionHash]; ok {
		return
	}
	m.seen[log.TransactionHash] = struct{}{}
	if _, err := m.mux.RequestReceipt(log.TransactionHash); err != nil {
		m.logger.Warn("receipt request failed", zap.String("tx", log.TransactionHash), zap.Error(err))
		return
	}
	m.metrics.ReceiptRequested()
}

func (m *Monitor) onSwap(tag wsrpc.Tag, log model.RawLog) {
	swap, ok := dex.DecodeSwapV2(log)
	if !ok {
		m.logger.Debug("undecodable swap push", zap.String("tx", log.TransactionHash))
		return
	}
	m.emit(model.Notice{
		Kind:        model.NoticeSwapV2,
		Filter:      tag.String(),
		BlockNumber: log.Block(),
		TxHash:      log.TransactionHash,
		Address:     swap.Pool,
		From:        swap.Sender,
		To:          swap.To,
		Amounts: map[string]string{
			"amount0In":  swap.Amount0In.Dec(),
			"amount1In":  swap.Amount1In.Dec(),
			"amount0Out": swap.Amount0Out.Dec(),
			"amount1Out": swap.Amount1Out.Dec(),
		},
		Removed: log.Removed,
	})
}

func (m *Monitor) emit(notice model.Notice) {
	notice.ObservedAt = m.now().UTC().Format(time.RFC3339Nano)
	m.logger.Info("notice",
		zap.String("kind", notice.Kind),
		zap.String("filter", notice.Filter),
		zap.Uint64("block", notice.BlockNumber),
		zap.String("tx", notice.TxHash),
		zap.String("address", notice.Address),
		zap.String("from", notice.From),
		zap.String("to", notice.To),
		zap.Any("amounts", notice.Amounts),
		zap.Bool("removed", notice.Removed),
	)
	if m.notices == nil {
		return
	}
	if err := m.notices.PutNotices([]model.Notice{notice}); err != nil {
		m.logger.Warn("store notice failed", zap.Error(err))
	}
}

// handleReceipt aggregates off the client loop: metadata lookups wait on
// replies that only the loop can dispatch.
func (m *Monitor) handleReceipt(ctx context.Context, ev wsrpc.Event) {
	var receipt model.Receipt
	if err := json.Unmarshal(ev.Result, &receipt); err != nil {
		m.metrics.DroppedFrame()
		m.logger.Warn("bad receipt", zap.String("tx", ev.TxHash), zap.Error(err))
		return
	}
	set := m.wallets.Current()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.workers.Acquire(ctx, 1); err != nil {
			m.logger.Debug("receipt abandoned", zap.String("tx", ev.TxHash), zap.Error(err))
			return
		}
		defer m.workers.Release(1)
		m.process(ctx, receipt, ev.TxHash, set)
	}()
}

func (m *Monitor) process(ctx context.Context, receipt model.Receipt, txHash string, set *registry.WalletSet) {
	defer m.metrics.ReceiptProcessed()

	records := m.aggregator.Aggregate(ctx, receipt, txHash, set)
	for _, record := range records {
		m.logger.Info("trade",
			zap.String("wallet", record.Wallet),
			zap.String("label", record.Label),
			zap.String("action", string(record.Action)),
			zap.String("focus", record.Focus),
			zap.Uint64("block", record.BlockNumber),
			zap.String("tx", record.TxHash),
			zap.String("price_source", record.PriceSource.String()),
		)
		m.sink.Send(m.aggregator.Format(record), record.TxHash)
	}
}

// Wait blocks until in-flight receipts are done.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Reconnector replaces the live socket.
type Reconnector interface {
	Reconnect(reason string)
}

// FollowChanges reconnects whenever the watched set changes so that the
// next session subscribes with the new topics.
func FollowChanges(ctx context.Context, changes <-chan struct{}, client Reconnector) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			client.Reconnect("watched wallets changed")
		}
	}
}
