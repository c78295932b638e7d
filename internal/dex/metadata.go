package dex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tradeScope/internal/metrics"
	"tradeScope/internal/model"
)

// Caller performs a read-only contract call against the latest block.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	WrappedNative   common.Address
	WrappedSymbol   string
	WrappedDecimals uint8
	CallTimeout     time.Duration
}

// Resolver resolves symbol and decimals for tokens. Results are cached
// forever and concurrent lookups for one address share a single fetch.
type Resolver struct {
	caller  Caller
	cfg     ResolverConfig
	cache   *TokenMetaCache
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewResolver(caller Caller, cfg ResolverConfig, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WrappedSymbol == "" {
		cfg.WrappedSymbol = "WOKB"
	}
	if cfg.WrappedDecimals == 0 {
		cfg.WrappedDecimals = DefaultDecimals
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Resolver{
		caller:  caller,
		cfg:     cfg,
		cache:   NewTokenMetaCache(),
		logger:  logger,
		metrics: m,
	}
}

// Resolve returns metadata for token. Transport failures are returned and
// not cached, so a later call retries.
func (r *Resolver) Resolve(ctx context.Context, token string) (model.TokenMeta, error) {
	addr := common.HexToAddress(token)
	key := strings.ToLower(addr.Hex())
	if addr == r.cfg.WrappedNative {
		r.metrics.MetadataLookup("constant")
		return model.TokenMeta{Address: key, Symbol: r.cfg.WrappedSymbol, Decimals: r.cfg.WrappedDecimals}, nil
	}
	if meta, ok := r.cache.Get(addr); ok {
		r.metrics.MetadataLookup("cached")
		return meta, nil
	}

	value, err, shared := r.group.Do(key, func() (interface{}, error) {
		if meta, ok := r.cache.Get(addr); ok {
			return meta, nil
		}
		// The fetch is shared by every joiner, so it must outlive the
		// context of whichever caller started it.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CallTimeout)
		defer cancel()
		meta, err := r.fetch(callCtx, addr)
		if err != nil {
			return nil, err
		}
		r.cache.Set(addr, meta)
		return meta, nil
	})
	if err != nil {
		r.metrics.MetadataLookup("error")
		return model.TokenMeta{}, fmt.Errorf("resolve %s: %w", key, err)
	}
	if shared {
		r.metrics.MetadataLookup("joined")
	} else {
		r.metrics.MetadataLookup("fetched")
	}
	return value.(model.TokenMeta), nil
}

func (r *Resolver) fetch(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	symbolData, err := SymbolCallData()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("pack symbol: %w", err)
	}
	decimalsData, err := DecimalsCallData()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("pack decimals: %w", err)
	}

	var symbolRet, decimalsRet []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ret, err := r.caller.CallContract(gctx, token, symbolData)
		if err != nil {
			return fmt.Errorf("call symbol: %w", err)
		}
		symbolRet = ret
		return nil
	})
	g.Go(func() error {
		ret, err := r.caller.CallContract(gctx, token, decimalsData)
		if err != nil {
			return fmt.Errorf("call decimals: %w", err)
		}
		decimalsRet = ret
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.TokenMeta{}, err
	}

	addr := strings.ToLower(token.Hex())
	symbol := DecodeSymbol(symbolRet)
	if symbol == "" {
		symbol = strings.ToUpper(addr[:6])
		r.logger.Debug("symbol undecodable, using address prefix", zap.String("token", addr))
	}
	return model.TokenMeta{
		Address:  addr,
		Symbol:   symbol,
		Decimals: DecodeDecimals(decimalsRet),
	}, nil
}
