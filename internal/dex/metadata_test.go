package dex

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	calls    atomic.Int32
	release  chan struct{}
	symbol   []byte
	decimals []byte
	fail     atomic.Bool
}

func (f *fakeCaller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("node unreachable")
	}
	if IsSymbolCall(data) {
		return f.symbol, nil
	}
	return f.decimals, nil
}

func packedSymbol(t *testing.T, symbol string) []byte {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	ret, err := parsed.Methods["symbol"].Outputs.Pack(symbol)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return ret
}

var (
	wrapped = common.HexToAddress("0xe538905cf8410324e03a5a23c1c177a474d59b2b")
	tokenT  = common.HexToAddress("0xabcdef0000000000000000000000000000000001")
)

func TestResolverWrappedNativeIsConstant(t *testing.T) {
	caller := &fakeCaller{}
	r := NewResolver(caller, ResolverConfig{WrappedNative: wrapped}, nil, nil)

	meta, err := r.Resolve(context.Background(), "0xE538905CF8410324E03A5A23C1C177A474D59B2B")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Symbol != "WOKB" || meta.Decimals != 18 {
		t.Fatalf("meta = %+v", meta)
	}
	if caller.calls.Load() != 0 {
		t.Fatalf("wrapped native issued %d calls", caller.calls.Load())
	}
}

func TestResolverJoinsConcurrentLookups(t *testing.T) {
	caller := &fakeCaller{
		release:  make(chan struct{}),
		symbol:   packedSymbol(t, "TKN"),
		decimals: common.BigToHash(big.NewInt(6)).Bytes(),
	}
	r := NewResolver(caller, ResolverConfig{WrappedNative: wrapped}, nil, nil)

	var wg sync.WaitGroup
	results := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meta, err := r.Resolve(context.Background(), tokenT.Hex())
			if err != nil {
				results <- "error: " + err.Error()
				return
			}
			results <- meta.Symbol
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(caller.release)
	wg.Wait()
	close(results)

	for symbol := range results {
		if symbol != "TKN" {
			t.Fatalf("unexpected result %q", symbol)
		}
	}
	if got := caller.calls.Load(); got != 2 {
		t.Fatalf("expected one symbol and one decimals call, got %d", got)
	}

	meta, err := r.Resolve(context.Background(), tokenT.Hex())
	if err != nil || meta.Decimals != 6 {
		t.Fatalf("cached meta = %+v, %v", meta, err)
	}
	if got := caller.calls.Load(); got != 2 {
		t.Fatalf("cached lookup issued calls: %d", got)
	}
}

func TestResolverFallbacks(t *testing.T) {
	caller := &fakeCaller{symbol: nil, decimals: []byte{}}
	r := NewResolver(caller, ResolverConfig{WrappedNative: wrapped}, nil, nil)

	meta, err := r.Resolve(context.Background(), tokenT.Hex())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Symbol != "0XABCD" {
		t.Fatalf("fallback symbol = %q", meta.Symbol)
	}
	if meta.Decimals != 18 {
		t.Fatalf("fallback decimals = %d", meta.Decimals)
	}
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	caller := &fakeCaller{
		symbol:   packedSymbol(t, "TKN"),
		decimals: common.BigToHash(big.NewInt(9)).Bytes(),
	}
	caller.fail.Store(true)
	r := NewResolver(caller, ResolverConfig{WrappedNative: wrapped, CallTimeout: time.Second}, nil, nil)

	if _, err := r.Resolve(context.Background(), tokenT.Hex()); err == nil {
		t.Fatalf("expected error")
	}

	caller.fail.Store(false)
	meta, err := r.Resolve(context.Background(), tokenT.Hex())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if meta.Symbol != "TKN" || meta.Decimals != 9 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestResolverCallTimeout(t *testing.T) {
	caller := &fakeCaller{release: make(chan struct{})}
	r := NewResolver(caller, ResolverConfig{WrappedNative: wrapped, CallTimeout: 20 * time.Millisecond}, nil, nil)

	_, err := r.Resolve(context.Background(), tokenT.Hex())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
