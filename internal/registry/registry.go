package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultDebounce = 300 * time.Millisecond

// Options tune how a Registry notices source changes.
type Options struct {
	// Debounce coalesces bursts of change signals.
	Debounce time.Duration
	// Poll reloads the source on a fixed interval when positive.
	Poll time.Duration
}

// Registry holds the current watched wallet set. The set is replaced as a
// whole, so readers always see a consistent snapshot.
type Registry struct {
	source  Source
	opts    Options
	logger  *zap.Logger
	current atomic.Pointer[WalletSet]
	refresh sync.Mutex
	changes chan struct{}
}

func New(source Source, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	r := &Registry{
		source:  source,
		opts:    opts,
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
	r.current.Store(NewWalletSet(nil))
	return r
}

// Current returns the latest wallet set.
func (r *Registry) Current() *WalletSet {
	return r.current.Load()
}

// Changes signals after Refresh replaced the set. Signals coalesce.
func (r *Registry) Changes() <-chan struct{} {
	return r.changes
}

// Refresh reloads the source. It reports whether the set changed; a load
// failure keeps the previous set.
func (r *Registry) Refresh(ctx context.Context) (bool, error) {
	r.refresh.Lock()
	defer r.refresh.Unlock()

	wallets, err := r.source.Load(ctx)
	if err != nil {
		r.logger.Warn("wallet source unreadable, keeping last set", zap.Error(err))
		return false, err
	}
	next := NewWalletSet(wallets)
	if next.Equal(r.current.Load()) {
		return false, nil
	}
	r.current.Store(next)
	r.logger.Info("wallet set loaded", zap.Int("count", next.Len()), zap.String("wallets", next.Describe()))
	select {
	case r.changes <- struct{}{}:
	default:
	}
	return true, nil
}

// Run watches the source until ctx is cancelled, refreshing after each
// debounced change signal and on every poll tick.
func (r *Registry) Run(ctx context.Context) error {
	triggers := make(chan struct{}, 1)
	notify := func() {
		select {
		case triggers <- struct{}{}:
		default:
		}
	}

	if w, ok := r.source.(Watcher); ok {
		go func() {
			if err := w.Watch(ctx, notify); err != nil && ctx.Err() == nil {
				r.logger.Warn("wallet watch stopped", zap.Error(err))
			}
		}()
	}

	var tick <-chan time.Time
	if r.opts.Poll > 0 {
		ticker := time.NewTicker(r.opts.Poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-triggers:
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(r.opts.Debounce)
			fire = debounce.C
		case <-fire:
			fire = nil
			_, _ = r.Refresh(ctx)
		case <-tick:
			_, _ = r.Refresh(ctx)
		}
	}
}
