// Package keeper drives the protocol's periodic duties: refreshing oracle
// prices at chain-head time for every vault pair and persisting state
// snapshots. It is the only component that decides what "now" is; all core
// operations take the instant as an argument.
package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SIR-trading/Core-sub003/internal/chain"
	"github.com/SIR-trading/Core-sub003/internal/oracle"
	"github.com/SIR-trading/Core-sub003/internal/vault"
)

// RunConfig holds runtime settings for the keeper.
type RunConfig struct {
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// HeadSource reports the chain head timestamp.
type HeadSource interface {
	HeadTimestamp(ctx context.Context) (uint64, error)
}

// Updater is the oracle surface the keeper drives.
type Updater interface {
	Update(ctx context.Context, collateral, debt common.Address, now uint64) (int64, error)
	States() map[oracle.PairKey]oracle.PairState
}

// VaultSource lists the vaults whose pairs need refreshing.
type VaultSource interface {
	Vaults() []vault.Info
}

// SnapshotStore persists vault and oracle snapshots. Optional.
type SnapshotStore interface {
	SaveVaults(ctx context.Context, infos []vault.Info) error
	SaveOraclePairs(ctx context.Context, states map[oracle.PairKey]oracle.PairState) error
}

// Runner executes the keeper loop.
type Runner struct {
	cfg    RunConfig
	head   HeadSource
	oracle Updater
	vaults VaultSource
	store  SnapshotStore
	logger *zap.Logger
}

// NewRunner builds a Runner with its dependencies. store may be nil when
// running without persistence.
func NewRunner(cfg RunConfig, head HeadSource, o Updater, vaults VaultSource, store SnapshotStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		head:   head,
		oracle: o,
		vaults: vaults,
		store:  store,
		logger: logger,
	}
}

// Run executes the keeper loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.head == nil {
		return fmt.Errorf("head source is nil")
	}
	if r.oracle == nil {
		return fmt.Errorf("oracle is nil")
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("keeper cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single keeper cycle: one price refresh per distinct
// vault pair at the current head timestamp, then a snapshot save. A pair
// that fails to refresh is logged and skipped; the cycle continues.
func (r *Runner) RunOnce(ctx context.Context) error {
	now, err := r.headTimestampWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("head timestamp: %w", err)
	}

	refreshed := 0
	seen := make(map[oracle.PairKey]struct{})
	for _, info := range r.vaults.Vaults() {
		key, _ := oracle.NewPairKey(info.Params.Collateral, info.Params.Debt)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if err := r.updateWithRetry(ctx, info.Params.Collateral, info.Params.Debt, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("price refresh failed",
				zap.String("collateral", info.Params.Collateral.Hex()),
				zap.String("debt", info.Params.Debt.Hex()),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}

	if r.store != nil {
		if err := r.store.SaveVaults(ctx, r.vaults.Vaults()); err != nil {
			return fmt.Errorf("save vaults: %w", err)
		}
		if err := r.store.SaveOraclePairs(ctx, r.oracle.States()); err != nil {
			return fmt.Errorf("save oracle pairs: %w", err)
		}
	}

	r.logger.Info("keeper cycle complete", zap.Uint64("now", now), zap.Int("pairs_refreshed", refreshed))
	return nil
}

func (r *Runner) headTimestampWithRetry(ctx context.Context) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.head.HeadTimestamp(ctx)
		if err != nil {
			r.logger.Warn("head timestamp fetch failed", zap.Error(err))
		}
		return err
	})
	return ts, err
}

func (r *Runner) updateWithRetry(ctx context.Context, collateral, debt common.Address, now uint64) error {
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		_, err := r.oracle.Update(ctx, collateral, debt, now)
		return err
	})
}

// ChainHead adapts the RPC client to a HeadSource.
type ChainHead struct {
	Client *chain.Client
}

func (h ChainHead) HeadTimestamp(ctx context.Context) (uint64, error) {
	latest, err := h.Client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return h.Client.BlockTimestamp(ctx, latest)
}
