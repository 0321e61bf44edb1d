// Package oracle derives a manipulation-resistant tick price per asset pair
// from external liquidity pools. For every pair it tracks one state record:
// the last committed price, the fee tier it is sourced from, and a cyclic
// probe pointer that keeps re-evaluating whether a better-funded tier has
// appeared. Committed prices are rate-limited in tick space so a short-window
// attack on the source pool cannot move the price faster than the configured
// drift bound.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SIR-trading/Core-sub003/internal/events"
	"github.com/SIR-trading/Core-sub003/internal/tickmath"
	"github.com/SIR-trading/Core-sub003/internal/univ3"
)

const (
	// DefaultWindow is the TWAP window in seconds.
	DefaultWindow uint32 = 30 * 60

	// DefaultMaxDriftPerSecX42 bounds committed price movement to one tick
	// (one basis point) per second.
	DefaultMaxDriftPerSecX42 = int64(1) << tickmath.FractionalBits

	// DefaultTierEvalCooldown is the minimum spacing of tier-switch
	// evaluations, in seconds.
	DefaultTierEvalCooldown uint64 = 60 * 60

	// MaxFeeTiers bounds the tier list: the built-in four plus at most five
	// registered at runtime.
	MaxFeeTiers = 9

	// estBlockSeconds sizes observation-buffer growth requests.
	estBlockSeconds = 12
)

var (
	ErrNotInitialized     = errors.New("oracle not initialized for pair")
	ErrNoLiquidityPool    = errors.New("no fee tier has an initialized liquidity pool")
	ErrFeeTierOutOfBounds = errors.New("fee tier index out of bounds")
	ErrFeeTierExists      = errors.New("fee tier already registered")
)

// PairKey orders an asset pair canonically: Token0 sorts before Token1.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

// NewPairKey canonicalizes (a, b). swapped reports that a sorts second, i.e.
// prices requested in (a, b) orientation are the negation of stored ticks.
func NewPairKey(a, b common.Address) (key PairKey, swapped bool) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return PairKey{Token0: b, Token1: a}, true
	}
	return PairKey{Token0: a, Token1: b}, false
}

// PairState is the persistent oracle record for one pair. A record is either
// absent or fully initialized; no partial state survives a call.
type PairState struct {
	// TickPriceX42 is the price of Token0 denominated in Token1, log-scaled.
	TickPriceX42 int64
	// UpdatedAt is the instant TickPriceX42 was committed.
	UpdatedAt uint64
	// SelectedTier and ProbeTier index the oracle's fee tier list.
	SelectedTier uint8
	ProbeTier    uint8
	// TierEvaluatedAt is the last tier-switch evaluation instant.
	TierEvaluatedAt uint64
	Initialized     bool
}

// Config carries the oracle's tuning knobs; zero values select defaults.
type Config struct {
	Window            uint32
	MaxDriftPerSecX42 int64
	TierEvalCooldown  uint64
}

// Oracle owns all pair states. Methods taking a `now` argument treat it as
// the discrete time instant: at most one refresh is committed per pair per
// instant, and repeat calls within the instant observe the cached price.
type Oracle struct {
	source univ3.Source
	sink   events.Sink
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	states map[PairKey]PairState
	tiers  []univ3.FeeTier
}

func New(source univ3.Source, sink events.Sink, logger *zap.Logger, cfg Config) *Oracle {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxDriftPerSecX42 == 0 {
		cfg.MaxDriftPerSecX42 = DefaultMaxDriftPerSecX42
	}
	if cfg.TierEvalCooldown == 0 {
		cfg.TierEvalCooldown = DefaultTierEvalCooldown
	}
	tiers := make([]univ3.FeeTier, len(univ3.BuiltinFeeTiers))
	copy(tiers, univ3.BuiltinFeeTiers)
	return &Oracle{
		source: source,
		sink:   sink,
		logger: logger,
		cfg:    cfg,
		states: make(map[PairKey]PairState),
		tiers:  tiers,
	}
}

// FeeTiers returns a copy of the tier list.
func (o *Oracle) FeeTiers() []univ3.FeeTier {
	o.mu.Lock()
	defer o.mu.Unlock()
	tiers := make([]univ3.FeeTier, len(o.tiers))
	copy(tiers, o.tiers)
	return tiers
}

// FeeTier returns the tier at index.
func (o *Oracle) FeeTier(index uint8) (univ3.FeeTier, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if int(index) >= len(o.tiers) {
		return univ3.FeeTier{}, ErrFeeTierOutOfBounds
	}
	return o.tiers[index], nil
}

// RegisterFeeTier adds a fee tier outside the built-in set after verifying it
// exists in the external registry.
func (o *Oracle) RegisterFeeTier(ctx context.Context, fee uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.tiers) >= MaxFeeTiers {
		return fmt.Errorf("tier list full (%d): %w", MaxFeeTiers, ErrFeeTierOutOfBounds)
	}
	for _, tier := range o.tiers {
		if tier.Fee == fee {
			return fmt.Errorf("fee %d: %w", fee, ErrFeeTierExists)
		}
	}

	spacing, err := o.source.TickSpacing(ctx, fee)
	if err != nil {
		return fmt.Errorf("verify fee tier %d: %w", fee, err)
	}
	if spacing <= 0 {
		return fmt.Errorf("fee %d not enabled externally: %w", fee, ErrNoLiquidityPool)
	}

	o.tiers = append(o.tiers, univ3.FeeTier{Fee: fee, TickSpacing: spacing})
	o.logger.Info("fee tier registered", zap.Uint32("fee", fee), zap.Int32("tick_spacing", spacing))
	return nil
}

// Initialize selects the most liquidity-backed fee tier for a pair and
// records its first price. Idempotent: repeat calls on an initialized pair
// are no-ops and never error.
func (o *Oracle) Initialize(ctx context.Context, a, b common.Address, now uint64) error {
	key, _ := NewPairKey(a, b)

	o.mu.Lock()
	defer o.mu.Unlock()

	if state, ok := o.states[key]; ok && state.Initialized {
		return nil
	}

	best := -1
	bestScore := new(big.Int)
	var bestObs univ3.Observation
	for i, tier := range o.tiers {
		pool, err := o.source.Pool(ctx, key.Token0, key.Token1, tier)
		if err != nil {
			continue
		}
		obs, err := pool.Observe(ctx, o.cfg.Window)
		if err != nil {
			continue
		}
		// Time-weighted aggregate liquidity: pools without full history score
		// proportionally less.
		weighted := new(big.Int).Mul(obs.MeanLiquidity, new(big.Int).SetUint64(uint64(obs.Window)))
		score := tierScore(weighted, tier)
		if score.Cmp(bestScore) > 0 {
			best = i
			bestScore = score
			bestObs = obs
		}
	}
	if best < 0 {
		return fmt.Errorf("pair %s/%s: %w", key.Token0.Hex(), key.Token1.Hex(), ErrNoLiquidityPool)
	}

	state := PairState{
		TickPriceX42:    tickmath.TickFromCumulative(bestObs.TickCumulativeDelta, bestObs.Window),
		UpdatedAt:       now,
		SelectedTier:    uint8(best),
		ProbeTier:       o.nextTier(uint8(best), uint8(best)),
		TierEvaluatedAt: now,
		Initialized:     true,
	}
	o.states[key] = state

	tier := o.tiers[best]
	o.sink.Emit(events.FeeTierSelected{
		Token0: key.Token0, Token1: key.Token1,
		Fee: tier.Fee, TickSpacing: tier.TickSpacing, At: now,
	})
	if bestObs.Window < o.cfg.Window {
		o.requestBufferGrowth(ctx, key, tier)
	}
	o.logger.Info("oracle pair initialized",
		zap.String("token0", key.Token0.Hex()),
		zap.String("token1", key.Token1.Hex()),
		zap.Uint32("fee", tier.Fee),
		zap.Int64("tick_price_x42", state.TickPriceX42),
	)
	return nil
}

// Price returns the current price of collateral denominated in debt without
// mutating state. When the stored price is stale for this instant a fresh
// observation is computed and clamped, but not persisted.
func (o *Oracle) Price(ctx context.Context, collateral, debt common.Address, now uint64) (int64, error) {
	key, swapped := NewPairKey(collateral, debt)

	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.states[key]
	if !ok || !state.Initialized {
		return 0, fmt.Errorf("pair %s/%s: %w", key.Token0.Hex(), key.Token1.Hex(), ErrNotInitialized)
	}

	tick := state.TickPriceX42
	if now > state.UpdatedAt {
		fresh, _, err := o.observeClamped(ctx, key, state, now)
		if err != nil {
			return 0, err
		}
		tick = fresh
	}
	return orient(tick, swapped), nil
}

// Update refreshes and commits the pair's price for this instant, runs the
// periodic fee-tier evaluation, and returns the committed price oriented to
// the caller's (collateral, debt) order. Only the first call per instant
// refreshes; later calls return the cached value.
func (o *Oracle) Update(ctx context.Context, collateral, debt common.Address, now uint64) (int64, error) {
	key, swapped := NewPairKey(collateral, debt)

	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.states[key]
	if !ok || !state.Initialized {
		return 0, fmt.Errorf("pair %s/%s: %w", key.Token0.Hex(), key.Token1.Hex(), ErrNotInitialized)
	}
	// A now at or before the stored instant serves the cached price: the drift
	// bound is defined over elapsed time, so a backdated call must not refresh.
	if now <= state.UpdatedAt {
		return orient(state.TickPriceX42, swapped), nil
	}

	tick, truncated, err := o.observeClamped(ctx, key, state, now)
	if err != nil {
		return 0, err
	}
	state.TickPriceX42 = tick
	state.UpdatedAt = now

	if now >= state.TierEvaluatedAt+o.cfg.TierEvalCooldown {
		o.evaluateProbeTier(ctx, key, &state, now)
		state.TierEvaluatedAt = now
	}

	o.states[key] = state
	o.sink.Emit(events.PriceUpdated{
		Token0: key.Token0, Token1: key.Token1,
		TickPriceX42: tick, Truncated: truncated, At: now,
	})
	return orient(tick, swapped), nil
}

// observeClamped reads the selected pool's TWAP and bounds the movement from
// the stored price by the drift limit. Caller holds the lock.
func (o *Oracle) observeClamped(ctx context.Context, key PairKey, state PairState, now uint64) (tick int64, truncated bool, err error) {
	tier := o.tiers[state.SelectedTier]
	pool, err := o.source.Pool(ctx, key.Token0, key.Token1, tier)
	if err != nil {
		return 0, false, fmt.Errorf("selected pool %d bps: %w", tier.Fee, err)
	}
	obs, err := pool.Observe(ctx, o.cfg.Window)
	if err != nil {
		return 0, false, fmt.Errorf("observe %d bps: %w", tier.Fee, err)
	}
	if obs.Window < o.cfg.Window {
		o.requestBufferGrowth(ctx, key, tier)
	}

	tick = tickmath.TickFromCumulative(obs.TickCumulativeDelta, obs.Window)

	elapsed := now - state.UpdatedAt
	maxDrift := o.cfg.MaxDriftPerSecX42
	if elapsed < uint64(tickmath.MaxTick) { // beyond this the clamp can never bind
		bound := maxDrift * int64(elapsed)
		if tick > state.TickPriceX42+bound {
			tick = state.TickPriceX42 + bound
			truncated = true
		} else if tick < state.TickPriceX42-bound {
			tick = state.TickPriceX42 - bound
			truncated = true
		}
	}
	return tick, truncated, nil
}

// evaluateProbeTier compares the probe tier against the selected one using
// instant (un-weighted) liquidity so freshly funded pools are not penalized
// for lacking TWAP history. Caller holds the lock.
func (o *Oracle) evaluateProbeTier(ctx context.Context, key PairKey, state *PairState, now uint64) {
	probe := state.ProbeTier
	defer func() {
		state.ProbeTier = o.nextTier(probe, state.SelectedTier)
	}()

	probeTier := o.tiers[probe]
	probePool, err := o.source.Pool(ctx, key.Token0, key.Token1, probeTier)
	if err != nil {
		return // tier not viable right now
	}
	probeLiq, err := probePool.Liquidity(ctx)
	if err != nil {
		return
	}

	selectedTier := o.tiers[state.SelectedTier]
	selectedPool, err := o.source.Pool(ctx, key.Token0, key.Token1, selectedTier)
	if err != nil {
		return
	}
	selectedLiq, err := selectedPool.Liquidity(ctx)
	if err != nil {
		return
	}

	if tierScore(probeLiq, probeTier).Cmp(tierScore(selectedLiq, selectedTier)) <= 0 {
		return
	}

	// Better funded, but only switch once it can serve the full TWAP window.
	obs, err := probePool.Observe(ctx, o.cfg.Window)
	if err != nil || obs.Window < o.cfg.Window {
		o.requestBufferGrowth(ctx, key, probeTier)
		return
	}

	state.SelectedTier = probe
	o.sink.Emit(events.FeeTierSelected{
		Token0: key.Token0, Token1: key.Token1,
		Fee: probeTier.Fee, TickSpacing: probeTier.TickSpacing, At: now,
	})
	o.logger.Info("oracle fee tier switched",
		zap.String("token0", key.Token0.Hex()),
		zap.String("token1", key.Token1.Hex()),
		zap.Uint32("fee", probeTier.Fee),
	)
}

// nextTier advances cyclically, skipping the selected tier. Caller holds the
// lock.
func (o *Oracle) nextTier(from, selected uint8) uint8 {
	next := (from + 1) % uint8(len(o.tiers))
	if next == selected {
		next = (next + 1) % uint8(len(o.tiers))
	}
	return next
}

func (o *Oracle) requestBufferGrowth(ctx context.Context, key PairKey, tier univ3.FeeTier) {
	target := uint16(o.cfg.Window/estBlockSeconds + 1)
	pool, err := o.source.Pool(ctx, key.Token0, key.Token1, tier)
	if err == nil {
		if err := pool.GrowObservationBuffer(ctx, target); err != nil {
			o.logger.Warn("observation buffer growth failed", zap.Uint32("fee", tier.Fee), zap.Error(err))
		}
	}
	o.sink.Emit(events.BufferGrowthRequested{
		Token0: key.Token0, Token1: key.Token1, Fee: tier.Fee, Target: target,
	})
}

// State returns a copy of a pair's record, for persistence and inspection.
func (o *Oracle) State(a, b common.Address) (PairState, bool) {
	key, _ := NewPairKey(a, b)
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[key]
	return state, ok
}

// States returns a snapshot of every pair record.
func (o *Oracle) States() map[PairKey]PairState {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := make(map[PairKey]PairState, len(o.states))
	for key, state := range o.states {
		snapshot[key] = state
	}
	return snapshot
}

// Restore installs a previously persisted record, typically at startup.
func (o *Oracle) Restore(key PairKey, state PairState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[key] = state
}

// tierScore ranks a tier by liquidity*fee/tickSpacing, rounded up so any
// positive liquidity scores above an uninitialized pool.
func tierScore(liquidity *big.Int, tier univ3.FeeTier) *big.Int {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return new(big.Int)
	}
	score := new(big.Int).Mul(liquidity, big.NewInt(int64(tier.Fee)))
	score.Add(score, big.NewInt(int64(tier.TickSpacing)-1))
	return score.Quo(score, big.NewInt(int64(tier.TickSpacing)))
}

func orient(tick int64, swapped bool) int64 {
	if swapped {
		return -tick
	}
	return tick
}
