package univ3

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SIR-trading/Core-sub003/internal/chain"
)

// ChainSource resolves pools through the v3 factory contract and serves
// observations over RPC. Pool addresses are cached; they are immutable once
// deployed.
type ChainSource struct {
	client  *chain.Client
	factory common.Address
	logger  *zap.Logger

	mu    sync.RWMutex
	pools map[poolKey]common.Address
}

type poolKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

func NewChainSource(client *chain.Client, factory common.Address, logger *zap.Logger) *ChainSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{
		client:  client,
		factory: factory,
		logger:  logger,
		pools:   make(map[poolKey]common.Address),
	}
}

func (s *ChainSource) Pool(ctx context.Context, tokenA, tokenB common.Address, tier FeeTier) (Pool, error) {
	key := poolKey{token0: tokenA, token1: tokenB, fee: tier.Fee}

	s.mu.RLock()
	addr, ok := s.pools[key]
	s.mu.RUnlock()

	if !ok {
		factory, err := FactoryABI()
		if err != nil {
			return nil, fmt.Errorf("parse factory abi: %w", err)
		}
		values, err := s.call(ctx, s.factory, factory, "getPool", tokenA, tokenB, big.NewInt(int64(tier.Fee)))
		if err != nil {
			return nil, fmt.Errorf("getPool: %w", err)
		}
		addr, ok = values[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("getPool: unexpected type %T", values[0])
		}
		s.mu.Lock()
		s.pools[key] = addr
		s.mu.Unlock()
	}

	if addr == (common.Address{}) {
		return nil, ErrNoPool
	}
	return &chainPool{source: s, addr: addr, fee: tier.Fee}, nil
}

func (s *ChainSource) TickSpacing(ctx context.Context, fee uint32) (int32, error) {
	factory, err := FactoryABI()
	if err != nil {
		return 0, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := s.call(ctx, s.factory, factory, "feeAmountTickSpacing", big.NewInt(int64(fee)))
	if err != nil {
		return 0, fmt.Errorf("feeAmountTickSpacing: %w", err)
	}
	spacing, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("feeAmountTickSpacing: unexpected type %T", values[0])
	}
	return int32(spacing.Int64()), nil
}

func (s *ChainSource) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// chainPool adapts one deployed pool contract to the Pool interface.
type chainPool struct {
	source *ChainSource
	addr   common.Address
	fee    uint32
}

func (p *chainPool) Observe(ctx context.Context, window uint32) (Observation, error) {
	if window == 0 {
		return Observation{}, fmt.Errorf("observe window must be positive")
	}

	obs, err := p.observe(ctx, window)
	if err == nil {
		return obs, nil
	}

	// Pools revert when asked for more history than their buffer holds.
	// Fall back to the span since the oldest stored observation.
	available, ageErr := p.availableWindow(ctx)
	if ageErr != nil || available == 0 || available >= window {
		return Observation{}, fmt.Errorf("observe over %ds: %w", window, err)
	}
	return p.observe(ctx, available)
}

func (p *chainPool) observe(ctx context.Context, window uint32) (Observation, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return Observation{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := p.source.call(ctx, p.addr, poolABI, "observe", []uint32{window, 0})
	if err != nil {
		return Observation{}, err
	}

	tickCums, ok := values[0].([]*big.Int)
	if !ok || len(tickCums) != 2 {
		return Observation{}, fmt.Errorf("observe: unexpected tick cumulatives %T", values[0])
	}
	splCums, ok := values[1].([]*big.Int)
	if !ok || len(splCums) != 2 {
		return Observation{}, fmt.Errorf("observe: unexpected liquidity cumulatives %T", values[1])
	}

	tickDelta := new(big.Int).Sub(tickCums[1], tickCums[0])
	if !tickDelta.IsInt64() {
		return Observation{}, fmt.Errorf("observe: tick cumulative delta overflows int64")
	}
	splDelta := new(big.Int).Sub(splCums[1], splCums[0])

	// Harmonic mean in-range liquidity: window<<128 / delta of the
	// seconds-per-liquidity accumulator.
	meanLiquidity := new(big.Int)
	if splDelta.Sign() > 0 {
		meanLiquidity.Lsh(new(big.Int).SetUint64(uint64(window)), 128)
		meanLiquidity.Quo(meanLiquidity, splDelta)
	}

	return Observation{
		TickCumulativeDelta: tickDelta.Int64(),
		MeanLiquidity:       meanLiquidity,
		Window:              window,
	}, nil
}

// availableWindow returns the age in seconds of the pool's oldest stored
// observation relative to the latest block.
func (p *chainPool) availableWindow(ctx context.Context) (uint32, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return 0, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := p.source.call(ctx, p.addr, poolABI, "slot0")
	if err != nil {
		return 0, err
	}
	obsIndex, ok := values[2].(uint16)
	if !ok {
		return 0, fmt.Errorf("slot0: unexpected observation index %T", values[2])
	}
	cardinality, ok := values[3].(uint16)
	if !ok {
		return 0, fmt.Errorf("slot0: unexpected cardinality %T", values[3])
	}
	if cardinality == 0 {
		return 0, fmt.Errorf("pool has no observations")
	}

	oldest := uint64((obsIndex + 1) % cardinality)
	ts, initialized, err := p.observationAt(ctx, poolABI, oldest)
	if err != nil {
		return 0, err
	}
	if !initialized {
		// The ring has not wrapped yet; slot 0 holds the oldest entry.
		ts, _, err = p.observationAt(ctx, poolABI, 0)
		if err != nil {
			return 0, err
		}
	}

	latest, err := p.source.client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	now, err := p.source.client.BlockTimestamp(ctx, latest)
	if err != nil {
		return 0, fmt.Errorf("head timestamp: %w", err)
	}

	// Pool timestamps are uint32 and wrap; subtract in uint32 space.
	return uint32(now) - ts, nil
}

func (p *chainPool) observationAt(ctx context.Context, poolABI abi.ABI, index uint64) (uint32, bool, error) {
	values, err := p.source.call(ctx, p.addr, poolABI, "observations", new(big.Int).SetUint64(index))
	if err != nil {
		return 0, false, err
	}
	ts, ok := values[0].(uint32)
	if !ok {
		return 0, false, fmt.Errorf("observations: unexpected timestamp %T", values[0])
	}
	initialized, ok := values[3].(bool)
	if !ok {
		return 0, false, fmt.Errorf("observations: unexpected initialized flag %T", values[3])
	}
	return ts, initialized, nil
}

func (p *chainPool) Liquidity(ctx context.Context) (*big.Int, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := p.source.call(ctx, p.addr, poolABI, "liquidity")
	if err != nil {
		return nil, err
	}
	liq, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidity: unexpected type %T", values[0])
	}
	return liq, nil
}

// GrowObservationBuffer on the read-only adapter cannot send the extension
// transaction; it records the request so an operator (or a funded keeper) can
// act on it.
func (p *chainPool) GrowObservationBuffer(ctx context.Context, target uint16) error {
	p.source.logger.Info("observation buffer extension needed",
		zap.String("pool", p.addr.Hex()),
		zap.Uint32("fee", p.fee),
		zap.Uint16("target", target),
	)
	return nil
}
