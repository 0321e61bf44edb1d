package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SIR-trading/Core-sub003/internal/events"
	"github.com/SIR-trading/Core-sub003/internal/fees"
	"github.com/SIR-trading/Core-sub003/internal/ledger"
)

const (
	// MinLeverageTier and MaxLeverageTier bound the supported leverage range:
	// tier k gives a leverage ratio of 1+2^k.
	MinLeverageTier = -3
	MaxLeverageTier = 2

	// DefaultMinLiquidity is the default floor a side's reserve may not sink
	// below while partially funded.
	DefaultMinLiquidity = 1000

	// reserveCapacityBits caps a vault's total reserve at 2^144-1 so the
	// intermediate Q128 products in the reserve split stay well bounded.
	reserveCapacityBits = 144
)

var (
	ErrVaultNotFound          = errors.New("vault not found")
	ErrVaultExists            = errors.New("vault already exists for these parameters")
	ErrLeverageTierOutOfRange = errors.New("leverage tier out of range")
	ErrLiquidityTooLow        = errors.New("reserve below the minimum liquidity floor")
	ErrAmountTooLarge         = errors.New("amount exceeds vault reserve capacity")

	maxReserve = new(big.Int).Sub(new(big.Int).Lsh(one, reserveCapacityBits), one)
)

// POLAccount owns the protocol's liquidity tokens. It is a reserved address
// no external caller can act for.
var POLAccount = common.Address{}

// Parameters identify a vault. The triple is unique across the engine.
type Parameters struct {
	Debt         common.Address
	Collateral   common.Address
	LeverageTier int8
}

// State is the persistent per-vault record.
type State struct {
	TotalReserve      *big.Int
	TickSaturationX42 int64
}

// Info pairs a vault's identity with its state for listings.
type Info struct {
	ID     uint32
	Params Parameters
	State  State
}

// Reserves is the virtual split of a vault's collateral at one price.
type Reserves struct {
	Apes         *big.Int
	LP           *big.Int
	TickPriceX42 int64
}

// PriceSource is the oracle surface the engine consumes.
type PriceSource interface {
	Initialize(ctx context.Context, a, b common.Address, now uint64) error
	Price(ctx context.Context, collateral, debt common.Address, now uint64) (int64, error)
	Update(ctx context.Context, collateral, debt common.Address, now uint64) (int64, error)
}

type record struct {
	params  Parameters
	total   *big.Int
	tickSat int64
}

// Engine owns every vault's reserve state. All state transitions are staged
// and committed only after every check passes; a returned error implies no
// observable mutation.
type Engine struct {
	oracle  PriceSource
	ledger  ledger.Ledger
	staking ledger.Staking
	calc    fees.Calculator
	sink    events.Sink
	logger  *zap.Logger
	minLiq  *big.Int

	mu       sync.Mutex
	records  []*record
	byParams map[Parameters]uint32
	treasury map[common.Address]*big.Int
}

func NewEngine(oracle PriceSource, led ledger.Ledger, staking ledger.Staking, calc fees.Calculator, sink events.Sink, logger *zap.Logger, minLiquidity uint64) *Engine {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if minLiquidity == 0 {
		minLiquidity = DefaultMinLiquidity
	}
	return &Engine{
		oracle:   oracle,
		ledger:   led,
		staking:  staking,
		calc:     calc,
		sink:     sink,
		logger:   logger,
		minLiq:   new(big.Int).SetUint64(minLiquidity),
		byParams: make(map[Parameters]uint32),
		treasury: make(map[common.Address]*big.Int),
	}
}

// CreateVault registers a new empty vault and initializes the oracle for its
// pair. Vault IDs are assigned sequentially from 1.
func (e *Engine) CreateVault(ctx context.Context, params Parameters, now uint64) (uint32, error) {
	if params.LeverageTier < MinLeverageTier || params.LeverageTier > MaxLeverageTier {
		return 0, fmt.Errorf("tier %d: %w", params.LeverageTier, ErrLeverageTierOutOfRange)
	}
	if params.Debt == params.Collateral {
		return 0, fmt.Errorf("debt and collateral must differ: %w", ErrVaultExists)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.byParams[params]; ok {
		return id, ErrVaultExists
	}
	if err := e.oracle.Initialize(ctx, params.Collateral, params.Debt, now); err != nil {
		return 0, fmt.Errorf("initialize oracle: %w", err)
	}

	e.records = append(e.records, &record{params: params, total: new(big.Int)})
	id := uint32(len(e.records))
	e.byParams[params] = id

	e.sink.Emit(events.VaultCreated{
		VaultID: id, Debt: params.Debt, Collateral: params.Collateral,
		LeverageTier: params.LeverageTier,
	})
	e.logger.Info("vault created",
		zap.Uint32("vault_id", id),
		zap.String("collateral", params.Collateral.Hex()),
		zap.String("debt", params.Debt.Hex()),
		zap.Int8("leverage_tier", params.LeverageTier),
	)
	return id, nil
}

// Vault returns a vault's parameters and a copy of its state.
func (e *Engine) Vault(id uint32) (Parameters, State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.record(id)
	if err != nil {
		return Parameters{}, State{}, err
	}
	return rec.params, State{
		TotalReserve:      new(big.Int).Set(rec.total),
		TickSaturationX42: rec.tickSat,
	}, nil
}

// VaultID resolves parameters to an ID.
func (e *Engine) VaultID(params Parameters) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byParams[params]
	return id, ok
}

// Vaults lists every vault.
func (e *Engine) Vaults() []Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	infos := make([]Info, len(e.records))
	for i, rec := range e.records {
		infos[i] = Info{
			ID:     uint32(i + 1),
			Params: rec.params,
			State: State{
				TotalReserve:      new(big.Int).Set(rec.total),
				TickSaturationX42: rec.tickSat,
			},
		}
	}
	return infos
}

// ReservesAt reports the vault's current reserve split without committing a
// price refresh.
func (e *Engine) ReservesAt(ctx context.Context, id uint32, now uint64) (Reserves, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.record(id)
	if err != nil {
		return Reserves{}, err
	}
	price, err := e.oracle.Price(ctx, rec.params.Collateral, rec.params.Debt, now)
	if err != nil {
		return Reserves{}, err
	}
	apes, lp := ComputeReserves(rec.total, price, rec.tickSat, rec.params.LeverageTier)
	return Reserves{Apes: apes, LP: lp, TickPriceX42: price}, nil
}

// Mint deposits collateral on one side of a vault and mints claim tokens for
// it. The first deposit into an empty side must gross at least the minimum
// liquidity floor and mints net collateral 1:1; later deposits mint pro rata
// against the side's reserve. Returns the tokens minted to the depositor.
func (e *Engine) Mint(ctx context.Context, id uint32, side ledger.Side, to common.Address, amount *big.Int, now uint64) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ledger.ErrNonPositiveAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(id)
	if err != nil {
		return nil, err
	}
	if new(big.Int).Add(rec.total, amount).Cmp(maxReserve) > 0 {
		return nil, ErrAmountTooLarge
	}

	tier := rec.params.LeverageTier
	price, err := e.oracle.Update(ctx, rec.params.Collateral, rec.params.Debt, now)
	if err != nil {
		return nil, fmt.Errorf("refresh price: %w", err)
	}
	apes, lp := ComputeReserves(rec.total, price, rec.tickSat, tier)

	leveraged := side == ledger.Leveraged
	bd, err := e.calc.OnGross(amount, leveraged, tier)
	if err != nil {
		return nil, err
	}

	sideReserve := lp
	if leveraged {
		sideReserve = apes
	}
	supply := e.ledger.TotalSupply(id, side)

	minted := new(big.Int)
	if supply.Sign() == 0 || sideReserve.Sign() == 0 {
		if amount.Cmp(e.minLiq) < 0 {
			return nil, fmt.Errorf("first deposit %s below floor %s: %w", amount, e.minLiq, ErrLiquidityTooLow)
		}
		minted.Set(bd.Net)
	} else {
		minted.Mul(bd.Net, supply)
		minted.Quo(minted, sideReserve)
	}
	if minted.Sign() == 0 {
		return nil, fmt.Errorf("deposit too small to mint: %w", ledger.ErrNonPositiveAmount)
	}

	newApes := new(big.Int).Set(apes)
	newLP := new(big.Int).Set(lp)
	if leveraged {
		newApes.Add(newApes, bd.Net)
	} else {
		newLP.Add(newLP, bd.Net)
	}
	newLP.Add(newLP, bd.ToLiquidity)
	// The POL cut is valued at the post-deposit point: the depositor's tokens
	// and net collateral are both already counted.
	lpSupply := e.ledger.TotalSupply(id, ledger.Liquidity)
	if !leveraged {
		lpSupply = new(big.Int).Add(lpSupply, minted)
	}
	polMinted := polShare(lpSupply, bd.ToPOL, newLP)
	newLP.Add(newLP, bd.ToPOL)

	newTotal := new(big.Int).Add(rec.total, amount)
	newTotal.Sub(newTotal, bd.ToStakers)
	newTotal.Sub(newTotal, bd.ToTreasury)

	// All checks passed: commit.
	if err := e.ledger.Mint(id, side, to, minted); err != nil {
		return nil, err
	}
	if polMinted.Sign() > 0 {
		if err := e.ledger.Mint(id, ledger.Liquidity, POLAccount, polMinted); err != nil {
			return nil, err
		}
	}
	e.staking.DepositFees(rec.params.Collateral, bd.ToStakers)
	e.accrueTreasury(rec.params.Collateral, bd.ToTreasury)

	rec.total = newTotal
	rec.tickSat = saturationTick(newApes, newLP, newTotal, price, tier)

	e.sink.Emit(events.Minted{
		VaultID: id, Leveraged: leveraged,
		TokensMinted: minted, POLMinted: polMinted,
		Fees: feeAmounts(amount, bd), At: now,
	})
	e.logger.Debug("minted",
		zap.Uint32("vault_id", id),
		zap.String("side", side.String()),
		zap.String("amount", amount.String()),
		zap.String("tokens", minted.String()),
	)
	return minted, nil
}

// Burn redeems claim tokens for the side's pro-rata collateral, minus the
// fee, and returns the net collateral released to the caller. A partial burn
// may not leave the side's reserve below the minimum liquidity floor.
func (e *Engine) Burn(ctx context.Context, id uint32, side ledger.Side, from common.Address, tokens *big.Int, now uint64) (*big.Int, error) {
	if tokens == nil || tokens.Sign() <= 0 {
		return nil, ledger.ErrNonPositiveAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(id)
	if err != nil {
		return nil, err
	}
	supply := e.ledger.TotalSupply(id, side)
	if supply.Sign() == 0 || tokens.Cmp(supply) > 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	if e.ledger.BalanceOf(id, side, from).Cmp(tokens) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}

	tier := rec.params.LeverageTier
	price, err := e.oracle.Update(ctx, rec.params.Collateral, rec.params.Debt, now)
	if err != nil {
		return nil, fmt.Errorf("refresh price: %w", err)
	}
	apes, lp := ComputeReserves(rec.total, price, rec.tickSat, tier)

	leveraged := side == ledger.Leveraged
	sideReserve := lp
	if leveraged {
		sideReserve = apes
	}

	gross := new(big.Int).Mul(tokens, sideReserve)
	gross.Quo(gross, supply)

	// The floor binds on what the redemption leaves behind, before this
	// call's own fees flow back into the liquidity side.
	remaining := new(big.Int).Sub(sideReserve, gross)
	if remaining.Sign() != 0 && remaining.Cmp(e.minLiq) < 0 {
		return nil, fmt.Errorf("remaining %s below floor %s: %w", remaining, e.minLiq, ErrLiquidityTooLow)
	}

	bd, err := e.calc.OnGross(gross, leveraged, tier)
	if err != nil {
		return nil, err
	}

	newApes := new(big.Int).Set(apes)
	newLP := new(big.Int).Set(lp)
	if leveraged {
		newApes.Sub(newApes, gross)
	} else {
		newLP.Sub(newLP, gross)
	}
	newLP.Add(newLP, bd.ToLiquidity)
	// Post-redemption valuation: the burner's tokens and collateral are gone
	// from both supply and reserve before the POL cut is priced.
	lpSupply := e.ledger.TotalSupply(id, ledger.Liquidity)
	if !leveraged {
		lpSupply = new(big.Int).Sub(lpSupply, tokens)
	}
	polMinted := polShare(lpSupply, bd.ToPOL, newLP)
	newLP.Add(newLP, bd.ToPOL)

	newTotal := new(big.Int).Sub(rec.total, bd.Net)
	newTotal.Sub(newTotal, bd.ToStakers)
	newTotal.Sub(newTotal, bd.ToTreasury)

	if err := e.ledger.Burn(id, side, from, tokens); err != nil {
		return nil, err
	}
	if polMinted.Sign() > 0 {
		if err := e.ledger.Mint(id, ledger.Liquidity, POLAccount, polMinted); err != nil {
			return nil, err
		}
	}
	e.staking.DepositFees(rec.params.Collateral, bd.ToStakers)
	e.accrueTreasury(rec.params.Collateral, bd.ToTreasury)

	rec.total = newTotal
	if newTotal.Sign() == 0 {
		rec.tickSat = 0
	} else {
		rec.tickSat = saturationTick(newApes, newLP, newTotal, price, tier)
	}

	e.sink.Emit(events.Burned{
		VaultID: id, Leveraged: leveraged,
		TokensBurned: new(big.Int).Set(tokens), POLMinted: polMinted,
		Fees: feeAmounts(gross, bd), At: now,
	})
	e.logger.Debug("burned",
		zap.Uint32("vault_id", id),
		zap.String("side", side.String()),
		zap.String("tokens", tokens.String()),
		zap.String("net", bd.Net.String()),
	)
	return new(big.Int).Set(bd.Net), nil
}

// ProtocolFees reports the treasury balance accrued for an asset.
func (e *Engine) ProtocolFees(asset common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if acc, ok := e.treasury[asset]; ok {
		return new(big.Int).Set(acc)
	}
	return new(big.Int)
}

// WithdrawProtocolFees drains and returns the treasury balance for an asset.
func (e *Engine) WithdrawProtocolFees(asset common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, ok := e.treasury[asset]
	if !ok {
		return new(big.Int)
	}
	delete(e.treasury, asset)
	return acc
}

// Snapshot returns a copy of every vault record for persistence.
func (e *Engine) Snapshot() []Info {
	return e.Vaults()
}

// Restore installs persisted vault records at startup. IDs must be the
// contiguous sequence 1..n.
func (e *Engine) Restore(infos []Info) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.records) != 0 {
		return errors.New("restore into a non-empty engine")
	}
	for i, info := range infos {
		if info.ID != uint32(i+1) {
			return fmt.Errorf("non-contiguous vault id %d at position %d", info.ID, i)
		}
		total := info.State.TotalReserve
		if total == nil {
			total = new(big.Int)
		}
		e.records = append(e.records, &record{
			params:  info.Params,
			total:   new(big.Int).Set(total),
			tickSat: info.State.TickSaturationX42,
		})
		e.byParams[info.Params] = info.ID
	}
	return nil
}

func (e *Engine) record(id uint32) (*record, error) {
	if id == 0 || int(id) > len(e.records) {
		return nil, fmt.Errorf("vault %d: %w", id, ErrVaultNotFound)
	}
	return e.records[id-1], nil
}

// polShare values the protocol's cut in liquidity tokens. Supply and reserve
// are both taken at the post-commit point, right before the cut itself is
// added; with no liquidity supply outstanding the cut converts 1:1.
func polShare(lpSupply, toPOL, lpReserve *big.Int) *big.Int {
	if toPOL.Sign() == 0 {
		return new(big.Int)
	}
	if lpSupply.Sign() == 0 || lpReserve.Sign() == 0 {
		return new(big.Int).Set(toPOL)
	}
	share := new(big.Int).Mul(toPOL, lpSupply)
	return share.Quo(share, lpReserve)
}

func (e *Engine) accrueTreasury(asset common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	acc, ok := e.treasury[asset]
	if !ok {
		acc = new(big.Int)
		e.treasury[asset] = acc
	}
	acc.Add(acc, amount)
}

func feeAmounts(gross *big.Int, bd fees.Breakdown) events.FeeAmounts {
	return events.FeeAmounts{
		Gross:       new(big.Int).Set(gross),
		Net:         new(big.Int).Set(bd.Net),
		ToLiquidity: new(big.Int).Set(bd.ToLiquidity),
		ToStakers:   new(big.Int).Set(bd.ToStakers),
		ToPOL:       new(big.Int).Set(bd.ToPOL),
		ToTreasury:  new(big.Int).Set(bd.ToTreasury),
	}
}
