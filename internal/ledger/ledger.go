// Package ledger declares the claim-token bookkeeping the reserve engine
// depends on but does not implement: two fungible claims per vault (a
// leveraged token and a liquidity-provider token) plus the staking module
// that receives fee deposits. An in-memory implementation is provided for
// the service and for tests.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Side selects one of a vault's two claim tokens.
type Side uint8

const (
	Liquidity Side = iota
	Leveraged
)

func (s Side) String() string {
	if s == Leveraged {
		return "leveraged"
	}
	return "liquidity"
}

var (
	ErrInsufficientBalance = errors.New("insufficient claim balance")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
)

// Ledger is the narrow interface of the two claim-token ledgers.
type Ledger interface {
	Mint(vaultID uint32, side Side, to common.Address, amount *big.Int) error
	Burn(vaultID uint32, side Side, from common.Address, amount *big.Int) error
	TotalSupply(vaultID uint32, side Side) *big.Int
	BalanceOf(vaultID uint32, side Side, owner common.Address) *big.Int
}

// Staking receives the fee-to-stakers share of every mint and burn.
type Staking interface {
	DepositFees(asset common.Address, amount *big.Int)
}

type claimKey struct {
	vaultID uint32
	side    Side
}

type claim struct {
	supply   *big.Int
	balances map[common.Address]*big.Int
}

// InMemory is a mutex-guarded Ledger implementation.
type InMemory struct {
	mu     sync.Mutex
	claims map[claimKey]*claim
}

func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[claimKey]*claim)}
}

func (l *InMemory) claimFor(vaultID uint32, side Side) *claim {
	key := claimKey{vaultID: vaultID, side: side}
	c, ok := l.claims[key]
	if !ok {
		c = &claim{supply: new(big.Int), balances: make(map[common.Address]*big.Int)}
		l.claims[key] = c
	}
	return c
}

func (l *InMemory) Mint(vaultID uint32, side Side, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.claimFor(vaultID, side)
	c.supply.Add(c.supply, amount)
	bal, ok := c.balances[to]
	if !ok {
		bal = new(big.Int)
		c.balances[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

func (l *InMemory) Burn(vaultID uint32, side Side, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.claimFor(vaultID, side)
	bal, ok := c.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from %s: %w", amount, from.Hex(), ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	c.supply.Sub(c.supply, amount)
	return nil
}

func (l *InMemory) TotalSupply(vaultID uint32, side Side) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.claimFor(vaultID, side).supply)
}

func (l *InMemory) BalanceOf(vaultID uint32, side Side, owner common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.claimFor(vaultID, side).balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// FeeAccumulator is a Staking implementation that just tallies deposits per
// asset, standing in for the reward module this service does not run.
type FeeAccumulator struct {
	mu     sync.Mutex
	totals map[common.Address]*big.Int
}

func NewFeeAccumulator() *FeeAccumulator {
	return &FeeAccumulator{totals: make(map[common.Address]*big.Int)}
}

func (a *FeeAccumulator) DepositFees(asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	total, ok := a.totals[asset]
	if !ok {
		total = new(big.Int)
		a.totals[asset] = total
	}
	total.Add(total, amount)
}

// Total returns the accumulated fee deposits for an asset.
func (a *FeeAccumulator) Total(asset common.Address) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if total, ok := a.totals[asset]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}
