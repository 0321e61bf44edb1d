// Package events defines the structured notifications the protocol core emits
// as observable side effects: price refreshes, fee-tier changes, vault
// lifecycle and per-call fee breakdowns. Components publish to a Sink; the
// daemon fans out to a zap log sink and a JSONL journal.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Event is a structured notification. Name returns a stable snake_case
// identifier used as the log message / journal discriminator.
type Event interface {
	Name() string
}

// PriceUpdated is emitted on every committed oracle refresh.
type PriceUpdated struct {
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	TickPriceX42 int64          `json:"tick_price_x42"`
	Truncated    bool           `json:"truncated"`
	At           uint64         `json:"at"`
}

func (PriceUpdated) Name() string { return "price_updated" }

// FeeTierSelected is emitted when a pair's source pool changes, including the
// initial selection.
type FeeTierSelected struct {
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
	At          uint64         `json:"at"`
}

func (FeeTierSelected) Name() string { return "fee_tier_selected" }

// BufferGrowthRequested signals that a pool's observation buffer is too short
// for the full TWAP window and should be extended.
type BufferGrowthRequested struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Fee    uint32         `json:"fee"`
	Target uint16         `json:"target"`
}

func (BufferGrowthRequested) Name() string { return "buffer_growth_requested" }

// VaultCreated is emitted once per registered vault.
type VaultCreated struct {
	VaultID      uint32         `json:"vault_id"`
	Debt         common.Address `json:"debt"`
	Collateral   common.Address `json:"collateral"`
	LeverageTier int8           `json:"leverage_tier"`
}

func (VaultCreated) Name() string { return "vault_created" }

// FeeAmounts is the per-call fee breakdown carried by mint and burn events.
type FeeAmounts struct {
	Gross       *big.Int `json:"gross"`
	Net         *big.Int `json:"net"`
	ToLiquidity *big.Int `json:"to_liquidity"`
	ToStakers   *big.Int `json:"to_stakers"`
	ToPOL       *big.Int `json:"to_pol"`
	ToTreasury  *big.Int `json:"to_treasury"`
}

// Minted is emitted after a committed deposit.
type Minted struct {
	VaultID      uint32     `json:"vault_id"`
	Leveraged    bool       `json:"leveraged"`
	TokensMinted *big.Int   `json:"tokens_minted"`
	POLMinted    *big.Int   `json:"pol_minted"`
	Fees         FeeAmounts `json:"fees"`
	At           uint64     `json:"at"`
}

func (Minted) Name() string { return "minted" }

// Burned is emitted after a committed withdrawal.
type Burned struct {
	VaultID      uint32     `json:"vault_id"`
	Leveraged    bool       `json:"leveraged"`
	TokensBurned *big.Int   `json:"tokens_burned"`
	POLMinted    *big.Int   `json:"pol_minted"`
	Fees         FeeAmounts `json:"fees"`
	At           uint64     `json:"at"`
}

func (Burned) Name() string { return "burned" }

// Sink consumes events. Implementations must tolerate concurrent Emit calls.
type Sink interface {
	Emit(Event)
}

// NopSink swallows everything.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events as structured zap records.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	s.logger.Info(e.Name(), zap.Any("event", e))
}

// MultiSink fans an event out to every child sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
