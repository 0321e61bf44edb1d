// Package postgres persists vault and oracle snapshots. The in-memory engine
// state stays authoritative; the database is a durability layer the daemon
// reloads from at startup.
package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SIR-trading/Core-sub003/internal/oracle"
	"github.com/SIR-trading/Core-sub003/internal/vault"
)

// Store provides Postgres persistence for protocol state snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the snapshot tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vaults (
			vault_id bigint PRIMARY KEY,
			debt_token text NOT NULL,
			collateral_token text NOT NULL,
			leverage_tier smallint NOT NULL,
			total_reserve text NOT NULL,
			tick_saturation bigint NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS oracle_pairs (
			token0 text NOT NULL,
			token1 text NOT NULL,
			tick_price bigint NOT NULL,
			price_updated_at bigint NOT NULL,
			selected_tier smallint NOT NULL,
			probe_tier smallint NOT NULL,
			tier_evaluated_at bigint NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (token0, token1)
		);
	`)
	return err
}

// SaveVaults upserts a full vault snapshot.
func (s *Store) SaveVaults(ctx context.Context, infos []vault.Info) error {
	if len(infos) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, info := range infos {
		batch.Queue(`
			INSERT INTO vaults (
				vault_id, debt_token, collateral_token, leverage_tier, total_reserve, tick_saturation, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (vault_id)
			DO UPDATE SET
				total_reserve = EXCLUDED.total_reserve,
				tick_saturation = EXCLUDED.tick_saturation,
				updated_at = now()
		`,
			int64(info.ID),
			info.Params.Debt.Hex(),
			info.Params.Collateral.Hex(),
			int16(info.Params.LeverageTier),
			info.State.TotalReserve.String(),
			info.State.TickSaturationX42,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range infos {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadVaults returns every stored vault ordered by ID.
func (s *Store) LoadVaults(ctx context.Context) ([]vault.Info, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vault_id, debt_token, collateral_token, leverage_tier, total_reserve, tick_saturation
		FROM vaults ORDER BY vault_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []vault.Info
	for rows.Next() {
		var (
			id      int64
			debt    string
			coll    string
			tier    int16
			total   string
			tickSat int64
		)
		if err := rows.Scan(&id, &debt, &coll, &tier, &total, &tickSat); err != nil {
			return nil, err
		}
		reserve, ok := new(big.Int).SetString(total, 10)
		if !ok {
			return nil, fmt.Errorf("vault %d: bad total_reserve %q", id, total)
		}
		infos = append(infos, vault.Info{
			ID: uint32(id),
			Params: vault.Parameters{
				Debt:         common.HexToAddress(debt),
				Collateral:   common.HexToAddress(coll),
				LeverageTier: int8(tier),
			},
			State: vault.State{
				TotalReserve:      reserve,
				TickSaturationX42: tickSat,
			},
		})
	}
	return infos, rows.Err()
}

// SaveOraclePairs upserts every oracle pair record.
func (s *Store) SaveOraclePairs(ctx context.Context, states map[oracle.PairKey]oracle.PairState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for key, state := range states {
		batch.Queue(`
			INSERT INTO oracle_pairs (
				token0, token1, tick_price, price_updated_at, selected_tier, probe_tier, tier_evaluated_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (token0, token1)
			DO UPDATE SET
				tick_price = EXCLUDED.tick_price,
				price_updated_at = EXCLUDED.price_updated_at,
				selected_tier = EXCLUDED.selected_tier,
				probe_tier = EXCLUDED.probe_tier,
				tier_evaluated_at = EXCLUDED.tier_evaluated_at,
				updated_at = now()
		`,
			key.Token0.Hex(),
			key.Token1.Hex(),
			state.TickPriceX42,
			int64(state.UpdatedAt),
			int16(state.SelectedTier),
			int16(state.ProbeTier),
			int64(state.TierEvaluatedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range states {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadOraclePairs returns every stored pair record, marked initialized.
func (s *Store) LoadOraclePairs(ctx context.Context) (map[oracle.PairKey]oracle.PairState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token0, token1, tick_price, price_updated_at, selected_tier, probe_tier, tier_evaluated_at
		FROM oracle_pairs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[oracle.PairKey]oracle.PairState)
	for rows.Next() {
		var (
			token0    string
			token1    string
			tick      int64
			updatedAt int64
			selected  int16
			probe     int16
			evalAt    int64
		)
		if err := rows.Scan(&token0, &token1, &tick, &updatedAt, &selected, &probe, &evalAt); err != nil {
			return nil, err
		}
		key := oracle.PairKey{
			Token0: common.HexToAddress(token0),
			Token1: common.HexToAddress(token1),
		}
		states[key] = oracle.PairState{
			TickPriceX42:    tick,
			UpdatedAt:       uint64(updatedAt),
			SelectedTier:    uint8(selected),
			ProbeTier:       uint8(probe),
			TierEvaluatedAt: uint64(evalAt),
			Initialized:     true,
		}
	}
	return states, rows.Err()
}
