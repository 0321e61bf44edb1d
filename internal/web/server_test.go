package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SIR-trading/Core-sub003/internal/events"
	"github.com/SIR-trading/Core-sub003/internal/fees"
	"github.com/SIR-trading/Core-sub003/internal/ledger"
	"github.com/SIR-trading/Core-sub003/internal/oracle"
	"github.com/SIR-trading/Core-sub003/internal/univ3"
	"github.com/SIR-trading/Core-sub003/internal/vault"
)

var (
	weth  = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	alice = "0x00000000000000000000000000000000000a11cE"
)

type stubPool struct {
	tick      int64
	liquidity *big.Int
}

func (p *stubPool) Observe(_ context.Context, window uint32) (univ3.Observation, error) {
	return univ3.Observation{
		TickCumulativeDelta: p.tick * int64(window),
		MeanLiquidity:       new(big.Int).Set(p.liquidity),
		Window:              window,
	}, nil
}

func (p *stubPool) Liquidity(context.Context) (*big.Int, error) {
	return new(big.Int).Set(p.liquidity), nil
}

func (p *stubPool) GrowObservationBuffer(context.Context, uint16) error { return nil }

type stubSource struct {
	pool *stubPool
}

func (s *stubSource) Pool(_ context.Context, _, _ common.Address, tier univ3.FeeTier) (univ3.Pool, error) {
	if tier.Fee != 500 {
		return nil, univ3.ErrNoPool
	}
	return s.pool, nil
}

func (s *stubSource) TickSpacing(_ context.Context, fee uint32) (int32, error) {
	return 0, nil
}

type stubHead struct {
	ts uint64
}

func (h *stubHead) HeadTimestamp(context.Context) (uint64, error) { return h.ts, nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubHead) {
	t.Helper()
	calc, err := fees.NewCalculator(0, 0)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	src := &stubSource{pool: &stubPool{tick: 100, liquidity: big.NewInt(1000)}}
	o := oracle.New(src, events.NopSink{}, nil, oracle.Config{})
	engine := vault.NewEngine(o, ledger.NewInMemory(), ledger.NewFeeAccumulator(), calc, events.NopSink{}, nil, 0)
	head := &stubHead{ts: 1_700_000_000}
	srv := httptest.NewServer(NewServer(engine, o, head, nil))
	t.Cleanup(srv.Close)
	return srv, head
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createVault(t *testing.T, base string) uint32 {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/vaults", map[string]any{
		"debt": usdc, "collateral": weth, "leverage_tier": 0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create vault status = %d, body %v", resp.StatusCode, body)
	}
	return uint32(body["id"].(float64))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestVaultLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createVault(t, srv.URL)
	if id != 1 {
		t.Fatalf("vault id = %d, want 1", id)
	}

	// Duplicate parameters conflict.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/vaults", map[string]any{
		"debt": usdc, "collateral": weth, "leverage_tier": 0,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/vaults/1", nil)
	if resp.StatusCode != http.StatusOK || body["total_reserve"] != "0" {
		t.Fatalf("get vault = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/vaults/7", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing vault status = %d, want 404", resp.StatusCode)
	}
}

func TestMintBurnFlow(t *testing.T) {
	srv, head := newTestServer(t)
	id := createVault(t, srv.URL)
	base := fmt.Sprintf("%s/vaults/%d", srv.URL, id)

	resp, body := doJSON(t, http.MethodPost, base+"/mint", map[string]any{
		"side": "liquidity", "account": alice, "amount": "5000",
	})
	if resp.StatusCode != http.StatusOK || body["minted"] != "5000" {
		t.Fatalf("mint = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/reserves", nil)
	if resp.StatusCode != http.StatusOK || body["lp"] != "5000" {
		t.Fatalf("reserves = %d %v", resp.StatusCode, body)
	}

	// A later instant so the burn commits a fresh price.
	head.ts++
	resp, body = doJSON(t, http.MethodPost, base+"/burn", map[string]any{
		"side": "liquidity", "account": alice, "amount": "5000",
	})
	if resp.StatusCode != http.StatusOK || body["net"] != "5000" {
		t.Fatalf("burn = %d %v", resp.StatusCode, body)
	}
}

func TestMintValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createVault(t, srv.URL)
	base := fmt.Sprintf("%s/vaults/%d", srv.URL, id)

	// Below the first-deposit floor.
	resp, _ := doJSON(t, http.MethodPost, base+"/mint", map[string]any{
		"side": "liquidity", "account": alice, "amount": "999",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("floor status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/mint", map[string]any{
		"side": "sideways", "account": alice, "amount": "5000",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad side status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/mint", map[string]any{
		"side": "liquidity", "account": "nonsense", "amount": "5000",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad address status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/burn", map[string]any{
		"side": "liquidity", "account": alice, "amount": "10",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty burn status = %d, want 422", resp.StatusCode)
	}
}

func TestPriceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	createVault(t, srv.URL)

	url := fmt.Sprintf("%s/price?collateral=%s&debt=%s", srv.URL, weth, usdc)
	resp, body := doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("price status = %d %v", resp.StatusCode, body)
	}
	if _, ok := body["tick_price_x42"].(float64); !ok {
		t.Fatalf("price body missing tick: %v", body)
	}

	// Uninitialized pairs are rejected, not silently priced.
	url = fmt.Sprintf("%s/price?collateral=%s&debt=%s", srv.URL, weth, alice)
	resp, _ = doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("uninitialized pair status = %d, want 422", resp.StatusCode)
	}
}

func TestFeeTierEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/fee-tiers", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list tiers status = %d", resp.StatusCode)
	}

	// The stub registry does not know this fee level.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/fee-tiers", map[string]any{"fee": 123})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown tier status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/fee-tiers", map[string]any{"fee": 500})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate tier status = %d, want 409", resp.StatusCode)
	}
}
