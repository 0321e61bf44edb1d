// Package web exposes the protocol core over HTTP: vault lifecycle, mint and
// burn flows, reserve and price queries. Operations that need a time instant
// resolve it from the chain head, so API-driven flows and keeper-driven flows
// share the same clock.
package web

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SIR-trading/Core-sub003/internal/keeper"
	"github.com/SIR-trading/Core-sub003/internal/ledger"
	"github.com/SIR-trading/Core-sub003/internal/oracle"
	"github.com/SIR-trading/Core-sub003/internal/vault"
)

// Server wires the engine and oracle behind a mux router.
type Server struct {
	engine *vault.Engine
	oracle *oracle.Oracle
	head   keeper.HeadSource
	logger *zap.Logger
	router *mux.Router
}

func NewServer(engine *vault.Engine, o *oracle.Oracle, head keeper.HeadSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		oracle: o,
		head:   head,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	s.router.HandleFunc("/fee-tiers", s.handleListFeeTiers).Methods(http.MethodGet)
	s.router.HandleFunc("/fee-tiers", s.handleRegisterFeeTier).Methods(http.MethodPost)
	s.router.HandleFunc("/vaults", s.handleListVaults).Methods(http.MethodGet)
	s.router.HandleFunc("/vaults", s.handleCreateVault).Methods(http.MethodPost)
	s.router.HandleFunc("/vaults/{id:[0-9]+}", s.handleGetVault).Methods(http.MethodGet)
	s.router.HandleFunc("/vaults/{id:[0-9]+}/reserves", s.handleReserves).Methods(http.MethodGet)
	s.router.HandleFunc("/vaults/{id:[0-9]+}/mint", s.handleMint).Methods(http.MethodPost)
	s.router.HandleFunc("/vaults/{id:[0-9]+}/burn", s.handleBurn).Methods(http.MethodPost)
}

type vaultResponse struct {
	ID             uint32 `json:"id"`
	Debt           string `json:"debt"`
	Collateral     string `json:"collateral"`
	LeverageTier   int8   `json:"leverage_tier"`
	TotalReserve   string `json:"total_reserve"`
	TickSaturation int64  `json:"tick_saturation_x42"`
}

func toVaultResponse(info vault.Info) vaultResponse {
	return vaultResponse{
		ID:             info.ID,
		Debt:           info.Params.Debt.Hex(),
		Collateral:     info.Params.Collateral.Hex(),
		LeverageTier:   info.Params.LeverageTier,
		TotalReserve:   info.State.TotalReserve.String(),
		TickSaturation: info.State.TickSaturationX42,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	collateral, ok := parseAddress(w, r.URL.Query().Get("collateral"))
	if !ok {
		return
	}
	debt, ok := parseAddress(w, r.URL.Query().Get("debt"))
	if !ok {
		return
	}
	now, ok := s.now(w, r)
	if !ok {
		return
	}
	tick, err := s.oracle.Price(r.Context(), collateral, debt, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collateral":     collateral.Hex(),
		"debt":           debt.Hex(),
		"tick_price_x42": tick,
		"at":             now,
	})
}

func (s *Server) handleListFeeTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.FeeTiers())
}

func (s *Server) handleRegisterFeeTier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fee uint32 `json:"fee"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.oracle.RegisterFeeTier(r.Context(), req.Fee); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint32{"fee": req.Fee})
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	infos := s.engine.Vaults()
	out := make([]vaultResponse, len(infos))
	for i, info := range infos {
		out[i] = toVaultResponse(info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Debt         string `json:"debt"`
		Collateral   string `json:"collateral"`
		LeverageTier int8   `json:"leverage_tier"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	debt, ok := parseAddress(w, req.Debt)
	if !ok {
		return
	}
	collateral, ok := parseAddress(w, req.Collateral)
	if !ok {
		return
	}
	now, ok := s.now(w, r)
	if !ok {
		return
	}
	id, err := s.engine.CreateVault(r.Context(), vault.Parameters{
		Debt: debt, Collateral: collateral, LeverageTier: req.LeverageTier,
	}, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info := vault.Info{ID: id}
	info.Params, info.State, err = s.engine.Vault(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVaultResponse(info))
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	info := vault.Info{ID: id}
	var err error
	info.Params, info.State, err = s.engine.Vault(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultResponse(info))
}

func (s *Server) handleReserves(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	now, ok := s.now(w, r)
	if !ok {
		return
	}
	res, err := s.engine.ReservesAt(r.Context(), id, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault_id":       id,
		"apes":           res.Apes.String(),
		"lp":             res.LP.String(),
		"tick_price_x42": res.TickPriceX42,
		"at":             now,
	})
}

type flowRequest struct {
	Side    string `json:"side"` // "leveraged" or "liquidity"
	Account string `json:"account"`
	Amount  string `json:"amount"` // collateral for mint, tokens for burn
}

func (s *Server) parseFlow(w http.ResponseWriter, r *http.Request) (ledger.Side, common.Address, *big.Int, bool) {
	var req flowRequest
	if !decodeBody(w, r, &req) {
		return 0, common.Address{}, nil, false
	}
	var side ledger.Side
	switch req.Side {
	case "leveraged":
		side = ledger.Leveraged
	case "liquidity":
		side = ledger.Liquidity
	default:
		writeJSON(w, http.StatusBadRequest, errBody("side must be \"leveraged\" or \"liquidity\""))
		return 0, common.Address{}, nil, false
	}
	account, ok := parseAddress(w, req.Account)
	if !ok {
		return 0, common.Address{}, nil, false
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		writeJSON(w, http.StatusBadRequest, errBody("amount must be a positive decimal string"))
		return 0, common.Address{}, nil, false
	}
	return side, account, amount, true
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	side, account, amount, ok := s.parseFlow(w, r)
	if !ok {
		return
	}
	now, okNow := s.now(w, r)
	if !okNow {
		return
	}
	minted, err := s.engine.Mint(r.Context(), id, side, account, amount, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault_id": id,
		"side":     side.String(),
		"minted":   minted.String(),
		"at":       now,
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	side, account, tokens, ok := s.parseFlow(w, r)
	if !ok {
		return
	}
	now, okNow := s.now(w, r)
	if !okNow {
		return
	}
	net, err := s.engine.Burn(r.Context(), id, side, account, tokens, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault_id": id,
		"side":     side.String(),
		"net":      net.String(),
		"at":       now,
	})
}

// now resolves the request's time instant from the chain head.
func (s *Server) now(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	ts, err := s.head.HeadTimestamp(r.Context())
	if err != nil {
		s.logger.Warn("head timestamp fetch failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errBody("chain head unavailable"))
		return 0, false
	}
	return ts, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vault.ErrVaultExists), errors.Is(err, oracle.ErrFeeTierExists):
		status = http.StatusConflict
	case errors.Is(err, vault.ErrLiquidityTooLow),
		errors.Is(err, vault.ErrAmountTooLarge),
		errors.Is(err, vault.ErrLeverageTierOutOfRange),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNonPositiveAmount),
		errors.Is(err, oracle.ErrNoLiquidityPool),
		errors.Is(err, oracle.ErrNotInitialized),
		errors.Is(err, oracle.ErrFeeTierOutOfBounds):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errBody(err.Error()))
}

func vaultID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errBody("invalid vault id"))
		return 0, false
	}
	return uint32(id), true
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, errBody("invalid address: "+raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
