package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"synapse/internal/domain"
	"synapse/internal/market"
)

// Server exposes the position lifecycle over HTTP.
type Server struct {
	market *market.Market
	log    *slog.Logger
}

// NewServer creates a Server backed by the given lifecycle controller.
func NewServer(m *market.Market, log *slog.Logger) *Server {
	return &Server{market: m, log: log}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/market/initialize", s.handleInitialize)
	mux.HandleFunc("GET /api/market/config", s.handleConfig)
	mux.HandleFunc("PUT /api/market/oracle", s.handleSetOracle)
	mux.HandleFunc("POST /api/positions", s.handleOpen)
	mux.HandleFunc("POST /api/positions/{id}/close", s.handleClose)
	mux.HandleFunc("POST /api/positions/{id}/liquidate", s.handleLiquidate)
	mux.HandleFunc("GET /api/positions/{id}", s.handleGetPosition)
	mux.HandleFunc("GET /api/positions/open-count", s.handleOpenCount)
	mux.HandleFunc("GET /api/accounts/{account}/positions", s.handleAccountPositions)
	return corsMiddleware(mux)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "BAD_REQUEST")
		return
	}

	err := s.market.Initialize(r.Context(), market.InitParams{
		Admin:                req.Admin,
		Treasury:             req.Treasury,
		MinCollateral:        req.MinCollateral,
		MaxLeverage:          req.MaxLeverage,
		MaintenanceMarginBPS: req.MaintenanceMarginBPS,
		FundingInterval:      req.FundingInterval,
		StalenessWindow:      req.StalenessWindow,
		PriceDecimals:        req.PriceDecimals,
		OracleRef:            req.OracleRef,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	cfg, err := s.market.Config(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, cfg)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.market.Config(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

func (s *Server) handleSetOracle(w http.ResponseWriter, r *http.Request) {
	var req SetOracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "BAD_REQUEST")
		return
	}

	if err := s.market.SetOracleRef(r.Context(), req.Caller, req.OracleRef); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	cfg, err := s.market.Config(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "BAD_REQUEST")
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account required", "BAD_REQUEST")
		return
	}

	id, err := s.market.Open(r.Context(), req.Account, req.Asset, req.Size, req.Leverage, req.Collateral)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, OpenPositionResponse{PositionID: id})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	res, err := s.market.Close(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, ClosePositionResponse{
		PositionID: res.PositionID,
		Account:    res.Account,
		PnL:        res.PnL,
		Settlement: res.Settlement,
		ClosePrice: res.ClosePrice,
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	res, err := s.market.Liquidate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, LiquidatePositionResponse{
		PositionID: res.PositionID,
		Account:    res.Account,
		Forfeited:  res.Forfeited,
		Treasury:   res.Treasury,
		MarkPrice:  res.MarkPrice,
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	pos, err := s.market.Position(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, pos)
}

func (s *Server) handleAccountPositions(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account required", "BAD_REQUEST")
		return
	}

	ids, err := s.market.AccountPositions(r.Context(), account)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, AccountPositionsResponse{Account: account, PositionIDs: ids})
}

func (s *Server) handleOpenCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.market.OpenPositions(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, OpenCountResponse{Open: n})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func positionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid position id", "BAD_REQUEST")
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors onto HTTP statuses. Validation failures are
// 422 so they are distinguishable from malformed requests.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyInitialized),
		errors.Is(err, domain.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPriceStale),
		errors.Is(err, domain.ErrOracle):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidLeverage),
		errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.Is(err, domain.ErrInsufficientCollateral),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrPositionTooSmall),
		errors.Is(err, domain.ErrMaintenanceMarginNotMet):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error(), domain.ErrorCode(err))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code})
}
