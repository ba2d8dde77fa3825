package position

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/contract"
	"github.com/synthos/mint-engine/internal/dmath"
	"github.com/synthos/mint-engine/internal/metrics"
	"github.com/synthos/mint-engine/internal/model"
	"github.com/synthos/mint-engine/internal/oracle"
	"github.com/synthos/mint-engine/internal/registry"
	"github.com/synthos/mint-engine/internal/risk"
	"github.com/synthos/mint-engine/internal/store"
)

// HandleOpenPosition handles POST /api/v1/positions.
func (s *Service) HandleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Sender == "" {
		writeError(w, "sender is required", http.StatusBadRequest)
		return
	}

	result, err := s.OpenPosition(r.Context(), req)
	if err != nil {
		writeOpError(w, "open_position", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleDeposit handles POST /api/v1/positions/{positionIdx}/deposit.
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	idx, ok := positionIdx(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Sender == "" {
		writeError(w, "sender is required", http.StatusBadRequest)
		return
	}
	req.PositionIdx = idx

	result, err := s.Deposit(r.Context(), req)
	if err != nil {
		writeOpError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleWithdraw handles POST /api/v1/positions/{positionIdx}/withdraw.
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	idx, ok := positionIdx(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Sender == "" {
		writeError(w, "sender is required", http.StatusBadRequest)
		return
	}
	req.PositionIdx = idx

	result, err := s.Withdraw(r.Context(), req)
	if err != nil {
		writeOpError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleMint handles POST /api/v1/positions/{positionIdx}/mint.
func (s *Service) HandleMint(w http.ResponseWriter, r *http.Request) {
	idx, ok := positionIdx(w, r)
	if !ok {
		return
	}
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Sender == "" {
		writeError(w, "sender is required", http.StatusBadRequest)
		return
	}
	req.PositionIdx = idx

	result, err := s.Mint(r.Context(), req)
	if err != nil {
		writeOpError(w, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetPosition handles GET /api/v1/positions/{positionIdx}.
func (s *Service) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	idx, ok := positionIdx(w, r)
	if !ok {
		return
	}
	pos, err := s.Position(r.Context(), idx)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// PositionsResponse is the listing envelope.
type PositionsResponse struct {
	Positions []model.Position `json:"positions"`
}

// HandleListPositions handles GET /api/v1/positions with optional
// owner=, asset=, start_after=, limit= and order= query parameters.
func (s *Service) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	q := PositionsQuery{
		Owner:      r.URL.Query().Get("owner"),
		AssetToken: r.URL.Query().Get("asset"),
	}

	if v := r.URL.Query().Get("start_after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, "invalid start_after", http.StatusBadRequest)
			return
		}
		q.StartAfter = &after
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}
	switch r.URL.Query().Get("order") {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		writeError(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}

	positions, err := s.Positions(r.Context(), q)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, PositionsResponse{Positions: positions})
}

// NextIdxResponse reports the idx the next open will use.
type NextIdxResponse struct {
	NextPositionIdx uint64 `json:"next_position_idx"`
}

// HandleNextPositionIdx handles GET /api/v1/positions/next-idx.
func (s *Service) HandleNextPositionIdx(w http.ResponseWriter, r *http.Request) {
	idx, err := s.NextPositionIdx(r.Context())
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, NextIdxResponse{NextPositionIdx: idx})
}

// --- Asset registry administration ---

// RegisterAssetRequest lists a new synthetic asset.
type RegisterAssetRequest struct {
	Token              string          `json:"token"`
	MinCollateralRatio decimal.Decimal `json:"min_collateral_ratio"`
}

// HandleRegisterAsset handles POST /api/v1/assets.
func (s *Service) HandleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := &model.AssetConfig{Token: req.Token, MinCollateralRatio: req.MinCollateralRatio}
	if err := s.registry.Register(r.Context(), cfg); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// MigrateAssetRequest freezes a listed asset at a settlement price.
type MigrateAssetRequest struct {
	Token    string          `json:"token"`
	EndPrice decimal.Decimal `json:"end_price"`
}

// HandleMigrateAsset handles POST /api/v1/assets/migrate.
func (s *Service) HandleMigrateAsset(w http.ResponseWriter, r *http.Request) {
	var req MigrateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.registry.RegisterMigration(r.Context(), req.Token, req.EndPrice); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	cfg, err := s.registry.AssetConfig(r.Context(), req.Token)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// HandleGetAssetConfig handles GET /api/v1/assets/{token}.
func (s *Service) HandleGetAssetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.AssetConfig(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// --- Error mapping and response helpers ---

// errStatus maps a domain error to its HTTP status.
func errStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, store.ErrPositionNotFound),
		errors.Is(err, registry.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAssetMigrated),
		errors.Is(err, registry.ErrAssetExists),
		errors.Is(err, ErrCollateralRevoked),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrWithdrawExceedsBalance),
		errors.Is(err, risk.ErrPositionLimitExceeded),
		errors.Is(err, risk.ErrExposureLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrPriceUnavailable),
		errors.Is(err, oracle.ErrStalePrice):
		return http.StatusBadGateway
	case errors.Is(err, dmath.ErrOverflow),
		errors.Is(err, dmath.ErrDivideByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrCollateralMismatch),
		errors.Is(err, ErrAssetMismatch),
		errors.Is(err, ErrSyntheticNotToken),
		errors.Is(err, ErrRatioBelowMinimum),
		errors.Is(err, ErrMintAmountZero),
		errors.Is(err, ErrConflictingFilter),
		errors.Is(err, model.ErrInvalidAssetInfo),
		errors.Is(err, contract.ErrInvalidTokenIdent),
		errors.Is(err, contract.ErrInvalidDenom),
		errors.Is(err, registry.ErrRatioTooLow),
		errors.Is(err, registry.ErrInvalidEndPrice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeOpError records the failure for the action and writes the mapped
// error response.
func writeOpError(w http.ResponseWriter, action string, err error) {
	metrics.OperationFailures.WithLabelValues(action).Inc()
	writeError(w, err.Error(), errStatus(err))
}

func positionIdx(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "positionIdx"), 10, 64)
	if err != nil {
		writeError(w, "invalid position idx", http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
