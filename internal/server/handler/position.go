package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// MarketState defines the read side of the market-state service.
type MarketState interface {
	Position(ctx context.Context, account common.Address, key string) (domain.Position, error)
	Positions(ctx context.Context, account common.Address) ([]domain.Position, error)
	Orders(ctx context.Context, account common.Address) ([]domain.ConditionalOrder, error)
}

// PositionHandler serves position and resting order lookups.
type PositionHandler struct {
	state  MarketState
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(state MarketState, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{state: state, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

type listOrdersResponse struct {
	Orders []domain.ConditionalOrder `json:"orders"`
}

// GetPosition returns one position with the latest quotes applied.
// GET /api/positions/{key}?account=0x...
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := h.state.Position(r.Context(), account, r.PathValue("key"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ListPositions returns the account's open positions.
// GET /api/positions?account=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	positions, err := h.state.Positions(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListOrders returns the account's resting conditional orders.
// GET /api/orders?account=0x...
func (h *PositionHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.state.Orders(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.ConditionalOrder{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}
