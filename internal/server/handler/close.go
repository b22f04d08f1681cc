package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/service"
)

// CloseService defines the methods the close handler requires.
type CloseService interface {
	Preview(ctx context.Context, req service.CloseRequest) (service.ClosePreview, error)
	Submit(ctx context.Context, req service.CloseRequest) (domain.CloseSubmission, error)
	EnableOrders(ctx context.Context, account common.Address) (domain.UnsignedTx, error)
}

// CloseHandler serves the close preview and submission endpoints.
type CloseHandler struct {
	closes CloseService
	logger *slog.Logger
}

// NewCloseHandler creates a CloseHandler.
func NewCloseHandler(closes CloseService, logger *slog.Logger) *CloseHandler {
	return &CloseHandler{closes: closes, logger: logger}
}

func (h *CloseHandler) decode(w http.ResponseWriter, r *http.Request) (service.CloseRequest, bool) {
	var body CloseRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return service.CloseRequest{}, false
	}
	req, err := body.Request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return service.CloseRequest{}, false
	}
	return req, true
}

// Preview computes the close plan. A rejected or incomplete plan is still a
// 200; the rejection travels in the body.
// POST /api/close/preview
func (h *CloseHandler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	pv, err := h.closes.Preview(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "preview close", err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// Submit validates the close and hands the unsigned transaction to the
// signer stream.
// POST /api/close/submit
func (h *CloseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	sub, err := h.closes.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "submit close", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

type enableOrdersRequest struct {
	Account string `json:"account"`
}

// EnableOrders returns the approval transaction trigger closes need.
// POST /api/orders/approve
func (h *CloseHandler) EnableOrders(w http.ResponseWriter, r *http.Request) {
	var body enableOrdersRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(body.Account) {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	tx, err := h.closes.EnableOrders(r.Context(), common.HexToAddress(body.Account))
	if err != nil {
		writeServiceError(w, r, h.logger, "enable orders", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
