package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type rejectionResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Rejection string `json:"rejection"`
}

// writeServiceError maps a service error onto a status code. Unexpected
// errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if rej, ok := service.IsRejection(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, rejectionResponse{
			Error:     "close rejected",
			Code:      string(rej.Code),
			Rejection: rej.Message,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "a close for this account is already in progress")
	case errors.Is(err, domain.ErrApprovalRequired):
		writeError(w, http.StatusUnprocessableEntity, "order book approval required")
	case errors.Is(err, domain.ErrNotComputable):
		writeError(w, http.StatusUnprocessableEntity, "close is not computable yet")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAccount reads a required hex address query parameter.
func parseAccount(r *http.Request) (common.Address, error) {
	s := r.URL.Query().Get("account")
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("account query parameter must be a hex address")
	}
	return common.HexToAddress(s), nil
}

// parseListOpts extracts pagination parameters. Defaults: limit=50 (max
// 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

// CloseRequestBody is the wire form of a close request. Amount and trigger
// price are human USD decimals ("5000", "1834.25"); blank means not entered.
type CloseRequestBody struct {
	Account           string           `json:"account"`
	PositionKey       string           `json:"position_key"`
	OrderType         domain.OrderType `json:"order_type"`
	Amount            string           `json:"amount"`
	TriggerPrice      string           `json:"trigger_price"`
	KeepLeverage      *bool            `json:"keep_leverage,omitempty"`
	PnLInLeverage     *bool            `json:"pnl_in_leverage,omitempty"`
	SlippageBps       *int64           `json:"slippage_bps,omitempty"`
	AcceptForfeit     bool             `json:"accept_forfeit"`
	OrderBookApproved bool             `json:"order_book_approved"`
}

// Request validates the body and converts it for the close service.
func (b CloseRequestBody) Request() (service.CloseRequest, error) {
	if !common.IsHexAddress(b.Account) {
		return service.CloseRequest{}, fmt.Errorf("account must be a hex address: %w", domain.ErrInvalidInput)
	}
	if b.PositionKey == "" {
		return service.CloseRequest{}, fmt.Errorf("position_key is required: %w", domain.ErrInvalidInput)
	}
	amount, err := fixed.ParseOptional(b.Amount, 30)
	if err != nil {
		return service.CloseRequest{}, fmt.Errorf("amount: %w", errors.Join(err, domain.ErrInvalidInput))
	}
	trigger, err := fixed.ParseOptional(b.TriggerPrice, 30)
	if err != nil {
		return service.CloseRequest{}, fmt.Errorf("trigger_price: %w", errors.Join(err, domain.ErrInvalidInput))
	}
	if b.SlippageBps != nil && (*b.SlippageBps < 0 || *b.SlippageBps >= 10_000) {
		return service.CloseRequest{}, fmt.Errorf("slippage_bps out of range: %w", domain.ErrInvalidInput)
	}
	return service.CloseRequest{
		Account:           common.HexToAddress(b.Account),
		PositionKey:       b.PositionKey,
		OrderType:         b.OrderType,
		Amount:            amount,
		TriggerPrice:      trigger,
		KeepLeverage:      b.KeepLeverage,
		PnLInLeverage:     b.PnLInLeverage,
		SlippageBps:       b.SlippageBps,
		AcceptForfeit:     b.AcceptForfeit,
		OrderBookApproved: b.OrderBookApproved,
	}, nil
}
