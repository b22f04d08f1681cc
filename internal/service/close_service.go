package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpcloser/internal/closeplan"
	"github.com/alanyoungcy/perpcloser/internal/contract"
	"github.com/alanyoungcy/perpcloser/internal/crypto"
	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// SessionDefaults are the trader preferences applied when a request leaves
// them unset.
type SessionDefaults struct {
	SlippageBps   int64
	KeepLeverage  bool
	OrdersEnabled bool
	PnLInLeverage bool
}

// CloseServiceConfig holds the deployment settings of a CloseService.
type CloseServiceConfig struct {
	// ExecutionFee is attached, in wei, to every trigger decrease order.
	ExecutionFee *big.Int
	LockTTL      time.Duration
	Session      SessionDefaults
}

// CloseRequest is one set of trader inputs for closing a position.
type CloseRequest struct {
	Account      common.Address   `json:"account"`
	PositionKey  string           `json:"position_key"`
	OrderType    domain.OrderType `json:"order_type"`
	Amount       *fixed.Int       `json:"amount,omitempty"`
	TriggerPrice *fixed.Int       `json:"trigger_price,omitempty"`
	// Nil preferences fall back to the session defaults.
	KeepLeverage      *bool  `json:"keep_leverage,omitempty"`
	PnLInLeverage     *bool  `json:"pnl_in_leverage,omitempty"`
	SlippageBps       *int64 `json:"slippage_bps,omitempty"`
	AcceptForfeit     bool   `json:"accept_forfeit"`
	OrderBookApproved bool   `json:"order_book_approved"`
}

// ClosePreview is a calculator preview plus the session context it was
// computed under.
type ClosePreview struct {
	closeplan.Preview
	OrdersEnabled bool  `json:"orders_enabled"`
	SlippageBps   int64 `json:"slippage_bps"`
	// ExecutionFee is only set for trigger closes.
	ExecutionFee     *hexutil.Big `json:"execution_fee,omitempty"`
	ExecutionFeeText string       `json:"execution_fee_text,omitempty"`
}

// RejectedError carries the rule a submitted close broke. It matches
// domain.ErrRejected with errors.Is.
type RejectedError struct {
	Rejection closeplan.Rejection
}

func (e *RejectedError) Error() string {
	return "close rejected: " + e.Rejection.Message
}

func (e *RejectedError) Unwrap() error { return domain.ErrRejected }

// CloseService loads market state, runs the close calculator and hands
// accepted closes to the external signer.
type CloseService struct {
	positions domain.PositionStore
	orders    domain.OrderStore
	prices    domain.PriceCache
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	calc      *closeplan.Calculator
	encoder   *contract.Encoder
	sealer    *crypto.Sealer
	cfg       CloseServiceConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewCloseService creates a CloseService with all required dependencies.
func NewCloseService(
	positions domain.PositionStore,
	orders domain.OrderStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	calc *closeplan.Calculator,
	encoder *contract.Encoder,
	sealer *crypto.Sealer,
	cfg CloseServiceConfig,
	logger *slog.Logger,
) *CloseService {
	if cfg.ExecutionFee == nil {
		cfg.ExecutionFee = new(big.Int)
	}
	return &CloseService{
		positions: positions,
		orders:    orders,
		prices:    prices,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		calc:      calc,
		encoder:   encoder,
		sealer:    sealer,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "close_service")),
	}
}

// WithClock replaces the service clock, used for the minimum-profit window.
func (s *CloseService) WithClock(now func() time.Time) *CloseService {
	s.now = now
	return s
}

// Preview computes the close plan for req. Incomplete input is not an
// error: the preview simply carries absent fields and a rejection.
func (s *CloseService) Preview(ctx context.Context, req CloseRequest) (ClosePreview, error) {
	in, orders, err := s.load(ctx, req)
	if err != nil {
		return ClosePreview{}, err
	}
	return s.preview(in, orders, req)
}

func (s *CloseService) preview(in closeplan.Input, orders []domain.ConditionalOrder, req CloseRequest) (ClosePreview, error) {
	pv, err := s.calc.Preview(in, orders)
	if err != nil {
		return ClosePreview{}, fmt.Errorf("close_service: preview: %w", err)
	}
	out := ClosePreview{
		Preview:       pv,
		OrdersEnabled: s.cfg.Session.OrdersEnabled,
		SlippageBps:   s.slippage(req),
	}
	if in.OrderType == domain.OrderTypeTrigger {
		out.ExecutionFee = (*hexutil.Big)(new(big.Int).Set(s.cfg.ExecutionFee))
		fee, err := fixed.FromBig(s.cfg.ExecutionFee)
		if err != nil {
			return ClosePreview{}, fmt.Errorf("close_service: execution fee: %w", err)
		}
		out.ExecutionFeeText = fixed.Format(fee, 18, 4, false) + " ETH"
	}
	return out, nil
}

// Submit validates req and, when it passes, appends the unsigned
// transaction to the close request stream. Only one submission per trader
// is processed at a time; a concurrent one fails with domain.ErrLockHeld.
func (s *CloseService) Submit(ctx context.Context, req CloseRequest) (domain.CloseSubmission, error) {
	unlock, err := s.locks.Acquire(ctx, "close:"+req.Account.Hex(), s.cfg.LockTTL)
	if err != nil {
		return domain.CloseSubmission{}, fmt.Errorf("close_service: acquire lock: %w", err)
	}
	defer unlock()

	in, orders, err := s.load(ctx, req)
	if err != nil {
		return domain.CloseSubmission{}, err
	}
	pv, err := s.preview(in, orders, req)
	if err != nil {
		return domain.CloseSubmission{}, err
	}
	if pv.Rejection != nil {
		return domain.CloseSubmission{}, &RejectedError{Rejection: *pv.Rejection}
	}

	sub := domain.CloseSubmission{
		ID:          uuid.NewString(),
		Account:     req.Account,
		PositionKey: in.Position.Key,
		OrderType:   in.OrderType,
		SubmittedAt: s.now().UTC(),
	}
	switch in.OrderType {
	case domain.OrderTypeTrigger:
		if !req.OrderBookApproved {
			return domain.CloseSubmission{}, fmt.Errorf("close_service: submit: %w", domain.ErrApprovalRequired)
		}
		order, err := s.calc.DecreaseOrder(in, pv.Plan, s.cfg.ExecutionFee)
		if err != nil {
			return domain.CloseSubmission{}, fmt.Errorf("close_service: submit: %w", err)
		}
		if sub.Tx, err = s.encoder.CreateDecreaseOrder(order); err != nil {
			return domain.CloseSubmission{}, fmt.Errorf("close_service: submit: %w", err)
		}
		sub.DecreaseOrder = &order
	default:
		dec, err := s.calc.DecreasePosition(in, pv.Plan, req.Account, s.slippage(req))
		if err != nil {
			return domain.CloseSubmission{}, fmt.Errorf("close_service: submit: %w", err)
		}
		if sub.Tx, err = s.encoder.DecreasePosition(dec); err != nil {
			return domain.CloseSubmission{}, fmt.Errorf("close_service: submit: %w", err)
		}
		sub.DecreasePosition = &dec
	}

	if err := s.handOff(ctx, sub); err != nil {
		return domain.CloseSubmission{}, err
	}

	s.logger.InfoContext(ctx, "close submitted",
		slog.String("id", sub.ID),
		slog.String("account", sub.Account.Hex()),
		slog.String("position_key", sub.PositionKey),
		slog.String("method", sub.Tx.Method),
		slog.String("size_delta", pv.Plan.SizeDelta.String()),
	)
	return sub, nil
}

// handOff appends the sealed submission to the signer stream, then
// announces it and records it. Only the stream append is fatal.
func (s *CloseService) handOff(ctx context.Context, sub domain.CloseSubmission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("close_service: marshal submission: %w", err)
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("close_service: seal submission: %w", err)
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamCloseRequests, sealed); err != nil {
		return fmt.Errorf("close_service: append %s: %w", domain.StreamCloseRequests, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":        "close_submitted",
		"id":           sub.ID,
		"account":      sub.Account.Hex(),
		"position_key": sub.PositionKey,
		"order_type":   string(sub.OrderType),
		"method":       sub.Tx.Method,
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelCloseEvents, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("id", sub.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "close_submitted", map[string]any{
		"id":           sub.ID,
		"account":      sub.Account.Hex(),
		"position_key": sub.PositionKey,
		"order_type":   string(sub.OrderType),
		"method":       sub.Tx.Method,
		"to":           sub.Tx.To.Hex(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("id", sub.ID),
			slog.String("error", auditErr.Error()),
		)
	}
	return nil
}

// EnableOrders returns the router transaction approving the order book as
// a plugin for account. Trigger closes need it once per trader.
func (s *CloseService) EnableOrders(ctx context.Context, account common.Address) (domain.UnsignedTx, error) {
	tx, err := s.encoder.ApprovePlugin()
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("close_service: enable orders: %w", err)
	}
	if auditErr := s.audit.Log(ctx, "orders_enable_requested", map[string]any{
		"account": account.Hex(),
		"to":      tx.To.Hex(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("account", account.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}
	return tx, nil
}

// load reads the position, then the trader's orders and the latest token
// prices concurrently, and assembles the calculator input.
func (s *CloseService) load(ctx context.Context, req CloseRequest) (closeplan.Input, []domain.ConditionalOrder, error) {
	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	if !orderType.Valid() {
		return closeplan.Input{}, nil, fmt.Errorf("close_service: order type %q: %w", req.OrderType, domain.ErrInvalidInput)
	}
	if !s.cfg.Session.OrdersEnabled {
		orderType = domain.OrderTypeMarket
	}

	pos, err := s.positions.GetByKey(ctx, req.Account, req.PositionKey)
	if err != nil {
		return closeplan.Input{}, nil, fmt.Errorf("close_service: load position %s: %w", req.PositionKey, err)
	}

	var (
		orders []domain.ConditionalOrder
		prices map[common.Address]domain.TokenPrice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.orders.ListByAccount(gctx, req.Account)
		if err != nil {
			return fmt.Errorf("close_service: load orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prices, err = s.prices.GetTokenPrices(gctx, []common.Address{pos.IndexToken.Address, pos.CollateralToken.Address})
		if err != nil {
			return fmt.Errorf("close_service: load prices: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return closeplan.Input{}, nil, err
	}

	pos = overlayPrices(pos, prices)
	return closeplan.Input{
		Position:          pos,
		OrderType:         orderType,
		Amount:            req.Amount,
		TriggerPrice:      req.TriggerPrice,
		KeepLeverage:      boolOr(req.KeepLeverage, s.cfg.Session.KeepLeverage),
		PnLInLeverage:     boolOr(req.PnLInLeverage, s.cfg.Session.PnLInLeverage),
		AcceptForfeit:     req.AcceptForfeit,
		OrderBookApproved: req.OrderBookApproved,
		Now:               s.now(),
	}, orders, nil
}

func (s *CloseService) slippage(req CloseRequest) int64 {
	if req.SlippageBps != nil {
		return *req.SlippageBps
	}
	return s.cfg.Session.SlippageBps
}

// overlayPrices applies cached quotes, which are fresher than the stored
// snapshot.
func overlayPrices(pos domain.Position, prices map[common.Address]domain.TokenPrice) domain.Position {
	if p, ok := prices[pos.CollateralToken.Address]; ok {
		pos.CollateralToken.MinPrice = p.MinPrice.Ptr()
		pos.CollateralToken.MaxPrice = p.MaxPrice.Ptr()
	}
	if p, ok := prices[pos.IndexToken.Address]; ok {
		pos = pos.ApplyIndexPrices(p.MinPrice, p.MaxPrice)
		if pos.CollateralToken.Address == pos.IndexToken.Address {
			pos.CollateralToken.MinPrice = pos.IndexToken.MinPrice
			pos.CollateralToken.MaxPrice = pos.IndexToken.MaxPrice
		}
	}
	return pos
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// IsRejection reports whether err is a business-rule rejection and returns
// it.
func IsRejection(err error) (closeplan.Rejection, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Rejection, true
	}
	return closeplan.Rejection{}, false
}
