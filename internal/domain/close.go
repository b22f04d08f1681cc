package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// DecreaseOrderRequest is handed to the order book to create a trigger
// decrease order.
type DecreaseOrderRequest struct {
	IndexToken            common.Address `json:"index_token"`
	SizeDelta             fixed.Int      `json:"size_delta"`
	CollateralToken       common.Address `json:"collateral_token"`
	CollateralDelta       fixed.Int      `json:"collateral_delta"`
	IsLong                bool           `json:"is_long"`
	TriggerPrice          fixed.Int      `json:"trigger_price"`
	TriggerAboveThreshold bool           `json:"trigger_above_threshold"`
	ExecutionFee          *big.Int       `json:"execution_fee"` // wei, sent as msg.value
}

// DecreasePositionRequest is handed to the router for an immediate market
// decrease.
type DecreasePositionRequest struct {
	CollateralToken common.Address `json:"collateral_token"`
	IndexToken      common.Address `json:"index_token"`
	CollateralDelta fixed.Int      `json:"collateral_delta"`
	SizeDelta       fixed.Int      `json:"size_delta"`
	IsLong          bool           `json:"is_long"`
	Recipient       common.Address `json:"recipient"`
	AcceptablePrice fixed.Int      `json:"acceptable_price"`
	// ReceiveNative pays the released collateral out as the chain's native
	// currency (router.decreasePositionETH).
	ReceiveNative bool `json:"receive_native"`
}
