// Package contract encodes close requests into unsigned Router and OrderBook
// transactions for an external signer.
package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

const (
	MethodDecreasePosition    = "decreasePosition"
	MethodDecreasePositionETH = "decreasePositionETH"
	MethodApprovePlugin       = "approvePlugin"
	MethodCreateDecreaseOrder = "createDecreaseOrder"
)

// Encoder builds calldata for the perpetual exchange contracts.
type Encoder struct {
	router    common.Address
	orderBook common.Address
	routerABI abi.ABI
	bookABI   abi.ABI
}

// NewEncoder parses the contract ABIs for the given deployment.
func NewEncoder(router, orderBook common.Address) (*Encoder, error) {
	r, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("contract: parse router abi: %w", err)
	}
	b, err := abi.JSON(strings.NewReader(orderBookABI))
	if err != nil {
		return nil, fmt.Errorf("contract: parse order book abi: %w", err)
	}
	return &Encoder{router: router, orderBook: orderBook, routerABI: r, bookABI: b}, nil
}

// DecreasePosition encodes a market decrease on the router. Closes paying
// out in the native currency go through decreasePositionETH.
func (e *Encoder) DecreasePosition(req domain.DecreasePositionRequest) (domain.UnsignedTx, error) {
	method := MethodDecreasePosition
	if req.ReceiveNative {
		method = MethodDecreasePositionETH
	}
	if err := unsigned(method, req.CollateralDelta, req.SizeDelta, req.AcceptablePrice); err != nil {
		return domain.UnsignedTx{}, err
	}
	data, err := e.routerABI.Pack(method,
		req.CollateralToken,
		req.IndexToken,
		uint256(req.CollateralDelta),
		uint256(req.SizeDelta),
		req.IsLong,
		req.Recipient,
		uint256(req.AcceptablePrice),
	)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("contract: pack %s: %w", method, err)
	}
	return e.tx(e.router, method, data, nil), nil
}

// CreateDecreaseOrder encodes a trigger decrease order. The execution fee is
// sent as value.
func (e *Encoder) CreateDecreaseOrder(req domain.DecreaseOrderRequest) (domain.UnsignedTx, error) {
	if err := unsigned(MethodCreateDecreaseOrder, req.SizeDelta, req.CollateralDelta, req.TriggerPrice); err != nil {
		return domain.UnsignedTx{}, err
	}
	data, err := e.bookABI.Pack(MethodCreateDecreaseOrder,
		req.IndexToken,
		uint256(req.SizeDelta),
		req.CollateralToken,
		uint256(req.CollateralDelta),
		req.IsLong,
		uint256(req.TriggerPrice),
		req.TriggerAboveThreshold,
	)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("contract: pack %s: %w", MethodCreateDecreaseOrder, err)
	}
	return e.tx(e.orderBook, MethodCreateDecreaseOrder, data, req.ExecutionFee), nil
}

// ApprovePlugin encodes the router call that lets the order book act on the
// trader's positions.
func (e *Encoder) ApprovePlugin() (domain.UnsignedTx, error) {
	data, err := e.routerABI.Pack(MethodApprovePlugin, e.orderBook)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("contract: pack %s: %w", MethodApprovePlugin, err)
	}
	return e.tx(e.router, MethodApprovePlugin, data, nil), nil
}

func (e *Encoder) tx(to common.Address, method string, data []byte, value *big.Int) domain.UnsignedTx {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return domain.UnsignedTx{
		To:     to,
		Data:   hexutil.Bytes(data),
		Value:  (*hexutil.Big)(v),
		Method: method,
	}
}

func uint256(v fixed.Int) *big.Int {
	return v.Big()
}

func unsigned(method string, vs ...fixed.Int) error {
	for _, v := range vs {
		if v.Sign() < 0 {
			return fmt.Errorf("contract: %s: negative amount %s: %w", method, v, domain.ErrInvalidInput)
		}
	}
	return nil
}
