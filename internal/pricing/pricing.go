// Package pricing converts between USD amounts at the 1e30 scale and
// token-native amounts using a token's bid or ask.
package pricing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

const (
	// USDDecimals is the scale of every USD amount and price.
	USDDecimals = 30
	// StableDecimals is the token scale of the USD-pegged pseudo token.
	StableDecimals = 18
)

var (
	usdUnit    = fixed.Pow10(USDDecimals)
	stableUnit = fixed.Pow10(StableDecimals)
)

// Converter holds the address of the USD-pegged pseudo token, which is
// converted 1:1 without a price lookup.
type Converter struct {
	Stable common.Address
}

// NewConverter returns a Converter for the given stable pseudo token.
func NewConverter(stable common.Address) Converter {
	return Converter{Stable: stable}
}

// USDToToken returns usd * 10^decimals / price, where price is the token's
// ask when useAsk is set and its bid otherwise. A nil result means the value
// is not computable yet: usd is absent or zero, or that side of the spread
// has not been priced.
func (c Converter) USDToToken(usd *fixed.Int, token domain.Token, useAsk bool) (*fixed.Int, error) {
	if usd == nil || usd.IsZero() {
		return nil, nil
	}
	if token.Address == c.Stable {
		out, err := usd.MulDiv(stableUnit, usdUnit)
		if err != nil {
			return nil, fmt.Errorf("pricing: usd to stable: %w", err)
		}
		return &out, nil
	}
	price := token.Price(useAsk)
	if price == nil || price.Sign() <= 0 {
		return nil, nil
	}
	out, err := usd.MulDiv(fixed.Pow10(token.Decimals), *price)
	if err != nil {
		return nil, fmt.Errorf("pricing: usd to %s: %w", token.Symbol, err)
	}
	return &out, nil
}

// TokenToUSD is the inverse of USDToToken: amount * price / 10^decimals.
func (c Converter) TokenToUSD(amount *fixed.Int, token domain.Token, useAsk bool) (*fixed.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil
	}
	if token.Address == c.Stable {
		out, err := amount.MulDiv(usdUnit, stableUnit)
		if err != nil {
			return nil, fmt.Errorf("pricing: stable to usd: %w", err)
		}
		return &out, nil
	}
	price := token.Price(useAsk)
	if price == nil || price.Sign() <= 0 {
		return nil, nil
	}
	out, err := amount.MulDiv(*price, fixed.Pow10(token.Decimals))
	if err != nil {
		return nil, fmt.Errorf("pricing: %s to usd: %w", token.Symbol, err)
	}
	return &out, nil
}
