package service

import (
	"fmt"

	"truemarket-api/internal/model"

	"github.com/shopspring/decimal"
)

// SaleFeeBp is the marketplace fee charged on a sale, in basis points.
const SaleFeeBp = 1500

var tenThousand = decimal.NewFromInt(10000)

// ProfitCalculator computes fee-adjusted margins against reference prices.
type ProfitCalculator struct{}

// NewProfitCalculator creates a profit calculator.
func NewProfitCalculator() *ProfitCalculator {
	return &ProfitCalculator{}
}

// Calculate evaluates a market price against the Steam average price and,
// when available, against the last sale and lowest buy order prices.
// All prices are USD cents. Missing reference prices yield nil margins,
// never imputed ones.
func (p *ProfitCalculator) Calculate(marketPriceUSD, steamAveragePriceUSD int64, lastSalePrice, lowestBuyOrderPrice *int64) (model.ProfitResult, error) {
	if marketPriceUSD <= 0 {
		return model.ProfitResult{}, fmt.Errorf("%w: market price %d", model.ErrInvalidPrice, marketPriceUSD)
	}
	if steamAveragePriceUSD <= 0 {
		return model.ProfitResult{}, fmt.Errorf("%w: steam average price %d", model.ErrInvalidPrice, steamAveragePriceUSD)
	}

	discountBp := discountBasisPoints(marketPriceUSD, steamAveragePriceUSD)
	profitBp := discountBp - SaleFeeBp

	gain := decimal.NewFromInt(steamAveragePriceUSD).
		Mul(decimal.NewFromInt(profitBp)).
		DivRound(tenThousand, 0).
		IntPart()

	result := model.ProfitResult{
		DiscountBp:           discountBp,
		ProfitBp:             profitBp,
		ExpectedGainUSD:      gain,
		MarketPriceUSD:       marketPriceUSD,
		SteamAveragePriceUSD: steamAveragePriceUSD,
		LastSalePrice:        lastSalePrice,
		LowestBuyOrderPrice:  lowestBuyOrderPrice,
	}

	if lastSalePrice != nil && *lastSalePrice > 0 {
		bp := profitBasisPoints(marketPriceUSD, *lastSalePrice)
		result.ProfitBpVsLastSale = &bp
	}
	if lowestBuyOrderPrice != nil && *lowestBuyOrderPrice > 0 {
		bp := profitBasisPoints(marketPriceUSD, *lowestBuyOrderPrice)
		result.ProfitBpVsLowestOrder = &bp
	}

	return result, nil
}

// discountBasisPoints returns how far below the reference price the market
// price sits, in basis points. The discount ratio (reference - market) /
// reference is taken at four decimal places with half-up rounding, so a
// tie like 0.99985 lands on 0.9999 and not on the truncated side.
func discountBasisPoints(marketPrice, referencePrice int64) int64 {
	return decimal.NewFromInt(referencePrice - marketPrice).
		DivRound(decimal.NewFromInt(referencePrice), 4).
		Mul(tenThousand).
		IntPart()
}

// profitBasisPoints is the discount against a reference price less the
// sale fee.
func profitBasisPoints(marketPrice, referencePrice int64) int64 {
	return discountBasisPoints(marketPrice, referencePrice) - SaleFeeBp
}
