package protocol

import "github.com/shopspring/decimal"

// DefaultPriceExponent is the exponent publishers use for feed prices.
const DefaultPriceExponent int32 = -8

// Price is a signed fixed-point value. Its exponent is not carried on the
// wire; it is agreed per feed out of band.
type Price int64

// Decimal returns the price scaled by 10^exponent.
func (p Price) Decimal(exponent int32) decimal.Decimal {
	return decimal.New(int64(p), exponent)
}

// PriceFromDecimal converts d to its fixed-point mantissa for exponent,
// truncating any extra precision.
func PriceFromDecimal(d decimal.Decimal, exponent int32) Price {
	return Price(d.Shift(-exponent).IntPart())
}
