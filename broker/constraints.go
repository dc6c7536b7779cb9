package broker

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolConstraints are the venue's quantisation rules for one symbol.
// Zero values mean the venue imposes no such rule.
type SymbolConstraints struct {
	Symbol      string
	LotStep     decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
	PriceStep   decimal.Decimal
}

// RoundQty floors qty to a multiple of LotStep. Rounding down keeps the
// order within the quantity the risk gate sized.
func (c SymbolConstraints) RoundQty(qty float64) float64 {
	d := decimal.NewFromFloat(qty)
	if c.LotStep.IsPositive() {
		d = d.Div(c.LotStep).Floor().Mul(c.LotStep)
	}
	if c.MaxQty.IsPositive() && d.GreaterThan(c.MaxQty) {
		d = c.MaxQty
		if c.LotStep.IsPositive() {
			d = d.Div(c.LotStep).Floor().Mul(c.LotStep)
		}
	}
	f, _ := d.Float64()
	return f
}

// RoundPrice rounds price to the nearest PriceStep.
func (c SymbolConstraints) RoundPrice(price float64) float64 {
	if !c.PriceStep.IsPositive() {
		return price
	}
	d := decimal.NewFromFloat(price).Div(c.PriceStep).Round(0).Mul(c.PriceStep)
	f, _ := d.Float64()
	return f
}

// QtyString renders qty with exactly as many decimals as LotStep uses,
// which is what exchanges expect on the wire.
func (c SymbolConstraints) QtyString(qty float64) string {
	d := decimal.NewFromFloat(qty)
	if c.LotStep.IsPositive() {
		places := decimalPlaces(c.LotStep)
		return d.Truncate(places).StringFixed(places)
	}
	return d.String()
}

// decimalPlaces counts significant decimals, so 0.00100000 has three.
func decimalPlaces(step decimal.Decimal) int32 {
	s := step.String()
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return int32(len(s) - i - 1)
		}
	}
	return 0
}

// Check reports why an order of qty at price would be refused, or nil.
func (c SymbolConstraints) Check(qty, price float64) error {
	q := decimal.NewFromFloat(qty)
	if !q.IsPositive() {
		return fmt.Errorf("quantity %s is not positive", q)
	}
	if c.MinQty.IsPositive() && q.LessThan(c.MinQty) {
		return fmt.Errorf("quantity %s below minimum %s", q, c.MinQty)
	}
	if c.MinNotional.IsPositive() {
		notional := q.Mul(decimal.NewFromFloat(price))
		if notional.LessThan(c.MinNotional) {
			return fmt.Errorf("notional %s below minimum %s", notional.StringFixed(8), c.MinNotional)
		}
	}
	return nil
}
