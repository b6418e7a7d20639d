// Package totals computes line and order totals and the multi-currency totals
// snapshot of an order.
//
// Collection order is fixed: row totals, discount, shipping, tax on the
// discounted base, grand total. With tax-inclusive prices the tax is
// back-calculated from the gross amount instead.
package totals

import (
	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects how tax relates to prices.
type Mode int

const (
	// TaxExclusive applies the discount first and computes tax on the discounted base.
	TaxExclusive Mode = iota
	// TaxInclusive back-calculates tax from gross prices.
	TaxInclusive
)

// ModeOf maps the price-includes-tax flag of a quote or order to a Mode.
func ModeOf(priceIncludesTax bool) Mode {
	if priceIncludesTax {
		return TaxInclusive
	}
	return TaxExclusive
}

var hundred = decimal.NewFromInt(100)

// LineInput is what the catalog, tax and promotion collaborators report for a line.
type LineInput struct {
	Qty            decimal.Decimal
	Price          decimal.Decimal
	TaxPercent     decimal.Decimal
	DiscountAmount decimal.Decimal
}

// CollectItem computes the row amounts of one line.
func CollectItem(in LineInput, mode Mode) (models.ItemAmounts, error) {
	if in.Qty.IsNegative() || in.Price.IsNegative() || in.TaxPercent.IsNegative() || in.DiscountAmount.IsNegative() {
		return models.ItemAmounts{}, apperrors.ErrInvalidAmount.Withf("Invalid amount: negative line input")
	}

	gross := money.Round(in.Price.Mul(in.Qty))
	if in.DiscountAmount.GreaterThan(gross) {
		return models.ItemAmounts{}, apperrors.ErrInvalidAmount.
			Withf("Invalid amount: discount exceeds row total").
			WithDetail("available", gross.StringFixed(money.CurrencyPrecision))
	}

	if mode == TaxInclusive {
		taxFull, tax := inclusiveTax(gross, in.DiscountAmount, in.TaxPercent)
		return models.ItemAmounts{
			RowTotal:        gross.Sub(taxFull),
			RowTotalInclTax: gross,
			DiscountAmount:  in.DiscountAmount,
			TaxAmount:       tax,
			HiddenTaxAmount: taxFull.Sub(tax),
		}, nil
	}

	return models.ItemAmounts{
		RowTotal:        gross,
		RowTotalInclTax: gross.Add(exclusiveTax(gross, in.TaxPercent)),
		DiscountAmount:  in.DiscountAmount,
		TaxAmount:       exclusiveTax(gross.Sub(in.DiscountAmount), in.TaxPercent),
		HiddenTaxAmount: decimal.Zero,
	}, nil
}

// ShippingInput is the output of the shipping-rate collaborator.
type ShippingInput struct {
	Amount         decimal.Decimal
	TaxPercent     decimal.Decimal
	DiscountAmount decimal.Decimal
}

// ShippingAmounts are the collected shipping amounts. Amount excludes tax.
type ShippingAmounts struct {
	Amount          decimal.Decimal `json:"amount"`
	AmountInclTax   decimal.Decimal `json:"amount_incl_tax"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	HiddenTaxAmount decimal.Decimal `json:"hidden_tax_amount"`
}

// CollectShipping applies the same tax branches as CollectItem to the shipping amount.
func CollectShipping(in ShippingInput, mode Mode) (ShippingAmounts, error) {
	if in.Amount.IsNegative() || in.TaxPercent.IsNegative() || in.DiscountAmount.IsNegative() {
		return ShippingAmounts{}, apperrors.ErrInvalidAmount.Withf("Invalid amount: negative shipping input")
	}
	amount := money.Round(in.Amount)
	if in.DiscountAmount.GreaterThan(amount) {
		return ShippingAmounts{}, apperrors.ErrInvalidAmount.Withf("Invalid amount: shipping discount exceeds shipping amount")
	}

	if mode == TaxInclusive {
		taxFull, tax := inclusiveTax(amount, in.DiscountAmount, in.TaxPercent)
		return ShippingAmounts{
			Amount:          amount.Sub(taxFull),
			AmountInclTax:   amount,
			DiscountAmount:  in.DiscountAmount,
			TaxAmount:       tax,
			HiddenTaxAmount: taxFull.Sub(tax),
		}, nil
	}
	return ShippingAmounts{
		Amount:         amount,
		AmountInclTax:  amount.Add(exclusiveTax(amount, in.TaxPercent)),
		DiscountAmount: in.DiscountAmount,
		TaxAmount:      exclusiveTax(amount.Sub(in.DiscountAmount), in.TaxPercent),
	}, nil
}

func exclusiveTax(base, rate decimal.Decimal) decimal.Decimal {
	return money.Round(base.Mul(rate).DivRound(hundred, 16))
}

// inclusiveTax returns the tax contained in gross and the tax contained in the
// discounted gross.
func inclusiveTax(gross, discount, rate decimal.Decimal) (full, discounted decimal.Decimal) {
	divisor := hundred.Add(rate)
	full = money.Round(gross.Mul(rate).DivRound(divisor, 16))
	discounted = money.Round(gross.Sub(discount).Mul(rate).DivRound(divisor, 16))
	return full, discounted
}

// Combine builds an order-level family from summed rows and shipping.
func Combine(rows models.ItemAmounts, ship ShippingAmounts) models.Amounts {
	a := rows.ToAmounts()
	a.ShippingAmount = ship.Amount
	a.ShippingTaxAmount = ship.TaxAmount
	a.ShippingDiscountAmount = ship.DiscountAmount
	a.ShippingHiddenTaxAmount = ship.HiddenTaxAmount
	a.DiscountAmount = a.DiscountAmount.Add(ship.DiscountAmount)
	a.TaxAmount = a.TaxAmount.Add(ship.TaxAmount)
	a.HiddenTaxAmount = a.HiddenTaxAmount.Add(ship.HiddenTaxAmount)
	return a.WithGrandTotal()
}

// CollectQuote recomputes every item row and the quote totals in base currency.
// Virtual quotes carry no shipping.
func CollectQuote(q *models.Quote) (models.Amounts, error) {
	mode := ModeOf(q.PriceIncludesTax)

	var rows models.ItemAmounts
	itemsQty := decimal.Zero
	for i := range q.Items {
		it := &q.Items[i]
		row, err := CollectItem(LineInput{
			Qty:            it.Qty,
			Price:          it.Price,
			TaxPercent:     it.TaxPercent,
			DiscountAmount: it.DiscountAmount,
		}, mode)
		if err != nil {
			return models.Amounts{}, apperrors.As(err).WithDetail("item_id", it.ID.String()).WithDetail("sku", it.SKU)
		}
		it.Row = row
		rows = rows.Add(row)
		if it.ParentItemID == nil {
			itemsQty = itemsQty.Add(it.Qty)
		}
	}

	var ship ShippingAmounts
	if !q.IsVirtual() {
		var err error
		ship, err = CollectShipping(ShippingInput{
			Amount:         q.ShippingAmount,
			TaxPercent:     q.ShippingTaxPercent,
			DiscountAmount: q.ShippingDiscountAmount,
		}, mode)
		if err != nil {
			return models.Amounts{}, err
		}
	}

	q.ItemsQty = itemsQty
	q.Totals = Combine(rows, ship)
	return q.Totals, nil
}

// Scope names a totals family of an order.
type Scope string

const (
	ScopeOrdered  Scope = "ordered"
	ScopeInvoiced Scope = "invoiced"
	ScopeShipped  Scope = "shipped"
	ScopeRefunded Scope = "refunded"
	ScopeCanceled Scope = "canceled"
)

// Scopes lists every totals family.
var Scopes = []Scope{ScopeOrdered, ScopeInvoiced, ScopeShipped, ScopeRefunded, ScopeCanceled}

// TotalsSnapshot holds every totals family of an order in every currency scope.
type TotalsSnapshot struct {
	OrderID    uuid.UUID                                `json:"order_id"`
	Currencies map[money.Scope]string                   `json:"currencies"`
	Totals     map[Scope]map[money.Scope]models.Amounts `json:"totals"`
}

// Get returns one family in one currency scope.
func (s *TotalsSnapshot) Get(scope Scope, currency money.Scope) models.Amounts {
	return s.Totals[scope][currency]
}

// ComputeOrderTotals aggregates the item ledgers of an order. Base currency is
// aggregated first; order and store views convert each base aggregate.
func ComputeOrderTotals(o *models.Order) (*TotalsSnapshot, error) {
	conv, err := o.Converter()
	if err != nil {
		return nil, err
	}

	base := map[Scope]models.Amounts{
		ScopeOrdered:  aggregate(o, func(it *models.OrderItem) models.ItemAmounts { return it.BaseRow }, o.BaseOrdered),
		ScopeInvoiced: aggregate(o, func(it *models.OrderItem) models.ItemAmounts { return it.BaseInvoiced }, o.BaseInvoiced),
		ScopeRefunded: aggregate(o, func(it *models.OrderItem) models.ItemAmounts { return it.BaseRefunded }, o.BaseRefunded),
		ScopeCanceled: aggregate(o, func(it *models.OrderItem) models.ItemAmounts { return it.BaseCanceled }, o.BaseCanceled),
		ScopeShipped:  shipped(o),
	}

	snap := &TotalsSnapshot{
		OrderID:    o.ID,
		Currencies: make(map[money.Scope]string, len(money.Scopes)),
		Totals:     make(map[Scope]map[money.Scope]models.Amounts, len(Scopes)),
	}
	for _, cur := range money.Scopes {
		snap.Currencies[cur] = conv.Rates().Currency(cur)
	}
	for _, scope := range Scopes {
		views := make(map[money.Scope]models.Amounts, len(money.Scopes))
		for _, cur := range money.Scopes {
			views[cur] = ConvertAmounts(base[scope], conv, cur)
		}
		snap.Totals[scope] = views
	}
	return snap, nil
}

// ConvertAmounts converts a base-currency family field by field and rounds.
func ConvertAmounts(a models.Amounts, conv *money.Converter, to money.Scope) models.Amounts {
	return a.Map(func(v decimal.Decimal) decimal.Decimal {
		return conv.ConvertRound(v, money.ScopeBase, to)
	})
}

// ConvertDocument derives the order-currency totals of a document from its base
// totals. A field that consumes its whole base pool takes the whole order pool.
func ConvertDocument(base, basePool, orderPool models.Amounts, conv *money.Converter) models.Amounts {
	out := ConvertAmounts(base, conv, money.ScopeOrder)
	bf, pf, of, rf := base.Fields(), basePool.Fields(), orderPool.Fields(), out.Fields()
	for i := range rf {
		if !bf[i].IsZero() && bf[i].Equal(*pf[i]) {
			*rf[i] = *of[i]
		}
	}
	return out
}

// aggregate sums item rows and adds the order-level shipping and adjustment
// parts recorded on the persisted family.
func aggregate(o *models.Order, row func(*models.OrderItem) models.ItemAmounts, persisted models.Amounts) models.Amounts {
	var rows models.ItemAmounts
	for i := range o.Items {
		rows = rows.Add(row(&o.Items[i]))
	}
	a := Combine(rows, ShippingAmounts{
		Amount:          persisted.ShippingAmount,
		DiscountAmount:  persisted.ShippingDiscountAmount,
		TaxAmount:       persisted.ShippingTaxAmount,
		HiddenTaxAmount: persisted.ShippingHiddenTaxAmount,
	})
	a.AdjustmentPositive = persisted.AdjustmentPositive
	a.AdjustmentNegative = persisted.AdjustmentNegative
	return a.WithGrandTotal()
}

// shipped apportions the ordered rows by shipped quantity.
func shipped(o *models.Order) models.Amounts {
	var rows models.ItemAmounts
	for i := range o.Items {
		it := &o.Items[i]
		if it.IsVirtual || !it.QtyShipped.IsPositive() || !it.QtyOrdered.IsPositive() {
			continue
		}
		rows = rows.Add(ledger.Apportion(it.BaseRow, models.ItemAmounts{}, it.QtyShipped, it.QtyOrdered))
	}
	return Combine(rows, ShippingAmounts{})
}
