package models

import (
	"github.com/shopspring/decimal"
)

// Amounts is the totals family shared by orders and documents. Discounts are
// stored as positive values and subtracted from the grand total.
type Amounts struct {
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"subtotal"`
	SubtotalInclTax   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"subtotal_incl_tax"`
	DiscountAmount    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"discount_amount"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"tax_amount"`
	HiddenTaxAmount   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"hidden_tax_amount"`
	ShippingAmount    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_amount"`
	ShippingTaxAmount decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_tax_amount"`
	// ShippingDiscountAmount and ShippingHiddenTaxAmount are the shipping parts of
	// DiscountAmount and HiddenTaxAmount.
	ShippingDiscountAmount  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_discount_amount"`
	ShippingHiddenTaxAmount decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_hidden_tax_amount"`
	AdjustmentPositive      decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"adjustment_positive"`
	AdjustmentNegative      decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"adjustment_negative"`
	GrandTotal              decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"grand_total"`
}

// Add sums two totals families field by field.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		Subtotal:                a.Subtotal.Add(b.Subtotal),
		SubtotalInclTax:         a.SubtotalInclTax.Add(b.SubtotalInclTax),
		DiscountAmount:          a.DiscountAmount.Add(b.DiscountAmount),
		TaxAmount:               a.TaxAmount.Add(b.TaxAmount),
		HiddenTaxAmount:         a.HiddenTaxAmount.Add(b.HiddenTaxAmount),
		ShippingAmount:          a.ShippingAmount.Add(b.ShippingAmount),
		ShippingTaxAmount:       a.ShippingTaxAmount.Add(b.ShippingTaxAmount),
		ShippingDiscountAmount:  a.ShippingDiscountAmount.Add(b.ShippingDiscountAmount),
		ShippingHiddenTaxAmount: a.ShippingHiddenTaxAmount.Add(b.ShippingHiddenTaxAmount),
		AdjustmentPositive:      a.AdjustmentPositive.Add(b.AdjustmentPositive),
		AdjustmentNegative:      a.AdjustmentNegative.Add(b.AdjustmentNegative),
		GrandTotal:              a.GrandTotal.Add(b.GrandTotal),
	}
}

// Sub subtracts b from a field by field.
func (a Amounts) Sub(b Amounts) Amounts {
	return a.Add(b.Map(decimal.Decimal.Neg))
}

// Map applies f to every field.
func (a Amounts) Map(f func(decimal.Decimal) decimal.Decimal) Amounts {
	return Amounts{
		Subtotal:                f(a.Subtotal),
		SubtotalInclTax:         f(a.SubtotalInclTax),
		DiscountAmount:          f(a.DiscountAmount),
		TaxAmount:               f(a.TaxAmount),
		HiddenTaxAmount:         f(a.HiddenTaxAmount),
		ShippingAmount:          f(a.ShippingAmount),
		ShippingTaxAmount:       f(a.ShippingTaxAmount),
		ShippingDiscountAmount:  f(a.ShippingDiscountAmount),
		ShippingHiddenTaxAmount: f(a.ShippingHiddenTaxAmount),
		AdjustmentPositive:      f(a.AdjustmentPositive),
		AdjustmentNegative:      f(a.AdjustmentNegative),
		GrandTotal:              f(a.GrandTotal),
	}
}

// Zip combines two families field by field.
func (a Amounts) Zip(b Amounts, f func(x, y decimal.Decimal) decimal.Decimal) Amounts {
	return Amounts{
		Subtotal:                f(a.Subtotal, b.Subtotal),
		SubtotalInclTax:         f(a.SubtotalInclTax, b.SubtotalInclTax),
		DiscountAmount:          f(a.DiscountAmount, b.DiscountAmount),
		TaxAmount:               f(a.TaxAmount, b.TaxAmount),
		HiddenTaxAmount:         f(a.HiddenTaxAmount, b.HiddenTaxAmount),
		ShippingAmount:          f(a.ShippingAmount, b.ShippingAmount),
		ShippingTaxAmount:       f(a.ShippingTaxAmount, b.ShippingTaxAmount),
		ShippingDiscountAmount:  f(a.ShippingDiscountAmount, b.ShippingDiscountAmount),
		ShippingHiddenTaxAmount: f(a.ShippingHiddenTaxAmount, b.ShippingHiddenTaxAmount),
		AdjustmentPositive:      f(a.AdjustmentPositive, b.AdjustmentPositive),
		AdjustmentNegative:      f(a.AdjustmentNegative, b.AdjustmentNegative),
		GrandTotal:              f(a.GrandTotal, b.GrandTotal),
	}
}

// Fields returns pointers to every field in declaration order.
func (a *Amounts) Fields() []*decimal.Decimal {
	return []*decimal.Decimal{
		&a.Subtotal, &a.SubtotalInclTax, &a.DiscountAmount, &a.TaxAmount, &a.HiddenTaxAmount,
		&a.ShippingAmount, &a.ShippingTaxAmount, &a.ShippingDiscountAmount, &a.ShippingHiddenTaxAmount,
		&a.AdjustmentPositive, &a.AdjustmentNegative, &a.GrandTotal,
	}
}

// ComputeGrandTotal applies subtotal − discount + shipping + tax + hidden tax ± adjustments.
// DiscountAmount, TaxAmount and HiddenTaxAmount already contain their shipping parts.
func (a Amounts) ComputeGrandTotal() decimal.Decimal {
	return a.Subtotal.
		Sub(a.DiscountAmount).
		Add(a.ShippingAmount).
		Add(a.TaxAmount).
		Add(a.HiddenTaxAmount).
		Add(a.AdjustmentPositive).
		Sub(a.AdjustmentNegative)
}

// WithGrandTotal returns a copy with GrandTotal recomputed.
func (a Amounts) WithGrandTotal() Amounts {
	a.GrandTotal = a.ComputeGrandTotal()
	return a
}

// ItemAmounts is the per-line amount family of an item or document row.
type ItemAmounts struct {
	RowTotal        decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"row_total"`
	RowTotalInclTax decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"row_total_incl_tax"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"discount_amount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"tax_amount"`
	HiddenTaxAmount decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"hidden_tax_amount"`
}

func (a ItemAmounts) Add(b ItemAmounts) ItemAmounts {
	return ItemAmounts{
		RowTotal:        a.RowTotal.Add(b.RowTotal),
		RowTotalInclTax: a.RowTotalInclTax.Add(b.RowTotalInclTax),
		DiscountAmount:  a.DiscountAmount.Add(b.DiscountAmount),
		TaxAmount:       a.TaxAmount.Add(b.TaxAmount),
		HiddenTaxAmount: a.HiddenTaxAmount.Add(b.HiddenTaxAmount),
	}
}

func (a ItemAmounts) Sub(b ItemAmounts) ItemAmounts {
	return a.Add(b.Map(decimal.Decimal.Neg))
}

func (a ItemAmounts) Map(f func(decimal.Decimal) decimal.Decimal) ItemAmounts {
	return ItemAmounts{
		RowTotal:        f(a.RowTotal),
		RowTotalInclTax: f(a.RowTotalInclTax),
		DiscountAmount:  f(a.DiscountAmount),
		TaxAmount:       f(a.TaxAmount),
		HiddenTaxAmount: f(a.HiddenTaxAmount),
	}
}

// Fields exposes the amounts in a fixed order for field-wise arithmetic.
func (a ItemAmounts) Fields() [5]decimal.Decimal {
	return [5]decimal.Decimal{a.RowTotal, a.RowTotalInclTax, a.DiscountAmount, a.TaxAmount, a.HiddenTaxAmount}
}

// ItemAmountsFromFields is the inverse of Fields.
func ItemAmountsFromFields(f [5]decimal.Decimal) ItemAmounts {
	return ItemAmounts{RowTotal: f[0], RowTotalInclTax: f[1], DiscountAmount: f[2], TaxAmount: f[3], HiddenTaxAmount: f[4]}
}

// ToAmounts lifts a line into an order-level family (no shipping).
func (a ItemAmounts) ToAmounts() Amounts {
	return Amounts{
		Subtotal:        a.RowTotal,
		SubtotalInclTax: a.RowTotalInclTax,
		DiscountAmount:  a.DiscountAmount,
		TaxAmount:       a.TaxAmount,
		HiddenTaxAmount: a.HiddenTaxAmount,
	}
}
