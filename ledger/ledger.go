// Package ledger maintains the per-item running totals of an order: ordered,
// invoiced, shipped, canceled and refunded quantities and the amounts that go
// with them. Every operation validates before it mutates.
//
// Amounts are apportioned from a pool. A partial operation takes
// round(remaining × qty / open_qty); the operation that consumes the whole open
// quantity takes exactly what remains, so the parts of a line always add up to
// its ordered amount.
package ledger

import (
	"context"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/shopspring/decimal"
)

// ValidationPolicy relaxes order placement checks for trusted back-office callers.
type ValidationPolicy struct {
	SkipStockCheck     bool `json:"skip_stock_check"`
	AllowFractionalQty bool `json:"allow_fractional_qty"`
}

// StockChecker reports whether a quantity of a SKU can be sold.
type StockChecker interface {
	CheckStock(ctx context.Context, sku string, qty decimal.Decimal) error
}

// Apportionment is the share of a line's amounts moved by one operation, in
// order currency and base currency.
type Apportionment struct {
	Row     models.ItemAmounts `json:"row"`
	BaseRow models.ItemAmounts `json:"base_row"`
}

// QtyToInvoice is the quantity neither invoiced nor canceled.
func QtyToInvoice(it *models.OrderItem) decimal.Decimal {
	return it.QtyOrdered.Sub(it.QtyInvoiced).Sub(it.QtyCanceled)
}

// QtyToCancel equals QtyToInvoice: invoiced quantity can no longer be canceled.
func QtyToCancel(it *models.OrderItem) decimal.Decimal {
	return QtyToInvoice(it)
}

// QtyToShip is the quantity still to ship. Refunded quantity is not shipped.
func QtyToShip(it *models.OrderItem) decimal.Decimal {
	if it.IsVirtual {
		return decimal.Zero
	}
	q := it.QtyOrdered.Sub(money.Max(it.QtyShipped, it.QtyRefunded)).Sub(it.QtyCanceled)
	return money.Max(q, decimal.Zero)
}

// QtyToRefund is the invoiced quantity not yet refunded.
func QtyToRefund(it *models.OrderItem) decimal.Decimal {
	return it.QtyInvoiced.Sub(it.QtyRefunded)
}

// ValidateQty checks qty against the open quantity without mutating the item.
func ValidateQty(it *models.OrderItem, qty, open decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperrors.InvalidQuantity(it.ID.String(), qty.String(), open.String(), "quantity must be positive")
	}
	if !it.IsQtyDecimal && !qty.IsInteger() {
		return apperrors.InvalidQuantity(it.ID.String(), qty.String(), open.String(), "item does not accept fractional quantity")
	}
	if qty.GreaterThan(open) {
		return apperrors.InvalidQuantity(it.ID.String(), qty.String(), open.String(), "quantity exceeds open quantity")
	}
	return nil
}

// ApplyInvoice moves qty into the invoiced bucket and returns the invoiced share.
func ApplyInvoice(it *models.OrderItem, qty decimal.Decimal) (Apportionment, error) {
	open := QtyToInvoice(it)
	if err := ValidateQty(it, qty, open); err != nil {
		return Apportionment{}, err
	}
	share := Apportionment{
		Row:     apportion(it.Row, it.Invoiced.Add(it.Canceled), qty, open),
		BaseRow: apportion(it.BaseRow, it.BaseInvoiced.Add(it.BaseCanceled), qty, open),
	}
	it.QtyInvoiced = it.QtyInvoiced.Add(qty)
	it.Invoiced = it.Invoiced.Add(share.Row)
	it.BaseInvoiced = it.BaseInvoiced.Add(share.BaseRow)
	return share, nil
}

// ApplyCancel moves qty into the canceled bucket and returns the canceled share.
func ApplyCancel(it *models.OrderItem, qty decimal.Decimal) (Apportionment, error) {
	open := QtyToCancel(it)
	if err := ValidateQty(it, qty, open); err != nil {
		return Apportionment{}, err
	}
	if it.QtyShipped.GreaterThan(it.QtyOrdered.Sub(it.QtyCanceled).Sub(qty)) {
		return Apportionment{}, apperrors.InvalidQuantity(it.ID.String(), qty.String(),
			it.QtyOrdered.Sub(it.QtyCanceled).Sub(it.QtyShipped).String(), "shipped quantity cannot be canceled")
	}
	share := Apportionment{
		Row:     apportion(it.Row, it.Invoiced.Add(it.Canceled), qty, open),
		BaseRow: apportion(it.BaseRow, it.BaseInvoiced.Add(it.BaseCanceled), qty, open),
	}
	it.QtyCanceled = it.QtyCanceled.Add(qty)
	it.Canceled = it.Canceled.Add(share.Row)
	it.BaseCanceled = it.BaseCanceled.Add(share.BaseRow)
	return share, nil
}

// ApplyShipment records qty as shipped. Virtual items fail with NonShippableItem.
func ApplyShipment(it *models.OrderItem, qty decimal.Decimal) error {
	if it.IsVirtual {
		return apperrors.ErrNonShippableItem.
			WithDetail("item_id", it.ID.String()).
			WithDetail("sku", it.SKU)
	}
	if err := ValidateQty(it, qty, QtyToShip(it)); err != nil {
		return err
	}
	it.QtyShipped = it.QtyShipped.Add(qty)
	return nil
}

// ApplyRefund moves qty into the refunded bucket. When amounts is nil the share is
// apportioned from the invoiced pool; otherwise the given amounts are used after
// checking that they fit in what is still refundable.
func ApplyRefund(it *models.OrderItem, qty decimal.Decimal, amounts *Apportionment) (Apportionment, error) {
	open := QtyToRefund(it)
	if err := ValidateQty(it, qty, open); err != nil {
		return Apportionment{}, err
	}

	remaining := it.Invoiced.Sub(it.Refunded)
	baseRemaining := it.BaseInvoiced.Sub(it.BaseRefunded)

	var share Apportionment
	if amounts == nil {
		share = Apportionment{
			Row:     apportion(it.Invoiced, it.Refunded, qty, open),
			BaseRow: apportion(it.BaseInvoiced, it.BaseRefunded, qty, open),
		}
	} else {
		if !fits(amounts.Row, remaining) || !fits(amounts.BaseRow, baseRemaining) {
			return Apportionment{}, apperrors.ErrOverRefund.
				WithDetail("item_id", it.ID.String()).
				WithDetail("qty", qty.String()).
				WithDetail("available", remaining.RowTotal.StringFixed(money.CurrencyPrecision))
		}
		share = *amounts
	}

	it.QtyRefunded = it.QtyRefunded.Add(qty)
	it.Refunded = it.Refunded.Add(share.Row)
	it.BaseRefunded = it.BaseRefunded.Add(share.BaseRow)
	return share, nil
}

// CheckInvariants verifies the quantity invariants of an item.
func CheckInvariants(it *models.OrderItem) error {
	id := it.ID.String()
	for _, q := range []decimal.Decimal{it.QtyInvoiced, it.QtyShipped, it.QtyRefunded, it.QtyCanceled} {
		if q.IsNegative() {
			return apperrors.InvalidQuantity(id, q.String(), "", "negative quantity")
		}
	}
	if it.QtyInvoiced.Add(it.QtyCanceled).GreaterThan(it.QtyOrdered) {
		return apperrors.InvalidQuantity(id, it.QtyInvoiced.String(), it.QtyOrdered.String(), "invoiced plus canceled exceeds ordered")
	}
	if it.QtyRefunded.GreaterThan(it.QtyInvoiced) {
		return apperrors.InvalidQuantity(id, it.QtyRefunded.String(), it.QtyInvoiced.String(), "refunded exceeds invoiced")
	}
	if it.QtyShipped.GreaterThan(it.QtyOrdered.Sub(it.QtyCanceled)) {
		return apperrors.InvalidQuantity(id, it.QtyShipped.String(), it.QtyOrdered.Sub(it.QtyCanceled).String(), "shipped exceeds ordered minus canceled")
	}
	return nil
}

// Apportion returns the share of total not yet consumed by done for qty out of open.
func Apportion(total, done models.ItemAmounts, qty, open decimal.Decimal) models.ItemAmounts {
	return apportion(total, done, qty, open)
}

func apportion(total, done models.ItemAmounts, qty, open decimal.Decimal) models.ItemAmounts {
	remaining := total.Sub(done)
	if qty.Equal(open) {
		return remaining
	}
	ratio := qty.DivRound(open, 16)
	return remaining.Map(func(v decimal.Decimal) decimal.Decimal {
		return money.Round(v.Mul(ratio))
	})
}

// ApportionAmount applies the same rule to a single amount.
func ApportionAmount(total, done, qty, open decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(done)
	if qty.Equal(open) {
		return remaining
	}
	return money.Round(remaining.Mul(qty).DivRound(open, 16))
}

func fits(a, limit models.ItemAmounts) bool {
	av, lv := a.Fields(), limit.Fields()
	for i := range av {
		if av[i].IsNegative() || av[i].GreaterThan(lv[i]) {
			return false
		}
	}
	return true
}
