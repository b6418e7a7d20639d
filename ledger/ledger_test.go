package ledger_test

import (
	"errors"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newItem(qty, row, tax, discount string) *models.OrderItem {
	amounts := models.ItemAmounts{
		RowTotal:        d(row),
		RowTotalInclTax: d(row).Add(d(tax)),
		DiscountAmount:  d(discount),
		TaxAmount:       d(tax),
		HiddenTaxAmount: decimal.Zero,
	}
	return &models.OrderItem{
		ID:         uuid.New(),
		SKU:        "SKU-1",
		QtyOrdered: d(qty),
		Row:        amounts,
		BaseRow:    amounts,
	}
}

func assertAmountsEqual(t *testing.T, want, got models.ItemAmounts) {
	t.Helper()
	w, g := want.Fields(), got.Fields()
	for i := range w {
		assert.True(t, w[i].Equal(g[i]), "field %d: want %s got %s", i, w[i], g[i])
	}
}

func TestApplyInvoice_Validation(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(it *models.OrderItem)
		qty     string
	}{
		{"zero", nil, "0"},
		{"negative", nil, "-1"},
		{"exceeds ordered", nil, "5"},
		{"fractional on unit item", nil, "1.5"},
		{"exceeds after cancel", func(it *models.OrderItem) { it.QtyCanceled = d("2") }, "2"},
		{"exceeds after invoice", func(it *models.OrderItem) { it.QtyInvoiced = d("3") }, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem("3", "30.00", "0", "0")
			if tt.prepare != nil {
				tt.prepare(it)
			}
			before := *it

			_, err := ledger.ApplyInvoice(it, d(tt.qty))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))
			assert.Equal(t, before, *it, "item must not change on failure")
		})
	}
}

func TestApplyInvoice_FractionalAllowedOnDecimalItem(t *testing.T) {
	it := newItem("2.5", "25.00", "0", "0")
	it.IsQtyDecimal = true

	share, err := ledger.ApplyInvoice(it, d("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", share.Row.RowTotal.StringFixed(2))
}

func TestApplyInvoice_ResidualCorrection(t *testing.T) {
	// 2 x 9.995 = 19.99: first unit rounds up to 10.00, the last takes 9.99
	it := newItem("2", "19.99", "0", "0")

	first, err := ledger.ApplyInvoice(it, d("1"))
	require.NoError(t, err)
	second, err := ledger.ApplyInvoice(it, d("1"))
	require.NoError(t, err)

	assert.Equal(t, "10.00", first.Row.RowTotal.StringFixed(2))
	assert.Equal(t, "9.99", second.Row.RowTotal.StringFixed(2))
	assert.True(t, first.Row.RowTotal.Add(second.Row.RowTotal).Equal(d("19.99")))
	assert.True(t, it.Invoiced.RowTotal.Equal(it.Row.RowTotal))
}

func TestApplyInvoice_ResidualLawOverManyPartials(t *testing.T) {
	// small amounts spread over many units never drift or go negative
	it := newItem("7", "0.05", "0.01", "0.03")

	sum := models.ItemAmounts{}
	for i := 0; i < 7; i++ {
		share, err := ledger.ApplyInvoice(it, d("1"))
		require.NoError(t, err)
		for _, f := range share.Row.Fields() {
			assert.False(t, f.IsNegative())
		}
		sum = sum.Add(share.Row)
	}
	assertAmountsEqual(t, it.Row, sum)
	assertAmountsEqual(t, it.BaseRow, it.BaseInvoiced)
}

func TestApplyCancel_SharesPoolWithInvoice(t *testing.T) {
	it := newItem("3", "10.00", "1.00", "0")

	inv, err := ledger.ApplyInvoice(it, d("1"))
	require.NoError(t, err)
	canceled, err := ledger.ApplyCancel(it, d("2"))
	require.NoError(t, err)

	assert.Equal(t, "3.33", inv.Row.RowTotal.StringFixed(2))
	assert.Equal(t, "6.67", canceled.Row.RowTotal.StringFixed(2))
	assert.True(t, it.Invoiced.Add(it.Canceled).RowTotal.Equal(it.Row.RowTotal))
	assert.True(t, it.Invoiced.Add(it.Canceled).TaxAmount.Equal(it.Row.TaxAmount))
	assert.NoError(t, ledger.CheckInvariants(it))

	_, err = ledger.ApplyInvoice(it, d("1"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))
}

func TestApplyCancel_ShippedQuantityIsProtected(t *testing.T) {
	it := newItem("3", "30.00", "0", "0")
	it.QtyShipped = d("2")

	_, err := ledger.ApplyCancel(it, d("2"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))

	_, err = ledger.ApplyCancel(it, d("1"))
	assert.NoError(t, err)
}

func TestApplyShipment(t *testing.T) {
	it := newItem("3", "30.00", "0", "0")

	require.NoError(t, ledger.ApplyShipment(it, d("2")))
	assert.Equal(t, "1", ledger.QtyToShip(it).String())

	err := ledger.ApplyShipment(it, d("2"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))

	virtual := newItem("1", "5.00", "0", "0")
	virtual.IsVirtual = true
	err = ledger.ApplyShipment(virtual, d("1"))
	assert.True(t, errors.Is(err, apperrors.ErrNonShippableItem))
}

func TestQtyToShip_RefundedQuantityNotShipped(t *testing.T) {
	it := newItem("3", "30.00", "0", "0")
	it.QtyInvoiced = d("3")
	it.QtyRefunded = d("2")
	it.QtyShipped = d("1")

	assert.Equal(t, "1", ledger.QtyToShip(it).String())
}

func TestApplyRefund(t *testing.T) {
	it := newItem("2", "19.99", "2.00", "1.00")
	_, err := ledger.ApplyInvoice(it, d("2"))
	require.NoError(t, err)

	first, err := ledger.ApplyRefund(it, d("1"), nil)
	require.NoError(t, err)
	second, err := ledger.ApplyRefund(it, d("1"), nil)
	require.NoError(t, err)

	assert.Equal(t, "10.00", first.Row.RowTotal.StringFixed(2))
	assert.Equal(t, "9.99", second.Row.RowTotal.StringFixed(2))
	assertAmountsEqual(t, it.Invoiced, it.Refunded)

	_, err = ledger.ApplyRefund(it, d("1"), nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))
}

func TestApplyRefund_RequiresInvoicedQty(t *testing.T) {
	it := newItem("2", "20.00", "0", "0")
	_, err := ledger.ApplyRefund(it, d("1"), nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuantity))
}

func TestApplyRefund_ExplicitAmounts(t *testing.T) {
	it := newItem("2", "20.00", "0", "0")
	_, err := ledger.ApplyInvoice(it, d("1"))
	require.NoError(t, err)

	over := &ledger.Apportionment{
		Row:     models.ItemAmounts{RowTotal: d("10.01")},
		BaseRow: models.ItemAmounts{RowTotal: d("10.01")},
	}
	_, err = ledger.ApplyRefund(it, d("1"), over)
	assert.True(t, errors.Is(err, apperrors.ErrOverRefund))
	assert.True(t, it.QtyRefunded.IsZero())

	ok := &ledger.Apportionment{
		Row:     models.ItemAmounts{RowTotal: d("10.00")},
		BaseRow: models.ItemAmounts{RowTotal: d("10.00")},
	}
	share, err := ledger.ApplyRefund(it, d("1"), ok)
	require.NoError(t, err)
	assert.Equal(t, "10.00", share.Row.RowTotal.StringFixed(2))
}

func TestCheckInvariants(t *testing.T) {
	it := newItem("3", "30.00", "0", "0")
	it.QtyInvoiced = d("2")
	it.QtyCanceled = d("2")
	assert.Error(t, ledger.CheckInvariants(it))

	it = newItem("3", "30.00", "0", "0")
	it.QtyRefunded = d("1")
	assert.Error(t, ledger.CheckInvariants(it))

	it = newItem("3", "30.00", "0", "0")
	it.QtyCanceled = d("1")
	it.QtyShipped = d("3")
	assert.Error(t, ledger.CheckInvariants(it))
}

func TestApportionAmount(t *testing.T) {
	assert.Equal(t, "3.33", ledger.ApportionAmount(d("10"), decimal.Zero, d("1"), d("3")).StringFixed(2))
	assert.Equal(t, "6.67", ledger.ApportionAmount(d("10"), d("3.33"), d("2"), d("2")).StringFixed(2))
}
