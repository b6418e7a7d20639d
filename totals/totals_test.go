package totals_test

import (
	"errors"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/MahoCommerce/maho-sub002/totals"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: want %s got %s", msg, want, got)
}

func TestCollectItem(t *testing.T) {
	tests := []struct {
		name                                   string
		in                                     totals.LineInput
		mode                                   totals.Mode
		row, rowInclTax, discount, tax, hidden string
	}{
		{
			name: "exclusive discount before tax",
			in:   totals.LineInput{Qty: d("2"), Price: d("10.00"), TaxPercent: d("10"), DiscountAmount: d("2.00")},
			mode: totals.TaxExclusive,
			row:  "20.00", rowInclTax: "22.00", discount: "2.00", tax: "1.80", hidden: "0",
		},
		{
			name: "exclusive rounds the row once",
			in:   totals.LineInput{Qty: d("2"), Price: d("9.995"), TaxPercent: d("0")},
			mode: totals.TaxExclusive,
			row:  "19.99", rowInclTax: "19.99", discount: "0", tax: "0", hidden: "0",
		},
		{
			name: "inclusive back-calculates tax",
			in:   totals.LineInput{Qty: d("1"), Price: d("11.90"), TaxPercent: d("19"), DiscountAmount: d("1.19")},
			mode: totals.TaxInclusive,
			row:  "10.00", rowInclTax: "11.90", discount: "1.19", tax: "1.71", hidden: "0.19",
		},
		{
			name: "inclusive without discount has no hidden tax",
			in:   totals.LineInput{Qty: d("3"), Price: d("12.00"), TaxPercent: d("20")},
			mode: totals.TaxInclusive,
			row:  "30.00", rowInclTax: "36.00", discount: "0", tax: "6.00", hidden: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := totals.CollectItem(tt.in, tt.mode)
			require.NoError(t, err)
			assertDecimal(t, tt.row, got.RowTotal, "row")
			assertDecimal(t, tt.rowInclTax, got.RowTotalInclTax, "row incl tax")
			assertDecimal(t, tt.discount, got.DiscountAmount, "discount")
			assertDecimal(t, tt.tax, got.TaxAmount, "tax")
			assertDecimal(t, tt.hidden, got.HiddenTaxAmount, "hidden tax")
		})
	}
}

func TestCollectItem_InclusiveGrandEqualsGrossMinusDiscount(t *testing.T) {
	row, err := totals.CollectItem(totals.LineInput{Qty: d("1"), Price: d("11.90"), TaxPercent: d("19"), DiscountAmount: d("1.19")}, totals.TaxInclusive)
	require.NoError(t, err)

	grand := totals.Combine(row, totals.ShippingAmounts{}).GrandTotal
	assertDecimal(t, "10.71", grand, "grand")
}

func TestCollectItem_DiscountExceedsRow(t *testing.T) {
	_, err := totals.CollectItem(totals.LineInput{Qty: d("1"), Price: d("5.00"), DiscountAmount: d("6.00")}, totals.TaxExclusive)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))

	_, err = totals.CollectItem(totals.LineInput{Qty: d("-1"), Price: d("5.00")}, totals.TaxExclusive)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))
}

func TestCollectShipping(t *testing.T) {
	ship, err := totals.CollectShipping(totals.ShippingInput{Amount: d("5.00"), TaxPercent: d("20"), DiscountAmount: d("1.00")}, totals.TaxExclusive)
	require.NoError(t, err)
	assertDecimal(t, "5.00", ship.Amount, "amount")
	assertDecimal(t, "0.80", ship.TaxAmount, "tax")
	assertDecimal(t, "6.00", ship.AmountInclTax, "incl tax")

	ship, err = totals.CollectShipping(totals.ShippingInput{Amount: d("6.00"), TaxPercent: d("20")}, totals.TaxInclusive)
	require.NoError(t, err)
	assertDecimal(t, "5.00", ship.Amount, "amount")
	assertDecimal(t, "1.00", ship.TaxAmount, "tax")
}

func TestCollectQuote(t *testing.T) {
	q := &models.Quote{
		ShippingAmount:     d("5.00"),
		ShippingTaxPercent: d("20"),
		Items: []models.QuoteItem{
			{ID: uuid.New(), SKU: "A", Qty: d("3"), Price: d("10.00"), DiscountAmount: d("3.00")},
			{ID: uuid.New(), SKU: "B", Qty: d("2"), Price: d("9.995")},
		},
	}

	got, err := totals.CollectQuote(q)
	require.NoError(t, err)

	assertDecimal(t, "49.99", got.Subtotal, "subtotal")
	assertDecimal(t, "3.00", got.DiscountAmount, "discount")
	assertDecimal(t, "5.00", got.ShippingAmount, "shipping")
	assertDecimal(t, "1.00", got.TaxAmount, "tax")
	assertDecimal(t, "52.99", got.GrandTotal, "grand")
	assertDecimal(t, "5", q.ItemsQty, "items qty")
	assertDecimal(t, "30.00", q.Items[0].Row.RowTotal, "item row")
	assert.Equal(t, got, q.Totals)
}

func TestCollectQuote_VirtualHasNoShipping(t *testing.T) {
	q := &models.Quote{
		ShippingAmount: d("5.00"),
		Items: []models.QuoteItem{
			{ID: uuid.New(), SKU: "EBOOK", IsVirtual: true, Qty: d("1"), Price: d("8.00")},
		},
	}

	got, err := totals.CollectQuote(q)
	require.NoError(t, err)
	assert.True(t, got.ShippingAmount.IsZero())
	assertDecimal(t, "8.00", got.GrandTotal, "grand")
}

func TestCollectQuote_ReportsOffendingItem(t *testing.T) {
	id := uuid.New()
	q := &models.Quote{Items: []models.QuoteItem{{ID: id, SKU: "A", Qty: d("1"), Price: d("1.00"), DiscountAmount: d("2.00")}}}

	_, err := totals.CollectQuote(q)
	require.Error(t, err)
	appErr := apperrors.As(err)
	assert.Equal(t, "InvalidAmount", appErr.Kind)
	assert.Equal(t, id.String(), appErr.Details["item_id"])
}

func newOrder() *models.Order {
	row := models.ItemAmounts{RowTotal: d("30.00"), RowTotalInclTax: d("30.00")}
	item := models.OrderItem{
		ID:         uuid.New(),
		SKU:        "A",
		QtyOrdered: d("3"),
		BaseRow:    row,
		Row:        row.Map(func(v decimal.Decimal) decimal.Decimal { return money.Round(v.Mul(d("0.92"))) }),
	}
	baseOrdered := totals.Combine(row, totals.ShippingAmounts{Amount: d("5.00")})
	return &models.Order{
		ID:                uuid.New(),
		BaseCurrencyCode:  "USD",
		OrderCurrencyCode: "EUR",
		StoreCurrencyCode: "USD",
		StoreToBaseRate:   d("1"),
		BaseToOrderRate:   d("0.92"),
		BaseOrdered:       baseOrdered,
		Items:             []models.OrderItem{item},
	}
}

func TestComputeOrderTotals(t *testing.T) {
	o := newOrder()
	share, err := ledger.ApplyInvoice(&o.Items[0], d("2"))
	require.NoError(t, err)
	o.BaseInvoiced = totals.Combine(share.BaseRow, totals.ShippingAmounts{Amount: d("5.00")})
	o.Items[0].QtyShipped = d("1")

	snap, err := totals.ComputeOrderTotals(o)
	require.NoError(t, err)

	assert.Equal(t, "EUR", snap.Currencies[money.ScopeOrder])

	ordered := snap.Get(totals.ScopeOrdered, money.ScopeBase)
	assertDecimal(t, "35.00", ordered.GrandTotal, "base ordered grand")
	assert.True(t, ordered.GrandTotal.Equal(o.BaseOrdered.GrandTotal))
	assertDecimal(t, "32.20", snap.Get(totals.ScopeOrdered, money.ScopeOrder).GrandTotal, "order ordered grand")
	assertDecimal(t, "35.00", snap.Get(totals.ScopeOrdered, money.ScopeStore).GrandTotal, "store ordered grand")

	assertDecimal(t, "25.00", snap.Get(totals.ScopeInvoiced, money.ScopeBase).GrandTotal, "base invoiced grand")
	assertDecimal(t, "23.00", snap.Get(totals.ScopeInvoiced, money.ScopeOrder).GrandTotal, "order invoiced grand")

	assertDecimal(t, "10.00", snap.Get(totals.ScopeShipped, money.ScopeBase).Subtotal, "shipped subtotal")
	assert.True(t, snap.Get(totals.ScopeRefunded, money.ScopeBase).GrandTotal.IsZero())
}

func TestComputeOrderTotals_MissingRate(t *testing.T) {
	o := newOrder()
	o.BaseToOrderRate = decimal.Zero

	_, err := totals.ComputeOrderTotals(o)
	assert.True(t, errors.Is(err, apperrors.ErrMissingExchangeRate))
}

func TestConvertDocument_LastDocumentTakesOrderPool(t *testing.T) {
	conv, err := money.NewConverter(money.Rates{BaseCurrency: "USD", OrderCurrency: "EUR", StoreCurrency: "USD", StoreToBase: d("1"), BaseToOrder: d("0.92")})
	require.NoError(t, err)

	base := models.Amounts{Subtotal: d("10.00"), GrandTotal: d("10.00")}
	basePool := models.Amounts{Subtotal: d("10.00"), GrandTotal: d("10.00")}
	orderPool := models.Amounts{Subtotal: d("9.21"), GrandTotal: d("9.21")}

	got := totals.ConvertDocument(base, basePool, orderPool, conv)
	assertDecimal(t, "9.21", got.GrandTotal, "grand takes pool")

	partial := models.Amounts{Subtotal: d("5.00"), GrandTotal: d("5.00")}
	got = totals.ConvertDocument(partial, basePool, orderPool, conv)
	assertDecimal(t, "4.60", got.GrandTotal, "partial converts")
}
