package services

import (
	"context"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCreditmemo_FullRefundClosesOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{simpleItem("TEE", "2", "25.00")}, shipping: "5.00"})

	_, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{})
	require.NoError(t, err)
	_, err = h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StateComplete, h.reload(t, o.ID).State)

	cm, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Comment: "returned"})
	require.NoError(t, err)
	assert.Equal(t, "000000001", cm.IncrementID)
	assert.Equal(t, models.CreditmemoStateRefunded, cm.State)
	assertDec(t, "2", cm.TotalQty)
	assertDec(t, "5.00", cm.BaseTotals.ShippingAmount)
	assertDec(t, "55.00", cm.BaseTotals.GrandTotal)

	got := h.reload(t, o.ID)
	assert.Equal(t, models.StateClosed, got.State)
	assertDec(t, "2", got.Items[0].QtyRefunded)
	assert.True(t, got.BaseRefunded.GrandTotal.Equal(got.BaseInvoiced.GrandTotal))
	assertDec(t, "55.00", got.BaseTotalOfflineRefunded)
	assertDec(t, "55.00", got.Payment.AmountRefunded)

	assert.Equal(t, 1, h.sink.count(models.EventCreditmemoCreated))
	assert.Equal(t, 1, h.metrics.get(aws_pkg.MetricCreditmemosCreated))

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestCreateCreditmemo_PartialKeepsOrderOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})
	_, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{})
	require.NoError(t, err)

	cm, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, "1")})
	require.NoError(t, err)
	assertDec(t, "10.00", cm.BaseTotals.GrandTotal)

	got := h.reload(t, o.ID)
	assert.Equal(t, models.StateComplete, got.State)
	assertDec(t, "1", got.Items[0].QtyRefunded)
	assertDec(t, "10.00", got.BaseRefunded.GrandTotal)

	list, err := h.creditmemos.ListCreditmemos(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateCreditmemo_OverRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})
	_, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{})
	require.NoError(t, err)
	before := h.reload(t, o.ID)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{
		Items:              qtys(o, "1"),
		AdjustmentPositive: dec("15.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrOverRefund)
	assert.Equal(t, "20.00", apperrors.As(err).Details["available"])

	after := h.reload(t, o.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, after.Items[0].QtyRefunded.IsZero())
	assert.True(t, after.BaseRefunded.GrandTotal.IsZero())
	assert.Zero(t, h.sink.count(models.EventCreditmemoCreated))
}

func TestCreateCreditmemo_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})

	_, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	_, err = h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{Items: qtys(o, "1")})
	require.NoError(t, err)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, "2")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{AdjustmentNegative: dec("-1")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{RefundMode: models.RefundOnline})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateCreditmemo_AdjustmentOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})
	_, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{})
	require.NoError(t, err)

	first, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{AdjustmentNegative: dec("5.00")})
	require.NoError(t, err)
	assertDec(t, "15.00", first.BaseTotals.GrandTotal)
	assert.Equal(t, models.StateComplete, h.reload(t, o.ID).State)

	second, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{AdjustmentPositive: dec("5.00")})
	require.NoError(t, err)
	assert.Empty(t, second.Items)
	assertDec(t, "5.00", second.BaseTotals.GrandTotal)

	got := h.reload(t, o.ID)
	assert.Equal(t, models.StateClosed, got.State)
	assertDec(t, "20.00", got.BaseRefunded.GrandTotal)
}

func TestCreateCreditmemo_OnlineRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "3", "10.00")}, paymentMethod: "card"})
	_, err := h.payments.RecordTransaction(ctx, o.ID, models.RecordTransactionRequest{Type: models.TxnAuthorization, TxnID: "auth-1", Amount: dec("30.00")})
	require.NoError(t, err)
	inv, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{CaptureCase: models.CaptureOnline})
	require.NoError(t, err)

	cm, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{
		Items:      qtys(o, "1"),
		InvoiceID:  &inv.ID,
		RefundMode: models.RefundOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, "000000001-capture-refund-000000001", cm.TransactionID)

	txns, err := h.payments.ListTransactions(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	refund := txns[2]
	assert.Equal(t, models.TxnRefund, refund.TxnType)
	assert.Equal(t, "000000001-capture", refund.ParentTxnID)
	assertDec(t, "10.00", refund.Amount)

	got := h.reload(t, o.ID)
	assertDec(t, "10.00", got.TotalOnlineRefunded)
	assertDec(t, "10.00", got.Payment.AmountRefunded)
	assert.Equal(t, cm.TransactionID, got.Payment.LastTransID)
}

func TestCreateCreditmemo_BoundToInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})
	first, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{Items: qtys(o, "1")})
	require.NoError(t, err)
	_, err = h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{Items: qtys(o, "1")})
	require.NoError(t, err)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, "2"), InvoiceID: &first.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	cm, err := h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, "1"), InvoiceID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, *cm.InvoiceID)

	_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, "1"), InvoiceID: &first.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
}

func TestCreateCreditmemo_CountsGatewayRefunds(t *testing.T) {
	tests := []struct {
		name          string
		gatewayRefund string
		refundQty     string
		wantErr       error
		wantRefunded  string
		wantState     string
	}{
		{"full gateway refund leaves nothing", "20.00", "2", apperrors.ErrOverRefund, "20.00", models.StateComplete},
		{"partial gateway refund leaves the rest", "10.00", "1", nil, "20.00", models.StateComplete},
		{"partial gateway refund caps the memo", "10.00", "2", apperrors.ErrOverRefund, "10.00", models.StateComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "2", "10.00")}})
			_, err := h.invoices.CreateInvoice(ctx, o.ID, models.CreateInvoiceRequest{})
			require.NoError(t, err)
			_, err = h.payments.RecordTransaction(ctx, o.ID, models.RecordTransactionRequest{
				Type: models.TxnRefund, TxnID: "gw-refund-1", Amount: dec(tt.gatewayRefund),
			})
			require.NoError(t, err)

			_, err = h.creditmemos.CreateCreditmemo(ctx, o.ID, models.CreateCreditmemoRequest{Items: qtys(o, tt.refundQty)})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, h.sink.count(models.EventCreditmemoCreated))
			} else {
				require.NoError(t, err)
			}

			got := h.reload(t, o.ID)
			assertDec(t, tt.wantRefunded, got.Payment.AmountRefunded)
			assert.True(t, got.Payment.AmountRefunded.LessThanOrEqual(got.Payment.AmountPaid))
			assert.Equal(t, tt.wantState, got.State)
		})
	}
}
