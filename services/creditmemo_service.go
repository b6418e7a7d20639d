package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/MahoCommerce/maho-sub002/totals"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditmemoService refunds invoiced quantities and amounts.
type CreditmemoService interface {
	CreateCreditmemo(ctx context.Context, orderID uuid.UUID, req models.CreateCreditmemoRequest) (*models.Creditmemo, error)
	GetCreditmemo(ctx context.Context, creditmemoID uuid.UUID) (*models.Creditmemo, error)
	ListCreditmemos(ctx context.Context, orderID uuid.UUID) ([]models.Creditmemo, error)
}

type creditmemoServiceImpl struct {
	store   repository.Transactor
	machine *state.Machine
	guard   requestGuard
	events  *EventPublisher
	logger  *zap.Logger
}

func NewCreditmemoService(
	store repository.Transactor,
	machine *state.Machine,
	cache repository.IdempotencyCache,
	events *EventPublisher,
	logger *zap.Logger,
) CreditmemoService {
	return &creditmemoServiceImpl{
		store:   store,
		machine: machine,
		guard:   requestGuard{cache: cache, logger: logger},
		events:  events,
		logger:  logger,
	}
}

// CreateCreditmemo refunds the requested quantities. Shipping and adjustment
// amounts of the request are in base currency; the shipping amount excludes
// tax and defaults to the shipping still refundable.
func (s *creditmemoServiceImpl) CreateCreditmemo(ctx context.Context, orderID uuid.UUID, req models.CreateCreditmemoRequest) (*models.Creditmemo, error) {
	start := time.Now()
	if err := s.guard.check(ctx, req.RequestID); err != nil {
		return nil, err
	}
	refundMode := req.RefundMode
	if refundMode == "" {
		refundMode = models.RefundOffline
	}
	adjPositive := money.Round(req.AdjustmentPositive)
	adjNegative := money.Round(req.AdjustmentNegative)
	if adjPositive.IsNegative() || adjNegative.IsNegative() {
		return nil, apperrors.ErrInvalidAmount.Withf("Invalid amount: adjustments must not be negative")
	}

	var (
		cm      *models.Creditmemo
		o       *models.Order
		prev    string
		changed bool
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		if err := s.guard.checkTx(ctx, r, req.RequestID); err != nil {
			return err
		}
		var err error
		o, err = r.Orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := state.CanCreditmemo(o); err != nil {
			return err
		}

		open := ledger.QtyToRefund
		var inv *models.Invoice
		if req.InvoiceID != nil {
			if inv, open, err = invoiceBound(ctx, r, o, *req.InvoiceID); err != nil {
				return err
			}
		}
		if refundMode == models.RefundOnline {
			if err := checkOnlineRefund(o, inv); err != nil {
				return err
			}
		}

		ship, err := refundShipping(o, req.ShippingAmount)
		if err != nil {
			return err
		}
		qtys, err := resolveQtys(o, req.Items, open, "refund")
		if err != nil {
			amountsOnly := adjPositive.IsPositive() || adjNegative.IsPositive() || ship.Amount.IsPositive()
			if len(req.Items) > 0 || !amountsOnly || !errors.Is(err, apperrors.ErrInvalidQuantity) {
				return err
			}
			qtys = nil
		}
		conv, err := o.Converter()
		if err != nil {
			return err
		}

		cm = &models.Creditmemo{
			DocumentHeader: models.DocumentHeader{
				ID:        uuid.New(),
				OrderID:   o.ID,
				StoreID:   o.StoreID,
				RequestID: optionalString(req.RequestID),
			},
			InvoiceID:         req.InvoiceID,
			State:             models.CreditmemoStateOpen,
			RefundMode:        refundMode,
			OrderCurrencyCode: o.OrderCurrencyCode,
			BaseCurrencyCode:  o.BaseCurrencyCode,
		}
		basePool := o.BaseInvoiced.Sub(o.BaseRefunded)
		orderPool := o.Invoiced.Sub(o.Refunded)

		var baseRows models.ItemAmounts
		for _, iq := range qtys {
			share, err := ledger.ApplyRefund(iq.item, iq.qty, nil)
			if err != nil {
				return err
			}
			cm.Items = append(cm.Items, models.CreditmemoItem{
				ID:           uuid.New(),
				CreditmemoID: cm.ID,
				OrderItemID:  iq.item.ID,
				SKU:          iq.item.SKU,
				Name:         iq.item.Name,
				Qty:          iq.qty,
				Price:        iq.item.Price,
				BasePrice:    iq.item.BasePrice,
				Row:          share.Row,
				BaseRow:      share.BaseRow,
			})
			cm.TotalQty = cm.TotalQty.Add(iq.qty)
			baseRows = baseRows.Add(share.BaseRow)
		}
		if err := checkItems(qtys); err != nil {
			return err
		}

		base := totals.Combine(baseRows, ship)
		base.AdjustmentPositive = adjPositive
		base.AdjustmentNegative = adjNegative
		cm.BaseTotals = base.WithGrandTotal()
		if cm.BaseTotals.GrandTotal.IsNegative() {
			return apperrors.ErrInvalidAmount.
				Withf("Invalid amount: refund total is negative").
				WithDetail("qty", cm.TotalQty.String())
		}
		refundable := o.BaseTotalPaid.Sub(o.BaseRefunded.GrandTotal)
		if cm.BaseTotals.GrandTotal.GreaterThan(refundable) {
			return apperrors.ErrOverRefund.
				WithDetail("qty", cm.TotalQty.String()).
				WithDetail("available", refundable.StringFixed(money.CurrencyPrecision))
		}
		if err := withinPaymentLedger(o, cm.BaseTotals.GrandTotal); err != nil {
			return err
		}
		cm.Totals = totals.ConvertDocument(cm.BaseTotals, basePool, orderPool, conv)

		if cm.IncrementID, err = nextIncrement(ctx, r, o.StoreID, models.EntityCreditmemo); err != nil {
			return err
		}
		if refundMode == models.RefundOnline {
			if err := refundOnline(ctx, r, o, inv, cm); err != nil {
				return err
			}
		}
		applyRefundTotals(o, cm)
		cm.State = models.CreditmemoStateRefunded

		if req.Comment != "" {
			cm.Comments = newComment(cm.ID, models.EntityCreditmemo, req.Comment, req.NotifyCustomer)
			s.machine.AppendHistory(o, models.EntityCreditmemo, state.HistoryEntry{Comment: req.Comment, NotifyCustomer: req.NotifyCustomer})
		}
		prev, changed = s.machine.Apply(o, state.HistoryEntry{Comment: fmt.Sprintf("Creditmemo #%s refunded", cm.IncrementID)})

		if err := r.Creditmemos.Create(ctx, cm); err != nil {
			return err
		}
		if err := saveOrder(ctx, r, o); err != nil {
			return err
		}
		return r.Grids.UpsertCreditmemo(ctx, models.NewCreditmemoGrid(o, cm))
	})
	s.events.Observe(ctx, "create_creditmemo", start, err)
	if err != nil {
		logger.For(ctx, s.logger).Warn("creditmemo creation failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, err
	}

	s.guard.remember(ctx, req.RequestID, cm.ID)
	s.events.Publish(ctx, creditmemoEvent(o, cm))
	s.events.stateChanged(ctx, o, prev, changed)
	s.events.Archive(ctx, models.EntityCreditmemo, cm.ID, cm)
	s.events.Count(ctx, aws_pkg.MetricCreditmemosCreated, map[string]string{"RefundMode": refundMode})

	s.logger.Info("creditmemo created",
		zap.String("order_id", o.ID.String()),
		zap.String("creditmemo_id", cm.ID.String()),
		zap.String("base_grand_total", cm.BaseTotals.GrandTotal.String()),
	)
	return cm, nil
}

// invoiceBound limits refundable quantities to what the invoice billed minus
// what earlier creditmemos against it already refunded.
func invoiceBound(ctx context.Context, r repository.Repos, o *models.Order, invoiceID uuid.UUID) (*models.Invoice, func(*models.OrderItem) decimal.Decimal, error) {
	inv, err := r.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv.OrderID != o.ID {
		return nil, nil, apperrors.NotFound("invoice", invoiceID.String()).WithDetail("order_id", o.ID.String())
	}
	left := make(map[uuid.UUID]decimal.Decimal, len(inv.Items))
	for _, ii := range inv.Items {
		left[ii.OrderItemID] = left[ii.OrderItemID].Add(ii.Qty)
	}
	memos, err := r.Creditmemos.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range memos {
		if m.InvoiceID == nil || *m.InvoiceID != inv.ID || m.State == models.CreditmemoStateCanceled {
			continue
		}
		for _, ci := range m.Items {
			left[ci.OrderItemID] = left[ci.OrderItemID].Sub(ci.Qty)
		}
	}
	return inv, func(it *models.OrderItem) decimal.Decimal {
		return money.Max(money.Min(ledger.QtyToRefund(it), left[it.ID]), decimal.Zero)
	}, nil
}

func checkOnlineRefund(o *models.Order, inv *models.Invoice) error {
	if inv == nil {
		return apperrors.ErrValidation.Withf("online refund requires an invoice")
	}
	if o.Payment == nil {
		return apperrors.ErrValidation.Withf("order has no payment").WithDetail("order_id", o.ID.String())
	}
	if inv.State != models.InvoiceStatePaid || inv.TransactionID == "" {
		return apperrors.ErrInvalidStateTransition.
			Withf("invoice was not captured online").
			WithDetail("invoice_id", inv.ID.String())
	}
	return nil
}

// refundShipping resolves the shipping part of a refund in base currency. The
// shipping tax, discount and hidden tax follow the amount proportionally.
func refundShipping(o *models.Order, requested *decimal.Decimal) (totals.ShippingAmounts, error) {
	refundable := o.BaseInvoiced.ShippingAmount.Sub(o.BaseRefunded.ShippingAmount)
	amount := refundable
	if requested != nil {
		amount = money.Round(*requested)
	}
	if amount.IsNegative() {
		return totals.ShippingAmounts{}, apperrors.ErrInvalidAmount.Withf("Invalid amount: shipping refund is negative")
	}
	if amount.GreaterThan(refundable) {
		return totals.ShippingAmounts{}, apperrors.ErrOverRefund.
			Withf("Shipping refund exceeds refundable shipping").
			WithDetail("available", refundable.StringFixed(money.CurrencyPrecision))
	}
	if !amount.IsPositive() {
		return totals.ShippingAmounts{}, nil
	}
	part := func(invoiced, refunded decimal.Decimal) decimal.Decimal {
		return ledger.ApportionAmount(invoiced, refunded, amount, refundable)
	}
	return totals.ShippingAmounts{
		Amount:          amount,
		DiscountAmount:  part(o.BaseInvoiced.ShippingDiscountAmount, o.BaseRefunded.ShippingDiscountAmount),
		TaxAmount:       part(o.BaseInvoiced.ShippingTaxAmount, o.BaseRefunded.ShippingTaxAmount),
		HiddenTaxAmount: part(o.BaseInvoiced.ShippingHiddenTaxAmount, o.BaseRefunded.ShippingHiddenTaxAmount),
	}, nil
}

// refundOnline records the gateway refund as a child of the invoice capture.
func refundOnline(ctx context.Context, r repository.Repos, o *models.Order, inv *models.Invoice, cm *models.Creditmemo) error {
	txnID := fmt.Sprintf("%s-refund-%s", inv.TransactionID, cm.IncrementID)
	t := &models.Transaction{
		ID:         uuid.New(),
		OrderID:    o.ID,
		PaymentID:  o.Payment.ID,
		TxnID:      txnID,
		TxnType:    models.TxnRefund,
		Amount:     cm.Totals.GrandTotal,
		BaseAmount: cm.BaseTotals.GrandTotal,
		IsClosed:   true,
	}
	capture, err := r.Payments.FindTransaction(ctx, o.ID, o.Payment.ID, inv.TransactionID)
	if err != nil {
		return err
	}
	if capture != nil {
		t.ParentID = &capture.ID
		t.ParentTxnID = capture.TxnID
	}
	inv.IsUsedForRefund = true
	if err := r.Invoices.Update(ctx, inv); err != nil {
		return err
	}
	cm.TransactionID = txnID
	o.Payment.LastTransID = txnID
	return r.Payments.CreateTransaction(ctx, t)
}

// withinPaymentLedger rejects a refund that would push the payment's refunded
// amount past what it collected, counting gateway refunds recorded without a creditmemo.
func withinPaymentLedger(o *models.Order, baseGrand decimal.Decimal) error {
	if o.Payment == nil {
		return nil
	}
	available := o.Payment.BaseAmountPaid.Sub(o.Payment.BaseAmountRefunded)
	if baseGrand.GreaterThan(available) {
		return apperrors.ErrOverRefund.
			Withf("Refund exceeds the amount left on the payment").
			WithDetail("available", available.StringFixed(money.CurrencyPrecision)).
			WithDetail("payment_refunded", o.Payment.BaseAmountRefunded.StringFixed(money.CurrencyPrecision))
	}
	return nil
}

func applyRefundTotals(o *models.Order, cm *models.Creditmemo) {
	o.BaseRefunded = o.BaseRefunded.Add(cm.BaseTotals)
	o.Refunded = o.Refunded.Add(cm.Totals)
	grand, baseGrand := cm.Totals.GrandTotal, cm.BaseTotals.GrandTotal
	if cm.IsOnline() {
		o.TotalOnlineRefunded = o.TotalOnlineRefunded.Add(grand)
		o.BaseTotalOnlineRefunded = o.BaseTotalOnlineRefunded.Add(baseGrand)
	} else {
		o.TotalOfflineRefunded = o.TotalOfflineRefunded.Add(grand)
		o.BaseTotalOfflineRefunded = o.BaseTotalOfflineRefunded.Add(baseGrand)
	}
	if o.Payment != nil {
		o.Payment.AmountRefunded = o.Payment.AmountRefunded.Add(grand)
		o.Payment.BaseAmountRefunded = o.Payment.BaseAmountRefunded.Add(baseGrand)
	}
}

func (s *creditmemoServiceImpl) GetCreditmemo(ctx context.Context, creditmemoID uuid.UUID) (*models.Creditmemo, error) {
	var cm *models.Creditmemo
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		cm, err = r.Creditmemos.FindByID(ctx, creditmemoID)
		return err
	})
	return cm, err
}

func (s *creditmemoServiceImpl) ListCreditmemos(ctx context.Context, orderID uuid.UUID) ([]models.Creditmemo, error) {
	var out []models.Creditmemo
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Creditmemos.ListByOrder(ctx, orderID)
		return err
	})
	return out, err
}
