package services

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService records gateway transactions against an order's payment.
type PaymentService interface {
	RecordTransaction(ctx context.Context, orderID uuid.UUID, req models.RecordTransactionRequest) (*models.Transaction, error)
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	AcceptPayment(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error)
	DenyPayment(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error)
}

type paymentServiceImpl struct {
	store   repository.Transactor
	machine *state.Machine
	events  *EventPublisher
	logger  *zap.Logger
}

func NewPaymentService(store repository.Transactor, machine *state.Machine, events *EventPublisher, logger *zap.Logger) PaymentService {
	return &paymentServiceImpl{store: store, machine: machine, events: events, logger: logger}
}

// RecordTransaction applies one gateway transaction. Amounts are in order
// currency. A transaction id already recorded for the payment is returned
// unchanged.
func (s *paymentServiceImpl) RecordTransaction(ctx context.Context, orderID uuid.UUID, req models.RecordTransactionRequest) (*models.Transaction, error) {
	start := time.Now()
	if req.TxnID == "" {
		return nil, apperrors.ErrValidation.Withf("transaction id is required")
	}
	if req.Amount.IsNegative() || (req.Type != models.TxnVoid && !req.Amount.IsPositive()) {
		return nil, apperrors.ErrInvalidAmount.Withf("Invalid amount: transaction amount must be positive").WithDetail("txn_id", req.TxnID)
	}

	var (
		t        *models.Transaction
		o        *models.Order
		prev     string
		replayed bool
		paid     []*models.Invoice
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		o, err = r.Orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Payment == nil {
			return apperrors.ErrValidation.Withf("order has no payment").WithDetail("order_id", o.ID.String())
		}
		existing, err := r.Payments.FindTransaction(ctx, o.ID, o.Payment.ID, req.TxnID)
		if err != nil {
			return err
		}
		if existing != nil {
			t, replayed = existing, true
			return nil
		}
		conv, err := o.Converter()
		if err != nil {
			return err
		}

		amount := money.Round(req.Amount)
		t = &models.Transaction{
			ID:             uuid.New(),
			OrderID:        o.ID,
			PaymentID:      o.Payment.ID,
			TxnID:          req.TxnID,
			ParentTxnID:    req.ParentTxnID,
			TxnType:        req.Type,
			Amount:         amount,
			BaseAmount:     conv.ConvertRound(amount, money.ScopeOrder, money.ScopeBase),
			AdditionalInfo: req.AdditionalInfo,
		}
		var parent *models.Transaction
		if req.ParentTxnID != "" {
			if parent, err = r.Payments.FindTransaction(ctx, o.ID, o.Payment.ID, req.ParentTxnID); err != nil {
				return err
			}
			if parent == nil {
				return apperrors.NotFound("transaction", req.ParentTxnID)
			}
			t.ParentID = &parent.ID
		}
		prev = o.State

		switch req.Type {
		case models.TxnAuthorization:
			err = s.authorize(o, t, req.Pending)
		case models.TxnCapture:
			paid, err = s.capture(ctx, r, o, t, parent, req.InvoiceID)
		case models.TxnVoid:
			err = s.void(ctx, r, o, t, parent)
		case models.TxnRefund:
			err = s.refund(o, t)
		default:
			err = apperrors.ErrValidation.Withf("unknown transaction type %q", req.Type)
		}
		if err != nil {
			return err
		}

		o.Payment.LastTransID = t.TxnID
		o.RefreshTotalDue()
		s.machine.AppendHistory(o, models.EntityOrder, state.HistoryEntry{
			Comment: fmt.Sprintf("%s transaction %s for %s", t.TxnType, t.TxnID, describe(t.Amount, o.OrderCurrencyCode)),
		})
		if err := r.Payments.CreateTransaction(ctx, t); err != nil {
			return err
		}
		for _, inv := range paid {
			if err := r.Invoices.Update(ctx, inv); err != nil {
				return err
			}
			if err := r.Grids.UpsertInvoice(ctx, models.NewInvoiceGrid(o, inv)); err != nil {
				return err
			}
		}
		return saveOrder(ctx, r, o)
	})
	s.events.Observe(ctx, "record_transaction", start, err)
	if err != nil {
		logger.For(ctx, s.logger).Warn("transaction rejected",
			zap.String("order_id", orderID.String()),
			zap.String("txn_id", req.TxnID),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		return nil, err
	}
	if replayed {
		s.logger.Debug("transaction already recorded", zap.String("order_id", orderID.String()), zap.String("txn_id", req.TxnID))
		return t, nil
	}

	s.events.Publish(ctx, transactionEvent(o, t))
	for _, inv := range paid {
		s.events.Publish(ctx, invoiceEvent(models.EventInvoicePaid, o, inv))
	}
	s.events.stateChanged(ctx, o, prev, prev != o.State)
	s.events.Count(ctx, aws_pkg.MetricTransactions, map[string]string{"Type": t.TxnType})
	return t, nil
}

func (s *paymentServiceImpl) authorize(o *models.Order, t *models.Transaction, pending bool) error {
	if o.State == models.StateCanceled || o.State == models.StateClosed {
		return apperrors.ErrInvalidStateTransition.Withf("authorization not allowed in state %s", o.State).WithDetail("state", o.State)
	}
	p := o.Payment
	p.AmountAuthorized = p.AmountAuthorized.Add(t.Amount)
	p.BaseAmountAuthorized = p.BaseAmountAuthorized.Add(t.BaseAmount)
	if !pending {
		return nil
	}
	if o.State != models.StateNew && o.State != models.StateProcessing {
		return apperrors.ErrInvalidStateTransition.Withf("payment review not allowed in state %s", o.State).WithDetail("state", o.State)
	}
	s.machine.Transition(o, models.StatePaymentReview, state.HistoryEntry{Comment: "Payment is pending review"})
	return nil
}

// capture pays the referenced invoice, or the oldest open invoices whose grand
// totals add up to the captured amount.
func (s *paymentServiceImpl) capture(ctx context.Context, r repository.Repos, o *models.Order, t, parent *models.Transaction, invoiceID *uuid.UUID) ([]*models.Invoice, error) {
	if o.State == models.StateCanceled || o.State == models.StateClosed {
		return nil, apperrors.ErrInvalidStateTransition.Withf("capture not allowed in state %s", o.State).WithDetail("state", o.State)
	}
	capturable := o.Invoiced.GrandTotal.Sub(o.TotalPaid)
	if t.Amount.GreaterThan(capturable) {
		return nil, apperrors.ErrInvalidAmount.
			Withf("Invalid amount: capture exceeds invoiced amount not yet paid").
			WithDetail("available", capturable.StringFixed(money.CurrencyPrecision))
	}

	var targets []*models.Invoice
	if invoiceID != nil {
		inv, err := r.Invoices.FindByID(ctx, *invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.OrderID != o.ID {
			return nil, apperrors.NotFound("invoice", invoiceID.String())
		}
		if inv.State != models.InvoiceStateOpen {
			return nil, apperrors.ErrInvalidStateTransition.Withf("invoice is %s and cannot be captured", inv.State).WithDetail("invoice_id", inv.ID.String())
		}
		if !inv.Totals.GrandTotal.Equal(t.Amount) {
			return nil, apperrors.ErrInvalidAmount.
				Withf("Invalid amount: capture must equal the invoice grand total").
				WithDetail("available", inv.Totals.GrandTotal.StringFixed(money.CurrencyPrecision))
		}
		targets = append(targets, inv)
	} else {
		invoices, err := r.Invoices.ListByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		sum := decimal.Zero
		for i := range invoices {
			if invoices[i].State != models.InvoiceStateOpen || sum.GreaterThanOrEqual(t.Amount) {
				continue
			}
			sum = sum.Add(invoices[i].Totals.GrandTotal)
			targets = append(targets, &invoices[i])
		}
		if !sum.Equal(t.Amount) {
			return nil, apperrors.ErrInvalidAmount.
				Withf("Invalid amount: capture does not match open invoices").
				WithDetail("available", sum.StringFixed(money.CurrencyPrecision))
		}
	}

	base := decimal.Zero
	for _, inv := range targets {
		markPaid(o, inv)
		inv.TransactionID = t.TxnID
		base = base.Add(inv.BaseTotals.GrandTotal)
	}
	t.BaseAmount = base
	t.IsClosed = true

	if parent != nil && parent.TxnType == models.TxnAuthorization && o.Payment.AmountPaid.GreaterThanOrEqual(parent.Amount) {
		parent.IsClosed = true
		if err := r.Payments.UpdateTransaction(ctx, parent); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

func (s *paymentServiceImpl) void(ctx context.Context, r repository.Repos, o *models.Order, t, parent *models.Transaction) error {
	p := o.Payment
	if p.AmountPaid.IsPositive() {
		return apperrors.ErrInvalidStateTransition.Withf("void not allowed after capture").WithDetail("txn_id", t.TxnID)
	}
	if parent == nil {
		txns, err := r.Payments.ListTransactions(ctx, o.ID)
		if err != nil {
			return err
		}
		parent = openAuthorization(txns)
		if parent == nil {
			return apperrors.ErrInvalidStateTransition.Withf("no open authorization to void").WithDetail("txn_id", t.TxnID)
		}
		t.ParentID = &parent.ID
		t.ParentTxnID = parent.TxnID
	}
	if parent.TxnType != models.TxnAuthorization || parent.IsClosed {
		return apperrors.ErrInvalidStateTransition.Withf("transaction %s cannot be voided", parent.TxnID).WithDetail("txn_id", parent.TxnID)
	}
	t.Amount, t.BaseAmount = parent.Amount, parent.BaseAmount
	t.IsClosed = true
	parent.IsClosed = true
	p.AmountCanceled = p.AmountCanceled.Add(parent.Amount)
	p.BaseAmountCanceled = p.BaseAmountCanceled.Add(parent.BaseAmount)
	return r.Payments.UpdateTransaction(ctx, parent)
}

func (s *paymentServiceImpl) refund(o *models.Order, t *models.Transaction) error {
	p := o.Payment
	available := p.AmountPaid.Sub(p.AmountRefunded)
	if t.Amount.GreaterThan(available) {
		return apperrors.ErrOverRefund.
			WithDetail("txn_id", t.TxnID).
			WithDetail("available", available.StringFixed(money.CurrencyPrecision))
	}
	t.IsClosed = true
	p.AmountRefunded = p.AmountRefunded.Add(t.Amount)
	p.BaseAmountRefunded = p.BaseAmountRefunded.Add(t.BaseAmount)
	return nil
}

// ListTransactions returns the transaction tree, parents first.
func (s *paymentServiceImpl) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		if _, err := r.Orders.FindByID(ctx, orderID); err != nil {
			return err
		}
		var err error
		txns, err = r.Payments.ListTransactions(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return models.SortTransactionTree(txns), nil
}

// AcceptPayment releases an order from payment review into the state its ledger implies.
func (s *paymentServiceImpl) AcceptPayment(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error) {
	return s.review(ctx, orderID, "accept_payment", func(r repository.Repos, o *models.Order) error {
		o.State = models.StateNew
		next, _ := state.Evaluate(o)
		s.machine.Transition(o, next, state.HistoryEntry{Comment: orDefault(comment, "Payment accepted")})
		return nil
	})
}

// DenyPayment cancels an order under payment review.
func (s *paymentServiceImpl) DenyPayment(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error) {
	return s.review(ctx, orderID, "deny_payment", func(r repository.Repos, o *models.Order) error {
		return cancelOrder(ctx, r, s.machine, o, state.HistoryEntry{Comment: orDefault(comment, "Payment denied")})
	})
}

func (s *paymentServiceImpl) review(ctx context.Context, orderID uuid.UUID, operation string, fn func(r repository.Repos, o *models.Order) error) (*models.Order, error) {
	start := time.Now()
	var (
		o    *models.Order
		prev string
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		o, err = r.Orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.State != models.StatePaymentReview {
			return apperrors.ErrInvalidStateTransition.
				Withf("order is not under payment review").
				WithDetail("state", o.State).
				WithDetail("operation", operation)
		}
		prev = o.State
		if err := fn(r, o); err != nil {
			return err
		}
		return saveOrder(ctx, r, o)
	})
	s.events.Observe(ctx, operation, start, err)
	if err != nil {
		return nil, err
	}
	if o.State == models.StateCanceled {
		s.events.Publish(ctx, orderEvent(models.EventOrderCanceled, o, prev))
		s.events.Count(ctx, aws_pkg.MetricOrdersCanceled, map[string]string{"StoreID": o.StoreID})
	}
	s.events.stateChanged(ctx, o, prev, true)
	return o, nil
}
