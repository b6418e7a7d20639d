package services

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/MahoCommerce/maho-sub002/totals"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService creates and captures invoices.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, orderID uuid.UUID, req models.CreateInvoiceRequest) (*models.Invoice, error)
	CaptureInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error)
	HasInvoiceForRequest(ctx context.Context, requestID string) (bool, error)
	FindInvoiceByRequest(ctx context.Context, requestID string) (*models.Invoice, error)
}

type invoiceServiceImpl struct {
	store   repository.Transactor
	machine *state.Machine
	guard   requestGuard
	events  *EventPublisher
	logger  *zap.Logger
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(
	store repository.Transactor,
	machine *state.Machine,
	cache repository.IdempotencyCache,
	events *EventPublisher,
	logger *zap.Logger,
) InvoiceService {
	return &invoiceServiceImpl{
		store:   store,
		machine: machine,
		guard:   requestGuard{cache: cache, logger: logger},
		events:  events,
		logger:  logger,
	}
}

// CreateInvoice bills the requested quantities. The first invoice also takes
// the whole open shipping amount.
func (s *invoiceServiceImpl) CreateInvoice(ctx context.Context, orderID uuid.UUID, req models.CreateInvoiceRequest) (*models.Invoice, error) {
	start := time.Now()
	if err := s.guard.check(ctx, req.RequestID); err != nil {
		return nil, err
	}
	captureCase := req.CaptureCase
	if captureCase == "" {
		captureCase = models.CaptureOffline
	}

	var (
		inv     *models.Invoice
		o       *models.Order
		prev    string
		changed bool
		paid    bool
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
		if err := state.CanInvoice(o); err != nil {
			return err
		}
		qtys, err := resolveQtys(o, req.Items, ledger.QtyToInvoice, "invoice")
		if err != nil {
			return err
		}
		conv, err := o.Converter()
		if err != nil {
			return err
		}

		basePool := o.BaseOrdered.Sub(o.BaseInvoiced).Sub(o.BaseCanceled)
		orderPool := o.Ordered.Sub(o.Invoiced).Sub(o.Canceled)
		ship := openShipping(o.BaseOrdered, o.BaseInvoiced, o.BaseCanceled)

		inv = &models.Invoice{
			DocumentHeader: models.DocumentHeader{
				ID:        uuid.New(),
				OrderID:   o.ID,
				StoreID:   o.StoreID,
				RequestID: optionalString(req.RequestID),
			},
			State:                models.InvoiceStateOpen,
			RequestedCaptureCase: captureCase,
			OrderCurrencyCode:    o.OrderCurrencyCode,
			BaseCurrencyCode:     o.BaseCurrencyCode,
		}

		var baseRows models.ItemAmounts
		for _, iq := range qtys {
			share, err := ledger.ApplyInvoice(iq.item, iq.qty)
			if err != nil {
				return err
			}
			inv.Items = append(inv.Items, models.InvoiceItem{
				ID:          uuid.New(),
				InvoiceID:   inv.ID,
				OrderItemID: iq.item.ID,
				SKU:         iq.item.SKU,
				Name:        iq.item.Name,
				Qty:         iq.qty,
				Price:       iq.item.Price,
				BasePrice:   iq.item.BasePrice,
				Row:         share.Row,
				BaseRow:     share.BaseRow,
			})
			inv.TotalQty = inv.TotalQty.Add(iq.qty)
			baseRows = baseRows.Add(share.BaseRow)
		}
		if err := checkItems(qtys); err != nil {
			return err
		}

		inv.BaseTotals = totals.Combine(baseRows, ship)
		inv.Totals = totals.ConvertDocument(inv.BaseTotals, basePool, orderPool, conv)
		o.BaseInvoiced = o.BaseInvoiced.Add(inv.BaseTotals)
		o.Invoiced = o.Invoiced.Add(inv.Totals)

		if inv.IncrementID, err = nextIncrement(ctx, r, o.StoreID, models.EntityInvoice); err != nil {
			return err
		}

		switch captureCase {
		case models.CaptureOnline:
			if err := s.captureOnline(ctx, r, o, inv, req.TransactionID); err != nil {
				return err
			}
			paid = true
		case models.CaptureOffline:
			markPaid(o, inv)
			paid = true
		}
		o.RefreshTotalDue()

		if req.Comment != "" {
			inv.Comments = newComment(inv.ID, models.EntityInvoice, req.Comment, req.NotifyCustomer)
			s.machine.AppendHistory(o, models.EntityInvoice, state.HistoryEntry{Comment: req.Comment, NotifyCustomer: req.NotifyCustomer})
		}
		prev, changed = s.machine.Apply(o, state.HistoryEntry{Comment: fmt.Sprintf("Invoice #%s created", inv.IncrementID)})

		if err := r.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		if err := saveOrder(ctx, r, o); err != nil {
			return err
		}
		return r.Grids.UpsertInvoice(ctx, models.NewInvoiceGrid(o, inv))
	})
	s.events.Observe(ctx, "create_invoice", start, err)
	if err != nil {
		logger.For(ctx, s.logger).Warn("invoice creation failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, err
	}

	s.guard.remember(ctx, req.RequestID, inv.ID)
	s.events.Publish(ctx, invoiceEvent(models.EventInvoiceCreated, o, inv))
	if paid {
		s.events.Publish(ctx, invoiceEvent(models.EventInvoicePaid, o, inv))
	}
	s.events.stateChanged(ctx, o, prev, changed)
	s.events.Archive(ctx, models.EntityInvoice, inv.ID, inv)
	s.events.Count(ctx, aws_pkg.MetricInvoicesCreated, map[string]string{"CaptureCase": captureCase})

	s.logger.Info("invoice created",
		zap.String("order_id", o.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("increment_id", inv.IncrementID),
		zap.String("base_grand_total", inv.BaseTotals.GrandTotal.String()),
	)
	return inv, nil
}

// captureOnline pays inv through a capture transaction, child of the open
// authorization when there is one.
func (s *invoiceServiceImpl) captureOnline(ctx context.Context, r repository.Repos, o *models.Order, inv *models.Invoice, txnID string) error {
	if o.Payment == nil {
		return apperrors.ErrValidation.Withf("order has no payment").WithDetail("order_id", o.ID.String())
	}
	if txnID == "" {
		txnID = inv.IncrementID + "-capture"
	}
	txns, err := r.Payments.ListTransactions(ctx, o.ID)
	if err != nil {
		return err
	}
	auth := openAuthorization(txns)

	t := &models.Transaction{
		ID:         uuid.New(),
		OrderID:    o.ID,
		PaymentID:  o.Payment.ID,
		TxnID:      txnID,
		TxnType:    models.TxnCapture,
		Amount:     inv.Totals.GrandTotal,
		BaseAmount: inv.BaseTotals.GrandTotal,
		IsClosed:   true,
	}
	inv.TransactionID = txnID
	markPaid(o, inv)

	if auth != nil {
		t.ParentID = &auth.ID
		t.ParentTxnID = auth.TxnID
		if o.Payment.AmountPaid.GreaterThanOrEqual(auth.Amount) {
			auth.IsClosed = true
			if err := r.Payments.UpdateTransaction(ctx, auth); err != nil {
				return err
			}
		}
	}
	o.Payment.LastTransID = txnID
	return r.Payments.CreateTransaction(ctx, t)
}

// markPaid records inv as paid on the order and its payment.
func markPaid(o *models.Order, inv *models.Invoice) {
	inv.State = models.InvoiceStatePaid
	o.TotalPaid = o.TotalPaid.Add(inv.Totals.GrandTotal)
	o.BaseTotalPaid = o.BaseTotalPaid.Add(inv.BaseTotals.GrandTotal)
	if o.Payment != nil {
		o.Payment.AmountPaid = o.Payment.AmountPaid.Add(inv.Totals.GrandTotal)
		o.Payment.BaseAmountPaid = o.Payment.BaseAmountPaid.Add(inv.BaseTotals.GrandTotal)
	}
}

// openAuthorization returns the most recent authorization that is not closed.
func openAuthorization(txns []models.Transaction) *models.Transaction {
	for i := len(txns) - 1; i >= 0; i-- {
		if txns[i].TxnType == models.TxnAuthorization && !txns[i].IsClosed {
			t := txns[i]
			return &t
		}
	}
	return nil
}

// CaptureInvoice pays an open invoice offline.
func (s *invoiceServiceImpl) CaptureInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	start := time.Now()
	var (
		inv *models.Invoice
		o   *models.Order
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		inv, err = r.Invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.State != models.InvoiceStateOpen {
			return apperrors.ErrInvalidStateTransition.
				Withf("invoice is %s and cannot be captured", inv.State).
				WithDetail("invoice_id", inv.ID.String())
		}
		o, err = r.Orders.FindForUpdate(ctx, inv.OrderID)
		if err != nil {
			return err
		}
		markPaid(o, inv)
		o.RefreshTotalDue()
		s.machine.AppendHistory(o, models.EntityInvoice, state.HistoryEntry{
			Comment: fmt.Sprintf("Invoice #%s captured offline", inv.IncrementID),
		})

		if err := r.Invoices.Update(ctx, inv); err != nil {
			return err
		}
		if err := saveOrder(ctx, r, o); err != nil {
			return err
		}
		return r.Grids.UpsertInvoice(ctx, models.NewInvoiceGrid(o, inv))
	})
	s.events.Observe(ctx, "capture_invoice", start, err)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, invoiceEvent(models.EventInvoicePaid, o, inv))
	return inv, nil
}

func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		inv, err = r.Invoices.FindByID(ctx, invoiceID)
		return err
	})
	return inv, err
}

func (s *invoiceServiceImpl) ListInvoices(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	var out []models.Invoice
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Invoices.ListByOrder(ctx, orderID)
		return err
	})
	return out, err
}

// HasInvoiceForRequest reports whether an invoice was already created for requestID.
func (s *invoiceServiceImpl) HasInvoiceForRequest(ctx context.Context, requestID string) (bool, error) {
	inv, err := s.FindInvoiceByRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	return inv != nil, nil
}

// FindInvoiceByRequest returns the invoice created for requestID, or nil.
func (s *invoiceServiceImpl) FindInvoiceByRequest(ctx context.Context, requestID string) (*models.Invoice, error) {
	if requestID == "" {
		return nil, apperrors.ErrValidation.Withf("request id is required")
	}
	var inv *models.Invoice
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		inv, err = r.Invoices.FindByRequestID(ctx, requestID)
		return err
	})
	return inv, err
}
