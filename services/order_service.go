package services

import (
	"context"
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

// OrderService places orders and runs the order-level actions.
type OrderService interface {
	PlaceOrder(ctx context.Context, quoteID uuid.UUID, policy ledger.ValidationPolicy) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error)
	Hold(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error)
	Unhold(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error)
	AddComment(ctx context.Context, orderID uuid.UUID, req models.CommentRequest) (*models.Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, req models.SetStatusRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.OrderGrid, int64, error)
	Totals(ctx context.Context, orderID uuid.UUID) (*totals.TotalsSnapshot, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type orderServiceImpl struct {
	store   repository.Transactor
	machine *state.Machine
	locks   repository.SessionLock
	rates   money.RateProvider
	stock   ledger.StockChecker
	events  *EventPublisher
	logger  *zap.Logger
}

// NewOrderService creates a new OrderService. stock may be nil.
func NewOrderService(
	store repository.Transactor,
	machine *state.Machine,
	locks repository.SessionLock,
	rates money.RateProvider,
	stock ledger.StockChecker,
	events *EventPublisher,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		store:   store,
		machine: machine,
		locks:   locks,
		rates:   rates,
		stock:   stock,
		events:  events,
		logger:  logger,
	}
}

// PlaceOrder converts an active quote into an order exactly once.
func (s *orderServiceImpl) PlaceOrder(ctx context.Context, quoteID uuid.UUID, policy ledger.ValidationPolicy) (*models.Order, error) {
	start := time.Now()
	release, err := s.locks.Acquire(ctx, quoteID.String(), quoteLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("failed to release quote lock", zap.String("quote_id", quoteID.String()), zap.Error(err))
		}
	}()

	var o *models.Order
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		q, err := r.Quotes.FindByID(ctx, quoteID)
		if err != nil {
			return err
		}
		if !q.IsActive || q.ConvertedAt != nil {
			return apperrors.ErrQuoteAlreadyConverted.WithDetail("quote_id", q.ID.String())
		}
		if len(q.Items) == 0 {
			return apperrors.ErrQuoteEmpty.WithDetail("quote_id", q.ID.String())
		}
		if q.PaymentMethod == "" {
			return apperrors.ErrValidation.Withf("payment method is required").WithDetail("quote_id", q.ID.String())
		}
		if err := s.validateQuote(ctx, q, policy); err != nil {
			return err
		}
		if _, err := totals.CollectQuote(q); err != nil {
			return err
		}

		rates, err := s.rates.Rates(ctx, q.BaseCurrencyCode, orDefault(q.QuoteCurrencyCode, q.BaseCurrencyCode), orDefault(q.StoreCurrencyCode, q.BaseCurrencyCode))
		if err != nil {
			return err
		}
		conv, err := money.NewConverter(rates)
		if err != nil {
			return err
		}

		o = buildOrder(q, conv)
		if o.IncrementID, err = nextIncrement(ctx, r, q.StoreID, models.EntityOrder); err != nil {
			return err
		}
		s.machine.Transition(o, models.StateNew, state.HistoryEntry{Comment: "Order placed"})
		o.RefreshTotalDue()

		if err := r.Orders.Create(ctx, o); err != nil {
			return err
		}
		now := time.Now()
		q.IsActive = false
		q.ConvertedAt = &now
		q.ReservedOrderID = o.IncrementID
		if err := r.Quotes.Save(ctx, q); err != nil {
			return err
		}
		return r.Grids.UpsertOrder(ctx, models.NewOrderGrid(o))
	})
	s.events.Observe(ctx, "place_order", start, err)
	if err != nil {
		logger.For(ctx, s.logger).Warn("place order failed", zap.String("quote_id", quoteID.String()), zap.Error(err))
		return nil, err
	}

	s.events.Publish(ctx, orderEvent(models.EventOrderPlaced, o, ""))
	s.events.Count(ctx, aws_pkg.MetricOrdersPlaced, map[string]string{"StoreID": o.StoreID})
	s.logger.Info("order placed",
		zap.String("order_id", o.ID.String()),
		zap.String("increment_id", o.IncrementID),
		zap.String("quote_id", quoteID.String()),
		zap.String("base_grand_total", o.BaseOrdered.GrandTotal.String()),
	)
	return o, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (s *orderServiceImpl) validateQuote(ctx context.Context, q *models.Quote, policy ledger.ValidationPolicy) error {
	parents := make(map[uuid.UUID]bool)
	for _, it := range q.Items {
		if it.ParentItemID != nil {
			parents[*it.ParentItemID] = true
		}
	}
	for _, it := range q.Items {
		id := it.ID.String()
		if !it.Qty.IsPositive() {
			return apperrors.InvalidQuantity(id, it.Qty.String(), "", "quantity must be positive").WithDetail("sku", it.SKU)
		}
		if !it.Qty.IsInteger() && !it.IsQtyDecimal && !policy.AllowFractionalQty {
			return apperrors.InvalidQuantity(id, it.Qty.String(), "", "item does not accept fractional quantity").WithDetail("sku", it.SKU)
		}
		if policy.SkipStockCheck || s.stock == nil || parents[it.ID] {
			continue
		}
		if err := s.stock.CheckStock(ctx, it.SKU, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

// buildOrder snapshots the collected quote. Item rows are converted from the
// base rows; unit prices are derived from the quote's tax mode.
func buildOrder(q *models.Quote, conv *money.Converter) *models.Order {
	rates := conv.Rates()
	o := &models.Order{
		ID:                uuid.New(),
		StoreID:           q.StoreID,
		QuoteID:           q.ID,
		CustomerID:        q.CustomerID,
		CustomerEmail:     q.CustomerEmail,
		Version:           1,
		IsVirtual:         q.IsVirtual(),
		PriceIncludesTax:  q.PriceIncludesTax,
		BaseCurrencyCode:  rates.BaseCurrency,
		OrderCurrencyCode: rates.OrderCurrency,
		StoreCurrencyCode: rates.StoreCurrency,
		StoreToBaseRate:   rates.StoreToBase,
		BaseToOrderRate:   rates.BaseToOrder,
		ShippingMethod:    q.ShippingMethod,
		TotalQtyOrdered:   q.ItemsQty,
		BaseOrdered:       q.Totals,
		Ordered:           totals.ConvertAmounts(q.Totals, conv, money.ScopeOrder),
	}

	ids := make(map[uuid.UUID]uuid.UUID, len(q.Items))
	for _, qi := range q.Items {
		ids[qi.ID] = uuid.New()
	}
	toOrder := func(v decimal.Decimal) decimal.Decimal {
		return conv.ConvertRound(v, money.ScopeBase, money.ScopeOrder)
	}
	hundred := decimal.NewFromInt(100)

	for _, qi := range q.Items {
		basePrice, basePriceIncl := qi.Price, qi.Price
		factor := hundred.Add(qi.TaxPercent)
		if q.PriceIncludesTax {
			basePrice = money.RoundPrice(qi.Price.Mul(hundred).DivRound(factor, 16))
		} else {
			basePriceIncl = money.RoundPrice(qi.Price.Mul(factor).DivRound(hundred, 16))
		}
		quoteItemID := qi.ID
		it := models.OrderItem{
			ID:                  ids[qi.ID],
			OrderID:             o.ID,
			QuoteItemID:         &quoteItemID,
			Position:            len(o.Items),
			SKU:                 qi.SKU,
			Name:                qi.Name,
			ProductType:         orDefault(qi.ProductType, "simple"),
			IsVirtual:           qi.IsVirtual,
			IsQtyDecimal:        qi.IsQtyDecimal,
			QtyOrdered:          qi.Qty,
			BasePrice:           basePrice,
			BasePriceInclTax:    basePriceIncl,
			Price:               money.RoundPrice(conv.Convert(basePrice, money.ScopeBase, money.ScopeOrder)),
			PriceInclTax:        money.RoundPrice(conv.Convert(basePriceIncl, money.ScopeBase, money.ScopeOrder)),
			TaxPercent:          qi.TaxPercent,
			Weight:              qi.Weight,
			RowWeight:           qi.Weight.Mul(qi.Qty),
			BaseRow:             qi.Row,
			Row:                 qi.Row.Map(toOrder),
			ExtensionAttributes: qi.ExtensionAttributes,
		}
		if qi.ParentItemID != nil {
			parent := ids[*qi.ParentItemID]
			it.ParentItemID = &parent
		}
		if !it.IsVirtual {
			o.Weight = o.Weight.Add(it.RowWeight)
		}
		o.Items = append(o.Items, it)
	}

	for _, qa := range q.Addresses {
		o.Addresses = append(o.Addresses, models.OrderAddress{ID: uuid.New(), OrderID: o.ID, Address: qa.Address})
	}
	if o.CustomerEmail == "" {
		if billing := o.Address(models.AddressBilling); billing != nil {
			o.CustomerEmail = billing.Email
		}
	}
	o.Payment = &models.Payment{ID: uuid.New(), OrderID: o.ID, Method: q.PaymentMethod}
	return o
}

// Cancel cancels every open quantity and voids open authorizations.
func (s *orderServiceImpl) Cancel(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error) {
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
		prev = o.State
		if err := cancelOrder(ctx, r, s.machine, o, state.HistoryEntry{Comment: comment}); err != nil {
			return err
		}
		return saveOrder(ctx, r, o)
	})
	s.events.Observe(ctx, "cancel_order", start, err)
	if err != nil {
		return nil, err
	}
	s.publishCanceled(ctx, o, prev)
	return o, nil
}

func (s *orderServiceImpl) publishCanceled(ctx context.Context, o *models.Order, prev string) {
	s.events.Publish(ctx, orderEvent(models.EventOrderCanceled, o, prev))
	s.events.stateChanged(ctx, o, prev, true)
	s.events.Count(ctx, aws_pkg.MetricOrdersCanceled, map[string]string{"StoreID": o.StoreID})
	s.logger.Info("order canceled", zap.String("order_id", o.ID.String()), zap.String("previous_state", prev))
}

// cancelOrder moves every open quantity into the canceled bucket, fills the
// canceled totals and voids the open authorizations. The caller persists o.
func cancelOrder(ctx context.Context, r repository.Repos, m *state.Machine, o *models.Order, entry state.HistoryEntry) error {
	if err := state.CanCancel(o); err != nil {
		return err
	}
	conv, err := o.Converter()
	if err != nil {
		return err
	}

	basePool := o.BaseOrdered.Sub(o.BaseInvoiced).Sub(o.BaseCanceled)
	orderPool := o.Ordered.Sub(o.Invoiced).Sub(o.Canceled)
	ship := openShipping(o.BaseOrdered, o.BaseInvoiced, o.BaseCanceled)

	var baseRows models.ItemAmounts
	for i := range o.Items {
		it := &o.Items[i]
		open := ledger.QtyToCancel(it)
		if !open.IsPositive() {
			continue
		}
		share, err := ledger.ApplyCancel(it, open)
		if err != nil {
			return err
		}
		baseRows = baseRows.Add(share.BaseRow)
		if err := ledger.CheckInvariants(it); err != nil {
			return err
		}
	}
	base := totals.Combine(baseRows, ship)
	o.BaseCanceled = o.BaseCanceled.Add(base)
	o.Canceled = o.Canceled.Add(totals.ConvertDocument(base, basePool, orderPool, conv))

	if o.Payment != nil {
		if err := voidAuthorizations(ctx, r, o); err != nil {
			return err
		}
	}
	m.Transition(o, models.StateCanceled, entry)
	o.RefreshTotalDue()
	return nil
}

func voidAuthorizations(ctx context.Context, r repository.Repos, o *models.Order) error {
	txns, err := r.Payments.ListTransactions(ctx, o.ID)
	if err != nil {
		return err
	}
	for i := range txns {
		auth := &txns[i]
		if auth.TxnType != models.TxnAuthorization || auth.IsClosed {
			continue
		}
		void := &models.Transaction{
			ID:          uuid.New(),
			OrderID:     o.ID,
			PaymentID:   o.Payment.ID,
			TxnID:       auth.TxnID + "-void",
			ParentID:    &auth.ID,
			ParentTxnID: auth.TxnID,
			TxnType:     models.TxnVoid,
			Amount:      auth.Amount,
			BaseAmount:  auth.BaseAmount,
			IsClosed:    true,
		}
		auth.IsClosed = true
		if err := r.Payments.UpdateTransaction(ctx, auth); err != nil {
			return err
		}
		if err := r.Payments.CreateTransaction(ctx, void); err != nil {
			return err
		}
		o.Payment.AmountCanceled = o.Payment.AmountCanceled.Add(auth.Amount)
		o.Payment.BaseAmountCanceled = o.Payment.BaseAmountCanceled.Add(auth.BaseAmount)
		o.Payment.LastTransID = void.TxnID
	}
	return nil
}

// mutate runs fn on the locked order, saves it and publishes a state change.
func (s *orderServiceImpl) mutate(ctx context.Context, orderID uuid.UUID, operation string, fn func(o *models.Order) error) (*models.Order, error) {
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
		prev = o.State
		if err := fn(o); err != nil {
			return err
		}
		return saveOrder(ctx, r, o)
	})
	s.events.Observe(ctx, operation, start, err)
	if err != nil {
		return nil, err
	}
	s.events.stateChanged(ctx, o, prev, prev != o.State)
	return o, nil
}

func (s *orderServiceImpl) Hold(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error) {
	return s.mutate(ctx, orderID, "hold_order", func(o *models.Order) error {
		return s.machine.Hold(o, state.HistoryEntry{Comment: comment})
	})
}

func (s *orderServiceImpl) Unhold(ctx context.Context, orderID uuid.UUID, comment string) (*models.Order, error) {
	return s.mutate(ctx, orderID, "unhold_order", func(o *models.Order) error {
		return s.machine.Unhold(o, state.HistoryEntry{Comment: comment})
	})
}

// AddComment appends a history comment, changing the status when one is given.
func (s *orderServiceImpl) AddComment(ctx context.Context, orderID uuid.UUID, req models.CommentRequest) (*models.Order, error) {
	entry := state.HistoryEntry{Comment: req.Comment, NotifyCustomer: req.NotifyCustomer, VisibleOnFront: req.VisibleOnFront}
	return s.mutate(ctx, orderID, "add_comment", func(o *models.Order) error {
		if req.Status != "" && req.Status != o.Status {
			return s.machine.SetStatus(o, req.Status, entry)
		}
		s.machine.AppendHistory(o, models.EntityOrder, entry)
		return nil
	})
}

func (s *orderServiceImpl) SetStatus(ctx context.Context, orderID uuid.UUID, req models.SetStatusRequest) (*models.Order, error) {
	return s.mutate(ctx, orderID, "set_status", func(o *models.Order) error {
		return s.machine.SetStatus(o, req.Status, state.HistoryEntry{Comment: req.Comment})
	})
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var o *models.Order
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		o, err = r.Orders.FindByID(ctx, orderID)
		return err
	})
	return o, err
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.OrderGrid, int64, error) {
	var (
		rows  []models.OrderGrid
		total int64
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		rows, total, err = r.Orders.List(ctx, filter)
		return err
	})
	return rows, total, err
}

// Totals returns every totals family of the order in every currency scope.
func (s *orderServiceImpl) Totals(ctx context.Context, orderID uuid.UUID) (*totals.TotalsSnapshot, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return totals.ComputeOrderTotals(o)
}

func (s *orderServiceImpl) Delete(ctx context.Context, orderID uuid.UUID) error {
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Orders.Delete(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("order deleted", zap.String("order_id", orderID.String()))
	return nil
}

// describe formats an amount with its currency for history comments.
func describe(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(money.CurrencyPrecision), currency)
}
