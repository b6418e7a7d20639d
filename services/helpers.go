// Package services implements the quote, order and document operations. Every
// mutating operation loads the order inside one repository transaction, runs
// ledger, totals and state changes on the loaded copy and persists everything
// before commit. Events, archive writes and metrics follow the commit.
package services

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/totals"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	quoteLockTTL   = 30 * time.Second
	idempotencyTTL = 24 * time.Hour
)

func errKind(err error) string {
	if k := apperrors.As(err).Kind; k != "" {
		return k
	}
	return "Unknown"
}

// nextIncrement issues the next store-scoped increment id of an entity type.
func nextIncrement(ctx context.Context, r repository.Repos, storeID, entityType string) (string, error) {
	n, err := r.Sequences.Next(ctx, storeID, entityType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%09d", n), nil
}

type itemQty struct {
	item *models.OrderItem
	qty  decimal.Decimal
}

// resolveQtys turns a request map into per-item quantities in order item
// sequence. An empty map selects every open quantity. A parent quantity expands
// to children that are not listed themselves, in the ordered ratio. Nothing is
// mutated: every quantity is validated against open before returning.
func resolveQtys(o *models.Order, req models.ItemQtys, open func(*models.OrderItem) decimal.Decimal, action string) ([]itemQty, error) {
	idx := o.ItemIndex()
	qtys := make(map[uuid.UUID]decimal.Decimal, len(o.Items))

	if len(req) == 0 {
		for i := range o.Items {
			if q := open(&o.Items[i]); q.IsPositive() {
				qtys[o.Items[i].ID] = q
			}
		}
	} else {
		for id, q := range req {
			if _, ok := idx[id]; !ok {
				return nil, apperrors.NotFound("order item", id.String())
			}
			qtys[id] = q
		}
		for id, q := range req {
			parent := idx[id]
			if !parent.QtyOrdered.IsPositive() {
				continue
			}
			for _, child := range o.Children(id) {
				if _, listed := req[child.ID]; listed || !open(child).IsPositive() {
					continue
				}
				qtys[child.ID] = q.Mul(child.QtyOrdered).DivRound(parent.QtyOrdered, money.PricePrecision)
			}
		}
	}

	out := make([]itemQty, 0, len(qtys))
	for i := range o.Items {
		it := &o.Items[i]
		q, ok := qtys[it.ID]
		if !ok {
			continue
		}
		if err := ledger.ValidateQty(it, q, open(it)); err != nil {
			return nil, err
		}
		out = append(out, itemQty{item: it, qty: q})
	}
	if len(out) == 0 {
		return nil, apperrors.ErrInvalidQuantity.Withf("Invalid quantity: nothing left to %s", action)
	}
	return out, nil
}

// openShipping is the shipping part of a pool not yet consumed by done.
func openShipping(pool models.Amounts, done ...models.Amounts) totals.ShippingAmounts {
	s := totals.ShippingAmounts{
		Amount:          pool.ShippingAmount,
		DiscountAmount:  pool.ShippingDiscountAmount,
		TaxAmount:       pool.ShippingTaxAmount,
		HiddenTaxAmount: pool.ShippingHiddenTaxAmount,
	}
	for _, d := range done {
		s.Amount = s.Amount.Sub(d.ShippingAmount)
		s.DiscountAmount = s.DiscountAmount.Sub(d.ShippingDiscountAmount)
		s.TaxAmount = s.TaxAmount.Sub(d.ShippingTaxAmount)
		s.HiddenTaxAmount = s.HiddenTaxAmount.Sub(d.ShippingHiddenTaxAmount)
	}
	return s
}

// findRequest looks a request id up across every document type.
func findRequest(ctx context.Context, r repository.Repos, requestID string) (string, error) {
	inv, err := r.Invoices.FindByRequestID(ctx, requestID)
	if err != nil {
		return "", err
	}
	if inv != nil {
		return inv.ID.String(), nil
	}
	s, err := r.Shipments.FindByRequestID(ctx, requestID)
	if err != nil {
		return "", err
	}
	if s != nil {
		return s.ID.String(), nil
	}
	cm, err := r.Creditmemos.FindByRequestID(ctx, requestID)
	if err != nil {
		return "", err
	}
	if cm != nil {
		return cm.ID.String(), nil
	}
	return "", nil
}

func duplicateRequest(requestID, documentID string) error {
	return apperrors.ErrDuplicateRequest.
		WithDetail("request_id", requestID).
		WithDetail("document_id", documentID)
}

// requestGuard short-circuits a known request id through the cache. The
// database check inside the transaction stays authoritative.
type requestGuard struct {
	cache  repository.IdempotencyCache
	logger *zap.Logger
}

func (g requestGuard) check(ctx context.Context, requestID string) error {
	if requestID == "" || g.cache == nil {
		return nil
	}
	docID, err := g.cache.Get(ctx, requestID)
	if err != nil {
		g.logger.Warn("idempotency cache lookup failed", zap.String("request_id", requestID), zap.Error(err))
		return nil
	}
	if docID != "" {
		return duplicateRequest(requestID, docID)
	}
	return nil
}

func (g requestGuard) checkTx(ctx context.Context, r repository.Repos, requestID string) error {
	if requestID == "" {
		return nil
	}
	docID, err := findRequest(ctx, r, requestID)
	if err != nil {
		return err
	}
	if docID != "" {
		return duplicateRequest(requestID, docID)
	}
	return nil
}

func (g requestGuard) remember(ctx context.Context, requestID string, documentID uuid.UUID) {
	if requestID == "" || g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, requestID, documentID.String(), idempotencyTTL); err != nil {
		g.logger.Warn("idempotency cache write failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newComment(parentID uuid.UUID, parentType, text string, notify bool) []models.DocumentComment {
	if text == "" {
		return nil
	}
	return []models.DocumentComment{{
		ID:                 uuid.New(),
		ParentID:           parentID,
		ParentType:         parentType,
		Comment:            text,
		IsCustomerNotified: notify,
		CreatedAt:          time.Now(),
	}}
}

func checkItems(qtys []itemQty) error {
	for _, iq := range qtys {
		if err := ledger.CheckInvariants(iq.item); err != nil {
			return err
		}
	}
	return nil
}

// saveOrder persists the order and its grid row.
func saveOrder(ctx context.Context, r repository.Repos, o *models.Order) error {
	if err := r.Orders.Update(ctx, o); err != nil {
		return err
	}
	return r.Grids.UpsertOrder(ctx, models.NewOrderGrid(o))
}
