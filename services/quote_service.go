package services

import (
	"context"
	"strings"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/totals"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteService edits carts. Every mutation holds the quote's session lock and
// recollects totals before saving.
type QuoteService interface {
	CreateQuote(ctx context.Context, req models.CreateQuoteRequest) (*models.Quote, error)
	GetQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
	AddItem(ctx context.Context, quoteID uuid.UUID, req models.AddQuoteItemRequest) (*models.Quote, error)
	UpdateItemQty(ctx context.Context, quoteID, itemID uuid.UUID, req models.UpdateQuoteItemRequest) (*models.Quote, error)
	RemoveItem(ctx context.Context, quoteID, itemID uuid.UUID) (*models.Quote, error)
	SetAddresses(ctx context.Context, quoteID uuid.UUID, req models.SetAddressesRequest) (*models.Quote, error)
	SetShipping(ctx context.Context, quoteID uuid.UUID, req models.SetShippingRequest) (*models.Quote, error)
	SetPaymentMethod(ctx context.Context, quoteID uuid.UUID, req models.SetPaymentRequest) (*models.Quote, error)
	CollectTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
}

type quoteServiceImpl struct {
	store            repository.Transactor
	locks            repository.SessionLock
	priceIncludesTax bool
	logger           *zap.Logger
}

// NewQuoteService creates a new QuoteService. priceIncludesTax is the store
// default used when a quote does not set its own.
func NewQuoteService(store repository.Transactor, locks repository.SessionLock, priceIncludesTax bool, logger *zap.Logger) QuoteService {
	return &quoteServiceImpl{store: store, locks: locks, priceIncludesTax: priceIncludesTax, logger: logger}
}

func (s *quoteServiceImpl) CreateQuote(ctx context.Context, req models.CreateQuoteRequest) (*models.Quote, error) {
	base := strings.ToUpper(req.BaseCurrencyCode)
	q := &models.Quote{
		ID:                uuid.New(),
		StoreID:           req.StoreID,
		CustomerID:        req.CustomerID,
		CustomerEmail:     req.CustomerEmail,
		IsActive:          true,
		BaseCurrencyCode:  base,
		QuoteCurrencyCode: strings.ToUpper(orDefault(req.QuoteCurrencyCode, base)),
		StoreCurrencyCode: strings.ToUpper(orDefault(req.StoreCurrencyCode, base)),
		PriceIncludesTax:  s.priceIncludesTax,
	}
	if req.PriceIncludesTax != nil {
		q.PriceIncludesTax = *req.PriceIncludesTax
	}
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Quotes.Create(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quote created", zap.String("quote_id", q.ID.String()), zap.String("store_id", q.StoreID))
	return q, nil
}

func (s *quoteServiceImpl) GetQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	var q *models.Quote
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		q, err = r.Quotes.FindByID(ctx, quoteID)
		return err
	})
	return q, err
}

// mutate runs fn on the locked, active quote, recollects totals and saves.
func (s *quoteServiceImpl) mutate(ctx context.Context, quoteID uuid.UUID, fn func(r repository.Repos, q *models.Quote) error) (*models.Quote, error) {
	release, err := s.locks.Acquire(ctx, quoteID.String(), quoteLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("failed to release quote lock", zap.String("quote_id", quoteID.String()), zap.Error(err))
		}
	}()

	var out *models.Quote
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		q, err := r.Quotes.FindByID(ctx, quoteID)
		if err != nil {
			return err
		}
		if !q.IsActive || q.ConvertedAt != nil {
			return apperrors.ErrQuoteAlreadyConverted.WithDetail("quote_id", q.ID.String())
		}
		if err := fn(r, q); err != nil {
			return err
		}
		if _, err := totals.CollectQuote(q); err != nil {
			return err
		}
		if err := r.Quotes.Save(ctx, q); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *quoteServiceImpl) AddItem(ctx context.Context, quoteID uuid.UUID, req models.AddQuoteItemRequest) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(_ repository.Repos, q *models.Quote) error {
		itemID := uuid.New()
		if !req.Qty.IsPositive() {
			return apperrors.InvalidQuantity(itemID.String(), req.Qty.String(), "", "quantity must be positive").WithDetail("sku", req.SKU)
		}
		if !req.IsQtyDecimal && !req.Qty.IsInteger() {
			return apperrors.InvalidQuantity(itemID.String(), req.Qty.String(), "", "item does not accept fractional quantity").WithDetail("sku", req.SKU)
		}
		if req.Price.IsNegative() || req.TaxPercent.IsNegative() || req.DiscountAmount.IsNegative() || req.Weight.IsNegative() {
			return apperrors.ErrInvalidAmount.Withf("Invalid amount: negative item input").WithDetail("sku", req.SKU)
		}
		if req.ParentItemID != nil && !hasQuoteItem(q, *req.ParentItemID) {
			return apperrors.NotFound("quote item", req.ParentItemID.String())
		}
		isVirtual := req.IsVirtual || req.ProductType == "virtual" || req.ProductType == "downloadable"
		q.Items = append(q.Items, models.QuoteItem{
			ID:                  itemID,
			QuoteID:             q.ID,
			ParentItemID:        req.ParentItemID,
			Position:            nextItemPosition(q),
			SKU:                 req.SKU,
			Name:                req.Name,
			ProductType:         orDefault(req.ProductType, "simple"),
			IsVirtual:           isVirtual,
			IsQtyDecimal:        req.IsQtyDecimal,
			Qty:                 req.Qty,
			Price:               req.Price,
			TaxPercent:          req.TaxPercent,
			DiscountAmount:      req.DiscountAmount,
			Weight:              req.Weight,
			ExtensionAttributes: req.ExtensionAttributes,
		})
		return nil
	})
}

func hasQuoteItem(q *models.Quote, id uuid.UUID) bool {
	for _, it := range q.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func (s *quoteServiceImpl) UpdateItemQty(ctx context.Context, quoteID, itemID uuid.UUID, req models.UpdateQuoteItemRequest) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(_ repository.Repos, q *models.Quote) error {
		for i := range q.Items {
			it := &q.Items[i]
			if it.ID != itemID {
				continue
			}
			if !req.Qty.IsPositive() {
				return apperrors.InvalidQuantity(it.ID.String(), req.Qty.String(), "", "quantity must be positive")
			}
			if !it.IsQtyDecimal && !req.Qty.IsInteger() {
				return apperrors.InvalidQuantity(it.ID.String(), req.Qty.String(), "", "item does not accept fractional quantity")
			}
			it.Qty = req.Qty
			if req.DiscountAmount != nil {
				if req.DiscountAmount.IsNegative() {
					return apperrors.ErrInvalidAmount.Withf("Invalid amount: negative discount").WithDetail("item_id", it.ID.String())
				}
				it.DiscountAmount = *req.DiscountAmount
			}
			return nil
		}
		return apperrors.NotFound("quote item", itemID.String())
	})
}

// RemoveItem deletes an item together with its children.
func (s *quoteServiceImpl) RemoveItem(ctx context.Context, quoteID, itemID uuid.UUID) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(r repository.Repos, q *models.Quote) error {
		if err := r.Quotes.DeleteItem(ctx, q.ID, itemID); err != nil {
			return err
		}
		kept := q.Items[:0]
		for _, it := range q.Items {
			if it.ID == itemID || (it.ParentItemID != nil && *it.ParentItemID == itemID) {
				continue
			}
			kept = append(kept, it)
		}
		q.Items = kept
		return nil
	})
}

// SetAddresses replaces the addresses of the given types.
func (s *quoteServiceImpl) SetAddresses(ctx context.Context, quoteID uuid.UUID, req models.SetAddressesRequest) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(_ repository.Repos, q *models.Quote) error {
		for _, a := range req.Addresses {
			if a.AddressType != models.AddressBilling && a.AddressType != models.AddressShipping {
				return apperrors.ErrValidation.Withf("unknown address type %q", a.AddressType)
			}
			if existing := q.Address(a.AddressType); existing != nil {
				existing.Address = a
				continue
			}
			q.Addresses = append(q.Addresses, models.QuoteAddress{ID: uuid.New(), QuoteID: q.ID, Address: a})
		}
		if q.CustomerEmail == "" {
			if billing := q.Address(models.AddressBilling); billing != nil {
				q.CustomerEmail = billing.Email
			}
		}
		return nil
	})
}

func (s *quoteServiceImpl) SetShipping(ctx context.Context, quoteID uuid.UUID, req models.SetShippingRequest) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(_ repository.Repos, q *models.Quote) error {
		q.ShippingMethod = req.Method
		q.ShippingAmount = req.Amount
		q.ShippingTaxPercent = req.TaxPercent
		q.ShippingDiscountAmount = req.DiscountAmount
		return nil
	})
}

func (s *quoteServiceImpl) SetPaymentMethod(ctx context.Context, quoteID uuid.UUID, req models.SetPaymentRequest) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(_ repository.Repos, q *models.Quote) error {
		q.PaymentMethod = req.Method
		return nil
	})
}

// CollectTotals recomputes the quote totals without other changes.
func (s *quoteServiceImpl) CollectTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	return s.mutate(ctx, quoteID, func(repository.Repos, *models.Quote) error { return nil })
}

// nextItemPosition keeps insertion order stable after items were removed.
func nextItemPosition(q *models.Quote) int {
	next := 0
	for i := range q.Items {
		if q.Items[i].Position >= next {
			next = q.Items[i].Position + 1
		}
	}
	return next
}
