// Package repository persists quotes, orders and their documents. Every
// Document Factory operation runs inside one Transactor.WithinTx call, so the
// ledger update, the document rows, the grids and the history commit together.
package repository

import (
	"context"
	"time"

	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/google/uuid"
)

// QuoteRepository defines data-access operations for quotes.
type QuoteRepository interface {
	Create(ctx context.Context, q *models.Quote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	// Save updates the quote row and upserts its items and addresses.
	Save(ctx context.Context, q *models.Quote) error
	DeleteItem(ctx context.Context, quoteID, itemID uuid.UUID) error
}

// OrderRepository defines data-access operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// FindForUpdate loads the order and locks its row until the transaction ends.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// Update saves the order, its items, payment and new history rows. It fails
	// with ConcurrentModification when the stored version differs from o.Version,
	// and increments o.Version on success.
	Update(ctx context.Context, o *models.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.OrderGrid, int64, error)
}

// InvoiceRepository defines data-access operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	Update(ctx context.Context, inv *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Invoice, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error)
}

// ShipmentRepository defines data-access operations for shipments.
type ShipmentRepository interface {
	Create(ctx context.Context, s *models.Shipment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Shipment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
	AddTrack(ctx context.Context, track *models.ShipmentTrack) error
}

// CreditmemoRepository defines data-access operations for creditmemos.
type CreditmemoRepository interface {
	Create(ctx context.Context, cm *models.Creditmemo) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Creditmemo, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Creditmemo, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Creditmemo, error)
}

// PaymentRepository stores payment transactions. The Payment row itself is
// saved with its order.
type PaymentRepository interface {
	FindTransaction(ctx context.Context, orderID, paymentID uuid.UUID, txnID string) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
}

// SequenceRepository issues store-scoped increment numbers per entity type.
type SequenceRepository interface {
	Next(ctx context.Context, storeID, entityType string) (int64, error)
}

// GridRepository keeps the listing projections in sync with their entities.
type GridRepository interface {
	UpsertOrder(ctx context.Context, row models.OrderGrid) error
	UpsertInvoice(ctx context.Context, row models.InvoiceGrid) error
	UpsertShipment(ctx context.Context, row models.ShipmentGrid) error
	UpsertCreditmemo(ctx context.Context, row models.CreditmemoGrid) error
}

// ReportRepository aggregates committed values. It never recomputes totals.
type ReportRepository interface {
	SalesSummary(ctx context.Context, storeID string, from, to time.Time) (*models.SalesSummary, error)
	Bestsellers(ctx context.Context, storeID string, limit int) ([]models.Bestseller, error)
}

// Repos groups the repositories bound to one transaction.
type Repos struct {
	Quotes      QuoteRepository
	Orders      OrderRepository
	Invoices    InvoiceRepository
	Shipments   ShipmentRepository
	Creditmemos CreditmemoRepository
	Payments    PaymentRepository
	Sequences   SequenceRepository
	Grids       GridRepository
	Reports     ReportRepository
}

// Transactor runs fn against repositories bound to a single transaction. When fn
// returns an error nothing fn wrote is kept.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// normalizePage applies listing defaults.
func normalizePage(f models.OrderFilter) (page, limit int) {
	page, limit = f.Page, f.Limit
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
