package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Transactor on top of GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepos(tx))
	})
}

// NewGormRepos binds every repository to db.
func NewGormRepos(db *gorm.DB) Repos {
	return Repos{
		Quotes:      &GormQuoteRepository{db: db},
		Orders:      &GormOrderRepository{db: db},
		Invoices:    &GormInvoiceRepository{db: db},
		Shipments:   &GormShipmentRepository{db: db},
		Creditmemos: &GormCreditmemoRepository{db: db},
		Payments:    &GormPaymentRepository{db: db},
		Sequences:   &GormSequenceRepository{db: db},
		Grids:       &GormGridRepository{db: db},
		Reports:     &GormReportRepository{db: db},
	}
}

// mapErr translates GORM errors into the application taxonomy.
func mapErr(entity string, id interface{}, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(entity, toString(id))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrDuplicateRequest.Wrap(err).WithDetail("entity", entity)
	default:
		return apperrors.Storage(err)
	}
}

func toString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	default:
		return ""
	}
}

// GormQuoteRepository implements QuoteRepository using GORM.
type GormQuoteRepository struct {
	db *gorm.DB
}

func (r *GormQuoteRepository) Create(ctx context.Context, q *models.Quote) error {
	return mapErr("quote", q.ID, r.db.WithContext(ctx).Create(q).Error)
}

func (r *GormQuoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var q models.Quote
	if err := r.db.WithContext(ctx).
		Preload("Items", inInsertionOrder).
		Preload("Addresses").
		First(&q, "id = ?", id).Error; err != nil {
		return nil, mapErr("quote", id, err)
	}
	return &q, nil
}

func (r *GormQuoteRepository) Save(ctx context.Context, q *models.Quote) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Save(q).Error; err != nil {
		return mapErr("quote", q.ID, err)
	}
	for i := range q.Items {
		if err := db.Save(&q.Items[i]).Error; err != nil {
			return mapErr("quote item", q.Items[i].ID, err)
		}
	}
	for i := range q.Addresses {
		if err := db.Save(&q.Addresses[i]).Error; err != nil {
			return mapErr("quote address", q.Addresses[i].ID, err)
		}
	}
	return nil
}

func (r *GormQuoteRepository) DeleteItem(ctx context.Context, quoteID, itemID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("quote_id = ? AND (id = ? OR parent_item_id = ?)", quoteID, itemID, itemID).
		Delete(&models.QuoteItem{})
	if res.Error != nil {
		return mapErr("quote item", itemID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("quote item", itemID.String())
	}
	return nil
}

// inInsertionOrder sorts child rows written in one statement, which share created_at.
func inInsertionOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("created_at ASC").Order("id ASC")
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

func (r *GormOrderRepository) Create(ctx context.Context, o *models.Order) error {
	return mapErr("order", o.ID, r.db.WithContext(ctx).Create(o).Error)
}

func (r *GormOrderRepository) preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", inInsertionOrder).
		Preload("Addresses").
		Preload("Payment").
		Preload("StatusHistory", inInsertionOrder)
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.preload(r.db.WithContext(ctx)).First(&o, "id = ?", id).Error; err != nil {
		return nil, mapErr("order", id, err)
	}
	return &o, nil
}

func (r *GormOrderRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.preload(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", id).Error; err != nil {
		return nil, mapErr("order", id, err)
	}
	return &o, nil
}

func (r *GormOrderRepository) Update(ctx context.Context, o *models.Order) error {
	db := r.db.WithContext(ctx)

	expected := o.Version
	o.Version = expected + 1
	res := db.Model(&models.Order{}).
		Where("id = ? AND version = ?", o.ID, expected).
		Select("*").
		Omit(clause.Associations, "CreatedAt").
		Updates(o)
	if res.Error != nil {
		o.Version = expected
		return mapErr("order", o.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		o.Version = expected
		return apperrors.ErrConcurrentModification.WithDetail("order_id", o.ID.String())
	}

	for i := range o.Items {
		if err := db.Omit(clause.Associations).Save(&o.Items[i]).Error; err != nil {
			return mapErr("order item", o.Items[i].ID, err)
		}
	}
	if o.Payment != nil {
		if err := db.Save(o.Payment).Error; err != nil {
			return mapErr("payment", o.Payment.ID, err)
		}
	}
	if len(o.StatusHistory) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&o.StatusHistory).Error; err != nil {
			return mapErr("status history", o.ID, err)
		}
	}
	return nil
}

func (r *GormOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	res := db.Delete(&models.Order{}, "id = ?", id)
	if res.Error != nil {
		return mapErr("order", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("order", id.String())
	}
	for _, m := range []interface{}{
		&models.Invoice{}, &models.Shipment{}, &models.Creditmemo{}, &models.Transaction{},
		&models.InvoiceGrid{}, &models.ShipmentGrid{}, &models.CreditmemoGrid{},
	} {
		if err := db.Where("order_id = ?", id).Delete(m).Error; err != nil {
			return mapErr("order", id, err)
		}
	}
	return mapErr("order", id, db.Delete(&models.OrderGrid{}, "id = ?", id).Error)
}

func (r *GormOrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.OrderGrid, int64, error) {
	var rows []models.OrderGrid
	var total int64

	query := r.db.WithContext(ctx).Model(&models.OrderGrid{})
	if filter.StoreID != "" {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapErr("order", "", err)
	}

	page, limit := normalizePage(filter)
	if err := query.
		Offset((page - 1) * limit).Limit(limit).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, mapErr("order", "", err)
	}
	return rows, total, nil
}

// GormInvoiceRepository implements InvoiceRepository using GORM.
type GormInvoiceRepository struct {
	db *gorm.DB
}

func (r *GormInvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	return mapErr("invoice", inv.ID, r.db.WithContext(ctx).Create(inv).Error)
}

func (r *GormInvoiceRepository) Update(ctx context.Context, inv *models.Invoice) error {
	return mapErr("invoice", inv.ID, r.db.WithContext(ctx).Omit(clause.Associations).Save(inv).Error)
}

func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Preload("Items").Preload("Comments").First(&inv, "id = ?", id).Error; err != nil {
		return nil, mapErr("invoice", id, err)
	}
	return &inv, nil
}

// FindByRequestID returns nil when no invoice carries the key.
func (r *GormInvoiceRepository) FindByRequestID(ctx context.Context, requestID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("invoice", requestID, err)
	}
	return &inv, nil
}

func (r *GormInvoiceRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	var out []models.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("invoice", orderID, err)
	}
	return out, nil
}

// GormShipmentRepository implements ShipmentRepository using GORM.
type GormShipmentRepository struct {
	db *gorm.DB
}

func (r *GormShipmentRepository) Create(ctx context.Context, s *models.Shipment) error {
	return mapErr("shipment", s.ID, r.db.WithContext(ctx).Create(s).Error)
}

func (r *GormShipmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var s models.Shipment
	if err := r.db.WithContext(ctx).
		Preload("Items").Preload("Tracks").Preload("Comments").
		First(&s, "id = ?", id).Error; err != nil {
		return nil, mapErr("shipment", id, err)
	}
	return &s, nil
}

// FindByRequestID returns nil when no shipment carries the key.
func (r *GormShipmentRepository) FindByRequestID(ctx context.Context, requestID string) (*models.Shipment, error) {
	var s models.Shipment
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("shipment", requestID, err)
	}
	return &s, nil
}

func (r *GormShipmentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var out []models.Shipment
	if err := r.db.WithContext(ctx).
		Preload("Items").Preload("Tracks").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("shipment", orderID, err)
	}
	return out, nil
}

func (r *GormShipmentRepository) AddTrack(ctx context.Context, track *models.ShipmentTrack) error {
	return mapErr("shipment track", track.ID, r.db.WithContext(ctx).Create(track).Error)
}

// GormCreditmemoRepository implements CreditmemoRepository using GORM.
type GormCreditmemoRepository struct {
	db *gorm.DB
}

func (r *GormCreditmemoRepository) Create(ctx context.Context, cm *models.Creditmemo) error {
	return mapErr("creditmemo", cm.ID, r.db.WithContext(ctx).Create(cm).Error)
}

func (r *GormCreditmemoRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Creditmemo, error) {
	var cm models.Creditmemo
	if err := r.db.WithContext(ctx).Preload("Items").Preload("Comments").First(&cm, "id = ?", id).Error; err != nil {
		return nil, mapErr("creditmemo", id, err)
	}
	return &cm, nil
}

// FindByRequestID returns nil when no creditmemo carries the key.
func (r *GormCreditmemoRepository) FindByRequestID(ctx context.Context, requestID string) (*models.Creditmemo, error) {
	var cm models.Creditmemo
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&cm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("creditmemo", requestID, err)
	}
	return &cm, nil
}

func (r *GormCreditmemoRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Creditmemo, error) {
	var out []models.Creditmemo
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("creditmemo", orderID, err)
	}
	return out, nil
}

// GormPaymentRepository implements PaymentRepository using GORM.
type GormPaymentRepository struct {
	db *gorm.DB
}

// FindTransaction returns nil when the transaction is unknown.
func (r *GormPaymentRepository) FindTransaction(ctx context.Context, orderID, paymentID uuid.UUID, txnID string) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND payment_id = ? AND txn_id = ?", orderID, paymentID, txnID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("transaction", txnID, err)
	}
	return &t, nil
}

func (r *GormPaymentRepository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return mapErr("transaction", t.TxnID, r.db.WithContext(ctx).Create(t).Error)
}

func (r *GormPaymentRepository) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	return mapErr("transaction", t.TxnID, r.db.WithContext(ctx).Save(t).Error)
}

func (r *GormPaymentRepository) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("transaction", orderID, err)
	}
	return out, nil
}

// GormSequenceRepository implements SequenceRepository with an atomic upsert.
type GormSequenceRepository struct {
	db *gorm.DB
}

func (r *GormSequenceRepository) Next(ctx context.Context, storeID, entityType string) (int64, error) {
	seq := models.Sequence{StoreID: storeID, EntityType: entityType, LastValue: 1}
	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "store_id"}, {Name: "entity_type"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_value": gorm.Expr("sequences.last_value + 1")}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "last_value"}}},
		).
		Create(&seq).Error
	if err != nil {
		return 0, mapErr("sequence", entityType, err)
	}
	return seq.LastValue, nil
}

// GormGridRepository implements GridRepository with upserts.
type GormGridRepository struct {
	db *gorm.DB
}

func (r *GormGridRepository) upsert(ctx context.Context, entity string, row interface{}) error {
	return mapErr(entity, "", r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error)
}

func (r *GormGridRepository) UpsertOrder(ctx context.Context, row models.OrderGrid) error {
	return r.upsert(ctx, "order grid", &row)
}

func (r *GormGridRepository) UpsertInvoice(ctx context.Context, row models.InvoiceGrid) error {
	return r.upsert(ctx, "invoice grid", &row)
}

func (r *GormGridRepository) UpsertShipment(ctx context.Context, row models.ShipmentGrid) error {
	return r.upsert(ctx, "shipment grid", &row)
}

func (r *GormGridRepository) UpsertCreditmemo(ctx context.Context, row models.CreditmemoGrid) error {
	return r.upsert(ctx, "creditmemo grid", &row)
}

// GormReportRepository aggregates grid rows and order items.
type GormReportRepository struct {
	db *gorm.DB
}

type countSum struct {
	Count int64
	Total decimal.NullDecimal
}

func (r *GormReportRepository) scope(ctx context.Context, model interface{}, storeID string, from, to time.Time) *gorm.DB {
	q := r.db.WithContext(ctx).Model(model).Where("created_at >= ? AND created_at < ?", from, to)
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	}
	return q
}

func (r *GormReportRepository) SalesSummary(ctx context.Context, storeID string, from, to time.Time) (*models.SalesSummary, error) {
	out := &models.SalesSummary{StoreID: storeID, From: from, To: to}

	var orders, invoices, creditmemos countSum
	sel := "COUNT(*) AS count, SUM(base_grand_total) AS total"
	if err := r.scope(ctx, &models.OrderGrid{}, storeID, from, to).
		Where("state <> ?", models.StateCanceled).
		Select(sel).Scan(&orders).Error; err != nil {
		return nil, mapErr("report", "", err)
	}
	if err := r.scope(ctx, &models.OrderGrid{}, storeID, from, to).
		Where("state = ?", models.StateCanceled).
		Count(&out.CanceledOrderCount).Error; err != nil {
		return nil, mapErr("report", "", err)
	}
	if err := r.scope(ctx, &models.InvoiceGrid{}, storeID, from, to).Select(sel).Scan(&invoices).Error; err != nil {
		return nil, mapErr("report", "", err)
	}
	if err := r.scope(ctx, &models.CreditmemoGrid{}, storeID, from, to).Select(sel).Scan(&creditmemos).Error; err != nil {
		return nil, mapErr("report", "", err)
	}

	out.OrdersCount, out.BaseGrandTotal = orders.Count, orders.Total.Decimal
	out.InvoicesCount, out.BaseInvoiced = invoices.Count, invoices.Total.Decimal
	out.CreditmemosCount, out.BaseRefunded = creditmemos.Count, creditmemos.Total.Decimal
	return out, nil
}

func (r *GormReportRepository) Bestsellers(ctx context.Context, storeID string, limit int) ([]models.Bestseller, error) {
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	q := r.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.sku AS sku, MAX(order_items.name) AS name, SUM(order_items.qty_ordered - order_items.qty_canceled) AS qty_ordered").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.state <> ? AND order_items.parent_item_id IS NULL", models.StateCanceled)
	if storeID != "" {
		q = q.Where("orders.store_id = ?", storeID)
	}

	var out []models.Bestseller
	if err := q.Group("order_items.sku").
		Order("qty_ordered DESC").
		Limit(limit).
		Scan(&out).Error; err != nil {
		return nil, mapErr("report", "", err)
	}
	return out, nil
}
