package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Transactor. Transactions are serialized by one
// mutex and work on a forked copy of the tables that replaces the committed
// tables only when fn succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.fork()
	if err := fn(work.repos()); err != nil {
		return err
	}
	s.data = work
	return nil
}

type memData struct {
	quotes       map[uuid.UUID]*models.Quote
	orders       map[uuid.UUID]*models.Order
	invoices     map[uuid.UUID]*models.Invoice
	shipments    map[uuid.UUID]*models.Shipment
	creditmemos  map[uuid.UUID]*models.Creditmemo
	transactions map[uuid.UUID]*models.Transaction
	sequences    map[string]int64
	orderGrid    map[uuid.UUID]models.OrderGrid
	invoiceGrid  map[uuid.UUID]models.InvoiceGrid
	shipGrid     map[uuid.UUID]models.ShipmentGrid
	memoGrid     map[uuid.UUID]models.CreditmemoGrid
}

func newMemData() *memData {
	return &memData{
		quotes:       map[uuid.UUID]*models.Quote{},
		orders:       map[uuid.UUID]*models.Order{},
		invoices:     map[uuid.UUID]*models.Invoice{},
		shipments:    map[uuid.UUID]*models.Shipment{},
		creditmemos:  map[uuid.UUID]*models.Creditmemo{},
		transactions: map[uuid.UUID]*models.Transaction{},
		sequences:    map[string]int64{},
		orderGrid:    map[uuid.UUID]models.OrderGrid{},
		invoiceGrid:  map[uuid.UUID]models.InvoiceGrid{},
		shipGrid:     map[uuid.UUID]models.ShipmentGrid{},
		memoGrid:     map[uuid.UUID]models.CreditmemoGrid{},
	}
}

// fork copies the tables. Stored values are never mutated in place: writers
// replace them with fresh clones, so sharing pointers between forks is safe.
func (d *memData) fork() *memData {
	return &memData{
		quotes:       copyMap(d.quotes),
		orders:       copyMap(d.orders),
		invoices:     copyMap(d.invoices),
		shipments:    copyMap(d.shipments),
		creditmemos:  copyMap(d.creditmemos),
		transactions: copyMap(d.transactions),
		sequences:    copyMap(d.sequences),
		orderGrid:    copyMap(d.orderGrid),
		invoiceGrid:  copyMap(d.invoiceGrid),
		shipGrid:     copyMap(d.shipGrid),
		memoGrid:     copyMap(d.memoGrid),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) repos() Repos {
	return Repos{
		Quotes:      memQuotes{d},
		Orders:      memOrders{d},
		Invoices:    memInvoices{d},
		Shipments:   memShipments{d},
		Creditmemos: memCreditmemos{d},
		Payments:    memPayments{d},
		Sequences:   memSequences{d},
		Grids:       memGrids{d},
		Reports:     memReports{d},
	}
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

type memQuotes struct{ d *memData }

func (r memQuotes) Create(_ context.Context, q *models.Quote) error {
	if _, ok := r.d.quotes[q.ID]; ok {
		return apperrors.Storage(errDuplicateKey("quote", q.ID))
	}
	stamp(&q.CreatedAt, &q.UpdatedAt)
	r.d.quotes[q.ID] = cloneQuote(q)
	return nil
}

func (r memQuotes) FindByID(_ context.Context, id uuid.UUID) (*models.Quote, error) {
	q, ok := r.d.quotes[id]
	if !ok {
		return nil, apperrors.NotFound("quote", id.String())
	}
	return cloneQuote(q), nil
}

func (r memQuotes) Save(_ context.Context, q *models.Quote) error {
	if _, ok := r.d.quotes[q.ID]; !ok {
		return apperrors.NotFound("quote", q.ID.String())
	}
	stamp(&q.CreatedAt, &q.UpdatedAt)
	r.d.quotes[q.ID] = cloneQuote(q)
	return nil
}

func (r memQuotes) DeleteItem(_ context.Context, quoteID, itemID uuid.UUID) error {
	q, ok := r.d.quotes[quoteID]
	if !ok {
		return apperrors.NotFound("quote", quoteID.String())
	}
	c := cloneQuote(q)
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID == itemID || (it.ParentItemID != nil && *it.ParentItemID == itemID) {
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) == len(c.Items) {
		return apperrors.NotFound("quote item", itemID.String())
	}
	c.Items = kept
	r.d.quotes[quoteID] = c
	return nil
}

type memOrders struct{ d *memData }

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	if _, ok := r.d.orders[o.ID]; ok {
		return apperrors.Storage(errDuplicateKey("order", o.ID))
	}
	for _, other := range r.d.orders {
		if other.QuoteID == o.QuoteID {
			return apperrors.ErrQuoteAlreadyConverted.WithDetail("quote_id", o.QuoteID.String())
		}
		if other.StoreID == o.StoreID && other.IncrementID == o.IncrementID {
			return apperrors.Storage(errDuplicateKey("order increment", o.IncrementID))
		}
	}
	stamp(&o.CreatedAt, &o.UpdatedAt)
	r.d.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := r.d.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id.String())
	}
	return cloneOrder(o), nil
}

// FindForUpdate needs no row lock: the store mutex is held for the whole transaction.
func (r memOrders) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) Update(_ context.Context, o *models.Order) error {
	stored, ok := r.d.orders[o.ID]
	if !ok {
		return apperrors.NotFound("order", o.ID.String())
	}
	if stored.Version != o.Version {
		return apperrors.ErrConcurrentModification.WithDetail("order_id", o.ID.String())
	}
	o.Version++
	o.UpdatedAt = time.Now()
	r.d.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r memOrders) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.d.orders[id]; !ok {
		return apperrors.NotFound("order", id.String())
	}
	delete(r.d.orders, id)
	delete(r.d.orderGrid, id)
	for k, v := range r.d.invoices {
		if v.OrderID == id {
			delete(r.d.invoices, k)
			delete(r.d.invoiceGrid, k)
		}
	}
	for k, v := range r.d.shipments {
		if v.OrderID == id {
			delete(r.d.shipments, k)
			delete(r.d.shipGrid, k)
		}
	}
	for k, v := range r.d.creditmemos {
		if v.OrderID == id {
			delete(r.d.creditmemos, k)
			delete(r.d.memoGrid, k)
		}
	}
	for k, v := range r.d.transactions {
		if v.OrderID == id {
			delete(r.d.transactions, k)
		}
	}
	return nil
}

func (r memOrders) List(_ context.Context, filter models.OrderFilter) ([]models.OrderGrid, int64, error) {
	var rows []models.OrderGrid
	for _, g := range r.d.orderGrid {
		if filter.StoreID != "" && g.StoreID != filter.StoreID {
			continue
		}
		if filter.State != "" && g.State != filter.State {
			continue
		}
		rows = append(rows, g)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	total := int64(len(rows))
	page, limit := normalizePage(filter)
	start := (page - 1) * limit
	if start >= len(rows) {
		return []models.OrderGrid{}, total, nil
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], total, nil
}

func requestTaken(d *memData, requestID *string) bool {
	if requestID == nil {
		return false
	}
	for _, v := range d.invoices {
		if v.RequestID != nil && *v.RequestID == *requestID {
			return true
		}
	}
	for _, v := range d.shipments {
		if v.RequestID != nil && *v.RequestID == *requestID {
			return true
		}
	}
	for _, v := range d.creditmemos {
		if v.RequestID != nil && *v.RequestID == *requestID {
			return true
		}
	}
	return false
}

type memInvoices struct{ d *memData }

func (r memInvoices) Create(_ context.Context, inv *models.Invoice) error {
	if requestTaken(r.d, inv.RequestID) {
		return apperrors.ErrDuplicateRequest.WithDetail("request_id", *inv.RequestID)
	}
	stamp(&inv.CreatedAt, &inv.UpdatedAt)
	r.d.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r memInvoices) Update(_ context.Context, inv *models.Invoice) error {
	if _, ok := r.d.invoices[inv.ID]; !ok {
		return apperrors.NotFound("invoice", inv.ID.String())
	}
	stamp(&inv.CreatedAt, &inv.UpdatedAt)
	r.d.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r memInvoices) FindByID(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	inv, ok := r.d.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id.String())
	}
	return cloneInvoice(inv), nil
}

func (r memInvoices) FindByRequestID(_ context.Context, requestID string) (*models.Invoice, error) {
	for _, inv := range r.d.invoices {
		if inv.RequestID != nil && *inv.RequestID == requestID {
			return cloneInvoice(inv), nil
		}
	}
	return nil, nil
}

func (r memInvoices) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range r.d.invoices {
		if inv.OrderID == orderID {
			out = append(out, *cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].DocumentHeader, out[j].DocumentHeader) })
	return out, nil
}

type memShipments struct{ d *memData }

func (r memShipments) Create(_ context.Context, s *models.Shipment) error {
	if requestTaken(r.d, s.RequestID) {
		return apperrors.ErrDuplicateRequest.WithDetail("request_id", *s.RequestID)
	}
	stamp(&s.CreatedAt, &s.UpdatedAt)
	r.d.shipments[s.ID] = cloneShipment(s)
	return nil
}

func (r memShipments) FindByID(_ context.Context, id uuid.UUID) (*models.Shipment, error) {
	s, ok := r.d.shipments[id]
	if !ok {
		return nil, apperrors.NotFound("shipment", id.String())
	}
	return cloneShipment(s), nil
}

func (r memShipments) FindByRequestID(_ context.Context, requestID string) (*models.Shipment, error) {
	for _, s := range r.d.shipments {
		if s.RequestID != nil && *s.RequestID == requestID {
			return cloneShipment(s), nil
		}
	}
	return nil, nil
}

func (r memShipments) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var out []models.Shipment
	for _, s := range r.d.shipments {
		if s.OrderID == orderID {
			out = append(out, *cloneShipment(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].DocumentHeader, out[j].DocumentHeader) })
	return out, nil
}

func (r memShipments) AddTrack(_ context.Context, track *models.ShipmentTrack) error {
	s, ok := r.d.shipments[track.ShipmentID]
	if !ok {
		return apperrors.NotFound("shipment", track.ShipmentID.String())
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now()
	}
	c := cloneShipment(s)
	c.Tracks = append(c.Tracks, *track)
	r.d.shipments[c.ID] = c
	return nil
}

type memCreditmemos struct{ d *memData }

func (r memCreditmemos) Create(_ context.Context, cm *models.Creditmemo) error {
	if requestTaken(r.d, cm.RequestID) {
		return apperrors.ErrDuplicateRequest.WithDetail("request_id", *cm.RequestID)
	}
	stamp(&cm.CreatedAt, &cm.UpdatedAt)
	r.d.creditmemos[cm.ID] = cloneCreditmemo(cm)
	return nil
}

func (r memCreditmemos) FindByID(_ context.Context, id uuid.UUID) (*models.Creditmemo, error) {
	cm, ok := r.d.creditmemos[id]
	if !ok {
		return nil, apperrors.NotFound("creditmemo", id.String())
	}
	return cloneCreditmemo(cm), nil
}

func (r memCreditmemos) FindByRequestID(_ context.Context, requestID string) (*models.Creditmemo, error) {
	for _, cm := range r.d.creditmemos {
		if cm.RequestID != nil && *cm.RequestID == requestID {
			return cloneCreditmemo(cm), nil
		}
	}
	return nil, nil
}

func (r memCreditmemos) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Creditmemo, error) {
	var out []models.Creditmemo
	for _, cm := range r.d.creditmemos {
		if cm.OrderID == orderID {
			out = append(out, *cloneCreditmemo(cm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].DocumentHeader, out[j].DocumentHeader) })
	return out, nil
}

func byCreation(a, b models.DocumentHeader) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.IncrementID < b.IncrementID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

type memPayments struct{ d *memData }

func (r memPayments) FindTransaction(_ context.Context, orderID, paymentID uuid.UUID, txnID string) (*models.Transaction, error) {
	for _, t := range r.d.transactions {
		if t.OrderID == orderID && t.PaymentID == paymentID && t.TxnID == txnID {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r memPayments) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if existing, _ := r.FindTransaction(ctx, t.OrderID, t.PaymentID, t.TxnID); existing != nil {
		return apperrors.Storage(errDuplicateKey("transaction", t.TxnID))
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	c := *t
	r.d.transactions[t.ID] = &c
	return nil
}

func (r memPayments) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	if _, ok := r.d.transactions[t.ID]; !ok {
		return apperrors.NotFound("transaction", t.TxnID)
	}
	c := *t
	r.d.transactions[t.ID] = &c
	return nil
}

func (r memPayments) ListTransactions(_ context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.d.transactions {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memSequences struct{ d *memData }

func (r memSequences) Next(_ context.Context, storeID, entityType string) (int64, error) {
	key := storeID + "/" + entityType
	r.d.sequences[key]++
	return r.d.sequences[key], nil
}

type memGrids struct{ d *memData }

func (r memGrids) UpsertOrder(_ context.Context, row models.OrderGrid) error {
	r.d.orderGrid[row.ID] = row
	return nil
}

func (r memGrids) UpsertInvoice(_ context.Context, row models.InvoiceGrid) error {
	r.d.invoiceGrid[row.ID] = row
	return nil
}

func (r memGrids) UpsertShipment(_ context.Context, row models.ShipmentGrid) error {
	r.d.shipGrid[row.ID] = row
	return nil
}

func (r memGrids) UpsertCreditmemo(_ context.Context, row models.CreditmemoGrid) error {
	r.d.memoGrid[row.ID] = row
	return nil
}

type memReports struct{ d *memData }

func inWindow(storeID, rowStore string, created, from, to time.Time) bool {
	if storeID != "" && storeID != rowStore {
		return false
	}
	return !created.Before(from) && created.Before(to)
}

func (r memReports) SalesSummary(_ context.Context, storeID string, from, to time.Time) (*models.SalesSummary, error) {
	out := &models.SalesSummary{StoreID: storeID, From: from, To: to}
	for _, g := range r.d.orderGrid {
		if !inWindow(storeID, g.StoreID, g.CreatedAt, from, to) {
			continue
		}
		if g.State == models.StateCanceled {
			out.CanceledOrderCount++
			continue
		}
		out.OrdersCount++
		out.BaseGrandTotal = out.BaseGrandTotal.Add(g.BaseGrandTotal)
	}
	for _, g := range r.d.invoiceGrid {
		if inWindow(storeID, g.StoreID, g.CreatedAt, from, to) {
			out.InvoicesCount++
			out.BaseInvoiced = out.BaseInvoiced.Add(g.BaseGrandTotal)
		}
	}
	for _, g := range r.d.memoGrid {
		if inWindow(storeID, g.StoreID, g.CreatedAt, from, to) {
			out.CreditmemosCount++
			out.BaseRefunded = out.BaseRefunded.Add(g.BaseGrandTotal)
		}
	}
	return out, nil
}

func (r memReports) Bestsellers(_ context.Context, storeID string, limit int) ([]models.Bestseller, error) {
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	bySKU := map[string]*models.Bestseller{}
	for _, o := range r.d.orders {
		if o.State == models.StateCanceled || (storeID != "" && o.StoreID != storeID) {
			continue
		}
		for _, it := range o.Items {
			if it.ParentItemID != nil {
				continue
			}
			b, ok := bySKU[it.SKU]
			if !ok {
				b = &models.Bestseller{SKU: it.SKU, Name: it.Name, QtyOrdered: decimal.Zero}
				bySKU[it.SKU] = b
			}
			b.QtyOrdered = b.QtyOrdered.Add(it.QtyOrdered.Sub(it.QtyCanceled))
		}
	}
	out := make([]models.Bestseller, 0, len(bySKU))
	for _, b := range bySKU {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].QtyOrdered.Cmp(out[j].QtyOrdered); c != 0 {
			return c > 0
		}
		return strings.Compare(out[i].SKU, out[j].SKU) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
