package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []models.SalesEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, evt models.SalesEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) count(eventType string) int {
	n := 0
	for _, t := range s.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeArchiver) Archive(_ context.Context, key string, _ interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{counts: map[string]int{}} }

func (m *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *fakeMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (m *fakeMetrics) get(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type stubStock struct {
	err error
}

func (s stubStock) CheckStock(context.Context, string, decimal.Decimal) error { return s.err }

type harness struct {
	store       *repository.MemoryStore
	sink        *recordingSink
	archiver    *fakeArchiver
	metrics     *fakeMetrics
	quotes      QuoteService
	orders      OrderService
	invoices    InvoiceService
	shipments   ShipmentService
	creditmemos CreditmemoService
	payments    PaymentService
	reports     ReportService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	rates map[string]decimal.Decimal
	stock ledger.StockChecker
}

func withRates(table map[string]decimal.Decimal) harnessOption {
	return func(c *harnessConfig) { c.rates = table }
}

func rateTable(pair, rate string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{pair: decimal.RequireFromString(rate)}
}

func withStock(stock ledger.StockChecker) harnessOption {
	return func(c *harnessConfig) { c.stock = stock }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{rates: map[string]decimal.Decimal{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	locks := repository.NewMemorySessionLock()
	cache := repository.NewMemoryIdempotencyCache()
	machine := state.NewMachine(state.DefaultRegistry())
	sink := &recordingSink{}
	archiver := &fakeArchiver{}
	metrics := newFakeMetrics()
	events := NewEventPublisher(logger, metrics, archiver, sink)

	return &harness{
		store:       store,
		sink:        sink,
		archiver:    archiver,
		metrics:     metrics,
		quotes:      NewQuoteService(store, locks, false, logger),
		orders:      NewOrderService(store, machine, locks, money.NewStaticRateProvider(cfg.rates), cfg.stock, events, logger),
		invoices:    NewInvoiceService(store, machine, cache, events, logger),
		shipments:   NewShipmentService(store, machine, cache, events, logger),
		creditmemos: NewCreditmemoService(store, machine, cache, events, logger),
		payments:    NewPaymentService(store, machine, events, logger),
		reports:     NewReportService(store, logger),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// assertDec compares decimals by value.
func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

type checkout struct {
	currency      string
	orderCurrency string
	items         []models.AddQuoteItemRequest
	shipping      string
	paymentMethod string
}

func simpleItem(sku, qty, price string) models.AddQuoteItemRequest {
	return models.AddQuoteItemRequest{SKU: sku, Name: sku, Qty: dec(qty), Price: dec(price), Weight: dec("1")}
}

func virtualItem(sku, qty, price string) models.AddQuoteItemRequest {
	it := simpleItem(sku, qty, price)
	it.ProductType = "virtual"
	return it
}

// buildQuote creates a quote with addresses, shipping and payment set.
func (h *harness) buildQuote(t *testing.T, in checkout) *models.Quote {
	t.Helper()
	ctx := context.Background()
	if in.currency == "" {
		in.currency = "USD"
	}
	if in.paymentMethod == "" {
		in.paymentMethod = "checkmo"
	}
	q, err := h.quotes.CreateQuote(ctx, models.CreateQuoteRequest{
		StoreID:           "default",
		CustomerEmail:     "jane@example.com",
		BaseCurrencyCode:  in.currency,
		QuoteCurrencyCode: in.orderCurrency,
	})
	require.NoError(t, err)

	for _, it := range in.items {
		q, err = h.quotes.AddItem(ctx, q.ID, it)
		require.NoError(t, err)
	}
	q, err = h.quotes.SetAddresses(ctx, q.ID, models.SetAddressesRequest{Addresses: []models.Address{
		{AddressType: models.AddressBilling, Firstname: "Jane", Lastname: "Doe", Street: "1 Main St", City: "Springfield", Postcode: "12345", CountryID: "US", Email: "jane@example.com"},
		{AddressType: models.AddressShipping, Firstname: "Jane", Lastname: "Doe", Street: "1 Main St", City: "Springfield", Postcode: "12345", CountryID: "US"},
	}})
	require.NoError(t, err)
	if in.shipping != "" {
		q, err = h.quotes.SetShipping(ctx, q.ID, models.SetShippingRequest{Method: "flatrate_flatrate", Amount: dec(in.shipping)})
		require.NoError(t, err)
	}
	q, err = h.quotes.SetPaymentMethod(ctx, q.ID, models.SetPaymentRequest{Method: in.paymentMethod})
	require.NoError(t, err)
	return q
}

func (h *harness) placeOrder(t *testing.T, in checkout) *models.Order {
	t.Helper()
	q := h.buildQuote(t, in)
	o, err := h.orders.PlaceOrder(context.Background(), q.ID, ledger.ValidationPolicy{})
	require.NoError(t, err)
	return o
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	o, err := h.orders.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func qtys(o *models.Order, qty string) models.ItemQtys {
	return models.ItemQtys{o.Items[0].ID: dec(qty)}
}

var errSinkDown = errors.New("sink down")
