package features

import (
	"context"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type lifecycleContext struct {
	quotes      services.QuoteService
	orders      services.OrderService
	invoices    services.InvoiceService
	shipments   services.ShipmentService
	creditmemos services.CreditmemoService

	order         *models.Order
	historyBefore int
	err           error
}

func (c *lifecycleContext) reset() {
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	locks := repository.NewMemorySessionLock()
	cache := repository.NewMemoryIdempotencyCache()
	machine := state.NewMachine(state.DefaultRegistry())
	events := services.NewEventPublisher(logger, nil, nil)

	c.quotes = services.NewQuoteService(store, locks, false, logger)
	c.orders = services.NewOrderService(store, machine, locks, money.NewStaticRateProvider(map[string]decimal.Decimal{}), nil, events, logger)
	c.invoices = services.NewInvoiceService(store, machine, cache, events, logger)
	c.shipments = services.NewShipmentService(store, machine, cache, events, logger)
	c.creditmemos = services.NewCreditmemoService(store, machine, cache, events, logger)
	c.order = nil
	c.historyBefore = 0
	c.err = nil
}

func parseDec(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func (c *lifecycleContext) placeOrder(ctx context.Context, item models.AddQuoteItemRequest, shipping string) error {
	q, err := c.quotes.CreateQuote(ctx, models.CreateQuoteRequest{
		StoreID:          "default",
		CustomerEmail:    "jane@example.com",
		BaseCurrencyCode: "USD",
	})
	if err != nil {
		return err
	}
	if q, err = c.quotes.AddItem(ctx, q.ID, item); err != nil {
		return err
	}
	addr := models.Address{Firstname: "Jane", Lastname: "Doe", Street: "1 Main St", City: "Springfield", Postcode: "12345", CountryID: "US", Email: "jane@example.com"}
	billing, shippingAddr := addr, addr
	billing.AddressType = models.AddressBilling
	shippingAddr.AddressType = models.AddressShipping
	if q, err = c.quotes.SetAddresses(ctx, q.ID, models.SetAddressesRequest{Addresses: []models.Address{billing, shippingAddr}}); err != nil {
		return err
	}
	if shipping != "" {
		amount, err := parseDec(shipping)
		if err != nil {
			return err
		}
		if q, err = c.quotes.SetShipping(ctx, q.ID, models.SetShippingRequest{Method: "flatrate_flatrate", Amount: amount}); err != nil {
			return err
		}
	}
	if q, err = c.quotes.SetPaymentMethod(ctx, q.ID, models.SetPaymentRequest{Method: "checkmo"}); err != nil {
		return err
	}

	c.order, err = c.orders.PlaceOrder(ctx, q.ID, ledger.ValidationPolicy{})
	if err != nil {
		return err
	}
	c.historyBefore = len(c.order.StatusHistory)
	return nil
}

func quoteItem(qty, sku, price string) (models.AddQuoteItemRequest, error) {
	q, err := parseDec(qty)
	if err != nil {
		return models.AddQuoteItemRequest{}, err
	}
	p, err := parseDec(price)
	if err != nil {
		return models.AddQuoteItemRequest{}, err
	}
	return models.AddQuoteItemRequest{SKU: sku, Name: sku, Qty: q, Price: p, Weight: decimal.NewFromInt(1)}, nil
}

func (c *lifecycleContext) aVirtualOrder(ctx context.Context, qty, sku, price string) error {
	item, err := quoteItem(qty, sku, price)
	if err != nil {
		return err
	}
	item.ProductType = "virtual"
	return c.placeOrder(ctx, item, "")
}

func (c *lifecycleContext) aPhysicalOrder(ctx context.Context, qty, sku, price, shipping string) error {
	item, err := quoteItem(qty, sku, price)
	if err != nil {
		return err
	}
	return c.placeOrder(ctx, item, shipping)
}

func (c *lifecycleContext) itemBySKU(o *models.Order, sku string) (*models.OrderItem, error) {
	for i := range o.Items {
		if o.Items[i].SKU == sku {
			return &o.Items[i], nil
		}
	}
	return nil, fmt.Errorf("order has no item %q", sku)
}

func (c *lifecycleContext) current(ctx context.Context) (*models.Order, error) {
	return c.orders.GetOrder(ctx, c.order.ID)
}

func (c *lifecycleContext) iInvoiceQty(ctx context.Context, qty, sku string) error {
	item, err := c.itemBySKU(c.order, sku)
	if err != nil {
		return err
	}
	n, err := parseDec(qty)
	if err != nil {
		return err
	}
	// keep the first failure of a multi-step When
	if _, err := c.invoices.CreateInvoice(ctx, c.order.ID, models.CreateInvoiceRequest{Items: models.ItemQtys{item.ID: n}}); err != nil && c.err == nil {
		c.err = err
	}
	return nil
}

func (c *lifecycleContext) iInvoiceEverything(ctx context.Context) error {
	_, c.err = c.invoices.CreateInvoice(ctx, c.order.ID, models.CreateInvoiceRequest{})
	return c.err
}

func (c *lifecycleContext) iShipEverything(ctx context.Context) error {
	_, c.err = c.shipments.CreateShipment(ctx, c.order.ID, models.CreateShipmentRequest{})
	return c.err
}

func (c *lifecycleContext) iRefundEverything(ctx context.Context) error {
	_, c.err = c.creditmemos.CreateCreditmemo(ctx, c.order.ID, models.CreateCreditmemoRequest{})
	return nil
}

func (c *lifecycleContext) iCancelTheOrder(ctx context.Context) error {
	_, c.err = c.orders.Cancel(ctx, c.order.ID, "")
	return nil
}

func (c *lifecycleContext) theOperationSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success, got %v", c.err)
	}
	return nil
}

func (c *lifecycleContext) theOperationFailsWith(kind string) error {
	if c.err == nil {
		return fmt.Errorf("expected %s error, got success", kind)
	}
	if got := apperrors.As(c.err).Kind; got != kind {
		return fmt.Errorf("expected %s error, got %s: %v", kind, got, c.err)
	}
	return nil
}

func (c *lifecycleContext) itemHasInvoiced(ctx context.Context, sku, qty string) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	item, err := c.itemBySKU(o, sku)
	if err != nil {
		return err
	}
	want, err := parseDec(qty)
	if err != nil {
		return err
	}
	if !item.QtyInvoiced.Equal(want) {
		return fmt.Errorf("expected qty_invoiced %s, got %s", want, item.QtyInvoiced)
	}
	return nil
}

func (c *lifecycleContext) theOrderTotalInvoicedIs(ctx context.Context, amount string) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	want, err := parseDec(amount)
	if err != nil {
		return err
	}
	if !o.Invoiced.GrandTotal.Equal(want) {
		return fmt.Errorf("expected total invoiced %s, got %s", want, o.Invoiced.GrandTotal)
	}
	return nil
}

func (c *lifecycleContext) theOrderStateIs(ctx context.Context, want string) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	if o.State != want {
		return fmt.Errorf("expected state %s, got %s", want, o.State)
	}
	return nil
}

func (c *lifecycleContext) theOrderStateHistoryIs(ctx context.Context, list string) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	var states []string
	for _, h := range o.StatusHistory {
		if h.EntityName == models.EntityOrder {
			states = append(states, h.State)
		}
	}
	if got := strings.Join(states, ","); got != list {
		return fmt.Errorf("expected state history %s, got %s", list, got)
	}
	return nil
}

func (c *lifecycleContext) theStatusHistoryIsUnchanged(ctx context.Context) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	if len(o.StatusHistory) != c.historyBefore {
		return fmt.Errorf("expected %d status history rows, got %d", c.historyBefore, len(o.StatusHistory))
	}
	return nil
}

func (c *lifecycleContext) theOrderHasNoInvoices(ctx context.Context) error {
	list, err := c.invoices.ListInvoices(ctx, c.order.ID)
	if err != nil {
		return err
	}
	if len(list) != 0 {
		return fmt.Errorf("expected no invoices, got %d", len(list))
	}
	return nil
}

func (c *lifecycleContext) invoiceRowTotalsSumTo(ctx context.Context, sku, amount string) error {
	want, err := parseDec(amount)
	if err != nil {
		return err
	}
	list, err := c.invoices.ListInvoices(ctx, c.order.ID)
	if err != nil {
		return err
	}
	sum := decimal.Zero
	for _, inv := range list {
		for _, it := range inv.Items {
			if it.SKU == sku {
				sum = sum.Add(it.BaseRow.RowTotal)
			}
		}
	}
	if !sum.Equal(want) {
		return fmt.Errorf("expected invoice row totals %s, got %s", want, sum)
	}
	return nil
}

func (c *lifecycleContext) totalRefundedEqualsTotalInvoiced(ctx context.Context) error {
	o, err := c.current(ctx)
	if err != nil {
		return err
	}
	if !o.BaseRefunded.GrandTotal.Equal(o.BaseInvoiced.GrandTotal) {
		return fmt.Errorf("refunded %s, invoiced %s", o.BaseRefunded.GrandTotal, o.BaseInvoiced.GrandTotal)
	}
	return nil
}

func InitializeScenario(sc *godog.ScenarioContext) {
	c := &lifecycleContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^an order for ([0-9.]+) virtual "([^"]*)" at ([0-9.]+)$`, c.aVirtualOrder)
	sc.Step(`^an order for ([0-9.]+) physical "([^"]*)" at ([0-9.]+) with shipping ([0-9.]+)$`, c.aPhysicalOrder)
	sc.Step(`^I invoice ([0-9.]+) of "([^"]*)"$`, c.iInvoiceQty)
	sc.Step(`^I invoice everything$`, c.iInvoiceEverything)
	sc.Step(`^I ship everything$`, c.iShipEverything)
	sc.Step(`^I refund everything$`, c.iRefundEverything)
	sc.Step(`^I cancel the order$`, c.iCancelTheOrder)
	sc.Step(`^the operation succeeds$`, c.theOperationSucceeds)
	sc.Step(`^the operation fails with "([^"]*)"$`, c.theOperationFailsWith)
	sc.Step(`^"([^"]*)" has ([0-9.]+) invoiced$`, c.itemHasInvoiced)
	sc.Step(`^the order total invoiced is ([0-9.]+)$`, c.theOrderTotalInvoicedIs)
	sc.Step(`^the order state is "([^"]*)"$`, c.theOrderStateIs)
	sc.Step(`^the order state history is "([^"]*)"$`, c.theOrderStateHistoryIs)
	sc.Step(`^the order status history is unchanged$`, c.theStatusHistoryIsUnchanged)
	sc.Step(`^the order has no invoices$`, c.theOrderHasNoInvoices)
	sc.Step(`^the invoice row totals of "([^"]*)" sum to ([0-9.]+)$`, c.invoiceRowTotalsSumTo)
	sc.Step(`^the total refunded equals the total invoiced$`, c.totalRefundedEqualsTotalInvoiced)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "order-lifecycle",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"order_lifecycle.feature"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
