package models

import (
	"time"

	"github.com/MahoCommerce/maho-sub002/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the root of the fulfillment chain. Amount families are kept in order
// currency with a base currency twin; store currency is derived from the rates.
type Order struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IncrementID       string          `gorm:"size:32;not null;uniqueIndex:idx_orders_store_increment" json:"increment_id"`
	StoreID           string          `gorm:"size:32;not null;uniqueIndex:idx_orders_store_increment" json:"store_id"`
	QuoteID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"quote_id"`
	CustomerID        string          `gorm:"size:64;index" json:"customer_id,omitempty"`
	CustomerEmail     string          `gorm:"size:255" json:"customer_email,omitempty"`
	State             string          `gorm:"size:32;not null;index" json:"state"`
	Status            string          `gorm:"size:32;not null" json:"status"`
	HoldBeforeState   string          `gorm:"size:32" json:"hold_before_state,omitempty"`
	HoldBeforeStatus  string          `gorm:"size:32" json:"hold_before_status,omitempty"`
	Version           int64           `gorm:"not null;default:1" json:"version"`
	IsVirtual         bool            `gorm:"not null;default:false" json:"is_virtual"`
	PriceIncludesTax  bool            `gorm:"not null;default:false" json:"price_includes_tax"`
	BaseCurrencyCode  string          `gorm:"size:3;not null" json:"base_currency_code"`
	OrderCurrencyCode string          `gorm:"size:3;not null" json:"order_currency_code"`
	StoreCurrencyCode string          `gorm:"size:3;not null" json:"store_currency_code"`
	StoreToBaseRate   decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"store_to_base_rate"`
	BaseToOrderRate   decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"base_to_order_rate"`
	ShippingMethod    string          `gorm:"size:64" json:"shipping_method,omitempty"`
	TotalQtyOrdered   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_qty_ordered"`
	Weight            decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"weight"`

	Ordered      Amounts `gorm:"embedded" json:"ordered"`
	BaseOrdered  Amounts `gorm:"embedded;embeddedPrefix:base_" json:"base_ordered"`
	Invoiced     Amounts `gorm:"embedded;embeddedPrefix:invoiced_" json:"invoiced"`
	BaseInvoiced Amounts `gorm:"embedded;embeddedPrefix:base_invoiced_" json:"base_invoiced"`
	Refunded     Amounts `gorm:"embedded;embeddedPrefix:refunded_" json:"refunded"`
	BaseRefunded Amounts `gorm:"embedded;embeddedPrefix:base_refunded_" json:"base_refunded"`
	Canceled     Amounts `gorm:"embedded;embeddedPrefix:canceled_" json:"canceled"`
	BaseCanceled Amounts `gorm:"embedded;embeddedPrefix:base_canceled_" json:"base_canceled"`

	TotalPaid                decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_paid"`
	BaseTotalPaid            decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_paid"`
	TotalDue                 decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_due"`
	BaseTotalDue             decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_due"`
	TotalOnlineRefunded      decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_online_refunded"`
	BaseTotalOnlineRefunded  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_online_refunded"`
	TotalOfflineRefunded     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_offline_refunded"`
	BaseTotalOfflineRefunded decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_offline_refunded"`

	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Addresses     []OrderAddress  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"addresses"`
	Payment       *Payment        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payment,omitempty"`
	StatusHistory []StatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"status_history"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Rates returns the exchange rates fixed on the order.
func (o *Order) Rates() money.Rates {
	return money.Rates{
		BaseCurrency:  o.BaseCurrencyCode,
		OrderCurrency: o.OrderCurrencyCode,
		StoreCurrency: o.StoreCurrencyCode,
		StoreToBase:   o.StoreToBaseRate,
		BaseToOrder:   o.BaseToOrderRate,
	}
}

// Converter returns a converter bound to the order's rates.
func (o *Order) Converter() (*money.Converter, error) {
	return money.NewConverter(o.Rates())
}

// Item returns the item with the given id, or nil.
func (o *Order) Item(id uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// ItemIndex maps item ids to the items of the order.
func (o *Order) ItemIndex() map[uuid.UUID]*OrderItem {
	idx := make(map[uuid.UUID]*OrderItem, len(o.Items))
	for i := range o.Items {
		idx[o.Items[i].ID] = &o.Items[i]
	}
	return idx
}

// Children returns the child items of a composite line.
func (o *Order) Children(parentID uuid.UUID) []*OrderItem {
	var out []*OrderItem
	for i := range o.Items {
		if p := o.Items[i].ParentItemID; p != nil && *p == parentID {
			out = append(out, &o.Items[i])
		}
	}
	return out
}

// Address returns the address of the given type, or nil.
func (o *Order) Address(addressType string) *OrderAddress {
	for i := range o.Addresses {
		if o.Addresses[i].AddressType == addressType {
			return &o.Addresses[i]
		}
	}
	return nil
}

// RefreshTotalDue recomputes the amount still to be paid.
func (o *Order) RefreshTotalDue() {
	o.TotalDue = o.Ordered.GrandTotal.Sub(o.Canceled.GrandTotal).Sub(o.TotalPaid)
	o.BaseTotalDue = o.BaseOrdered.GrandTotal.Sub(o.BaseCanceled.GrandTotal).Sub(o.BaseTotalPaid)
}

// OrderItem carries the per-line ledger: quantities plus ordered, invoiced,
// refunded and canceled amounts in order currency with base twins.
type OrderItem struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	ParentItemID *uuid.UUID `gorm:"type:uuid;index" json:"parent_item_id,omitempty"`
	QuoteItemID  *uuid.UUID `gorm:"type:uuid" json:"quote_item_id,omitempty"`
	Position     int        `gorm:"not null;default:0" json:"position"`
	SKU          string     `gorm:"size:64;not null;index" json:"sku"`
	Name         string     `gorm:"size:255" json:"name"`
	ProductType  string     `gorm:"size:32;not null;default:simple" json:"product_type"`
	IsVirtual    bool       `gorm:"not null;default:false" json:"is_virtual"`
	IsQtyDecimal bool       `gorm:"not null;default:false" json:"is_qty_decimal"`

	QtyOrdered  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"qty_ordered"`
	QtyInvoiced decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"qty_invoiced"`
	QtyShipped  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"qty_shipped"`
	QtyRefunded decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"qty_refunded"`
	QtyCanceled decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"qty_canceled"`

	Price            decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"price"`
	BasePrice        decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_price"`
	PriceInclTax     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"price_incl_tax"`
	BasePriceInclTax decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_price_incl_tax"`
	TaxPercent       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"tax_percent"`
	Weight           decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"weight"`
	RowWeight        decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"row_weight"`

	Row          ItemAmounts `gorm:"embedded" json:"row"`
	BaseRow      ItemAmounts `gorm:"embedded;embeddedPrefix:base_" json:"base_row"`
	Invoiced     ItemAmounts `gorm:"embedded;embeddedPrefix:invoiced_" json:"invoiced"`
	BaseInvoiced ItemAmounts `gorm:"embedded;embeddedPrefix:base_invoiced_" json:"base_invoiced"`
	Refunded     ItemAmounts `gorm:"embedded;embeddedPrefix:refunded_" json:"refunded"`
	BaseRefunded ItemAmounts `gorm:"embedded;embeddedPrefix:base_refunded_" json:"base_refunded"`
	Canceled     ItemAmounts `gorm:"embedded;embeddedPrefix:canceled_" json:"canceled"`
	BaseCanceled ItemAmounts `gorm:"embedded;embeddedPrefix:base_canceled_" json:"base_canceled"`

	ExtensionAttributes JSONMap   `gorm:"type:jsonb;serializer:json" json:"extension_attributes,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderAddress is the immutable address snapshot taken at placement.
type OrderAddress struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Address `gorm:"embedded"`
}

// StatusHistory is an append-only comment/status entry of an order or document.
type StatusHistory struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID            uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Position           int       `gorm:"not null;default:0" json:"-"`
	EntityName         string    `gorm:"size:32;not null;default:order" json:"entity_name"`
	State              string    `gorm:"size:32" json:"state,omitempty"`
	Status             string    `gorm:"size:32" json:"status,omitempty"`
	Comment            string    `gorm:"type:text" json:"comment,omitempty"`
	IsCustomerNotified bool      `gorm:"not null;default:false" json:"is_customer_notified"`
	IsVisibleOnFront   bool      `gorm:"not null;default:false" json:"is_visible_on_front"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}
