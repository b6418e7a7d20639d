package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JSONMap holds store-specific custom attributes. Ledger and totals code never reads it.
type JSONMap map[string]interface{}

// Address is the snapshot of a billing or shipping address.
type Address struct {
	AddressType string `gorm:"size:16;not null" json:"address_type" validate:"required,oneof=billing shipping"`
	Firstname   string `gorm:"size:255" json:"firstname"`
	Lastname    string `gorm:"size:255" json:"lastname"`
	Company     string `gorm:"size:255" json:"company,omitempty"`
	Street      string `gorm:"size:255" json:"street"`
	City        string `gorm:"size:255" json:"city"`
	Region      string `gorm:"size:255" json:"region,omitempty"`
	Postcode    string `gorm:"size:32" json:"postcode"`
	CountryID   string `gorm:"size:2" json:"country_id"`
	Telephone   string `gorm:"size:64" json:"telephone,omitempty"`
	Email       string `gorm:"size:255" json:"email,omitempty"`
}

// FullName joins first and last name.
func (a Address) FullName() string {
	if a.Lastname == "" {
		return a.Firstname
	}
	if a.Firstname == "" {
		return a.Lastname
	}
	return a.Firstname + " " + a.Lastname
}

// Quote is the mutable cart aggregate converted into an Order exactly once.
type Quote struct {
	ID                     uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID                string          `gorm:"size:32;not null;index" json:"store_id"`
	CustomerID             string          `gorm:"size:64;index" json:"customer_id,omitempty"`
	CustomerEmail          string          `gorm:"size:255" json:"customer_email,omitempty"`
	IsActive               bool            `gorm:"not null;default:true" json:"is_active"`
	ConvertedAt            *time.Time      `json:"converted_at,omitempty"`
	ReservedOrderID        string          `gorm:"size:32" json:"reserved_order_id,omitempty"`
	BaseCurrencyCode       string          `gorm:"size:3;not null" json:"base_currency_code"`
	QuoteCurrencyCode      string          `gorm:"size:3;not null" json:"quote_currency_code"`
	StoreCurrencyCode      string          `gorm:"size:3;not null" json:"store_currency_code"`
	PriceIncludesTax       bool            `gorm:"not null;default:false" json:"price_includes_tax"`
	ShippingMethod         string          `gorm:"size:64" json:"shipping_method,omitempty"`
	ShippingAmount         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_amount"`
	ShippingTaxPercent     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_tax_percent"`
	ShippingDiscountAmount decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"shipping_discount_amount"`
	PaymentMethod          string          `gorm:"size:64" json:"payment_method,omitempty"`
	ItemsQty               decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"items_qty"`
	Totals                 Amounts         `gorm:"embedded;embeddedPrefix:base_" json:"base_totals"`
	Items                  []QuoteItem     `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"items"`
	Addresses              []QuoteAddress  `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"addresses"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsVirtual reports whether no quote item needs shipping.
func (q *Quote) IsVirtual() bool {
	for _, it := range q.Items {
		if !it.IsVirtual {
			return false
		}
	}
	return len(q.Items) > 0
}

// Address returns the address of the given type, or nil.
func (q *Quote) Address(addressType string) *QuoteAddress {
	for i := range q.Addresses {
		if q.Addresses[i].AddressType == addressType {
			return &q.Addresses[i]
		}
	}
	return nil
}

// QuoteItem is a cart line. Price is in base currency, tax-inclusive when the quote says so.
// DiscountAmount is the output of the promotion engine for the whole row.
type QuoteItem struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	QuoteID             uuid.UUID       `gorm:"type:uuid;not null;index" json:"quote_id"`
	ParentItemID        *uuid.UUID      `gorm:"type:uuid;index" json:"parent_item_id,omitempty"`
	Position            int             `gorm:"not null;default:0" json:"position"`
	SKU                 string          `gorm:"size:64;not null" json:"sku"`
	Name                string          `gorm:"size:255" json:"name"`
	ProductType         string          `gorm:"size:32;not null;default:simple" json:"product_type"`
	IsVirtual           bool            `gorm:"not null;default:false" json:"is_virtual"`
	IsQtyDecimal        bool            `gorm:"not null;default:false" json:"is_qty_decimal"`
	Qty                 decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"qty"`
	Price               decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"price"`
	TaxPercent          decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"tax_percent"`
	DiscountAmount      decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"discount_amount"`
	Weight              decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"weight"`
	Row                 ItemAmounts     `gorm:"embedded;embeddedPrefix:base_" json:"base_row"`
	ExtensionAttributes JSONMap         `gorm:"type:jsonb;serializer:json" json:"extension_attributes,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuoteAddress is an address owned by a quote, mutable until conversion.
type QuoteAddress struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuoteID uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	Address `gorm:"embedded"`
}
