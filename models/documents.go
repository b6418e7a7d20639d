package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentHeader is shared by invoices, shipments and creditmemos.
type DocumentHeader struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	StoreID     string    `gorm:"size:32;not null" json:"store_id"`
	IncrementID string    `gorm:"size:32;not null" json:"increment_id"`
	// RequestID is the client idempotency key.
	RequestID *string         `gorm:"size:128;uniqueIndex" json:"request_id,omitempty"`
	TotalQty  decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_qty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Invoice records billed quantities and amounts.
type Invoice struct {
	DocumentHeader       `gorm:"embedded"`
	State                string            `gorm:"size:16;not null" json:"state"`
	RequestedCaptureCase string            `gorm:"size:16" json:"requested_capture_case"`
	TransactionID        string            `gorm:"size:128" json:"transaction_id,omitempty"`
	IsUsedForRefund      bool              `gorm:"not null;default:false" json:"is_used_for_refund"`
	OrderCurrencyCode    string            `gorm:"size:3" json:"order_currency_code"`
	BaseCurrencyCode     string            `gorm:"size:3" json:"base_currency_code"`
	Totals               Amounts           `gorm:"embedded" json:"totals"`
	BaseTotals           Amounts           `gorm:"embedded;embeddedPrefix:base_" json:"base_totals"`
	Items                []InvoiceItem     `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
	Comments             []DocumentComment `gorm:"polymorphic:Parent;polymorphicValue:invoice" json:"comments,omitempty"`
}

// InvoiceItem is an invoiced slice of one order item.
type InvoiceItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	OrderItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_item_id"`
	SKU         string          `gorm:"size:64" json:"sku"`
	Name        string          `gorm:"size:255" json:"name"`
	Qty         decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"qty"`
	Price       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"price"`
	BasePrice   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_price"`
	Row         ItemAmounts     `gorm:"embedded" json:"row"`
	BaseRow     ItemAmounts     `gorm:"embedded;embeddedPrefix:base_" json:"base_row"`
}

// Shipment records shipped quantities.
type Shipment struct {
	DocumentHeader `gorm:"embedded"`
	TotalWeight    decimal.Decimal   `gorm:"type:decimal(12,4);not null;default:0" json:"total_weight"`
	Items          []ShipmentItem    `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE" json:"items"`
	Tracks         []ShipmentTrack   `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE" json:"tracks"`
	Comments       []DocumentComment `gorm:"polymorphic:Parent;polymorphicValue:shipment" json:"comments,omitempty"`
}

type ShipmentItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ShipmentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"shipment_id"`
	OrderItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_item_id"`
	SKU         string          `gorm:"size:64" json:"sku"`
	Name        string          `gorm:"size:255" json:"name"`
	Qty         decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"qty"`
	Weight      decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"weight"`
}

type ShipmentTrack struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ShipmentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"shipment_id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	CarrierCode string    `gorm:"size:32;not null" json:"carrier_code" validate:"required"`
	Title       string    `gorm:"size:255" json:"title"`
	TrackNumber string    `gorm:"size:128;not null" json:"track_number" validate:"required"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Creditmemo records refunded quantities and amounts, optionally tied to an invoice.
type Creditmemo struct {
	DocumentHeader    `gorm:"embedded"`
	InvoiceID         *uuid.UUID        `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	State             string            `gorm:"size:16;not null" json:"state"`
	RefundMode        string            `gorm:"size:16;not null" json:"refund_mode"`
	TransactionID     string            `gorm:"size:128" json:"transaction_id,omitempty"`
	OrderCurrencyCode string            `gorm:"size:3" json:"order_currency_code"`
	BaseCurrencyCode  string            `gorm:"size:3" json:"base_currency_code"`
	Totals            Amounts           `gorm:"embedded" json:"totals"`
	BaseTotals        Amounts           `gorm:"embedded;embeddedPrefix:base_" json:"base_totals"`
	Items             []CreditmemoItem  `gorm:"foreignKey:CreditmemoID;constraint:OnDelete:CASCADE" json:"items"`
	Comments          []DocumentComment `gorm:"polymorphic:Parent;polymorphicValue:creditmemo" json:"comments,omitempty"`
}

// IsOnline reports whether the refund went through the gateway.
func (c *Creditmemo) IsOnline() bool { return c.RefundMode == RefundOnline }

type CreditmemoItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreditmemoID uuid.UUID       `gorm:"type:uuid;not null;index" json:"creditmemo_id"`
	OrderItemID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_item_id"`
	SKU          string          `gorm:"size:64" json:"sku"`
	Name         string          `gorm:"size:255" json:"name"`
	Qty          decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"qty"`
	Price        decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"price"`
	BasePrice    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_price"`
	Row          ItemAmounts     `gorm:"embedded" json:"row"`
	BaseRow      ItemAmounts     `gorm:"embedded;embeddedPrefix:base_" json:"base_row"`
}

// DocumentComment is a comment attached to an invoice, shipment or creditmemo.
type DocumentComment struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID           uuid.UUID `gorm:"type:uuid;not null;index" json:"parent_id"`
	ParentType         string    `gorm:"size:32;not null" json:"parent_type"`
	Comment            string    `gorm:"type:text;not null" json:"comment"`
	IsCustomerNotified bool      `gorm:"not null;default:false" json:"is_customer_notified"`
	IsVisibleOnFront   bool      `gorm:"not null;default:false" json:"is_visible_on_front"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Sequence is the last increment id issued per store and entity type.
type Sequence struct {
	StoreID    string `gorm:"size:32;primaryKey" json:"store_id"`
	EntityType string `gorm:"size:32;primaryKey" json:"entity_type"`
	LastValue  int64  `gorm:"not null;default:0" json:"last_value"`
}
