package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Grid rows are denormalized listing projections. They are written in the same
// transaction as the entity they mirror.

type OrderGrid struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IncrementID       string          `gorm:"size:32;not null;index" json:"increment_id"`
	StoreID           string          `gorm:"size:32;not null;index" json:"store_id"`
	State             string          `gorm:"size:32;not null;index" json:"state"`
	Status            string          `gorm:"size:32;not null" json:"status"`
	CustomerID        string          `gorm:"size:64" json:"customer_id,omitempty"`
	CustomerEmail     string          `gorm:"size:255" json:"customer_email,omitempty"`
	BillingName       string          `gorm:"size:255" json:"billing_name,omitempty"`
	ShippingName      string          `gorm:"size:255" json:"shipping_name,omitempty"`
	OrderCurrencyCode string          `gorm:"size:3" json:"order_currency_code"`
	BaseGrandTotal    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_grand_total"`
	GrandTotal        decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"grand_total"`
	BaseTotalPaid     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_paid"`
	TotalPaid         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_paid"`
	BaseTotalRefunded decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_total_refunded"`
	TotalRefunded     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_refunded"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type InvoiceGrid struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IncrementID      string          `gorm:"size:32;not null" json:"increment_id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	OrderIncrementID string          `gorm:"size:32;not null" json:"order_increment_id"`
	StoreID          string          `gorm:"size:32;not null;index" json:"store_id"`
	State            string          `gorm:"size:16;not null" json:"state"`
	BaseGrandTotal   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_grand_total"`
	GrandTotal       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"grand_total"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ShipmentGrid struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IncrementID      string          `gorm:"size:32;not null" json:"increment_id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	OrderIncrementID string          `gorm:"size:32;not null" json:"order_increment_id"`
	StoreID          string          `gorm:"size:32;not null;index" json:"store_id"`
	TotalQty         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_qty"`
	ShippingName     string          `gorm:"size:255" json:"shipping_name,omitempty"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CreditmemoGrid struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IncrementID      string          `gorm:"size:32;not null" json:"increment_id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	OrderIncrementID string          `gorm:"size:32;not null" json:"order_increment_id"`
	StoreID          string          `gorm:"size:32;not null;index" json:"store_id"`
	State            string          `gorm:"size:16;not null" json:"state"`
	RefundMode       string          `gorm:"size:16;not null" json:"refund_mode"`
	BaseGrandTotal   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_grand_total"`
	GrandTotal       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"grand_total"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func nameOf(a *OrderAddress) string {
	if a == nil {
		return ""
	}
	return a.FullName()
}

// NewOrderGrid projects an order into its grid row.
func NewOrderGrid(o *Order) OrderGrid {
	return OrderGrid{
		ID:                o.ID,
		IncrementID:       o.IncrementID,
		StoreID:           o.StoreID,
		State:             o.State,
		Status:            o.Status,
		CustomerID:        o.CustomerID,
		CustomerEmail:     o.CustomerEmail,
		BillingName:       nameOf(o.Address(AddressBilling)),
		ShippingName:      nameOf(o.Address(AddressShipping)),
		OrderCurrencyCode: o.OrderCurrencyCode,
		BaseGrandTotal:    o.BaseOrdered.GrandTotal,
		GrandTotal:        o.Ordered.GrandTotal,
		BaseTotalPaid:     o.BaseTotalPaid,
		TotalPaid:         o.TotalPaid,
		BaseTotalRefunded: o.BaseRefunded.GrandTotal,
		TotalRefunded:     o.Refunded.GrandTotal,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func NewInvoiceGrid(o *Order, inv *Invoice) InvoiceGrid {
	return InvoiceGrid{
		ID:               inv.ID,
		IncrementID:      inv.IncrementID,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          inv.StoreID,
		State:            inv.State,
		BaseGrandTotal:   inv.BaseTotals.GrandTotal,
		GrandTotal:       inv.Totals.GrandTotal,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
	}
}

func NewShipmentGrid(o *Order, s *Shipment) ShipmentGrid {
	return ShipmentGrid{
		ID:               s.ID,
		IncrementID:      s.IncrementID,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          s.StoreID,
		TotalQty:         s.TotalQty,
		ShippingName:     nameOf(o.Address(AddressShipping)),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func NewCreditmemoGrid(o *Order, cm *Creditmemo) CreditmemoGrid {
	return CreditmemoGrid{
		ID:               cm.ID,
		IncrementID:      cm.IncrementID,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          cm.StoreID,
		State:            cm.State,
		RefundMode:       cm.RefundMode,
		BaseGrandTotal:   cm.BaseTotals.GrandTotal,
		GrandTotal:       cm.Totals.GrandTotal,
		CreatedAt:        cm.CreatedAt,
		UpdatedAt:        cm.UpdatedAt,
	}
}

// AllModels lists every persisted model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Quote{}, &QuoteItem{}, &QuoteAddress{},
		&Order{}, &OrderItem{}, &OrderAddress{}, &StatusHistory{},
		&Payment{}, &Transaction{},
		&Invoice{}, &InvoiceItem{},
		&Shipment{}, &ShipmentItem{}, &ShipmentTrack{},
		&Creditmemo{}, &CreditmemoItem{},
		&DocumentComment{}, &Sequence{},
		&OrderGrid{}, &InvoiceGrid{}, &ShipmentGrid{}, &CreditmemoGrid{},
	}
}
