package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemQtys maps order item ids to quantities. Empty means every open quantity.
type ItemQtys map[uuid.UUID]decimal.Decimal

type CreateQuoteRequest struct {
	StoreID           string `json:"store_id" validate:"required,max=32"`
	CustomerID        string `json:"customer_id" validate:"max=64"`
	CustomerEmail     string `json:"customer_email" validate:"omitempty,email"`
	BaseCurrencyCode  string `json:"base_currency_code" validate:"required,len=3"`
	QuoteCurrencyCode string `json:"quote_currency_code" validate:"omitempty,len=3"`
	StoreCurrencyCode string `json:"store_currency_code" validate:"omitempty,len=3"`
	PriceIncludesTax  *bool  `json:"price_includes_tax"`
}

type AddQuoteItemRequest struct {
	ParentItemID        *uuid.UUID      `json:"parent_item_id"`
	SKU                 string          `json:"sku" validate:"required,max=64"`
	Name                string          `json:"name" validate:"max=255"`
	ProductType         string          `json:"product_type" validate:"omitempty,oneof=simple virtual downloadable bundle configurable"`
	IsVirtual           bool            `json:"is_virtual"`
	IsQtyDecimal        bool            `json:"is_qty_decimal"`
	Qty                 decimal.Decimal `json:"qty"`
	Price               decimal.Decimal `json:"price"`
	TaxPercent          decimal.Decimal `json:"tax_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	Weight              decimal.Decimal `json:"weight"`
	ExtensionAttributes JSONMap         `json:"extension_attributes"`
}

type UpdateQuoteItemRequest struct {
	Qty            decimal.Decimal  `json:"qty"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
}

type SetAddressesRequest struct {
	Addresses []Address `json:"addresses" validate:"required,min=1,max=2,dive"`
}

type SetShippingRequest struct {
	Method         string          `json:"method" validate:"required,max=64"`
	Amount         decimal.Decimal `json:"amount"`
	TaxPercent     decimal.Decimal `json:"tax_percent"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type SetPaymentRequest struct {
	Method string `json:"method" validate:"required,max=64"`
}

type CreateInvoiceRequest struct {
	Items          ItemQtys `json:"items"`
	CaptureCase    string   `json:"capture_case" validate:"omitempty,oneof=online offline not_capture"`
	TransactionID  string   `json:"transaction_id" validate:"max=128"`
	RequestID      string   `json:"request_id" validate:"max=128"`
	Comment        string   `json:"comment"`
	NotifyCustomer bool     `json:"notify_customer"`
}

type TrackRequest struct {
	CarrierCode string `json:"carrier_code" validate:"required,max=32"`
	Title       string `json:"title" validate:"max=255"`
	TrackNumber string `json:"track_number" validate:"required,max=128"`
}

type CreateShipmentRequest struct {
	Items          ItemQtys       `json:"items"`
	Tracks         []TrackRequest `json:"tracks" validate:"dive"`
	RequestID      string         `json:"request_id" validate:"max=128"`
	Comment        string         `json:"comment"`
	NotifyCustomer bool           `json:"notify_customer"`
}

type CreateCreditmemoRequest struct {
	Items              ItemQtys         `json:"items"`
	InvoiceID          *uuid.UUID       `json:"invoice_id"`
	RefundMode         string           `json:"refund_mode" validate:"omitempty,oneof=offline online"`
	ShippingAmount     *decimal.Decimal `json:"shipping_amount"`
	AdjustmentPositive decimal.Decimal  `json:"adjustment_positive"`
	AdjustmentNegative decimal.Decimal  `json:"adjustment_negative"`
	RequestID          string           `json:"request_id" validate:"max=128"`
	Comment            string           `json:"comment"`
	NotifyCustomer     bool             `json:"notify_customer"`
}

type RecordTransactionRequest struct {
	Type           string          `json:"type" validate:"required,oneof=authorization capture void refund"`
	Amount         decimal.Decimal `json:"amount"`
	TxnID          string          `json:"txn_id" validate:"required,max=128"`
	ParentTxnID    string          `json:"parent_txn_id" validate:"max=128"`
	InvoiceID      *uuid.UUID      `json:"invoice_id"`
	Pending        bool            `json:"pending"`
	AdditionalInfo JSONMap         `json:"additional_information"`
}

type CommentRequest struct {
	Comment        string `json:"comment" validate:"required"`
	Status         string `json:"status" validate:"max=32"`
	NotifyCustomer bool   `json:"notify_customer"`
	VisibleOnFront bool   `json:"visible_on_front"`
}

type SetStatusRequest struct {
	Status  string `json:"status" validate:"required,max=32"`
	Comment string `json:"comment"`
}

// OrderFilter narrows grid listings.
type OrderFilter struct {
	StoreID string
	State   string
	Page    int
	Limit   int
}

// SalesSummary aggregates committed grid values in base currency.
type SalesSummary struct {
	StoreID            string          `json:"store_id,omitempty"`
	From               time.Time       `json:"from"`
	To                 time.Time       `json:"to"`
	OrdersCount        int64           `json:"orders_count"`
	BaseGrandTotal     decimal.Decimal `json:"base_grand_total"`
	InvoicesCount      int64           `json:"invoices_count"`
	BaseInvoiced       decimal.Decimal `json:"base_invoiced"`
	CreditmemosCount   int64           `json:"creditmemos_count"`
	BaseRefunded       decimal.Decimal `json:"base_refunded"`
	CanceledOrderCount int64           `json:"canceled_orders_count"`
}

// Bestseller is a SKU ranked by ordered quantity.
type Bestseller struct {
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	QtyOrdered decimal.Decimal `json:"qty_ordered"`
}
