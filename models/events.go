package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published after a commit.
const (
	EventOrderPlaced         = "order_placed"
	EventOrderStateChanged   = "order_state_changed"
	EventOrderCanceled       = "order_canceled"
	EventInvoiceCreated      = "invoice_created"
	EventInvoicePaid         = "invoice_paid"
	EventShipmentCreated     = "shipment_created"
	EventCreditmemoCreated   = "creditmemo_created"
	EventTransactionRecorded = "transaction_recorded"
)

// SalesEvent describes a committed change. Amounts are copied from the
// persisted snapshot so consumers never recompute them.
type SalesEvent struct {
	EventType        string          `json:"event_type"`
	OrderID          uuid.UUID       `json:"order_id"`
	OrderIncrementID string          `json:"order_increment_id"`
	StoreID          string          `json:"store_id"`
	EntityType       string          `json:"entity_type"`
	EntityID         uuid.UUID       `json:"entity_id"`
	IncrementID      string          `json:"increment_id,omitempty"`
	State            string          `json:"state,omitempty"`
	PreviousState    string          `json:"previous_state,omitempty"`
	Status           string          `json:"status,omitempty"`
	Qty              decimal.Decimal `json:"qty"`
	BaseGrandTotal   decimal.Decimal `json:"base_grand_total"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	BaseCurrencyCode string          `json:"base_currency_code"`
	Currency         string          `json:"currency"`
	Timestamp        time.Time       `json:"timestamp"`
}

// PaymentGatewayEvent is delivered by the gateway integration through SQS.
type PaymentGatewayEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	RecordTransactionRequest
}
