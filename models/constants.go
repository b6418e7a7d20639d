package models

// Order states.
const (
	StateNew           = "new"
	StateProcessing    = "processing"
	StateComplete      = "complete"
	StateClosed        = "closed"
	StateCanceled      = "canceled"
	StateHolded        = "holded"
	StatePaymentReview = "payment_review"
)

// Invoice states.
const (
	InvoiceStateOpen     = "open"
	InvoiceStatePaid     = "paid"
	InvoiceStateCanceled = "canceled"
)

// Creditmemo states.
const (
	CreditmemoStateOpen     = "open"
	CreditmemoStateRefunded = "refunded"
	CreditmemoStateCanceled = "canceled"
)

// Capture modes requested when creating an invoice.
const (
	CaptureOnline     = "online"
	CaptureOffline    = "offline"
	CaptureNotCapture = "not_capture"
)

// Refund modes of a creditmemo.
const (
	RefundOffline = "offline"
	RefundOnline  = "online"
)

// Payment transaction types.
const (
	TxnAuthorization = "authorization"
	TxnCapture       = "capture"
	TxnVoid          = "void"
	TxnRefund        = "refund"
)

// Entity types used for sequences, history and events.
const (
	EntityOrder      = "order"
	EntityInvoice    = "invoice"
	EntityShipment   = "shipment"
	EntityCreditmemo = "creditmemo"
)

// Address types.
const (
	AddressBilling  = "billing"
	AddressShipping = "shipping"
)
