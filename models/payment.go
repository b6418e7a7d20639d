package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment holds the running payment totals of an order (1:1).
type Payment struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID              uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	Method               string          `gorm:"size:64;not null" json:"method"`
	AmountAuthorized     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"amount_authorized"`
	BaseAmountAuthorized decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_amount_authorized"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"amount_paid"`
	BaseAmountPaid       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_amount_paid"`
	AmountRefunded       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"amount_refunded"`
	BaseAmountRefunded   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_amount_refunded"`
	AmountCanceled       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"amount_canceled"`
	BaseAmountCanceled   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_amount_canceled"`
	LastTransID          string          `gorm:"size:128" json:"last_trans_id,omitempty"`
	AdditionalInfo       JSONMap         `gorm:"type:jsonb;serializer:json" json:"additional_information,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transaction is one gateway operation. Transactions form a tree through ParentID.
type Transaction struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_txn_order_payment_txn" json:"order_id"`
	PaymentID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_txn_order_payment_txn" json:"payment_id"`
	TxnID          string          `gorm:"size:128;not null;uniqueIndex:idx_txn_order_payment_txn" json:"txn_id"`
	ParentID       *uuid.UUID      `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	ParentTxnID    string          `gorm:"size:128" json:"parent_txn_id,omitempty"`
	TxnType        string          `gorm:"size:32;not null" json:"txn_type"`
	IsClosed       bool            `gorm:"not null;default:false" json:"is_closed"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"amount"`
	BaseAmount     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"base_amount"`
	AdditionalInfo JSONMap         `gorm:"type:jsonb;serializer:json" json:"additional_information,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// SortTransactionTree orders transactions so that every parent precedes its children,
// keeping creation order among siblings.
func SortTransactionTree(txns []Transaction) []Transaction {
	children := make(map[uuid.UUID][]Transaction)
	byID := make(map[uuid.UUID]bool, len(txns))
	for _, t := range txns {
		byID[t.ID] = true
	}
	var roots []Transaction
	for _, t := range txns {
		if t.ParentID != nil && byID[*t.ParentID] {
			children[*t.ParentID] = append(children[*t.ParentID], t)
			continue
		}
		roots = append(roots, t)
	}

	out := make([]Transaction, 0, len(txns))
	var walk func(ts []Transaction)
	walk = func(ts []Transaction) {
		for _, t := range ts {
			out = append(out, t)
			walk(children[t.ID])
		}
	}
	walk(roots)
	return out
}
