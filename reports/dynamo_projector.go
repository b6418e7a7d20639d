// Package reports projects committed sales events into a daily aggregate
// table in DynamoDB.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

// DynamoAPI is the part of the DynamoDB client the projector uses.
type DynamoAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DailySales is one store's aggregate for one UTC day. Amounts are base
// currency.
type DailySales struct {
	StoreID          string
	Day              string
	OrdersCount      int64
	BaseOrdered      decimal.Decimal
	InvoicesCount    int64
	BaseInvoiced     decimal.Decimal
	ShipmentsCount   int64
	QtyShipped       decimal.Decimal
	CreditmemosCount int64
	BaseRefunded     decimal.Decimal
	CanceledCount    int64
}

// ddbDaily mirrors the stored item. Amounts are kept in minor units so ADD
// stays exact.
type ddbDaily struct {
	PK               string `dynamodbav:"pk"`
	SK               string `dynamodbav:"sk"`
	OrdersCount      int64  `dynamodbav:"orders_count"`
	BaseOrdered      int64  `dynamodbav:"base_ordered_minor"`
	InvoicesCount    int64  `dynamodbav:"invoices_count"`
	BaseInvoiced     int64  `dynamodbav:"base_invoiced_minor"`
	ShipmentsCount   int64  `dynamodbav:"shipments_count"`
	QtyShipped       int64  `dynamodbav:"qty_shipped_milli"`
	CreditmemosCount int64  `dynamodbav:"creditmemos_count"`
	BaseRefunded     int64  `dynamodbav:"base_refunded_minor"`
	CanceledCount    int64  `dynamodbav:"canceled_count"`
}

// DynamoProjector applies each committed event once. A marker item keyed by
// entity and event type is written in the same transaction as the aggregate
// update, so redelivered events are ignored.
type DynamoProjector struct {
	client DynamoAPI
	table  string
	logger *zap.Logger
}

func NewDynamoProjector(client DynamoAPI, table string, logger *zap.Logger) *DynamoProjector {
	return &DynamoProjector{client: client, table: table, logger: logger}
}

func storeKey(storeID string) string { return "store#" + storeID }
func dayKey(day string) string       { return "day#" + day }

func minor(d decimal.Decimal) int64 { return d.Shift(2).Round(0).IntPart() }
func milli(d decimal.Decimal) int64 { return d.Shift(3).Round(0).IntPart() }

// increments returns the counters an event adds to, or nil when the event
// does not affect the aggregate.
func increments(evt models.SalesEvent) map[string]int64 {
	switch evt.EventType {
	case models.EventOrderPlaced:
		return map[string]int64{"orders_count": 1, "base_ordered_minor": minor(evt.BaseGrandTotal)}
	case models.EventInvoiceCreated:
		return map[string]int64{"invoices_count": 1, "base_invoiced_minor": minor(evt.BaseGrandTotal)}
	case models.EventShipmentCreated:
		return map[string]int64{"shipments_count": 1, "qty_shipped_milli": milli(evt.Qty)}
	case models.EventCreditmemoCreated:
		return map[string]int64{"creditmemos_count": 1, "base_refunded_minor": minor(evt.BaseGrandTotal)}
	case models.EventOrderCanceled:
		return map[string]int64{"canceled_count": 1}
	}
	return nil
}

// Project records evt. It returns nil for events already applied and for
// event types the aggregate ignores.
func (p *DynamoProjector) Project(ctx context.Context, evt models.SalesEvent) error {
	incs := increments(evt)
	if incs == nil {
		return nil
	}
	day := evt.Timestamp.UTC().Format(dayLayout)

	marker, err := attributevalue.MarshalMap(map[string]string{
		"pk":         "event#" + evt.EntityID.String(),
		"sk":         evt.EventType,
		"store_id":   evt.StoreID,
		"day":        day,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	key, err := attributevalue.MarshalMap(map[string]string{"pk": storeKey(evt.StoreID), "sk": dayKey(day)})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	expr := "ADD"
	names := make(map[string]string, len(incs))
	values := make(map[string]types.AttributeValue, len(incs))
	i := 0
	for attr, n := range incs {
		if i > 0 {
			expr += ","
		}
		expr += fmt.Sprintf(" #f%d :v%d", i, i)
		names[fmt.Sprintf("#f%d", i)] = attr
		values[fmt.Sprintf(":v%d", i)] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", n)}
		i++
	}

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(p.table),
				Item:                marker,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Update: &types.Update{
				TableName:                 aws.String(p.table),
				Key:                       key,
				UpdateExpression:          aws.String(expr),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			}},
		},
	})
	if err != nil {
		if alreadyApplied(err) {
			p.logger.Debug("sales event already projected",
				zap.String("event_type", evt.EventType),
				zap.String("entity_id", evt.EntityID.String()),
			)
			return nil
		}
		return fmt.Errorf("project %s: %w", evt.EventType, err)
	}
	return nil
}

func alreadyApplied(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, r := range tce.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Get reads one day's aggregate. A day without events reads as zero.
func (p *DynamoProjector) Get(ctx context.Context, storeID string, day time.Time) (*DailySales, error) {
	d := day.UTC().Format(dayLayout)
	key, err := attributevalue.MarshalMap(map[string]string{"pk": storeKey(storeID), "sk": dayKey(d)})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.table),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}

	var item ddbDaily
	if len(out.Item) > 0 {
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return nil, fmt.Errorf("unmarshal aggregate: %w", err)
		}
	}
	return &DailySales{
		StoreID:          storeID,
		Day:              d,
		OrdersCount:      item.OrdersCount,
		BaseOrdered:      decimal.New(item.BaseOrdered, -2),
		InvoicesCount:    item.InvoicesCount,
		BaseInvoiced:     decimal.New(item.BaseInvoiced, -2),
		ShipmentsCount:   item.ShipmentsCount,
		QtyShipped:       decimal.New(item.QtyShipped, -3),
		CreditmemosCount: item.CreditmemosCount,
		BaseRefunded:     decimal.New(item.BaseRefunded, -2),
		CanceledCount:    item.CanceledCount,
	}, nil
}
