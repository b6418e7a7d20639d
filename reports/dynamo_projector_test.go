package reports

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDynamo applies the marker put and the ADD update in memory.
type fakeDynamo struct {
	markers    map[string]bool
	aggregates map[string]map[string]int64
	writes     int
	failWith   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{markers: map[string]bool{}, aggregates: map[string]map[string]int64{}}
}

func keyOf(item map[string]types.AttributeValue) string {
	pk := item["pk"].(*types.AttributeValueMemberS).Value
	sk := item["sk"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.writes++
	if f.failWith != nil {
		return nil, f.failWith
	}
	put := in.TransactItems[0].Put
	marker := keyOf(put.Item)
	if f.markers[marker] {
		return nil, &types.TransactionCanceledException{
			Message: aws.String("Transaction cancelled"),
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed")},
				{Code: aws.String("None")},
			},
		}
	}
	f.markers[marker] = true

	upd := in.TransactItems[1].Update
	key := keyOf(upd.Key)
	agg := f.aggregates[key]
	if agg == nil {
		agg = map[string]int64{}
		f.aggregates[key] = agg
	}
	for _, clause := range strings.Split(strings.TrimPrefix(*upd.UpdateExpression, "ADD"), ",") {
		parts := strings.Fields(clause)
		n, err := strconv.ParseInt(upd.ExpressionAttributeValues[parts[1]].(*types.AttributeValueMemberN).Value, 10, 64)
		if err != nil {
			return nil, err
		}
		agg[upd.ExpressionAttributeNames[parts[0]]] += n
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	agg, ok := f.aggregates[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	item, err := attributevalue.MarshalMap(agg)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func salesEvent(eventType string, entityID uuid.UUID, total string, ts time.Time) models.SalesEvent {
	return models.SalesEvent{
		EventType:      eventType,
		OrderID:        uuid.New(),
		StoreID:        "default",
		EntityID:       entityID,
		Qty:            decimal.RequireFromString("2"),
		BaseGrandTotal: decimal.RequireFromString(total),
		Timestamp:      ts,
	}
}

func TestDynamoProjector_AggregatesByDay(t *testing.T) {
	fake := newFakeDynamo()
	p := NewDynamoProjector(fake, "sales_daily", zap.NewNop())
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Project(ctx, salesEvent(models.EventOrderPlaced, uuid.New(), "130.10", day)))
	require.NoError(t, p.Project(ctx, salesEvent(models.EventOrderPlaced, uuid.New(), "20.05", day)))
	require.NoError(t, p.Project(ctx, salesEvent(models.EventInvoiceCreated, uuid.New(), "130.10", day)))
	require.NoError(t, p.Project(ctx, salesEvent(models.EventShipmentCreated, uuid.New(), "0", day)))
	require.NoError(t, p.Project(ctx, salesEvent(models.EventCreditmemoCreated, uuid.New(), "10.00", day)))

	got, err := p.Get(ctx, "default", day)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", got.Day)
	assert.Equal(t, int64(2), got.OrdersCount)
	assert.True(t, got.BaseOrdered.Equal(decimal.RequireFromString("150.15")), got.BaseOrdered.String())
	assert.Equal(t, int64(1), got.InvoicesCount)
	assert.True(t, got.BaseInvoiced.Equal(decimal.RequireFromString("130.10")))
	assert.True(t, got.QtyShipped.Equal(decimal.NewFromInt(2)))
	assert.True(t, got.BaseRefunded.Equal(decimal.NewFromInt(10)))
}

func TestDynamoProjector_RedeliveryIsIgnored(t *testing.T) {
	fake := newFakeDynamo()
	p := NewDynamoProjector(fake, "sales_daily", zap.NewNop())
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	evt := salesEvent(models.EventInvoiceCreated, uuid.New(), "50.00", day)

	require.NoError(t, p.Project(ctx, evt))
	require.NoError(t, p.Project(ctx, evt))

	got, err := p.Get(ctx, "default", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.InvoicesCount)
	assert.True(t, got.BaseInvoiced.Equal(decimal.NewFromInt(50)))
}

func TestDynamoProjector_IgnoredEventTypes(t *testing.T) {
	fake := newFakeDynamo()
	p := NewDynamoProjector(fake, "sales_daily", zap.NewNop())

	err := p.Project(context.Background(), salesEvent(models.EventTransactionRecorded, uuid.New(), "5", time.Now()))
	require.NoError(t, err)
	assert.Zero(t, fake.writes)
}

func TestDynamoProjector_EmptyDay(t *testing.T) {
	p := NewDynamoProjector(newFakeDynamo(), "sales_daily", zap.NewNop())

	got, err := p.Get(context.Background(), "default", time.Now())
	require.NoError(t, err)
	assert.Zero(t, got.OrdersCount)
	assert.True(t, got.BaseOrdered.IsZero())
}

func TestDynamoProjector_WriteErrorIsReturned(t *testing.T) {
	fake := newFakeDynamo()
	fake.failWith = errors.New("throttled")
	p := NewDynamoProjector(fake, "sales_daily", zap.NewNop())

	err := p.Project(context.Background(), salesEvent(models.EventOrderPlaced, uuid.New(), "5", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
