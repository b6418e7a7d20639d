package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MahoCommerce/maho-sub002/models"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSink delivers one committed sales event.
type EventSink interface {
	Publish(ctx context.Context, evt models.SalesEvent) error
}

// SNSSink publishes events to an SNS topic with an event_type attribute.
type SNSSink struct {
	client   aws_pkg.SNSPublisher
	topicArn string
}

func NewSNSSink(client aws_pkg.SNSPublisher, topicArn string) *SNSSink {
	return &SNSSink{client: client, topicArn: topicArn}
}

func (s *SNSSink) Publish(ctx context.Context, evt models.SalesEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topicArn, b, map[string]string{"event_type": evt.EventType})
}

// MessageWriter is satisfied by pkg/kafka.Producer.
type MessageWriter interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaSink publishes events keyed by order id.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Publish(ctx context.Context, evt models.SalesEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.writer.Publish(ctx, evt.OrderID.String(), b)
}

// EventPublisher runs the post-commit side effects of a sales operation: event
// publication, document archive and metrics. Every step is best effort; a
// failure is logged and counted but never undoes the committed operation.
type EventPublisher struct {
	sinks    []EventSink
	archiver aws_pkg.Archiver
	metrics  aws_pkg.MetricsRecorder
	logger   *zap.Logger
}

// NewEventPublisher creates an EventPublisher. archiver and metrics may be nil.
func NewEventPublisher(logger *zap.Logger, metrics aws_pkg.MetricsRecorder, archiver aws_pkg.Archiver, sinks ...EventSink) *EventPublisher {
	if metrics == nil {
		metrics = aws_pkg.NopMetrics{}
	}
	return &EventPublisher{sinks: sinks, archiver: archiver, metrics: metrics, logger: logger}
}

// Publish sends evt to every sink.
func (p *EventPublisher) Publish(ctx context.Context, evt models.SalesEvent) {
	if len(p.sinks) == 0 {
		p.logger.Debug("no event sink configured, skipping event", zap.String("event_type", evt.EventType))
		return
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			p.logger.Error("failed to publish sales event",
				zap.String("event_type", evt.EventType),
				zap.String("order_id", evt.OrderID.String()),
				zap.Error(err),
			)
			p.Count(ctx, aws_pkg.MetricEventPublishFailed, map[string]string{"EventType": evt.EventType})
		}
	}
}

// Archive stores a JSON snapshot of a committed document.
func (p *EventPublisher) Archive(ctx context.Context, entity string, id uuid.UUID, doc interface{}) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Archive(ctx, entity+"/"+id.String(), doc); err != nil {
		p.logger.Error("failed to archive document", zap.String("entity", entity), zap.String("id", id.String()), zap.Error(err))
	}
}

// Count increments a counter metric.
func (p *EventPublisher) Count(ctx context.Context, metric string, dims map[string]string) {
	if err := p.metrics.RecordCount(ctx, metric, dims); err != nil {
		p.logger.Warn("failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}

// Observe records the latency of an operation and, when err is set, a failure
// counter dimensioned by error kind.
func (p *EventPublisher) Observe(ctx context.Context, operation string, start time.Time, err error) {
	dims := map[string]string{"Operation": operation}
	if mErr := p.metrics.RecordLatency(ctx, aws_pkg.MetricOperationLatency, time.Since(start), dims); mErr != nil {
		p.logger.Warn("failed to record latency", zap.String("operation", operation), zap.Error(mErr))
	}
	if err != nil {
		p.Count(ctx, aws_pkg.MetricOperationFailed, map[string]string{"Operation": operation, "Kind": errKind(err)})
	}
}

func orderEvent(eventType string, o *models.Order, prev string) models.SalesEvent {
	return models.SalesEvent{
		EventType:        eventType,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          o.StoreID,
		EntityType:       models.EntityOrder,
		EntityID:         o.ID,
		IncrementID:      o.IncrementID,
		State:            o.State,
		PreviousState:    prev,
		Status:           o.Status,
		Qty:              o.TotalQtyOrdered,
		BaseGrandTotal:   o.BaseOrdered.GrandTotal,
		GrandTotal:       o.Ordered.GrandTotal,
		BaseCurrencyCode: o.BaseCurrencyCode,
		Currency:         o.OrderCurrencyCode,
		Timestamp:        time.Now(),
	}
}

func invoiceEvent(eventType string, o *models.Order, inv *models.Invoice) models.SalesEvent {
	return models.SalesEvent{
		EventType:        eventType,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          o.StoreID,
		EntityType:       models.EntityInvoice,
		EntityID:         inv.ID,
		IncrementID:      inv.IncrementID,
		State:            inv.State,
		Qty:              inv.TotalQty,
		BaseGrandTotal:   inv.BaseTotals.GrandTotal,
		GrandTotal:       inv.Totals.GrandTotal,
		BaseCurrencyCode: inv.BaseCurrencyCode,
		Currency:         inv.OrderCurrencyCode,
		Timestamp:        time.Now(),
	}
}

func shipmentEvent(o *models.Order, s *models.Shipment) models.SalesEvent {
	return models.SalesEvent{
		EventType:        models.EventShipmentCreated,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          o.StoreID,
		EntityType:       models.EntityShipment,
		EntityID:         s.ID,
		IncrementID:      s.IncrementID,
		Qty:              s.TotalQty,
		BaseCurrencyCode: o.BaseCurrencyCode,
		Currency:         o.OrderCurrencyCode,
		Timestamp:        time.Now(),
	}
}

func creditmemoEvent(o *models.Order, cm *models.Creditmemo) models.SalesEvent {
	return models.SalesEvent{
		EventType:        models.EventCreditmemoCreated,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          o.StoreID,
		EntityType:       models.EntityCreditmemo,
		EntityID:         cm.ID,
		IncrementID:      cm.IncrementID,
		State:            cm.State,
		Qty:              cm.TotalQty,
		BaseGrandTotal:   cm.BaseTotals.GrandTotal,
		GrandTotal:       cm.Totals.GrandTotal,
		BaseCurrencyCode: cm.BaseCurrencyCode,
		Currency:         cm.OrderCurrencyCode,
		Timestamp:        time.Now(),
	}
}

func transactionEvent(o *models.Order, t *models.Transaction) models.SalesEvent {
	return models.SalesEvent{
		EventType:        models.EventTransactionRecorded,
		OrderID:          o.ID,
		OrderIncrementID: o.IncrementID,
		StoreID:          o.StoreID,
		EntityType:       t.TxnType,
		EntityID:         t.ID,
		IncrementID:      t.TxnID,
		BaseGrandTotal:   t.BaseAmount,
		GrandTotal:       t.Amount,
		BaseCurrencyCode: o.BaseCurrencyCode,
		Currency:         o.OrderCurrencyCode,
		Timestamp:        time.Now(),
	}
}

// stateChanged publishes order_state_changed when the state moved.
func (p *EventPublisher) stateChanged(ctx context.Context, o *models.Order, prev string, changed bool) {
	if changed {
		p.Publish(ctx, orderEvent(models.EventOrderStateChanged, o, prev))
	}
}
