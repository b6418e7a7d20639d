package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"go.uber.org/zap"
)

// PaymentEventConsumer records gateway callbacks delivered through SQS.
type PaymentEventConsumer struct {
	source   aws_pkg.MessageSource
	payments PaymentService
	logger   *zap.Logger
}

func NewPaymentEventConsumer(source aws_pkg.MessageSource, payments PaymentService, logger *zap.Logger) *PaymentEventConsumer {
	return &PaymentEventConsumer{source: source, payments: payments, logger: logger}
}

// Start polls until ctx is canceled.
func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	return c.source.StartPolling(ctx, c.Handle)
}

// Handle records one gateway event. Malformed messages and client errors are
// dropped; concurrent modifications and server errors are returned so the
// message is redelivered.
func (c *PaymentEventConsumer) Handle(ctx context.Context, body string) error {
	var evt models.PaymentGatewayEvent
	if err := json.Unmarshal([]byte(aws_pkg.UnwrapSNS(body)), &evt); err != nil {
		c.logger.Error("dropping malformed payment event", zap.Error(err))
		return nil
	}

	txn, err := c.payments.RecordTransaction(ctx, evt.OrderID, evt.RecordTransactionRequest)
	if err != nil {
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			return err
		}
		if appErr := apperrors.As(err); appErr.Code < http.StatusInternalServerError {
			c.logger.Warn("dropping rejected payment event",
				zap.String("order_id", evt.OrderID.String()),
				zap.String("txn_id", evt.TxnID),
				zap.String("kind", appErr.Kind),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	c.logger.Info("payment event recorded",
		zap.String("order_id", evt.OrderID.String()),
		zap.String("txn_id", txn.TxnID),
		zap.String("type", txn.TxnType),
	)
	return nil
}

// SalesProjector consumes committed sales events.
type SalesProjector interface {
	Project(ctx context.Context, evt models.SalesEvent) error
}

// ReportEventConsumer feeds sales events from the report queue to a projector.
type ReportEventConsumer struct {
	source    aws_pkg.MessageSource
	projector SalesProjector
	logger    *zap.Logger
}

func NewReportEventConsumer(source aws_pkg.MessageSource, projector SalesProjector, logger *zap.Logger) *ReportEventConsumer {
	return &ReportEventConsumer{source: source, projector: projector, logger: logger}
}

func (c *ReportEventConsumer) Start(ctx context.Context) error {
	return c.source.StartPolling(ctx, c.Handle)
}

func (c *ReportEventConsumer) Handle(ctx context.Context, body string) error {
	var evt models.SalesEvent
	if err := json.Unmarshal([]byte(aws_pkg.UnwrapSNS(body)), &evt); err != nil {
		c.logger.Error("dropping malformed sales event", zap.Error(err))
		return nil
	}
	return c.projector.Project(ctx, evt)
}
