package services

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShipmentService creates shipments and their tracking numbers.
type ShipmentService interface {
	CreateShipment(ctx context.Context, orderID uuid.UUID, req models.CreateShipmentRequest) (*models.Shipment, error)
	AddTrack(ctx context.Context, shipmentID uuid.UUID, req models.TrackRequest) (*models.ShipmentTrack, error)
	GetShipment(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error)
	ListShipments(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
}

type shipmentServiceImpl struct {
	store   repository.Transactor
	machine *state.Machine
	guard   requestGuard
	events  *EventPublisher
	logger  *zap.Logger
}

func NewShipmentService(
	store repository.Transactor,
	machine *state.Machine,
	cache repository.IdempotencyCache,
	events *EventPublisher,
	logger *zap.Logger,
) ShipmentService {
	return &shipmentServiceImpl{
		store:   store,
		machine: machine,
		guard:   requestGuard{cache: cache, logger: logger},
		events:  events,
		logger:  logger,
	}
}

func (s *shipmentServiceImpl) CreateShipment(ctx context.Context, orderID uuid.UUID, req models.CreateShipmentRequest) (*models.Shipment, error) {
	start := time.Now()
	if err := s.guard.check(ctx, req.RequestID); err != nil {
		return nil, err
	}

	var (
		shipment *models.Shipment
		o        *models.Order
		prev     string
		changed  bool
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		if err := s.guard.checkTx(ctx, r, req.RequestID); err != nil {
			return err
		}
		var err error
		o, err = r.Orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := state.CanShip(o); err != nil {
			return err
		}
		for id := range req.Items {
			if it := o.Item(id); it != nil && it.IsVirtual {
				return apperrors.ErrNonShippableItem.
					WithDetail("item_id", it.ID.String()).
					WithDetail("sku", it.SKU)
			}
		}
		qtys, err := resolveQtys(o, req.Items, ledger.QtyToShip, "ship")
		if err != nil {
			return err
		}

		shipment = &models.Shipment{
			DocumentHeader: models.DocumentHeader{
				ID:        uuid.New(),
				OrderID:   o.ID,
				StoreID:   o.StoreID,
				RequestID: optionalString(req.RequestID),
			},
		}
		for _, iq := range qtys {
			if err := ledger.ApplyShipment(iq.item, iq.qty); err != nil {
				return err
			}
			weight := iq.item.Weight.Mul(iq.qty)
			shipment.Items = append(shipment.Items, models.ShipmentItem{
				ID:          uuid.New(),
				ShipmentID:  shipment.ID,
				OrderItemID: iq.item.ID,
				SKU:         iq.item.SKU,
				Name:        iq.item.Name,
				Qty:         iq.qty,
				Weight:      weight,
			})
			shipment.TotalQty = shipment.TotalQty.Add(iq.qty)
			shipment.TotalWeight = shipment.TotalWeight.Add(weight)
		}
		if err := checkItems(qtys); err != nil {
			return err
		}
		for _, t := range req.Tracks {
			shipment.Tracks = append(shipment.Tracks, models.ShipmentTrack{
				ID:          uuid.New(),
				ShipmentID:  shipment.ID,
				OrderID:     o.ID,
				CarrierCode: t.CarrierCode,
				Title:       t.Title,
				TrackNumber: t.TrackNumber,
			})
		}

		if shipment.IncrementID, err = nextIncrement(ctx, r, o.StoreID, models.EntityShipment); err != nil {
			return err
		}
		if req.Comment != "" {
			shipment.Comments = newComment(shipment.ID, models.EntityShipment, req.Comment, req.NotifyCustomer)
			s.machine.AppendHistory(o, models.EntityShipment, state.HistoryEntry{Comment: req.Comment, NotifyCustomer: req.NotifyCustomer})
		}
		prev, changed = s.machine.Apply(o, state.HistoryEntry{Comment: fmt.Sprintf("Shipment #%s created", shipment.IncrementID)})

		if err := r.Shipments.Create(ctx, shipment); err != nil {
			return err
		}
		if err := saveOrder(ctx, r, o); err != nil {
			return err
		}
		return r.Grids.UpsertShipment(ctx, models.NewShipmentGrid(o, shipment))
	})
	s.events.Observe(ctx, "create_shipment", start, err)
	if err != nil {
		logger.For(ctx, s.logger).Warn("shipment creation failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, err
	}

	s.guard.remember(ctx, req.RequestID, shipment.ID)
	s.events.Publish(ctx, shipmentEvent(o, shipment))
	s.events.stateChanged(ctx, o, prev, changed)
	s.events.Archive(ctx, models.EntityShipment, shipment.ID, shipment)
	s.events.Count(ctx, aws_pkg.MetricShipmentsCreated, nil)

	s.logger.Info("shipment created",
		zap.String("order_id", o.ID.String()),
		zap.String("shipment_id", shipment.ID.String()),
		zap.String("total_qty", shipment.TotalQty.String()),
	)
	return shipment, nil
}

func (s *shipmentServiceImpl) AddTrack(ctx context.Context, shipmentID uuid.UUID, req models.TrackRequest) (*models.ShipmentTrack, error) {
	var track *models.ShipmentTrack
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		sh, err := r.Shipments.FindByID(ctx, shipmentID)
		if err != nil {
			return err
		}
		track = &models.ShipmentTrack{
			ID:          uuid.New(),
			ShipmentID:  sh.ID,
			OrderID:     sh.OrderID,
			CarrierCode: req.CarrierCode,
			Title:       req.Title,
			TrackNumber: req.TrackNumber,
		}
		return r.Shipments.AddTrack(ctx, track)
	})
	if err != nil {
		return nil, err
	}
	return track, nil
}

func (s *shipmentServiceImpl) GetShipment(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error) {
	var sh *models.Shipment
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		sh, err = r.Shipments.FindByID(ctx, shipmentID)
		return err
	})
	return sh, err
}

func (s *shipmentServiceImpl) ListShipments(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var out []models.Shipment
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Shipments.ListByOrder(ctx, orderID)
		return err
	})
	return out, err
}
