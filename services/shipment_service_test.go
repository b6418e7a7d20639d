package services

import (
	"context"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateShipment_Partial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{simpleItem("TEE", "3", "10.00")}, shipping: "5.00"})

	sh, err := h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{
		Items:  qtys(o, "1"),
		Tracks: []models.TrackRequest{{CarrierCode: "ups", Title: "UPS", TrackNumber: "1Z999"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "000000001", sh.IncrementID)
	assertDec(t, "1", sh.TotalQty)
	assertDec(t, "1", sh.TotalWeight)
	require.Len(t, sh.Tracks, 1)
	assert.Equal(t, o.ID, sh.Tracks[0].OrderID)

	got := h.reload(t, o.ID)
	assert.Equal(t, models.StateProcessing, got.State)
	assertDec(t, "1", got.Items[0].QtyShipped)
	assert.Equal(t, 1, h.sink.count(models.EventShipmentCreated))

	_, err = h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{Items: qtys(o, "3")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
	assert.Equal(t, "2", apperrors.As(err).Details["available"])

	rest, err := h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{RequestID: "ship-rest"})
	require.NoError(t, err)
	assertDec(t, "2", rest.TotalQty)

	_, err = h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{RequestID: "ship-rest"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRequest)

	list, err := h.shipments.ListShipments(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateShipment_VirtualItemIsNotShippable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{
		items:    []models.AddQuoteItemRequest{simpleItem("TEE", "1", "10.00"), virtualItem("EBOOK", "1", "5.00")},
		shipping: "5.00",
	})
	ebook := o.Items[1]
	require.True(t, ebook.IsVirtual)

	_, err := h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{Items: models.ItemQtys{ebook.ID: dec("1")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNonShippableItem)
	assert.Equal(t, "EBOOK", apperrors.As(err).Details["sku"])

	sh, err := h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{})
	require.NoError(t, err)
	require.Len(t, sh.Items, 1)
	assert.Equal(t, "TEE", sh.Items[0].SKU)
}

func TestCreateShipment_VirtualOrderRefused(t *testing.T) {
	h := newHarness(t)
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{virtualItem("EBOOK", "1", "5.00")}})

	_, err := h.shipments.CreateShipment(context.Background(), o.ID, models.CreateShipmentRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestAddTrack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, checkout{items: []models.AddQuoteItemRequest{simpleItem("TEE", "1", "10.00")}})
	sh, err := h.shipments.CreateShipment(ctx, o.ID, models.CreateShipmentRequest{})
	require.NoError(t, err)

	track, err := h.shipments.AddTrack(ctx, sh.ID, models.TrackRequest{CarrierCode: "dhl", TrackNumber: "JD0001"})
	require.NoError(t, err)
	assert.Equal(t, sh.ID, track.ShipmentID)

	got, err := h.shipments.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, got.Tracks, 1)
	assert.Equal(t, "JD0001", got.Tracks[0].TrackNumber)
}
