package controllers

import (
	"net/http"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/gin-gonic/gin"
)

// DocumentController serves invoices, shipments and creditmemos.
type DocumentController struct {
	invoices    services.InvoiceService
	shipments   services.ShipmentService
	creditmemos services.CreditmemoService
}

func NewDocumentController(invoices services.InvoiceService, shipments services.ShipmentService, creditmemos services.CreditmemoService) *DocumentController {
	return &DocumentController{invoices: invoices, shipments: shipments, creditmemos: creditmemos}
}

func (dc *DocumentController) CreateInvoice(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CreateInvoiceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	inv, err := dc.invoices.CreateInvoice(c.Request.Context(), orderID, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "invoice", inv)
}

func (dc *DocumentController) ListInvoices(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := dc.invoices.ListInvoices(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": list})
}

func (dc *DocumentController) GetInvoice(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	inv, err := dc.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

// GetInvoiceByRequest lets a client that lost a response find the invoice its
// request created.
func (dc *DocumentController) GetInvoiceByRequest(c *gin.Context) {
	requestID := c.Param("request_id")
	inv, err := dc.invoices.FindInvoiceByRequest(c.Request.Context(), requestID)
	if err != nil {
		c.Error(err)
		return
	}
	if inv == nil {
		c.Error(apperrors.NotFound("invoice", requestID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

func (dc *DocumentController) CaptureInvoice(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	inv, err := dc.invoices.CaptureInvoice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

func (dc *DocumentController) CreateShipment(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CreateShipmentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	sh, err := dc.shipments.CreateShipment(c.Request.Context(), orderID, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "shipment", sh)
}

func (dc *DocumentController) ListShipments(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := dc.shipments.ListShipments(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipments": list})
}

func (dc *DocumentController) GetShipment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	sh, err := dc.shipments.GetShipment(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment": sh})
}

func (dc *DocumentController) AddTrack(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.TrackRequest
	if !bindJSON(c, &req) {
		return
	}
	track, err := dc.shipments.AddTrack(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "track", track)
}

func (dc *DocumentController) CreateCreditmemo(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CreateCreditmemoRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cm, err := dc.creditmemos.CreateCreditmemo(c.Request.Context(), orderID, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "creditmemo", cm)
}

func (dc *DocumentController) ListCreditmemos(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := dc.creditmemos.ListCreditmemos(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creditmemos": list})
}

func (dc *DocumentController) GetCreditmemo(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	cm, err := dc.creditmemos.GetCreditmemo(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creditmemo": cm})
}
