package controllers

import (
	"net/http"

	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QuoteController struct {
	quotes services.QuoteService
	orders services.OrderService
	logger *zap.Logger
}

func NewQuoteController(quotes services.QuoteService, orders services.OrderService, logger *zap.Logger) *QuoteController {
	return &QuoteController{quotes: quotes, orders: orders, logger: logger}
}

func (qc *QuoteController) CreateQuote(c *gin.Context) {
	var req models.CreateQuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.CreateQuote(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "quote", q)
}

func (qc *QuoteController) GetQuote(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	q, err := qc.quotes.GetQuote(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (qc *QuoteController) AddItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.AddQuoteItemRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.AddItem(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "quote", q)
}

func (qc *QuoteController) UpdateItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	var req models.UpdateQuoteItemRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.UpdateItemQty(c.Request.Context(), id, itemID, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (qc *QuoteController) RemoveItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	q, err := qc.quotes.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (qc *QuoteController) SetAddresses(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SetAddressesRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.SetAddresses(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (qc *QuoteController) SetShipping(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SetShippingRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.SetShipping(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (qc *QuoteController) SetPayment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SetPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	q, err := qc.quotes.SetPaymentMethod(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// PlaceOrder converts the quote. The body is an optional validation policy.
func (qc *QuoteController) PlaceOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var policy ledger.ValidationPolicy
	if !bindOptionalJSON(c, &policy) {
		return
	}
	o, err := qc.orders.PlaceOrder(c.Request.Context(), id, policy)
	if err != nil {
		c.Error(err)
		return
	}
	qc.logger.Info("order placed via api", zap.String("order_id", o.ID.String()), zap.String("increment_id", o.IncrementID))
	created(c, "order", o)
}
