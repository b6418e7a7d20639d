package controllers

import (
	"context"
	"math"
	"net/http"

	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderController struct {
	orders services.OrderService
	logger *zap.Logger
}

func NewOrderController(orders services.OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

type commentBody struct {
	Comment string `json:"comment"`
}

// ListOrders returns the order grid, filtered by store_id and state.
func (oc *OrderController) ListOrders(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	rows, total, err := oc.orders.ListOrders(c.Request.Context(), models.OrderFilter{
		StoreID: c.Query("store_id"),
		State:   c.Query("state"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":      rows,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	o, err := oc.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (oc *OrderController) GetTotals(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	snap, err := oc.orders.Totals(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": snap})
}

func (oc *OrderController) Cancel(c *gin.Context) {
	oc.withComment(c, oc.orders.Cancel)
}

func (oc *OrderController) Hold(c *gin.Context) {
	oc.withComment(c, oc.orders.Hold)
}

func (oc *OrderController) Unhold(c *gin.Context) {
	oc.withComment(c, oc.orders.Unhold)
}

func (oc *OrderController) withComment(c *gin.Context, op func(ctx context.Context, id uuid.UUID, comment string) (*models.Order, error)) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body commentBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	o, err := op(c.Request.Context(), id, body.Comment)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (oc *OrderController) AddComment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := oc.orders.AddComment(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "order", o)
}

func (oc *OrderController) SetStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SetStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := oc.orders.SetStatus(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (oc *OrderController) DeleteOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := oc.orders.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	oc.logger.Info("order deleted", zap.String("order_id", id.String()))
	c.Status(http.StatusNoContent)
}
