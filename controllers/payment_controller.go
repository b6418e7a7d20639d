package controllers

import (
	"net/http"

	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	payments services.PaymentService
}

func NewPaymentController(payments services.PaymentService) *PaymentController {
	return &PaymentController{payments: payments}
}

func (pc *PaymentController) RecordTransaction(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.RecordTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := pc.payments.RecordTransaction(c.Request.Context(), orderID, req)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "transaction", txn)
}

func (pc *PaymentController) ListTransactions(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	txns, err := pc.payments.ListTransactions(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (pc *PaymentController) Accept(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body commentBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	o, err := pc.payments.AcceptPayment(c.Request.Context(), orderID, body.Comment)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (pc *PaymentController) Deny(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body commentBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	o, err := pc.payments.DenyPayment(c.Request.Context(), orderID, body.Comment)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}
