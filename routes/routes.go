package routes

import (
	"net/http"

	"github.com/MahoCommerce/maho-sub002/common/middleware"
	"github.com/MahoCommerce/maho-sub002/controllers"
	"github.com/gin-gonic/gin"
)

// Controllers groups every handler the router mounts.
type Controllers struct {
	Quotes    *controllers.QuoteController
	Orders    *controllers.OrderController
	Documents *controllers.DocumentController
	Payments  *controllers.PaymentController
	Reports   *controllers.ReportController
}

func RegisterRoutes(r *gin.Engine, ctl Controllers, jwtSecret []byte) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "sales-service"})
	})

	api := r.Group("/api/v1", middleware.AuthMiddleware(jwtSecret))
	admin := api.Group("", middleware.AdminOnly())

	quotes := api.Group("/quotes")
	{
		quotes.POST("", ctl.Quotes.CreateQuote)
		quotes.GET("/:id", ctl.Quotes.GetQuote)
		quotes.POST("/:id/items", ctl.Quotes.AddItem)
		quotes.PUT("/:id/items/:item_id", ctl.Quotes.UpdateItem)
		quotes.DELETE("/:id/items/:item_id", ctl.Quotes.RemoveItem)
		quotes.PUT("/:id/addresses", ctl.Quotes.SetAddresses)
		quotes.PUT("/:id/shipping", ctl.Quotes.SetShipping)
		quotes.PUT("/:id/payment", ctl.Quotes.SetPayment)
		quotes.POST("/:id/place-order", ctl.Quotes.PlaceOrder)
	}

	api.GET("/orders", ctl.Orders.ListOrders)
	api.GET("/orders/:id", ctl.Orders.GetOrder)
	api.GET("/orders/:id/totals", ctl.Orders.GetTotals)
	api.GET("/orders/:id/invoices", ctl.Documents.ListInvoices)
	api.GET("/orders/:id/shipments", ctl.Documents.ListShipments)
	api.GET("/orders/:id/creditmemos", ctl.Documents.ListCreditmemos)
	api.GET("/orders/:id/transactions", ctl.Payments.ListTransactions)
	api.GET("/invoices/:id", ctl.Documents.GetInvoice)
	api.GET("/invoices/requests/:request_id", ctl.Documents.GetInvoiceByRequest)
	api.GET("/shipments/:id", ctl.Documents.GetShipment)
	api.GET("/creditmemos/:id", ctl.Documents.GetCreditmemo)

	admin.POST("/orders/:id/cancel", ctl.Orders.Cancel)
	admin.POST("/orders/:id/hold", ctl.Orders.Hold)
	admin.POST("/orders/:id/unhold", ctl.Orders.Unhold)
	admin.POST("/orders/:id/comments", ctl.Orders.AddComment)
	admin.POST("/orders/:id/status", ctl.Orders.SetStatus)
	admin.DELETE("/orders/:id", ctl.Orders.DeleteOrder)
	admin.POST("/orders/:id/invoices", ctl.Documents.CreateInvoice)
	admin.POST("/invoices/:id/capture", ctl.Documents.CaptureInvoice)
	admin.POST("/orders/:id/shipments", ctl.Documents.CreateShipment)
	admin.POST("/shipments/:id/tracks", ctl.Documents.AddTrack)
	admin.POST("/orders/:id/creditmemos", ctl.Documents.CreateCreditmemo)
	admin.POST("/orders/:id/transactions", ctl.Payments.RecordTransaction)
	admin.POST("/orders/:id/payment/accept", ctl.Payments.Accept)
	admin.POST("/orders/:id/payment/deny", ctl.Payments.Deny)

	admin.GET("/reports/sales", ctl.Reports.SalesSummary)
	admin.GET("/reports/bestsellers", ctl.Reports.Bestsellers)
}
