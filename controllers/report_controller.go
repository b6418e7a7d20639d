package controllers

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/gin-gonic/gin"
)

const defaultReportWindow = 30 * 24 * time.Hour

type ReportController struct {
	reports services.ReportService
}

func NewReportController(reports services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// SalesSummary reports over [from, to), defaulting to the last 30 days.
func (rc *ReportController) SalesSummary(c *gin.Context) {
	now := time.Now().UTC()
	from, err := parseTime(c.Query("from"), now.Add(-defaultReportWindow))
	if err != nil {
		c.Error(apperrors.ErrValidation.Withf("invalid from").WithDetail("from", c.Query("from")))
		return
	}
	to, err := parseTime(c.Query("to"), now)
	if err != nil {
		c.Error(apperrors.ErrValidation.Withf("invalid to").WithDetail("to", c.Query("to")))
		return
	}
	summary, err := rc.reports.SalesSummary(c.Request.Context(), c.Query("store_id"), from, to)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (rc *ReportController) Bestsellers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := rc.reports.Bestsellers(c.Request.Context(), c.Query("store_id"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bestsellers": rows})
}
