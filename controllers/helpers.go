// Package controllers exposes the services over gin. Handlers attach errors to
// the gin context and leave rendering to apperrors.ErrorMiddleware.
package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

const (
	maxPageSize     = 100
	defaultPage     = 1
	defaultPageSize = 20
)

// bindJSON decodes and validates the request body. On failure the error is
// attached to c and false is returned.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(apperrors.ErrValidation.Withf("invalid request body").Wrap(err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.Error(validationError(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be empty.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

func validationError(err error) *apperrors.Error {
	appErr := apperrors.ErrValidation.Withf("request validation failed")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			appErr = appErr.WithDetail(strings.ToLower(fe.Field()), fe.Tag())
		}
		return appErr
	}
	return appErr.Wrap(err)
}

// uuidParam parses a path parameter. On failure the error is attached to c.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.Error(apperrors.ErrValidation.Withf("invalid %s", name).WithDetail(name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func parsePaginationParams(c *gin.Context) (int, int) {
	page := defaultPage
	limit := defaultPageSize

	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && l > 0 {
		limit = l
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	return page, limit
}

func created(c *gin.Context, key string, v interface{}) {
	c.JSON(http.StatusCreated, gin.H{key: v})
}
