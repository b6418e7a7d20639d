package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIs_MatchesKind(t *testing.T) {
	err := apperrors.InvalidQuantity("item-1", "5", "3", "exceeds open quantity")
	wrapped := fmt.Errorf("create invoice: %w", err)

	assert.True(t, stderrors.Is(wrapped, apperrors.ErrInvalidQuantity))
	assert.False(t, stderrors.Is(wrapped, apperrors.ErrOverRefund))
	assert.Equal(t, "item-1", err.Details["item_id"])
	assert.Equal(t, "3", err.Details["available"])
	assert.Contains(t, err.Error(), "qty=5")
}

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	_ = apperrors.ErrOverRefund.WithDetail("item_id", "x")
	assert.Empty(t, apperrors.ErrOverRefund.Details)
}

func TestAs_UnknownBecomesStorage(t *testing.T) {
	e := apperrors.As(stderrors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, e.Code)
	assert.True(t, stderrors.Is(e, apperrors.ErrStorage))
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		hideBody   string
	}{
		{"validation", apperrors.ErrQuoteEmpty, http.StatusUnprocessableEntity, "QuoteEmpty", ""},
		{"conflict", apperrors.ErrConcurrentModification, http.StatusConflict, "ConcurrentModification", ""},
		{"storage hides cause", stderrors.New("pq: deadlock detected"), http.StatusInternalServerError, "Internal server error", "deadlock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(apperrors.ErrorMiddleware(zap.NewNop()))
			r.GET("/x", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			if tt.hideBody != "" {
				assert.NotContains(t, w.Body.String(), tt.hideBody)
			}
		})
	}
}
