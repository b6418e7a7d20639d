package logger

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	assert.Equal(t, "unknown", RequestID(context.Background()))
	assert.Equal(t, "req-1", RequestID(WithContext(context.Background(), "req-1")))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "unknown", RequestID(c))

	c.Request = c.Request.WithContext(WithContext(c.Request.Context(), "from-request"))
	assert.Equal(t, "from-request", RequestID(c))

	c.Set(RequestIDKey, "from-gin")
	assert.Equal(t, "from-gin", RequestID(c))
}

func TestFor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	For(WithContext(context.Background(), "req-42"), base).Warn("invoice creation failed")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "invoice creation failed", entries[0].Message)
		assert.Equal(t, "req-42", entries[0].ContextMap()[RequestIDKey])
	}
}
