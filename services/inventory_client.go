package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/shopspring/decimal"
)

// InventoryClient checks salable stock against the inventory service over HTTP.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInventoryClient creates a new InventoryClient
func NewInventoryClient(baseURL string) *InventoryClient {
	return &InventoryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// StockInfo is the response from GET /inventory/:sku
type StockInfo struct {
	SKU       string          `json:"sku"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// GetStock fetches inventory for a SKU
func (c *InventoryClient) GetStock(ctx context.Context, sku string) (*StockInfo, error) {
	endpoint := fmt.Sprintf("%s/inventory/%s", c.baseURL, url.PathEscape(sku))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("inventory service request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("inventory", sku)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Storage(fmt.Errorf("inventory service returned %d", resp.StatusCode))
	}

	var info StockInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &info, nil
}

// CheckStock fails with InvalidQuantity when fewer than qty units are available.
func (c *InventoryClient) CheckStock(ctx context.Context, sku string, qty decimal.Decimal) error {
	info, err := c.GetStock(ctx, sku)
	if err != nil {
		return err
	}
	if info.Available.LessThan(qty) {
		return apperrors.ErrInvalidQuantity.Withf("Invalid quantity: insufficient stock").
			WithDetail("sku", sku).
			WithDetail("qty", qty.String()).
			WithDetail("available", info.Available.String())
	}
	return nil
}
