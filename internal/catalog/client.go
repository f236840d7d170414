// Package catalog talks to the design catalog service, which owns design base prices.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type designResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"basePrice"`
}

// BasePrice returns the catalog price of designID. An unknown design yields domain.ErrNotFound.
func (c *Client) BasePrice(ctx context.Context, designID string) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/designs/" + url.PathEscape(designID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog request for design %s failed: %w", designID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, fmt.Errorf("design %s: %w", designID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("Catalog returned unexpected status", zap.String("design_id", designID), zap.Int("status", resp.StatusCode))
		return decimal.Zero, fmt.Errorf("catalog returned status %d for design %s", resp.StatusCode, designID)
	}

	var design designResponse
	if err := json.NewDecoder(resp.Body).Decode(&design); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode catalog response for design %s: %w", designID, err)
	}
	if design.BasePrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("catalog returned negative base price %s for design %s", design.BasePrice, designID)
	}
	return design.BasePrice, nil
}
