// services/prices.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// PriceFeedClient fetches spot prices from the configured feed. Settlement
// and bet entry both refuse to proceed on feed failure — prices are never
// fabricated.
type PriceFeedClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewPriceFeedClient() *PriceFeedClient {
	baseURL := os.Getenv("PRICE_FEED_URL")
	if baseURL == "" {
		log.Fatal("PRICE_FEED_URL environment variable is required")
	}
	return &PriceFeedClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetPrices fetches current prices for the given symbols in one call.
func (c *PriceFeedClient) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	u, err := url.Parse(fmt.Sprintf("%s/price", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed URL: %w", err)
	}
	q := u.Query()
	q.Set("symbols", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call price feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("price feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Prices map[string]float64 `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode price feed response: %w", err)
	}

	for _, sym := range symbols {
		if price, ok := response.Prices[sym]; !ok || price <= 0 {
			return nil, fmt.Errorf("price feed returned no usable price for %s", sym)
		}
	}
	return response.Prices, nil
}

// GetPrice fetches one symbol.
func (c *PriceFeedClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.GetPrices(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	return prices[symbol], nil
}

// GetPricesWithRetry retries transient feed failures with a short backoff.
func (c *PriceFeedClient) GetPricesWithRetry(ctx context.Context, symbols []string, attempts int) (map[string]float64, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * 2 * time.Second):
			}
		}
		prices, err := c.GetPrices(ctx, symbols)
		if err == nil {
			return prices, nil
		}
		lastErr = err
		log.Printf("⚠️ [PRICES] attempt %d/%d failed: %v", i+1, attempts, err)
	}
	return nil, lastErr
}
