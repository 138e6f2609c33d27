package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client — best-effort клиент курса конвертации для витрины
// отказ клиента никогда не блокирует и не откатывает корзину:
// вызывающие просто не показывают конвертацию
type Client struct {
	url  string
	http *http.Client
}

// New создаёт клиента курса
// таймаут короткий: значение чисто декоративное и ждать его не стоит
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// CoinPerEGP запрашивает текущий курс коина
func (c *Client) CoinPerEGP(ctx context.Context) (float64, error) {
	const op = "rates.Client.CoinPerEGP"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	// бэкенд отдаёт курс строкой, поэтому json.Number
	var payload struct {
		CoinPerEGP json.Number `json:"coin_per_egp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	rate, err := payload.CoinPerEGP.Float64()
	if err != nil {
		return 0, fmt.Errorf("%s: bad rate value %q: %w", op, payload.CoinPerEGP.String(), err)
	}

	return rate, nil
}
