package gamefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTurnover is one account's wagering activity in one game category
// over the queried period.
type CategoryTurnover struct {
	AccountID string          `json:"account_id"`
	Category  string          `json:"category"`
	Turnover  decimal.Decimal `json:"turnover"`
	WinLoss   decimal.Decimal `json:"win_loss"`
}

// Client reads the external game-turnover feed. TurnoverSince backs the
// withdrawal gate; DailyTurnover and RangeTurnover back the rebate and
// commission turnover modes.
type Client interface {
	TurnoverSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error)
	DailyTurnover(ctx context.Context, date time.Time) ([]CategoryTurnover, error)
	RangeTurnover(ctx context.Context, from, to time.Time) ([]CategoryTurnover, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode feed response: %w", err)
	}
	return nil
}

func (c *HTTPClient) TurnoverSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("account_id", accountID)
	params.Set("since", since.Format(time.RFC3339))

	var result struct {
		Turnover decimal.Decimal `json:"turnover"`
	}
	if err := c.get(ctx, "/turnover/aggregate", params, &result); err != nil {
		return decimal.Zero, err
	}
	return result.Turnover, nil
}

func (c *HTTPClient) DailyTurnover(ctx context.Context, date time.Time) ([]CategoryTurnover, error) {
	params := url.Values{}
	params.Set("date", date.Format("2006-01-02"))

	var rows []CategoryTurnover
	if err := c.get(ctx, "/turnover/daily", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) RangeTurnover(ctx context.Context, from, to time.Time) ([]CategoryTurnover, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var rows []CategoryTurnover
	if err := c.get(ctx, "/turnover/range", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
