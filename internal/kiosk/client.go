package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/shopspring/decimal"
)

const (
	DirectionIn  = "in"  // platform takes money back into the pool
	DirectionOut = "out" // platform pays out of the pool
)

var ErrKioskRejected = errors.New("kiosk balance adjustment rejected")

// Client is the external funding pool debited for every commission, rebate and
// level-up payout. A failed or rejected adjustment must abort the dependent
// payout.
type Client interface {
	AdjustBalance(ctx context.Context, direction string, amount decimal.Decimal, note string) (*AdjustResult, error)
}

type AdjustResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type adjustRequest struct {
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
}

// HTTPClient talks to the kiosk balance service over HTTP with a bounded
// timeout; a timeout counts as a failed adjustment, never an indefinite wait.
// Requests are sent as compact JWS signed with the shared secret so the kiosk
// can authenticate the caller and reject tampered amounts.
type HTTPClient struct {
	baseURL string
	signer  jose.Signer
	client  *http.Client
}

func NewHTTPClient(baseURL, secret string, timeout time.Duration) (*HTTPClient, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build kiosk signer: %w", err)
	}
	return &HTTPClient{
		baseURL: baseURL,
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) AdjustBalance(ctx context.Context, direction string, amount decimal.Decimal, note string) (*AdjustResult, error) {
	payload, err := json.Marshal(adjustRequest{Direction: direction, Amount: amount, Note: note})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kiosk request: %w", err)
	}
	signed, err := c.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign kiosk request: %w", err)
	}
	serialized, err := signed.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kiosk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/kiosk/balance", bytes.NewBufferString(serialized))
	if err != nil {
		return nil, fmt.Errorf("failed to create kiosk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/jose")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiosk request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read kiosk response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kiosk returned status %d: %s", resp.StatusCode, string(body))
	}

	var result AdjustResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode kiosk response: %w", err)
	}
	if !result.Success {
		return &result, fmt.Errorf("%w: %s", ErrKioskRejected, result.Message)
	}
	return &result, nil
}
