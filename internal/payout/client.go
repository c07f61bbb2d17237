package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Request carries the destination details for a bank/UPI payout.
type Request struct {
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
	AccountNumber string `json:"bank_account,omitempty"`
	IFSC          string `json:"bank_ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	AccountHolder string `json:"account_holder_name,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// Result is the gateway's payout confirmation.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message,omitempty"`
}

// Error means the payout gateway did not confirm moving the money. The burn
// must never be attempted after this error.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payout failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client calls the payment gateway's payout API to move real money out
// before the ledger burn.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Transfer initiates the payout and returns the gateway's transaction id.
// Any non-confirming response is an *Error; the caller treats it as terminal
// for the settlement.
func (c *Client) Transfer(ctx context.Context, req *Request) (*Result, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payout request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/payouts", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create payout request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Info("sending payout request",
		"url", url,
		"reference", req.Reference,
		"amount", req.Amount)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("payout request failed", "error", err, "reference", req.Reference)
		return nil, &Error{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("payout API returned error",
			"status", resp.StatusCode,
			"response", string(respBody),
			"reference", req.Reference)
		return nil, &Error{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payout response: %w", err)
	}

	if !result.Success {
		c.logger.Error("payout not confirmed by gateway",
			"reference", req.Reference,
			"message", result.Message)
		return nil, &Error{StatusCode: resp.StatusCode, Message: result.Message}
	}

	c.logger.Info("payout confirmed",
		"reference", req.Reference,
		"transaction_id", result.TransactionID)

	return &result, nil
}
