/**
 * @description
 * This package provides the client for the platform's cash-validation service,
 * the sole authority for crediting cash against the combined daily earnings
 * ceiling. Every box-reward credit must go through it; the wallet-service never
 * assumes a credit succeeded without checking the `allowed` flag in the result.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package validationclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the cash-validation API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new cash-validation API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ValidationRequest is the payload sent for one credit attempt.
type ValidationRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// ValidationResult is the validator's verdict on one credit attempt. On
// `allowed = true` the new totals are authoritative and must be adopted as-is;
// on `allowed = false` the message explains the denial (daily ceiling reached).
type ValidationResult struct {
	Allowed            bool   `json:"allowed"`
	NewTotalCash       int64  `json:"new_total_cash"`
	NewDailyCashEarned int64  `json:"new_daily_cash_earned"`
	RemainingDaily     int64  `json:"remaining_daily"`
	Message            string `json:"message"`
}

// ErrorResponse represents an error envelope from the validation API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("validation api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown validation api error"
}

// ValidateCashEarning asks the validation service to credit `amount` cash to the
// user. The verdict distinguishes an explicit denial (allowed=false, a normal
// outcome) from transport or server failures (returned as errors).
func (c *Client) ValidateCashEarning(ctx context.Context, userID string, amount int64) (*ValidationResult, error) {
	payload := ValidationRequest{UserID: userID, Amount: amount}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/cash-validations", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create validation request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-validator-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute validation request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=validation_client op=validate status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		return nil, &errResp
	}

	var result ValidationResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode validation result: %w", err)
	}

	return &result, nil
}
