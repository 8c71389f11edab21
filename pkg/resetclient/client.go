/**
 * @description
 * Client for the platform's daily-reset service. The wallet-service never
 * performs the reset itself; it asks this service to detect and execute a
 * missed reset for a user (typically at session open and from the scheduled
 * sweep) and then reacts to the zeroed counters arriving through the account
 * snapshot feed.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package resetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the daily-reset API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new daily-reset API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResetRequest identifies the user whose reset should be checked.
type ResetRequest struct {
	UserID string `json:"user_id"`
}

// ResetResult reports whether a reset was performed and the reset date now on
// record for the user.
type ResetResult struct {
	ResetPerformed bool       `json:"reset_performed"`
	LastResetDate  *time.Time `json:"last_reset_date,omitempty"`
}

// ErrorResponse represents an error envelope from the daily-reset API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("reset api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown reset api error"
}

// EnsureDailyReset asks the reset service to perform any reset the user is due.
// A performed reset also rewrites the account document, so the updated counters
// reach this service through the snapshot feed rather than this response.
func (c *Client) EnsureDailyReset(ctx context.Context, userID string) (*ResetResult, error) {
	body, err := json.Marshal(ResetRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/daily-resets", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create reset request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-validator-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute reset request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reset response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		return nil, &errResp
	}

	var result ResetResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode reset result: %w", err)
	}

	return &result, nil
}
