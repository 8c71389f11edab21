/**
 * @description
 * Script to delete platform accounts by their account ID. Account deletion is
 * handled by the platform admin API, not the wallet-service; this tool lets you
 * clean up test accounts so you can reuse email addresses for testing.
 *
 * Usage:
 *   go run ./tools/deleteaccount <account-id>
 *
 * @dependencies
 * - Environment variables: PLATFORM_ADMIN_API_KEY, PLATFORM_ADMIN_BASE_URL
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// AdminError represents an error response from the platform admin API
type AdminError struct {
	Errors []struct {
		Title  string `json:"title"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// AccountInfo represents basic account information for display
type AccountInfo struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Email     string `json:"email"`
			TotalCash int64  `json:"total_cash"`
			Status    string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./tools/deleteaccount <account-id>")
		fmt.Println("Example: go run ./tools/deleteaccount user_2bQxT8vLm")
		os.Exit(1)
	}

	accountID := os.Args[1]

	// Load environment variables from .env file if it exists
	loadEnvFile("../.env")
	loadEnvFile(".env")

	apiKey := os.Getenv("PLATFORM_ADMIN_API_KEY")
	baseURL := os.Getenv("PLATFORM_ADMIN_BASE_URL")

	if apiKey == "" {
		log.Fatal("PLATFORM_ADMIN_API_KEY environment variable is required")
	}

	if baseURL == "" {
		baseURL = "https://admin.sandbox.apptech.dev"
		fmt.Println("Using default sandbox URL:", baseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// First, get account info to confirm deletion
	fmt.Printf("Fetching account information for ID: %s\n", accountID)
	accountInfo, err := getAccountInfo(ctx, baseURL, apiKey, accountID)
	if err != nil {
		log.Fatalf("Failed to fetch account info: %v", err)
	}

	fmt.Printf("Account Details:\n")
	fmt.Printf("  ID: %s\n", accountInfo.Data.ID)
	fmt.Printf("  Type: %s\n", accountInfo.Data.Type)
	fmt.Printf("  Email: %s\n", accountInfo.Data.Attributes.Email)
	fmt.Printf("  Total Cash: %d\n", accountInfo.Data.Attributes.TotalCash)
	fmt.Printf("  Status: %s\n", accountInfo.Data.Attributes.Status)

	// Confirm deletion
	fmt.Printf("\nAre you sure you want to delete this account? (yes/no): ")
	var confirmation string
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		fmt.Println("Deletion cancelled.")
		os.Exit(0)
	}

	fmt.Printf("Deleting account %s...\n", accountID)
	if err := deleteAccount(ctx, baseURL, apiKey, accountID); err != nil {
		log.Fatalf("Failed to delete account: %v", err)
	}

	fmt.Printf("Successfully deleted account %s\n", accountID)
	fmt.Printf("You can now reuse the email address: %s\n", accountInfo.Data.Attributes.Email)
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // File doesn't exist, that's okay
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
}

// getAccountInfo fetches account information before deletion
func getAccountInfo(ctx context.Context, baseURL, apiKey, accountID string) (*AccountInfo, error) {
	url := fmt.Sprintf("%s/api/v1/accounts/%s", baseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-admin-key", apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var adminErr AdminError
		if err := json.Unmarshal(body, &adminErr); err == nil && len(adminErr.Errors) > 0 {
			return nil, fmt.Errorf("admin API error: %s - %s", adminErr.Errors[0].Title, adminErr.Errors[0].Detail)
		}
		return nil, fmt.Errorf("admin API error with status %d: %s", resp.StatusCode, string(body))
	}

	var accountInfo AccountInfo
	if err := json.Unmarshal(body, &accountInfo); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &accountInfo, nil
}

// deleteAccount deletes the account through the platform admin API
func deleteAccount(ctx context.Context, baseURL, apiKey, accountID string) error {
	url := fmt.Sprintf("%s/api/v1/accounts/%s", baseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-admin-key", apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		var adminErr AdminError
		if err := json.Unmarshal(body, &adminErr); err == nil && len(adminErr.Errors) > 0 {
			return fmt.Errorf("admin API error: %s - %s", adminErr.Errors[0].Title, adminErr.Errors[0].Detail)
		}
		return fmt.Errorf("admin API error with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
