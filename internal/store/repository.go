/**
 * @description
 * This file defines the `Repository` interface for the account document store.
 * The store contract is deliberately small: read one account by id, create the
 * initial document, and apply partial-field updates. Server-side writes flow
 * back asynchronously through the account snapshot feed, so the store is
 * treated as eventually consistent; update failures are surfaced as errors but
 * must never crash the accrual engine.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the account model.
 */

package store

import (
	"context"
	"time"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

// AccountPatch selects the fields of a partial update. Nil fields are left
// untouched; a patch with nothing set is a caller bug.
type AccountPatch struct {
	Email           *string
	TotalCash       *int64
	TodayCharCount  *int64
	CollectedCash   *int64
	DailyCashEarned *int64
	BoxStates       *[domain.RewardBoxCount]domain.BoxState
	LastResetDate   *time.Time
}

// Repository defines the set of methods for interacting with the account store.
type Repository interface {
	// GetAccount reads one account document by id. Returns ErrAccountNotFound
	// when no document exists.
	GetAccount(ctx context.Context, id string) (*domain.UserAccount, error)

	// CreateAccount writes the initial all-zero document created on first
	// authentication. Returns ErrAccountExists when the id is already taken.
	CreateAccount(ctx context.Context, acct *domain.UserAccount) error

	// UpdateAccountFields applies a partial-field update to one account.
	UpdateAccountFields(ctx context.Context, id string, patch AccountPatch) error
}
