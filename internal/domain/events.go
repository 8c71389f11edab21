/**
 * @description
 * Event payloads exchanged over RabbitMQ. The wallet-service publishes wallet
 * events (cash collected, box completed, daily limit reached) and consumes the
 * account snapshot feed that the platform emits whenever an account document
 * changes server-side.
 *
 * @notes
 * - Every payload is a named struct; no untyped map crosses the broker boundary.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published by this service.
const (
	EventCashCollected     = "wallet.cash.collected"
	EventBoxCompleted      = "wallet.box.completed"
	EventDailyLimitReached = "wallet.daily_limit.reached"
)

// Routing keys consumed from the account snapshot feed.
const (
	EventAccountSnapshotUpdated = "account.snapshot.updated"
	EventAccountResetCompleted  = "account.reset.completed"
)

// CashCollectedEvent is published after a successful tap-to-collect.
type CashCollectedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	AccountID     string    `json:"account_id"`
	Amount        int64     `json:"amount"`
	TotalCash     int64     `json:"total_cash"`
	CollectedCash int64     `json:"collected_cash"`
	Timestamp     time.Time `json:"timestamp"`
}

// BoxCompletedEvent is published after the validation service confirms a box reward.
type BoxCompletedEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	AccountID       string    `json:"account_id"`
	BoxIndex        int       `json:"box_index"`
	AmountCredited  int64     `json:"amount_credited"`
	TotalCash       int64     `json:"total_cash"`
	DailyCashEarned int64     `json:"daily_cash_earned"`
	Timestamp       time.Time `json:"timestamp"`
}

// DailyLimitReachedEvent is published once per day when the confirmed daily
// earnings first reach the ceiling.
type DailyLimitReachedEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	AccountID       string    `json:"account_id"`
	DailyCashEarned int64     `json:"daily_cash_earned"`
	Timestamp       time.Time `json:"timestamp"`
}

// AccountSnapshotEvent is the payload of the account snapshot feed. The platform
// emits it on `account.snapshot.updated` for ordinary document changes and on
// `account.reset.completed` after the daily reset rewrites the document.
type AccountSnapshotEvent struct {
	AccountID string       `json:"account_id"`
	Account   *UserAccount `json:"account"`
	EmittedAt time.Time    `json:"emitted_at"`
}
