/**
 * @description
 * Consumer side of the account snapshot feed. The platform publishes an
 * account snapshot event whenever an account document changes server-side
 * (ordinary writes on `account.snapshot.updated`, the daily reset on
 * `account.reset.completed`); this handler decodes the typed payload and
 * hands it to the session manager for per-field reconciliation.
 *
 * Permanently-bad payloads are acknowledged to keep the queue draining;
 * only transient processing failures are nacked back for redelivery.
 */

package app

import (
	"encoding/json"
	"log"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

// SnapshotDispatcher is the slice of the session manager the consumer needs.
type SnapshotDispatcher interface {
	DispatchSnapshot(accountID string, remote *domain.UserAccount) bool
}

// AccountSnapshotConsumer handles account snapshot feed deliveries.
type AccountSnapshotConsumer struct {
	sessions SnapshotDispatcher
}

// NewAccountSnapshotConsumer creates a consumer dispatching into the session manager.
func NewAccountSnapshotConsumer(sessions SnapshotDispatcher) *AccountSnapshotConsumer {
	return &AccountSnapshotConsumer{sessions: sessions}
}

// HandleMessage processes one delivery. The returned bool is the ack/nack
// verdict: true acknowledges, false requeues.
func (c *AccountSnapshotConsumer) HandleMessage(body []byte) bool {
	var event domain.AccountSnapshotEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=snapshot_consumer msg=\"failed to unmarshal payload; dropping\" err=%v", err)
		return true
	}

	if event.AccountID == "" || event.Account == nil {
		log.Printf("level=warn component=snapshot_consumer msg=\"snapshot event missing account; dropping\" account_id=%q", event.AccountID)
		return true
	}
	if event.Account.ID == "" {
		event.Account.ID = event.AccountID
	}
	if event.Account.ID != event.AccountID {
		log.Printf("level=warn component=snapshot_consumer msg=\"snapshot account id mismatch; dropping\" account_id=%s payload_id=%s", event.AccountID, event.Account.ID)
		return true
	}

	applied := c.sessions.DispatchSnapshot(event.AccountID, event.Account)
	if !applied {
		// No open session, or nothing the server owns differed. Either way the
		// delivery is done; the next session open reads the store directly.
		log.Printf("level=info component=snapshot_consumer msg=\"snapshot not applied\" account_id=%s", event.AccountID)
	}
	return true
}
