/**
 * @description
 * Per-field ownership merge for account snapshots. A remote snapshot pushed by
 * the account store is authoritative for everything the server owns (cash
 * totals, daily earnings, collected count, box states, reset date, identity
 * fields) but must never rewind the locally-owned typing counter: a
 * slightly-stale snapshot arriving mid-burst would otherwise make the visible
 * count jump backward. The typing counter leaves local ownership only through
 * the explicit daily-reset signal, detected as a newer reset date on the
 * remote side.
 *
 * Snapshots are applied last-write-wins per server-owned field, with no
 * ordering guarantee between snapshots. Merge reports whether anything the
 * server owns actually differed so callers can skip redundant notifications.
 *
 * @dependencies
 * - internal/domain: Account model and reset transformation.
 */

package reconcile

import (
	"time"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

// Result describes one merge of a remote snapshot into local session state.
type Result struct {
	// Account is the merged state. Only meaningful when Changed is true;
	// callers keep their current state otherwise.
	Account *domain.UserAccount

	// Changed reports whether any server-owned field differed from local,
	// or a reset zeroed the typing counter.
	Changed bool

	// ResetDetected reports that the remote snapshot carried a newer reset
	// date, i.e. the daily reset ran since the local state was last aligned.
	ResetDetected bool
}

// Merge applies the ownership table to a remote snapshot received while the
// local session is active. Neither input is mutated.
func Merge(local, remote *domain.UserAccount) Result {
	rem := remote.Clone()
	rem.NormalizeBoxStates()

	merged := local.Clone()
	merged.ID = rem.ID
	merged.Email = rem.Email
	merged.TotalCash = rem.TotalCash
	merged.DailyCashEarned = rem.DailyCashEarned
	merged.CollectedCash = rem.CollectedCash
	merged.BoxStates = rem.BoxStates
	merged.LastResetDate = rem.LastResetDate
	merged.CreatedAt = rem.CreatedAt
	merged.UpdatedAt = rem.UpdatedAt

	resetDetected := newerResetDay(local.LastResetDate, rem.LastResetDate)
	if resetDetected {
		// The reset signal is the one path that zeroes the local typing
		// counter; the generic sync channel never touches it.
		merged.TodayCharCount = 0
	}

	changed := resetDetected ||
		local.ID != merged.ID ||
		local.Email != merged.Email ||
		local.TotalCash != merged.TotalCash ||
		local.DailyCashEarned != merged.DailyCashEarned ||
		local.CollectedCash != merged.CollectedCash ||
		local.BoxStates != merged.BoxStates ||
		!equalDate(local.LastResetDate, merged.LastResetDate) ||
		!local.CreatedAt.Equal(merged.CreatedAt)

	return Result{Account: merged, Changed: changed, ResetDetected: resetDetected}
}

// newerResetDay reports whether the remote reset date falls on a later calendar
// day than the local one. A missing local date cannot be compared and is not
// treated as a reset; the server-owned counters still adopt normally.
func newerResetDay(local, remote *time.Time) bool {
	if remote == nil || local == nil {
		return false
	}
	return domain.DayOf(*remote).After(domain.DayOf(*local))
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
