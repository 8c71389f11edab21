/**
 * @description
 * This file defines the core domain model for the wallet-service: the user's
 * typing-cash account. The account tracks how many characters the user has typed
 * today, how much of the typing-derived cash allowance has been collected, the
 * state of the ten reward boxes unlocked by typing thresholds, and the combined
 * daily earnings counter enforced by the external cash-validation service.
 *
 * @notes
 * - All cash quantities are plain non-negative integers (one unit = one in-app
 *   "cash"); there is no fractional currency anywhere in this domain.
 * - `int64` is used for every counter so arithmetic against cash amounts never
 *   needs a conversion.
 * - Box states are a strict one-way progression. The daily reset is the only
 *   operation that returns boxes to `locked`.
 */

package domain

import (
	"fmt"
	"time"
)

const (
	// CharsPerCashUnit is how many typed characters earn one unit of collectable cash.
	CharsPerCashUnit = 10

	// TypingCashDailyCap caps how many cash units a day of typing can yield (1000 chars).
	TypingCashDailyCap = 100

	// RewardBoxCount is the number of reward boxes in the unlock sequence.
	RewardBoxCount = 10

	// BoxCharStep is the typed-character gap between consecutive box thresholds.
	BoxCharStep = 100

	// BoxRewardMinCash and BoxRewardMaxCash bound the candidate reward for opening
	// a box (closed range, uniform).
	BoxRewardMinCash = 8
	BoxRewardMaxCash = 11

	// DailyCashCeiling is the combined per-day earnings ceiling across every cash
	// source. The external validation service is the authority for it; the local
	// model only mirrors the confirmed value.
	DailyCashCeiling = 800
)

// BoxState is the unlock state of one reward box.
type BoxState string

const (
	BoxLocked    BoxState = "locked"
	BoxAvailable BoxState = "available"
	BoxCompleted BoxState = "completed"
)

// Valid reports whether s is one of the three known box states.
func (s BoxState) Valid() bool {
	switch s {
	case BoxLocked, BoxAvailable, BoxCompleted:
		return true
	}
	return false
}

// BoxThreshold returns the typed-character count that unlocks the box at index.
// Box 0 unlocks at 100 characters, box 9 at 1000.
func BoxThreshold(index int) int64 {
	return int64(index+1) * BoxCharStep
}

// UserAccount is the sole persistent entity of the wallet-service. It maps to
// the `accounts` table and doubles as the snapshot payload exchanged with the
// account snapshot feed.
type UserAccount struct {
	ID              string                   `json:"id"`
	Email           string                   `json:"email"`
	TotalCash       int64                    `json:"total_cash"`
	TodayCharCount  int64                    `json:"today_char_count"`
	CollectedCash   int64                    `json:"collected_cash"`
	DailyCashEarned int64                    `json:"daily_cash_earned"`
	BoxStates       [RewardBoxCount]BoxState `json:"box_states"`
	LastResetDate   *time.Time               `json:"last_reset_date,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// LockedBoxes returns a fresh all-locked box array.
func LockedBoxes() [RewardBoxCount]BoxState {
	var boxes [RewardBoxCount]BoxState
	for i := range boxes {
		boxes[i] = BoxLocked
	}
	return boxes
}

// NewUserAccount creates the all-zero account written on first authentication.
func NewUserAccount(id, email string, now time.Time) *UserAccount {
	resetDate := DayOf(now)
	return &UserAccount{
		ID:            id,
		Email:         email,
		BoxStates:     LockedBoxes(),
		LastResetDate: &resetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns an independent copy of the account. Box states are an array and
// copy by value; only the reset-date pointer needs duplicating.
func (a *UserAccount) Clone() *UserAccount {
	cp := *a
	if a.LastResetDate != nil {
		d := *a.LastResetDate
		cp.LastResetDate = &d
	}
	return &cp
}

// ReadyCash is how many typing-derived cash units are currently collectable:
// one unit per ten characters typed today, capped at the daily typing allowance,
// minus what was already collected. Never negative.
func (a *UserAccount) ReadyCash() int64 {
	earned := a.TodayCharCount / CharsPerCashUnit
	if earned > TypingCashDailyCap {
		earned = TypingCashDailyCap
	}
	ready := earned - a.CollectedCash
	if ready < 0 {
		return 0
	}
	return ready
}

// PromoteBoxes advances every locked box whose character threshold has been
// reached to available, and returns the promoted indexes in order. Boxes never
// move backward here; completed boxes are untouched.
func (a *UserAccount) PromoteBoxes() []int {
	var promoted []int
	for i := range a.BoxStates {
		if a.BoxStates[i] == BoxLocked && a.TodayCharCount >= BoxThreshold(i) {
			a.BoxStates[i] = BoxAvailable
			promoted = append(promoted, i)
		}
	}
	return promoted
}

// ApplyDailyReset applies the daily-reset transformation in place: today's
// counters return to zero, every box locks again, and total cash is preserved.
func (a *UserAccount) ApplyDailyReset(resetAt time.Time) {
	a.TodayCharCount = 0
	a.CollectedCash = 0
	a.DailyCashEarned = 0
	a.BoxStates = LockedBoxes()
	resetDate := DayOf(resetAt)
	a.LastResetDate = &resetDate
}

// NormalizeBoxStates repairs unknown box-state values (for example from a
// malformed or truncated remote snapshot) by deriving a legal state from the
// character thresholds. Recognized states are left exactly as delivered; a box
// is never promoted to completed by normalization.
func (a *UserAccount) NormalizeBoxStates() {
	for i := range a.BoxStates {
		if a.BoxStates[i].Valid() {
			continue
		}
		if a.TodayCharCount >= BoxThreshold(i) {
			a.BoxStates[i] = BoxAvailable
		} else {
			a.BoxStates[i] = BoxLocked
		}
	}
}

// CheckInvariants verifies the structural invariants that every locally-applied
// mutation must preserve. It is meant as a programming-error assertion after
// engine operations, not as a validation of merged remote snapshots: a remote
// snapshot may legitimately pair its own collected count with a local character
// counter the server has never seen.
func (a *UserAccount) CheckInvariants() error {
	if a.TotalCash < 0 {
		return fmt.Errorf("total cash is negative: %d", a.TotalCash)
	}
	if a.TodayCharCount < 0 {
		return fmt.Errorf("today char count is negative: %d", a.TodayCharCount)
	}
	if a.DailyCashEarned < 0 || a.DailyCashEarned > DailyCashCeiling {
		return fmt.Errorf("daily cash earned out of range: %d", a.DailyCashEarned)
	}
	allowance := a.TodayCharCount / CharsPerCashUnit
	if allowance > TypingCashDailyCap {
		allowance = TypingCashDailyCap
	}
	if a.CollectedCash < 0 || a.CollectedCash > allowance {
		return fmt.Errorf("collected cash %d exceeds allowance %d", a.CollectedCash, allowance)
	}
	for i, state := range a.BoxStates {
		if !state.Valid() {
			return fmt.Errorf("box %d has unknown state %q", i, state)
		}
		if state != BoxLocked && a.TodayCharCount < BoxThreshold(i) {
			return fmt.Errorf("box %d is %s below its threshold (%d < %d)", i, state, a.TodayCharCount, BoxThreshold(i))
		}
	}
	return nil
}

// MustCheckInvariants panics if the account violates an invariant. Reaching the
// panic means a local mutation was written incorrectly.
func (a *UserAccount) MustCheckInvariants() {
	if err := a.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("account %s invariant violation: %v", a.ID, err))
	}
}

// DayOf truncates t to its UTC calendar day. Reset-date comparisons are done at
// day granularity in UTC so every instance agrees on when a day rolled over.
func DayOf(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
