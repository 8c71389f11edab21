/**
 * @description
 * The accrual engine turns raw typing deltas and box-open gestures into account
 * state changes. Purely local rules (character counting, box unlocking, the
 * one-tap-one-coin collect) are applied directly; anything that credits cash
 * against the combined daily ceiling is deferred to the external cash-validation
 * service, whose returned totals are adopted verbatim.
 *
 * Expected outcomes (box not available, daily limit reached) are typed errors,
 * not exceptions-as-control-flow; transport failures are wrapped as transient
 * and leave the account untouched so the caller can retry.
 *
 * @dependencies
 * - math/rand: Candidate reward amounts.
 * - internal/domain: Account model and invariants.
 * - pkg/validationclient: The external cash-validation authority.
 */

package accrual

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
	"github.com/zpdl768/apptech-wallet-service/pkg/validationclient"
)

// ErrBoxNotAvailable is returned when the requested box is locked, already
// completed, or out of range.
var ErrBoxNotAvailable = errors.New("box is not available")

// DailyLimitError is the validator's explicit refusal to credit a reward
// because the user hit the combined daily ceiling. Not retryable until the
// next daily reset.
type DailyLimitError struct {
	Message        string
	RemainingDaily int64
}

func (e *DailyLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "daily cash limit reached"
}

// TransientError wraps a transport or validator failure. The account state is
// unchanged and the caller may retry.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient validation failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// RewardOutcome describes a confirmed box reward. TotalCash and DailyCashEarned
// are the validator's authoritative values, never recomputed locally.
type RewardOutcome struct {
	BoxIndex        int   `json:"box_index"`
	CandidateAmount int64 `json:"candidate_amount"`
	AmountCredited  int64 `json:"amount_credited"`
	TotalCash       int64 `json:"total_cash"`
	DailyCashEarned int64 `json:"daily_cash_earned"`
	RemainingDaily  int64 `json:"remaining_daily"`
}

// Engine applies accrual operations to an account. It holds no per-account
// state; callers are responsible for serializing mutations of a given account
// (there is exactly one logical writer per session).
type Engine struct {
	validator *validationclient.Client
}

// NewEngine creates an accrual engine backed by the given validation client.
func NewEngine(validator *validationclient.Client) *Engine {
	return &Engine{validator: validator}
}

// ApplyTypingDelta adds typed characters to today's count and promotes every
// locked box whose threshold the new count reaches. Non-positive deltas are
// deletions or no-ops and are silently ignored. Purely local: no cash is
// credited here and no external call is made.
func (e *Engine) ApplyTypingDelta(acct *domain.UserAccount, addedChars int64) []int {
	if addedChars <= 0 {
		return nil
	}
	acct.TodayCharCount += addedChars
	promoted := acct.PromoteBoxes()
	acct.MustCheckInvariants()
	return promoted
}

// CollectReadyCash converts one unit of the typing-derived allowance into total
// cash: one tap, one coin. Returns the amount collected (0 or 1). When nothing
// is ready the account is unchanged.
func (e *Engine) CollectReadyCash(acct *domain.UserAccount) int64 {
	if acct.ReadyCash() <= 0 {
		return 0
	}
	acct.CollectedCash++
	acct.TotalCash++
	acct.MustCheckInvariants()
	return 1
}

// RequestBoxReward opens an available box. A candidate amount is drawn
// uniformly from the closed reward range and submitted to the validation
// service; only its verdict decides what is credited. On success the box
// completes and the validator's totals are adopted. On denial the box stays
// available. On transport failure nothing changes.
//
// The account must be a copy private to this call when other mutations can run
// concurrently; the session layer hands the engine a snapshot and re-integrates
// the outcome under its own lock.
func (e *Engine) RequestBoxReward(ctx context.Context, acct *domain.UserAccount, boxIndex int) (*RewardOutcome, error) {
	if boxIndex < 0 || boxIndex >= domain.RewardBoxCount {
		return nil, ErrBoxNotAvailable
	}
	if acct.BoxStates[boxIndex] != domain.BoxAvailable {
		return nil, ErrBoxNotAvailable
	}

	candidate := rewardCandidate()
	result, err := e.validator.ValidateCashEarning(ctx, acct.ID, candidate)
	if err != nil {
		return nil, &TransientError{Cause: err}
	}

	if !result.Allowed {
		return nil, &DailyLimitError{
			Message:        result.Message,
			RemainingDaily: result.RemainingDaily,
		}
	}

	credited := result.NewDailyCashEarned - acct.DailyCashEarned
	if credited < 0 {
		credited = 0
	}

	acct.BoxStates[boxIndex] = domain.BoxCompleted
	acct.TotalCash = result.NewTotalCash
	acct.DailyCashEarned = result.NewDailyCashEarned

	return &RewardOutcome{
		BoxIndex:        boxIndex,
		CandidateAmount: candidate,
		AmountCredited:  credited,
		TotalCash:       result.NewTotalCash,
		DailyCashEarned: result.NewDailyCashEarned,
		RemainingDaily:  result.RemainingDaily,
	}, nil
}

// rewardCandidate draws the advisory reward amount, uniform over the closed
// range [BoxRewardMinCash, BoxRewardMaxCash].
func rewardCandidate() int64 {
	return domain.BoxRewardMinCash + rand.Int63n(domain.BoxRewardMaxCash-domain.BoxRewardMinCash+1)
}
