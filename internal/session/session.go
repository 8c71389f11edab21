/**
 * @description
 * WalletSession is the per-user state owner for the accrual core. It is the one
 * logical writer of the in-memory account: typing deltas, collect taps, box
 * rewards and remote snapshot reconciliation all serialize through its mutex,
 * while reads hand out copies. Observers subscribe for notified-on-change
 * snapshots through buffered channels with an unsubscribe handle tied to their
 * own lifetime.
 *
 * Persistence is optimistic: a failed store write keeps the local value and
 * lets the next successful reconciliation correct it. Typing-derived writes are
 * coalesced behind a debounce timer so a burst of keystrokes produces one
 * partial-field update instead of one per keystroke.
 *
 * @dependencies
 * - internal/accrual: The engine applying accrual rules.
 * - internal/reconcile: Per-field ownership merge for remote snapshots.
 * - internal/store: The account document store.
 * - pkg/rabbitmq: Wallet event publication (fire-and-forget).
 */

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zpdl768/apptech-wallet-service/internal/accrual"
	"github.com/zpdl768/apptech-wallet-service/internal/domain"
	"github.com/zpdl768/apptech-wallet-service/internal/reconcile"
	"github.com/zpdl768/apptech-wallet-service/internal/store"
	"github.com/zpdl768/apptech-wallet-service/pkg/rabbitmq"
)

// ErrSessionClosed is returned by operations on a torn-down session.
var ErrSessionClosed = errors.New("wallet session is closed")

// subscriberBuffer is the channel capacity per observer. A slow observer loses
// intermediate snapshots, never blocks the writer.
const subscriberBuffer = 8

const persistTimeout = 10 * time.Second

// WalletSession owns the live account state for one authenticated user.
type WalletSession struct {
	userID   string
	engine   *accrual.Engine
	repo     store.Repository
	producer rabbitmq.Publisher
	exchange string
	debounce time.Duration

	mu            sync.Mutex
	acct          *domain.UserAccount
	subscribers   map[int]chan *domain.UserAccount
	nextSubID     int
	flushTimer    *time.Timer
	typingDirty   bool
	limitNotified bool
	closed        bool
	lastTouched   time.Time
}

// NewWalletSession wraps a freshly loaded account in a session.
func NewWalletSession(acct *domain.UserAccount, engine *accrual.Engine, repo store.Repository, producer rabbitmq.Publisher, exchange string, debounce time.Duration) *WalletSession {
	return &WalletSession{
		userID:        acct.ID,
		engine:        engine,
		repo:          repo,
		producer:      producer,
		exchange:      exchange,
		debounce:      debounce,
		acct:          acct,
		subscribers:   make(map[int]chan *domain.UserAccount),
		limitNotified: acct.DailyCashEarned >= domain.DailyCashCeiling,
		lastTouched:   time.Now(),
	}
}

// UserID returns the owning user's id.
func (s *WalletSession) UserID() string {
	return s.userID
}

// Snapshot returns a copy of the current account state.
func (s *WalletSession) Snapshot() *domain.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouched = time.Now()
	return s.acct.Clone()
}

// LastTouched reports when the session last served an operation.
func (s *WalletSession) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

// Subscribe registers an observer. The returned channel receives account
// snapshots on every state change; the returned func unsubscribes and must be
// called before the observer goes away.
func (s *WalletSession) Subscribe() (<-chan *domain.UserAccount, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.UserAccount, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// ApplyTypingDelta adds typed characters to today's count. Non-positive deltas
// (deletions) are ignored. The mutation is purely local; persistence is
// deferred behind the debounce timer.
func (s *WalletSession) ApplyTypingDelta(addedChars int64) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastTouched = time.Now()

	if addedChars <= 0 {
		return s.acct.Clone(), nil
	}

	s.engine.ApplyTypingDelta(s.acct, addedChars)
	s.typingDirty = true
	s.scheduleFlushLocked()
	s.notifyLocked()
	return s.acct.Clone(), nil
}

// CollectReadyCash converts one unit of the typing allowance into total cash.
// The returned amount is 0 when nothing is ready. The store write and the
// wallet event are fire-and-forget; a write failure keeps the optimistic local
// value.
func (s *WalletSession) CollectReadyCash(ctx context.Context) (int64, *domain.UserAccount, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, nil, ErrSessionClosed
	}
	s.lastTouched = time.Now()

	collected := s.engine.CollectReadyCash(s.acct)
	if collected == 0 {
		snap := s.acct.Clone()
		s.mu.Unlock()
		return 0, snap, nil
	}

	s.notifyLocked()
	snap := s.acct.Clone()
	s.mu.Unlock()

	s.persist(ctx, store.AccountPatch{
		TotalCash:     &snap.TotalCash,
		CollectedCash: &snap.CollectedCash,
	}, "collect")

	s.publish(domain.EventCashCollected, domain.CashCollectedEvent{
		EventID:       uuid.New(),
		AccountID:     s.userID,
		Amount:        collected,
		TotalCash:     snap.TotalCash,
		CollectedCash: snap.CollectedCash,
		Timestamp:     time.Now().UTC(),
	})

	return collected, snap, nil
}

// OpenBox requests the reward for one available box. The validator call runs
// against a private copy of the account outside the session lock, so typing can
// continue while the request is in flight; the confirmed outcome is
// re-integrated under the lock afterwards.
func (s *WalletSession) OpenBox(ctx context.Context, boxIndex int) (*accrual.RewardOutcome, *domain.UserAccount, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrSessionClosed
	}
	s.lastTouched = time.Now()
	working := s.acct.Clone()
	s.mu.Unlock()

	outcome, err := s.engine.RequestBoxReward(ctx, working, boxIndex)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrSessionClosed
	}
	// Forward-only: the box may already be completed through a remote snapshot
	// that raced this call; adopting the validator totals is still correct
	// because they are authoritative.
	s.acct.BoxStates[boxIndex] = domain.BoxCompleted
	s.acct.TotalCash = outcome.TotalCash
	s.acct.DailyCashEarned = outcome.DailyCashEarned
	limitEvent := s.limitEventLocked()
	s.notifyLocked()
	snap := s.acct.Clone()
	s.mu.Unlock()

	s.persist(ctx, store.AccountPatch{
		TotalCash:       &snap.TotalCash,
		DailyCashEarned: &snap.DailyCashEarned,
		BoxStates:       &snap.BoxStates,
	}, "box_reward")

	s.publish(domain.EventBoxCompleted, domain.BoxCompletedEvent{
		EventID:         uuid.New(),
		AccountID:       s.userID,
		BoxIndex:        boxIndex,
		AmountCredited:  outcome.AmountCredited,
		TotalCash:       snap.TotalCash,
		DailyCashEarned: snap.DailyCashEarned,
		Timestamp:       time.Now().UTC(),
	})
	if limitEvent != nil {
		s.publish(domain.EventDailyLimitReached, *limitEvent)
	}

	return outcome, snap, nil
}

// ApplyRemoteSnapshot merges an authoritative snapshot into the session per the
// ownership table. Returns whether anything changed (observers are only
// notified then).
func (s *WalletSession) ApplyRemoteSnapshot(remote *domain.UserAccount) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	res := reconcile.Merge(s.acct, remote)
	if !res.Changed {
		s.mu.Unlock()
		return false
	}

	s.acct = res.Account
	var limitEvent *domain.DailyLimitReachedEvent
	if res.ResetDetected {
		// The reset zeroed the typing counter; a pending debounced write
		// would resurrect the pre-reset count.
		s.typingDirty = false
		s.stopFlushLocked()
		s.limitNotified = false
		log.Printf("level=info component=session msg=\"daily reset applied from snapshot\" user_id=%s", s.userID)
	} else {
		limitEvent = s.limitEventLocked()
	}
	s.notifyLocked()
	s.mu.Unlock()

	if limitEvent != nil {
		s.publish(domain.EventDailyLimitReached, *limitEvent)
	}
	return true
}

// Close tears the session down: the debounce timer stops, a pending typing
// write is flushed, and every subscriber channel is closed. Further operations
// fail with ErrSessionClosed.
func (s *WalletSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopFlushLocked()
	dirty := s.typingDirty
	s.typingDirty = false
	snap := s.acct.Clone()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()

	if dirty {
		s.persist(context.Background(), store.AccountPatch{
			TodayCharCount: &snap.TodayCharCount,
			BoxStates:      &snap.BoxStates,
		}, "close_flush")
	}
}

// limitEventLocked arms the once-per-day daily-limit notice on the transition
// from below the ceiling to at-or-above it.
func (s *WalletSession) limitEventLocked() *domain.DailyLimitReachedEvent {
	if s.limitNotified || s.acct.DailyCashEarned < domain.DailyCashCeiling {
		return nil
	}
	s.limitNotified = true
	return &domain.DailyLimitReachedEvent{
		EventID:         uuid.New(),
		AccountID:       s.userID,
		DailyCashEarned: s.acct.DailyCashEarned,
		Timestamp:       time.Now().UTC(),
	}
}

func (s *WalletSession) notifyLocked() {
	snap := s.acct.Clone()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Observer is behind; it will catch up on the next change.
		}
	}
}

func (s *WalletSession) scheduleFlushLocked() {
	if s.flushTimer != nil {
		return
	}
	s.flushTimer = time.AfterFunc(s.debounce, s.flushTyping)
}

func (s *WalletSession) stopFlushLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

// flushTyping is the debounce timer callback persisting the coalesced typing
// progress (character counter plus any boxes it promoted).
func (s *WalletSession) flushTyping() {
	s.mu.Lock()
	s.flushTimer = nil
	if s.closed || !s.typingDirty {
		s.mu.Unlock()
		return
	}
	s.typingDirty = false
	snap := s.acct.Clone()
	s.mu.Unlock()

	s.persist(context.Background(), store.AccountPatch{
		TodayCharCount: &snap.TodayCharCount,
		BoxStates:      &snap.BoxStates,
	}, "typing_flush")
}

// persist applies a partial-field update, retaining the optimistic local value
// when the write fails.
func (s *WalletSession) persist(ctx context.Context, patch store.AccountPatch, op string) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.repo.UpdateAccountFields(ctx, s.userID, patch); err != nil {
		log.Printf("level=warn component=session op=%s msg=\"account persist failed; optimistic value retained\" user_id=%s err=%v", op, s.userID, err)
	}
}

func (s *WalletSession) publish(routingKey string, body interface{}) {
	if s.producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.producer.Publish(ctx, s.exchange, routingKey, body); err != nil {
		log.Printf("level=warn component=session msg=\"wallet event publish failed\" routing_key=%s user_id=%s err=%v", routingKey, s.userID, err)
	}
}
