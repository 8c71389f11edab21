/**
 * @description
 * The session manager owns the map of live wallet sessions. It opens a session
 * on first authenticated touch (creating the all-zero account document when
 * missing and asking the daily-reset service to execute any missed reset),
 * routes account snapshot feed events to the owning session, closes idle
 * sessions, and closes everything on shutdown.
 *
 * @dependencies
 * - internal/accrual, internal/store, internal/session (WalletSession).
 * - pkg/resetclient: The external daily-reset collaborator.
 */

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zpdl768/apptech-wallet-service/internal/accrual"
	"github.com/zpdl768/apptech-wallet-service/internal/domain"
	"github.com/zpdl768/apptech-wallet-service/internal/store"
	"github.com/zpdl768/apptech-wallet-service/pkg/rabbitmq"
	"github.com/zpdl768/apptech-wallet-service/pkg/resetclient"
)

// ErrNoActiveSession is returned when an operation targets a user with no open session.
var ErrNoActiveSession = errors.New("no active session for user")

// ResetClient is the slice of the daily-reset collaborator the manager needs.
type ResetClient interface {
	EnsureDailyReset(ctx context.Context, userID string) (*resetclient.ResetResult, error)
}

// Manager opens, caches and tears down wallet sessions.
type Manager struct {
	engine   *accrual.Engine
	repo     store.Repository
	resets   ResetClient
	producer rabbitmq.Publisher
	exchange string
	debounce time.Duration

	mu       sync.Mutex
	sessions map[string]*WalletSession
	closed   bool
}

// NewManager creates a session manager.
func NewManager(engine *accrual.Engine, repo store.Repository, resets ResetClient, producer rabbitmq.Publisher, exchange string, debounce time.Duration) *Manager {
	return &Manager{
		engine:   engine,
		repo:     repo,
		resets:   resets,
		producer: producer,
		exchange: exchange,
		debounce: debounce,
		sessions: make(map[string]*WalletSession),
	}
}

// Open returns the live session for the user, creating one on first touch.
// Opening loads (or creates) the account document and asks the daily-reset
// service to execute any reset the user is due; a reset failure degrades to a
// warning since the scheduled sweep and the snapshot feed will catch up.
func (m *Manager) Open(ctx context.Context, userID, email string) (*WalletSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if sess, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	acct, err := m.loadOrCreateAccount(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if m.resets != nil {
		result, err := m.resets.EnsureDailyReset(ctx, userID)
		switch {
		case err != nil:
			log.Printf("level=warn component=session_manager msg=\"daily reset check failed; continuing with loaded state\" user_id=%s err=%v", userID, err)
		case result.ResetPerformed:
			// The reset rewrote the account document; re-read so the session
			// starts from the zeroed counters instead of waiting for the feed.
			if fresh, readErr := m.repo.GetAccount(ctx, userID); readErr == nil {
				acct = fresh
			} else {
				log.Printf("level=warn component=session_manager msg=\"re-read after reset failed; applying reset locally\" user_id=%s err=%v", userID, readErr)
				acct.ApplyDailyReset(time.Now())
			}
		}
	}

	sess := NewWalletSession(acct, m.engine, m.repo, m.producer, m.exchange, m.debounce)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		sess.Close()
		return nil, ErrSessionClosed
	}
	// A concurrent Open for the same user may have won the race.
	if existing, ok := m.sessions[userID]; ok {
		sess.Close()
		return existing, nil
	}
	m.sessions[userID] = sess
	log.Printf("level=info component=session_manager msg=\"session opened\" user_id=%s", userID)
	return sess, nil
}

// Get returns the live session for the user without opening one.
func (m *Manager) Get(userID string) (*WalletSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// DispatchSnapshot routes a snapshot feed event to the owning session. Events
// for users with no open session are dropped; their state will be read fresh
// at the next session open.
func (m *Manager) DispatchSnapshot(accountID string, remote *domain.UserAccount) bool {
	sess, ok := m.Get(accountID)
	if !ok {
		return false
	}
	return sess.ApplyRemoteSnapshot(remote)
}

// SyncFromStore force-reads the account document and reconciles it into the
// live session. Ops escape hatch behind the internal API.
func (m *Manager) SyncFromStore(ctx context.Context, accountID string) error {
	sess, ok := m.Get(accountID)
	if !ok {
		return ErrNoActiveSession
	}
	acct, err := m.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	sess.ApplyRemoteSnapshot(acct)
	return nil
}

// OpenUserIDs lists the users with a live session, for the reset sweep.
func (m *Manager) OpenUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CloseIdle closes every session untouched for longer than maxIdle and returns
// how many were closed.
func (m *Manager) CloseIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	var idle []*WalletSession
	cutoff := time.Now().Add(-maxIdle)
	for id, sess := range m.sessions {
		if sess.LastTouched().Before(cutoff) {
			idle = append(idle, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
		log.Printf("level=info component=session_manager msg=\"idle session closed\" user_id=%s", sess.UserID())
	}
	return len(idle)
}

// Close tears down every session. Used on service shutdown so pending typing
// flushes reach the store.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*WalletSession, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (m *Manager) loadOrCreateAccount(ctx context.Context, userID, email string) (*domain.UserAccount, error) {
	acct, err := m.repo.GetAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	fresh := domain.NewUserAccount(userID, email, time.Now().UTC())
	if createErr := m.repo.CreateAccount(ctx, fresh); createErr != nil {
		if errors.Is(createErr, store.ErrAccountExists) {
			// Another instance created it between our read and write.
			return m.repo.GetAccount(ctx, userID)
		}
		return nil, createErr
	}
	log.Printf("level=info component=session_manager msg=\"account created\" user_id=%s", userID)
	return fresh, nil
}
