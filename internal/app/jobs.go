/**
 * @description
 * Scheduled job implementations for the wallet-service: the daily-reset sweep
 * for sessions that live across midnight, and the idle-session sweep that tears
 * down abandoned sessions so their debounce timers and subscribers are
 * released.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/zpdl768/apptech-wallet-service/pkg/resetclient"
)

// SessionRegistry is the slice of the session manager the jobs need.
type SessionRegistry interface {
	OpenUserIDs() []string
	CloseIdle(maxIdle time.Duration) int
}

// ResetClient defines the daily-reset operations needed by the sweep.
type ResetClient interface {
	EnsureDailyReset(ctx context.Context, userID string) (*resetclient.ResetResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	sessions    SessionRegistry
	resets      ResetClient
	idleTimeout time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(sessions SessionRegistry, resets ResetClient, idleTimeout time.Duration) *Jobs {
	return &Jobs{
		sessions:    sessions,
		resets:      resets,
		idleTimeout: idleTimeout,
	}
}

// RunResetSweep asks the daily-reset service to execute any missed reset for
// every open session. A performed reset flows back through the snapshot feed;
// this job never mutates session state itself.
func (j *Jobs) RunResetSweep() {
	userIDs := j.sessions.OpenUserIDs()
	log.Printf("level=info component=jobs job=reset_sweep msg=\"starting\" open_sessions=%d", len(userIDs))

	var performed, failed int
	for _, userID := range userIDs {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		result, err := j.resets.EnsureDailyReset(ctx, userID)
		cancel()
		if err != nil {
			failed++
			log.Printf("level=warn component=jobs job=reset_sweep msg=\"reset check failed\" user_id=%s err=%v", userID, err)
			continue
		}
		if result.ResetPerformed {
			performed++
		}
	}

	log.Printf("level=info component=jobs job=reset_sweep msg=\"finished\" checked=%d performed=%d failed=%d", len(userIDs), performed, failed)
}

// RunIdleSessionSweep closes sessions idle longer than the configured timeout.
func (j *Jobs) RunIdleSessionSweep() {
	closed := j.sessions.CloseIdle(j.idleTimeout)
	if closed > 0 {
		log.Printf("level=info component=jobs job=idle_sweep msg=\"closed idle sessions\" count=%d", closed)
	}
}
