/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the session
 * layer, and writing the HTTP response. Expected accrual outcomes (box not
 * available, daily limit reached) are mapped to statuses here; they are typed
 * errors from the engine, never panics.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/accrual, internal/app, internal/domain, internal/session: Engine
 *   errors, rate limiting, models and the session layer.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zpdl768/apptech-wallet-service/internal/accrual"
	"github.com/zpdl768/apptech-wallet-service/internal/app"
	"github.com/zpdl768/apptech-wallet-service/internal/domain"
	"github.com/zpdl768/apptech-wallet-service/internal/session"
)

const boxRewardRateLimitScope = "box_reward"

// WalletHandlers holds the session layer and rate limiter that handlers use.
type WalletHandlers struct {
	sessions       *session.Manager
	limiter        app.RateLimiter
	boxRewardLimit int
	internalAPIKey string
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(sessions *session.Manager, internalAPIKey string) *WalletHandlers {
	return &WalletHandlers{sessions: sessions, internalAPIKey: internalAPIKey}
}

// SetBoxRewardRateLimiter attaches the per-user limiter for box-open requests.
func (h *WalletHandlers) SetBoxRewardRateLimiter(limiter app.RateLimiter, perMinute int) {
	h.limiter = limiter
	h.boxRewardLimit = perMinute
}

type typingRequest struct {
	AddedChars int64 `json:"added_chars"`
}

// walletResponse is the account snapshot sent to the mobile client, augmented
// with the derived collectable balance so the client does not re-implement the
// allowance math.
type walletResponse struct {
	Account   *domain.UserAccount `json:"account"`
	ReadyCash int64               `json:"ready_cash"`
}

type collectResponse struct {
	Collected int64               `json:"collected"`
	ReadyCash int64               `json:"ready_cash"`
	Account   *domain.UserAccount `json:"account"`
}

type boxOpenResponse struct {
	Outcome *accrual.RewardOutcome `json:"outcome"`
	Account *domain.UserAccount    `json:"account"`
}

func buildWalletResponse(acct *domain.UserAccount) walletResponse {
	return walletResponse{Account: acct, ReadyCash: acct.ReadyCash()}
}

// openSession resolves the authenticated user and opens (or returns) their
// wallet session.
func (h *WalletHandlers) openSession(w http.ResponseWriter, r *http.Request) (*session.WalletSession, bool) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return nil, false
	}

	sess, err := h.sessions.Open(r.Context(), userID, GetAuthEmail(r.Context()))
	if err != nil {
		log.Printf("level=error component=api msg=\"session open failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to open wallet session")
		return nil, false
	}
	return sess, true
}

// GetWalletHandler returns the current session snapshot, opening the session
// on first touch.
func (h *WalletHandlers) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, buildWalletResponse(sess.Snapshot()))
}

// TypingHandler applies a typing delta to the session. Non-positive deltas are
// deletions and are accepted but ignored.
func (h *WalletHandlers) TypingHandler(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}

	snap, err := sess.ApplyTypingDelta(req.AddedChars)
	if err != nil {
		h.writeError(w, http.StatusConflict, "Wallet session is no longer active")
		return
	}
	h.writeJSON(w, http.StatusOK, buildWalletResponse(snap))
}

// CollectHandler converts one unit of the typing allowance into cash.
func (h *WalletHandlers) CollectHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}

	collected, snap, err := sess.CollectReadyCash(r.Context())
	if err != nil {
		h.writeError(w, http.StatusConflict, "Wallet session is no longer active")
		return
	}
	h.writeJSON(w, http.StatusOK, collectResponse{
		Collected: collected,
		ReadyCash: snap.ReadyCash(),
		Account:   snap,
	})
}

// OpenBoxHandler requests the reward for one box.
func (h *WalletHandlers) OpenBoxHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	boxIndex, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid box index")
		return
	}

	if h.limiter != nil && h.boxRewardLimit > 0 {
		count, retryAfter, limitErr := h.limiter.ConsumeRateLimit(r.Context(), boxRewardRateLimitScope, userID, h.boxRewardLimit, time.Minute)
		if limitErr != nil {
			// Fail open: a limiter outage must not block rewards.
			log.Printf("level=warn component=api endpoint=open_box msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, limitErr)
		} else if count > h.boxRewardLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many box reward requests. Please slow down.")
			return
		}
	}

	sess, ok := h.openSession(w, r)
	if !ok {
		return
	}

	outcome, snap, err := sess.OpenBox(r.Context(), boxIndex)
	if err != nil {
		var denied *accrual.DailyLimitError
		var transient *accrual.TransientError
		switch {
		case errors.Is(err, accrual.ErrBoxNotAvailable):
			h.writeError(w, http.StatusConflict, "Box is not available")
		case errors.As(err, &denied):
			h.writeError(w, http.StatusForbidden, denied.Error())
		case errors.As(err, &transient):
			log.Printf("level=warn component=api endpoint=open_box outcome=transient user_id=%s box_index=%d err=%v", userID, boxIndex, err)
			h.writeError(w, http.StatusBadGateway, "Reward validation is temporarily unavailable. Please retry.")
		case errors.Is(err, session.ErrSessionClosed):
			h.writeError(w, http.StatusConflict, "Wallet session is no longer active")
		default:
			log.Printf("level=error component=api endpoint=open_box outcome=failed user_id=%s box_index=%d err=%v", userID, boxIndex, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Printf("level=info component=api endpoint=open_box outcome=credited user_id=%s box_index=%d amount=%d", userID, boxIndex, outcome.AmountCredited)
	h.writeJSON(w, http.StatusOK, boxOpenResponse{Outcome: outcome, Account: snap})
}

// InternalSyncHandler force-reads the account document and reconciles it into
// the live session. Ops escape hatch behind the internal API key.
func (h *WalletHandlers) InternalSyncHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		h.writeError(w, http.StatusBadRequest, "Account id required")
		return
	}

	if err := h.sessions.SyncFromStore(r.Context(), accountID); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			h.writeError(w, http.StatusNotFound, "No active session for account")
			return
		}
		log.Printf("level=error component=api endpoint=internal_sync msg=\"sync failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
