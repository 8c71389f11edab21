package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zpdl768/apptech-wallet-service/internal/accrual"
	"github.com/zpdl768/apptech-wallet-service/internal/domain"
	"github.com/zpdl768/apptech-wallet-service/internal/session"
	"github.com/zpdl768/apptech-wallet-service/internal/store"
	"github.com/zpdl768/apptech-wallet-service/pkg/validationclient"
)

type stubRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.UserAccount
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: make(map[string]*domain.UserAccount)}
}

func (r *stubRepo) GetAccount(ctx context.Context, id string) (*domain.UserAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (r *stubRepo) CreateAccount(ctx context.Context, acct *domain.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.ID]; ok {
		return store.ErrAccountExists
	}
	r.accounts[acct.ID] = acct.Clone()
	return nil
}

func (r *stubRepo) UpdateAccountFields(ctx context.Context, id string, patch store.AccountPatch) error {
	return nil
}

type stubLimiter struct {
	count      int
	retryAfter int
}

func (l *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, nil
}

func testAuth(userID, email string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), userID, email)))
		})
	}
}

func newTestRouter(t *testing.T, validatorURL string) (*chi.Mux, *WalletHandlers, *session.Manager) {
	t.Helper()

	var validator *validationclient.Client
	if validatorURL != "" {
		validator = validationclient.NewClient(validatorURL, "test-key")
	}
	mgr := session.NewManager(accrual.NewEngine(validator), newStubRepo(), nil, nil, "apptech.events", time.Hour)
	t.Cleanup(mgr.Close)

	h := NewWalletHandlers(mgr, "internal-key")

	r := chi.NewRouter()
	r.Use(testAuth("user_abc", "abc@example.com"))
	r.Get("/wallet", h.GetWalletHandler)
	r.Post("/wallet/typing", h.TypingHandler)
	r.Post("/wallet/collect", h.CollectHandler)
	r.Post("/wallet/boxes/{index}/open", h.OpenBoxHandler)
	return r, h, mgr
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetWalletOpensSessionAndReturnsSnapshot(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/wallet", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp walletResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account.ID != "user_abc" {
		t.Fatalf("unexpected account id %q", resp.Account.ID)
	}
	if resp.ReadyCash != 0 || resp.Account.TotalCash != 0 {
		t.Fatalf("fresh account must be all-zero: %+v", resp)
	}
}

func TestTypingEndpointAppliesDelta(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/wallet/typing", typingRequest{AddedChars: 250})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp walletResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account.TodayCharCount != 250 {
		t.Fatalf("expected 250 chars, got %d", resp.Account.TodayCharCount)
	}
	if resp.Account.BoxStates[0] != domain.BoxAvailable || resp.Account.BoxStates[1] != domain.BoxAvailable {
		t.Fatalf("expected boxes 0 and 1 available, got %v", resp.Account.BoxStates)
	}
	if resp.ReadyCash != 25 {
		t.Fatalf("expected 25 ready cash, got %d", resp.ReadyCash)
	}
}

func TestTypingEndpointRejectsMalformedBody(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/wallet/typing", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCollectEndpointGrantsOneCoin(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	doJSON(t, router, http.MethodPost, "/wallet/typing", typingRequest{AddedChars: 250})
	rec := doJSON(t, router, http.MethodPost, "/wallet/collect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp collectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Collected != 1 {
		t.Fatalf("expected one coin per tap, got %d", resp.Collected)
	}
	if resp.Account.TotalCash != 1 || resp.Account.CollectedCash != 1 {
		t.Fatalf("unexpected account after collect: %+v", resp.Account)
	}
	if resp.ReadyCash != 24 {
		t.Fatalf("expected 24 ready after collecting one, got %d", resp.ReadyCash)
	}
}

func TestCollectEndpointNoopWhenNothingReady(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/wallet/collect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp collectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Collected != 0 || resp.Account.TotalCash != 0 {
		t.Fatalf("expected no-op collect, got %+v", resp)
	}
}

func TestOpenBoxEndpointCreditsReward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validationclient.ValidationResult{
			Allowed:            true,
			NewTotalCash:       11,
			NewDailyCashEarned: 11,
			RemainingDaily:     789,
		})
	}))
	defer server.Close()

	router, _, _ := newTestRouter(t, server.URL)
	doJSON(t, router, http.MethodPost, "/wallet/typing", typingRequest{AddedChars: 150})

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/0/open", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp boxOpenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account.BoxStates[0] != domain.BoxCompleted {
		t.Fatalf("expected box 0 completed, got %s", resp.Account.BoxStates[0])
	}
	if resp.Account.TotalCash != 11 || resp.Account.DailyCashEarned != 11 {
		t.Fatalf("account did not adopt validator totals: %+v", resp.Account)
	}
}

func TestOpenBoxEndpointConflictOnLockedBox(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/4/open", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a locked box, got %d", rec.Code)
	}
}

func TestOpenBoxEndpointForbiddenOnDailyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validationclient.ValidationResult{
			Allowed: false,
			Message: "daily cash limit reached",
		})
	}))
	defer server.Close()

	router, _, _ := newTestRouter(t, server.URL)
	doJSON(t, router, http.MethodPost, "/wallet/typing", typingRequest{AddedChars: 150})

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/0/open", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on daily limit denial, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "daily cash limit reached" {
		t.Fatalf("expected the server denial message, got %q", resp["error"])
	}
}

func TestOpenBoxEndpointBadGatewayOnValidatorOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"errors":[{"title":"upstream","detail":"unreachable","status":"502"}]}`))
	}))
	defer server.Close()

	router, _, _ := newTestRouter(t, server.URL)
	doJSON(t, router, http.MethodPost, "/wallet/typing", typingRequest{AddedChars: 150})

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/0/open", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on validator outage, got %d", rec.Code)
	}
}

func TestOpenBoxEndpointRateLimited(t *testing.T) {
	router, h, _ := newTestRouter(t, "")
	h.SetBoxRewardRateLimiter(&stubLimiter{count: 21, retryAfter: 17}, 20)

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/0/open", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "17" {
		t.Fatalf("expected Retry-After 17, got %q", got)
	}
}

func TestOpenBoxEndpointRejectsBadIndex(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/wallet/boxes/nine/open", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-numeric index, got %d", rec.Code)
	}
}

func TestInternalSyncRequiresKey(t *testing.T) {
	_, h, mgr := newTestRouter(t, "")

	// Open a session so sync has something to reconcile.
	if _, err := mgr.Open(context.Background(), "user_abc", "abc@example.com"); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware("internal-key"))
		r.Post("/wallet/internal/accounts/{id}/sync", h.InternalSyncHandler)
	})

	req := httptest.NewRequest(http.MethodPost, "/wallet/internal/accounts/user_abc/sync", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/wallet/internal/accounts/user_abc/sync", nil)
	req.Header.Set("x-internal-api-key", "internal-key")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInternalSyncNotFoundWithoutSession(t *testing.T) {
	_, h, _ := newTestRouter(t, "")

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware("internal-key"))
		r.Post("/wallet/internal/accounts/{id}/sync", h.InternalSyncHandler)
	})

	req := httptest.NewRequest(http.MethodPost, "/wallet/internal/accounts/user_ghost/sync", nil)
	req.Header.Set("x-internal-api-key", "internal-key")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a session, got %d", rec.Code)
	}
}
