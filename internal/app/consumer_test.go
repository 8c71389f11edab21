package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

type dispatchCall struct {
	accountID string
	remote    *domain.UserAccount
}

type stubDispatcher struct {
	calls  []dispatchCall
	result bool
}

func (d *stubDispatcher) DispatchSnapshot(accountID string, remote *domain.UserAccount) bool {
	d.calls = append(d.calls, dispatchCall{accountID: accountID, remote: remote})
	return d.result
}

func TestHandleMessageDispatchesSnapshot(t *testing.T) {
	dispatcher := &stubDispatcher{result: true}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	acct := domain.NewUserAccount("user_abc", "abc@example.com", time.Now())
	acct.TotalCash = 42
	body, err := json.Marshal(domain.AccountSnapshotEvent{
		AccountID: "user_abc",
		Account:   acct,
		EmittedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	if !consumer.HandleMessage(body) {
		t.Fatal("expected delivery to be acknowledged")
	}
	if len(dispatcher.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(dispatcher.calls))
	}
	if dispatcher.calls[0].accountID != "user_abc" || dispatcher.calls[0].remote.TotalCash != 42 {
		t.Fatalf("unexpected dispatch: %+v", dispatcher.calls[0])
	}
}

func TestHandleMessageAcksMalformedPayload(t *testing.T) {
	dispatcher := &stubDispatcher{}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatal("malformed payload must be acknowledged, not requeued")
	}
	if len(dispatcher.calls) != 0 {
		t.Fatal("malformed payload must not be dispatched")
	}
}

func TestHandleMessageAcksMissingAccount(t *testing.T) {
	dispatcher := &stubDispatcher{}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	body, _ := json.Marshal(domain.AccountSnapshotEvent{AccountID: "user_abc"})
	if !consumer.HandleMessage(body) {
		t.Fatal("event without account payload must be acknowledged")
	}
	if len(dispatcher.calls) != 0 {
		t.Fatal("event without account payload must not be dispatched")
	}
}

func TestHandleMessageFillsMissingPayloadID(t *testing.T) {
	dispatcher := &stubDispatcher{result: true}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	acct := domain.NewUserAccount("", "abc@example.com", time.Now())
	body, _ := json.Marshal(domain.AccountSnapshotEvent{AccountID: "user_abc", Account: acct})

	if !consumer.HandleMessage(body) {
		t.Fatal("expected delivery to be acknowledged")
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0].remote.ID != "user_abc" {
		t.Fatalf("expected payload id filled from envelope, got %+v", dispatcher.calls)
	}
}

func TestHandleMessageAcksMismatchedIDs(t *testing.T) {
	dispatcher := &stubDispatcher{}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	acct := domain.NewUserAccount("user_other", "o@example.com", time.Now())
	body, _ := json.Marshal(domain.AccountSnapshotEvent{AccountID: "user_abc", Account: acct})

	if !consumer.HandleMessage(body) {
		t.Fatal("mismatched ids must be acknowledged to drop")
	}
	if len(dispatcher.calls) != 0 {
		t.Fatal("mismatched ids must not be dispatched")
	}
}

func TestHandleMessageAcksWhenNoSessionOpen(t *testing.T) {
	dispatcher := &stubDispatcher{result: false}
	consumer := NewAccountSnapshotConsumer(dispatcher)

	acct := domain.NewUserAccount("user_abc", "abc@example.com", time.Now())
	body, _ := json.Marshal(domain.AccountSnapshotEvent{AccountID: "user_abc", Account: acct})

	if !consumer.HandleMessage(body) {
		t.Fatal("a dropped snapshot is still a completed delivery")
	}
}
