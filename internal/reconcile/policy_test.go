package reconcile

import (
	"testing"
	"time"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

func accountAt(t *testing.T, resetDay time.Time) *domain.UserAccount {
	t.Helper()
	acct := domain.NewUserAccount("user_abc", "abc@example.com", resetDay)
	return acct
}

func TestMergeKeepsLocalTypingCounter(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.TodayCharCount = 250
	local.PromoteBoxes()

	remote := accountAt(t, day)
	remote.TodayCharCount = 40 // stale server view of the counter
	remote.TotalCash = 1011

	res := Merge(local, remote)

	if !res.Changed {
		t.Fatal("expected change: total cash differs")
	}
	if res.ResetDetected {
		t.Fatal("same reset day must not be a reset")
	}
	if res.Account.TodayCharCount != 250 {
		t.Fatalf("local typing counter rewound to %d", res.Account.TodayCharCount)
	}
	if res.Account.TotalCash != 1011 {
		t.Fatalf("expected remote total adopted, got %d", res.Account.TotalCash)
	}
}

func TestMergeNoServerOwnedChange(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.TodayCharCount = 250
	local.PromoteBoxes()

	remote := local.Clone()
	remote.TodayCharCount = 10 // only the ignored field differs

	res := Merge(local, remote)

	if res.Changed {
		t.Fatalf("expected no change when only the typing counter differs, got %+v", res.Account)
	}
}

func TestMergeAdoptsServerOwnedFields(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.TodayCharCount = 300
	local.PromoteBoxes()
	local.CollectedCash = 7
	local.TotalCash = 7

	remote := accountAt(t, day)
	remote.TodayCharCount = 300
	remote.PromoteBoxes()
	remote.CollectedCash = 5 // server corrects an optimistic over-count
	remote.TotalCash = 905
	remote.DailyCashEarned = 120
	remote.BoxStates[0] = domain.BoxCompleted
	remote.Email = "renamed@example.com"

	res := Merge(local, remote)

	if !res.Changed {
		t.Fatal("expected change")
	}
	got := res.Account
	if got.CollectedCash != 5 || got.TotalCash != 905 || got.DailyCashEarned != 120 {
		t.Fatalf("server-owned counters not adopted: %+v", got)
	}
	if got.BoxStates[0] != domain.BoxCompleted {
		t.Fatalf("server box completion not adopted: %s", got.BoxStates[0])
	}
	if got.Email != "renamed@example.com" {
		t.Fatalf("email not adopted: %s", got.Email)
	}
	if got.TodayCharCount != 300 {
		t.Fatalf("typing counter must stay local, got %d", got.TodayCharCount)
	}
}

func TestMergeDetectsDailyReset(t *testing.T) {
	local := accountAt(t, time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC))
	local.TodayCharCount = 730
	local.PromoteBoxes()
	local.CollectedCash = 41
	local.DailyCashEarned = 615
	local.TotalCash = 2200

	remote := accountAt(t, time.Date(2025, 3, 14, 0, 1, 0, 0, time.UTC))
	remote.TotalCash = 2200 // reset preserves total cash server-side

	res := Merge(local, remote)

	if !res.ResetDetected {
		t.Fatal("expected reset detection for a newer reset day")
	}
	if !res.Changed {
		t.Fatal("a reset is always a change")
	}
	got := res.Account
	if got.TodayCharCount != 0 || got.CollectedCash != 0 || got.DailyCashEarned != 0 {
		t.Fatalf("expected zeroed counters after reset, got %+v", got)
	}
	for i, state := range got.BoxStates {
		if state != domain.BoxLocked {
			t.Fatalf("expected box %d locked after reset, got %s", i, state)
		}
	}
	if got.TotalCash != 2200 {
		t.Fatalf("expected total cash preserved through reset, got %d", got.TotalCash)
	}
}

func TestMergeMissingLocalResetDateIsNotAReset(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.LastResetDate = nil
	local.TodayCharCount = 120
	local.PromoteBoxes()

	remote := accountAt(t, day)

	res := Merge(local, remote)

	if res.ResetDetected {
		t.Fatal("missing local reset date must not trigger a reset")
	}
	if res.Account.TodayCharCount != 120 {
		t.Fatalf("typing counter must survive, got %d", res.Account.TodayCharCount)
	}
	if !res.Changed {
		t.Fatal("adopting the remote reset date is a change")
	}
}

func TestMergeNormalizesMalformedRemoteBoxes(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.TodayCharCount = 500

	remote := accountAt(t, day)
	remote.TodayCharCount = 150
	remote.BoxStates[0] = "corrupt" // above remote threshold
	remote.BoxStates[1] = ""        // below remote threshold

	res := Merge(local, remote)

	if res.Account.BoxStates[0] != domain.BoxAvailable {
		t.Fatalf("expected corrupt above-threshold box repaired to available, got %s", res.Account.BoxStates[0])
	}
	if res.Account.BoxStates[1] != domain.BoxLocked {
		t.Fatalf("expected empty below-threshold box repaired to locked, got %s", res.Account.BoxStates[1])
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.TodayCharCount = 100
	remote := accountAt(t, day)
	remote.TotalCash = 50
	remote.BoxStates[0] = "corrupt"

	Merge(local, remote)

	if local.TotalCash != 0 {
		t.Fatal("merge mutated local input")
	}
	if remote.BoxStates[0] != "corrupt" {
		t.Fatal("merge mutated remote input")
	}
}

func TestMergeDailyLimitValueAdopted(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	local := accountAt(t, day)
	local.DailyCashEarned = 650

	remote := accountAt(t, day)
	remote.DailyCashEarned = 800

	res := Merge(local, remote)

	if !res.Changed {
		t.Fatal("expected change")
	}
	if res.Account.DailyCashEarned != 800 {
		t.Fatalf("expected ceiling value adopted, got %d", res.Account.DailyCashEarned)
	}
}
