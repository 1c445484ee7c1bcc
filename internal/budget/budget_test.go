package budget

import (
	"strings"
	"testing"
	"time"
)

func TestRunBudget_EnterNode(t *testing.T) {
	var b RunBudget
	for i := 0; i < MaxNodeExecutions; i++ {
		if err := b.EnterNode("acquire"); err != nil {
			t.Fatalf("execution %d rejected: %v", i, err)
		}
	}
	err := b.EnterNode("acquire")
	if err == nil {
		t.Fatal("execution past ceiling accepted")
	}
	if err.Code != "execution_limit_exceeded" {
		t.Errorf("code = %q", err.Code)
	}
	if b.NodeExecutions() != MaxNodeExecutions {
		t.Errorf("counter advanced past ceiling: %d", b.NodeExecutions())
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("EstimateTokens = %d, want 100", got)
	}
	if !WithinTokenLimit(strings.Repeat("a", MaxPromptTokens*CharsPerToken)) {
		t.Error("text at exactly the limit rejected")
	}
	if WithinTokenLimit(strings.Repeat("a", (MaxPromptTokens+1)*CharsPerToken)) {
		t.Error("text past the limit accepted")
	}
}

func TestCapFeeds(t *testing.T) {
	n, err := CapFeeds(3)
	if n != 3 || err != nil {
		t.Fatalf("CapFeeds(3) = %d, %v", n, err)
	}

	n, err = CapFeeds(15)
	if n != MaxFeedsPerRun {
		t.Errorf("capped count = %d, want %d", n, MaxFeedsPerRun)
	}
	if err == nil {
		t.Fatal("missing rate-limit error")
	}
	if err.Code != "rate_limit_exceeded" {
		t.Errorf("code = %q", err.Code)
	}
	if err.Context["requested"] != "15" || err.Context["max_allowed"] != "10" {
		t.Errorf("context = %v", err.Context)
	}
}

func TestRunBudget_TakeSearchCall(t *testing.T) {
	var b RunBudget
	for i := 0; i < MaxSearchCallsPerRun; i++ {
		if err := b.TakeSearchCall(); err != nil {
			t.Fatalf("call %d refused: %v", i, err)
		}
	}
	if err := b.TakeSearchCall(); err == nil {
		t.Fatal("call past ceiling allowed")
	}
	if b.SearchCalls() != MaxSearchCallsPerRun {
		t.Errorf("search counter = %d", b.SearchCalls())
	}
}

func TestRateLimiter_Window(t *testing.T) {
	l := NewRateLimiter(2)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	if !l.Allow("feed") || !l.Allow("feed") {
		t.Fatal("requests within limit rejected")
	}
	if l.Allow("feed") {
		t.Fatal("request past limit admitted")
	}

	// A different key has its own window.
	if !l.Allow("news") {
		t.Fatal("independent key rejected")
	}

	// Advancing past the window evicts old entries on the next check.
	current = current.Add(61 * time.Second)
	if !l.Allow("feed") {
		t.Fatal("request after window expiry rejected")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	l := NewRateLimiter(1)
	if !l.Allow("k") {
		t.Fatal("first request rejected")
	}
	if l.Allow("k") {
		t.Fatal("second request admitted")
	}
	l.Reset("k")
	if !l.Allow("k") {
		t.Fatal("request after reset rejected")
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	l := NewRateLimiter(1000)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				l.Allow("shared")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
