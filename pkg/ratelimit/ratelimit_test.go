package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(time.Minute, 2)
	l.now = func() time.Time { return current }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two hits should be allowed")
	}
	if l.Allow("a") {
		t.Error("third hit inside the window should be rejected")
	}
	if !l.Allow("b") {
		t.Error("other keys have their own window")
	}

	current = current.Add(61 * time.Second)
	if !l.Allow("a") {
		t.Error("hits should be allowed again once the window has passed")
	}
}

func TestLimiterRemaining(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(time.Minute, 3)
	l.now = func() time.Time { return current }

	if got := l.Remaining("a"); got != 3 {
		t.Errorf("Remaining() = %d, want 3", got)
	}
	l.Allow("a")
	if got := l.Remaining("a"); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}

	current = current.Add(2 * time.Minute)
	if got := l.Remaining("a"); got != 3 {
		t.Errorf("Remaining() after window = %d, want 3", got)
	}
	if _, ok := l.hits["a"]; ok {
		t.Error("expired key was not pruned")
	}
}

func TestLimiterConcurrent(t *testing.T) {
	l := NewLimiter(time.Minute, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d hits, want 50", allowed)
	}
}
