package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// --- Config tests ---

func TestHasLimits(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{}, false},
		{"configured", Config{"Checkout": {MaxRequests: 10, Window: time.Minute}}, true},
		{"zero max", Config{"Checkout": {MaxRequests: 0, Window: time.Minute}}, false},
		{"zero window", Config{"Checkout": {MaxRequests: 10}}, false},
		{"nil entry", Config{"Checkout": nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.HasLimits(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestForFallsBackToWildcard(t *testing.T) {
	own := &Limit{MaxRequests: 1, Window: time.Second}
	wildcard := &Limit{MaxRequests: 5, Window: time.Second}
	cfg := Config{"Checkout": own, "*": wildcard}
	if cfg.For("Checkout") != own || cfg.For("Add") != wildcard {
		t.Error("unexpected lookup")
	}
	if (Config{}).For("Add") != nil {
		t.Error("expected nil without wildcard")
	}
}

// --- Tracker tests ---

func TestSnapshotResetsExpiredWindow(t *testing.T) {
	tr := NewTracker(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if n := tr.Snapshot("Add", time.Minute, start); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	tr.Increment("Add")
	tr.Increment("Add")
	if n := tr.Snapshot("Add", time.Minute, start.Add(30*time.Second)); n != 2 {
		t.Errorf("expected 2 inside window, got %d", n)
	}
	if n := tr.Snapshot("Add", time.Minute, start.Add(time.Minute)); n != 0 {
		t.Errorf("expected reset at window end, got %d", n)
	}
}

func TestIncrementUnknownMemberIsNoop(t *testing.T) {
	tr := NewTracker(nil)
	tr.Increment("Add")
	if n := tr.Snapshot("Add", time.Minute, time.Now()); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

// --- Enforcer tests ---

func TestCheck(t *testing.T) {
	limit := &Limit{MaxRequests: 2, Window: time.Minute}
	if Check(1, limit).Exceeded {
		t.Error("expected 1/2 to pass")
	}
	r := Check(2, limit)
	if !r.Exceeded || r.Limit != 2 || r.Reason == "" {
		t.Errorf("expected 2/2 to be exceeded, got %+v", r)
	}
	if Check(100, nil).Exceeded {
		t.Error("expected nil limit to pass")
	}
}

func TestAllowAt(t *testing.T) {
	tr := NewTracker(Config{"Checkout": {MaxRequests: 2, Window: time.Minute}})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := tr.AllowAt("Checkout", now); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	err := tr.AllowAt("Checkout", now.Add(time.Second))
	if !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected ErrExceeded, got %v", err)
	}
	var ee *ExceededError
	if !errors.As(err, &ee) || ee.Member != "Checkout" || ee.Current != 2 || ee.Limit != 2 {
		t.Errorf("unexpected error %+v", ee)
	}

	if err := tr.AllowAt("Checkout", now.Add(time.Minute)); err != nil {
		t.Errorf("expected new window to admit, got %v", err)
	}
	if err := tr.AllowAt("Add", now); err != nil {
		t.Errorf("expected unlimited member to pass, got %v", err)
	}
}

func TestAllowConcurrent(t *testing.T) {
	tr := NewTracker(Config{"*": {MaxRequests: 50, Window: time.Hour}})
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if tr.Allow("Add") == nil {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if admitted != 50 {
		t.Errorf("expected 50 admitted, got %d", admitted)
	}
}
