package resilience

import (
	"errors"
	"testing"
	"time"
)

// countingStub tracks how often it is invoked and fails when err is set.
type countingStub struct {
	name  string
	err   error
	calls int
}

func chainOf(stubs ...*countingStub) *Chain[*countingStub] {
	cfg := ChainConfig{Breaker: BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}}
	c := NewChain(stubs[0], stubs[0].name, cfg)
	for _, s := range stubs[1:] {
		c.Add(s.name, s)
	}
	return c
}

func TestChainPrimaryFirst(t *testing.T) {
	primary := &countingStub{name: "primary"}
	backup := &countingStub{name: "backup"}

	got, err := TryResult(chainOf(primary, backup), func(s *countingStub) (string, error) {
		s.calls++
		return s.name, s.err
	})
	if err != nil {
		t.Fatalf("TryResult: %v", err)
	}
	if got != "primary" {
		t.Errorf("result: got %q, want %q", got, "primary")
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
}

func TestChainFallsThrough(t *testing.T) {
	primary := &countingStub{name: "primary", err: errBoom}
	backup := &countingStub{name: "backup"}

	got, err := TryResult(chainOf(primary, backup), func(s *countingStub) (string, error) {
		s.calls++
		return s.name, s.err
	})
	if err != nil {
		t.Fatalf("TryResult: %v", err)
	}
	if got != "backup" {
		t.Errorf("result: got %q, want %q", got, "backup")
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls: primary=%d backup=%d, want 1 and 1", primary.calls, backup.calls)
	}
}

func TestChainAllFail(t *testing.T) {
	primary := &countingStub{name: "primary", err: errBoom}
	backup := &countingStub{name: "backup", err: errBoom}

	_, err := TryResult(chainOf(primary, backup), func(s *countingStub) (string, error) {
		return "", s.err
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	primary := &countingStub{name: "primary", err: errBoom}
	backup := &countingStub{name: "backup"}
	chain := chainOf(primary, backup)

	run := func() (string, error) {
		return TryResult(chain, func(s *countingStub) (string, error) {
			s.calls++
			return s.name, s.err
		})
	}

	// First call trips the primary's breaker (threshold 1).
	if _, err := run(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := run(); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should skip it)", primary.calls)
	}
	if backup.calls != 2 {
		t.Errorf("backup called %d times, want 2", backup.calls)
	}
}

func TestChainTry(t *testing.T) {
	primary := &countingStub{name: "primary", err: errBoom}
	backup := &countingStub{name: "backup"}

	err := chainOf(primary, backup).Try(func(s *countingStub) error {
		s.calls++
		return s.err
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if backup.calls != 1 {
		t.Errorf("backup called %d times, want 1", backup.calls)
	}
}

func TestChainLen(t *testing.T) {
	c := chainOf(&countingStub{name: "a"}, &countingStub{name: "b"})
	if got := c.Len(); got != 2 {
		t.Errorf("Len: got %d, want 2", got)
	}
}
