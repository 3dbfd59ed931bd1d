package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

func TestGuardNilIsPassthrough(t *testing.T) {
	t.Parallel()

	var g *Guard
	called := false
	err := g.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !called {
		t.Fatal("fn not called")
	}
}

func TestGuardWrapsFailures(t *testing.T) {
	t.Parallel()

	g := NewGuard(GuardConfig{RatePerSecond: 1000, Burst: 1000})
	wantErr := errors.New("model exploded")

	err := g.Do(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("Do() error = %v, want ErrModelInvoke", err)
	}
}

func TestGuardBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	g := NewGuard(GuardConfig{
		RatePerSecond:    1000,
		Burst:            1000,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	})

	failing := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < 3; i++ {
		if err := g.Do(context.Background(), failing); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Do() with open breaker error = %v, want ErrUnavailable", err)
	}
	if calls != 0 {
		t.Fatal("fn ran despite the open breaker")
	}
}

func TestGuardRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	// burst of 1 exhausted, second call has to wait and sees the cancel
	g := NewGuard(GuardConfig{RatePerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	if err := g.Do(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	cancel()
	err := g.Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Do() after cancel error = %v, want ErrUnavailable", err)
	}
}
