package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPollerFinishes(t *testing.T) {
	checks := 0
	p := Poller{Interval: time.Millisecond, Deadline: time.Second}
	err := p.Poll(context.Background(), func(ctx context.Context) (bool, error) {
		checks++
		return checks >= 3, nil
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if checks != 3 {
		t.Errorf("expected 3 checks, got %d", checks)
	}
}

func TestPollerDeadline(t *testing.T) {
	p := Poller{Interval: time.Millisecond, Deadline: 20 * time.Millisecond}
	err := p.Poll(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrPollDeadline) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestPollerAbortsOnCheckError(t *testing.T) {
	boom := errors.New("job failed")
	p := Poller{Interval: time.Millisecond, Deadline: time.Second}
	err := p.Poll(context.Background(), func(ctx context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestPollerRespectsCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Poller{Interval: time.Hour, Deadline: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- p.Poll(ctx, func(ctx context.Context) (bool, error) {
			return false, nil
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("poller did not react to cancellation")
	}
}
