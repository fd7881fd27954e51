package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Poll defaults match the report services' job turnaround.
const (
	DefaultPollInterval = time.Second
	DefaultPollDeadline = 480 * time.Second
)

// ErrPollDeadline signals the job did not finish inside the deadline.
var ErrPollDeadline = errors.New("fetch: poll deadline exceeded")

// PollFunc checks the job once. done=true ends the poll; an error
// aborts it.
type PollFunc func(ctx context.Context) (done bool, err error)

// Poller polls a job until completion, deadline, or context
// cancellation. Every wait is interruptible.
type Poller struct {
	Interval time.Duration
	Deadline time.Duration
}

// Poll runs fn at the configured interval until it reports done.
func (p Poller) Poll(ctx context.Context, fn PollFunc) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := p.Deadline
	if deadline <= 0 {
		deadline = DefaultPollDeadline
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrPollDeadline, deadline)
			}
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
