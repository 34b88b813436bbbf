package store

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateBurst is the largest single reservation taken from a write limiter.
// Larger writes are split into chunks of this size so a write never exceeds
// the limiter's burst.
const rateBurst = 256 * 1024 // bytes

// RateLimitedOutput throttles writes to a wrapped Output through a shared
// byte-per-second limiter. Several outputs of one store share the same
// limiter, so the throttle applies to the store's aggregate write rate.
type RateLimitedOutput struct {
	ctx     context.Context //nolint:containedctx // io.Writer has no context; waits are scoped to the creating call
	out     Output
	limiter *rate.Limiter
}

// NewRateLimitedOutput wraps out so writes pace themselves against limiter.
// Waits are bounded by ctx; canceling it fails the write in progress.
func NewRateLimitedOutput(ctx context.Context, out Output, limiter *rate.Limiter) *RateLimitedOutput {
	return &RateLimitedOutput{ctx: ctx, out: out, limiter: limiter}
}

func (o *RateLimitedOutput) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > rateBurst {
			chunk = chunk[:rateBurst]
		}
		if err := o.limiter.WaitN(o.ctx, len(chunk)); err != nil {
			return written, fmt.Errorf("rate limit wait: %w", err)
		}

		n, err := o.out.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(chunk):]
	}
	return written, nil
}

func (o *RateLimitedOutput) Close() error {
	return o.out.Close()
}

// Name reports the wrapped output's name.
func (o *RateLimitedOutput) Name() string {
	return o.out.Name()
}
