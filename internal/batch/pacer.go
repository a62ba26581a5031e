package batch

import (
	"context"
	"fmt"
	"time"

	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/components/chrono"

	"golang.org/x/time/rate"
)

// Pacer is waited on before every transport call.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer spaces calls at least `delay` apart, measured on the given clock
// so tests can run against a simulated one.
type RatePacer struct {
	limiter *rate.Limiter
	clock   chrono.API
}

func NewRatePacer(delay time.Duration, clock chrono.API) *RatePacer {
	assert.NotNil(clock)
	assert.NonNegative(delay)

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &RatePacer{
		// burst of 1 so the first call goes out immediately and every
		// call after that waits for a whole interval
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock,
	}
}

func (p *RatePacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	reservation := p.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return fmt.Errorf("pacer: reservation exceeds burst")
	}

	err := p.clock.Sleep(ctx, reservation.DelayFrom(now))
	if err != nil {
		reservation.CancelAt(p.clock.Now())
		return err
	}
	return nil
}
