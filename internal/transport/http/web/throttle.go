package webhttp

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var errRenderBusy = errors.New("png renderer busy, retry later")

// renderGate bounds headless Chrome usage: a token bucket for request rate
// and a semaphore for concurrent browsers.
type renderGate struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

func newRenderGate(perMinute, maxConcurrent int) *renderGate {
	if perMinute <= 0 {
		perMinute = 30
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &renderGate{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), maxConcurrent),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// acquire takes a rate token without waiting, then blocks for a browser
// slot until ctx ends.
func (g *renderGate) acquire(ctx context.Context) (func(), error) {
	if !g.limiter.Allow() {
		return nil, errRenderBusy
	}
	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
