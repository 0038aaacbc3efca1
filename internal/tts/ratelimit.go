package tts

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Synthesizer
	limiter *rate.Limiter
}

// NewRateLimited throttles calls to next to rps requests per second.
func NewRateLimited(next Synthesizer, rps float64, burst int) Synthesizer {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	if err := r.limiter.Wait(ctx); err != nil {
		chunks := make(chan SynthChunk)
		errs := make(chan error, 1)
		errs <- fmt.Errorf("tts rate limit: %w", err)
		close(chunks)
		close(errs)
		return chunks, errs
	}
	return r.next.Synthesize(ctx, req)
}
