package resilience

import (
	"context"
	"errors"

	"github.com/vidforge/vidforge/pkg/provider/video"
)

// BreakerFetcher wraps a [video.StatusFetcher] with a circuit breaker so that
// a provider whose status endpoint is persistently failing stops receiving
// round trips for the reset window. Poll sessions see [ErrCircuitOpen] as an
// ordinary transient fetch error and keep counting attempts, so a tripped
// breaker still runs the session into its timeout bound rather than hammering
// a sick endpoint.
type BreakerFetcher struct {
	next    video.StatusFetcher
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ video.StatusFetcher = (*BreakerFetcher)(nil)

// NewBreakerFetcher wraps next with a circuit breaker configured by cfg.
func NewBreakerFetcher(next video.StatusFetcher, cfg CircuitBreakerConfig) *BreakerFetcher {
	return &BreakerFetcher{
		next:    next,
		breaker: NewCircuitBreaker(cfg),
	}
}

// FetchStatus implements [video.StatusFetcher]. A not-found answer is a
// definitive response from a healthy provider, so it passes through without
// counting as a breaker failure.
func (f *BreakerFetcher) FetchStatus(ctx context.Context, jobID string, kind video.ResultKind) (video.Verdict, error) {
	var (
		verdict  video.Verdict
		notFound error
	)
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := f.next.FetchStatus(ctx, jobID, kind)
		if err != nil {
			var nf *video.NotFoundError
			if errors.As(err, &nf) {
				notFound = err
				return nil
			}
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return video.Verdict{}, err
	}
	if notFound != nil {
		return video.Verdict{}, notFound
	}
	return verdict, nil
}
