// Package poll implements the asynchronous job polling engine. A poll
// session repeatedly fetches the status of one remote generation job on a
// fixed interval, classifies each snapshot, emits progress events, and
// resolves exactly once with a terminal outcome: success, failure, timeout,
// or cancellation.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidforge/vidforge/pkg/provider/video"
)

// Default polling bounds. Together they bound a session to five minutes of
// wall-clock waiting.
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Progress event statuses. SUCCEEDED, FAILED, TIMEOUT, and CANCELLED are
// terminal; every session emits exactly one of them last.
const (
	StatusPending      = "PENDING"
	StatusUnknown      = "UNKNOWN_STATUS"
	StatusPollingError = "POLLING_ERROR"
	StatusSucceeded    = "SUCCEEDED"
	StatusFailed       = "FAILED"
	StatusTimeout      = "TIMEOUT"
	StatusCancelled    = "CANCELLED"
)

// Event is one progress notification describing session state. Data carries
// status-specific payload: the asset URL on success, the reason on failure,
// the error message on a polling error.
type Event struct {
	Status  string
	Attempt int
	Data    map[string]any
}

// Emitter delivers progress events to an external listener. Delivery is
// fire-and-forget: implementations must not block indefinitely and must
// swallow (and log) their own delivery failures. Emit is called sequentially
// within one session but concurrently across sessions.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, Event) {}

// Options bounds one poll session.
type Options struct {
	// Interval is the time between tick starts. Defaults to DefaultInterval
	// when zero or negative.
	Interval time.Duration

	// MaxAttempts is the number of non-terminal ticks after which the session
	// times out. Defaults to DefaultMaxAttempts when zero or negative.
	MaxAttempts int
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Result is the success outcome of a poll session.
type Result struct {
	// AssetURL locates the produced asset.
	AssetURL string

	// Attempts is the number of ticks the session ran.
	Attempts int

	// RawStatus is the provider's own status string from the terminal
	// snapshot.
	RawStatus string
}

// FailureError reports that the provider terminated the job unsuccessfully,
// or that its terminal snapshot violated the provider contract.
type FailureError struct {
	Reason   string
	Attempts int
}

func (e *FailureError) Error() string {
	return "poll: job failed: " + e.Reason
}

// TimeoutError reports that no terminal status was observed within the
// attempt bound.
type TimeoutError struct {
	Attempts int
	Waited   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poll: no terminal status after %d attempts (%s)", e.Attempts, e.Waited)
}

// ErrCancelled is returned when the session's context is cancelled before a
// terminal status is observed.
var ErrCancelled = errors.New("poll: session cancelled")

// Run drives one poll session to completion and returns its outcome. It
// fetches the job's status every Options.Interval, classifies the snapshot,
// and emits a progress event per tick. Run returns after the first terminal
// condition:
//
//   - the provider reports success (asset URL attached) or failure;
//   - the provider reports success without an asset, which is treated as a
//     failure;
//   - the provider no longer knows the job ID;
//   - MaxAttempts ticks pass without a terminal status;
//   - ctx is cancelled.
//
// A terminal snapshot observed on the final allowed attempt wins over the
// attempt bound. Transient fetch errors do not terminate the session; they
// surface as POLLING_ERROR events and count as attempts, so a persistently
// unreachable provider still times out. Exactly one terminal event is
// emitted, always last.
func Run(ctx context.Context, handle video.JobHandle, fetcher video.StatusFetcher, emitter Emitter, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if emitter == nil {
		emitter = NopEmitter{}
	}
	log := slog.With(
		"provider", handle.Provider,
		"job_id", handle.ID,
		"kind", string(handle.Kind),
	)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			emitter.Emit(ctx, Event{Status: StatusCancelled, Attempt: attempts})
			log.Info("poll session cancelled", "attempts", attempts)
			return Result{Attempts: attempts}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())

		case <-ticker.C:
			attempts++
			verdict, err := fetcher.FetchStatus(ctx, handle.ID, handle.Kind)
			if err != nil {
				var nf *video.NotFoundError
				if errors.As(err, &nf) {
					// The provider will never recognise this ID again;
					// retrying is pointless.
					emitter.Emit(ctx, Event{
						Status:  StatusFailed,
						Attempt: attempts,
						Data:    map[string]any{"reason": nf.Message},
					})
					log.Warn("job unknown to provider", "attempts", attempts)
					return Result{Attempts: attempts}, &FailureError{Reason: nf.Message, Attempts: attempts}
				}
				emitter.Emit(ctx, Event{
					Status:  StatusPollingError,
					Attempt: attempts,
					Data:    map[string]any{"message": err.Error()},
				})
				log.Warn("status fetch failed", "attempt", attempts, "error", err)
			} else {
				switch verdict.State {
				case video.StateSucceeded:
					if verdict.AssetURL == "" {
						reason := fmt.Sprintf("Task completed but no %s URL found.", handle.Kind.Noun())
						emitter.Emit(ctx, Event{
							Status:  StatusFailed,
							Attempt: attempts,
							Data:    map[string]any{"reason": reason},
						})
						log.Warn("job completed without asset", "raw_status", verdict.RawStatus)
						return Result{Attempts: attempts, RawStatus: verdict.RawStatus},
							&FailureError{Reason: reason, Attempts: attempts}
					}
					emitter.Emit(ctx, Event{
						Status:  StatusSucceeded,
						Attempt: attempts,
						Data:    map[string]any{handle.Kind.Noun() + "Url": verdict.AssetURL},
					})
					log.Info("job succeeded", "attempts", attempts, "asset_url", verdict.AssetURL)
					return Result{AssetURL: verdict.AssetURL, Attempts: attempts, RawStatus: verdict.RawStatus}, nil

				case video.StateFailed:
					emitter.Emit(ctx, Event{
						Status:  StatusFailed,
						Attempt: attempts,
						Data:    map[string]any{"reason": verdict.Reason},
					})
					log.Warn("job failed", "attempts", attempts, "reason", verdict.Reason)
					return Result{Attempts: attempts, RawStatus: verdict.RawStatus},
						&FailureError{Reason: verdict.Reason, Attempts: attempts}

				case video.StateUnrecognized:
					emitter.Emit(ctx, Event{
						Status:  StatusUnknown,
						Attempt: attempts,
						Data:    map[string]any{"rawStatus": verdict.RawStatus},
					})
					log.Warn("unrecognised provider status", "raw_status", verdict.RawStatus)

				default:
					emitter.Emit(ctx, Event{
						Status:  StatusPending,
						Attempt: attempts,
						Data:    map[string]any{"rawStatus": verdict.RawStatus},
					})
				}
			}

			// Terminal classifications above return before this check, so a
			// terminal status on the final allowed attempt still wins.
			if attempts >= opts.MaxAttempts {
				waited := time.Duration(attempts) * opts.Interval
				emitter.Emit(ctx, Event{Status: StatusTimeout, Attempt: attempts})
				log.Warn("poll session timed out", "attempts", attempts, "waited", waited)
				return Result{Attempts: attempts}, &TimeoutError{Attempts: attempts, Waited: waited}
			}
		}
	}
}
