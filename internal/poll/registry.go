package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/pkg/provider/video"
)

// DefaultMaxSessions caps concurrent poll sessions when RegistryConfig leaves
// MaxSessions unset.
const DefaultMaxSessions = 32

// Terminal outcome statuses recorded by the registry.
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
	OutcomeTimedOut  = "TIMED_OUT"
	OutcomeCancelled = "CANCELLED"
)

var (
	// ErrDuplicateJob is returned by Launch when a session for the same job
	// handle is already running.
	ErrDuplicateJob = errors.New("poll: a session for this job is already running")

	// ErrTooManySessions is returned by Launch when the concurrent session
	// cap is reached.
	ErrTooManySessions = errors.New("poll: concurrent session limit reached")
)

// Outcome summarises how one poll session ended.
type Outcome struct {
	Status   string
	AssetURL string
	Reason   string
	Attempts int
}

// Recorder receives session lifecycle callbacks for audit. Implementations
// must tolerate being called from many goroutines. Recorder errors are logged
// and otherwise ignored: auditing must never affect polling.
type Recorder interface {
	JobStarted(ctx context.Context, handle video.JobHandle, prompt string) error
	JobFinished(ctx context.Context, handle video.JobHandle, outcome Outcome) error
}

// Session describes one job to poll.
type Session struct {
	// Handle identifies the remote job.
	Handle video.JobHandle

	// Fetcher performs the per-tick status round trip.
	Fetcher video.StatusFetcher

	// Emitter receives progress events. May be nil.
	Emitter Emitter

	// Prompt is the originating prompt, recorded for audit only.
	Prompt string
}

// RegistryConfig configures a [Registry].
type RegistryConfig struct {
	// MaxSessions caps concurrently running sessions. Defaults to
	// DefaultMaxSessions if zero.
	MaxSessions int64

	// Options bounds each launched session.
	Options Options

	// Recorder, when non-nil, receives lifecycle callbacks.
	Recorder Recorder

	// Metrics, when non-nil, receives session and tick instrumentation.
	Metrics *observe.Metrics
}

// Registry launches and tracks poll sessions. It guarantees at most one
// session per job handle, bounds the number of concurrent sessions, and
// records each terminal outcome. All methods are safe for concurrent use.
type Registry struct {
	sem      *semaphore.Weighted
	opts     Options
	recorder Recorder
	metrics  *observe.Metrics

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewRegistry creates a [Registry] with the given configuration.
func NewRegistry(cfg RegistryConfig) *Registry {
	max := cfg.MaxSessions
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Registry{
		sem:      semaphore.NewWeighted(max),
		opts:     cfg.Options,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		active:   make(map[string]struct{}),
	}
}

// Active returns the number of currently running sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Launch starts polling s.Handle in a background goroutine and returns
// immediately. ctx must outlive the session (pass the server's run context,
// not a request context). The eventual outcome is observable only through
// the session's emitter, the recorder, and logs.
func (r *Registry) Launch(ctx context.Context, s Session) error {
	key := s.Handle.Key()

	r.mu.Lock()
	if _, dup := r.active[key]; dup {
		r.mu.Unlock()
		return ErrDuplicateJob
	}
	r.active[key] = struct{}{}
	r.mu.Unlock()

	if !r.sem.TryAcquire(1) {
		r.release(key)
		return ErrTooManySessions
	}

	if r.recorder != nil {
		if err := r.recorder.JobStarted(ctx, s.Handle, s.Prompt); err != nil {
			slog.Warn("failed to record job start", "job", key, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.ActivePollSessions.Add(ctx, 1)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer r.release(key)

		fetcher := s.Fetcher
		if r.metrics != nil {
			fetcher = &timedFetcher{next: s.Fetcher, provider: s.Handle.Provider, metrics: r.metrics}
			defer r.metrics.ActivePollSessions.Add(ctx, -1)
		}

		result, err := Run(ctx, s.Handle, fetcher, s.Emitter, r.opts)
		outcome := outcomeOf(result, err)
		if r.metrics != nil {
			r.metrics.RecordJobOutcome(ctx, s.Handle.Provider, outcome.Status)
		}
		if r.recorder != nil {
			// Record with a fresh deadline so cancellation of the session
			// context does not lose the terminal row.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := r.recorder.JobFinished(rctx, s.Handle, outcome); err != nil {
				slog.Warn("failed to record job outcome", "job", key, "error", err)
			}
		}
	}()

	return nil
}

// Wait blocks until all launched sessions have finished. Intended for
// shutdown paths and tests.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()
}

// outcomeOf maps a session's return values onto a recorded Outcome.
func outcomeOf(result Result, err error) Outcome {
	out := Outcome{Attempts: result.Attempts, AssetURL: result.AssetURL}
	switch {
	case err == nil:
		out.Status = OutcomeSucceeded
	case errors.Is(err, ErrCancelled):
		out.Status = OutcomeCancelled
	default:
		var te *TimeoutError
		if errors.As(err, &te) {
			out.Status = OutcomeTimedOut
			break
		}
		var fe *FailureError
		if errors.As(err, &fe) {
			out.Status = OutcomeFailed
			out.Reason = fe.Reason
			break
		}
		out.Status = OutcomeFailed
		out.Reason = err.Error()
	}
	return out
}

// timedFetcher instruments each status round trip.
type timedFetcher struct {
	next     video.StatusFetcher
	provider string
	metrics  *observe.Metrics
}

func (f *timedFetcher) FetchStatus(ctx context.Context, jobID string, kind video.ResultKind) (video.Verdict, error) {
	start := time.Now()
	verdict, err := f.next.FetchStatus(ctx, jobID, kind)
	f.metrics.PollTickDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", f.provider)))
	status := "ok"
	if err != nil {
		status = "error"
		f.metrics.RecordProviderError(ctx, f.provider, string(kind))
	}
	f.metrics.RecordProviderRequest(ctx, f.provider, string(kind), status)
	return verdict, err
}
