package video

import (
	"errors"
	"fmt"
)

// ErrJobNotFound marks a status-fetch failure where the provider reports that
// the job ID does not exist. Unlike ordinary transport errors this is
// permanent: the polling engine terminates the session instead of retrying.
// Providers wrap this sentinel with their own ID-bearing message.
var ErrJobNotFound = errors.New("video: job not found")

// NotFoundError is the concrete error providers return for an unknown job ID.
// Its message is surfaced verbatim as the failure reason of the session.
type NotFoundError struct {
	// Message is the provider-worded reason, e.g. "Generation ID abc not found."
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Is reports that a NotFoundError matches [ErrJobNotFound] for errors.Is.
func (e *NotFoundError) Is(target error) bool { return target == ErrJobNotFound }

// ResultKind names the asset a job is expected to produce. Providers use it
// to pick the right field out of their status payloads.
type ResultKind string

const (
	// ResultVideo is a rendered video clip.
	ResultVideo ResultKind = "video"

	// ResultImage is a rendered still image.
	ResultImage ResultKind = "image"

	// ResultUpscale is an upscaled render of an earlier generation.
	ResultUpscale ResultKind = "upscale"
)

// IsValid reports whether k is a recognised result kind.
func (k ResultKind) IsValid() bool {
	switch k {
	case ResultVideo, ResultImage, ResultUpscale:
		return true
	}
	return false
}

// Noun returns the human word used in user-facing messages ("video"/"image").
func (k ResultKind) Noun() string {
	if k == ResultImage {
		return "image"
	}
	return "video"
}

// JobHandle identifies one remote asynchronous job. It is immutable: created
// at submission time, passed by value into the polling engine, and discarded
// when the session ends.
type JobHandle struct {
	// ID is the provider-assigned job identifier.
	ID string

	// Provider is the short provider name ("runway", "luma"). Used for
	// logging, metrics, and session deduplication.
	Provider string

	// Kind is the asset the job is expected to produce.
	Kind ResultKind
}

// Key returns the registry deduplication key for the handle.
func (h JobHandle) Key() string { return h.Provider + "/" + h.ID }

// State is the four-way classification of one status snapshot.
type State int

const (
	// StatePending means the job is still being worked on; keep polling.
	StatePending State = iota

	// StateSucceeded means the job finished and an asset should be available.
	StateSucceeded

	// StateFailed means the provider reports the job as failed.
	StateFailed

	// StateUnrecognized means the provider returned a status outside its
	// documented vocabulary. Treated like pending, but surfaced distinctly so
	// operators notice contract drift.
	StateUnrecognized
)

// String returns the classification name used in progress events.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateUnrecognized:
		return "UNKNOWN_STATUS"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Verdict is the classified outcome of one status fetch — the tagged variant
// the polling engine consumes. Exactly the fields implied by State are set:
// AssetURL for [StateSucceeded], Reason for [StateFailed], and RawStatus
// always carries the provider's literal status string.
type Verdict struct {
	State     State
	RawStatus string

	// AssetURL is the location of the produced asset. Only meaningful when
	// State is [StateSucceeded]; may still be empty when the provider
	// violated its contract (success status without an asset).
	AssetURL string

	// Reason is the human-readable failure description. Only meaningful when
	// State is [StateFailed].
	Reason string
}
