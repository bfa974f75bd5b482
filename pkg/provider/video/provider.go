// Package video defines the shared types and interfaces for asynchronous
// video/image generation backends.
//
// A generation provider wraps a remote rendering API (e.g., Runway or Luma
// Dream Machine) behind two narrow responsibilities: submit a job and report
// its status. Submission returns a provider-assigned job ID immediately; the
// actual render completes minutes later and is observed by repeatedly calling
// [StatusFetcher.FetchStatus] until a terminal [Verdict] arrives.
//
// Each provider translates its own status vocabulary into the shared
// [Verdict] tagged variant, so the polling engine never needs to know what
// "dreaming" or "THROTTLED" mean. Implementors must be safe for concurrent
// use; one client instance serves many concurrent jobs.
package video

import "context"

// StatusFetcher performs one status round trip for a previously submitted job.
//
// FetchStatus returns the classified status of the job. A non-nil error means
// the round trip itself failed (network, auth, provider outage) and says
// nothing about the job; callers should treat it as transient unless it wraps
// [ErrJobNotFound], which is permanent — the provider no longer knows the ID
// and retrying cannot help.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string, kind ResultKind) (Verdict, error)
}

// TextToVideo submits a text-prompt-driven video generation job.
type TextToVideo interface {
	CreateTextToVideo(ctx context.Context, req TextToVideoRequest) (JobHandle, error)
}

// ImageToVideo submits a video generation job seeded with a source image.
type ImageToVideo interface {
	CreateImageToVideo(ctx context.Context, req ImageToVideoRequest) (JobHandle, error)
}

// ImageGenerator submits a still-image generation job.
type ImageGenerator interface {
	CreateImage(ctx context.Context, req ImageRequest) (JobHandle, error)
}

// Upscaler submits an upscale job for a previously completed generation.
type Upscaler interface {
	CreateUpscale(ctx context.Context, req UpscaleRequest) (JobHandle, error)
}

// TextToVideoRequest carries the arguments for a text-to-video submission.
type TextToVideoRequest struct {
	// Prompt is the text description of the desired video.
	Prompt string

	// Model overrides the provider's default generation model when non-empty.
	Model string

	// AspectRatio is a provider-recognised ratio string (e.g. "16:9").
	AspectRatio string

	// DurationSeconds requests a clip length. Zero means provider default.
	DurationSeconds int

	// Loop asks for a seamlessly looping clip where the provider supports it.
	Loop bool
}

// ImageToVideoRequest carries the arguments for an image-to-video submission.
type ImageToVideoRequest struct {
	// ImageURL is the publicly reachable source image.
	ImageURL string

	// Prompt optionally steers the motion applied to the image.
	Prompt string

	Model           string
	AspectRatio     string
	DurationSeconds int
	Loop            bool
}

// ImageRequest carries the arguments for a still-image submission.
type ImageRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
}

// UpscaleRequest names an existing generation to upscale.
type UpscaleRequest struct {
	// GenerationID is the provider's ID of the completed generation.
	GenerationID string

	// Resolution is the target resolution label (e.g. "4k"). Empty means the
	// provider default.
	Resolution string
}
