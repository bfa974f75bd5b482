// Package mock provides a test double for the video provider interfaces.
//
// Use Client in unit tests to script a sequence of status verdicts (one per
// poll tick) and to verify submission arguments without touching a live
// provider API.
//
// Example:
//
//	c := &mock.Client{
//	    Verdicts: []mock.FetchResult{
//	        {Verdict: video.Verdict{State: video.StatePending, RawStatus: "RUNNING"}},
//	        {Verdict: video.Verdict{State: video.StateSucceeded, RawStatus: "SUCCEEDED", AssetURL: "https://x/v.mp4"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/vidforge/vidforge/pkg/provider/video"
)

// FetchResult scripts the outcome of one FetchStatus call.
type FetchResult struct {
	Verdict video.Verdict
	Err     error
}

// FetchCall records a single invocation of FetchStatus.
type FetchCall struct {
	JobID string
	Kind  video.ResultKind
}

// Client is a mock implementation of every video capability interface plus
// video.StatusFetcher. Zero values cause methods to return zero values and
// nil errors.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Handle is returned by every Create* method.
	Handle video.JobHandle

	// CreateErr, if non-nil, is returned by every Create* method.
	CreateErr error

	// Verdicts is the scripted sequence of FetchStatus outcomes, consumed in
	// order. When the sequence is exhausted the last entry repeats.
	Verdicts []FetchResult

	// --- Call records (read after test) ---

	// FetchCalls records every FetchStatus invocation in order.
	FetchCalls []FetchCall

	// CreateCalls counts all Create* invocations.
	CreateCalls int
}

// Interface checks.
var (
	_ video.TextToVideo    = (*Client)(nil)
	_ video.ImageToVideo   = (*Client)(nil)
	_ video.ImageGenerator = (*Client)(nil)
	_ video.Upscaler       = (*Client)(nil)
	_ video.StatusFetcher  = (*Client)(nil)
)

// CreateTextToVideo records the call and returns Handle, CreateErr.
func (c *Client) CreateTextToVideo(_ context.Context, _ video.TextToVideoRequest) (video.JobHandle, error) {
	return c.create()
}

// CreateImageToVideo records the call and returns Handle, CreateErr.
func (c *Client) CreateImageToVideo(_ context.Context, _ video.ImageToVideoRequest) (video.JobHandle, error) {
	return c.create()
}

// CreateImage records the call and returns Handle, CreateErr.
func (c *Client) CreateImage(_ context.Context, _ video.ImageRequest) (video.JobHandle, error) {
	return c.create()
}

// CreateUpscale records the call and returns Handle, CreateErr.
func (c *Client) CreateUpscale(_ context.Context, _ video.UpscaleRequest) (video.JobHandle, error) {
	return c.create()
}

func (c *Client) create() (video.JobHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CreateCalls++
	return c.Handle, c.CreateErr
}

// FetchStatus records the call and returns the next scripted FetchResult.
func (c *Client) FetchStatus(_ context.Context, jobID string, kind video.ResultKind) (video.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FetchCalls = append(c.FetchCalls, FetchCall{JobID: jobID, Kind: kind})

	if len(c.Verdicts) == 0 {
		return video.Verdict{}, nil
	}
	idx := len(c.FetchCalls) - 1
	if idx >= len(c.Verdicts) {
		idx = len(c.Verdicts) - 1
	}
	r := c.Verdicts[idx]
	return r.Verdict, r.Err
}

// FetchCount returns the number of FetchStatus calls made so far. Thread-safe.
func (c *Client) FetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.FetchCalls)
}
