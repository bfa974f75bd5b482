// Package runway provides a Runway-backed video generation provider. It
// implements the video.TextToVideo, video.ImageToVideo, and
// video.StatusFetcher interfaces against the Runway developer REST API.
package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vidforge/vidforge/pkg/provider/video"
)

const (
	defaultBaseURL = "https://api.dev.runwayml.com"
	defaultModel   = "gen3a_turbo"

	// apiVersion is the value of the X-Runway-Version header. Runway rejects
	// requests without a pinned version date.
	apiVersion = "2024-11-06"

	// ProviderName is the short name used in job handles, logs, and metrics.
	ProviderName = "runway"
)

// Runway task status vocabulary. SUCCEEDED and FAILED are terminal; the other
// three all mean "still working".
const (
	statusPending   = "PENDING"
	statusThrottled = "THROTTLED"
	statusRunning   = "RUNNING"
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
)

// Option is a functional option for configuring the Runway Client.
type Option func(*Client)

// WithBaseURL overrides the default Runway API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel sets the generation model (e.g. "gen3a_turbo", "gen4_turbo").
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to the Runway developer API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Interface checks against the capabilities this provider offers.
var (
	_ video.TextToVideo   = (*Client)(nil)
	_ video.ImageToVideo  = (*Client)(nil)
	_ video.StatusFetcher = (*Client)(nil)
)

// New creates a Runway Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("runway: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- API payloads ----

// createRequest is the body for both generation endpoints. Fields that are
// empty/zero are omitted so the provider applies its defaults.
type createRequest struct {
	PromptText  string `json:"promptText,omitempty"`
	PromptImage string `json:"promptImage,omitempty"`
	Model       string `json:"model"`
	Ratio       string `json:"ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// taskResponse is a Runway task as returned by create and status endpoints.
// Failed tasks carry no structured reason; the status string is all there is.
type taskResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
}

// CreateTextToVideo implements video.TextToVideo.
func (c *Client) CreateTextToVideo(ctx context.Context, req video.TextToVideoRequest) (video.JobHandle, error) {
	if req.Prompt == "" {
		return video.JobHandle{}, errors.New("runway: prompt must not be empty")
	}
	body := createRequest{
		PromptText: req.Prompt,
		Model:      c.modelFor(req.Model),
		Ratio:      req.AspectRatio,
		Duration:   req.DurationSeconds,
	}
	var task taskResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/text_to_video", body, &task); err != nil {
		return video.JobHandle{}, fmt.Errorf("runway: create text_to_video: %w", err)
	}
	if task.ID == "" {
		return video.JobHandle{}, errors.New("runway: create text_to_video: response carried no task ID")
	}
	return video.JobHandle{ID: task.ID, Provider: ProviderName, Kind: video.ResultVideo}, nil
}

// CreateImageToVideo implements video.ImageToVideo.
func (c *Client) CreateImageToVideo(ctx context.Context, req video.ImageToVideoRequest) (video.JobHandle, error) {
	if req.ImageURL == "" {
		return video.JobHandle{}, errors.New("runway: imageURL must not be empty")
	}
	body := createRequest{
		PromptImage: req.ImageURL,
		PromptText:  req.Prompt,
		Model:       c.modelFor(req.Model),
		Ratio:       req.AspectRatio,
		Duration:    req.DurationSeconds,
	}
	var task taskResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/image_to_video", body, &task); err != nil {
		return video.JobHandle{}, fmt.Errorf("runway: create image_to_video: %w", err)
	}
	if task.ID == "" {
		return video.JobHandle{}, errors.New("runway: create image_to_video: response carried no task ID")
	}
	return video.JobHandle{ID: task.ID, Provider: ProviderName, Kind: video.ResultVideo}, nil
}

// FetchStatus implements video.StatusFetcher. A 404 from the tasks endpoint
// is reported as a [video.NotFoundError] so the polling engine stops instead
// of retrying an ID the provider will never recognise again.
func (c *Client) FetchStatus(ctx context.Context, jobID string, _ video.ResultKind) (video.Verdict, error) {
	var task taskResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/tasks/"+jobID, nil, &task)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return video.Verdict{}, &video.NotFoundError{
				Message: fmt.Sprintf("Task ID %s not found.", jobID),
			}
		}
		return video.Verdict{}, fmt.Errorf("runway: fetch status for task %s: %w", jobID, err)
	}
	return classify(task), nil
}

// classify maps one Runway task snapshot onto the shared Verdict variant.
// Pure; exercised directly by tests with literal snapshots.
func classify(task taskResponse) video.Verdict {
	v := video.Verdict{RawStatus: task.Status}
	switch task.Status {
	case statusPending, statusThrottled, statusRunning:
		v.State = video.StatePending
	case statusSucceeded:
		v.State = video.StateSucceeded
		if len(task.Output) > 0 {
			v.AssetURL = task.Output[0]
		}
	case statusFailed:
		v.State = video.StateFailed
		// Runway does not return a failure reason on the task object.
		v.Reason = fmt.Sprintf("Runway task failed with status %s", task.Status)
	default:
		v.State = video.StateUnrecognized
	}
	return v
}

// modelFor returns the override model when set, else the client default.
func (c *Client) modelFor(override string) string {
	if override != "" {
		return override
	}
	return c.model
}

// errNotFound is the internal marker doJSON returns on HTTP 404.
var errNotFound = errors.New("runway: not found")

// doJSON performs one authenticated round trip, encoding body (when non-nil)
// and decoding the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Runway-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
