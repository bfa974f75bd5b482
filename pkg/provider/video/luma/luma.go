// Package luma provides a Luma Dream Machine-backed generation provider. It
// implements all four video capability interfaces (text-to-video,
// image-to-video, image generation, upscale) plus video.StatusFetcher against
// the Dream Machine REST API.
package luma

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
	defaultBaseURL = "https://api.lumalabs.ai/dream-machine/v1"
	defaultModel   = "ray-2"

	// ProviderName is the short name used in job handles, logs, and metrics.
	ProviderName = "luma"
)

// Luma generation state vocabulary. "queued" and "dreaming" both mean the
// render is still in flight.
const (
	stateQueued    = "queued"
	stateDreaming  = "dreaming"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// defaultFailureReason is used when a failed generation carries no
// failure_reason field.
const defaultFailureReason = "unknown failure reason"

// Option is a functional option for configuring the Luma Client.
type Option func(*Client)

// WithBaseURL overrides the default Dream Machine API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel sets the generation model (e.g. "ray-2", "ray-flash-2").
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

// WithAssetKey overrides which key of the generation's assets map holds the
// result for a given kind. In particular the upscale result is assumed to
// land under "video", which has not been verified against live provider
// behaviour — this option exists so a deployment can correct the mapping
// without a code change.
func WithAssetKey(kind video.ResultKind, key string) Option {
	return func(c *Client) {
		c.assetKeys[kind] = key
	}
}

// Client talks to the Luma Dream Machine API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	assetKeys  map[video.ResultKind]string
}

// Interface checks against the capabilities this provider offers.
var (
	_ video.TextToVideo    = (*Client)(nil)
	_ video.ImageToVideo   = (*Client)(nil)
	_ video.ImageGenerator = (*Client)(nil)
	_ video.Upscaler       = (*Client)(nil)
	_ video.StatusFetcher  = (*Client)(nil)
)

// New creates a Luma Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("luma: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{},
		assetKeys: map[video.ResultKind]string{
			video.ResultVideo:   "video",
			video.ResultImage:   "image",
			video.ResultUpscale: "video",
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- API payloads ----

// createRequest is the body for POST /generations and /generations/image.
type createRequest struct {
	Prompt      string              `json:"prompt"`
	Model       string              `json:"model,omitempty"`
	AspectRatio string              `json:"aspect_ratio,omitempty"`
	Duration    string              `json:"duration,omitempty"`
	Loop        bool                `json:"loop,omitempty"`
	Keyframes   map[string]keyframe `json:"keyframes,omitempty"`
}

// keyframe anchors a generation to an existing image or generation.
type keyframe struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	ID   string `json:"id,omitempty"`
}

// upscaleRequest is the body for POST /generations/{id}/upscale.
type upscaleRequest struct {
	Resolution string `json:"resolution,omitempty"`
}

// generationResponse is a Dream Machine generation as returned by create and
// status endpoints. Assets is a keyed map; which key holds the result depends
// on what was generated.
type generationResponse struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	FailureReason string            `json:"failure_reason"`
	Assets        map[string]string `json:"assets"`
}

// CreateTextToVideo implements video.TextToVideo.
func (c *Client) CreateTextToVideo(ctx context.Context, req video.TextToVideoRequest) (video.JobHandle, error) {
	if req.Prompt == "" {
		return video.JobHandle{}, errors.New("luma: prompt must not be empty")
	}
	body := createRequest{
		Prompt:      req.Prompt,
		Model:       c.modelFor(req.Model),
		AspectRatio: req.AspectRatio,
		Duration:    durationString(req.DurationSeconds),
		Loop:        req.Loop,
	}
	gen, err := c.create(ctx, "/generations", body)
	if err != nil {
		return video.JobHandle{}, fmt.Errorf("luma: create text-to-video generation: %w", err)
	}
	return video.JobHandle{ID: gen.ID, Provider: ProviderName, Kind: video.ResultVideo}, nil
}

// CreateImageToVideo implements video.ImageToVideo. The source image is
// attached as the frame0 keyframe.
func (c *Client) CreateImageToVideo(ctx context.Context, req video.ImageToVideoRequest) (video.JobHandle, error) {
	if req.ImageURL == "" {
		return video.JobHandle{}, errors.New("luma: imageURL must not be empty")
	}
	body := createRequest{
		Prompt:      req.Prompt,
		Model:       c.modelFor(req.Model),
		AspectRatio: req.AspectRatio,
		Duration:    durationString(req.DurationSeconds),
		Loop:        req.Loop,
		Keyframes: map[string]keyframe{
			"frame0": {Type: "image", URL: req.ImageURL},
		},
	}
	gen, err := c.create(ctx, "/generations", body)
	if err != nil {
		return video.JobHandle{}, fmt.Errorf("luma: create image-to-video generation: %w", err)
	}
	return video.JobHandle{ID: gen.ID, Provider: ProviderName, Kind: video.ResultVideo}, nil
}

// CreateImage implements video.ImageGenerator.
func (c *Client) CreateImage(ctx context.Context, req video.ImageRequest) (video.JobHandle, error) {
	if req.Prompt == "" {
		return video.JobHandle{}, errors.New("luma: prompt must not be empty")
	}
	body := createRequest{
		Prompt:      req.Prompt,
		Model:       req.Model, // image models differ from video models; no shared default
		AspectRatio: req.AspectRatio,
	}
	gen, err := c.create(ctx, "/generations/image", body)
	if err != nil {
		return video.JobHandle{}, fmt.Errorf("luma: create image generation: %w", err)
	}
	return video.JobHandle{ID: gen.ID, Provider: ProviderName, Kind: video.ResultImage}, nil
}

// CreateUpscale implements video.Upscaler.
func (c *Client) CreateUpscale(ctx context.Context, req video.UpscaleRequest) (video.JobHandle, error) {
	if req.GenerationID == "" {
		return video.JobHandle{}, errors.New("luma: generationID must not be empty")
	}
	var gen generationResponse
	err := c.doJSON(ctx, http.MethodPost, "/generations/"+req.GenerationID+"/upscale",
		upscaleRequest{Resolution: req.Resolution}, &gen)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return video.JobHandle{}, &video.NotFoundError{
				Message: fmt.Sprintf("Generation ID %s not found.", req.GenerationID),
			}
		}
		return video.JobHandle{}, fmt.Errorf("luma: create upscale: %w", err)
	}
	id := gen.ID
	if id == "" {
		// Some upscale responses reuse the source generation ID.
		id = req.GenerationID
	}
	return video.JobHandle{ID: id, Provider: ProviderName, Kind: video.ResultUpscale}, nil
}

// FetchStatus implements video.StatusFetcher.
func (c *Client) FetchStatus(ctx context.Context, jobID string, kind video.ResultKind) (video.Verdict, error) {
	var gen generationResponse
	err := c.doJSON(ctx, http.MethodGet, "/generations/"+jobID, nil, &gen)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return video.Verdict{}, &video.NotFoundError{
				Message: fmt.Sprintf("Generation ID %s not found.", jobID),
			}
		}
		return video.Verdict{}, fmt.Errorf("luma: fetch status for generation %s: %w", jobID, err)
	}
	return c.classify(gen, kind), nil
}

// classify maps one generation snapshot onto the shared Verdict variant,
// resolving the asset through the kind-dependent key mapping.
func (c *Client) classify(gen generationResponse, kind video.ResultKind) video.Verdict {
	v := video.Verdict{RawStatus: gen.State}
	switch gen.State {
	case stateQueued, stateDreaming:
		v.State = video.StatePending
	case stateCompleted:
		v.State = video.StateSucceeded
		v.AssetURL = gen.Assets[c.assetKeys[kind]]
	case stateFailed:
		v.State = video.StateFailed
		v.Reason = gen.FailureReason
		if v.Reason == "" {
			v.Reason = defaultFailureReason
		}
	default:
		v.State = video.StateUnrecognized
	}
	return v
}

// create posts a generation request and validates that an ID came back.
func (c *Client) create(ctx context.Context, path string, body createRequest) (generationResponse, error) {
	var gen generationResponse
	if err := c.doJSON(ctx, http.MethodPost, path, body, &gen); err != nil {
		return generationResponse{}, err
	}
	if gen.ID == "" {
		return generationResponse{}, errors.New("response carried no generation ID")
	}
	return gen, nil
}

// modelFor returns the override model when set, else the client default.
func (c *Client) modelFor(override string) string {
	if override != "" {
		return override
	}
	return c.model
}

// durationString renders a clip duration the way the API expects ("5s").
func durationString(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%ds", seconds)
}

// errNotFound is the internal marker doJSON returns on HTTP 404.
var errNotFound = errors.New("luma: not found")

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
