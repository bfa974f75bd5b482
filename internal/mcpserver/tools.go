package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/internal/poll"
	"github.com/vidforge/vidforge/pkg/provider/video"
	"go.opentelemetry.io/otel/metric"
)

// textToVideoArgs are the arguments shared by both text-to-video tools.
type textToVideoArgs struct {
	// Prompt is the text description of the desired video.
	Prompt string `json:"prompt"`

	// Model overrides the provider's default generation model.
	Model string `json:"model,omitempty"`

	// AspectRatio is a provider-recognised ratio string (e.g. "16:9").
	AspectRatio string `json:"aspect_ratio,omitempty"`

	// DurationSeconds requests a clip length. Zero means provider default.
	DurationSeconds int `json:"duration_seconds,omitempty"`

	// Loop asks for a seamlessly looping clip (Luma only).
	Loop bool `json:"loop,omitempty"`
}

// imageToVideoArgs are the arguments shared by both image-to-video tools.
type imageToVideoArgs struct {
	// ImageURL is the publicly reachable source image.
	ImageURL string `json:"image_url"`

	// Prompt optionally steers the motion applied to the image.
	Prompt string `json:"prompt,omitempty"`

	Model           string `json:"model,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Loop            bool   `json:"loop,omitempty"`
}

type generateImageArgs struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type upscaleArgs struct {
	// GenerationID is the Luma ID of the completed generation to upscale.
	GenerationID string `json:"generation_id"`

	// Resolution is the target resolution label (e.g. "4k").
	Resolution string `json:"resolution,omitempty"`
}

type enhancePromptArgs struct {
	Prompt string `json:"prompt"`
}

type pollStatusArgs struct {
	// Provider is "runway" or "luma".
	Provider string `json:"provider"`

	// JobID is the provider-assigned job identifier.
	JobID string `json:"job_id"`

	// Kind is the expected result kind: "video" (default), "image", or "upscale".
	Kind string `json:"kind,omitempty"`
}

// jobResult is returned by every generation tool. The job keeps running
// server-side; progress arrives via notifications.
type jobResult struct {
	JobID    string `json:"jobId"`
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type enhanceResult struct {
	Prompt string `json:"prompt"`
}

type statusResult struct {
	Status    string `json:"status"`
	RawStatus string `json:"rawStatus,omitempty"`
	AssetURL  string `json:"assetUrl,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// registerTools wires each configured backend's tools into the MCP server.
func (s *Server) registerTools() {
	if s.cfg.Runway != nil {
		addTool(s, "runway_text_to_video",
			"Generate a video from a text prompt using Runway. Returns the job ID immediately; progress and the final video URL are delivered via progress notifications.",
			s.handleRunwayTextToVideo)
		addTool(s, "runway_image_to_video",
			"Animate a source image into a video using Runway. Returns the job ID immediately; progress and the final video URL are delivered via progress notifications.",
			s.handleRunwayImageToVideo)
	}
	if s.cfg.Luma != nil {
		addTool(s, "luma_text_to_video",
			"Generate a video from a text prompt using Luma Dream Machine. Returns the job ID immediately; progress and the final video URL are delivered via progress notifications.",
			s.handleLumaTextToVideo)
		addTool(s, "luma_image_to_video",
			"Animate a source image into a video using Luma Dream Machine. Returns the job ID immediately; progress and the final video URL are delivered via progress notifications.",
			s.handleLumaImageToVideo)
		addTool(s, "luma_generate_image",
			"Generate a still image from a text prompt using Luma. Returns the job ID immediately; progress and the final image URL are delivered via progress notifications.",
			s.handleLumaGenerateImage)
		addTool(s, "luma_upscale",
			"Upscale a previously completed Luma generation. Returns the job ID immediately; progress and the upscaled asset URL are delivered via progress notifications.",
			s.handleLumaUpscale)
	}
	if s.cfg.Enhancer != nil {
		addTool(s, "enhance_prompt",
			"Rewrite a short prompt into a detailed, cinematic generation prompt using an LLM. Synchronous; returns the enhanced prompt directly.",
			s.handleEnhancePrompt)
	}
	if s.cfg.Runway != nil || s.cfg.Luma != nil {
		addTool(s, "poll_status",
			"Fetch the current status of a known generation job once, without starting a poll session. Useful to re-attach to a job after a disconnect.",
			s.handlePollStatus)
	}
}

// addTool registers a typed tool handler with call instrumentation.
func addTool[In, Out any](s *Server, name, desc string, h func(ctx context.Context, req *mcp.CallToolRequest, in In) (Out, error)) {
	mcp.AddTool(s.server, &mcp.Tool{Name: name, Description: desc},
		func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			ctx, span := observe.StartSpan(ctx, "tool/"+name)
			defer span.End()

			start := time.Now()
			out, err := h(ctx, req, in)

			status := "ok"
			if err != nil {
				status = "error"
				observe.Logger(ctx).Warn("tool call failed", "tool", name, "error", err)
			}
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributes(observe.Attr("tool", name)))
				s.cfg.Metrics.RecordToolCall(ctx, name, status)
			}
			return nil, out, err
		})
}

// launch starts a poll session for a freshly created job and builds the
// immediate tool result. The session runs under the server's context, not the
// request's: the tool call returns long before the job finishes.
func (s *Server) launch(req *mcp.CallToolRequest, handle video.JobHandle, fetcher video.StatusFetcher, prompt string) (jobResult, error) {
	emitter := newProgressNotifier(req, handle.Key(), s.cfg.MaxAttempts, s.cfg.Metrics)

	err := s.cfg.Registry.Launch(s.background(), poll.Session{
		Handle:  handle,
		Fetcher: fetcher,
		Emitter: emitter,
		Prompt:  prompt,
	})
	if err != nil {
		return jobResult{}, fmt.Errorf("mcpserver: start poll session for %s: %w", handle.Key(), err)
	}

	slog.Info("generation job submitted", "job", handle.Key(), "kind", handle.Kind)
	return jobResult{
		JobID:    handle.ID,
		Provider: handle.Provider,
		Status:   "RUNNING",
		Message:  fmt.Sprintf("%s generation started. Progress is reported via notifications.", handle.Kind.Noun()),
	}, nil
}

func (s *Server) handleRunwayTextToVideo(ctx context.Context, req *mcp.CallToolRequest, in textToVideoArgs) (jobResult, error) {
	if in.Prompt == "" {
		return jobResult{}, fmt.Errorf("mcpserver: prompt is required")
	}
	handle, err := s.cfg.Runway.CreateTextToVideo(ctx, video.TextToVideoRequest{
		Prompt:          in.Prompt,
		Model:           in.Model,
		AspectRatio:     in.AspectRatio,
		DurationSeconds: in.DurationSeconds,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.RunwayFetcher, in.Prompt)
}

func (s *Server) handleRunwayImageToVideo(ctx context.Context, req *mcp.CallToolRequest, in imageToVideoArgs) (jobResult, error) {
	if in.ImageURL == "" {
		return jobResult{}, fmt.Errorf("mcpserver: image_url is required")
	}
	handle, err := s.cfg.Runway.CreateImageToVideo(ctx, video.ImageToVideoRequest{
		ImageURL:        in.ImageURL,
		Prompt:          in.Prompt,
		Model:           in.Model,
		AspectRatio:     in.AspectRatio,
		DurationSeconds: in.DurationSeconds,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.RunwayFetcher, in.Prompt)
}

func (s *Server) handleLumaTextToVideo(ctx context.Context, req *mcp.CallToolRequest, in textToVideoArgs) (jobResult, error) {
	if in.Prompt == "" {
		return jobResult{}, fmt.Errorf("mcpserver: prompt is required")
	}
	handle, err := s.cfg.Luma.CreateTextToVideo(ctx, video.TextToVideoRequest{
		Prompt:          in.Prompt,
		Model:           in.Model,
		AspectRatio:     in.AspectRatio,
		DurationSeconds: in.DurationSeconds,
		Loop:            in.Loop,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.LumaFetcher, in.Prompt)
}

func (s *Server) handleLumaImageToVideo(ctx context.Context, req *mcp.CallToolRequest, in imageToVideoArgs) (jobResult, error) {
	if in.ImageURL == "" {
		return jobResult{}, fmt.Errorf("mcpserver: image_url is required")
	}
	handle, err := s.cfg.Luma.CreateImageToVideo(ctx, video.ImageToVideoRequest{
		ImageURL:        in.ImageURL,
		Prompt:          in.Prompt,
		Model:           in.Model,
		AspectRatio:     in.AspectRatio,
		DurationSeconds: in.DurationSeconds,
		Loop:            in.Loop,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.LumaFetcher, in.Prompt)
}

func (s *Server) handleLumaGenerateImage(ctx context.Context, req *mcp.CallToolRequest, in generateImageArgs) (jobResult, error) {
	if in.Prompt == "" {
		return jobResult{}, fmt.Errorf("mcpserver: prompt is required")
	}
	handle, err := s.cfg.Luma.CreateImage(ctx, video.ImageRequest{
		Prompt:      in.Prompt,
		Model:       in.Model,
		AspectRatio: in.AspectRatio,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.LumaFetcher, in.Prompt)
}

func (s *Server) handleLumaUpscale(ctx context.Context, req *mcp.CallToolRequest, in upscaleArgs) (jobResult, error) {
	if in.GenerationID == "" {
		return jobResult{}, fmt.Errorf("mcpserver: generation_id is required")
	}
	handle, err := s.cfg.Luma.CreateUpscale(ctx, video.UpscaleRequest{
		GenerationID: in.GenerationID,
		Resolution:   in.Resolution,
	})
	if err != nil {
		return jobResult{}, err
	}
	return s.launch(req, handle, s.cfg.LumaFetcher, "")
}

func (s *Server) handleEnhancePrompt(ctx context.Context, _ *mcp.CallToolRequest, in enhancePromptArgs) (enhanceResult, error) {
	improved, err := s.cfg.Enhancer.Enhance(ctx, in.Prompt)
	if err != nil {
		return enhanceResult{}, err
	}
	return enhanceResult{Prompt: improved}, nil
}

func (s *Server) handlePollStatus(ctx context.Context, _ *mcp.CallToolRequest, in pollStatusArgs) (statusResult, error) {
	if in.JobID == "" {
		return statusResult{}, fmt.Errorf("mcpserver: job_id is required")
	}
	kind := video.ResultKind(in.Kind)
	if in.Kind == "" {
		kind = video.ResultVideo
	}
	if !kind.IsValid() {
		return statusResult{}, fmt.Errorf("mcpserver: kind %q is invalid; valid values: video, image, upscale", in.Kind)
	}

	var fetcher video.StatusFetcher
	switch in.Provider {
	case "runway":
		fetcher = s.cfg.RunwayFetcher
	case "luma":
		fetcher = s.cfg.LumaFetcher
	default:
		return statusResult{}, fmt.Errorf("mcpserver: provider %q is invalid; valid values: runway, luma", in.Provider)
	}
	if fetcher == nil {
		return statusResult{}, fmt.Errorf("mcpserver: provider %q is not configured", in.Provider)
	}

	verdict, err := fetcher.FetchStatus(ctx, in.JobID, kind)
	if err != nil {
		return statusResult{}, err
	}
	return statusResult{
		Status:    verdict.State.String(),
		RawStatus: verdict.RawStatus,
		AssetURL:  verdict.AssetURL,
		Reason:    verdict.Reason,
	}, nil
}
