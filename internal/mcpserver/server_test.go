package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vidforge/vidforge/internal/poll"
	"github.com/vidforge/vidforge/pkg/provider/video"
	"github.com/vidforge/vidforge/pkg/provider/video/mock"
)

// newTestServer wires mock backends behind a fast-polling registry.
func newTestServer(t *testing.T, cfg Config) (*Server, *poll.Registry) {
	t.Helper()
	reg := poll.NewRegistry(poll.RegistryConfig{
		Options: poll.Options{Interval: time.Millisecond, MaxAttempts: 3},
	})
	cfg.Registry = reg
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s, reg
}

func toolRequest() *mcp.CallToolRequest {
	return &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{}}
}

func succeedingMock(handle video.JobHandle) *mock.Client {
	return &mock.Client{
		Handle: handle,
		Verdicts: []mock.FetchResult{
			{Verdict: video.Verdict{State: video.StateSucceeded, RawStatus: "SUCCEEDED", AssetURL: "https://cdn.example/out.mp4"}},
		},
	}
}

func TestNewServer_RequiresRegistry(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("NewServer() without registry succeeded, want error")
	}
}

func TestRunwayTextToVideo(t *testing.T) {
	client := succeedingMock(video.JobHandle{ID: "task-1", Provider: "runway", Kind: video.ResultVideo})
	s, reg := newTestServer(t, Config{Runway: client})

	res, err := s.handleRunwayTextToVideo(context.Background(), toolRequest(), textToVideoArgs{Prompt: "a drifting iceberg"})
	if err != nil {
		t.Fatalf("handleRunwayTextToVideo() error = %v", err)
	}
	if res.JobID != "task-1" || res.Provider != "runway" {
		t.Errorf("result = %+v, want JobID task-1, Provider runway", res)
	}
	if res.Status != "RUNNING" {
		t.Errorf("Status = %q, want RUNNING", res.Status)
	}

	reg.Wait()
	if client.FetchCount() == 0 {
		t.Error("no status fetches after launch; poll session did not run")
	}
}

func TestRunwayTextToVideo_RequiresPrompt(t *testing.T) {
	s, _ := newTestServer(t, Config{Runway: &mock.Client{}})
	if _, err := s.handleRunwayTextToVideo(context.Background(), toolRequest(), textToVideoArgs{}); err == nil {
		t.Fatal("empty prompt accepted, want error")
	}
}

func TestRunwayImageToVideo_RequiresImageURL(t *testing.T) {
	s, _ := newTestServer(t, Config{Runway: &mock.Client{}})
	if _, err := s.handleRunwayImageToVideo(context.Background(), toolRequest(), imageToVideoArgs{Prompt: "motion"}); err == nil {
		t.Fatal("empty image_url accepted, want error")
	}
}

func TestLumaUpscale_RequiresGenerationID(t *testing.T) {
	s, _ := newTestServer(t, Config{Luma: &mock.Client{}})
	if _, err := s.handleLumaUpscale(context.Background(), toolRequest(), upscaleArgs{}); err == nil {
		t.Fatal("empty generation_id accepted, want error")
	}
}

func TestLumaGenerateImage(t *testing.T) {
	client := succeedingMock(video.JobHandle{ID: "gen-9", Provider: "luma", Kind: video.ResultImage})
	s, reg := newTestServer(t, Config{Luma: client})

	res, err := s.handleLumaGenerateImage(context.Background(), toolRequest(), generateImageArgs{Prompt: "a lighthouse"})
	if err != nil {
		t.Fatalf("handleLumaGenerateImage() error = %v", err)
	}
	if res.JobID != "gen-9" {
		t.Errorf("JobID = %q, want gen-9", res.JobID)
	}
	if !strings.Contains(res.Message, "image") {
		t.Errorf("Message = %q, want the word image", res.Message)
	}
	reg.Wait()
}

func TestDuplicateLaunchFails(t *testing.T) {
	handle := video.JobHandle{ID: "dup-1", Provider: "luma", Kind: video.ResultVideo}
	client := &mock.Client{
		Handle: handle,
		Verdicts: []mock.FetchResult{
			{Verdict: video.Verdict{State: video.StatePending, RawStatus: "dreaming"}},
		},
	}
	s, reg := newTestServer(t, Config{Luma: client})

	if _, err := s.handleLumaTextToVideo(context.Background(), toolRequest(), textToVideoArgs{Prompt: "x"}); err != nil {
		t.Fatalf("first launch error = %v", err)
	}
	if _, err := s.handleLumaTextToVideo(context.Background(), toolRequest(), textToVideoArgs{Prompt: "x"}); err == nil {
		t.Fatal("second launch for same job ID succeeded, want error")
	}
	reg.Wait()
}

func TestPollStatus(t *testing.T) {
	client := &mock.Client{
		Verdicts: []mock.FetchResult{
			{Verdict: video.Verdict{State: video.StateSucceeded, RawStatus: "completed", AssetURL: "https://cdn.example/a.mp4"}},
		},
	}
	s, _ := newTestServer(t, Config{Luma: client})

	res, err := s.handlePollStatus(context.Background(), toolRequest(), pollStatusArgs{Provider: "luma", JobID: "gen-1"})
	if err != nil {
		t.Fatalf("handlePollStatus() error = %v", err)
	}
	if res.Status != "SUCCEEDED" {
		t.Errorf("Status = %q, want SUCCEEDED", res.Status)
	}
	if res.AssetURL != "https://cdn.example/a.mp4" {
		t.Errorf("AssetURL = %q, want asset URL", res.AssetURL)
	}
	if len(client.FetchCalls) != 1 {
		t.Fatalf("FetchCalls = %d, want 1", len(client.FetchCalls))
	}
	if client.FetchCalls[0].Kind != video.ResultVideo {
		t.Errorf("fetch kind = %q, want video default", client.FetchCalls[0].Kind)
	}
}

func TestPollStatus_Validation(t *testing.T) {
	s, _ := newTestServer(t, Config{Luma: &mock.Client{}})

	tests := []struct {
		name string
		args pollStatusArgs
	}{
		{"missing job id", pollStatusArgs{Provider: "luma"}},
		{"bad provider", pollStatusArgs{Provider: "pika", JobID: "j1"}},
		{"bad kind", pollStatusArgs{Provider: "luma", JobID: "j1", Kind: "hologram"}},
		{"unconfigured provider", pollStatusArgs{Provider: "runway", JobID: "j1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.handlePollStatus(context.Background(), toolRequest(), tt.args); err == nil {
				t.Errorf("handlePollStatus(%+v) succeeded, want error", tt.args)
			}
		})
	}
}
