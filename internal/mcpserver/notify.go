package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/internal/poll"
)

// progressSession is the slice of [mcp.ServerSession] the notifier uses.
type progressSession interface {
	NotifyProgress(ctx context.Context, params *mcp.ProgressNotificationParams) error
}

// progressNotifier forwards poll events to the MCP client as progress
// notifications correlated by the originating request's progress token.
type progressNotifier struct {
	session progressSession
	token   any
	total   float64
	job     string
	metrics *observe.Metrics
}

// newProgressNotifier builds an emitter for the given tool call. It returns
// nil when the request carries no progress token; the client did not ask for
// progress, so events are discarded.
func newProgressNotifier(req *mcp.CallToolRequest, job string, maxAttempts int, metrics *observe.Metrics) poll.Emitter {
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	return &progressNotifier{
		session: req.Session,
		token:   token,
		total:   float64(maxAttempts),
		job:     job,
		metrics: metrics,
	}
}

// progressPayload is the JSON body carried in the notification message.
type progressPayload struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// Emit implements [poll.Emitter]. Delivery failures are logged and swallowed:
// a dropped notification must never abort the poll session, and the terminal
// outcome is still recorded server-side.
func (n *progressNotifier) Emit(ctx context.Context, ev poll.Event) {
	msg, err := json.Marshal(progressPayload{Status: ev.Status, Data: ev.Data})
	if err != nil {
		slog.Warn("failed to encode progress payload", "job", n.job, "status", ev.Status, "error", err)
		return
	}

	err = n.session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: n.token,
		Progress:      float64(ev.Attempt),
		Total:         n.total,
		Message:       string(msg),
	})
	if err != nil {
		slog.Warn("progress notification delivery failed", "job", n.job, "status", ev.Status, "error", err)
		return
	}
	if n.metrics != nil {
		n.metrics.RecordProgressEvent(ctx, ev.Status)
	}
}
