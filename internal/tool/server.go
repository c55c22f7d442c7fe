package tool

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type gmailSvc interface {
	listLabelsSvc
	listEmailsSvc
}

// NewServer creates an MCP server with the Gmail tools. Every handler error is
// replaced by an *Error envelope before it reaches the client.
func NewServer(svc gmailSvc, metrics *Metrics, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "google_tools", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_gmail_labels",
		Description: "Retrieves the Gmail labels of the account identified by user_id (the email used at login)",
	}, dispatch("get_gmail_labels", metrics, logger, NewGetGmailLabels(svc).GetGmailLabels))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_emails",
		Description: "Retrieves subject and plain text body of messages with label_name newer than since_days days",
	}, dispatch("get_emails", metrics, logger, NewGetEmails(svc).GetEmails))

	return server
}

func dispatch[In, Out any](name string, metrics *Metrics, logger *slog.Logger, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()

		res, out, err := h(ctx, req, input)
		if err == nil {
			metrics.observe(name, statusSuccess, time.Since(start))
			return res, out, nil
		}

		envelope := normalize(err)
		metrics.observe(name, string(envelope.Category), time.Since(start))
		logger.WarnContext(ctx, "Tool call failed",
			slog.String("tool", name),
			slog.String("category", string(envelope.Category)),
			slog.Any("error", err),
		)

		var zero Out
		return nil, zero, envelope
	}
}
