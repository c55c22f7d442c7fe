// Package transport exposes the MCP server and the login flow over HTTP.
package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LoginPath    = "/sample_app/login"
	SSEPath      = "/sse"
	MessagesPath = "/messages/"
	MCPPath      = "/mcp"
	MetricsPath  = "/metrics"
)

// Config holds what the router serves. Login and Gatherer are optional.
type Config struct {
	Server   *mcp.Server
	Login    http.Handler
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires the SSE pair, the streamable endpoint, the login route
// and metrics.
func NewRouter(cfg Config) http.Handler {
	sse := NewSSEHandler(cfg.Server, MessagesPath, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if cfg.Login != nil {
		r.Method(http.MethodGet, LoginPath, cfg.Login)
	}

	r.Get(SSEPath, sse.Stream)
	r.Post(MessagesPath, sse.Message)
	r.Handle(MCPPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return cfg.Server }, nil))

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
