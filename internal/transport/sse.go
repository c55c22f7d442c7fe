package transport

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const sessionParam = "session_id"

// SSEHandler pairs a long-lived GET event stream with the POST endpoint the
// client uses to send messages for that stream. The first event on every
// stream names the POST endpoint, including the session id.
type SSEHandler struct {
	server       *mcp.Server
	messagesPath string
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*mcp.SSEServerTransport
}

// NewSSEHandler serves server over SSE; messagesPath is the path clients are
// told to POST to.
func NewSSEHandler(server *mcp.Server, messagesPath string, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{
		server:       server,
		messagesPath: messagesPath,
		log:          logger,
		sessions:     make(map[string]*mcp.SSEServerTransport),
	}
}

// Stream opens an event stream and runs an MCP session on it until either
// side hangs up.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := uuid.NewString()
	t := &mcp.SSEServerTransport{
		Endpoint: h.messagesPath + "?" + sessionParam + "=" + id,
		Response: w,
	}

	h.mu.Lock()
	h.sessions[id] = t
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
	}()

	ctx := r.Context()
	ss, err := h.server.Connect(ctx, t, nil)
	if err != nil {
		h.log.ErrorContext(ctx, "SSE session failed to start", slog.String("session_id", id), slog.Any("error", err))
		http.Error(w, "connection failed", http.StatusInternalServerError)
		return
	}
	defer func() { _ = ss.Close() }()

	h.log.InfoContext(ctx, "SSE session opened", slog.String("session_id", id))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = ss.Wait()
	}()

	select {
	case <-ctx.Done():
	case <-closed:
	}

	h.log.InfoContext(ctx, "SSE session closed", slog.String("session_id", id))
}

// Message delivers one client message to the session named by the
// session_id query parameter.
func (h *SSEHandler) Message(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(sessionParam)
	if id == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	t, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}

	t.ServeHTTP(w, r)
}
