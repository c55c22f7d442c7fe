package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/gmail-sse-mcp/internal/gservice"
	"github.com/hal9000y/gmail-sse-mcp/internal/gservice/gservicetest"
	"github.com/hal9000y/gmail-sse-mcp/internal/mail"
	"github.com/hal9000y/gmail-sse-mcp/internal/store"
	"github.com/hal9000y/gmail-sse-mcp/internal/tool"
	"github.com/hal9000y/gmail-sse-mcp/internal/transport"
)

const loginURL = "http://localhost:8001/sample_app/login"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	ts       *httptest.Server
	gmail    *gservicetest.Server
	registry *prometheus.Registry
	logins   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		gmail:    gservicetest.New(t),
		registry: prometheus.NewRegistry(),
	}
	f.gmail.Labels = []string{"INBOX", "SENT"}

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Save(context.Background(), "a@b.com", store.Credential{
		UserID:      "a@b.com",
		AccessToken: "access-a",
		Expiry:      time.Now().Add(time.Hour),
	}))

	factory := gservice.NewFactory(f.gmail.Options()...)
	adapter := mail.NewAdapter(st, func(ctx context.Context, cred store.Credential) (mail.Client, error) {
		return factory.New(ctx, cred)
	}, loginURL, discard)

	login := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.logins++
		_, _ = fmt.Fprint(w, "a@b.com")
	})

	f.ts = httptest.NewServer(transport.NewRouter(transport.Config{
		Server:   tool.NewServer(adapter, tool.NewMetrics(f.registry), discard),
		Login:    login,
		Gatherer: f.registry,
		Logger:   discard,
	}))
	t.Cleanup(f.ts.Close)

	return f
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])

	return text.Text
}

func connectSSE(t *testing.T, url string) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(context.Background(), &mcp.SSEClientTransport{Endpoint: url + transport.SSEPath}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func TestSSEToolCall(t *testing.T) {
	f := newFixture(t)
	session := connectSSE(t, f.ts.URL)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tl := range tools.Tools {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{"get_gmail_labels", "get_emails"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_gmail_labels",
		Arguments: map[string]any{"user_id": "a@b.com"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, textOf(t, res))

	var out tool.GetGmailLabelsResponse
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.Equal(t, []string{"INBOX", "SENT"}, out.Labels)
	assert.Equal(t, []string{"access-a"}, f.gmail.Bearers())
}

func TestSSEUnknownUser(t *testing.T) {
	f := newFixture(t)
	session := connectSSE(t, f.ts.URL)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_gmail_labels",
		Arguments: map[string]any{"user_id": "nobody@b.com"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)

	e, ok := tool.ParseError(textOf(t, res))
	require.True(t, ok)
	assert.Equal(t, tool.CategoryNotAuthenticated, e.Category)
	assert.Contains(t, e.Message, loginURL)
	assert.Empty(t, f.gmail.Bearers())
}

func TestSSEConcurrentSessions(t *testing.T) {
	f := newFixture(t)
	first := connectSSE(t, f.ts.URL)
	second := connectSSE(t, f.ts.URL)

	for _, s := range []*mcp.ClientSession{first, second} {
		res, err := s.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "get_gmail_labels",
			Arguments: map[string]any{"user_id": "a@b.com"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
	}
}

func TestMessagesRejectsBadSession(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing session", query: "", status: http.StatusBadRequest},
		{name: "unknown session", query: "?session_id=nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := http.Post(f.ts.URL+transport.MessagesPath+tt.query, "application/json",
				strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
			require.NoError(t, err)
			defer func() { _ = res.Body.Close() }()

			assert.Equal(t, tt.status, res.StatusCode)
		})
	}
}

func TestSSEAnnouncesEndpoint(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+transport.SSEPath, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	buf := make([]byte, 512)
	var got strings.Builder
	for !strings.Contains(got.String(), "session_id=") || !strings.Contains(got.String(), "\n\n") {
		n, err := res.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}

	assert.Contains(t, got.String(), "event: endpoint")
	assert.Contains(t, got.String(), "data: "+transport.MessagesPath+"?session_id=")
}

func TestLoginRoute(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.ts.URL + transport.LoginPath)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "a@b.com", string(body))
	assert.Equal(t, 1, f.logins)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	session := connectSSE(t, f.ts.URL)

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_gmail_labels",
		Arguments: map[string]any{"user_id": "a@b.com"},
	})
	require.NoError(t, err)

	res, err := http.Get(f.ts.URL + transport.MetricsPath)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `gmail_mcp_tool_calls_total{status="success",tool="get_gmail_labels"} 1`)
}
