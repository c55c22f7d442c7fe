package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/gmail-sse-mcp/internal/mail"
	"github.com/hal9000y/gmail-sse-mcp/internal/tool"
)

type gmailSvcMock struct {
	ListLabelsFunc func(ctx context.Context, userID string) ([]string, error)
	ListEmailsFunc func(ctx context.Context, userID, labelName string, sinceDays int) ([]mail.Message, error)
}

func (m *gmailSvcMock) ListLabels(ctx context.Context, userID string) ([]string, error) {
	return m.ListLabelsFunc(ctx, userID)
}

func (m *gmailSvcMock) ListEmails(ctx context.Context, userID, labelName string, sinceDays int) ([]mail.Message, error) {
	return m.ListEmailsFunc(ctx, userID, labelName, sinceDays)
}

var errNotAuthenticated = &mail.Error{
	Kind: mail.KindNotAuthenticated,
	Msg:  "User not authenticated. Please authenticate again using this login link: http://localhost:8001/sample_app/login",
}

func newGmailSvc() *gmailSvcMock {
	return &gmailSvcMock{
		ListLabelsFunc: func(_ context.Context, userID string) ([]string, error) {
			switch userID {
			case "a@b.com":
				return []string{"INBOX", "SENT"}, nil
			case "broken@b.com":
				return nil, &mail.Error{Kind: mail.KindRemote, Msg: "listing labels", Err: errors.New("quota exceeded")}
			case "disk@b.com":
				return nil, errors.New("creds.Load failed: disk I/O error")
			default:
				return nil, errNotAuthenticated
			}
		},
		ListEmailsFunc: func(_ context.Context, userID, labelName string, sinceDays int) ([]mail.Message, error) {
			if userID != "a@b.com" {
				return nil, errNotAuthenticated
			}
			if sinceDays < 0 {
				return nil, &mail.Error{Kind: mail.KindInvalidParams, Msg: "since_days must not be negative, got -1"}
			}
			return []mail.Message{
				{Subject: fmt.Sprintf("%s mail", labelName), MessageData: "hello"},
				{Subject: "(No Subject)", MessageData: "(No plain text body found)"},
			}, nil
		},
	}
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestGetGmailLabels(t *testing.T) {
	cases := []struct {
		name             string
		req              tool.GetGmailLabelsRequest
		expected         tool.GetGmailLabelsResponse
		expectedCategory tool.Category
		expectedMessage  string
	}{
		{
			name:     "labels in order",
			req:      tool.GetGmailLabelsRequest{UserID: "a@b.com"},
			expected: tool.GetGmailLabelsResponse{Labels: []string{"INBOX", "SENT"}},
		},
		{
			name:             "not authenticated",
			req:              tool.GetGmailLabelsRequest{UserID: "nobody@b.com"},
			expectedCategory: tool.CategoryNotAuthenticated,
			expectedMessage:  "/sample_app/login",
		},
		{
			name:             "remote fault",
			req:              tool.GetGmailLabelsRequest{UserID: "broken@b.com"},
			expectedCategory: tool.CategoryInternal,
			expectedMessage:  "An unexpected error occurred: listing labels: quota exceeded",
		},
		{
			name:             "storage fault",
			req:              tool.GetGmailLabelsRequest{UserID: "disk@b.com"},
			expectedCategory: tool.CategoryInternal,
			expectedMessage:  "disk I/O error",
		},
	}

	session := connect(t, tool.NewServer(newGmailSvc(), nil, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      "get_gmail_labels",
				Arguments: tc.req,
			})
			require.NoError(t, err)
			require.NotNil(t, result)

			if tc.expectedCategory != "" {
				require.True(t, result.IsError, "Result should indicate error")

				envelope, ok := tool.ParseError(textOf(t, result))
				require.True(t, ok, "error should be an envelope: %s", textOf(t, result))
				assert.Equal(t, tc.expectedCategory, envelope.Category)
				assert.Contains(t, envelope.Message, tc.expectedMessage)
				return
			}

			require.False(t, result.IsError, "unexpected error: %s", textOf(t, result))

			var response tool.GetGmailLabelsResponse
			require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &response))
			assert.Equal(t, tc.expected, response)
		})
	}
}

func TestGetEmails(t *testing.T) {
	cases := []struct {
		name             string
		req              tool.GetEmailsRequest
		expected         tool.GetEmailsResponse
		expectedCategory tool.Category
	}{
		{
			name: "messages in order",
			req:  tool.GetEmailsRequest{UserID: "a@b.com", LabelName: "INBOX", SinceDays: 2},
			expected: tool.GetEmailsResponse{Emails: []tool.EmailSummary{
				{Subject: "INBOX mail", MessageData: "hello"},
				{Subject: "(No Subject)", MessageData: "(No plain text body found)"},
			}},
		},
		{
			name:             "negative since_days",
			req:              tool.GetEmailsRequest{UserID: "a@b.com", LabelName: "INBOX", SinceDays: -1},
			expectedCategory: tool.CategoryInvalidParams,
		},
		{
			name:             "not authenticated",
			req:              tool.GetEmailsRequest{UserID: "nobody@b.com", LabelName: "INBOX", SinceDays: 1},
			expectedCategory: tool.CategoryNotAuthenticated,
		},
	}

	session := connect(t, tool.NewServer(newGmailSvc(), nil, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      "get_emails",
				Arguments: tc.req,
			})
			require.NoError(t, err)
			require.NotNil(t, result)

			if tc.expectedCategory != "" {
				require.True(t, result.IsError, "Result should indicate error")
				envelope, ok := tool.ParseError(textOf(t, result))
				require.True(t, ok)
				assert.Equal(t, tc.expectedCategory, envelope.Category)
				return
			}

			var response tool.GetEmailsResponse
			require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &response))
			assert.Equal(t, tc.expected, response)
		})
	}
}

func TestArgumentTypesAreValidated(t *testing.T) {
	called := false
	svc := newGmailSvc()
	svc.ListEmailsFunc = func(context.Context, string, string, int) ([]mail.Message, error) {
		called = true
		return nil, nil
	}

	session := connect(t, tool.NewServer(svc, nil, slog.New(slog.NewTextHandler(io.Discard, nil))))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "get_emails",
		Arguments: map[string]any{
			"user_id":    "a@b.com",
			"label_name": "INBOX",
			"since_days": "two",
		},
	})
	if err == nil {
		require.NotNil(t, result)
		assert.True(t, result.IsError)
	}
	assert.False(t, called)
}

func TestToolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := tool.NewMetrics(reg)

	session := connect(t, tool.NewServer(newGmailSvc(), metrics, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	for _, userID := range []string{"a@b.com", "a@b.com", "nobody@b.com"} {
		_, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "get_gmail_labels",
			Arguments: tool.GetGmailLabelsRequest{UserID: userID},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Calls().WithLabelValues("get_gmail_labels", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calls().WithLabelValues("get_gmail_labels", "not_authenticated")))
}

func TestParseError(t *testing.T) {
	envelope := &tool.Error{Category: tool.CategoryInternal, Message: "An unexpected error occurred: boom: bang"}

	parsed, ok := tool.ParseError(envelope.Error())
	require.True(t, ok)
	assert.Equal(t, envelope, parsed)

	_, ok = tool.ParseError("something: else")
	assert.False(t, ok)
}
