package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/gmail-sse-mcp/internal/mail"
)

// GetEmailsRequest filters messages by label and age.
type GetEmailsRequest struct {
	UserID    string `json:"user_id" jsonschema:"the user email address used at login"`
	LabelName string `json:"label_name" jsonschema:"label to filter by, like INBOX or CATEGORY_UPDATES"`
	SinceDays int    `json:"since_days" jsonschema:"only messages newer than this many days"`
}

// GetEmailsResponse contains one summary per matching message.
type GetEmailsResponse struct {
	Emails []EmailSummary `json:"emails" jsonschema:"matching messages in listing order"`
}

// EmailSummary is the subject and plain text body of a message.
type EmailSummary struct {
	Subject     string `json:"subject" jsonschema:"message subject"`
	MessageData string `json:"message_data" jsonschema:"plain text body"`
}

type listEmailsSvc interface {
	ListEmails(ctx context.Context, userID, labelName string, sinceDays int) ([]mail.Message, error)
}

// NewGetEmails creates a new GetEmails tool.
func NewGetEmails(svc listEmailsSvc) *GetEmails {
	return &GetEmails{svc: svc}
}

// GetEmails lists recent messages carrying a label.
type GetEmails struct {
	svc listEmailsSvc
}

func (t *GetEmails) GetEmails(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetEmailsRequest,
) (*mcp.CallToolResult, GetEmailsResponse, error) {
	messages, err := t.svc.ListEmails(ctx, input.UserID, input.LabelName, input.SinceDays)
	if err != nil {
		return nil, GetEmailsResponse{}, err
	}

	emails := make([]EmailSummary, 0, len(messages))
	for _, m := range messages {
		emails = append(emails, EmailSummary{Subject: m.Subject, MessageData: m.MessageData})
	}

	return nil, GetEmailsResponse{Emails: emails}, nil
}
