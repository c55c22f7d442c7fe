package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetGmailLabelsRequest identifies the account to list labels for.
type GetGmailLabelsRequest struct {
	UserID string `json:"user_id" jsonschema:"the user email address used at login"`
}

// GetGmailLabelsResponse lists label names in account order.
type GetGmailLabelsResponse struct {
	Labels []string `json:"labels" jsonschema:"label names found in the account"`
}

type listLabelsSvc interface {
	ListLabels(ctx context.Context, userID string) ([]string, error)
}

// NewGetGmailLabels creates a new GetGmailLabels tool.
func NewGetGmailLabels(svc listLabelsSvc) *GetGmailLabels {
	return &GetGmailLabels{svc: svc}
}

// GetGmailLabels lists the labels of a logged-in account.
type GetGmailLabels struct {
	svc listLabelsSvc
}

func (t *GetGmailLabels) GetGmailLabels(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetGmailLabelsRequest,
) (*mcp.CallToolResult, GetGmailLabelsResponse, error) {
	labels, err := t.svc.ListLabels(ctx, input.UserID)
	if err != nil {
		return nil, GetGmailLabelsResponse{}, err
	}
	if labels == nil {
		labels = []string{}
	}

	return nil, GetGmailLabelsResponse{Labels: labels}, nil
}
