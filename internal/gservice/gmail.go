// Package gservice builds Gmail API clients scoped to a single stored credential.
package gservice

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hal9000y/gmail-sse-mcp/internal/store"
)

const gmailUserID = "me"

// Factory creates Gmail clients from credentials. Extra client options are
// appended to every service, which lets tests point it at a fake endpoint.
type Factory struct {
	opts []option.ClientOption
}

// NewFactory returns a Factory applying opts to every created client.
func NewFactory(opts ...option.ClientOption) *Factory {
	return &Factory{opts: opts}
}

// New returns a client authorised by cred. The token is used as stored; it is
// never refreshed behind the caller's back.
func (f *Factory) New(ctx context.Context, cred store.Credential) (*GMail, error) {
	clt := oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.Token()))

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, f.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return &GMail{svc: svc}, nil
}

// GMail performs read-only calls against one account.
type GMail struct {
	svc *gmail.Service
}

func (m *GMail) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	profile, err := m.svc.Users.GetProfile(gmailUserID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("users.GetProfile failed: %w", err)
	}

	return profile, nil
}

func (m *GMail) ListLabels(ctx context.Context) (*gmail.ListLabelsResponse, error) {
	result, err := m.svc.Users.Labels.List(gmailUserID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("labels.List failed: %w", err)
	}

	return result, nil
}

func (m *GMail) ListMessages(ctx context.Context, q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error) {
	call := m.svc.Users.Messages.List(gmailUserID).
		Q(q).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	result, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("messages.List failed: %w", err)
	}

	return result, nil
}

func (m *GMail) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	msg, err := m.svc.Users.Messages.Get(gmailUserID, msgID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("messages.Get failed: %w", err)
	}

	return msg, nil
}
