// Package mail turns Gmail API payloads into the plain records returned by the tools.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/hal9000y/gmail-sse-mcp/internal/store"
)

// PageSize is the number of message references requested per listing call.
const PageSize = 10

// Message is the summary returned for every fetched message.
type Message struct {
	Subject     string `json:"subject"`
	MessageData string `json:"message_data"`
}

// Client is the subset of the Gmail API the adapter calls.
type Client interface {
	ListLabels(ctx context.Context) (*gmail.ListLabelsResponse, error)
	ListMessages(ctx context.Context, q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error)
	GetMessage(ctx context.Context, msgID string) (*gmail.Message, error)
}

// ClientFactory builds a Client authorised by a single credential.
type ClientFactory func(ctx context.Context, cred store.Credential) (Client, error)

type credentialLoader interface {
	Load(ctx context.Context, userID string) (store.Credential, error)
}

// Adapter lists labels and messages of stored accounts.
type Adapter struct {
	creds     credentialLoader
	newClient ClientFactory
	loginURL  string
	log       *slog.Logger
}

// NewAdapter creates an Adapter. loginURL is quoted in not-authenticated errors.
func NewAdapter(creds credentialLoader, newClient ClientFactory, loginURL string, logger *slog.Logger) *Adapter {
	return &Adapter{
		creds:     creds,
		newClient: newClient,
		loginURL:  loginURL,
		log:       logger,
	}
}

// ListLabels returns the label names of userID's account in response order.
func (a *Adapter) ListLabels(ctx context.Context, userID string) ([]string, error) {
	clt, err := a.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := clt.ListLabels(ctx)
	if err != nil {
		return nil, a.remoteError("listing labels", err)
	}

	labels := make([]string, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, l.Name)
	}

	if len(labels) == 0 {
		a.log.InfoContext(ctx, "No labels found", slog.String("user_id", userID))
	}

	return labels, nil
}

// ListEmails returns the subject and plain text body of every message that
// carries labelName and is newer than sinceDays days, in listing order.
func (a *Adapter) ListEmails(ctx context.Context, userID, labelName string, sinceDays int) ([]Message, error) {
	if sinceDays < 0 {
		return nil, &Error{Kind: KindInvalidParams, Msg: fmt.Sprintf("since_days must not be negative, got %d", sinceDays)}
	}
	if labelName == "" {
		return nil, &Error{Kind: KindInvalidParams, Msg: "label_name must not be empty"}
	}

	clt, err := a.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("newer_than:%dd label:%s", sinceDays, labelName)

	refs, err := a.listAll(ctx, clt, q)
	if err != nil {
		return nil, err
	}

	a.log.InfoContext(ctx, "Listed messages",
		slog.String("user_id", userID),
		slog.String("label", labelName),
		slog.Int("since_days", sinceDays),
		slog.Int("count", len(refs)),
	)

	messages := make([]Message, 0, len(refs))
	for _, ref := range refs {
		msg, err := clt.GetMessage(ctx, ref.Id)
		if err != nil {
			return nil, a.remoteError(fmt.Sprintf("fetching message %s", ref.Id), err)
		}

		subject := headerValue(msg.Payload, "Subject", noSubject)
		body := ExtractBody(msg.Payload)

		a.log.DebugContext(ctx, "Fetched message",
			slog.String("id", ref.Id),
			slog.String("from", headerValue(msg.Payload, "From", noSender)),
			slog.String("subject", subject),
			slog.Int("body_len", len(body)),
		)

		messages = append(messages, Message{Subject: subject, MessageData: body})
	}

	return messages, nil
}

// listAll follows continuation tokens until the listing is exhausted.
func (a *Adapter) listAll(ctx context.Context, clt Client, q string) ([]*gmail.Message, error) {
	var (
		refs      []*gmail.Message
		pageToken string
	)

	for {
		res, err := clt.ListMessages(ctx, q, pageToken, PageSize)
		if err != nil {
			return nil, a.remoteError("listing messages", err)
		}

		refs = append(refs, res.Messages...)

		if res.NextPageToken == "" {
			return refs, nil
		}
		pageToken = res.NextPageToken
	}
}

func (a *Adapter) client(ctx context.Context, userID string) (Client, error) {
	cred, err := a.creds.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, a.notAuthenticated(userID, "no credential on file")
	}
	if err != nil {
		return nil, fmt.Errorf("creds.Load failed: %w", err)
	}

	if !cred.Token().Valid() {
		return nil, a.notAuthenticated(userID, "credential expired or invalid")
	}

	clt, err := a.newClient(ctx, cred)
	if err != nil {
		return nil, &Error{Kind: KindRemote, Msg: "creating gmail client", Err: err}
	}

	return clt, nil
}

func (a *Adapter) notAuthenticated(userID, reason string) *Error {
	a.log.Info("User needs to log in", slog.String("user_id", userID), slog.String("reason", reason))

	return &Error{
		Kind: KindNotAuthenticated,
		Msg:  fmt.Sprintf("User not authenticated. Please authenticate again using this login link: %s", a.loginURL),
	}
}

// remoteError classifies a Gmail API failure. A 401 means the stored token
// was revoked or rejected, which only a new login can fix.
func (a *Adapter) remoteError(msg string, err error) *Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		e := a.notAuthenticated("", "token rejected by gmail")
		e.Err = fmt.Errorf("%s: %w", msg, err)
		return e
	}

	return &Error{Kind: KindRemote, Msg: msg, Err: err}
}
