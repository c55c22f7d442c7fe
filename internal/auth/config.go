// Package auth runs the interactive Google consent flow and stores the
// resulting credential under the account's email address.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// ErrNoClientConfig indicates neither a client secret bundle nor the
// OAUTH_GOOGLE_CLIENT_ID/OAUTH_GOOGLE_CLIENT_SECRET variables are available.
var ErrNoClientConfig = errors.New("no oauth client configuration")

// Scopes requested at login.
var Scopes = []string{gmail.GmailReadonlyScope}

// LoadConfig builds the OAuth client configuration from the client secret
// bundle at secretsFile, falling back to environment variables when the file
// does not exist.
func LoadConfig(secretsFile string) (*oauth2.Config, error) {
	if secretsFile != "" {
		data, err := os.ReadFile(secretsFile)
		switch {
		case err == nil:
			cfg, err := google.ConfigFromJSON(data, Scopes...)
			if err != nil {
				return nil, fmt.Errorf("google.ConfigFromJSON failed: %w", err)
			}
			return cfg, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("os.ReadFile failed: %w", err)
		}
	}

	clientID := os.Getenv("OAUTH_GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: %s not found and OAUTH_GOOGLE_CLIENT_ID/OAUTH_GOOGLE_CLIENT_SECRET not set", ErrNoClientConfig, secretsFile)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}, nil
}

// Unconfigured stands in for a Flow when no client configuration could be
// loaded. Every login fails with Err, leaving the rest of the server usable.
type Unconfigured struct {
	Err error
}

func (u Unconfigured) Login(context.Context) (string, error) {
	return "", u.Err
}
