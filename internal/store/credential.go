// Package store persists one OAuth2 credential set per user in SQLite.
package store

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the OAuth2 token bundle stored for a single Gmail account.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Expiry is zero when the token does not expire.
	Expiry time.Time
}

// NewCredential combines the client configuration and an issued token.
func NewCredential(userID string, cfg *oauth2.Config, tok *oauth2.Token) Credential {
	return Credential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       append([]string(nil), cfg.Scopes...),
		Expiry:       tok.Expiry,
	}
}

// Token returns the oauth2 token held by the credential.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// Config returns the client configuration the credential was issued for.
func (c Credential) Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURI},
		Scopes:       append([]string(nil), c.Scopes...),
	}
}
