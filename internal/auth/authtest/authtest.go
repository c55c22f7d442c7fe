// Package authtest fakes the Google token endpoint and the user's browser so
// the consent flow can run end to end inside a test.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"golang.org/x/oauth2"
)

// TokenServer exchanges any code for the token "access-<code>".
type TokenServer struct {
	*httptest.Server

	mu    sync.Mutex
	codes []string
}

// NewTokenServer starts a token endpoint closed at the end of the test.
func NewTokenServer(t testing.TB) *TokenServer {
	t.Helper()

	ts := &TokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.exchange))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *TokenServer) exchange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code := r.Form.Get("code")

	ts.mu.Lock()
	ts.codes = append(ts.codes, code)
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-" + code,
		"refresh_token": "refresh-" + code,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

// Codes returns the authorization codes exchanged so far.
func (ts *TokenServer) Codes() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.codes...)
}

// Config returns a client configuration exchanging codes against ts.
func (ts *TokenServer) Config(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/o/oauth2/auth",
			TokenURL: ts.URL,
		},
	}
}

// Visit is one redirect back to the callback server. Params are added to the
// query; the real state is sent unless Params overrides it.
type Visit struct {
	Params map[string]string
}

// Browser answers the consent page by following its visits in order.
type Browser struct {
	t      testing.TB
	visits []Visit
	done   chan struct{}

	mu       sync.Mutex
	authURLs []string
	statuses []int
}

// NewBrowser returns a browser performing visits once Open is called.
func NewBrowser(t testing.TB, visits ...Visit) *Browser {
	return &Browser{t: t, visits: visits, done: make(chan struct{})}
}

// Open matches the signature of auth.OpenBrowser.
func (b *Browser) Open(authURL string) error {
	b.mu.Lock()
	b.authURLs = append(b.authURLs, authURL)
	b.mu.Unlock()

	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	redirect := u.Query().Get("redirect_uri")
	state := u.Query().Get("state")

	go func() {
		defer close(b.done)
		for _, v := range b.visits {
			q := url.Values{"state": {state}}
			for k, val := range v.Params {
				q.Set(k, val)
			}
			res, err := http.Get(redirect + "?" + q.Encode())
			if err != nil {
				b.t.Errorf("callback request failed: %v", err)
				return
			}
			_ = res.Body.Close()

			b.mu.Lock()
			b.statuses = append(b.statuses, res.StatusCode)
			b.mu.Unlock()
		}
	}()

	return nil
}

// Statuses waits for every visit and returns the callback response codes.
func (b *Browser) Statuses() []int {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.statuses...)
}

// AuthURLs returns the consent URLs the browser was asked to open.
func (b *Browser) AuthURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authURLs...)
}
