package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/hal9000y/gmail-sse-mcp/internal/gservice"
	"github.com/hal9000y/gmail-sse-mcp/internal/store"
)

const callbackPage = "The authentication flow has completed. You may close this window."

type credentialSaver interface {
	Save(ctx context.Context, userID string, cred store.Credential) error
}

// ProfileFunc resolves the email address of the account a credential belongs to.
type ProfileFunc func(ctx context.Context, cred store.Credential) (string, error)

// GmailProfile resolves the address through the Gmail profile endpoint.
func GmailProfile(factory *gservice.Factory) ProfileFunc {
	return func(ctx context.Context, cred store.Credential) (string, error) {
		clt, err := factory.New(ctx, cred)
		if err != nil {
			return "", fmt.Errorf("factory.New failed: %w", err)
		}

		profile, err := clt.GetProfile(ctx)
		if err != nil {
			return "", fmt.Errorf("clt.GetProfile failed: %w", err)
		}

		return profile.EmailAddress, nil
	}
}

// Option configures a Flow.
type Option func(*Flow)

// WithBrowser replaces the function used to show the consent page.
func WithBrowser(open func(url string) error) Option {
	return func(f *Flow) { f.openBrowser = open }
}

// WithCallbackAddr sets the listen address of the loopback callback server.
func WithCallbackAddr(addr string) Option {
	return func(f *Flow) { f.callbackAddr = addr }
}

// Flow performs the browser based consent flow. Logins are serialised; the
// flow is meant for a single operator setting up accounts.
type Flow struct {
	mu           sync.Mutex
	cfg          *oauth2.Config
	creds        credentialSaver
	profile      ProfileFunc
	openBrowser  func(url string) error
	callbackAddr string
	log          *slog.Logger
}

// NewFlow creates a login flow storing credentials in creds.
func NewFlow(cfg *oauth2.Config, creds credentialSaver, profile ProfileFunc, logger *slog.Logger, opts ...Option) *Flow {
	f := &Flow{
		cfg:          cfg,
		creds:        creds,
		profile:      profile,
		openBrowser:  OpenBrowser,
		callbackAddr: "localhost:0",
		log:          logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type callbackResult struct {
	code string
	err  error
}

// Login blocks until the user completes consent in the browser, then stores
// the credential under the account's email address and returns it.
func (f *Flow) Login(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ln, err := net.Listen("tcp", f.callbackAddr)
	if err != nil {
		return "", fmt.Errorf("net.Listen failed: %w", err)
	}

	cfg := *f.cfg
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state, err := generateState()
	if err != nil {
		_ = ln.Close()
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error("Callback server failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			f.log.Warn("Callback server shutdown failed", slog.Any("error", err))
		}
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	f.log.Info("Waiting for consent", slog.String("redirect_url", cfg.RedirectURL))
	if err := f.openBrowser(authURL); err != nil {
		f.log.Warn("Could not open browser automatically; please open the link manually",
			slog.Any("error", err),
			slog.String("url", authURL),
		)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for consent: %w", ctx.Err())
	}
	if res.err != nil {
		return "", res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return "", fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	cred := store.NewCredential("", &cfg, tok)

	email, err := f.profile(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("resolving account email: %w", err)
	}
	cred.UserID = email

	if err := f.creds.Save(ctx, email, cred); err != nil {
		return "", fmt.Errorf("creds.Save failed: %w", err)
	}

	f.log.Info("Stored credential",
		slog.String("user_id", email),
		slog.String("token", maskLeft(tok.AccessToken)),
		slog.Time("expiry", tok.Expiry),
	)

	return email, nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	deliver := func(res callbackResult) {
		once.Do(func() { results <- res })
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if e := q.Get("error"); e != "" {
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", e)})
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing code parameter", http.StatusBadRequest)
			return
		}

		deliver(callbackResult{code: code})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, callbackPage)
	})
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
