// Gmail SSE MCP server exposes read-only Gmail access of stored accounts
// through the Model Context Protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/hal9000y/gmail-sse-mcp/internal/auth"
	"github.com/hal9000y/gmail-sse-mcp/internal/gservice"
	"github.com/hal9000y/gmail-sse-mcp/internal/mail"
	"github.com/hal9000y/gmail-sse-mcp/internal/store"
	"github.com/hal9000y/gmail-sse-mcp/internal/tool"
	"github.com/hal9000y/gmail-sse-mcp/internal/transport"
)

var version = "dev"

type options struct {
	httpAddr      string
	dbPath        string
	clientSecrets string
	envFile       string
	loginURL      string
	enableStdio   bool
	logFile       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "gmail-sse-mcp",
		Short: "Serves Gmail labels and messages of stored accounts over MCP",
		Long: `gmail-sse-mcp keeps one OAuth credential per Gmail account in SQLite and
exposes the get_gmail_labels and get_emails tools over SSE, streamable HTTP
and optionally stdio. Accounts are added by visiting the login route.`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.httpAddr, "http-addr", "localhost:8001", "HTTP server listen addr")
	f.StringVar(&opts.dbPath, "db", "./tokens.db", "Path to the SQLite credential store")
	f.StringVar(&opts.clientSecrets, "client-secrets", "credentials.json", "Path to the Google OAuth client secret file")
	f.StringVar(&opts.envFile, "env-file", "", "Path to env file")
	f.StringVar(&opts.loginURL, "login-url", "", "Login link shown to unauthenticated users (defaults to the login route on --http-addr)")
	f.BoolVar(&opts.enableStdio, "stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	f.StringVar(&opts.logFile, "log-file", "", "Path to log file")

	return cmd
}

func run(ctx context.Context, opts options) error {
	logger, closeLog, err := setupLogger(opts.enableStdio, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	ln, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}

	loginURL := opts.loginURL
	if loginURL == "" {
		loginURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), transport.LoginPath)
	}

	a, err := newApp(opts, loginURL, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	stopHTTP, errHTTPCh := serveHTTP(logger, srv, ln)
	defer stopHTTP()

	var errStdioCh <-chan error
	if opts.enableStdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(logger, a.mcp)
		defer stopStdio()
	}

	logger.Info("Serving",
		slog.String("sse", fmt.Sprintf("http://%s%s", ln.Addr().String(), transport.SSEPath)),
		slog.String("login", loginURL),
	)

	select {
	case err := <-errHTTPCh:
		return err
	case err := <-errStdioCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	return nil
}

type app struct {
	handler http.Handler
	mcp     *mcp.Server
	store   *store.SQLiteStore
	log     *slog.Logger
}

// newApp wires the store, the tools and the login route. A missing OAuth
// client configuration only disables logins; stored accounts stay usable.
func newApp(opts options, loginURL string, logger *slog.Logger, gmailOpts ...option.ClientOption) (*app, error) {
	st, err := store.Open(opts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("store.Open failed: %w", err)
	}

	factory := gservice.NewFactory(gmailOpts...)
	adapter := mail.NewAdapter(st, func(ctx context.Context, cred store.Credential) (mail.Client, error) {
		return factory.New(ctx, cred)
	}, loginURL, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mcpServer := tool.NewServer(adapter, tool.NewMetrics(registry), logger)

	var login *auth.HTTPHandler
	oauthCfg, err := auth.LoadConfig(opts.clientSecrets)
	if err != nil {
		logger.Warn("OAuth client not configured, logins will fail", slog.Any("error", err))
		login = auth.NewHTTPHandler(auth.Unconfigured{Err: err}, logger)
	} else {
		login = auth.NewHTTPHandler(auth.NewFlow(oauthCfg, st, auth.GmailProfile(factory), logger), logger)
	}

	return &app{
		handler: transport.NewRouter(transport.Config{
			Server:   mcpServer,
			Login:    login,
			Gatherer: registry,
			Logger:   logger,
		}),
		mcp:   mcpServer,
		store: st,
		log:   logger,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("Closing credential store failed", slog.Any("error", err))
	}
}

func serveStdio(logger *slog.Logger, srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		logger.Info("Starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		logger.Info("Stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(logger *slog.Logger, srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Info("Starting http server", slog.String("addr", ln.Addr().String()))

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errHTTPCh <- fmt.Errorf("srv.Serve failed: %w", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", slog.Any("error", err))
		}

		<-errHTTPCh
		logger.Info("HTTP server stopped")
	}, errHTTPCh
}

// setupLogger writes to logFile when set. Otherwise stdout is used, unless
// stdio carries the MCP protocol, in which case logs go to stderr.
func setupLogger(enableStdio bool, logFile string) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closer := func() {}

	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("os.OpenFile failed: %w", err)
		}
		out = f
		closer = func() { _ = f.Close() }
	case enableStdio:
		out = os.Stderr
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	return logger, closer, nil
}
