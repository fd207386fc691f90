// Package api exposes the token manager and media flows over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/omnipilot/tokenvault/internal/observability/middleware"
	"github.com/omnipilot/tokenvault/internal/publish"
	"github.com/omnipilot/tokenvault/internal/tokenstore"
	"github.com/omnipilot/tokenvault/internal/upload"
)

// TokenService is the slice of the token lifecycle manager the API consumes.
type TokenService interface {
	GetAccessToken(ctx context.Context, accountID string) (string, error)
	Save(ctx context.Context, accountID string, rec *tokenstore.Record) (*tokenstore.Record, error)
	ListAccounts(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, accountID string) (bool, error)
	Dump(ctx context.Context) (tokenstore.Collection, error)
}

// Publisher posts videos to the platform.
type Publisher interface {
	PostVideo(ctx context.Context, accessToken string, post publish.Post) (string, error)
	FetchStatus(ctx context.Context, accessToken, publishID string) (*publish.Status, error)
}

// Uploader copies remote media into the public media bucket.
type Uploader interface {
	FromURL(ctx context.Context, sourceURL string) (*upload.Result, error)
}

// Compile-time check that the manager satisfies the API's view of it.
var _ TokenService = (*tokenstore.Manager)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStatusDelay sets how long to wait between initiating a post and the
// first status fetch. TikTok needs a moment before status is meaningful.
func WithStatusDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.statusDelay = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is the HTTP front of the token vault.
type Server struct {
	handler http.Handler
	server  *http.Server

	tokens      TokenService
	publisher   Publisher
	uploader    Uploader
	statusDelay time.Duration
	logger      *slog.Logger
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// NewServer wires the routes. publisher and uploader may be nil, which
// disables their routes with 503 responses.
func NewServer(tokens TokenService, publisher Publisher, uploader Uploader, opts ...ServerOption) *Server {
	s := &Server{
		tokens:      tokens,
		publisher:   publisher,
		uploader:    uploader,
		statusDelay: 2 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /token/{open_id}", s.handleGetToken)
	mux.HandleFunc("PUT /token/{open_id}", s.handleSaveToken)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /accounts/full", s.handleDumpAccounts)
	mux.HandleFunc("DELETE /accounts/{open_id}", s.handleDeleteAccount)
	mux.HandleFunc("POST /posts", s.handlePost)
	mux.HandleFunc("POST /uploads", s.handleUpload)
	mux.HandleFunc("/", s.handleUnmatched)

	s.handler = middleware.Apply(mux,
		middleware.Logging(s.logger),
		middleware.Recovery,
		cors,
	)
	return s
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,  // Read entire client request (DoS protection against slow clients)
		WriteTimeout: 10 * time.Minute,  // Upload handlers transfer whole videos before responding
		IdleTimeout:  90 * time.Second,  // Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// cors allows browser dashboards on other origins to read the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
