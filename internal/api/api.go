// Package api exposes the administrative HTTP surface of ClassPipe: the
// broadcast endpoint used by external schedulers and a health probe.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Broadcaster sends an assignment announcement to an explicit recipient
// list. The bot engine implements it.
type Broadcaster interface {
	BroadcastToList(ctx context.Context, a *models.Assignment, recipients []string) models.BroadcastResult
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Token    string // optional bearer token; empty disables the check
	Webhooks map[string]http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithToken enables bearer-token authentication with the given token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithWebhook mounts an inbound transport webhook handler at the given path.
// Webhook paths skip the bearer check; the transport authenticates callers
// its own way.
func WithWebhook(path string, handler http.HandlerFunc) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.HandlerFunc)
		}
		o.Webhooks[path] = handler
	}
}

// Server is the administrative HTTP server.
type Server struct {
	httpServer *http.Server
	store      store.Store
	bcast      Broadcaster
	token      string
}

// NewServer builds the API server over the store and broadcaster.
func NewServer(st store.Store, bcast Broadcaster, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{store: st, bcast: bcast, token: cfg.Token}
	mux := http.NewServeMux()
	mux.HandleFunc("/broadcast", s.requireAuth(s.handleBroadcast))
	mux.HandleFunc("/health", s.handleHealth)
	for path, handler := range cfg.Webhooks {
		mux.HandleFunc(path, handler)
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // broadcasts hold the request while throttling
	}
	return s
}

// Run starts the server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("API server listening", "addr", s.httpServer.Addr, "auth_enabled", s.token != "")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requireAuth enforces the optional bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != s.token {
				slog.Warn("API request rejected: bad or missing token", "path", r.URL.Path)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("unauthorized"))
				return
			}
		}
		next(w, r)
	}
}
