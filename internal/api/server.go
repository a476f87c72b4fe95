package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/store"
)

// Server wraps the HTTP server and mux for the statistics API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new API server wired with all routes. An empty
// token disables authentication.
func NewServer(listenAddress string, port int, token string, apiMaxBodyBytes int64, s *store.Store) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("POST /v1/events", HandleIngest(s))
	authed.Handle("GET /v1/profiles/{id}/overview", HandleOverview(s))
	authed.Handle("GET /v1/profiles/{id}/trend", HandleTrend(s))
	authed.Handle("GET /v1/profiles/{id}/breakdown", HandleBreakdown(s))
	authed.Handle("GET /v1/profiles/{id}/records", HandleRecords(s))
	authed.Handle("DELETE /v1/profiles/{id}/events", HandleRetain(s))

	limitedAuthed := RequestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/v1/", AuthMiddleware(token, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
