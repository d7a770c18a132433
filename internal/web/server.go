// Package web provides the HTTP surface of the vacuum-controller daemon:
// a status page, JSON status, command execution and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/vacuum-controller/internal/command"
	"github.com/sweeney/vacuum-controller/internal/status"
)

// Executor runs a named command on the controller.
type Executor interface {
	Run(ctx context.Context, name string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string) error

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Server serves the status page and command endpoint over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	exec       Executor
}

// New creates a Server that reads state from the given tracker and runs
// commands through exec. metrics may be nil to disable /metrics.
func New(addr string, tracker *status.Tracker, exec Executor, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, exec: exec}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("POST /command/{name}", s.handleCommand)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.exec.Run(r.Context(), name)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, command.ErrUnknownCommand):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("web: command %s failed: %v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
