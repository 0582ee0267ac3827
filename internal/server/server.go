// Package server exposes a read-mostly debug API over a running agent host.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/behave/internal/core/npc"
	"github.com/zeusync/behave/internal/core/observability/log"
)

// Server serves /metrics, /agents, /trees and /stats. Nothing listens until Start.
type Server struct {
	mu       sync.Mutex
	http     *http.Server
	router   *chi.Mux
	manager  *npc.Manager
	gatherer prometheus.Gatherer
	logger   log.Log
}

// New builds the router. A nil gatherer serves the default prometheus registry.
func New(manager *npc.Manager, gatherer prometheus.Gatherer, logger log.Log) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Server{manager: manager, gatherer: gatherer, logger: logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/stats", s.handleStats)
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleAgents)
		r.Get("/{id}", s.handleAgent)
		r.Post("/{id}/preempt/{node}", s.handlePreempt)
	})
	r.Route("/trees", func(r chi.Router) {
		r.Get("/", s.handleTrees)
		r.Get("/{name}", s.handleTree)
	})
	return r
}

// Router returns the handler, for use with httptest.
func (s *Server) Router() http.Handler { return s.router }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("debug server listening", log.String("addr", ln.Addr().String()))
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug server stopped", log.Error(err))
		}
	}(s.http)
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotRunning
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.manager.Stats())
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.manager.Snapshot())
}

func (s *Server) agent(w http.ResponseWriter, r *http.Request) (*npc.Agent, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid agent id", http.StatusBadRequest)
		return nil, false
	}
	a, ok := s.manager.Agent(id)
	if !ok {
		writeError(w, "agent not found", http.StatusNotFound)
		return nil, false
	}
	return a, true
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.agent(w, r); ok {
		writeJSON(w, a.Info())
	}
}

func (s *Server) handlePreempt(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	node := chi.URLParam(r, "node")
	if err := a.Preempt(node); err != nil {
		code := http.StatusConflict
		if errors.Is(err, npc.ErrUnknownNode) {
			code = http.StatusNotFound
		}
		writeError(w, err.Error(), code)
		return
	}
	s.logger.Info("preempt requested", log.String("agent", a.ID().String()), log.String("node", node))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrees(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.manager.Trees())
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, ok := s.manager.Tree(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, "tree not found", http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = tree.Dump(w)
		return
	}
	writeJSON(w, map[string]any{
		"name":               tree.Name(),
		"hash":               tree.Hash(),
		"max_depth":          tree.MaxDepth(),
		"max_instance_bytes": tree.MaxInstanceBytes(),
		"nodes":              tree.Nodes(),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
