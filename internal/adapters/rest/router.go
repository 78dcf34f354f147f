// Package rest exposes a flow store over HTTP.
package rest

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/app/services"
	"github.com/flowly/flowly/internal/core/graph"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
	"github.com/flowly/flowly/pkg/validation"
)

// Server serves one flow store. The store is not safe for concurrent use,
// so every handler holds mu while it touches it.
type Server struct {
	mu          sync.Mutex
	store       *graph.Store
	checkpoints *services.CheckpointService
	events      http.Handler
	validate    *validation.Middleware
	origins     []string
	logger      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCheckpoints enables the /checkpoints routes.
func WithCheckpoints(svc *services.CheckpointService) Option {
	return func(s *Server) { s.checkpoints = svc }
}

// WithEvents mounts h, usually a websocket.Handler, at /events.
func WithEvents(h http.Handler) Option {
	return func(s *Server) { s.events = h }
}

// WithLogger sets the request and error logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.validate = validation.NewMiddleware(n) }
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a server for store.
func NewServer(store *graph.Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		validate: validation.NewMiddleware(0),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locker returns the lock guarding the store, for other goroutines that
// read it, such as an autosaver.
func (s *Server) Locker() sync.Locker { return &s.mu }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.healthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(imetrics.Registry, promhttp.HandlerOpts{}))
	if s.events != nil {
		r.Handle("/events", s.events)
	}

	r.Get("/flow", s.getFlow)
	r.With(s.validate.DecodeJSON(graph.Document{})).Put("/flow", s.putFlow)
	r.With(s.validate.ValidateJSON(readOnlyRequest{})).Put("/readonly", s.setGlobalReadOnly)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.listNodes)
		r.With(s.validate.ValidateJSON(createNodeRequest{})).Post("/", s.createNode)
		r.Route("/{nodeID}", func(r chi.Router) {
			r.Get("/", s.getNode)
			r.With(s.validate.ValidateJSON(patchNodeRequest{})).Patch("/", s.patchNode)
			r.Delete("/", s.deleteNode)
			r.With(s.validate.ValidateJSON(positionRequest{})).Put("/position", s.moveNode)
			r.With(s.validate.ValidateJSON(readOnlyRequest{})).Put("/readonly", s.setNodeReadOnly)
			r.Post("/duplicate", s.duplicateNode)
			r.Get("/connections", s.nodeConnections)
			r.Get("/neighbors", s.nodeNeighbors)
		})
	})

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", s.listConnections)
		r.With(s.validate.ValidateJSON(connectionRequest{})).Post("/", s.createConnection)
		r.Get("/{connID}", s.getConnection)
		r.Delete("/{connID}", s.deleteConnection)
		r.With(s.validate.ValidateJSON(labelRequest{})).Put("/{connID}/label", s.setConnectionLabel)
	})

	if s.checkpoints != nil {
		r.Route("/checkpoints", func(r chi.Router) {
			r.Get("/", s.listCheckpoints)
			r.With(s.validate.ValidateJSON(checkpointRequest{})).Post("/", s.createCheckpoint)
			r.Get("/{checkpointID}", s.getCheckpoint)
			r.Delete("/{checkpointID}", s.deleteCheckpoint)
			r.Post("/{checkpointID}/restore", s.restoreCheckpoint)
		})
	}

	return r
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	nodes, conns := s.store.NodeCount(), s.store.ConnectionCount()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"nodes":       nodes,
		"connections": conns,
	})
}
