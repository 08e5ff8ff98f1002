// Package web serves the poem pages, the JSON API and the metrics endpoint
// from one gorilla/mux router.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poemhub/internal/chatbot"
	"poemhub/internal/core"
	"poemhub/internal/export"
	"poemhub/internal/logging"
	"poemhub/internal/state"
	"poemhub/pkg/domain"
)

const shutdownTimeout = 5 * time.Second

// Backend is the service surface the handlers call directly.
type Backend interface {
	state.Service
	GetPoem(ctx context.Context, id string) (domain.Poem, error)
	PoemsByAuthor(ctx context.Context, authorID string) ([]domain.Poem, error)
	PoemsByCategory(ctx context.Context, categoryID string) ([]domain.Poem, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
}

// ChatClient is satisfied by *chatbot.Client.
type ChatClient interface {
	SendMessage(ctx context.Context, text string, convo map[string]any) (string, error)
	TestConnection(ctx context.Context) bool
}

// Exporter is satisfied by *export.Exporter.
type Exporter interface {
	Export(ctx context.Context, formats ...export.Format) ([]export.Artifact, error)
}

// Options wires a Server. Backend is required; Chat and Exporter disable
// their endpoints when nil.
type Options struct {
	Backend  Backend
	Stores   *state.Stores
	Chat     ChatClient
	Exporter Exporter
	Logger   logging.Logger
	// Registry receives HTTP metrics and backs /metrics. Nil uses a private
	// registry.
	Registry *prometheus.Registry
}

// Server owns the router and page templates.
type Server struct {
	backend  Backend
	stores   *state.Stores
	chat     ChatClient
	exporter Exporter
	logger   logging.Logger
	registry *prometheus.Registry
	pages    *pageSet
	router   *mux.Router
}

// New builds the router. It fails only when templates do not parse.
func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("web: backend required")
	}
	s := &Server{
		backend:  opts.Backend,
		stores:   opts.Stores,
		chat:     opts.Chat,
		exporter: opts.Exporter,
		logger:   opts.Logger,
		registry: opts.Registry,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.stores == nil {
		s.stores = state.NewStores(opts.Backend, state.WithStoresLogger(s.logger))
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	s.pages = pages
	metrics, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.router = s.routes(metrics)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(metrics *httpMetrics) *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.middleware, s.logRequests)

	for _, p := range pageTable {
		router.Handle(p.Path, s.page(p)).Methods(http.MethodGet).Name(p.Name)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/poems", s.handleListPoems).Methods(http.MethodGet)
	api.HandleFunc("/poems", s.handleCreatePoem).Methods(http.MethodPost)
	api.HandleFunc("/poems/{id}", s.handleGetPoem).Methods(http.MethodGet)
	api.HandleFunc("/poems/{id}", s.handleUpdatePoem).Methods(http.MethodPut)
	api.HandleFunc("/poems/{id}", s.handleDeletePoem).Methods(http.MethodDelete)

	api.HandleFunc("/authors", s.handleListAuthors).Methods(http.MethodGet)
	api.HandleFunc("/authors", s.handleCreateAuthor).Methods(http.MethodPost)
	api.HandleFunc("/authors/{id}", s.handleGetAuthor).Methods(http.MethodGet)
	api.HandleFunc("/authors/{id}", s.handleUpdateAuthor).Methods(http.MethodPut)
	api.HandleFunc("/authors/{id}", s.handleDeleteAuthor).Methods(http.MethodDelete)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleGetCategory).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	if s.chat != nil {
		api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
		api.HandleFunc("/chat/health", s.handleChatHealth).Methods(http.MethodGet)
	}
	if s.exporter != nil {
		api.HandleFunc("/exports", s.handleExport).Methods(http.MethodPost)
	}
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})

	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	return router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(started))
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// statusFor maps service, guard and chatbot failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvariant), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrReferenced):
		return http.StatusConflict
	}
	var chatErr *chatbot.Error
	if errors.As(err, &chatErr) {
		if chatErr.Kind == chatbot.KindTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
