// Package api exposes homer's pipelines over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph/model/ollama"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/internal/config"
	"github.com/flowbrg/homer/internal/rag"
)

// Service is the pipeline surface the handlers call. *rag.Pipelines
// implements it.
type Service interface {
	Index(ctx context.Context, dir string) (rag.IndexResult, error)
	Chat(ctx context.Context, threadID, message string) (rag.ChatResult, error)
	Report(ctx context.Context, query string) (rag.ReportResult, error)
	History(ctx context.Context, threadID string) ([]rag.ChatMessage, error)
	Threads(ctx context.Context) ([]store.RunInfo, error)
	DeleteThread(ctx context.Context, threadID string) error
	Documents(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, source string) error
	ChunkCount(ctx context.Context) (int, error)
}

// Server serves the homer HTTP API.
type Server struct {
	svc     Service
	cfgPath string
	log     zerolog.Logger
	mux     *http.ServeMux

	mu  sync.RWMutex
	cfg config.Config

	// listModels is swappable for tests.
	listModels func(ctx context.Context, host string) ([]ollama.ModelInfo, error)
}

// NewServer builds a Server with its routes registered. The gatherer
// backs /metrics and may be nil to disable the endpoint.
func NewServer(svc Service, cfg config.Config, cfgPath string, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		svc:        svc,
		cfg:        cfg,
		cfgPath:    cfgPath,
		log:        log,
		mux:        http.NewServeMux(),
		listModels: ollama.ListModels,
	}

	s.mux.HandleFunc("POST /api/index", s.handleIndex)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/report", s.handleReport)
	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("DELETE /api/documents/{source...}", s.handleDeleteDocument)
	s.mux.HandleFunc("GET /api/threads", s.handleListThreads)
	s.mux.HandleFunc("GET /api/threads/{id}", s.handleGetThread)
	s.mux.HandleFunc("DELETE /api/threads/{id}", s.handleDeleteThread)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	s.mux.HandleFunc("GET /api/models", s.handleListModels)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the server's root handler with logging applied.
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.mux)
}

// Run serves on cfg.ListenAddr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config().ListenAddr
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

// config returns a snapshot of the current configuration.
func (s *Server) config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// withLogging logs one line per request with method, path, status, and
// duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
