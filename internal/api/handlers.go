package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/internal/config"
)

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

type indexRequest struct {
	Dir string `json:"dir,omitempty"`
}

type reportRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxBodyBytes bounds request bodies; every payload here is small JSON.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ThreadID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "thread_id and message are required")
		return
	}

	result, err := s.svc.Chat(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		s.log.Error().Err(err).Str("thread", req.ThreadID).Msg("chat turn failed")
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	dir := req.Dir
	if dir == "" {
		dir = s.config().DocumentsDir
	}

	result, err := s.svc.Index(r.Context(), dir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("indexing failed")
		writeError(w, http.StatusInternalServerError, "indexing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.svc.Report(r.Context(), req.Query)
	if err != nil {
		s.log.Error().Err(err).Msg("report generation failed")
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing documents failed")
		return
	}
	chunks, err := s.svc.ChunkCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "counting chunks failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": sources,
		"chunks":    chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if err := s.svc.DeleteDocument(r.Context(), source); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting document failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.svc.Threads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing threads failed")
		return
	}
	if threads == nil {
		threads = []store.RunInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"threads": threads})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages, err := s.svc.History(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading thread failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread_id": id,
		"messages":  messages,
	})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting thread failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// redactSecrets strips provider API keys before a config leaves the
// server, on any path.
func redactSecrets(cfg config.Config) config.Config {
	cfg.OpenAIAPIKey = ""
	cfg.AnthropicAPIKey = ""
	cfg.GoogleAPIKey = ""
	return cfg
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactSecrets(s.config()))
}

// handlePutConfig persists a new configuration. Model and store changes
// take effect on restart.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := cfg.Save(s.cfgPath); err != nil {
		s.log.Error().Err(err).Msg("saving config failed")
		writeError(w, http.StatusInternalServerError, "saving config failed")
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, redactSecrets(cfg))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.listModels(r.Context(), s.config().OllamaHost)
	if err != nil {
		s.log.Error().Err(err).Msg("listing models failed")
		writeError(w, http.StatusBadGateway, "model server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
