// Package server exposes the chat and ingestion operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/rs/cors"

	"ragchat/internal/domain"
	"ragchat/internal/ingest"
	"ragchat/internal/service"
)

// ChatPort is the subset of the RAG service the HTTP layer needs.
type ChatPort interface {
	Chat(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
	ChatWithSelection(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
	Ingest(ctx context.Context, path string) (*ingest.Report, error)
}

type Handler struct {
	Service ChatPort
	// Metrics serves /metrics when set.
	Metrics        http.Handler
	AllowedOrigins []string
	Log            logr.Logger
}

// Routes builds the mux with CORS applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Root)
	mux.HandleFunc("/chat", h.Chat)
	mux.HandleFunc("/chat-with-selection", h.ChatWithSelection)
	mux.HandleFunc("/ingest", h.Ingest)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		mux.Handle("/metrics", h.Metrics)
	}
	return h.cors(mux)
}

// writeError writes an error body in the {"error":{...}} shape.
func writeError(w http.ResponseWriter, status int, msg, errType, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Message: msg, Type: errType, Code: code},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found", "invalid_request_error", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Physical AI & Humanoid Robotics RAG Chatbot API"})
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, h.Service.Chat)
}

// ChatWithSelection handles POST /chat-with-selection.
func (h *Handler) ChatWithSelection(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, h.Service.ChatWithSelection)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, fn func(context.Context, service.ChatRequest) (service.ChatResponse, error)) {
	log := h.Log.WithName("chat")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error", "method_not_allowed")
		return
	}
	var req service.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_body")
		return
	}
	resp, err := fn(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "missing_message")
	case errors.Is(err, service.ErrSelectionRequired):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "missing_selected_text")
	case errors.Is(err, domain.ErrCollectionNotFound):
		log.Error(err, "chat failed")
		writeError(w, http.StatusServiceUnavailable, "no documents have been ingested yet", "server_error", "collection_not_found")
	default:
		log.Error(err, "chat failed")
		writeError(w, http.StatusInternalServerError, err.Error(), "server_error", "internal_error")
	}
}

// Ingest handles POST /ingest. The body is optional.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := h.Log.WithName("ingest")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error", "method_not_allowed")
		return
	}
	var req IngestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_body")
			return
		}
	}
	rep, err := h.Service.Ingest(r.Context(), req.Path)
	if errors.Is(err, ingest.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error(), "conflict_error", "ingestion_running")
		return
	}
	if err != nil && rep == nil {
		log.Error(err, "ingestion failed")
		writeError(w, http.StatusInternalServerError, err.Error(), "server_error", "ingestion_failed")
		return
	}
	if err != nil {
		log.Error(err, "ingestion aborted", "status", rep.Status)
		writeError(w, http.StatusInternalServerError, err.Error(), "server_error", "ingestion_aborted")
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		Status:             rep.Status,
		DocumentsProcessed: rep.DocumentsProcessed,
		ChunksCreated:      rep.ChunksCreated,
		CollectionName:     rep.CollectionName,
		BatchesSkipped:     rep.BatchesSkipped,
		FinalCount:         rep.FinalCount,
	})
}

// cors allows browser calls from the configured origins. An empty list
// disables CORS rather than allowing every origin.
func (h *Handler) cors(next http.Handler) http.Handler {
	if len(h.AllowedOrigins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins:   h.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(next)
}
