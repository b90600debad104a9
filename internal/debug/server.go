// Package debug exposes a read-only HTTP surface over the conversation
// store for inspection during development and operations.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/config"
	"github.com/capitalize-ai/conversation-core/internal/middleware"
	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/internal/store"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

// Server serves the debug and operational endpoints.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	log        *logger.Logger
}

// NewServer builds the debug server around the given store.
func NewServer(cfg *config.Config, st *store.Store, log *logger.Logger) *Server {
	s := &Server{store: st, log: log}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/debug/conversations", s.handleListConversations)
		r.Get("/debug/conversations/{id}", s.handleGetConversation)
		r.Get("/debug/conversations/{id}/events", s.handleGetEvents)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.DebugAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("debug server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"conversations": s.store.Len(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

type conversationSummary struct {
	ID        string `json:"id"`
	Temporary bool   `json:"temporary"`
	Current   bool   `json:"current"`
	Messages  int    `json:"messages"`
	Loading   bool   `json:"is_loading"`
	Summary   string `json:"summary,omitempty"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	current := s.store.CurrentKey()

	summaries := make([]conversationSummary, 0)
	for _, conv := range s.store.List() {
		summaries = append(summaries, conversationSummary{
			ID:        conv.Identity.ID,
			Temporary: conv.Identity.Temporary,
			Current:   conv.Identity.Key() == current,
			Messages:  len(conv.Messages),
			Loading:   conv.Loading,
			Summary:   conv.Summary,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	turns := make([][]json.RawMessage, 0, len(conv.EventsLog))
	for _, turn := range conv.EventsLog {
		encoded := make([]json.RawMessage, 0, len(turn))
		for _, ev := range turn {
			data, err := model.EncodeEvent(ev)
			if err != nil {
				s.log.Warn("failed to encode logged event", zap.Error(err))
				continue
			}
			encoded = append(encoded, data)
		}
		turns = append(turns, encoded)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.Identity.ID,
		"turns":           turns,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
